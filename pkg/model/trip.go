package model

import "strconv"

// Trip is one searchable departure returned by the upstream. Only the first
// journey of a trip is bookable through this system, matching the upstream
// booking payload shape.
type Trip struct {
	ID            int64           `json:"id"`
	JourneyID     int64           `json:"journey_id"`
	DepartureTime string          `json:"departure_time"`
	WagonTypes    []TripWagonType `json:"wagon_types"`
}

type TripWagonType struct {
	WagonTypeID int64 `json:"wagon_type_id"`
	HasSeats    bool  `json:"has_seats"`
}

// HasSeatsFor reports whether the trip advertises availability for the given
// wagon type, sparing a seat-listing call when it does not.
func (t Trip) HasSeatsFor(wagonTypeID int64) bool {
	for _, wt := range t.WagonTypes {
		if wt.WagonTypeID == wagonTypeID && wt.HasSeats {
			return true
		}
	}
	return false
}

// SeatRef is one currently-available seat inside a trip's wagon.
type SeatRef struct {
	WagonID int64  `json:"wagon_id"`
	SeatID  int64  `json:"seat_id"`
	Label   string `json:"label"`
}

// Tier derives the berth tier from the seat label. Wagons number seats in
// three interleaved tiers: labels 1,4,7,… are tier 1 (lower berths), 2,5,8,…
// tier 2, 3,6,9,… tier 3. Unparseable labels report tier 0.
func (s SeatRef) Tier() int {
	return TierForLabel(s.Label)
}

func TierForLabel(label string) int {
	n, err := strconv.Atoi(label)
	if err != nil || n < 1 {
		return 0
	}
	return (n-1)%3 + 1
}
