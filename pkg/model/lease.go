package model

import (
	"fmt"
	"time"
)

// Lease lifecycle states. A lease leaves StatusError only by removal; the
// uniqueness rule (one lease per seat) ignores leases already in error.
const (
	StatusHeld            = "held"
	StatusBooked          = "booked"
	StatusReservedForUser = "reserved_for_user"
	StatusError           = "error"
)

// SeatKey identifies one physical seat on one trip. It is the identity under
// which the lease store enforces uniqueness.
type SeatKey struct {
	TripID  int64 `json:"trip_id"`
	WagonID int64 `json:"wagon_id"`
	SeatID  int64 `json:"seat_id"`
}

func (k SeatKey) String() string {
	return fmt.Sprintf("%d:%d:%d", k.TripID, k.WagonID, k.SeatID)
}

// Lease is one seat currently held by this process. The upstream hold lapses
// every few minutes; the rescue scheduler keeps re-booking it, so ExpiresAt
// mirrors the upstream hold window rather than a locally enforced TTL.
type Lease struct {
	ID            string           `json:"id"`
	Date          string           `json:"date"`
	TripID        int64            `json:"trip_id"`
	JourneyID     int64            `json:"journey_id"`
	WagonID       int64            `json:"wagon_id"`
	SeatID        int64            `json:"seat_id"`
	SeatLabel     string           `json:"seat_label"`
	WagonTypeID   int64            `json:"wagon_type_id"`
	Recent        bool             `json:"recent"`
	CreatedAt     time.Time        `json:"created_at"`
	ExpiresAt     time.Time        `json:"expires_at"`
	DepartureTime string           `json:"departure_time"`
	Status        string           `json:"status"`
	BookingID     int64            `json:"booking_id,omitempty"`
	ErrorMessage  string           `json:"error_message,omitempty"`
	Profile       PassengerProfile `json:"-"`

	// UserProfile is set only while the lease is reserved_for_user and is
	// dropped again when the purchase attempt finishes either way.
	UserProfile *PassengerProfile `json:"-"`
}

func (l *Lease) Key() SeatKey {
	return SeatKey{TripID: l.TripID, WagonID: l.WagonID, SeatID: l.SeatID}
}

// RemainingSeconds reports how long the current upstream hold has left.
// Negative values mean the hold has already lapsed and a rescue is due.
func (l *Lease) RemainingSeconds(now time.Time) float64 {
	return l.ExpiresAt.Sub(now).Seconds()
}
