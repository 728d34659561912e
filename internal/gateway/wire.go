package gateway

import (
	"encoding/json"

	"holdfast/pkg/model"
)

// envelope is the outer shape of every upstream response.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type decodable interface {
	decode(raw json.RawMessage) error
}

type searchRequest struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Adult       int    `json:"adult"`
	Child       int    `json:"child"`
	Date        string `json:"date"`
}

type seatsRequest struct {
	Adult               int   `json:"adult"`
	Child               int   `json:"child"`
	OutboundWagonTypeID int64 `json:"outbound_wagon_type_id"`
}

type tripsData struct {
	Trips []tripDTO `json:"trips"`
}

func (d *tripsData) decode(raw json.RawMessage) error {
	return json.Unmarshal(raw, d)
}

type tripDTO struct {
	ID            int64  `json:"id"`
	DepartureTime string `json:"departure_time"`
	Journeys      []struct {
		ID int64 `json:"id"`
	} `json:"journeys"`
	WagonTypes []struct {
		WagonTypeID int64 `json:"wagon_type_id"`
		HasSeats    bool  `json:"has_seats"`
	} `json:"wagon_types"`
}

func (t tripDTO) toModel() model.Trip {
	trip := model.Trip{
		ID:            t.ID,
		DepartureTime: t.DepartureTime,
	}
	if trip.DepartureTime == "" {
		trip.DepartureTime = "N/A"
	}
	if len(t.Journeys) > 0 {
		trip.JourneyID = t.Journeys[0].ID
	}
	for _, wt := range t.WagonTypes {
		trip.WagonTypes = append(trip.WagonTypes, model.TripWagonType{
			WagonTypeID: wt.WagonTypeID,
			HasSeats:    wt.HasSeats,
		})
	}
	return trip
}

type seatsData struct {
	Outbound struct {
		Journeys []struct {
			TrainWagons []struct {
				ID    int64 `json:"id"`
				Seats []struct {
					ID        int64  `json:"id"`
					Label     string `json:"label"`
					Available bool   `json:"available"`
				} `json:"seats"`
			} `json:"train_wagons"`
		} `json:"journeys"`
	} `json:"outbound"`
}

func (d *seatsData) decode(raw json.RawMessage) error {
	return json.Unmarshal(raw, d)
}

// availableSeats flattens the first journey's wagons into the seats that
// are actually bookable right now.
func (d *seatsData) availableSeats() []model.SeatRef {
	if len(d.Outbound.Journeys) == 0 {
		return nil
	}
	var out []model.SeatRef
	for _, wagon := range d.Outbound.Journeys[0].TrainWagons {
		for _, seat := range wagon.Seats {
			if seat.Available {
				out = append(out, model.SeatRef{
					WagonID: wagon.ID,
					SeatID:  seat.ID,
					Label:   seat.Label,
				})
			}
		}
	}
	return out
}

// bookingPayload embeds the passenger profile so its fields marshal at the
// top level of the request, alongside the seat selection.
type bookingPayload struct {
	model.PassengerProfile
	Outbound outboundSelection `json:"outbound"`
}

type outboundSelection struct {
	SelectedJourneys []selectedJourney `json:"selected_journeys"`
}

type selectedJourney struct {
	ID    int64          `json:"id"`
	Seats []selectedSeat `json:"seats"`
}

type selectedSeat struct {
	ID           int64 `json:"id"`
	TrainWagonID int64 `json:"train_wagon_id"`
}

type bookingData struct {
	Booking struct {
		FormURL string `json:"formUrl"`
		ID      int64  `json:"id"`
	} `json:"booking"`
}

func (d *bookingData) decode(raw json.RawMessage) error {
	return json.Unmarshal(raw, d)
}
