package model

import "time"

// Purchase record states. Records are append-only and survive the lease that
// spawned them; operators clear the journal explicitly.
const (
	PurchaseQueued    = "queued"
	PurchaseSearching = "searching"
	PurchaseFound     = "found"
	PurchaseError     = "error"
)

// PurchaseRecord tracks one dispatched human purchase attempt independently
// of the lease's own status, for display in the operator console.
type PurchaseRecord struct {
	ID          string    `json:"id"`
	LeaseID     string    `json:"lease_id"`
	TripID      int64     `json:"trip_id"`
	WagonID     int64     `json:"wagon_id"`
	SeatLabel   string    `json:"seat_label"`
	Date        string    `json:"date"`
	MainContact string    `json:"main_contact"`
	BookingID   int64     `json:"booking_id,omitempty"`
	PaymentURL  string    `json:"payment_url,omitempty"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// PurchaseRequest is the operator-submitted form that finalizes a lease.
// DOB uses the upstream's day-month-year format.
type PurchaseRequest struct {
	Name           string `json:"name" validate:"required,min=2,max=50"`
	Surname        string `json:"surname" validate:"required,min=2,max=50"`
	DOB            string `json:"dob" validate:"required,datetime=02-01-2006"`
	IdentityNumber string `json:"identity_number" validate:"required,identity_doc"`
	Mobile         string `json:"mobile" validate:"required,e164"`
	Email          string `json:"email" validate:"required,email"`
	HasMediaWiFi   bool   `json:"has_media_wifi"`
}
