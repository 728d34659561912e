package model

// Contact carries the booking contact details as the upstream expects them.
type Contact struct {
	Mobile      string `json:"mobile"`
	Email       string `json:"email"`
	MainContact string `json:"main_contact"`
}

type Passenger struct {
	Name           string `json:"name"`
	Surname        string `json:"surname"`
	DOB            string `json:"dob"`
	Tariff         string `json:"tariff"`
	Gender         string `json:"gender"`
	IdentityType   string `json:"identity_type"`
	IdentityNumber string `json:"identity_number"`
}

// PassengerProfile is the payload submitted with every booking call,
// synthetic during automated acquisition and real during finalization. It is
// kept on the lease verbatim because the rescue scheduler resubmits it.
type PassengerProfile struct {
	HasMediaWiFi bool        `json:"has_media_wifi"`
	HasLunchbox  bool        `json:"has_lunchbox"`
	BeddingType  string      `json:"bedding_type"`
	APIClient    string      `json:"api_client"`
	Contact      Contact     `json:"contact"`
	Passengers   []Passenger `json:"passengers"`
}

// MainContact returns the display name of the first passenger, used in
// purchase journal entries.
func (p PassengerProfile) MainContact() string {
	return p.Contact.MainContact
}
