// Package identity produces synthetic passenger profiles for automated
// acquisition. The generated identities follow the upstream's expectations:
// Turkmen names, day-month-year birth dates, passport series plus a
// six-digit number, gender derived from the surname suffix.
package identity

import (
	"fmt"
	"math/rand"
	"strings"

	"holdfast/pkg/model"
)

var (
	givenNames  = []string{"Allaşükür", "Oraz", "Gurban", "Myrat", "Dovlet", "Nury", "Saparmyrat"}
	familyNames = []string{"Ýowyýew", "Ataye", "Babayew", "Geldiyew", "Hojayew", "Jumayew"}
	series      = []string{"II-DZ", "I-AG", "I-DZ"}
)

const (
	defaultMobile = "+99371789091"
	defaultEmail  = "menturkmen111@gmail.com"
)

type Generator struct {
	rng *rand.Rand
}

func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Random returns a fresh synthetic profile suitable for an automated
// booking submission.
func (g *Generator) Random() model.PassengerProfile {
	name := givenNames[g.rng.Intn(len(givenNames))]
	surname := familyNames[g.rng.Intn(len(familyNames))]
	dob := fmt.Sprintf("%02d-%02d-%d",
		1+g.rng.Intn(28),
		1+g.rng.Intn(12),
		1980+g.rng.Intn(31),
	)
	identityNumber := fmt.Sprintf("%s %06d", series[g.rng.Intn(len(series))], 100000+g.rng.Intn(900000))

	return model.PassengerProfile{
		BeddingType: "default",
		APIClient:   "web",
		Contact: model.Contact{
			Mobile:      defaultMobile,
			Email:       defaultEmail,
			MainContact: name + " " + surname,
		},
		Passengers: []model.Passenger{{
			Name:           name,
			Surname:        surname,
			DOB:            dob,
			Tariff:         "adult",
			Gender:         GenderForSurname(surname),
			IdentityType:   "passport",
			IdentityNumber: identityNumber,
		}},
	}
}

// GenderForSurname infers gender from Turkmen surname suffixes: -wa is
// female, -ew and -w are male, anything else defaults to male.
func GenderForSurname(surname string) string {
	s := strings.ToLower(surname)
	if strings.HasSuffix(s, "wa") {
		return "female"
	}
	return "male"
}
