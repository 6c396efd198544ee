package domain

import (
	"strings"
	"time"
)

const (
	DefaultRateCurrency    = "USD"
	DefaultServiceRadiusKm = 25
	MaxServiceRadiusKm     = 100
)

type RateUnit string

const (
	RateUnitHour    RateUnit = "hour"
	RateUnitDay     RateUnit = "day"
	RateUnitProject RateUnit = "project"
)

func (u RateUnit) Valid() bool {
	switch u {
	case RateUnitHour, RateUnitDay, RateUnitProject:
		return true
	default:
		return false
	}
}

type Rate struct {
	Currency string
	Amount   float64
	Unit     RateUnit
}

// DefaultRate is applied when a profile is created without a rate.
func DefaultRate() Rate {
	return Rate{Currency: DefaultRateCurrency, Amount: 0, Unit: RateUnitHour}
}

type Location struct {
	City  string
	State string

	Latitude  *float64
	Longitude *float64
}

// Credential is a licence or certification. All three fields are required.
type Credential struct {
	Label  string
	Issuer string
	ID     string
}

func (c Credential) Complete() bool {
	return strings.TrimSpace(c.Label) != "" && strings.TrimSpace(c.Issuer) != "" && strings.TrimSpace(c.ID) != ""
}

// Profile is a tradesperson's public-facing listing, owned 1:1 by an Account.
type Profile struct {
	ID      ProfileID
	OwnerID AccountID

	DisplayName string
	Headline    string
	Bio         string
	Skills      []string
	Credentials []Credential
	Rate        Rate
	Location    Location

	ServiceRadiusKm int
	Photos          []string

	IsPublished bool

	// AvgRating is nil until a rating exists; it is never computed here.
	AvgRating   *float64
	ReviewCount int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OwnedBy reports whether the account owns the profile.
func (p Profile) OwnedBy(id AccountID) bool {
	return id != "" && p.OwnerID == id
}

// Publishable reports whether the profile satisfies the fields required to be listed.
func (p Profile) Publishable() bool {
	return strings.TrimSpace(p.Location.City) != "" &&
		strings.TrimSpace(p.Location.State) != "" &&
		p.ServiceRadiusKm > 0
}

// DirectoryEntry is a published profile joined with its owner's public identity.
type DirectoryEntry struct {
	Profile
	OwnerName  string
	OwnerEmail string
}
