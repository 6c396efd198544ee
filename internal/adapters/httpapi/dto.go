package httpapi

import (
	"time"

	"github.com/oapi-codegen/nullable"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/localworks/localworks-api/internal/app/messages"
	"github.com/localworks/localworks-api/internal/app/profiles"
	"github.com/localworks/localworks-api/internal/domain"
)

// Requests.

type LoginRequest struct {
	IdToken string `json:"idToken"`
}

type RegisterRequest struct {
	IdToken string `json:"idToken"`
	Name    string `json:"name"`
	Role    string `json:"role,omitempty"`
}

type UpdateAccountRequest struct {
	Name string `json:"name"`
}

type PromoteRoleRequest struct {
	Role string `json:"role,omitempty"`
}

type Credential struct {
	Label  string `json:"label"`
	Issuer string `json:"issuer"`
	Id     string `json:"id"`
}

type RateInput struct {
	Currency *string  `json:"currency,omitempty"`
	Amount   *float64 `json:"amount,omitempty"`
	Unit     *string  `json:"unit,omitempty"`
}

type LocationInput struct {
	City  string   `json:"city"`
	State string   `json:"state"`
	Lat   *float64 `json:"lat,omitempty"`
	Lng   *float64 `json:"lng,omitempty"`
}

type CreateProfileRequest struct {
	DisplayName     string         `json:"displayName"`
	Headline        string         `json:"headline,omitempty"`
	Bio             string         `json:"bio,omitempty"`
	Skills          []string       `json:"skills,omitempty"`
	Credentials     []Credential   `json:"credentials,omitempty"`
	Rate            *RateInput     `json:"rate,omitempty"`
	Location        *LocationInput `json:"location,omitempty"`
	ServiceRadiusKm *int           `json:"serviceRadiusKm,omitempty"`
	Photos          []string       `json:"photos,omitempty"`
	IsPublished     bool           `json:"isPublished,omitempty"`
}

type LocationPatch struct {
	City  nullable.Nullable[string]  `json:"city,omitempty"`
	State nullable.Nullable[string]  `json:"state,omitempty"`
	Lat   nullable.Nullable[float64] `json:"lat,omitempty"`
	Lng   nullable.Nullable[float64] `json:"lng,omitempty"`
}

// UpdateProfileRequest is a partial update: absent fields are unchanged and
// null clears optional fields.
type UpdateProfileRequest struct {
	DisplayName     nullable.Nullable[string]        `json:"displayName,omitempty"`
	Headline        nullable.Nullable[string]        `json:"headline,omitempty"`
	Bio             nullable.Nullable[string]        `json:"bio,omitempty"`
	Skills          nullable.Nullable[[]string]      `json:"skills,omitempty"`
	Credentials     nullable.Nullable[[]Credential]  `json:"credentials,omitempty"`
	Rate            nullable.Nullable[RateInput]     `json:"rate,omitempty"`
	Location        nullable.Nullable[LocationPatch] `json:"location,omitempty"`
	ServiceRadiusKm nullable.Nullable[int]           `json:"serviceRadiusKm,omitempty"`
	Photos          nullable.Nullable[[]string]      `json:"photos,omitempty"`
	IsPublished     nullable.Nullable[bool]          `json:"isPublished,omitempty"`
}

type SetPublicationRequest struct {
	IsPublished *bool `json:"isPublished"`
}

type SendMessageRequest struct {
	ToProfileId string  `json:"toProfileId"`
	SenderName  string  `json:"senderName"`
	SenderEmail string  `json:"senderEmail"`
	SenderPhone *string `json:"senderPhone,omitempty"`
	Message     string  `json:"message"`
}

// Responses.

type Account struct {
	Id        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type AccountResponse struct {
	Account Account `json:"account"`
}

type Rate struct {
	Currency string  `json:"currency"`
	Amount   float64 `json:"amount"`
	Unit     string  `json:"unit"`
}

type Location struct {
	City  string                     `json:"city"`
	State string                     `json:"state"`
	Lat   nullable.Nullable[float64] `json:"lat"`
	Lng   nullable.Nullable[float64] `json:"lng"`
}

type Profile struct {
	Id              string                     `json:"id"`
	OwnerId         string                     `json:"ownerId"`
	DisplayName     string                     `json:"displayName"`
	Headline        string                     `json:"headline"`
	Bio             string                     `json:"bio"`
	Skills          []string                   `json:"skills"`
	Credentials     []Credential               `json:"credentials"`
	Rate            Rate                       `json:"rate"`
	Location        Location                   `json:"location"`
	ServiceRadiusKm int                        `json:"serviceRadiusKm"`
	Photos          []string                   `json:"photos"`
	IsPublished     bool                       `json:"isPublished"`
	AvgRating       nullable.Nullable[float64] `json:"avgRating"`
	ReviewCount     int                        `json:"reviewCount"`
	CreatedAt       time.Time                  `json:"createdAt"`
	UpdatedAt       time.Time                  `json:"updatedAt"`
}

type ProfileResponse struct {
	Profile Profile `json:"profile"`
}

type ProfileOwner struct {
	Name  string              `json:"name"`
	Email openapi_types.Email `json:"email"`
}

type DirectoryEntry struct {
	Profile
	Owner ProfileOwner `json:"owner"`
}

type DirectoryResponse struct {
	Profiles []DirectoryEntry `json:"profiles"`
}

type ContactMessage struct {
	Id            string                    `json:"id"`
	FromAccountId string                    `json:"fromAccountId"`
	ToProfileId   string                    `json:"toProfileId"`
	SenderName    string                    `json:"senderName"`
	SenderEmail   openapi_types.Email       `json:"senderEmail"`
	SenderPhone   nullable.Nullable[string] `json:"senderPhone"`
	Message       string                    `json:"message"`
	IsRead        bool                      `json:"isRead"`
	CreatedAt     time.Time                 `json:"createdAt"`
}

type ContactMessageResponse struct {
	Message ContactMessage `json:"message"`
}

// InboxMessage carries the sending account's name and email. FromAccount is
// null when that account no longer exists.
type InboxMessage struct {
	ContactMessage
	FromAccount *ProfileOwner `json:"fromAccount"`
}

type InboxResponse struct {
	Messages    []InboxMessage `json:"messages"`
	UnreadCount int            `json:"unreadCount"`
}

type UnreadCountResponse struct {
	UnreadCount int `json:"unreadCount"`
}

type StatusResponse struct {
	Message string `json:"message"`
}

// Mapping.

func accountFromDomain(a domain.Account) Account {
	return Account{
		Id:        string(a.ID),
		Name:      a.DisplayName,
		Email:     a.Email,
		Role:      string(a.Role),
		CreatedAt: a.CreatedAt.UTC(),
		UpdatedAt: a.UpdatedAt.UTC(),
	}
}

func profileFromDomain(p domain.Profile) Profile {
	creds := make([]Credential, 0, len(p.Credentials))
	for _, c := range p.Credentials {
		creds = append(creds, Credential{Label: c.Label, Issuer: c.Issuer, Id: c.ID})
	}
	return Profile{
		Id:          string(p.ID),
		OwnerId:     string(p.OwnerID),
		DisplayName: p.DisplayName,
		Headline:    p.Headline,
		Bio:         p.Bio,
		Skills:      nonNilStrings(p.Skills),
		Credentials: creds,
		Rate: Rate{
			Currency: p.Rate.Currency,
			Amount:   p.Rate.Amount,
			Unit:     string(p.Rate.Unit),
		},
		Location: Location{
			City:  p.Location.City,
			State: p.Location.State,
			Lat:   nullableFloat(p.Location.Latitude),
			Lng:   nullableFloat(p.Location.Longitude),
		},
		ServiceRadiusKm: p.ServiceRadiusKm,
		Photos:          nonNilStrings(p.Photos),
		IsPublished:     p.IsPublished,
		AvgRating:       nullableFloat(p.AvgRating),
		ReviewCount:     p.ReviewCount,
		CreatedAt:       p.CreatedAt.UTC(),
		UpdatedAt:       p.UpdatedAt.UTC(),
	}
}

func directoryEntryFromDomain(e domain.DirectoryEntry) DirectoryEntry {
	return DirectoryEntry{
		Profile: profileFromDomain(e.Profile),
		Owner: ProfileOwner{
			Name:  e.OwnerName,
			Email: openapi_types.Email(e.OwnerEmail),
		},
	}
}

func messageFromDomain(m domain.ContactMessage) ContactMessage {
	return ContactMessage{
		Id:            string(m.ID),
		FromAccountId: string(m.FromAccountID),
		ToProfileId:   string(m.ToProfileID),
		SenderName:    m.SenderName,
		SenderEmail:   openapi_types.Email(m.SenderEmail),
		SenderPhone:   nullableString(m.SenderPhone),
		Message:       m.Message,
		IsRead:        m.IsRead,
		CreatedAt:     m.CreatedAt.UTC(),
	}
}

func inboxMessageFromApp(m messages.ReceivedMessage) InboxMessage {
	out := InboxMessage{ContactMessage: messageFromDomain(m.ContactMessage)}
	if m.From != nil {
		out.FromAccount = &ProfileOwner{Name: m.From.Name, Email: openapi_types.Email(m.From.Email)}
	}
	return out
}

func nullableString(p *string) nullable.Nullable[string] {
	var out nullable.Nullable[string]
	if p != nil {
		out.Set(*p)
	} else {
		out.SetNull()
	}
	return out
}

func nullableFloat(p *float64) nullable.Nullable[float64] {
	var out nullable.Nullable[float64]
	if p != nil {
		out.Set(*p)
	} else {
		out.SetNull()
	}
	return out
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func credentialsToDomain(in []Credential) []domain.Credential {
	if in == nil {
		return nil
	}
	out := make([]domain.Credential, 0, len(in))
	for _, c := range in {
		out = append(out, domain.Credential{Label: c.Label, Issuer: c.Issuer, ID: c.Id})
	}
	return out
}

func rateInputToApp(r RateInput) profiles.RateInput {
	return profiles.RateInput{Currency: r.Currency, Amount: r.Amount, Unit: r.Unit}
}

func createProfileInputFromRequest(b CreateProfileRequest) profiles.CreateProfileInput {
	in := profiles.CreateProfileInput{
		DisplayName:     b.DisplayName,
		Headline:        b.Headline,
		Bio:             b.Bio,
		Skills:          b.Skills,
		Credentials:     credentialsToDomain(b.Credentials),
		ServiceRadiusKm: b.ServiceRadiusKm,
		Photos:          b.Photos,
		IsPublished:     b.IsPublished,
	}
	if b.Rate != nil {
		r := rateInputToApp(*b.Rate)
		in.Rate = &r
	}
	if b.Location != nil {
		in.Location = &profiles.LocationInput{
			City:      b.Location.City,
			State:     b.Location.State,
			Latitude:  b.Location.Lat,
			Longitude: b.Location.Lng,
		}
	}
	return in
}

func updateProfileInputFromRequest(b UpdateProfileRequest) profiles.UpdateProfileInput {
	in := profiles.UpdateProfileInput{
		DisplayName:     optionalFromNullable(b.DisplayName),
		Headline:        optionalFromNullable(b.Headline),
		Bio:             optionalFromNullable(b.Bio),
		Skills:          optionalFromNullable(b.Skills),
		ServiceRadiusKm: optionalFromNullable(b.ServiceRadiusKm),
		Photos:          optionalFromNullable(b.Photos),
		IsPublished:     optionalFromNullable(b.IsPublished),
	}
	in.Credentials = mapOptional(optionalFromNullable(b.Credentials), credentialsToDomain)
	in.Rate = mapOptional(optionalFromNullable(b.Rate), rateInputToApp)
	in.Location = mapOptional(optionalFromNullable(b.Location), func(l LocationPatch) profiles.LocationPatch {
		return profiles.LocationPatch{
			City:      optionalFromNullable(l.City),
			State:     optionalFromNullable(l.State),
			Latitude:  optionalFromNullable(l.Lat),
			Longitude: optionalFromNullable(l.Lng),
		}
	})
	return in
}

func optionalFromNullable[T any](n nullable.Nullable[T]) profiles.Optional[T] {
	if !n.IsSpecified() {
		return profiles.Unspecified[T]()
	}
	if n.IsNull() {
		return profiles.Null[T]()
	}
	v, err := n.Get()
	if err != nil {
		return profiles.Unspecified[T]()
	}
	return profiles.Some(v)
}

func mapOptional[A, B any](o profiles.Optional[A], f func(A) B) profiles.Optional[B] {
	switch {
	case !o.IsSpecified():
		return profiles.Unspecified[B]()
	case o.IsNull():
		return profiles.Null[B]()
	default:
		return profiles.Some(f(o.Value()))
	}
}
