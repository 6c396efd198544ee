package profiles

import "github.com/localworks/localworks-api/internal/domain"

// Optional is a tri-state field used to distinguish:
// - unspecified (omitted)
// - specified as null
// - specified with a value
type Optional[T any] struct {
	specified bool
	isNull    bool
	value     T
}

func Unspecified[T any]() Optional[T] { return Optional[T]{} }
func Null[T any]() Optional[T]        { return Optional[T]{specified: true, isNull: true} }
func Some[T any](v T) Optional[T]     { return Optional[T]{specified: true, value: v} }

func (o Optional[T]) IsSpecified() bool { return o.specified }
func (o Optional[T]) IsNull() bool      { return o.specified && o.isNull }
func (o Optional[T]) Value() T          { return o.value }

// RateInput is a full rate object; omitted parts take their defaults.
type RateInput struct {
	Currency *string
	Amount   *float64
	Unit     *string
}

type LocationInput struct {
	City      string
	State     string
	Latitude  *float64
	Longitude *float64
}

type CreateProfileInput struct {
	DisplayName     string
	Headline        string
	Bio             string
	Skills          []string
	Credentials     []domain.Credential
	Rate            *RateInput
	Location        *LocationInput
	ServiceRadiusKm *int
	Photos          []string
	IsPublished     bool
}

// LocationPatch updates location parts independently. Null clears the part.
type LocationPatch struct {
	City      Optional[string]
	State     Optional[string]
	Latitude  Optional[float64]
	Longitude Optional[float64]
}

// UpdateProfileInput is a partial update: unspecified fields are unchanged,
// null clears optional fields back to their empty or default value.
type UpdateProfileInput struct {
	DisplayName     Optional[string] // cannot be null
	Headline        Optional[string]
	Bio             Optional[string]
	Skills          Optional[[]string]
	Credentials     Optional[[]domain.Credential]
	Rate            Optional[RateInput] // null resets to the default rate
	Location        Optional[LocationPatch]
	ServiceRadiusKm Optional[int] // null resets to the default radius
	Photos          Optional[[]string]
	IsPublished     Optional[bool] // cannot be null
}
