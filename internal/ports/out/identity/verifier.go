package identity

import (
	"context"
	"errors"

	"github.com/localworks/localworks-api/internal/domain"
)

var (
	// ErrExpired indicates the credential was well-formed but past its expiry.
	ErrExpired = errors.New("identity token expired")

	// ErrMalformed indicates the credential could not be parsed.
	ErrMalformed = errors.New("identity token malformed")

	// ErrInvalid covers every other verification failure (signature, issuer, audience, claims).
	ErrInvalid = errors.New("identity token invalid")
)

// Identity is what the identity provider vouches for.
type Identity struct {
	Subject domain.SubjectID
	Email   string
	// Name is optional; empty when the provider did not supply one.
	Name string
}

// Verifier validates an opaque bearer credential issued by the identity provider.
//
// Errors wrap one of ErrExpired, ErrMalformed or ErrInvalid. Callers never retry.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}
