// Package devverifier is a local-development identity verifier. It trusts the
// token text as-is and must never be enabled in production.
//
// Token format: "<subject>;<email>[;<name>]".
package devverifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/localworks/localworks-api/internal/domain"
	"github.com/localworks/localworks-api/internal/ports/out/identity"
)

type Verifier struct{}

func New() Verifier { return Verifier{} }

func (Verifier) Verify(ctx context.Context, token string) (identity.Identity, error) {
	_ = ctx
	parts := strings.Split(strings.TrimSpace(token), ";")
	if len(parts) < 2 || len(parts) > 3 {
		return identity.Identity{}, fmt.Errorf("dev token must be subject;email[;name]: %w", identity.ErrMalformed)
	}
	sub := strings.TrimSpace(parts[0])
	email := strings.TrimSpace(parts[1])
	if sub == "" || email == "" {
		return identity.Identity{}, fmt.Errorf("dev token missing subject or email: %w", identity.ErrInvalid)
	}
	id := identity.Identity{Subject: domain.SubjectID(sub), Email: email}
	if len(parts) == 3 {
		id.Name = strings.TrimSpace(parts[2])
	}
	return id, nil
}

// Token renders an identity in the format Verify accepts.
func Token(subject, email, name string) string {
	if name == "" {
		return subject + ";" + email
	}
	return subject + ";" + email + ";" + name
}
