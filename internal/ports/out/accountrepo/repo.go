package accountrepo

import (
	"context"

	"github.com/localworks/localworks-api/internal/domain"
)

// Repository provides access to persisted accounts.
//
// Email lookups and uniqueness are case-insensitive. Implementations store the
// email exactly as given; the application layer lower-cases it first.
type Repository interface {
	Create(ctx context.Context, a domain.Account) error
	Update(ctx context.Context, a domain.Account) error

	GetByID(ctx context.Context, id domain.AccountID) (domain.Account, error)
	GetBySubject(ctx context.Context, subject domain.SubjectID) (domain.Account, error)
	GetByEmail(ctx context.Context, email string) (domain.Account, error)
}
