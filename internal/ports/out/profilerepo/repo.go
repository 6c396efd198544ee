package profilerepo

import (
	"context"

	"github.com/localworks/localworks-api/internal/domain"
)

// Repository provides access to persisted tradesperson profiles.
//
// Result ordering expectations:
//   - ListPublished returns published profiles only, ordered by AvgRating
//     descending with absent ratings last, then CreatedAt descending, then ID
//     ascending.
type Repository interface {
	Create(ctx context.Context, p domain.Profile) error
	Update(ctx context.Context, p domain.Profile) error

	GetByID(ctx context.Context, id domain.ProfileID) (domain.Profile, error)
	GetByOwner(ctx context.Context, owner domain.AccountID) (domain.Profile, error)

	ListPublished(ctx context.Context) ([]domain.Profile, error)
}
