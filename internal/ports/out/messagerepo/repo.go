package messagerepo

import (
	"context"

	"github.com/localworks/localworks-api/internal/domain"
)

// Repository provides access to persisted contact messages.
//
// ListByProfile returns messages newest first (CreatedAt descending, ID
// descending on ties).
type Repository interface {
	Create(ctx context.Context, m domain.ContactMessage) error
	GetByID(ctx context.Context, id domain.MessageID) (domain.ContactMessage, error)

	// MarkRead sets IsRead=true. Marking an already-read message is not an error.
	MarkRead(ctx context.Context, id domain.MessageID) (domain.ContactMessage, error)
	Delete(ctx context.Context, id domain.MessageID) error

	ListByProfile(ctx context.Context, profile domain.ProfileID) ([]domain.ContactMessage, error)
	CountUnreadByProfile(ctx context.Context, profile domain.ProfileID) (int, error)
}
