package httpapi

import (
	"context"

	"github.com/localworks/localworks-api/internal/domain"
)

type accountKey struct{}

func WithAccount(ctx context.Context, a domain.Account) context.Context {
	return context.WithValue(ctx, accountKey{}, a)
}

// AccountFromContext returns the authenticated account, or nil for an
// anonymous request.
func AccountFromContext(ctx context.Context) *domain.Account {
	a, ok := ctx.Value(accountKey{}).(domain.Account)
	if !ok || a.ID == "" {
		return nil
	}
	return &a
}
