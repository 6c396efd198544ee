package httpapi

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/localworks/localworks-api/internal/app/apperr"
	"github.com/localworks/localworks-api/internal/domain"
)

// Authenticator resolves a bearer credential to an account.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Account, error)
}

// NewAuthMiddleware resolves Authorization: Bearer <token> to an account and
// stores it in the request context.
//
// A request without an Authorization header proceeds anonymously; handlers
// decide whether that is acceptable. A header that is present but malformed,
// or a token that fails verification, is rejected with 401.
func NewAuthMiddleware(auth Authenticator, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acc, err := resolveAccount(r, auth)
			if err != nil {
				writeError(w, r, log, err)
				return
			}
			next.ServeHTTP(w, withOptionalAccount(r, acc))
		})
	}
}

// NewOptionalAuthMiddleware is the variant for public reads: a credential
// that cannot be resolved to an account (malformed, expired, invalid or not
// yet exchanged) downgrades the request to anonymous instead of failing it.
// Infrastructure errors still fail the request.
func NewOptionalAuthMiddleware(auth Authenticator, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acc, err := resolveAccount(r, auth)
			if err != nil {
				if ae, ok := apperr.As(err); !ok || ae.Status != http.StatusUnauthorized {
					writeError(w, r, log, err)
					return
				}
				log.Debug("ignoring unusable credential on public route",
					zap.String("route", r.URL.Path),
					zap.Error(err),
				)
				acc = nil
			}
			next.ServeHTTP(w, withOptionalAccount(r, acc))
		})
	}
}

// resolveAccount returns nil without error when no Authorization header is sent.
func resolveAccount(r *http.Request, auth Authenticator) (*domain.Account, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, nil
	}
	raw, ok := bearerToken(header)
	if !ok {
		return nil, apperr.Unauthorized(apperr.CodeTokenMalformed, "malformed Authorization header")
	}
	acc, err := auth.Authenticate(r.Context(), raw)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func withOptionalAccount(r *http.Request, acc *domain.Account) *http.Request {
	if acc == nil {
		return r
	}
	return r.WithContext(WithAccount(r.Context(), *acc))
}

func bearerToken(header string) (string, bool) {
	scheme, raw, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}
