// Package jwtverifier verifies RS256 identity tokens against a rotating JWKS.
package jwtverifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/localworks/localworks-api/internal/domain"
	"github.com/localworks/localworks-api/internal/platform/config"
	"github.com/localworks/localworks-api/internal/ports/out/identity"
)

var (
	errMissingKid = errors.New("token has no kid")
	errUnknownKid = errors.New("no jwks key for kid")
)

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Claims are the token claims this service reads.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Verifier checks RS256 tokens from one issuer and audience.
type Verifier struct {
	parser *jwt.Parser
	keys   *keySet
}

var _ identity.Verifier = (*Verifier)(nil)

func New(cfg config.JWTConfig) *Verifier {
	return NewWithOptions(cfg, nil, nil)
}

// NewWithOptions allows tests to inject the JWKS HTTP client and the clock
// used for both expiry checks and key refresh.
func NewWithOptions(cfg config.JWTConfig, httpClient *http.Client, clock Clock) *Verifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	if clock == nil {
		clock = realClock{}
	}
	return &Verifier{
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithAudience(cfg.Audience),
			jwt.WithLeeway(cfg.ClockSkew),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(clock.Now),
		),
		keys: &keySet{
			url:          cfg.JWKSURL,
			client:       httpClient,
			clock:        clock,
			refreshEvery: cfg.JWKSRefreshInterval,
			minGap:       cfg.JWKSMinRefreshInterval,
		},
	}
}

// Verify checks the RS256 signature against the JWKS key named by kid, then
// iss, aud, exp and nbf (when present). sub and email are required.
func (v *Verifier) Verify(ctx context.Context, token string) (identity.Identity, error) {
	var claims Claims
	_, err := v.parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errMissingKid
		}
		return v.keys.key(ctx, kid)
	})
	if err != nil {
		return identity.Identity{}, classify(err)
	}
	if claims.Subject == "" || strings.TrimSpace(claims.Email) == "" {
		return identity.Identity{}, fmt.Errorf("missing sub or email claim: %w", identity.ErrInvalid)
	}
	return identity.Identity{
		Subject: domain.SubjectID(claims.Subject),
		Email:   claims.Email,
		Name:    claims.Name,
	}, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%v: %w", err, identity.ErrExpired)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%v: %w", err, identity.ErrMalformed)
	default:
		return fmt.Errorf("%v: %w", err, identity.ErrInvalid)
	}
}
