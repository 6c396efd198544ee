package config

import (
	"fmt"
	"time"
)

// JWTConfig configures JWT verification against a JWKS endpoint.
type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string

	ClockSkew time.Duration
	// JWKSRefreshInterval forces a periodic refresh to pick up key rotation.
	JWKSRefreshInterval time.Duration
	// JWKSMinRefreshInterval bounds refreshes triggered by an unknown kid.
	JWKSMinRefreshInterval time.Duration

	HTTPTimeout time.Duration
}

func (c JWTConfig) Validate() error {
	if c.Issuer == "" || c.Audience == "" || c.JWKSURL == "" {
		return fmt.Errorf("auth.jwt.issuer, auth.jwt.audience and auth.jwt.jwks_url are required when auth.mode=jwt")
	}
	if c.ClockSkew < 0 || c.JWKSRefreshInterval < 0 || c.JWKSMinRefreshInterval < 0 {
		return fmt.Errorf("auth.jwt durations must not be negative")
	}
	return nil
}
