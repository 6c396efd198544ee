// Package jwks_testutil serves a swappable JWKS and mints RS256 tokens for tests
// and local development.
package jwks_testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Keypair struct {
	Kid     string
	Private *rsa.PrivateKey
}

func GenerateRSAKeypair(kid string) (Keypair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return Keypair{}, err
	}
	return Keypair{Kid: kid, Private: priv}, nil
}

type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type JWKS struct {
	Keys []JWK `json:"keys"`
}

// PublicJWKS renders the public halves of keys as a JWK set.
func PublicJWKS(keys []Keypair) JWKS {
	out := JWKS{Keys: make([]JWK, 0, len(keys))}
	for _, kp := range keys {
		pub := kp.Private.PublicKey
		out.Keys = append(out.Keys, JWK{
			Kty: "RSA",
			Use: "sig",
			Alg: "RS256",
			Kid: kp.Kid,
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			// e is a big-endian unsigned int.
			E: base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}
	return out
}

// NewRotatingJWKSServer returns a JWKS server whose key set can be swapped at
// runtime through the returned setter.
func NewRotatingJWKSServer() (*httptest.Server, func(keys []Keypair)) {
	var jwksJSON atomic.Value // string
	jwksJSON.Store(`{"keys":[]}`)

	setKeys := func(keys []Keypair) {
		b, _ := json.Marshal(PublicJWKS(keys))
		jwksJSON.Store(string(b))
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(jwksJSON.Load().(string)))
	}))

	return srv, setKeys
}

// TokenSpec describes the claims of a minted token.
type TokenSpec struct {
	Issuer   string
	Audience []string
	Subject  string
	Email    string
	Name     string

	Now time.Time
	// TTL is added to Now for exp; negative values mint an expired token.
	TTL time.Duration
	// NotBefore, when set, is added to Now for nbf.
	NotBefore *time.Duration
}

// MintRS256JWT signs a token for spec with kp, setting the kid header.
func MintRS256JWT(kp Keypair, spec TokenSpec) (string, error) {
	claims := jwt.MapClaims{
		"iss": spec.Issuer,
		"aud": spec.Audience,
		"sub": spec.Subject,
		"iat": spec.Now.Unix(),
		"exp": spec.Now.Add(spec.TTL).Unix(),
		"jti": uuid.NewString(),
	}
	if spec.Email != "" {
		claims["email"] = spec.Email
	}
	if spec.Name != "" {
		claims["name"] = spec.Name
	}
	if spec.NotBefore != nil {
		claims["nbf"] = spec.Now.Add(*spec.NotBefore).Unix()
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kp.Kid
	return tok.SignedString(kp.Private)
}
