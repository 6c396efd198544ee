package jwtverifier

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const maxJWKSBytes = 1 << 20

// keySet caches the issuer's signing keys by kid.
//
// The cache is refetched when it is older than refreshEvery, or when a token
// names an unknown kid and at least minGap has passed since the last fetch.
// Concurrent refetches collapse into one request.
type keySet struct {
	url          string
	client       *http.Client
	clock        Clock
	refreshEvery time.Duration
	minGap       time.Duration

	group singleflight.Group

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func (ks *keySet) lookup(kid string) (*rsa.PublicKey, time.Time) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.keys[kid], ks.fetchedAt
}

func (ks *keySet) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	pub, fetchedAt := ks.lookup(kid)
	if ks.due(pub == nil, fetchedAt) {
		if err := ks.refetch(ctx); err != nil {
			return nil, err
		}
		pub, _ = ks.lookup(kid)
	}
	if pub == nil {
		return nil, errUnknownKid
	}
	return pub, nil
}

func (ks *keySet) due(missing bool, fetchedAt time.Time) bool {
	if fetchedAt.IsZero() {
		return true
	}
	age := ks.clock.Now().Sub(fetchedAt)
	if ks.refreshEvery > 0 && age >= ks.refreshEvery {
		return true
	}
	return missing && (ks.minGap <= 0 || age >= ks.minGap)
}

func (ks *keySet) refetch(ctx context.Context) error {
	// The shared fetch outlives any single caller; the client timeout bounds it.
	ch := ks.group.DoChan(ks.url, func() (any, error) {
		keys, err := fetchJWKS(context.WithoutCancel(ctx), ks.client, ks.url)
		if err != nil {
			return nil, err
		}
		ks.mu.Lock()
		ks.keys = keys
		ks.fetchedAt = ks.clock.Now()
		ks.mu.Unlock()
		return nil, nil
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func fetchJWKS(ctx context.Context, client *http.Client, url string) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jwks fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("jwks fetch: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBytes))
	if err != nil {
		return nil, fmt.Errorf("jwks read: %w", err)
	}
	return decodeJWKS(body)
}

type jsonWebKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// decodeJWKS keeps RSA signing keys only; other entries are ignored.
func decodeJWKS(b []byte) (map[string]*rsa.PublicKey, error) {
	var doc struct {
		Keys []jsonWebKey `json:"keys"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("jwks decode: %w", err)
	}
	out := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := k.rsaPublicKey()
		if err != nil {
			return nil, fmt.Errorf("jwks key %q: %w", k.Kid, err)
		}
		out[k.Kid] = pub
	}
	if len(out) == 0 {
		return nil, errors.New("jwks has no usable RSA signing keys")
	}
	return out, nil
}

func (k jsonWebKey) rsaPublicKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil || len(n) == 0 {
		return nil, errors.New("bad modulus")
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil || len(e) == 0 {
		return nil, errors.New("bad exponent")
	}
	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() < 3 || exp.Int64() > 1<<31-1 {
		return nil, errors.New("exponent out of range")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}
