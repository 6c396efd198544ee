// Package idempotency is the port for replaying retried writes that carry an
// Idempotency-Key header.
package idempotency

import (
	"context"
	"time"

	"github.com/localworks/localworks-api/internal/domain"
)

// Key is the Idempotency-Key header value.
type Key string

// Fingerprint scopes a stored record to one caller, one route and one key.
//
// Two records exist per accepted request: the key record (empty BodyHash)
// whose Body is the hash of the first payload seen, and the response record
// (BodyHash set) holding the replayable response.
type Fingerprint struct {
	Key      Key
	Subject  domain.SubjectID
	Method   string
	Route    string
	BodyHash string
}

// KeyRecord returns the fingerprint of the key record for fp.
func (fp Fingerprint) KeyRecord() Fingerprint {
	fp.BodyHash = ""
	return fp
}

// ForBody returns the fingerprint of the response record for a payload hash.
func (fp Fingerprint) ForBody(hash string) Fingerprint {
	fp.BodyHash = hash
	return fp
}

type Record struct {
	StatusCode  int
	ContentType string
	Body        []byte
	CreatedAt   time.Time
}

// Store persists records. Implementations treat records older than their
// retention window as absent.
type Store interface {
	Get(ctx context.Context, fp Fingerprint) (Record, bool, error)
	Put(ctx context.Context, fp Fingerprint, rec Record) error
}

// Purger is implemented by stores that can drop expired records in bulk.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}
