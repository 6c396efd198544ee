// Package idempotency stores send-message replay records in Postgres.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/localworks/localworks-api/internal/adapters/postgres"
	"github.com/localworks/localworks-api/internal/ports/out/idempotency"
)

var (
	_ idempotency.Store  = (*Store)(nil)
	_ idempotency.Purger = (*Store)(nil)
)

// Store keys records by the fingerprint plus the token issuer, so subjects
// from different issuers never share a key space.
type Store struct {
	pool   *pgxpool.Pool
	issuer string

	// Retention bounds how long a record can be replayed; zero keeps records forever.
	Retention time.Duration
	now       func() time.Time
}

func NewStore(pool *pgxpool.Pool, jwtIssuer string) *Store {
	return &Store{
		pool:   pool,
		issuer: jwtIssuer,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

const fingerprintMatch = `idempotency_key = $1 AND subject_iss = $2 AND subject_sub = $3
	AND method = $4 AND route = $5 AND body_hash = $6`

func (s *Store) fingerprintArgs(fp idempotency.Fingerprint) []any {
	return []any{string(fp.Key), s.issuer, string(fp.Subject), fp.Method, fp.Route, fp.BodyHash}
}

// cutoff is the oldest created_at still replayable, or nil without retention.
func (s *Store) cutoff() *time.Time {
	if s.Retention <= 0 {
		return nil
	}
	c := s.now().Add(-s.Retention)
	return &c
}

func (s *Store) Get(ctx context.Context, fp idempotency.Fingerprint) (idempotency.Record, bool, error) {
	if s.pool == nil {
		return idempotency.Record{}, false, postgres.ErrNilPool
	}
	args := append(s.fingerprintArgs(fp), s.cutoff())
	var rec idempotency.Record
	err := s.pool.QueryRow(ctx, `
		SELECT status_code, content_type, body, created_at
		FROM idempotency_keys
		WHERE `+fingerprintMatch+`
		  AND ($7::timestamptz IS NULL OR created_at >= $7)`,
		args...,
	).Scan(&rec.StatusCode, &rec.ContentType, &rec.Body, &rec.CreatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return idempotency.Record{}, false, nil
	case err != nil:
		return idempotency.Record{}, false, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, true, nil
}

// Put upserts so that a retry after an expired record starts a fresh window.
func (s *Store) Put(ctx context.Context, fp idempotency.Fingerprint, rec idempotency.Record) error {
	if s.pool == nil {
		return postgres.ErrNilPool
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	args := append(s.fingerprintArgs(fp), rec.StatusCode, rec.ContentType, rec.Body, rec.CreatedAt.UTC())
	_, err := s.pool.Exec(ctx, `
		INSERT INTO idempotency_keys
			(idempotency_key, subject_iss, subject_sub, method, route, body_hash,
			 status_code, content_type, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (idempotency_key, subject_iss, subject_sub, method, route, body_hash)
		DO UPDATE SET status_code = EXCLUDED.status_code,
		              content_type = EXCLUDED.content_type,
		              body = EXCLUDED.body,
		              created_at = EXCLUDED.created_at`,
		args...,
	)
	return err
}

// Purge deletes records past the retention window.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	if s.pool == nil {
		return 0, postgres.ErrNilPool
	}
	c := s.cutoff()
	if c == nil {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, *c)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
