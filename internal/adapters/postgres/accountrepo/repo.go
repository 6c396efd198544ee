package accountrepo

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/localworks/localworks-api/internal/adapters/postgres"
	"github.com/localworks/localworks-api/internal/domain"
	"github.com/localworks/localworks-api/internal/ports/out/accountrepo"
)

const (
	subjectUnique = "accounts_subject_unique"
	emailUnique   = "accounts_email_unique"
	primaryKey    = "accounts_pkey"
)

// Repo is a Postgres implementation of accountrepo.Repository. Subjects are
// scoped to the configured token issuer.
type Repo struct {
	pool   *pgxpool.Pool
	issuer string
}

func NewRepo(pool *pgxpool.Pool, jwtIssuer string) *Repo {
	return &Repo{pool: pool, issuer: jwtIssuer}
}

const selectColumns = `id, subject_sub, display_name, email, role, created_at, updated_at`

func (r *Repo) Create(ctx context.Context, a domain.Account) error {
	if r.pool == nil {
		return postgres.ErrNilPool
	}
	id, err := uuid.Parse(string(a.ID))
	if err != nil {
		return accountrepo.ErrAlreadyExists
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO accounts (
			id, subject_iss, subject_sub, display_name, email, role, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		id,
		r.issuer,
		string(a.Subject),
		a.DisplayName,
		a.Email,
		string(a.Role),
		a.CreatedAt.UTC(),
		a.UpdatedAt.UTC(),
	)
	return mapWriteError(err)
}

func (r *Repo) Update(ctx context.Context, a domain.Account) error {
	if r.pool == nil {
		return postgres.ErrNilPool
	}
	id, err := uuid.Parse(string(a.ID))
	if err != nil {
		return accountrepo.ErrNotFound
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var sub string
		err := tx.QueryRow(ctx, `SELECT subject_sub FROM accounts WHERE id = $1 FOR UPDATE`, id).Scan(&sub)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return accountrepo.ErrNotFound
			}
			return err
		}
		// Subject binding is immutable.
		if sub != string(a.Subject) {
			return accountrepo.ErrSubjectAlreadyBound
		}
		_, err = tx.Exec(ctx, `
			UPDATE accounts
			SET display_name = $2,
			    email = $3,
			    role = $4,
			    updated_at = $5
			WHERE id = $1
		`,
			id,
			a.DisplayName,
			a.Email,
			string(a.Role),
			a.UpdatedAt.UTC(),
		)
		return mapWriteError(err)
	})
}

func (r *Repo) GetByID(ctx context.Context, id domain.AccountID) (domain.Account, error) {
	if r.pool == nil {
		return domain.Account{}, postgres.ErrNilPool
	}
	uid, err := uuid.Parse(string(id))
	if err != nil {
		return domain.Account{}, accountrepo.ErrNotFound
	}
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM accounts WHERE id = $1`, uid))
}

func (r *Repo) GetBySubject(ctx context.Context, subject domain.SubjectID) (domain.Account, error) {
	if r.pool == nil {
		return domain.Account{}, postgres.ErrNilPool
	}
	return scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM accounts WHERE subject_iss = $1 AND subject_sub = $2`,
		r.issuer, string(subject),
	))
}

func (r *Repo) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	if r.pool == nil {
		return domain.Account{}, postgres.ErrNilPool
	}
	return scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM accounts WHERE lower(email) = $1`,
		strings.ToLower(strings.TrimSpace(email)),
	))
}

func scanAccount(row pgx.Row) (domain.Account, error) {
	var (
		a    domain.Account
		id   uuid.UUID
		sub  string
		role string
	)
	if err := row.Scan(&id, &sub, &a.DisplayName, &a.Email, &role, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, accountrepo.ErrNotFound
		}
		return domain.Account{}, err
	}
	a.ID = domain.AccountID(id.String())
	a.Subject = domain.SubjectID(sub)
	a.Role = domain.Role(role)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case postgres.IsUniqueViolation(err, primaryKey):
		return accountrepo.ErrAlreadyExists
	case postgres.IsUniqueViolation(err, subjectUnique):
		return accountrepo.ErrSubjectAlreadyBound
	case postgres.IsUniqueViolation(err, emailUnique):
		return accountrepo.ErrEmailInUse
	}
	return err
}
