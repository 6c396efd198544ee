package profilerepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/localworks/localworks-api/internal/adapters/postgres"
	"github.com/localworks/localworks-api/internal/domain"
	"github.com/localworks/localworks-api/internal/ports/out/profilerepo"
)

const (
	ownerUnique = "profiles_owner_unique"
	primaryKey  = "profiles_pkey"
)

// Repo is a Postgres implementation of profilerepo.Repository.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const selectColumns = `
	id, owner_id, display_name, headline, bio, skills, credentials,
	rate_currency, rate_amount, rate_unit,
	city, state, latitude, longitude, service_radius_km,
	photos, is_published, avg_rating, review_count, created_at, updated_at`

// credentialRow is the jsonb shape of a stored credential.
type credentialRow struct {
	Label  string `json:"label"`
	Issuer string `json:"issuer"`
	ID     string `json:"id"`
}

func (r *Repo) Create(ctx context.Context, p domain.Profile) error {
	if r.pool == nil {
		return postgres.ErrNilPool
	}
	id, err := uuid.Parse(string(p.ID))
	if err != nil {
		return fmt.Errorf("profile id: %w", err)
	}
	owner, err := uuid.Parse(string(p.OwnerID))
	if err != nil {
		return fmt.Errorf("owner id: %w", err)
	}
	creds, err := encodeCredentials(p.Credentials)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO profiles (
			id, owner_id, display_name, headline, bio, skills, credentials,
			rate_currency, rate_amount, rate_unit,
			city, state, latitude, longitude, service_radius_km,
			photos, is_published, avg_rating, review_count, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	`,
		id,
		owner,
		p.DisplayName,
		p.Headline,
		p.Bio,
		nonNil(p.Skills),
		creds,
		p.Rate.Currency,
		p.Rate.Amount,
		string(p.Rate.Unit),
		p.Location.City,
		p.Location.State,
		p.Location.Latitude,
		p.Location.Longitude,
		p.ServiceRadiusKm,
		nonNil(p.Photos),
		p.IsPublished,
		p.AvgRating,
		p.ReviewCount,
		p.CreatedAt.UTC(),
		p.UpdatedAt.UTC(),
	)
	if err != nil {
		switch {
		case postgres.IsUniqueViolation(err, ownerUnique):
			return profilerepo.ErrOwnerAlreadyHasProfile
		case postgres.IsUniqueViolation(err, primaryKey):
			return profilerepo.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Update rewrites the mutable fields. Owner, rating aggregates and CreatedAt
// are never changed here.
func (r *Repo) Update(ctx context.Context, p domain.Profile) error {
	if r.pool == nil {
		return postgres.ErrNilPool
	}
	id, err := uuid.Parse(string(p.ID))
	if err != nil {
		return profilerepo.ErrNotFound
	}
	creds, err := encodeCredentials(p.Credentials)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE profiles
		SET display_name = $2,
		    headline = $3,
		    bio = $4,
		    skills = $5,
		    credentials = $6,
		    rate_currency = $7,
		    rate_amount = $8,
		    rate_unit = $9,
		    city = $10,
		    state = $11,
		    latitude = $12,
		    longitude = $13,
		    service_radius_km = $14,
		    photos = $15,
		    is_published = $16,
		    updated_at = $17
		WHERE id = $1
	`,
		id,
		p.DisplayName,
		p.Headline,
		p.Bio,
		nonNil(p.Skills),
		creds,
		p.Rate.Currency,
		p.Rate.Amount,
		string(p.Rate.Unit),
		p.Location.City,
		p.Location.State,
		p.Location.Latitude,
		p.Location.Longitude,
		p.ServiceRadiusKm,
		nonNil(p.Photos),
		p.IsPublished,
		p.UpdatedAt.UTC(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return profilerepo.ErrNotFound
	}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.ProfileID) (domain.Profile, error) {
	if r.pool == nil {
		return domain.Profile{}, postgres.ErrNilPool
	}
	uid, err := uuid.Parse(string(id))
	if err != nil {
		return domain.Profile{}, profilerepo.ErrNotFound
	}
	return scanProfile(r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM profiles WHERE id = $1`, uid))
}

func (r *Repo) GetByOwner(ctx context.Context, owner domain.AccountID) (domain.Profile, error) {
	if r.pool == nil {
		return domain.Profile{}, postgres.ErrNilPool
	}
	uid, err := uuid.Parse(string(owner))
	if err != nil {
		return domain.Profile{}, profilerepo.ErrNotFound
	}
	return scanProfile(r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM profiles WHERE owner_id = $1`, uid))
}

func (r *Repo) ListPublished(ctx context.Context) ([]domain.Profile, error) {
	if r.pool == nil {
		return nil, postgres.ErrNilPool
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+selectColumns+`
		FROM profiles
		WHERE is_published
		ORDER BY avg_rating DESC NULLS LAST, created_at DESC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProfile(row pgx.Row) (domain.Profile, error) {
	var (
		p         domain.Profile
		id, owner uuid.UUID
		creds     []byte
		unit      string
	)
	err := row.Scan(
		&id,
		&owner,
		&p.DisplayName,
		&p.Headline,
		&p.Bio,
		&p.Skills,
		&creds,
		&p.Rate.Currency,
		&p.Rate.Amount,
		&unit,
		&p.Location.City,
		&p.Location.State,
		&p.Location.Latitude,
		&p.Location.Longitude,
		&p.ServiceRadiusKm,
		&p.Photos,
		&p.IsPublished,
		&p.AvgRating,
		&p.ReviewCount,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Profile{}, profilerepo.ErrNotFound
		}
		return domain.Profile{}, err
	}
	p.ID = domain.ProfileID(id.String())
	p.OwnerID = domain.AccountID(owner.String())
	p.Rate.Unit = domain.RateUnit(unit)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	if p.Credentials, err = decodeCredentials(creds); err != nil {
		return domain.Profile{}, err
	}
	return p, nil
}

func encodeCredentials(in []domain.Credential) ([]byte, error) {
	rows := make([]credentialRow, 0, len(in))
	for _, c := range in {
		rows = append(rows, credentialRow{Label: c.Label, Issuer: c.Issuer, ID: c.ID})
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("encode credentials: %w", err)
	}
	return b, nil
}

func decodeCredentials(b []byte) ([]domain.Credential, error) {
	var rows []credentialRow
	if len(b) > 0 {
		if err := json.Unmarshal(b, &rows); err != nil {
			return nil, fmt.Errorf("decode credentials: %w", err)
		}
	}
	out := make([]domain.Credential, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Credential{Label: r.Label, Issuer: r.Issuer, ID: r.ID})
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
