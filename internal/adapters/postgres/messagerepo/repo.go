package messagerepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/localworks/localworks-api/internal/adapters/postgres"
	"github.com/localworks/localworks-api/internal/domain"
	"github.com/localworks/localworks-api/internal/ports/out/messagerepo"
)

const primaryKey = "contact_messages_pkey"

// Repo is a Postgres implementation of messagerepo.Repository.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const selectColumns = `
	id, from_account_id, to_profile_id, sender_name, sender_email, sender_phone,
	message, is_read, created_at`

func (r *Repo) Create(ctx context.Context, m domain.ContactMessage) error {
	if r.pool == nil {
		return postgres.ErrNilPool
	}
	id, err := uuid.Parse(string(m.ID))
	if err != nil {
		return fmt.Errorf("message id: %w", err)
	}
	from, err := uuid.Parse(string(m.FromAccountID))
	if err != nil {
		return fmt.Errorf("from account id: %w", err)
	}
	to, err := uuid.Parse(string(m.ToProfileID))
	if err != nil {
		return fmt.Errorf("to profile id: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO contact_messages (
			id, from_account_id, to_profile_id, sender_name, sender_email, sender_phone,
			message, is_read, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		id,
		from,
		to,
		m.SenderName,
		m.SenderEmail,
		m.SenderPhone,
		m.Message,
		m.IsRead,
		m.CreatedAt.UTC(),
	)
	if postgres.IsUniqueViolation(err, primaryKey) {
		return messagerepo.ErrAlreadyExists
	}
	return err
}

func (r *Repo) GetByID(ctx context.Context, id domain.MessageID) (domain.ContactMessage, error) {
	if r.pool == nil {
		return domain.ContactMessage{}, postgres.ErrNilPool
	}
	uid, err := uuid.Parse(string(id))
	if err != nil {
		return domain.ContactMessage{}, messagerepo.ErrNotFound
	}
	return scanMessage(r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM contact_messages WHERE id = $1`, uid))
}

func (r *Repo) MarkRead(ctx context.Context, id domain.MessageID) (domain.ContactMessage, error) {
	if r.pool == nil {
		return domain.ContactMessage{}, postgres.ErrNilPool
	}
	uid, err := uuid.Parse(string(id))
	if err != nil {
		return domain.ContactMessage{}, messagerepo.ErrNotFound
	}
	return scanMessage(r.pool.QueryRow(ctx, `
		UPDATE contact_messages
		SET is_read = true
		WHERE id = $1
		RETURNING `+selectColumns, uid))
}

func (r *Repo) Delete(ctx context.Context, id domain.MessageID) error {
	if r.pool == nil {
		return postgres.ErrNilPool
	}
	uid, err := uuid.Parse(string(id))
	if err != nil {
		return messagerepo.ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM contact_messages WHERE id = $1`, uid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return messagerepo.ErrNotFound
	}
	return nil
}

func (r *Repo) ListByProfile(ctx context.Context, profile domain.ProfileID) ([]domain.ContactMessage, error) {
	if r.pool == nil {
		return nil, postgres.ErrNilPool
	}
	out := []domain.ContactMessage{}
	uid, err := uuid.Parse(string(profile))
	if err != nil {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+selectColumns+`
		FROM contact_messages
		WHERE to_profile_id = $1
		ORDER BY created_at DESC, id DESC
	`, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Repo) CountUnreadByProfile(ctx context.Context, profile domain.ProfileID) (int, error) {
	if r.pool == nil {
		return 0, postgres.ErrNilPool
	}
	uid, err := uuid.Parse(string(profile))
	if err != nil {
		return 0, nil
	}
	var n int
	err = r.pool.QueryRow(ctx,
		`SELECT count(*) FROM contact_messages WHERE to_profile_id = $1 AND NOT is_read`, uid,
	).Scan(&n)
	return n, err
}

func scanMessage(row pgx.Row) (domain.ContactMessage, error) {
	var (
		m            domain.ContactMessage
		id, from, to uuid.UUID
	)
	err := row.Scan(&id, &from, &to, &m.SenderName, &m.SenderEmail, &m.SenderPhone, &m.Message, &m.IsRead, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ContactMessage{}, messagerepo.ErrNotFound
		}
		return domain.ContactMessage{}, err
	}
	m.ID = domain.MessageID(id.String())
	m.FromAccountID = domain.AccountID(from.String())
	m.ToProfileID = domain.ProfileID(to.String())
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}
