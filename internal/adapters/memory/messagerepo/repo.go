package messagerepo

import (
	"context"
	"sort"
	"sync"

	"github.com/localworks/localworks-api/internal/domain"
	"github.com/localworks/localworks-api/internal/ports/out/messagerepo"
)

// Repo is an in-memory implementation of messagerepo.Repository.
// It is safe for concurrent use.
type Repo struct {
	mu   sync.RWMutex
	byID map[domain.MessageID]domain.ContactMessage
}

func NewRepo() *Repo {
	return &Repo{byID: make(map[domain.MessageID]domain.ContactMessage)}
}

func (r *Repo) Create(ctx context.Context, m domain.ContactMessage) error {
	_ = ctx
	if m.ID == "" {
		return messagerepo.ErrAlreadyExists
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[m.ID]; ok {
		return messagerepo.ErrAlreadyExists
	}
	r.byID[m.ID] = cloneMessage(m)
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.MessageID) (domain.ContactMessage, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	if !ok {
		return domain.ContactMessage{}, messagerepo.ErrNotFound
	}
	return cloneMessage(m), nil
}

func (r *Repo) MarkRead(ctx context.Context, id domain.MessageID) (domain.ContactMessage, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return domain.ContactMessage{}, messagerepo.ErrNotFound
	}
	m.IsRead = true
	r.byID[id] = m
	return cloneMessage(m), nil
}

func (r *Repo) Delete(ctx context.Context, id domain.MessageID) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return messagerepo.ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *Repo) ListByProfile(ctx context.Context, profile domain.ProfileID) ([]domain.ContactMessage, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ContactMessage, 0)
	for _, m := range r.byID {
		if m.ToProfileID == profile {
			out = append(out, cloneMessage(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *Repo) CountUnreadByProfile(ctx context.Context, profile domain.ProfileID) (int, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, m := range r.byID {
		if m.ToProfileID == profile && !m.IsRead {
			n++
		}
	}
	return n, nil
}

func cloneMessage(m domain.ContactMessage) domain.ContactMessage {
	out := m
	if m.SenderPhone != nil {
		v := *m.SenderPhone
		out.SenderPhone = &v
	}
	return out
}
