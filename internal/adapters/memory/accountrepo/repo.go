package accountrepo

import (
	"context"
	"strings"
	"sync"

	"github.com/localworks/localworks-api/internal/domain"
	"github.com/localworks/localworks-api/internal/ports/out/accountrepo"
)

// Repo is an in-memory implementation of accountrepo.Repository.
// It is safe for concurrent use.
type Repo struct {
	mu sync.RWMutex

	byID      map[domain.AccountID]domain.Account
	idBySub   map[domain.SubjectID]domain.AccountID
	idByEmail map[string]domain.AccountID
}

func NewRepo() *Repo {
	return &Repo{
		byID:      make(map[domain.AccountID]domain.Account),
		idBySub:   make(map[domain.SubjectID]domain.AccountID),
		idByEmail: make(map[string]domain.AccountID),
	}
}

func (r *Repo) Create(ctx context.Context, a domain.Account) error {
	_ = ctx
	if a.ID == "" {
		return accountrepo.ErrAlreadyExists
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[a.ID]; ok {
		return accountrepo.ErrAlreadyExists
	}
	if _, ok := r.idBySub[a.Subject]; ok {
		return accountrepo.ErrSubjectAlreadyBound
	}
	emailKey := strings.ToLower(a.Email)
	if _, ok := r.idByEmail[emailKey]; ok {
		return accountrepo.ErrEmailInUse
	}

	r.byID[a.ID] = a
	r.idBySub[a.Subject] = a.ID
	r.idByEmail[emailKey] = a.ID
	return nil
}

func (r *Repo) Update(ctx context.Context, a domain.Account) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[a.ID]
	if !ok {
		return accountrepo.ErrNotFound
	}
	// Subject binding is immutable.
	if existing.Subject != a.Subject {
		return accountrepo.ErrSubjectAlreadyBound
	}
	oldKey := strings.ToLower(existing.Email)
	newKey := strings.ToLower(a.Email)
	if newKey != oldKey {
		if owner, ok := r.idByEmail[newKey]; ok && owner != a.ID {
			return accountrepo.ErrEmailInUse
		}
		delete(r.idByEmail, oldKey)
		r.idByEmail[newKey] = a.ID
	}

	r.byID[a.ID] = a
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.AccountID) (domain.Account, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return domain.Account{}, accountrepo.ErrNotFound
	}
	return a, nil
}

func (r *Repo) GetBySubject(ctx context.Context, subject domain.SubjectID) (domain.Account, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.idBySub[subject]
	if !ok {
		return domain.Account{}, accountrepo.ErrNotFound
	}
	return r.byID[id], nil
}

func (r *Repo) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.idByEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return domain.Account{}, accountrepo.ErrNotFound
	}
	return r.byID[id], nil
}
