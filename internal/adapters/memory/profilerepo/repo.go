package profilerepo

import (
	"context"
	"sort"
	"sync"

	"github.com/localworks/localworks-api/internal/domain"
	"github.com/localworks/localworks-api/internal/ports/out/profilerepo"
)

// Repo is an in-memory implementation of profilerepo.Repository.
// It is safe for concurrent use.
type Repo struct {
	mu sync.RWMutex

	byID      map[domain.ProfileID]domain.Profile
	idByOwner map[domain.AccountID]domain.ProfileID
}

func NewRepo() *Repo {
	return &Repo{
		byID:      make(map[domain.ProfileID]domain.Profile),
		idByOwner: make(map[domain.AccountID]domain.ProfileID),
	}
}

func (r *Repo) Create(ctx context.Context, p domain.Profile) error {
	_ = ctx
	if p.ID == "" {
		return profilerepo.ErrAlreadyExists
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[p.ID]; ok {
		return profilerepo.ErrAlreadyExists
	}
	if _, ok := r.idByOwner[p.OwnerID]; ok {
		return profilerepo.ErrOwnerAlreadyHasProfile
	}
	r.byID[p.ID] = cloneProfile(p)
	r.idByOwner[p.OwnerID] = p.ID
	return nil
}

func (r *Repo) Update(ctx context.Context, p domain.Profile) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[p.ID]
	if !ok {
		return profilerepo.ErrNotFound
	}
	// Ownership and creation time are fixed at create.
	p.OwnerID = existing.OwnerID
	p.CreatedAt = existing.CreatedAt
	r.byID[p.ID] = cloneProfile(p)
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.ProfileID) (domain.Profile, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return domain.Profile{}, profilerepo.ErrNotFound
	}
	return cloneProfile(p), nil
}

func (r *Repo) GetByOwner(ctx context.Context, owner domain.AccountID) (domain.Profile, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.idByOwner[owner]
	if !ok {
		return domain.Profile{}, profilerepo.ErrNotFound
	}
	return cloneProfile(r.byID[id]), nil
}

func (r *Repo) ListPublished(ctx context.Context) ([]domain.Profile, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Profile, 0, len(r.byID))
	for _, p := range r.byID {
		if !p.IsPublished {
			continue
		}
		out = append(out, cloneProfile(p))
	}
	SortDirectory(out)
	return out, nil
}

// SortDirectory orders profiles by rating (absent last), then newest first.
func SortDirectory(ps []domain.Profile) {
	sort.SliceStable(ps, func(i, j int) bool {
		ri, rj := ps[i].AvgRating, ps[j].AvgRating
		switch {
		case ri != nil && rj == nil:
			return true
		case ri == nil && rj != nil:
			return false
		case ri != nil && rj != nil && *ri != *rj:
			return *ri > *rj
		}
		if !ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].CreatedAt.After(ps[j].CreatedAt)
		}
		return ps[i].ID < ps[j].ID
	})
}

func cloneProfile(p domain.Profile) domain.Profile {
	out := p
	out.Skills = append([]string(nil), p.Skills...)
	out.Credentials = append([]domain.Credential(nil), p.Credentials...)
	out.Photos = append([]string(nil), p.Photos...)
	out.Location.Latitude = cloneFloatPtr(p.Location.Latitude)
	out.Location.Longitude = cloneFloatPtr(p.Location.Longitude)
	out.AvgRating = cloneFloatPtr(p.AvgRating)
	return out
}

func cloneFloatPtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
