package profiles

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/localworks/localworks-api/internal/app/apperr"
	"github.com/localworks/localworks-api/internal/app/authz"
	"github.com/localworks/localworks-api/internal/domain"
	"github.com/localworks/localworks-api/internal/platform/metrics"
	"github.com/localworks/localworks-api/internal/ports/out/accountrepo"
	clockport "github.com/localworks/localworks-api/internal/ports/out/clock"
	"github.com/localworks/localworks-api/internal/ports/out/profilerepo"
)

type Service struct {
	profiles profilerepo.Repository
	accounts accountrepo.Repository
	clk      clockport.Clock
	log      *zap.Logger
	metrics  *metrics.Metrics

	newProfileID func() domain.ProfileID

	// OwnerLookupConcurrency bounds parallel owner loads in ListDirectory.
	OwnerLookupConcurrency int
}

func NewService(profiles profilerepo.Repository, accounts accountrepo.Repository, clk clockport.Clock, log *zap.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		profiles: profiles,
		accounts: accounts,
		clk:      clk,
		log:      log,
		metrics:  m,
		newProfileID: func() domain.ProfileID {
			return domain.ProfileID(uuid.NewString())
		},
		OwnerLookupConcurrency: 8,
	}
}

// ActorFor builds the authorization actor for acc, loading its profile if any.
// A nil acc yields the anonymous actor.
func ActorFor(ctx context.Context, profiles profilerepo.Repository, acc *domain.Account) (authz.Actor, error) {
	if acc == nil {
		return authz.Anonymous(), nil
	}
	actor := authz.Actor{Account: acc}
	p, err := profiles.GetByOwner(ctx, acc.ID)
	switch {
	case err == nil:
		actor.Profile = &p
	case errors.Is(err, profilerepo.ErrNotFound):
	default:
		return authz.Actor{}, err
	}
	return actor, nil
}

// ListDirectory returns published profiles with their owners' names and emails.
func (s *Service) ListDirectory(ctx context.Context) ([]domain.DirectoryEntry, error) {
	if err := authz.Authorize(authz.Anonymous(), authz.OpListDirectory, authz.Target{}); err != nil {
		return nil, err
	}
	ps, err := s.profiles.ListPublished(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.DirectoryEntry, len(ps))
	owners := make(map[domain.AccountID][]int, len(ps))
	for i, p := range ps {
		out[i] = domain.DirectoryEntry{Profile: p}
		owners[p.OwnerID] = append(owners[p.OwnerID], i)
	}
	ids := make([]domain.AccountID, 0, len(owners))
	for id := range owners {
		ids = append(ids, id)
	}
	results, err := LoadAccounts(ctx, s.accounts, ids, s.OwnerLookupConcurrency)
	if err != nil {
		return nil, err
	}
	for id, idxs := range owners {
		a, ok := results[id]
		if !ok {
			s.log.Warn("directory profile without owner", zap.String("account_id", string(id)))
			continue
		}
		for _, i := range idxs {
			out[i].OwnerName = a.DisplayName
			out[i].OwnerEmail = a.Email
		}
	}
	return out, nil
}

// GetMine returns the caller's profile. Absent and not-yours are both 404.
func (s *Service) GetMine(ctx context.Context, acc *domain.Account) (domain.Profile, error) {
	actor, err := ActorFor(ctx, s.profiles, acc)
	if err != nil {
		return domain.Profile{}, err
	}
	if err := authz.Authorize(actor, authz.OpGetOwnProfile, authz.Target{}); err != nil {
		return domain.Profile{}, err
	}
	return *actor.Profile, nil
}

// Get returns a profile by id: published profiles to anyone, drafts to their owner.
func (s *Service) Get(ctx context.Context, acc *domain.Account, id domain.ProfileID) (domain.Profile, error) {
	actor, err := ActorFor(ctx, s.profiles, acc)
	if err != nil {
		return domain.Profile{}, err
	}
	target, err := s.load(ctx, id)
	if err != nil {
		return domain.Profile{}, err
	}
	if err := authz.Authorize(actor, authz.OpGetPublicProfile, authz.Target{Profile: target}); err != nil {
		return domain.Profile{}, err
	}
	return *target, nil
}

func (s *Service) Create(ctx context.Context, acc *domain.Account, in CreateProfileInput) (domain.Profile, error) {
	actor, err := ActorFor(ctx, s.profiles, acc)
	if err != nil {
		return domain.Profile{}, err
	}
	if err := authz.Authorize(actor, authz.OpCreateProfile, authz.Target{}); err != nil {
		return domain.Profile{}, err
	}

	now := s.clk.Now()
	p := domain.Profile{
		ID:              s.newProfileID(),
		OwnerID:         acc.ID,
		DisplayName:     domain.NormalizeHumanName(in.DisplayName),
		Headline:        strings.TrimSpace(in.Headline),
		Bio:             strings.TrimSpace(in.Bio),
		Rate:            domain.DefaultRate(),
		ServiceRadiusKm: domain.DefaultServiceRadiusKm,
		IsPublished:     in.IsPublished,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if p.Skills, err = normalizeSkills(in.Skills); err != nil {
		return domain.Profile{}, err
	}
	if p.Credentials, err = normalizeCredentials(in.Credentials); err != nil {
		return domain.Profile{}, err
	}
	if p.Photos, err = normalizePhotos(in.Photos); err != nil {
		return domain.Profile{}, err
	}
	if in.Rate != nil {
		if p.Rate, err = normalizeRate(*in.Rate); err != nil {
			return domain.Profile{}, err
		}
	}
	if in.Location != nil {
		p.Location = domain.Location{
			City:      strings.TrimSpace(in.Location.City),
			State:     strings.TrimSpace(in.Location.State),
			Latitude:  in.Location.Latitude,
			Longitude: in.Location.Longitude,
		}
	}
	if in.ServiceRadiusKm != nil {
		p.ServiceRadiusKm = *in.ServiceRadiusKm
	}
	if err := validate(p); err != nil {
		return domain.Profile{}, err
	}

	if err := s.profiles.Create(ctx, p); err != nil {
		if errors.Is(err, profilerepo.ErrOwnerAlreadyHasProfile) {
			return domain.Profile{}, apperr.ProfileExists()
		}
		return domain.Profile{}, err
	}
	s.log.Info("profile created",
		zap.String("profile_id", string(p.ID)),
		zap.String("account_id", string(acc.ID)),
		zap.Bool("published", p.IsPublished),
	)
	if p.IsPublished {
		s.metrics.PublicationChanged(true)
	}
	return p, nil
}

// Update applies a partial update. The stored profile is unchanged when any
// field, or the publish invariant, fails validation.
func (s *Service) Update(ctx context.Context, acc *domain.Account, id domain.ProfileID, in UpdateProfileInput) (domain.Profile, error) {
	actor := authz.Actor{Account: acc}
	if !actor.Authenticated() {
		return domain.Profile{}, apperr.AuthRequired()
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return domain.Profile{}, err
	}
	if err := authz.Authorize(actor, authz.OpUpdateProfile, authz.Target{Profile: current}); err != nil {
		return domain.Profile{}, err
	}

	p, err := applyPatch(*current, in)
	if err != nil {
		return domain.Profile{}, err
	}
	if err := validate(p); err != nil {
		return domain.Profile{}, err
	}
	return s.save(ctx, *current, p)
}

// SetPublished toggles the publish flag, enforcing the completeness invariant.
func (s *Service) SetPublished(ctx context.Context, acc *domain.Account, id domain.ProfileID, published bool) (domain.Profile, error) {
	actor := authz.Actor{Account: acc}
	if !actor.Authenticated() {
		return domain.Profile{}, apperr.AuthRequired()
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return domain.Profile{}, err
	}
	if err := authz.Authorize(actor, authz.OpSetPublished, authz.Target{Profile: current}); err != nil {
		return domain.Profile{}, err
	}

	p := *current
	p.IsPublished = published
	if published && !p.Publishable() {
		return domain.Profile{}, apperr.ProfileIncomplete()
	}
	return s.save(ctx, *current, p)
}

func (s *Service) save(ctx context.Context, before, p domain.Profile) (domain.Profile, error) {
	p.UpdatedAt = s.clk.Now()
	if err := s.profiles.Update(ctx, p); err != nil {
		if errors.Is(err, profilerepo.ErrNotFound) {
			return domain.Profile{}, apperr.ProfileNotFound()
		}
		return domain.Profile{}, err
	}
	if before.IsPublished != p.IsPublished {
		s.metrics.PublicationChanged(p.IsPublished)
		s.log.Info("profile publication changed",
			zap.String("profile_id", string(p.ID)),
			zap.Bool("published", p.IsPublished),
		)
	}
	return p, nil
}

func (s *Service) load(ctx context.Context, id domain.ProfileID) (*domain.Profile, error) {
	p, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, profilerepo.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func applyPatch(p domain.Profile, in UpdateProfileInput) (domain.Profile, error) {
	var err error

	if in.DisplayName.IsSpecified() {
		if in.DisplayName.IsNull() {
			return domain.Profile{}, apperr.Validation("displayName", "cannot be null")
		}
		p.DisplayName = domain.NormalizeHumanName(in.DisplayName.Value())
	}
	if in.Headline.IsSpecified() {
		p.Headline = strings.TrimSpace(in.Headline.Value())
	}
	if in.Bio.IsSpecified() {
		p.Bio = strings.TrimSpace(in.Bio.Value())
	}
	if in.Skills.IsSpecified() {
		if p.Skills, err = normalizeSkills(in.Skills.Value()); err != nil {
			return domain.Profile{}, err
		}
	}
	if in.Credentials.IsSpecified() {
		if p.Credentials, err = normalizeCredentials(in.Credentials.Value()); err != nil {
			return domain.Profile{}, err
		}
	}
	if in.Photos.IsSpecified() {
		if p.Photos, err = normalizePhotos(in.Photos.Value()); err != nil {
			return domain.Profile{}, err
		}
	}
	if in.Rate.IsSpecified() {
		if in.Rate.IsNull() {
			p.Rate = domain.DefaultRate()
		} else if p.Rate, err = normalizeRate(in.Rate.Value()); err != nil {
			return domain.Profile{}, err
		}
	}
	if in.Location.IsSpecified() {
		if in.Location.IsNull() {
			p.Location = domain.Location{}
		} else {
			p.Location = patchLocation(p.Location, in.Location.Value())
		}
	}
	if in.ServiceRadiusKm.IsSpecified() {
		if in.ServiceRadiusKm.IsNull() {
			p.ServiceRadiusKm = domain.DefaultServiceRadiusKm
		} else {
			p.ServiceRadiusKm = in.ServiceRadiusKm.Value()
		}
	}
	if in.IsPublished.IsSpecified() {
		if in.IsPublished.IsNull() {
			return domain.Profile{}, apperr.Validation("isPublished", "cannot be null")
		}
		p.IsPublished = in.IsPublished.Value()
	}
	return p, nil
}

func patchLocation(loc domain.Location, in LocationPatch) domain.Location {
	if in.City.IsSpecified() {
		loc.City = strings.TrimSpace(in.City.Value())
	}
	if in.State.IsSpecified() {
		loc.State = strings.TrimSpace(in.State.Value())
	}
	if in.Latitude.IsSpecified() {
		loc.Latitude = optionalFloat(in.Latitude)
	}
	if in.Longitude.IsSpecified() {
		loc.Longitude = optionalFloat(in.Longitude)
	}
	return loc
}

func optionalFloat(o Optional[float64]) *float64 {
	if o.IsNull() {
		return nil
	}
	v := o.Value()
	return &v
}

// LoadAccounts fetches the distinct ids with at most limit lookups in flight.
// Missing accounts are left out of the result.
func LoadAccounts(ctx context.Context, repo accountrepo.Repository, ids []domain.AccountID, limit int) (map[domain.AccountID]domain.Account, error) {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	found := make(chan domain.Account, len(ids))
	for _, id := range ids {
		id := id
		g.Go(func() error {
			a, err := repo.GetByID(gctx, id)
			if err != nil {
				if errors.Is(err, accountrepo.ErrNotFound) {
					return nil
				}
				return err
			}
			found <- a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(found)
	out := make(map[domain.AccountID]domain.Account, len(ids))
	for a := range found {
		out[a.ID] = a
	}
	return out, nil
}
