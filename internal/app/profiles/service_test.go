package profiles

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	memaccountrepo "github.com/localworks/localworks-api/internal/adapters/memory/accountrepo"
	memclock "github.com/localworks/localworks-api/internal/adapters/memory/clock"
	memprofilerepo "github.com/localworks/localworks-api/internal/adapters/memory/profilerepo"
	"github.com/localworks/localworks-api/internal/app/apperr"
	"github.com/localworks/localworks-api/internal/domain"
)

type fixture struct {
	svc      *Service
	accounts *memaccountrepo.Repo
	profiles *memprofilerepo.Repo
	clk      *memclock.ManualClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		accounts: memaccountrepo.NewRepo(),
		profiles: memprofilerepo.NewRepo(),
		clk:      memclock.NewManualClock(time.Unix(10_000, 0).UTC()),
	}
	f.svc = NewService(f.profiles, f.accounts, f.clk, nil, nil)
	n := 0
	f.svc.newProfileID = func() domain.ProfileID {
		n++
		return domain.ProfileID(fmt.Sprintf("prof-%03d", n))
	}
	return f
}

func (f *fixture) account(t *testing.T, name string, role domain.Role) *domain.Account {
	t.Helper()
	a := domain.Account{
		ID:          domain.AccountID("acc-" + name),
		Subject:     domain.SubjectID("sub-" + name),
		DisplayName: name,
		Email:       name + "@example.com",
		Role:        role,
		CreatedAt:   f.clk.Now(),
		UpdatedAt:   f.clk.Now(),
	}
	require.NoError(t, f.accounts.Create(context.Background(), a))
	return &a
}

func requireAppErr(t *testing.T, err error, status int, code string) {
	t.Helper()
	ae, ok := apperr.As(err)
	require.True(t, ok, "expected *apperr.Error, got %v", err)
	require.Equal(t, status, ae.Status)
	require.Equal(t, code, ae.Code)
}

func publishable() CreateProfileInput {
	radius := 10
	return CreateProfileInput{
		DisplayName:     "Pro Plumbing",
		Location:        &LocationInput{City: "NYC", State: "NY"},
		ServiceRadiusKm: &radius,
	}
}

func TestCreate_AppliesDefaultsAndRoundTrips(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	acc := f.account(t, "alice", domain.RoleTradesperson)

	lat := 40.7
	created, err := f.svc.Create(ctx, acc, CreateProfileInput{
		DisplayName: "  Alice's   Plumbing ",
		Headline:    "Fast fixes",
		Skills:      []string{" Plumbing", "plumbing", "", "Tiling"},
		Credentials: []domain.Credential{{Label: "Licensed Plumber", Issuer: "NY DOB", ID: "LP-1"}},
		Location:    &LocationInput{City: "NYC", State: "NY", Latitude: &lat},
		Photos:      []string{"https://img.example.com/a.jpg"},
	})
	require.NoError(t, err)
	require.Equal(t, "Alice's Plumbing", created.DisplayName)
	require.Equal(t, []string{"Plumbing", "Tiling"}, created.Skills)
	require.Equal(t, domain.DefaultRate(), created.Rate)
	require.Equal(t, 25, created.ServiceRadiusKm)
	require.False(t, created.IsPublished)
	require.Nil(t, created.AvgRating)
	require.Zero(t, created.ReviewCount)

	got, err := f.svc.GetMine(ctx, acc)
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)
	require.Equal(t, created.DisplayName, got.DisplayName)
	require.Equal(t, created.Skills, got.Skills)
	require.Equal(t, created.Credentials, got.Credentials)
	require.Equal(t, created.Rate, got.Rate)
	require.Equal(t, created.ServiceRadiusKm, got.ServiceRadiusKm)
	require.Equal(t, 40.7, *got.Location.Latitude)
	require.Nil(t, got.Location.Longitude)
}

func TestCreate_SecondProfileConflicts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	acc := f.account(t, "bob", domain.RoleTradesperson)

	first, err := f.svc.Create(ctx, acc, CreateProfileInput{DisplayName: "First"})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, acc, CreateProfileInput{DisplayName: "Second"})
	requireAppErr(t, err, http.StatusBadRequest, apperr.CodeProfileExists)

	got, err := f.svc.GetMine(ctx, acc)
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)
	require.Equal(t, "First", got.DisplayName)
}

func TestCreate_Validation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	acc := f.account(t, "carol", domain.RoleTradesperson)

	neg := -1.0
	badUnit := "week"
	tooFar := 101
	badLat := 91.0
	cases := map[string]CreateProfileInput{
		"empty name":  {DisplayName: "  "},
		"rate amount": {DisplayName: "x", Rate: &RateInput{Amount: &neg}},
		"rate unit":   {DisplayName: "x", Rate: &RateInput{Unit: &badUnit}},
		"radius":      {DisplayName: "x", ServiceRadiusKm: &tooFar},
		"latitude":    {DisplayName: "x", Location: &LocationInput{Latitude: &badLat}},
		"credential":  {DisplayName: "x", Credentials: []domain.Credential{{Label: "only label"}}},
		"photo":       {DisplayName: "x", Photos: []string{"not a url"}},
	}
	for name, in := range cases {
		_, err := f.svc.Create(ctx, acc, in)
		ae, ok := apperr.As(err)
		require.True(t, ok, name)
		require.Equal(t, apperr.CodeValidation, ae.Code, name)
	}

	_, err := f.svc.Create(ctx, acc, CreateProfileInput{DisplayName: "x", IsPublished: true})
	requireAppErr(t, err, http.StatusBadRequest, apperr.CodeProfileIncomplete)

	_, err = f.svc.GetMine(ctx, acc)
	requireAppErr(t, err, http.StatusNotFound, apperr.CodeProfileNotFound)
}

func TestCreate_RequiresAuthentication(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), nil, CreateProfileInput{DisplayName: "x"})
	requireAppErr(t, err, http.StatusUnauthorized, apperr.CodeAuthRequired)
}

func TestSetPublished_RejectsIncompleteAndLeavesProfileUnchanged(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	acc := f.account(t, "dave", domain.RoleTradesperson)

	draft, err := f.svc.Create(ctx, acc, CreateProfileInput{DisplayName: "Dave Does Decks"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = f.svc.SetPublished(ctx, acc, draft.ID, true)
		requireAppErr(t, err, http.StatusBadRequest, apperr.CodeProfileIncomplete)
		require.Equal(t, "city/state/radius required", err.Error())

		stored, err := f.profiles.GetByID(ctx, draft.ID)
		require.NoError(t, err)
		require.False(t, stored.IsPublished)
		require.Equal(t, draft.UpdatedAt, stored.UpdatedAt)
	}
}

func TestUpdate_PublishedProfileKeepsInvariant(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	acc := f.account(t, "erin", domain.RoleTradesperson)

	in := publishable()
	in.IsPublished = true
	p, err := f.svc.Create(ctx, acc, in)
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, acc, p.ID, UpdateProfileInput{ServiceRadiusKm: Some(0)})
	requireAppErr(t, err, http.StatusBadRequest, apperr.CodeProfileIncomplete)

	_, err = f.svc.Update(ctx, acc, p.ID, UpdateProfileInput{Location: Some(LocationPatch{City: Null[string]()})})
	requireAppErr(t, err, http.StatusBadRequest, apperr.CodeProfileIncomplete)

	stored, err := f.profiles.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, "NYC", stored.Location.City)
	require.Equal(t, 10, stored.ServiceRadiusKm)

	// Unpublishing and clearing in one update is allowed.
	got, err := f.svc.Update(ctx, acc, p.ID, UpdateProfileInput{
		IsPublished:     Some(false),
		ServiceRadiusKm: Some(0),
	})
	require.NoError(t, err)
	require.False(t, got.IsPublished)
	require.Equal(t, 0, got.ServiceRadiusKm)
}

func TestUpdate_PartialSemantics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	acc := f.account(t, "finn", domain.RoleTradesperson)

	lat, lng := 1.0, 2.0
	amount := 90.0
	p, err := f.svc.Create(ctx, acc, CreateProfileInput{
		DisplayName: "Finn Fixes",
		Headline:    "Handyman",
		Bio:         "Twenty years",
		Skills:      []string{"Carpentry"},
		Rate:        &RateInput{Amount: &amount},
		Location:    &LocationInput{City: "Austin", State: "TX", Latitude: &lat, Longitude: &lng},
	})
	require.NoError(t, err)

	f.clk.Advance(time.Minute)
	got, err := f.svc.Update(ctx, acc, p.ID, UpdateProfileInput{
		Headline: Null[string](),
		Skills:   Some([]string{"Painting", "painting"}),
		Location: Some(LocationPatch{Latitude: Null[float64]()}),
	})
	require.NoError(t, err)
	require.Equal(t, "Finn Fixes", got.DisplayName)
	require.Equal(t, "", got.Headline)
	require.Equal(t, "Twenty years", got.Bio)
	require.Equal(t, []string{"Painting"}, got.Skills)
	require.Equal(t, 90.0, got.Rate.Amount)
	require.Equal(t, "Austin", got.Location.City)
	require.Nil(t, got.Location.Latitude)
	require.Equal(t, 2.0, *got.Location.Longitude)
	require.True(t, got.UpdatedAt.After(p.UpdatedAt))
	require.Equal(t, p.CreatedAt, got.CreatedAt)

	got, err = f.svc.Update(ctx, acc, p.ID, UpdateProfileInput{Rate: Null[RateInput](), ServiceRadiusKm: Null[int]()})
	require.NoError(t, err)
	require.Equal(t, domain.DefaultRate(), got.Rate)
	require.Equal(t, domain.DefaultServiceRadiusKm, got.ServiceRadiusKm)

	_, err = f.svc.Update(ctx, acc, p.ID, UpdateProfileInput{DisplayName: Null[string]()})
	requireAppErr(t, err, http.StatusBadRequest, apperr.CodeValidation)
}

func TestUpdate_OwnershipAndMasking(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	owner := f.account(t, "gina", domain.RoleTradesperson)
	other := f.account(t, "hank", domain.RoleCustomer)
	admin := f.account(t, "root", domain.RoleAdmin)

	p, err := f.svc.Create(ctx, owner, CreateProfileInput{DisplayName: "Gina Glass"})
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, other, p.ID, UpdateProfileInput{Headline: Some("hijack")})
	requireAppErr(t, err, http.StatusForbidden, apperr.CodeForbidden)
	_, err = f.svc.SetPublished(ctx, admin, p.ID, false)
	requireAppErr(t, err, http.StatusForbidden, apperr.CodeForbidden)
	_, err = f.svc.Update(ctx, owner, "missing", UpdateProfileInput{})
	requireAppErr(t, err, http.StatusNotFound, apperr.CodeProfileNotFound)
	_, err = f.svc.Update(ctx, nil, p.ID, UpdateProfileInput{})
	requireAppErr(t, err, http.StatusUnauthorized, apperr.CodeAuthRequired)

	// Drafts are hidden from everyone but the owner.
	_, err = f.svc.Get(ctx, other, p.ID)
	requireAppErr(t, err, http.StatusNotFound, apperr.CodeProfileNotFound)
	_, err = f.svc.Get(ctx, nil, p.ID)
	requireAppErr(t, err, http.StatusNotFound, apperr.CodeProfileNotFound)
	got, err := f.svc.Get(ctx, owner, p.ID)
	require.NoError(t, err)
	require.Equal(t, p.ID, got.ID)

	_, err = f.svc.GetMine(ctx, other)
	requireAppErr(t, err, http.StatusNotFound, apperr.CodeProfileNotFound)
}

func TestListDirectory_PublishedOnlyWithOwners(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	pub := f.account(t, "ivy", domain.RoleTradesperson)
	hidden := f.account(t, "jack", domain.RoleTradesperson)

	in := publishable()
	in.IsPublished = true
	_, err := f.svc.Create(ctx, pub, in)
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, hidden, CreateProfileInput{DisplayName: "Draft"})
	require.NoError(t, err)

	entries, err := f.svc.ListDirectory(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, entries[0].IsPublished)
	require.Equal(t, "ivy", entries[0].OwnerName)
	require.Equal(t, "ivy@example.com", entries[0].OwnerEmail)
}

func TestScenario_AlicePublishesAfterCompletingLocation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	alice := f.account(t, "alice", domain.RoleCustomer)
	alice.Role = domain.RoleTradesperson
	require.NoError(t, f.accounts.Update(ctx, *alice))

	draft, err := f.svc.Create(ctx, alice, CreateProfileInput{DisplayName: "Alice Plumbing"})
	require.NoError(t, err)

	_, err = f.svc.SetPublished(ctx, alice, draft.ID, true)
	requireAppErr(t, err, http.StatusBadRequest, apperr.CodeProfileIncomplete)
	require.Equal(t, "city/state/radius required", err.Error())

	_, err = f.svc.Update(ctx, alice, draft.ID, UpdateProfileInput{
		Location:        Some(LocationPatch{City: Some("NYC"), State: Some("NY")}),
		ServiceRadiusKm: Some(10),
	})
	require.NoError(t, err)

	published, err := f.svc.SetPublished(ctx, alice, draft.ID, true)
	require.NoError(t, err)
	require.True(t, published.IsPublished)

	entries, err := f.svc.ListDirectory(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, draft.ID, entries[0].ID)
}
