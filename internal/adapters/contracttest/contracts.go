package contracttest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/localworks/localworks-api/internal/domain"
	accountrepoport "github.com/localworks/localworks-api/internal/ports/out/accountrepo"
	idempotencyport "github.com/localworks/localworks-api/internal/ports/out/idempotency"
	messagerepoport "github.com/localworks/localworks-api/internal/ports/out/messagerepo"
	profilerepoport "github.com/localworks/localworks-api/internal/ports/out/profilerepo"
)

type CleanupFunc = func()

type AccountRepoFactory func(t *testing.T) (accountrepoport.Repository, CleanupFunc)
type ProfileRepoFactory func(t *testing.T) (profilerepoport.Repository, CleanupFunc)
type MessageRepoFactory func(t *testing.T) (messagerepoport.Repository, CleanupFunc)
type IdemStoreFactory func(t *testing.T) (idempotencyport.Store, CleanupFunc)

func RunIdempotencyStore(t *testing.T, newStore IdemStoreFactory) {
	t.Helper()
	ctx := context.Background()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	fp := idempotencyport.Fingerprint{
		Key:      idempotencyport.Key("k-" + uuid.NewString()),
		Subject:  domain.SubjectID("sub-1"),
		Method:   "POST",
		Route:    "/contact-messages",
		BodyHash: "",
	}
	rec := idempotencyport.Record{
		StatusCode:  0,
		ContentType: "text/plain",
		Body:        []byte("hash-abc"),
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
	if _, ok, err := store.Get(ctx, fp); err != nil || ok {
		t.Fatalf("Get before Put: ok=%v err=%v", ok, err)
	}
	if err := store.Put(ctx, fp, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := store.Get(ctx, fp)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if string(got.Body) != "hash-abc" || got.ContentType != "text/plain" || got.StatusCode != 0 {
		t.Fatalf("unexpected record: %+v", got)
	}

	// Overwrite semantics.
	rec2 := rec
	rec2.Body = []byte("hash-def")
	if err := store.Put(ctx, fp, rec2); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, ok, err = store.Get(ctx, fp)
	if err != nil || !ok || string(got.Body) != "hash-def" {
		t.Fatalf("expected overwritten record, got ok=%v err=%v body=%q", ok, err, string(got.Body))
	}

	// A different body hash is a distinct fingerprint.
	other := fp
	other.BodyHash = "hash-abc"
	if _, ok, err := store.Get(ctx, other); err != nil || ok {
		t.Fatalf("expected distinct fingerprint to miss: ok=%v err=%v", ok, err)
	}
}

func newAccount(now time.Time, name string) domain.Account {
	suffix := uuid.NewString()
	return domain.Account{
		ID:          domain.AccountID(uuid.NewString()),
		Subject:     domain.SubjectID("sub-" + suffix),
		DisplayName: name,
		Email:       name + "-" + suffix + "@example.com",
		Role:        domain.RoleCustomer,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func RunAccountRepo(t *testing.T, newRepo AccountRepoFactory) {
	t.Helper()
	ctx := context.Background()

	repo, cleanup := newRepo(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	now := time.Unix(1000, 0).UTC()
	a := newAccount(now, "alice")
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create a: %v", err)
	}
	if got, err := repo.GetByID(ctx, a.ID); err != nil || got.Subject != a.Subject {
		t.Fatalf("GetByID: got=%+v err=%v", got, err)
	}
	if got, err := repo.GetBySubject(ctx, a.Subject); err != nil || got.ID != a.ID {
		t.Fatalf("GetBySubject: got=%+v err=%v", got, err)
	}

	// Email lookup is case-insensitive.
	upper := []byte(a.Email)
	for i := range upper {
		if upper[i] >= 'a' && upper[i] <= 'z' {
			upper[i] -= 'a' - 'A'
		}
	}
	if got, err := repo.GetByEmail(ctx, string(upper)); err != nil || got.ID != a.ID {
		t.Fatalf("GetByEmail(upper): got=%+v err=%v", got, err)
	}

	// Subject uniqueness.
	dupSub := newAccount(now, "alice2")
	dupSub.Subject = a.Subject
	if err := repo.Create(ctx, dupSub); !errors.Is(err, accountrepoport.ErrSubjectAlreadyBound) {
		t.Fatalf("expected ErrSubjectAlreadyBound, got %v", err)
	}

	// Email uniqueness (case-insensitive).
	dupEmail := newAccount(now, "alice3")
	dupEmail.Email = string(upper)
	if err := repo.Create(ctx, dupEmail); !errors.Is(err, accountrepoport.ErrEmailInUse) {
		t.Fatalf("expected ErrEmailInUse, got %v", err)
	}

	// Role promotion persists.
	a.Role = domain.RoleTradesperson
	a.DisplayName = "Alice Smith"
	a.UpdatedAt = now.Add(time.Minute)
	if err := repo.Update(ctx, a); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := repo.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByID after update: %v", err)
	}
	if got.Role != domain.RoleTradesperson || got.DisplayName != "Alice Smith" {
		t.Fatalf("unexpected account after update: %+v", got)
	}

	// Missing records.
	if _, err := repo.GetByID(ctx, domain.AccountID(uuid.NewString())); !errors.Is(err, accountrepoport.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	missing := newAccount(now, "ghost")
	if err := repo.Update(ctx, missing); !errors.Is(err, accountrepoport.ErrNotFound) {
		t.Fatalf("Update missing: expected ErrNotFound, got %v", err)
	}
}

func seedAccount(t *testing.T, ctx context.Context, accounts accountrepoport.Repository, now time.Time, name string) domain.Account {
	t.Helper()
	a := newAccount(now, name)
	a.Role = domain.RoleTradesperson
	if err := accounts.Create(ctx, a); err != nil {
		t.Fatalf("seed account %s: %v", name, err)
	}
	return a
}

func newProfile(owner domain.AccountID, now time.Time, published bool, rating *float64) domain.Profile {
	return domain.Profile{
		ID:              domain.ProfileID(uuid.NewString()),
		OwnerID:         owner,
		DisplayName:     "Pro " + string(owner)[:8],
		Headline:        "Reliable plumbing",
		Skills:          []string{"Plumbing", "Tiling"},
		Credentials:     []domain.Credential{{Label: "Licensed Plumber", Issuer: "NY DOB", ID: "LP-1"}},
		Rate:            domain.Rate{Currency: "USD", Amount: 85, Unit: domain.RateUnitHour},
		Location:        domain.Location{City: "NYC", State: "NY"},
		ServiceRadiusKm: 10,
		Photos:          []string{"https://img.example.com/1.jpg"},
		IsPublished:     published,
		AvgRating:       rating,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// RunProfileRepo exercises the profile store. Accounts are seeded first so that
// stores enforcing referential integrity can be tested with the same suite.
func RunProfileRepo(t *testing.T, newAccountRepo AccountRepoFactory, newProfileRepo ProfileRepoFactory) {
	t.Helper()
	ctx := context.Background()

	accounts, aCleanup := newAccountRepo(t)
	if aCleanup != nil {
		t.Cleanup(aCleanup)
	}
	profiles, pCleanup := newProfileRepo(t)
	if pCleanup != nil {
		t.Cleanup(pCleanup)
	}

	now := time.Unix(2000, 0).UTC()
	owner := seedAccount(t, ctx, accounts, now, "owner")

	p := newProfile(owner.ID, now, false, nil)
	lat, lng := 40.7, -74.0
	p.Location.Latitude, p.Location.Longitude = &lat, &lng
	if err := profiles.Create(ctx, p); err != nil {
		t.Fatalf("Create profile: %v", err)
	}

	got, err := profiles.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.OwnerID != owner.ID || got.DisplayName != p.DisplayName || got.ServiceRadiusKm != 10 {
		t.Fatalf("unexpected profile: %#v", got)
	}
	if len(got.Skills) != 2 || got.Skills[0] != "Plumbing" || len(got.Credentials) != 1 || got.Credentials[0].ID != "LP-1" {
		t.Fatalf("unexpected collections: skills=%v creds=%v", got.Skills, got.Credentials)
	}
	if got.Location.Latitude == nil || *got.Location.Latitude != lat || got.AvgRating != nil {
		t.Fatalf("unexpected optional fields: %#v", got)
	}
	if byOwner, err := profiles.GetByOwner(ctx, owner.ID); err != nil || byOwner.ID != p.ID {
		t.Fatalf("GetByOwner: got=%v err=%v", byOwner.ID, err)
	}

	// One profile per owner.
	second := newProfile(owner.ID, now, false, nil)
	if err := profiles.Create(ctx, second); !errors.Is(err, profilerepoport.ErrOwnerAlreadyHasProfile) {
		t.Fatalf("expected ErrOwnerAlreadyHasProfile, got %v", err)
	}

	// Update round trip.
	p.Headline = "Now with gas fitting"
	p.IsPublished = true
	p.Location.Latitude, p.Location.Longitude = nil, nil
	p.UpdatedAt = now.Add(time.Minute)
	if err := profiles.Update(ctx, p); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err = profiles.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetByID after update: %v", err)
	}
	if got.Headline != "Now with gas fitting" || !got.IsPublished || got.Location.Latitude != nil {
		t.Fatalf("unexpected profile after update: %#v", got)
	}

	if err := profiles.Update(ctx, newProfile(owner.ID, now, false, nil)); !errors.Is(err, profilerepoport.ErrNotFound) {
		t.Fatalf("Update missing: expected ErrNotFound, got %v", err)
	}
	if _, err := profiles.GetByOwner(ctx, domain.AccountID(uuid.NewString())); !errors.Is(err, profilerepoport.ErrNotFound) {
		t.Fatalf("GetByOwner missing: expected ErrNotFound, got %v", err)
	}

	// Publishability is checked by the profiles service on write; stores
	// persist whatever they are handed so every backend behaves alike.
	loose := newProfile(seedAccount(t, ctx, accounts, now, "loose").ID, now, true, nil)
	loose.Location = domain.Location{}
	loose.ServiceRadiusKm = 0
	if err := profiles.Create(ctx, loose); err != nil {
		t.Fatalf("Create incomplete published profile: %v", err)
	}
	loose.Location.City = "NYC"
	loose.UpdatedAt = now.Add(time.Minute)
	if err := profiles.Update(ctx, loose); err != nil {
		t.Fatalf("Update incomplete published profile: %v", err)
	}
}

// RunDirectoryOrdering checks published-only filtering and ordering. It
// expects the profile store to be empty of other published profiles.
func RunDirectoryOrdering(t *testing.T, newAccountRepo AccountRepoFactory, newProfileRepo ProfileRepoFactory) {
	t.Helper()
	ctx := context.Background()

	accounts, aCleanup := newAccountRepo(t)
	if aCleanup != nil {
		t.Cleanup(aCleanup)
	}
	profiles, pCleanup := newProfileRepo(t)
	if pCleanup != nil {
		t.Cleanup(pCleanup)
	}

	base := time.Unix(3000, 0).UTC()
	rating := func(v float64) *float64 { return &v }

	type seed struct {
		name      string
		published bool
		rating    *float64
		created   time.Time
	}
	seeds := []seed{
		{"unrated-new", true, nil, base.Add(5 * time.Minute)},
		{"low", true, rating(3.5), base.Add(1 * time.Minute)},
		{"top-old", true, rating(4.8), base},
		{"top-new", true, rating(4.8), base.Add(2 * time.Minute)},
		{"zero", true, rating(0), base.Add(3 * time.Minute)},
		{"draft", false, rating(5), base.Add(4 * time.Minute)},
		{"unrated-old", true, nil, base.Add(-time.Minute)},
	}
	ids := make(map[string]domain.ProfileID, len(seeds))
	for _, s := range seeds {
		owner := seedAccount(t, ctx, accounts, base, s.name)
		p := newProfile(owner.ID, s.created, s.published, s.rating)
		if err := profiles.Create(ctx, p); err != nil {
			t.Fatalf("seed profile %s: %v", s.name, err)
		}
		ids[s.name] = p.ID
	}

	got, err := profiles.ListPublished(ctx)
	if err != nil {
		t.Fatalf("ListPublished: %v", err)
	}
	want := []string{"top-new", "top-old", "low", "zero", "unrated-new", "unrated-old"}
	if len(got) != len(want) {
		t.Fatalf("ListPublished returned %d profiles, want %d", len(got), len(want))
	}
	for i, name := range want {
		if got[i].ID != ids[name] {
			t.Fatalf("position %d: got %s, want %s (%s)", i, got[i].ID, ids[name], name)
		}
		if !got[i].IsPublished {
			t.Fatalf("unpublished profile %s in directory", got[i].ID)
		}
	}
}

// RunMessageRepo exercises the contact message store.
func RunMessageRepo(t *testing.T, newAccountRepo AccountRepoFactory, newProfileRepo ProfileRepoFactory, newMessageRepo MessageRepoFactory) {
	t.Helper()
	ctx := context.Background()

	accounts, aCleanup := newAccountRepo(t)
	if aCleanup != nil {
		t.Cleanup(aCleanup)
	}
	profiles, pCleanup := newProfileRepo(t)
	if pCleanup != nil {
		t.Cleanup(pCleanup)
	}
	messages, mCleanup := newMessageRepo(t)
	if mCleanup != nil {
		t.Cleanup(mCleanup)
	}

	now := time.Unix(4000, 0).UTC()
	owner := seedAccount(t, ctx, accounts, now, "trade")
	sender := seedAccount(t, ctx, accounts, now, "customer")
	p := newProfile(owner.ID, now, true, nil)
	if err := profiles.Create(ctx, p); err != nil {
		t.Fatalf("seed profile: %v", err)
	}

	phone := "555-0100"
	first := domain.ContactMessage{
		ID:            domain.MessageID(uuid.NewString()),
		FromAccountID: sender.ID,
		ToProfileID:   p.ID,
		SenderName:    "Bob",
		SenderEmail:   "bob@example.com",
		SenderPhone:   &phone,
		Message:       "Need a plumber",
		CreatedAt:     now,
	}
	second := first
	second.ID = domain.MessageID(uuid.NewString())
	second.SenderPhone = nil
	second.Message = "Still need a plumber"
	second.CreatedAt = now.Add(time.Minute)

	for _, m := range []domain.ContactMessage{first, second} {
		if err := messages.Create(ctx, m); err != nil {
			t.Fatalf("Create message: %v", err)
		}
	}

	got, err := messages.GetByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Message != "Need a plumber" || got.IsRead || got.SenderPhone == nil || *got.SenderPhone != phone {
		t.Fatalf("unexpected message: %#v", got)
	}

	list, err := messages.ListByProfile(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListByProfile: %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("expected newest first, got %#v", list)
	}
	if n, err := messages.CountUnreadByProfile(ctx, p.ID); err != nil || n != 2 {
		t.Fatalf("CountUnreadByProfile: n=%d err=%v", n, err)
	}

	// Mark read is idempotent.
	for i := 0; i < 2; i++ {
		m, err := messages.MarkRead(ctx, first.ID)
		if err != nil || !m.IsRead {
			t.Fatalf("MarkRead #%d: read=%v err=%v", i, m.IsRead, err)
		}
	}
	if n, err := messages.CountUnreadByProfile(ctx, p.ID); err != nil || n != 1 {
		t.Fatalf("CountUnreadByProfile after read: n=%d err=%v", n, err)
	}

	if err := messages.Delete(ctx, first.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := messages.GetByID(ctx, first.ID); !errors.Is(err, messagerepoport.ErrNotFound) {
		t.Fatalf("GetByID deleted: expected ErrNotFound, got %v", err)
	}
	if err := messages.Delete(ctx, first.ID); !errors.Is(err, messagerepoport.ErrNotFound) {
		t.Fatalf("Delete twice: expected ErrNotFound, got %v", err)
	}
	if _, err := messages.MarkRead(ctx, first.ID); !errors.Is(err, messagerepoport.ErrNotFound) {
		t.Fatalf("MarkRead deleted: expected ErrNotFound, got %v", err)
	}
}
