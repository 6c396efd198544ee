package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	memaccountrepo "github.com/localworks/localworks-api/internal/adapters/memory/accountrepo"
	memclock "github.com/localworks/localworks-api/internal/adapters/memory/clock"
	memidempotency "github.com/localworks/localworks-api/internal/adapters/memory/idempotency"
	memmessagerepo "github.com/localworks/localworks-api/internal/adapters/memory/messagerepo"
	memprofilerepo "github.com/localworks/localworks-api/internal/adapters/memory/profilerepo"
	"github.com/localworks/localworks-api/internal/app/accounts"
	"github.com/localworks/localworks-api/internal/app/messages"
	"github.com/localworks/localworks-api/internal/app/profiles"
	"github.com/localworks/localworks-api/internal/platform/auth/devverifier"
	"github.com/localworks/localworks-api/internal/platform/metrics"
)

type testAPI struct {
	h   http.Handler
	clk *memclock.ManualClock
	reg *prometheus.Registry
}

func newTestAPI(t *testing.T, mutate ...func(*RouterOptions)) *testAPI {
	t.Helper()

	log := zaptest.NewLogger(t)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	clk := memclock.NewManualClock(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))

	accountRepo := memaccountrepo.NewRepo()
	profileRepo := memprofilerepo.NewRepo()
	messageRepo := memmessagerepo.NewRepo()

	accountsSvc := accounts.NewService(accountRepo, devverifier.New(), clk, log, m)
	profilesSvc := profiles.NewService(profileRepo, accountRepo, clk, log, m)
	messagesSvc := messages.NewService(messageRepo, profileRepo, accountRepo, clk, log, m)
	api := NewServer(accountsSvc, profilesSvc, messagesSvc, memidempotency.NewStore(), log)

	opts := RouterOptions{
		Authenticator: accountsSvc,
		Logger:        log,
		Metrics:       m,
		Gatherer:      reg,
	}
	for _, f := range mutate {
		f(&opts)
	}
	return &testAPI{h: NewRouter(api, opts), clk: clk, reg: reg}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.h.ServeHTTP(rec, req)
	return rec
}

// login exchanges a dev token and returns it for use as a bearer credential.
func (a *testAPI) login(t *testing.T, subject, email, name string) (string, Account) {
	t.Helper()
	tok := devverifier.Token(subject, email, name)
	rec := a.do(t, http.MethodPost, "/auth/login", "", LoginRequest{IdToken: tok})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return tok, decode[AccountResponse](t, rec).Account
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) ErrorResponse {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	er := decode[ErrorResponse](t, rec)
	require.Equal(t, code, er.Error.Code, rec.Body.String())
	return er
}

func publishableProfile(name string) map[string]any {
	return map[string]any{
		"displayName":     name,
		"headline":        "Licensed plumber",
		"skills":          []string{"Plumbing", "plumbing", " Tiling "},
		"location":        map[string]any{"city": "Austin", "state": "TX"},
		"serviceRadiusKm": 15,
		"isPublished":     true,
	}
}

func TestLogin_ProvisionsAccountOnce(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	tok, acc := api.login(t, "sub-alice", "Alice@Example.com", "")
	require.Equal(t, "alice@example.com", acc.Email)
	require.Equal(t, "alice", acc.Name)
	require.Equal(t, "customer", acc.Role)

	_, again := api.login(t, "sub-alice", "alice@example.com", "")
	require.Equal(t, acc.Id, again.Id)

	rec := api.do(t, http.MethodGet, "/accounts/me", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, acc.Id, decode[AccountResponse](t, rec).Account.Id)
}

func TestLogin_MissingToken_400(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/auth/login", "", map[string]any{})
	er := requireError(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")
	d, err := er.Error.Details.Get()
	require.NoError(t, err)
	require.Contains(t, d, "idToken")

	rec = api.do(t, http.MethodPost, "/auth/login", "", "{")
	requireError(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestLogin_MalformedToken_401(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/auth/login", "", LoginRequest{IdToken: "garbage"})
	requireError(t, rec, http.StatusUnauthorized, "TOKEN_MALFORMED")
}

func TestRegister_ThenConflict(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	tok := devverifier.Token("sub-bob", "bob@example.com", "")
	rec := api.do(t, http.MethodPost, "/auth/register", "", RegisterRequest{IdToken: tok, Name: "Bob Builder", Role: "tradesperson"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	acc := decode[AccountResponse](t, rec).Account
	require.Equal(t, "tradesperson", acc.Role)
	require.Equal(t, "Bob Builder", acc.Name)

	rec = api.do(t, http.MethodPost, "/auth/register", "", RegisterRequest{IdToken: tok, Name: "Bob"})
	requireError(t, rec, http.StatusBadRequest, "ACCOUNT_ALREADY_EXISTS")
}

func TestLogout_Acknowledges(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/auth/logout", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware_Failures(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	// Anonymous on a protected route.
	rec := api.do(t, http.MethodGet, "/accounts/me", "", nil)
	er := requireError(t, rec, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED")
	rid, err := er.Error.RequestId.Get()
	require.NoError(t, err)
	require.NotEmpty(t, rid)

	// Non-bearer scheme.
	req := httptest.NewRequest(http.MethodGet, "/accounts/me", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec = httptest.NewRecorder()
	api.h.ServeHTTP(rec, req)
	requireError(t, rec, http.StatusUnauthorized, "TOKEN_MALFORMED")

	// Verified identity without an account.
	rec = api.do(t, http.MethodGet, "/accounts/me", devverifier.Token("sub-ghost", "ghost@example.com", ""), nil)
	requireError(t, rec, http.StatusUnauthorized, "ACCOUNT_NOT_FOUND")

	// A bad token is still rejected on routes that need an account.
	rec = api.do(t, http.MethodPost, "/profiles", "only-one-part", publishableProfile("Nope"))
	requireError(t, rec, http.StatusUnauthorized, "TOKEN_MALFORMED")
}

func TestPublicReads_IgnoreUnusableCredentials(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	owner, _ := api.login(t, "sub-pub", "pub@example.com", "Pub Owner")
	rec := api.do(t, http.MethodPost, "/profiles", owner, publishableProfile("Open Doors"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[ProfileResponse](t, rec).Profile.Id
	rec = api.do(t, http.MethodPatch, "/profiles/"+id+"/publication", owner, SetPublicationRequest{IsPublished: ptr(true)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	unprovisioned := devverifier.Token("fresh-sub", "fresh@example.com", "")
	for name, tok := range map[string]string{
		"garbage":       "garbage",
		"unprovisioned": unprovisioned,
	} {
		rec := api.do(t, http.MethodGet, "/profiles", tok, nil)
		require.Equal(t, http.StatusOK, rec.Code, "%s: %s", name, rec.Body.String())
		require.Len(t, decode[DirectoryResponse](t, rec).Profiles, 1, name)

		rec = api.do(t, http.MethodGet, "/profiles/"+id, tok, nil)
		require.Equal(t, http.StatusOK, rec.Code, "%s: %s", name, rec.Body.String())
	}

	// A non-bearer scheme is ignored as well.
	req := httptest.NewRequest(http.MethodGet, "/profiles", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec = httptest.NewRecorder()
	api.h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The same unprovisioned token is still refused where an account is needed.
	rec = api.do(t, http.MethodGet, "/profiles/me", unprovisioned, nil)
	requireError(t, rec, http.StatusUnauthorized, "ACCOUNT_NOT_FOUND")
}

func TestPublicReads_OwnerStillSeesDraftWithValidToken(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	owner, _ := api.login(t, "sub-draft", "draft@example.com", "Draft Owner")
	rec := api.do(t, http.MethodPost, "/profiles", owner, map[string]any{"displayName": "Hidden Co"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[ProfileResponse](t, rec).Profile.Id

	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/profiles/"+id, owner, nil).Code)
	requireError(t, api.do(t, http.MethodGet, "/profiles/"+id, "garbage", nil), http.StatusNotFound, "PROFILE_NOT_FOUND")
}

func TestAccounts_RenameAndPromote(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	tok, acc := api.login(t, "sub-carol", "carol@example.com", "Carol")
	_, other := api.login(t, "sub-dan", "dan@example.com", "Dan")

	rec := api.do(t, http.MethodPatch, "/accounts/me", tok, UpdateAccountRequest{Name: "  Carol   Smith "})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "Carol Smith", decode[AccountResponse](t, rec).Account.Name)

	rec = api.do(t, http.MethodPatch, "/accounts/"+other.Id+"/role", tok, PromoteRoleRequest{Role: "tradesperson"})
	requireError(t, rec, http.StatusForbidden, "FORBIDDEN")

	rec = api.do(t, http.MethodPatch, "/accounts/me/role", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "tradesperson", decode[AccountResponse](t, rec).Account.Role)

	// Re-promotion by explicit id is a no-op success.
	rec = api.do(t, http.MethodPatch, "/accounts/"+acc.Id+"/role", tok, PromoteRoleRequest{Role: "tradesperson"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodPatch, "/accounts/me/role", tok, PromoteRoleRequest{Role: "admin"})
	requireError(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestProfiles_AliceScenario(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	alice, _ := api.login(t, "sub-alice", "alice@example.com", "Alice")
	rec := api.do(t, http.MethodPatch, "/accounts/me/role", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodGet, "/profiles/me", alice, nil)
	requireError(t, rec, http.StatusNotFound, "PROFILE_NOT_FOUND")

	rec = api.do(t, http.MethodPost, "/profiles", alice, publishableProfile("Alice Plumbing"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decode[ProfileResponse](t, rec).Profile
	require.True(t, p.IsPublished)
	require.Equal(t, []string{"Plumbing", "Tiling"}, p.Skills)
	require.Equal(t, Rate{Currency: "USD", Amount: 0, Unit: "hour"}, p.Rate)
	require.True(t, p.AvgRating.IsNull())
	require.True(t, p.Location.Lat.IsNull())

	rec = api.do(t, http.MethodPost, "/profiles", alice, publishableProfile("Second"))
	requireError(t, rec, http.StatusBadRequest, "PROFILE_ALREADY_EXISTS")

	rec = api.do(t, http.MethodGet, "/profiles", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dir := decode[DirectoryResponse](t, rec).Profiles
	require.Len(t, dir, 1)
	require.Equal(t, p.Id, dir[0].Id)
	require.Equal(t, "Alice", dir[0].Owner.Name)
	require.EqualValues(t, "alice@example.com", dir[0].Owner.Email)

	rec = api.do(t, http.MethodGet, "/profiles/me", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, p.Id, decode[ProfileResponse](t, rec).Profile.Id)
}

func TestProfiles_UpdateSemantics(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	owner, _ := api.login(t, "sub-owner", "owner@example.com", "Owner")
	rec := api.do(t, http.MethodPost, "/profiles", owner, map[string]any{
		"displayName": "Owner Co",
		"bio":         "Bathrooms",
		"location":    map[string]any{"city": "Austin", "state": "TX", "lat": 30.27, "lng": -97.74},
		"rate":        map[string]any{"currency": "usd", "amount": 90, "unit": "day"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decode[ProfileResponse](t, rec).Profile
	require.Equal(t, 25, p.ServiceRadiusKm)
	require.Equal(t, "USD", p.Rate.Currency)
	lat, err := p.Location.Lat.Get()
	require.NoError(t, err)
	require.InDelta(t, 30.27, lat, 1e-9)

	path := "/profiles/" + p.Id

	// Omitted fields are unchanged; null clears optional ones.
	rec = api.do(t, http.MethodPut, path, owner, `{"headline":"Fast","location":{"lat":null,"lng":null},"rate":null}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[ProfileResponse](t, rec).Profile
	require.Equal(t, "Fast", got.Headline)
	require.Equal(t, "Bathrooms", got.Bio)
	require.Equal(t, "Austin", got.Location.City)
	require.True(t, got.Location.Lat.IsNull())
	require.Equal(t, Rate{Currency: "USD", Amount: 0, Unit: "hour"}, got.Rate)

	rec = api.do(t, http.MethodPut, path, owner, `{"displayName":null}`)
	requireError(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")

	// Publishing without a location is rejected and leaves the profile as it was.
	rec = api.do(t, http.MethodPut, path, owner, `{"location":null,"isPublished":true}`)
	er := requireError(t, rec, http.StatusBadRequest, "PROFILE_INCOMPLETE")
	require.Equal(t, "city/state/radius required", er.Error.Message)

	rec = api.do(t, http.MethodGet, path, owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	unchanged := decode[ProfileResponse](t, rec).Profile
	require.Equal(t, "Austin", unchanged.Location.City)
	require.False(t, unchanged.IsPublished)

	rec = api.do(t, http.MethodPatch, path+"/publication", owner, map[string]any{})
	requireError(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")

	rec = api.do(t, http.MethodPatch, path+"/publication", owner, SetPublicationRequest{IsPublished: ptr(true)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, decode[ProfileResponse](t, rec).Profile.IsPublished)
}

func TestProfiles_VisibilityAndOwnership(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	owner, _ := api.login(t, "sub-owner", "owner@example.com", "Owner")
	other, _ := api.login(t, "sub-other", "other@example.com", "Other")

	rec := api.do(t, http.MethodPost, "/profiles", owner, map[string]any{"displayName": "Draft Co"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	draft := decode[ProfileResponse](t, rec).Profile
	path := "/profiles/" + draft.Id

	// Drafts are masked as absent for everyone but the owner.
	requireError(t, api.do(t, http.MethodGet, path, "", nil), http.StatusNotFound, "PROFILE_NOT_FOUND")
	requireError(t, api.do(t, http.MethodGet, path, other, nil), http.StatusNotFound, "PROFILE_NOT_FOUND")
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, path, owner, nil).Code)
	requireError(t, api.do(t, http.MethodGet, "/profiles/does-not-exist", "", nil), http.StatusNotFound, "PROFILE_NOT_FOUND")

	rec = api.do(t, http.MethodGet, "/profiles", "", nil)
	require.Empty(t, decode[DirectoryResponse](t, rec).Profiles)

	requireError(t, api.do(t, http.MethodPut, path, other, map[string]any{"headline": "mine now"}), http.StatusForbidden, "FORBIDDEN")
	requireError(t, api.do(t, http.MethodPatch, path+"/publication", other, SetPublicationRequest{IsPublished: ptr(false)}), http.StatusForbidden, "FORBIDDEN")
	requireError(t, api.do(t, http.MethodPut, path, "", map[string]any{"headline": "x"}), http.StatusUnauthorized, "AUTHENTICATION_REQUIRED")
}

func TestMessages_NeedAPlumberScenario(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	alice, _ := api.login(t, "sub-alice", "alice@example.com", "Alice")
	bob, _ := api.login(t, "sub-bob", "bob@example.com", "Bob")
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPatch, "/accounts/me/role", alice, nil).Code)
	rec := api.do(t, http.MethodPost, "/profiles", alice, publishableProfile("Alice Plumbing"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	profileID := decode[ProfileResponse](t, rec).Profile.Id

	rec = api.do(t, http.MethodPost, "/contact-messages", bob, SendMessageRequest{
		ToProfileId: profileID,
		SenderName:  "Bob",
		SenderEmail: "Bob@Example.com",
		Message:     "  Need a plumber  ",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sent := decode[ContactMessageResponse](t, rec).Message
	require.Equal(t, "Need a plumber", sent.Message)
	require.EqualValues(t, "bob@example.com", sent.SenderEmail)
	require.True(t, sent.SenderPhone.IsNull())
	require.False(t, sent.IsRead)

	// The sender is a customer and cannot read an inbox.
	requireError(t, api.do(t, http.MethodGet, "/contact-messages/received", bob, nil), http.StatusForbidden, "ROLE_REQUIRED")
	requireError(t, api.do(t, http.MethodPatch, "/contact-messages/"+sent.Id+"/read", bob, nil), http.StatusForbidden, "ROLE_REQUIRED")

	rec = api.do(t, http.MethodGet, "/contact-messages/received", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	inbox := decode[InboxResponse](t, rec)
	require.Len(t, inbox.Messages, 1)
	require.Equal(t, 1, inbox.UnreadCount)
	require.Equal(t, sent.Id, inbox.Messages[0].Id)
	require.NotNil(t, inbox.Messages[0].FromAccount)
	require.Equal(t, "Bob", inbox.Messages[0].FromAccount.Name)
	require.EqualValues(t, "bob@example.com", inbox.Messages[0].FromAccount.Email)

	for i := 0; i < 2; i++ {
		rec = api.do(t, http.MethodPatch, "/contact-messages/"+sent.Id+"/read", alice, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.True(t, decode[ContactMessageResponse](t, rec).Message.IsRead)
	}

	rec = api.do(t, http.MethodGet, "/contact-messages/received/unread-count", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 0, decode[UnreadCountResponse](t, rec).UnreadCount)

	rec = api.do(t, http.MethodDelete, "/contact-messages/"+sent.Id, alice, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	requireError(t, api.do(t, http.MethodDelete, "/contact-messages/"+sent.Id, alice, nil), http.StatusNotFound, "MESSAGE_NOT_FOUND")
}

func TestMessages_SendRejections(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	owner, _ := api.login(t, "sub-owner", "owner@example.com", "Owner")
	sender, _ := api.login(t, "sub-sender", "sender@example.com", "Sender")
	rec := api.do(t, http.MethodPost, "/profiles", owner, map[string]any{"displayName": "Draft Co"})
	require.Equal(t, http.StatusCreated, rec.Code)
	draftID := decode[ProfileResponse](t, rec).Profile.Id

	msg := SendMessageRequest{ToProfileId: draftID, SenderName: "S", SenderEmail: "s@example.com", Message: "hello"}
	requireError(t, api.do(t, http.MethodPost, "/contact-messages", "", msg), http.StatusUnauthorized, "AUTHENTICATION_REQUIRED")
	requireError(t, api.do(t, http.MethodPost, "/contact-messages", sender, msg), http.StatusBadRequest, "PROFILE_NOT_PUBLISHED")

	msg.ToProfileId = "missing"
	requireError(t, api.do(t, http.MethodPost, "/contact-messages", sender, msg), http.StatusNotFound, "PROFILE_NOT_FOUND")

	msg.Message = strings.Repeat("x", 501)
	requireError(t, api.do(t, http.MethodPost, "/contact-messages", sender, msg), http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestMessages_IdempotentSend(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	owner, _ := api.login(t, "sub-owner", "owner@example.com", "Owner")
	sender, _ := api.login(t, "sub-sender", "sender@example.com", "Sender")
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPatch, "/accounts/me/role", owner, nil).Code)
	rec := api.do(t, http.MethodPost, "/profiles", owner, publishableProfile("Owner Co"))
	require.Equal(t, http.StatusCreated, rec.Code)
	profileID := decode[ProfileResponse](t, rec).Profile.Id

	msg := SendMessageRequest{ToProfileId: profileID, SenderName: "S", SenderEmail: "s@example.com", Message: "hello"}
	first := api.do(t, http.MethodPost, "/contact-messages", sender, msg, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	// Whitespace-only differences hash the same.
	msg.Message = " hello "
	second := api.do(t, http.MethodPost, "/contact-messages", sender, msg, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	require.JSONEq(t, first.Body.String(), second.Body.String())

	msg.Message = "something else"
	requireError(t, api.do(t, http.MethodPost, "/contact-messages", sender, msg, "Idempotency-Key", "k-1"), http.StatusConflict, "IDEMPOTENCY_KEY_REUSE")

	rec = api.do(t, http.MethodGet, "/contact-messages/received", owner, nil)
	require.Len(t, decode[InboxResponse](t, rec).Messages, 1)
}

func TestRouter_RateLimitsAuthRoutes(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t, func(o *RouterOptions) {
		o.RateLimitRPS = 0.001
		o.RateLimitBurst = 2
	})

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/auth/logout", "", nil).Code)
	}
	rec := api.do(t, http.MethodPost, "/auth/logout", "", nil)
	requireError(t, rec, http.StatusTooManyRequests, "RATE_LIMITED")
	require.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Unlimited routes are unaffected.
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/profiles", "", nil).Code)
}

func TestRouter_HealthMetricsAndNotFound(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())

	requireError(t, api.do(t, http.MethodGet, "/nope", "", nil), http.StatusNotFound, "NOT_FOUND")
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/profiles", "", nil).Code)

	rec = api.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, `localworks_http_requests_total{method="GET",route="/profiles",status="200"} 1`)
	require.Contains(t, body, `route="unmatched"`)
}

func ptr[T any](v T) *T { return &v }
