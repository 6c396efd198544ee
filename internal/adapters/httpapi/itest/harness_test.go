package itest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"

	"github.com/localworks/localworks-api/internal/adapters/httpapi"
	memaccountrepo "github.com/localworks/localworks-api/internal/adapters/memory/accountrepo"
	memclock "github.com/localworks/localworks-api/internal/adapters/memory/clock"
	memidempotency "github.com/localworks/localworks-api/internal/adapters/memory/idempotency"
	memmessagerepo "github.com/localworks/localworks-api/internal/adapters/memory/messagerepo"
	memprofilerepo "github.com/localworks/localworks-api/internal/adapters/memory/profilerepo"
	pgaccountrepo "github.com/localworks/localworks-api/internal/adapters/postgres/accountrepo"
	pgidempotency "github.com/localworks/localworks-api/internal/adapters/postgres/idempotency"
	pgmessagerepo "github.com/localworks/localworks-api/internal/adapters/postgres/messagerepo"
	pgprofilerepo "github.com/localworks/localworks-api/internal/adapters/postgres/profilerepo"
	postgres_testutil "github.com/localworks/localworks-api/internal/adapters/postgres/testutil"
	"github.com/localworks/localworks-api/internal/app/accounts"
	"github.com/localworks/localworks-api/internal/app/messages"
	"github.com/localworks/localworks-api/internal/app/profiles"
	"github.com/localworks/localworks-api/internal/platform/auth/devverifier"
	"github.com/localworks/localworks-api/internal/platform/metrics"
	accountrepoport "github.com/localworks/localworks-api/internal/ports/out/accountrepo"
	idempotencyport "github.com/localworks/localworks-api/internal/ports/out/idempotency"
	messagerepoport "github.com/localworks/localworks-api/internal/ports/out/messagerepo"
	profilerepoport "github.com/localworks/localworks-api/internal/ports/out/profilerepo"
)

type backend string

const (
	backendMemory   backend = "memory"
	backendPostgres backend = "postgres"
)

func backendsFromEnv(t *testing.T) []backend {
	t.Helper()
	switch strings.ToLower(strings.TrimSpace(os.Getenv("ITEST_BACKEND"))) {
	case "", "memory":
		return []backend{backendMemory}
	case "postgres":
		return []backend{backendPostgres}
	case "all":
		return []backend{backendMemory, backendPostgres}
	default:
		t.Fatalf("unknown ITEST_BACKEND value (expected memory|postgres|all)")
		return nil
	}
}

type testServer struct {
	baseURL string
	client  *http.Client
	clk     *memclock.ManualClock
}

func newTestServer(t *testing.T, b backend) *testServer {
	t.Helper()

	const issuer = "itest-issuer"
	clk := memclock.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	log := zaptest.NewLogger(t)

	var (
		accountRepo accountrepoport.Repository
		profileRepo profilerepoport.Repository
		messageRepo messagerepoport.Repository
		idemStore   idempotencyport.Store
	)

	switch b {
	case backendPostgres:
		pool := postgres_testutil.OpenMigratedPool(t)
		accountRepo = pgaccountrepo.NewRepo(pool, issuer)
		profileRepo = pgprofilerepo.NewRepo(pool)
		messageRepo = pgmessagerepo.NewRepo(pool)
		idemStore = pgidempotency.NewStore(pool, issuer)
	case backendMemory:
		accountRepo = memaccountrepo.NewRepo()
		profileRepo = memprofilerepo.NewRepo()
		messageRepo = memmessagerepo.NewRepo()
		idemStore = memidempotency.NewStore()
	default:
		t.Fatalf("unknown backend: %s", b)
	}

	// Integration tests use the dev verifier to stay fully local and deterministic.
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	accountsSvc := accounts.NewService(accountRepo, devverifier.New(), clk, log, m)
	profilesSvc := profiles.NewService(profileRepo, accountRepo, clk, log, m)
	messagesSvc := messages.NewService(messageRepo, profileRepo, accountRepo, clk, log, m)
	api := httpapi.NewServer(accountsSvc, profilesSvc, messagesSvc, idemStore, log)
	handler := httpapi.NewRouter(api, httpapi.RouterOptions{
		Authenticator: accountsSvc,
		Logger:        log,
		Metrics:       m,
		Gatherer:      reg,
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &testServer{
		baseURL: srv.URL,
		client:  srv.Client(),
		clk:     clk,
	}
}

func (s *testServer) url(path string) string {
	if strings.HasPrefix(path, "/") {
		return s.baseURL + path
	}
	return s.baseURL + "/" + path
}

func (s *testServer) doJSON(t *testing.T, method string, path string, token string, body any, headers ...string) (int, []byte, http.Header) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.url(path), r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out, resp.Header
}

// login provisions (or resolves) an account and returns its bearer token.
func (s *testServer) login(t *testing.T, subject, email, name string) (string, httpapi.Account) {
	t.Helper()
	tok := devverifier.Token(subject, email, name)
	status, body, _ := s.doJSON(t, http.MethodPost, "/auth/login", "", httpapi.LoginRequest{IdToken: tok})
	requireStatus(t, status, body, http.StatusOK)
	return tok, mustUnmarshal[httpapi.AccountResponse](t, body).Account
}

type errorResponse struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestId string `json:"requestId"`
	} `json:"error"`
}

func mustUnmarshal[T any](t *testing.T, b []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v\nbody=%s", err, string(b))
	}
	return out
}

func requireStatus(t *testing.T, status int, body []byte, want int) {
	t.Helper()
	if status != want {
		t.Fatalf("status=%d want=%d body=%s", status, want, string(body))
	}
}

func requireErrorCode(t *testing.T, status int, body []byte, wantStatus int, wantCode string) {
	t.Helper()
	requireStatus(t, status, body, wantStatus)
	got := mustUnmarshal[errorResponse](t, body)
	if got.Error.Code != wantCode {
		t.Fatalf("error.code=%q want=%q body=%s", got.Error.Code, wantCode, string(body))
	}
	if got.Error.RequestId == "" {
		t.Fatalf("expected requestId in error body=%s", string(body))
	}
}

func requireHeaderPresent(t *testing.T, h http.Header, key string) {
	t.Helper()
	if strings.TrimSpace(h.Get(key)) == "" {
		t.Fatalf("expected header %q to be present", key)
	}
}
