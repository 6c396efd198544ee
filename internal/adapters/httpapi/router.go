package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/localworks/localworks-api/internal/platform/metrics"
)

type RouterOptions struct {
	// Authenticator resolves bearer tokens to accounts. When nil, every
	// request is anonymous.
	Authenticator Authenticator

	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// Gatherer backs GET /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer

	// RateLimitRPS and RateLimitBurst apply per client IP to /auth/* and
	// POST /contact-messages. Zero RPS disables limiting.
	RateLimitRPS   float64
	RateLimitBurst int

	CORSAllowedOrigins []string
}

// NewRouter constructs the API HTTP router.
func NewRouter(api *Server, opts RouterOptions) http.Handler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	if opts.Metrics != nil {
		r.Use(requestMetrics(opts.Metrics))
	}
	if len(opts.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
			ExposedHeaders:   []string{"X-Request-Id", "Idempotent-Replayed"},
			AllowCredentials: !containsWildcard(opts.CORSAllowedOrigins),
			MaxAge:           300,
		}))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, r, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	limit := func(next http.Handler) http.Handler { return next }
	if opts.RateLimitRPS > 0 {
		burst := opts.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limit = newIPRateLimiter(opts.RateLimitRPS, burst).middleware(opts.Metrics)
	}

	// Credential exchange carries its token in the body.
	r.Route("/auth", func(r chi.Router) {
		r.With(limit).Post("/login", api.Login)
		r.With(limit).Post("/register", api.Register)
		r.With(limit).Post("/logout", api.Logout)
	})

	strictAuth, optionalAuth := passThrough, passThrough
	if opts.Authenticator != nil {
		strictAuth = NewAuthMiddleware(opts.Authenticator, log)
		optionalAuth = NewOptionalAuthMiddleware(opts.Authenticator, log)
	}

	// Public reads stay available when the caller's token is stale.
	r.Group(func(r chi.Router) {
		r.Use(optionalAuth)
		r.Get("/profiles", api.ListDirectory)
		r.Get("/profiles/{profileId}", api.GetProfile)
	})

	r.Group(func(r chi.Router) {
		r.Use(strictAuth)

		r.Get("/accounts/me", api.GetMyAccount)
		r.Patch("/accounts/me", api.UpdateMyAccount)
		r.Patch("/accounts/{accountId}/role", api.PromoteRole)

		r.Post("/profiles", api.CreateProfile)
		r.Get("/profiles/me", api.GetMyProfile)
		r.Put("/profiles/{profileId}", api.UpdateProfile)
		r.Patch("/profiles/{profileId}/publication", api.SetPublication)

		r.With(limit).Post("/contact-messages", api.SendMessage)
		r.Get("/contact-messages/received", api.ListReceived)
		r.Get("/contact-messages/received/unread-count", api.UnreadCount)
		r.Patch("/contact-messages/{messageId}/read", api.MarkRead)
		r.Delete("/contact-messages/{messageId}", api.DeleteMessage)
	})

	return r
}

func passThrough(next http.Handler) http.Handler { return next }

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
