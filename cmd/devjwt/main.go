// Command devjwt is a dev-only RS256 token issuer with a JWKS endpoint.
//
// It is not an OIDC provider. It exists so local stacks can run the API with
// auth.mode=jwt and exercise real signature, iss, aud and exp checks.
package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/localworks/localworks-api/internal/platform/auth/jwks_testutil"
)

type options struct {
	addr     string
	issuer   string
	audience string
	kid      string
	ttl      time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:          "devjwt",
		Short:        "Mint RS256 tokens and serve their JWKS for local development",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			kp, err := jwks_testutil.GenerateRSAKeypair(o.kid)
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              o.addr,
				Handler:           newHandler(kp, o, time.Now),
				ReadHeaderTimeout: 5 * time.Second,
			}
			log.Info("devjwt listening",
				zap.String("addr", o.addr),
				zap.String("iss", o.issuer),
				zap.String("aud", o.audience),
				zap.String("kid", o.kid),
				zap.Duration("ttl", o.ttl),
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.addr, "addr", ":5556", "listen address")
	f.StringVar(&o.issuer, "issuer", "http://devjwt:5556", "iss claim")
	f.StringVar(&o.audience, "audience", "localworks", "aud claim")
	f.StringVar(&o.kid, "kid", "dev-kid-1", "key id")
	f.DurationVar(&o.ttl, "ttl", 30*time.Minute, "token lifetime")
	return cmd
}

type tokenResponse struct {
	Token string `json:"token"`
	Sub   string `json:"sub"`
	Iss   string `json:"iss"`
	Aud   string `json:"aud"`
	Exp   int64  `json:"exp"`
}

// newHandler serves:
//
//	GET /.well-known/jwks.json
//	GET /token?sub=dev|alice&email=alice@example.com&name=Alice
func newHandler(kp jwks_testutil.Keypair, o options, now func() time.Time) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	jwks := jwks_testutil.PublicJWKS([]jwks_testutil.Keypair{kp})
	r.Get("/.well-known/jwks.json", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, jwks)
	})

	r.Get("/token", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		sub := strings.TrimSpace(q.Get("sub"))
		if sub == "" {
			http.Error(w, "missing sub", http.StatusBadRequest)
			return
		}
		email := strings.TrimSpace(q.Get("email"))
		if email == "" {
			email = strings.ReplaceAll(sub, "|", ".") + "@localworks.test"
		}
		// A little nbf slack keeps freshly minted tokens valid on skewed hosts.
		slack := -5 * time.Second
		t := now().UTC()
		tok, err := jwks_testutil.MintRS256JWT(kp, jwks_testutil.TokenSpec{
			Issuer:    o.issuer,
			Audience:  []string{o.audience},
			Subject:   sub,
			Email:     email,
			Name:      strings.TrimSpace(q.Get("name")),
			Now:       t,
			TTL:       o.ttl,
			NotBefore: &slack,
		})
		if err != nil {
			http.Error(w, "failed to mint token", http.StatusInternalServerError)
			return
		}
		writeJSON(w, tokenResponse{
			Token: tok,
			Sub:   sub,
			Iss:   o.issuer,
			Aud:   o.audience,
			Exp:   t.Add(o.ttl).Unix(),
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
