package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/localworks/localworks-api/internal/adapters/httpapi"
	memaccountrepo "github.com/localworks/localworks-api/internal/adapters/memory/accountrepo"
	memidempotency "github.com/localworks/localworks-api/internal/adapters/memory/idempotency"
	memmessagerepo "github.com/localworks/localworks-api/internal/adapters/memory/messagerepo"
	memprofilerepo "github.com/localworks/localworks-api/internal/adapters/memory/profilerepo"
	"github.com/localworks/localworks-api/internal/adapters/postgres"
	pgaccountrepo "github.com/localworks/localworks-api/internal/adapters/postgres/accountrepo"
	pgidempotency "github.com/localworks/localworks-api/internal/adapters/postgres/idempotency"
	pgmessagerepo "github.com/localworks/localworks-api/internal/adapters/postgres/messagerepo"
	pgprofilerepo "github.com/localworks/localworks-api/internal/adapters/postgres/profilerepo"
	"github.com/localworks/localworks-api/internal/app/accounts"
	"github.com/localworks/localworks-api/internal/app/messages"
	"github.com/localworks/localworks-api/internal/app/profiles"
	"github.com/localworks/localworks-api/internal/platform/auth/devverifier"
	"github.com/localworks/localworks-api/internal/platform/auth/jwtverifier"
	platformclock "github.com/localworks/localworks-api/internal/platform/clock"
	"github.com/localworks/localworks-api/internal/platform/config"
	"github.com/localworks/localworks-api/internal/platform/logging"
	"github.com/localworks/localworks-api/internal/platform/metrics"
	"github.com/localworks/localworks-api/internal/ports/out/accountrepo"
	"github.com/localworks/localworks-api/internal/ports/out/identity"
	"github.com/localworks/localworks-api/internal/ports/out/idempotency"
	"github.com/localworks/localworks-api/internal/ports/out/messagerepo"
	"github.com/localworks/localworks-api/internal/ports/out/profilerepo"
)

var version = "dev"

var cfgFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "localworks-api",
	Short:        "LocalWorks marketplace API",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./localworks.yaml or ./configs/localworks.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()
		return serve(cmd.Context(), cfg, log)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending Postgres migrations and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		ctx := cmd.Context()
		pool, err := postgres.NewPool(ctx, cfg.Storage.DatabaseURL, postgres.PoolOptions{MaxConns: cfg.Storage.MaxConns})
		if err != nil {
			return err
		}
		defer pool.Close()

		n, err := postgres.Migrate(ctx, pool, log)
		if err != nil {
			return err
		}
		log.Info("migrations complete", zap.Int("applied", n))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func bootstrap() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(config.New(cfgFile))
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("config: %w", err)
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

// repositories bundles the storage adapters selected by storage.backend.
type repositories struct {
	accounts accountrepo.Repository
	profiles profilerepo.Repository
	messages messagerepo.Repository
	idem     idempotency.Store
	purger   idempotency.Purger
	close    func()
}

func openRepositories(ctx context.Context, cfg config.Config, log *zap.Logger) (repositories, error) {
	switch cfg.Storage.Backend {
	case config.StorageMemory:
		idem := memidempotency.NewStore()
		idem.Retention = cfg.Storage.IdempotencyRetention
		return repositories{
			accounts: memaccountrepo.NewRepo(),
			profiles: memprofilerepo.NewRepo(),
			messages: memmessagerepo.NewRepo(),
			idem:     idem,
			purger:   idem,
			close:    func() {},
		}, nil

	case config.StoragePostgres:
		pool, err := postgres.NewPool(ctx, cfg.Storage.DatabaseURL, postgres.PoolOptions{MaxConns: cfg.Storage.MaxConns})
		if err != nil {
			return repositories{}, err
		}
		if _, err := postgres.Migrate(ctx, pool, log); err != nil {
			pool.Close()
			return repositories{}, err
		}
		return postgresRepositories(pool, cfg), nil

	default:
		return repositories{}, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
}

func postgresRepositories(pool *pgxpool.Pool, cfg config.Config) repositories {
	issuer := cfg.Auth.JWT.Issuer
	idem := pgidempotency.NewStore(pool, issuer)
	idem.Retention = cfg.Storage.IdempotencyRetention
	return repositories{
		accounts: pgaccountrepo.NewRepo(pool, issuer),
		profiles: pgprofilerepo.NewRepo(pool),
		messages: pgmessagerepo.NewRepo(pool),
		idem:     idem,
		purger:   idem,
		close:    pool.Close,
	}
}

func newVerifier(cfg config.Config) identity.Verifier {
	if cfg.Auth.Mode == config.AuthModeDev {
		return devverifier.New()
	}
	return jwtverifier.New(cfg.Auth.JWT)
}

func serve(parent context.Context, cfg config.Config, log *zap.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	repos, err := openRepositories(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer repos.close()

	if cfg.Auth.Mode == config.AuthModeDev {
		log.Warn("auth.mode=dev accepts unsigned tokens; do not use in production")
	}

	clk := platformclock.NewSystemClock()
	accountsSvc := accounts.NewService(repos.accounts, newVerifier(cfg), clk, log, m)
	profilesSvc := profiles.NewService(repos.profiles, repos.accounts, clk, log, m)
	messagesSvc := messages.NewService(repos.messages, repos.profiles, repos.accounts, clk, log, m)

	api := httpapi.NewServer(accountsSvc, profilesSvc, messagesSvc, repos.idem, log)
	opts := httpapi.RouterOptions{
		Authenticator:      accountsSvc,
		Logger:             log,
		Metrics:            m,
		Gatherer:           reg,
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
	}
	if cfg.RateLimit.Enabled {
		opts.RateLimitRPS = cfg.RateLimit.RPS
		opts.RateLimitBurst = cfg.RateLimit.Burst
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.NewRouter(api, opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("api listening",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("auth_mode", string(cfg.Auth.Mode)),
			zap.String("storage", string(cfg.Storage.Backend)),
			zap.String("version", version),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.Storage.IdempotencyRetention > 0 {
		g.Go(func() error {
			purgeLoop(gctx, log, repos.purger, cfg.Storage.IdempotencyRetention)
			return nil
		})
	}
	return g.Wait()
}

// purgeLoop drops expired idempotency records a few times per retention window.
func purgeLoop(ctx context.Context, log *zap.Logger, p idempotency.Purger, retention time.Duration) {
	every := retention / 4
	if every < time.Minute {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := p.Purge(ctx)
			if err != nil {
				log.Warn("idempotency purge failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Debug("idempotency records purged", zap.Int64("count", n))
			}
		}
	}
}
