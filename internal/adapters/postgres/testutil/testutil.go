// Package testutil provisions isolated, migrated Postgres pools for adapter tests.
//
// A database is taken from LOCALWORKS_TEST_DATABASE_URL when set. Otherwise,
// with LOCALWORKS_TESTCONTAINERS=1, a postgres:16 container is started once per
// test binary. Without either the calling test is skipped.
package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap/zaptest"

	postgres "github.com/localworks/localworks-api/internal/adapters/postgres"
)

const (
	EnvDatabaseURL    = "LOCALWORKS_TEST_DATABASE_URL"
	EnvTestcontainers = "LOCALWORKS_TESTCONTAINERS"
)

var (
	containerOnce sync.Once
	containerDSN  string
	containerErr  error
)

// DSN resolves a connection string for tests, skipping t when none is available.
func DSN(t *testing.T) string {
	t.Helper()
	if dsn := strings.TrimSpace(os.Getenv(EnvDatabaseURL)); dsn != "" {
		return dsn
	}
	if os.Getenv(EnvTestcontainers) != "1" {
		t.Skipf("postgres tests disabled: set %s or %s=1", EnvDatabaseURL, EnvTestcontainers)
	}
	containerOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		// The container is reaped by testcontainers when the test binary exits.
		c, err := tcpostgres.Run(ctx,
			"postgres:16",
			tcpostgres.WithDatabase("localworks"),
			tcpostgres.WithUsername("localworks"),
			tcpostgres.WithPassword("localworks"),
			tcpostgres.BasicWaitStrategies(),
		)
		if err != nil {
			containerErr = fmt.Errorf("start postgres container: %w", err)
			return
		}
		containerDSN, containerErr = c.ConnectionString(ctx, "sslmode=disable")
	})
	if containerErr != nil {
		t.Fatalf("testcontainers: %v", containerErr)
	}
	return containerDSN
}

// OpenMigratedPool returns a pool whose search_path is a fresh schema with all
// migrations applied. The schema is dropped when the test finishes.
func OpenMigratedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := DSN(t)
	ctx := context.Background()

	schema := "t_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	ident := pgx.Identifier{schema}.Sanitize()

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := conn.Exec(ctx, "CREATE SCHEMA "+ident); err != nil {
		_ = conn.Close(ctx)
		t.Fatalf("create schema %s: %v", schema, err)
	}
	_ = conn.Close(ctx)

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse pool config: %v", err)
	}
	cfg.MaxConns = 4
	setPath := "SET search_path TO " + ident
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, setPath)
		return err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
		dropConn, err := pgx.Connect(context.Background(), dsn)
		if err != nil {
			t.Logf("drop schema %s: %v", schema, err)
			return
		}
		defer dropConn.Close(context.Background())
		if _, err := dropConn.Exec(context.Background(), "DROP SCHEMA IF EXISTS "+ident+" CASCADE"); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
	})

	if _, err := postgres.Migrate(ctx, pool, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}
