// Package testutil provides helpers for tests that need PostgreSQL or Redis.
// Such tests are skipped unless TEST_DATABASE_DSN or TEST_REDIS_ADDR is set,
// or fail instead when TEST_REQUIRE_INFRA=true.
package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/cuongbtq/research-crew/shared/logger"
	"github.com/cuongbtq/research-crew/shared/postgresql"
)

func requireInfra() bool {
	v := strings.ToLower(os.Getenv("TEST_REQUIRE_INFRA"))
	return v == "1" || v == "true" || v == "yes"
}

func skipOrFail(t testing.TB, format string, args ...any) {
	t.Helper()
	if requireInfra() {
		t.Fatalf(format, args...)
	}
	t.Skipf(format, args...)
}

// SetupTestDB connects to TEST_DATABASE_DSN inside a fresh schema that is
// dropped when the test ends.
func SetupTestDB(t testing.TB) *postgresql.Client {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		skipOrFail(t, "TEST_DATABASE_DSN not set, skipping PostgreSQL test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	admin, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		skipOrFail(t, "PostgreSQL not available: %v", err)
	}

	schemaName := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	if _, err := admin.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA %s", schemaName)); err != nil {
		admin.Close()
		t.Fatalf("create schema: %v", err)
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", withSearchPath(dsn, schemaName))
	if err != nil {
		admin.Close()
		t.Fatalf("connect with schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := admin.ExecContext(cleanupCtx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName)); err != nil {
			t.Logf("warning: failed to drop schema %s: %v", schemaName, err)
		}
		admin.Close()
	})

	return postgresql.Wrap(db, logger.Discard())
}

func withSearchPath(dsn, schema string) string {
	if strings.Contains(dsn, "://") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return dsn + sep + "search_path=" + schema
	}
	return dsn + " search_path=" + schema
}

// SetupTestRedis connects to TEST_REDIS_ADDR and flushes the selected DB on cleanup.
func SetupTestRedis(t testing.TB) *redis.Client {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		skipOrFail(t, "TEST_REDIS_ADDR not set, skipping Redis test")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		skipOrFail(t, "Redis not available for testing at %s: %v", addr, err)
	}

	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.FlushDB(cleanupCtx).Err(); err != nil {
			t.Logf("warning: failed to flush redis: %v", err)
		}
		client.Close()
	})

	return client
}
