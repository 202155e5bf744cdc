package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupTestStore connects to TEST_DATABASE_URL, runs migrations, and returns
// a Store plus a cleanup func that truncates the orchepy tables so each test
// starts from empty. Skips the test when TEST_DATABASE_URL isn't set — this
// suite needs a real Postgres instance (no embeddable equivalent to SQLite's
// file mode exists for the pgx/squirrel/scany stack), so it runs as an
// opt-in integration suite rather than part of the default unit run.
func setupTestStore(t *testing.T) (*Store, context.Context) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping Postgres-backed integration test")
	}

	ctx := context.Background()
	require.NoError(t, Migrate(dsn))

	pool, err := Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, "TRUNCATE orchepy_case_history, orchepy_cases, orchepy_workflows CASCADE")
	require.NoError(t, err)

	return New(pool), ctx
}
