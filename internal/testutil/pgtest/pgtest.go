package pgtest

import (
	"context"
	"os"
	"testing"

	pgxutil "github.com/edgeflare/pgrag/pkg/pgx"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// EnvVar names the environment variable holding the test database URL
const EnvVar = "TEST_DATABASE"

// ConnString returns the test database URL, skipping the test when it is not set
func ConnString(t testing.TB) string {
	t.Helper()
	connString := os.Getenv(EnvVar)
	if connString == "" {
		t.Skipf("%s not set, skipping test against a live database", EnvVar)
	}
	return connString
}

// ParseConfig returns a test pool config that forwards server notices to the test log
func ParseConfig(t testing.TB) *pgxpool.Config {
	t.Helper()
	config, err := pgxpool.ParseConfig(pgxutil.NormalizeConnString(ConnString(t)))
	require.NoError(t, err)

	config.ConnConfig.OnNotice = func(_ *pgconn.PgConn, n *pgconn.Notice) {
		t.Logf("PostgreSQL %s: %s", n.Severity, n.Message)
	}

	return config
}

// Pool connects to the test database with pgvector types registered; the pool is closed on cleanup
func Pool(ctx context.Context, t testing.TB) *pgxpool.Pool {
	t.Helper()
	pool, err := pgxutil.NewPool(ctx, pgxutil.Pool{Config: ParseConfig(t), Vector: true})
	require.NoError(t, err)

	t.Cleanup(pool.Close)
	return pool
}
