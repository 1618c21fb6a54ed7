// Package testutil provides per-test resources, chiefly a throwaway Postgres database.
package testutil

import (
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/hootenanny/jobtrack/src/internal/dbutil"
	"github.com/hootenanny/jobtrack/src/internal/hootsql"
	"github.com/hootenanny/jobtrack/src/internal/pctx"
	"github.com/hootenanny/jobtrack/src/internal/require"
)

const (
	PostgresDefaultHost = "127.0.0.1"
	PostgresDefaultPort = 5432
	PostgresDefaultUser = "postgres"

	// HostEnv names the variable that points tests at a Postgres server.  Tests needing a
	// database are skipped when it is unset.
	HostEnv = "HOOT_TEST_POSTGRES_HOST"
	// PortEnv and UserEnv override the defaults above.
	PortEnv     = "HOOT_TEST_POSTGRES_PORT"
	UserEnv     = "HOOT_TEST_POSTGRES_USER"
	PasswordEnv = "HOOT_TEST_POSTGRES_PASSWORD"
)

// set this to false if you want to keep the database around
var cleanup = true

// UniqueString returns prefix followed by a random suffix that is valid in a SQL identifier.
func UniqueString(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func serverOptions(t testing.TB) []dbutil.Option {
	host := os.Getenv(HostEnv)
	if host == "" {
		t.Skipf("%s is not set; skipping test that needs Postgres", HostEnv)
	}
	port := PostgresDefaultPort
	if p := os.Getenv(PortEnv); p != "" {
		var err error
		port, err = strconv.Atoi(p)
		require.NoError(t, err, "parse %s", PortEnv)
	}
	user := PostgresDefaultUser
	if u := os.Getenv(UserEnv); u != "" {
		user = u
	}
	return []dbutil.Option{
		dbutil.WithHostPort(host, port),
		dbutil.WithUserPassword(user, os.Getenv(PasswordEnv)),
		dbutil.WithMaxOpenConns(4),
	}
}

// NewTestDB creates an empty database for the duration of the test and returns a pool
// connected to it.  The database is dropped when the test ends.
func NewTestDB(t testing.TB) *hootsql.DB {
	ctx := pctx.TestContext(t)
	opts := serverOptions(t)
	admin, err := dbutil.NewDB(append(opts, dbutil.WithDBName("postgres"))...)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, admin.Close()) })
	require.NoError(t, dbutil.WaitUntilReady(ctx, admin))

	name := UniqueString("hoot_test_")
	_, err = admin.ExecContext(ctx, "CREATE DATABASE "+name)
	require.NoError(t, err)
	if cleanup {
		t.Cleanup(func() {
			_, err := admin.ExecContext(pctx.TODO(), "DROP DATABASE "+name+" WITH (FORCE)")
			require.NoError(t, err)
		})
	}
	db, err := dbutil.NewDB(append(opts, dbutil.WithDBName(name))...)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	return db
}
