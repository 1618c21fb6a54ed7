package hootconfig

import (
	"testing"
	"time"

	"github.com/hootenanny/jobtrack/src/internal/dbutil"
	"github.com/hootenanny/jobtrack/src/internal/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	require.Equal(t, "localhost", c.Database.PostgresHost)
	require.Equal(t, 5432, c.Database.PostgresPort)
	require.Equal(t, "@hourly", c.Sweep.Schedule)
	require.Equal(t, 30*24*time.Hour, c.Sweep.StaleMapAge)
	require.Equal(t, 64, c.AncestorDepth())
	require.Equal(t, uint16(9091), c.MetricsPort)
	require.Equal(t, 30*time.Minute, c.Database.PostgresConnMaxLifetime)
}

func TestNewFromEnvironment(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "pg.internal")
	t.Setenv("POSTGRES_PORT", "6543")
	t.Setenv("STALE_SWEEP_SCHEDULE", "@never")
	t.Setenv("STALE_MAP_AGE", "36h")
	t.Setenv("CHANGESETS_FOLDER", "/tmp/changesets")
	t.Setenv("POSTGRES_CONN_MAX_LIFETIME", "5m")
	c, err := New()
	require.NoError(t, err)
	require.Equal(t, "pg.internal", c.Database.PostgresHost)
	require.Equal(t, 6543, c.Database.PostgresPort)
	require.Equal(t, "@never", c.Sweep.Schedule)
	require.Equal(t, 36*time.Hour, c.Sweep.StaleMapAge)
	require.Equal(t, "/tmp/changesets", c.ChangesetsFolder)
	require.Equal(t, 5*time.Minute, c.Database.PostgresConnMaxLifetime)
}

func TestValidate(t *testing.T) {
	testData := []struct {
		name   string
		modify func(*Configuration)
		want   string
	}{
		{"schedule", func(c *Configuration) { c.Sweep.Schedule = "sometimes" }, "STALE_SWEEP_SCHEDULE"},
		{"age", func(c *Configuration) { c.Sweep.StaleMapAge = 0 }, "STALE_MAP_AGE"},
		{"depth", func(c *Configuration) { c.Sweep.MaxAncestorDepth = 0 }, "MAX_ANCESTOR_DEPTH"},
		{"cache", func(c *Configuration) { c.Sweep.CacheSize = -1 }, "STALE_SWEEP_CACHE_SIZE"},
		{"lifetime", func(c *Configuration) { c.Database.PostgresConnMaxLifetime = -time.Second }, "POSTGRES_CONN_MAX_LIFETIME"},
		{"conns", func(c *Configuration) { c.Database.PostgresMaxOpenConns = 0 }, "POSTGRES_MAX_OPEN_CONNS"},
		{"changesets", func(c *Configuration) { c.ChangesetsFolder = "" }, "CHANGESETS_FOLDER"},
	}
	for _, test := range testData {
		t.Run(test.name, func(t *testing.T) {
			c := Default()
			test.modify(c)
			require.ErrorContains(t, c.Validate(), test.want)
		})
	}
}

func TestDBOptions(t *testing.T) {
	c := Default()
	c.Database.PostgresPassword = "secret"
	dsn := dbutil.GetDSN(c.DBOptions()...)
	require.Equal(t, "connect_timeout=30 dbname=hoot host=localhost password=secret port=5432 sslmode=disable user=hoot", dsn)
}
