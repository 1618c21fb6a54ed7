// Package hootconfig holds the environment-driven configuration of the job tracking service.
package hootconfig

import (
	"time"

	"github.com/hootenanny/jobtrack/src/internal/cmdutil"
	"github.com/hootenanny/jobtrack/src/internal/cronutil"
	"github.com/hootenanny/jobtrack/src/internal/dbutil"
	"github.com/hootenanny/jobtrack/src/internal/errors"
	"github.com/hootenanny/jobtrack/src/internal/jobdb"
)

// DatabaseConfiguration locates the Postgres database holding jobs and datasets.
type DatabaseConfiguration struct {
	PostgresHost         string `env:"POSTGRES_HOST,default=localhost"`
	PostgresPort         int    `env:"POSTGRES_PORT,default=5432"`
	PostgresDBName       string `env:"POSTGRES_DATABASE,default=hoot"`
	PostgresUser         string `env:"POSTGRES_USER,default=hoot"`
	PostgresPassword     string `env:"POSTGRES_PASSWORD"`
	PostgresSSLMode      string `env:"POSTGRES_SSLMODE,default=disable"`
	PostgresMaxOpenConns int    `env:"POSTGRES_MAX_OPEN_CONNS,default=10"`

	// PostgresConnMaxLifetime recycles pooled connections; 0 keeps them forever.
	PostgresConnMaxLifetime time.Duration `env:"POSTGRES_CONN_MAX_LIFETIME,default=30m"`
}

// SweepConfiguration controls the inactivity sweep that marks jobs stale.
type SweepConfiguration struct {
	// Schedule is a cron expression; @never disables the sweep.
	Schedule string `env:"STALE_SWEEP_SCHEDULE,default=@hourly"`
	// StaleMapAge is how long a dataset may go unaccessed before its jobs are stale.
	StaleMapAge      time.Duration `env:"STALE_MAP_AGE,default=720h"`
	MaxAncestorDepth int           `env:"MAX_ANCESTOR_DEPTH,default=64"`
	CacheSize        int           `env:"STALE_SWEEP_CACHE_SIZE,default=4096"`
}

// Configuration is the full service configuration.
type Configuration struct {
	Database DatabaseConfiguration
	Sweep    SweepConfiguration

	ChangesetsFolder string `env:"CHANGESETS_FOLDER,default=/var/lib/hootenanny/changesets"`
	LogLevel         string `env:"LOG_LEVEL,default=info"`
	LogFormat        string `env:"LOG_FORMAT,default=json"`
	MetricsPort      uint16 `env:"METRICS_PORT,default=9091"`
}

// New reads the configuration from the environment, falling back to the decoders and then to
// the defaults, and validates it.
func New(decoders ...cmdutil.Decoder) (*Configuration, error) {
	c := &Configuration{}
	if err := cmdutil.Populate(c, decoders...); err != nil {
		return nil, errors.Wrap(err, "read configuration")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Default returns the configuration with every default applied and no environment consulted.
func Default() *Configuration {
	c := &Configuration{}
	if err := cmdutil.PopulateDefaults(c); err != nil {
		panic(err)
	}
	return c
}

// Validate reports the first invalid setting.
func (c *Configuration) Validate() error {
	if c.Database.PostgresMaxOpenConns < 1 {
		return errors.Errorf("POSTGRES_MAX_OPEN_CONNS must be positive, got %d", c.Database.PostgresMaxOpenConns)
	}
	if c.Database.PostgresConnMaxLifetime < 0 {
		return errors.Errorf("POSTGRES_CONN_MAX_LIFETIME must not be negative, got %v", c.Database.PostgresConnMaxLifetime)
	}
	if _, err := cronutil.ParseCronExpression(c.Sweep.Schedule); err != nil {
		return errors.Wrap(err, "STALE_SWEEP_SCHEDULE")
	}
	if c.Sweep.StaleMapAge <= 0 {
		return errors.Errorf("STALE_MAP_AGE must be positive, got %v", c.Sweep.StaleMapAge)
	}
	if c.Sweep.MaxAncestorDepth < 1 {
		return errors.Errorf("MAX_ANCESTOR_DEPTH must be positive, got %d", c.Sweep.MaxAncestorDepth)
	}
	if c.Sweep.CacheSize < 1 {
		return errors.Errorf("STALE_SWEEP_CACHE_SIZE must be positive, got %d", c.Sweep.CacheSize)
	}
	if c.ChangesetsFolder == "" {
		return errors.New("CHANGESETS_FOLDER must be set")
	}
	return nil
}

// DBOptions returns the dbutil options for the configured database.
func (c *Configuration) DBOptions() []dbutil.Option {
	db := c.Database
	return []dbutil.Option{
		dbutil.WithHostPort(db.PostgresHost, db.PostgresPort),
		dbutil.WithUserPassword(db.PostgresUser, db.PostgresPassword),
		dbutil.WithDBName(db.PostgresDBName),
		dbutil.WithSSLMode(db.PostgresSSLMode),
		dbutil.WithMaxOpenConns(db.PostgresMaxOpenConns),
		dbutil.WithConnMaxLifetime(db.PostgresConnMaxLifetime),
	}
}

// AncestorDepth returns the configured walk bound, or the package default when unset.
func (c *Configuration) AncestorDepth() int {
	if c.Sweep.MaxAncestorDepth > 0 {
		return c.Sweep.MaxAncestorDepth
	}
	return jobdb.DefaultMaxAncestorDepth
}
