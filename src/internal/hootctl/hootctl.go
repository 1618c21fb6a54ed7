// Package hootctl contains utilities for implementing hootjobs commands.
package hootctl

import (
	"context"
	"time"

	"github.com/hootenanny/jobtrack/src/internal/dbutil"
	"github.com/hootenanny/jobtrack/src/internal/errors"
	"github.com/hootenanny/jobtrack/src/internal/hootconfig"
	"github.com/hootenanny/jobtrack/src/internal/hootsql"
	"github.com/hootenanny/jobtrack/src/internal/log"
	"go.uber.org/zap"
)

// Config is shared by every command.
type Config struct {
	Verbose bool
	Timeout time.Duration
	Env     *hootconfig.Configuration
}

// Connect opens the configured database and waits for it to accept connections.  The returned
// context carries the command timeout, if any; call the returned function when done.
func (cfg *Config) Connect(ctx context.Context) (context.Context, *hootsql.DB, func(), error) {
	if cfg.Env == nil {
		return ctx, nil, nil, errors.New("configuration not loaded")
	}
	cancel := func() {}
	if cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
	}
	db, err := dbutil.NewDB(cfg.Env.DBOptions()...)
	if err != nil {
		cancel()
		return ctx, nil, nil, err
	}
	if err := dbutil.WaitUntilReady(ctx, db); err != nil {
		cancel()
		db.Close()
		return ctx, nil, nil, err
	}
	if cfg.Verbose {
		log.Debug(ctx, "connected to database", zap.String("host", cfg.Env.Database.PostgresHost), zap.String("database", cfg.Env.Database.PostgresDBName))
	}
	return ctx, db, func() {
		if err := db.Close(); err != nil {
			log.Error(ctx, "problem closing database", zap.Error(err))
		}
		cancel()
	}, nil
}
