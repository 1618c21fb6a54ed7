// Package migrations applies an ordered chain of schema changes to a database, recording each
// applied step in a migrations table so every step runs exactly once.
package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hootenanny/jobtrack/src/internal/dbutil"
	"github.com/hootenanny/jobtrack/src/internal/errors"
	"github.com/hootenanny/jobtrack/src/internal/hootsql"
	"github.com/hootenanny/jobtrack/src/internal/log"
	"go.uber.org/zap"
)

// advisoryLock serializes concurrent ApplyMigrations calls against the same database.
const advisoryLock = 0x686f6f74

// Env is passed to each migration.
type Env struct {
	Tx *hootsql.Tx
}

// Func is a single schema change.  It runs inside the transaction in env.Tx.
type Func func(ctx context.Context, env Env) error

// State is a point in the chain of migrations.  States are immutable; Apply returns a new one.
type State struct {
	n      int
	name   string
	change Func
	prev   *State
}

// InitialState is the state of an empty database.
func InitialState() State {
	return State{
		name:   "init",
		change: func(context.Context, Env) error { return nil },
	}
}

// Apply returns the state after running fn on top of s.
func (s State) Apply(name string, fn Func) State {
	prev := s
	return State{
		n:      s.n + 1,
		name:   name,
		change: fn,
		prev:   &prev,
	}
}

// Number is the position of s in the chain; the initial state is 0.
func (s State) Number() int {
	return s.n
}

// Name is the name s was applied with.
func (s State) Name() string {
	return s.name
}

func (s State) chain() []State {
	var states []State
	for cur := &s; cur != nil; cur = cur.prev {
		states = append(states, *cur)
	}
	for i, j := 0, len(states)-1; i < j; i, j = i+1, j-1 {
		states[i], states[j] = states[j], states[i]
	}
	return states
}

const createMigrationsTable = `
	CREATE TABLE IF NOT EXISTS migrations (
		id BIGINT PRIMARY KEY,
		name VARCHAR(250) NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NOT NULL
	)`

// ApplyMigrations brings db up to state, running each missing step in its own transaction.
func ApplyMigrations(ctx context.Context, db *hootsql.DB, baseEnv Env, state State) error {
	if _, err := db.ExecContext(ctx, createMigrationsTable); err != nil {
		return errors.Wrap(err, "create migrations table")
	}
	for _, s := range state.chain() {
		s := s
		if err := dbutil.WithTx(ctx, db, func(ctx context.Context, tx *hootsql.Tx) error {
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLock); err != nil {
				return errors.Wrap(err, "acquire migration lock")
			}
			var name string
			err := tx.GetContext(ctx, &name, `SELECT name FROM migrations WHERE id = $1`, s.n)
			switch {
			case err == nil:
				if name != s.name {
					return errors.Errorf("migration %d is recorded as %q, expected %q", s.n, name, s.name)
				}
				return nil
			case !errors.Is(err, sql.ErrNoRows):
				return errors.Wrapf(err, "check migration %d", s.n)
			}
			start := time.Now()
			env := baseEnv
			env.Tx = tx
			if err := s.change(ctx, env); err != nil {
				return errors.Wrapf(err, "apply migration %d (%s)", s.n, s.name)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO migrations (id, name, start_time, end_time) VALUES ($1, $2, $3, CURRENT_TIMESTAMP)`,
				s.n, s.name, start); err != nil {
				return errors.Wrapf(err, "record migration %d", s.n)
			}
			log.Info(ctx, "applied migration", zap.Int("id", s.n), zap.String("name", s.name), zap.Duration("took", time.Since(start)))
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// BlockUntil waits until some other process has brought db up to at least state.  A database
// that has never been migrated counts as state 0; any other error ends the wait.
func BlockUntil(ctx context.Context, db *hootsql.DB, state State) error {
	return errors.EnsureStack(backoff.Retry(func() error {
		var max sql.NullInt64
		if err := db.GetContext(ctx, &max, `SELECT max(id) FROM migrations`); err != nil {
			if dbutil.IsUndefinedObject(err) {
				return errors.Errorf("migrations table not created yet, waiting for %d", state.n)
			}
			return backoff.Permanent(errors.Wrap(err, "read migration state"))
		}
		if !max.Valid || int(max.Int64) < state.n {
			return errors.Errorf("database at migration %d, waiting for %d", max.Int64, state.n)
		}
		return nil
	}, backoff.WithContext(backoff.NewConstantBackOff(100*time.Millisecond), ctx)))
}
