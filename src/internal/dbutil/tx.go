package dbutil

import (
	"context"
	"database/sql"

	"github.com/hootenanny/jobtrack/src/internal/errors"
	"github.com/hootenanny/jobtrack/src/internal/hootsql"
	"github.com/jmoiron/sqlx"
)

type withTxConfig struct {
	sql.TxOptions
}

// WithTxOption parameterizes the WithTx function.
type WithTxOption func(c *withTxConfig)

// WithReadOnly causes WithTx to run the transaction as read only.
func WithReadOnly() WithTxOption {
	return func(c *withTxConfig) {
		c.ReadOnly = true
	}
}

// WithIsolationLevel sets the isolation level of the transaction.
func WithIsolationLevel(x sql.IsolationLevel) WithTxOption {
	return func(c *withTxConfig) {
		c.Isolation = x
	}
}

// WithTx calls cb with a transaction.  The transaction is committed if cb returns nil and
// rolled back otherwise.
func WithTx(ctx context.Context, db *hootsql.DB, cb func(ctx context.Context, tx *hootsql.Tx) error, opts ...WithTxOption) (retErr error) {
	c := &withTxConfig{}
	for _, opt := range opts {
		opt(c)
	}
	tx, err := db.BeginTxx(ctx, &c.TxOptions)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	return runTx(ctx, tx, cb)
}

func runTx(ctx context.Context, tx *sqlx.Tx, cb func(ctx context.Context, tx *hootsql.Tx) error) error {
	if err := cb(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, errors.Wrap(rbErr, "rollback"))
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "commit")
}
