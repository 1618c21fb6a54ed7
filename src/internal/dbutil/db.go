package dbutil

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hootenanny/jobtrack/src/internal/errors"
	"github.com/hootenanny/jobtrack/src/internal/hootsql"
	"github.com/hootenanny/jobtrack/src/internal/log"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const (
	// DefaultMaxOpenConns is the default maximum number of open connections.
	DefaultMaxOpenConns = 10
	// DefaultMaxIdleConns is the default number of idle database connections to maintain.
	DefaultMaxIdleConns = 2
	// DefaultSSLMode is the sslmode used when none is configured.
	DefaultSSLMode = "disable"
)

type dbConfig struct {
	host            string
	port            int
	user, password  string
	name            string
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
	sslMode         string
}

// Option configures a DB.
type Option func(*dbConfig)

// WithHostPort sets the host and port of the database.
func WithHostPort(host string, port int) Option {
	return func(dbc *dbConfig) {
		dbc.host = host
		dbc.port = port
	}
}

// WithUserPassword sets the credentials used to connect.
func WithUserPassword(user, password string) Option {
	return func(dbc *dbConfig) {
		dbc.user = user
		dbc.password = password
	}
}

// WithDBName sets the database name.
func WithDBName(name string) Option {
	return func(dbc *dbConfig) {
		dbc.name = name
	}
}

// WithMaxOpenConns caps the pool size.
func WithMaxOpenConns(n int) Option {
	return func(dbc *dbConfig) {
		dbc.maxOpenConns = n
	}
}

// WithConnMaxLifetime caps how long a connection may be reused.
func WithConnMaxLifetime(d time.Duration) Option {
	return func(dbc *dbConfig) {
		dbc.connMaxLifetime = d
	}
}

// WithSSLMode sets the libpq sslmode.
func WithSSLMode(mode string) Option {
	return func(dbc *dbConfig) {
		dbc.sslMode = mode
	}
}

func newConfig(opts ...Option) *dbConfig {
	dbc := &dbConfig{
		maxOpenConns: DefaultMaxOpenConns,
		maxIdleConns: DefaultMaxIdleConns,
		sslMode:      DefaultSSLMode,
	}
	for _, opt := range opts {
		opt(dbc)
	}
	return dbc
}

func getDSN(dbc *dbConfig) string {
	fields := map[string]string{
		"connect_timeout": "30",
		"sslmode":         dbc.sslMode,
	}
	if dbc.host != "" {
		fields["host"] = dbc.host
	}
	if dbc.port != 0 {
		fields["port"] = strconv.Itoa(dbc.port)
	}
	if dbc.name != "" {
		fields["dbname"] = dbc.name
	}
	if dbc.user != "" {
		fields["user"] = dbc.user
	}
	if dbc.password != "" {
		fields["password"] = dbc.password
	}
	var dsnParts []string
	for k, v := range fields {
		dsnParts = append(dsnParts, k+"="+v)
	}
	sort.Strings(dsnParts)
	return strings.Join(dsnParts, " ")
}

// GetDSN returns the string for connecting to the postgres instance with the parameters
// specified in opts.
func GetDSN(opts ...Option) string {
	return getDSN(newConfig(opts...))
}

// NewDB creates a new DB.  It does not connect; see WaitUntilReady.
func NewDB(opts ...Option) (*hootsql.DB, error) {
	dbc := newConfig(opts...)
	if dbc.name == "" {
		return nil, errors.New("must specify database name")
	}
	if dbc.host == "" {
		return nil, errors.New("must specify database host")
	}
	if dbc.user == "" {
		return nil, errors.New("must specify user")
	}
	db, err := sqlx.Open(hootsql.DriverName, getDSN(dbc))
	if err != nil {
		return nil, errors.EnsureStack(err)
	}
	if dbc.maxOpenConns != 0 {
		db.SetMaxOpenConns(dbc.maxOpenConns)
	}
	// 0 means "use zero" here, not "use the default".
	db.SetMaxIdleConns(dbc.maxIdleConns)
	db.SetConnMaxLifetime(dbc.connMaxLifetime)
	return db, nil
}

// MaxReadyAttempts bounds how many times WaitUntilReady pings the database.
const MaxReadyAttempts = 60

// WaitUntilReady pings the database once a second until it answers, MaxReadyAttempts pings have
// failed, or ctx is done.
func WaitUntilReady(ctx context.Context, db *hootsql.DB) error {
	return waitUntilReady(ctx, db, backoff.NewConstantBackOff(time.Second))
}

func waitUntilReady(ctx context.Context, db *hootsql.DB, b backoff.BackOff) error {
	const timeout = time.Second
	log.Info(ctx, "waiting for db to be ready...")
	attempt := 0
	err := backoff.RetryNotify(func() error {
		ctx, cf := context.WithTimeout(ctx, timeout)
		defer cf()
		return errors.EnsureStack(db.PingContext(ctx))
	}, backoff.WithContext(backoff.WithMaxRetries(b, MaxReadyAttempts-1), ctx), func(err error, _ time.Duration) {
		log.Info(ctx, "db is not ready", zap.Error(err), log.RetryAttempt(attempt, MaxReadyAttempts))
		attempt++
	})
	if err != nil {
		return errors.Wrap(err, "wait for db")
	}
	log.Info(ctx, "db is ready")
	return nil
}
