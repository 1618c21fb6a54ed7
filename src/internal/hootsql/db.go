// Package hootsql holds the SQL types shared by the job and dataset stores.
package hootsql

import (
	"sort"
	"strconv"
	"strings"

	"github.com/hootenanny/jobtrack/src/internal/errors"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
)

const (
	ProtocolPostgres = "postgres"
	// DriverName is the database/sql driver registered by pgx.
	DriverName = "pgx"
)

// DB is an alias for sqlx.DB which is the standard database type used throughout the project
type DB = sqlx.DB

// Tx is an alias for sqlx.Tx which is the standard transaction type used throughout the project
type Tx = sqlx.Tx

// OpenURL returns a database connection pool to the database specified by u.  If password != ""
// then it will be used for authentication.  It does not confirm that the database is reachable;
// see dbutil.WaitUntilReady.
func OpenURL(u URL, password string) (*DB, error) {
	switch u.Protocol {
	case ProtocolPostgres, "postgresql":
	default:
		return nil, errors.Errorf("database protocol %q not supported", u.Protocol)
	}
	res, err := sqlx.Open(DriverName, postgresDSN(u, password))
	return res, errors.EnsureStack(err)
}

func postgresDSN(u URL, password string) string {
	fields := map[string]string{
		"user":   u.User,
		"host":   u.Host,
		"port":   strconv.Itoa(int(u.Port)),
		"dbname": u.Database,
	}
	if password != "" {
		fields["password"] = password
	}
	for k, v := range u.Params {
		fields[k] = v
	}
	var dsnParts []string
	for k, v := range fields {
		dsnParts = append(dsnParts, k+"="+v)
	}
	sort.Strings(dsnParts)
	return strings.Join(dsnParts, " ")
}

// Placeholders returns n postgres placeholders starting at $start, comma separated, for use in
// an IN (...) list.
func Placeholders(start, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = "$" + strconv.Itoa(start+i)
	}
	return strings.Join(ps, ", ")
}
