package dbutil

import (
	"github.com/hootenanny/jobtrack/src/internal/errors"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
)

func pgCode(err error) string {
	pgErr := &pgconn.PgError{}
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation returns true if the error is a UniqueContraintViolation
func IsUniqueViolation(err error) bool {
	return pgCode(err) == pgerrcode.UniqueViolation
}

// IsUndefinedObject returns true if err reports a missing table, sequence or other relation.
func IsUndefinedObject(err error) bool {
	switch pgCode(err) {
	case pgerrcode.UndefinedTable, pgerrcode.UndefinedObject:
		return true
	}
	return false
}
