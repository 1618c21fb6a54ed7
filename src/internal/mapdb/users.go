package mapdb

import (
	"context"
	"database/sql"

	"github.com/hootenanny/jobtrack/src/internal/errors"
	"github.com/jmoiron/sqlx"
)

// GetUser returns the user with the given id.
func GetUser(ctx context.Context, q sqlx.QueryerContext, id UserID) (*User, error) {
	u := &User{}
	if err := sqlx.GetContext(ctx, q, u,
		`SELECT id, display_name, email, privileges FROM users WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.EnsureStack(&UserNotFoundError{ID: id})
		}
		return nil, errors.Wrapf(err, "get user %d", id)
	}
	return u, nil
}

// IsAdmin reports whether the user exists and holds the admin privilege.
func IsAdmin(ctx context.Context, q sqlx.QueryerContext, id UserID) (bool, error) {
	u, err := GetUser(ctx, q, id)
	if err != nil {
		if errors.Is(err, &UserNotFoundError{}) {
			return false, nil
		}
		return false, err
	}
	return u.IsAdmin(), nil
}

// CreateUser inserts u and sets its id.
func CreateUser(ctx context.Context, ext sqlx.ExtContext, u *User) (UserID, error) {
	if err := sqlx.GetContext(ctx, ext, &u.ID,
		`INSERT INTO users (display_name, email, privileges) VALUES ($1, $2, $3) RETURNING id`,
		u.DisplayName, u.Email, u.Privileges); err != nil {
		return 0, errors.Wrapf(err, "create user %q", u.DisplayName)
	}
	return u.ID, nil
}
