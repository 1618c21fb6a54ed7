package mapdb

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/hootenanny/jobtrack/src/internal/errors"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Table names a table whose rows can be referenced by id or by display name.
type Table struct {
	Name, IDColumn, NameColumn string
}

var (
	MapsTable    = Table{Name: "maps", IDColumn: "id", NameColumn: "display_name"}
	UsersTable   = Table{Name: "users", IDColumn: "id", NameColumn: "display_name"}
	FoldersTable = Table{Name: "folders", IDColumn: "id", NameColumn: "display_name"}
)

// RecordIDForInput resolves input, either a numeric id or a display name, to a row id of table.
// Empty input and names shared by several rows are a *BadRequestError; input matching nothing is
// a *NotFoundError.
func RecordIDForInput(ctx context.Context, q sqlx.QueryerContext, table Table, input string) (int64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, errors.EnsureStack(&BadRequestError{Table: table.Name, Input: input, Reason: "empty reference"})
	}
	from := " FROM " + pq.QuoteIdentifier(table.Name)
	if id, err := strconv.ParseInt(input, 10, 64); err == nil && id >= 0 {
		var n int
		if err := sqlx.GetContext(ctx, q, &n,
			`SELECT count(*)`+from+` WHERE `+pq.QuoteIdentifier(table.IDColumn)+` = $1`, id); err != nil {
			return 0, errors.Wrapf(err, "look up %s id %d", table.Name, id)
		}
		if n == 0 {
			return 0, errors.EnsureStack(&NotFoundError{Table: table.Name, Input: input})
		}
		return id, nil
	}
	var ids []int64
	if err := sqlx.SelectContext(ctx, q, &ids,
		`SELECT `+pq.QuoteIdentifier(table.IDColumn)+from+` WHERE `+pq.QuoteIdentifier(table.NameColumn)+` = $1 LIMIT 2`,
		input); err != nil {
		return 0, errors.Wrapf(err, "look up %s name %q", table.Name, input)
	}
	switch len(ids) {
	case 0:
		return 0, errors.EnsureStack(&NotFoundError{Table: table.Name, Input: input})
	case 1:
		return ids[0], nil
	default:
		return 0, errors.EnsureStack(&BadRequestError{Table: table.Name, Input: input, Reason: "ambiguous: several records have this name"})
	}
}

// MapIDByName returns the owner's dataset with the given name.
func MapIDByName(ctx context.Context, q sqlx.QueryerContext, name string, owner UserID) (MapID, error) {
	var id MapID
	if err := sqlx.GetContext(ctx, q, &id,
		`SELECT id FROM maps WHERE display_name = $1 AND user_id = $2 ORDER BY id LIMIT 1`, name, owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errors.EnsureStack(&NotFoundError{Table: MapsTable.Name, Input: name})
		}
		return 0, errors.Wrapf(err, "look up map %q", name)
	}
	return id, nil
}

// MapIDFromRef resolves ref, a numeric id or one of owner's dataset names.  A numeric ref is
// returned without checking that it exists.
func MapIDFromRef(ctx context.Context, q sqlx.QueryerContext, ref string, owner UserID) (MapID, error) {
	if id, err := strconv.ParseInt(strings.TrimSpace(ref), 10, 64); err == nil {
		return MapID(id), nil
	}
	return MapIDByName(ctx, q, ref, owner)
}

// MapExists reports whether ref names exactly one dataset.
func MapExists(ctx context.Context, q sqlx.QueryerContext, ref string) (bool, error) {
	_, err := RecordIDForInput(ctx, q, MapsTable, ref)
	var notFound *NotFoundError
	var bad *BadRequestError
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &notFound), errors.As(err, &bad):
		return false, nil
	default:
		return false, err
	}
}
