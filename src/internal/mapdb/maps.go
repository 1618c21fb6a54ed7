package mapdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hootenanny/jobtrack/src/internal/errors"
	"github.com/hootenanny/jobtrack/src/internal/hootsql"
	"github.com/jmoiron/sqlx"
)

const selectMap = `SELECT id, display_name, user_id, created_at, tags FROM maps`

// GetMap returns the dataset with the given id.
func GetMap(ctx context.Context, q sqlx.QueryerContext, id MapID) (*Map, error) {
	m := &Map{}
	if err := sqlx.GetContext(ctx, q, m, selectMap+` WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.EnsureStack(&MapNotFoundError{ID: id})
		}
		return nil, errors.Wrapf(err, "get map %d", id)
	}
	return m, nil
}

// CreateMap inserts m and sets its id.
func CreateMap(ctx context.Context, ext sqlx.ExtContext, m *Map) (MapID, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.Tags == nil {
		m.Tags = hootsql.Tags{}
	}
	if err := sqlx.GetContext(ctx, ext, &m.ID,
		`INSERT INTO maps (display_name, user_id, created_at, tags) VALUES ($1, $2, $3, $4) RETURNING id`,
		m.DisplayName, m.UserID, m.CreatedAt, m.Tags); err != nil {
		return 0, errors.Wrapf(err, "create map %q", m.DisplayName)
	}
	return m.ID, nil
}

// DeleteMap removes the dataset's catalog row and its folder association.  It does not touch the
// dataset's generated tables; see the reaper package.
func DeleteMap(ctx context.Context, ext sqlx.ExtContext, id MapID) error {
	if _, err := ext.ExecContext(ctx, `DELETE FROM maps WHERE id = $1`, id); err != nil {
		return errors.Wrapf(err, "delete map %d", id)
	}
	return DeleteFolderMapping(ctx, ext, id)
}

// UpdateMapTags merges tags into the dataset's tags.
func UpdateMapTags(ctx context.Context, ext sqlx.ExtContext, id MapID, tags hootsql.Tags) error {
	res, err := ext.ExecContext(ctx, `UPDATE maps SET tags = COALESCE(tags, '{}'::jsonb) || $1::jsonb WHERE id = $2`, tags, id)
	if err != nil {
		return errors.Wrapf(err, "update tags of map %d", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return errors.EnsureStack(&MapNotFoundError{ID: id})
	}
	return nil
}

// TouchMap records that the dataset was accessed at t.
func TouchMap(ctx context.Context, ext sqlx.ExtContext, id MapID, t time.Time) error {
	return UpdateMapTags(ctx, ext, id, hootsql.Tags{TagLastAccessed: t.UTC().Format(LastAccessedLayout)})
}

func mapTags(ctx context.Context, q sqlx.QueryerContext, id MapID) (hootsql.Tags, error) {
	var tags hootsql.Tags
	if err := sqlx.GetContext(ctx, q, &tags, `SELECT tags FROM maps WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.EnsureStack(&MapNotFoundError{ID: id})
		}
		return nil, errors.Wrapf(err, "get tags of map %d", id)
	}
	return tags, nil
}

// MapBounds returns the dataset's bounds tag, falling back to bbox.
func MapBounds(ctx context.Context, q sqlx.QueryerContext, id MapID) (string, error) {
	tags, err := mapTags(ctx, q, id)
	if err != nil {
		return "", err
	}
	if b, ok := tags.Get(TagBounds); ok {
		return b, nil
	}
	return tags[TagBBox], nil
}

// GrailEligible reports whether the dataset is flagged as a grail reference layer.
func GrailEligible(ctx context.Context, q sqlx.QueryerContext, id MapID) (bool, error) {
	tags, err := mapTags(ctx, q, id)
	if err != nil {
		return false, err
	}
	return tags[TagGrailReference] == "true", nil
}

// ConflationType returns CONFLATION_TYPE from the JSON embedded in the dataset's params tag, or
// "" when the dataset has no params.
func ConflationType(ctx context.Context, q sqlx.QueryerContext, id MapID) (string, error) {
	tags, err := mapTags(ctx, q, id)
	if err != nil {
		return "", err
	}
	params, ok := tags[TagParams]
	if !ok {
		return "", nil
	}
	return parseConflationType(id, params)
}

func parseConflationType(id MapID, params string) (string, error) {
	// params is written as a JSON object whose nested objects were stored as escaped strings.
	params = strings.NewReplacer(`\`, ``, `"{`, `{`, `}"`, `}`).Replace(params)
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(params), &obj); err != nil {
		return "", errors.EnsureStack(&MalformedTagError{MapID: id, Tag: TagParams, Err: err})
	}
	v, ok := obj["CONFLATION_TYPE"]
	if !ok || v == nil {
		return "", nil
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return fmt.Sprint(v), nil
}
