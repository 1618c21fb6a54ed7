package mapdb

import (
	"context"
	"time"

	"github.com/hootenanny/jobtrack/src/internal/errors"
	"github.com/jmoiron/sqlx"
)

// LastAccessedLayout is the format of the lastAccessed tag: UTC, millisecond precision.
const LastAccessedLayout = "2006-01-02T15:04:05.000Z"

// staleCondition mirrors IsStale.  $1 is the threshold.  The CASE keeps a malformed tag from
// failing the whole query.
const staleCondition = `
	(CASE
		WHEN maps.tags->>'lastAccessed' IS NULL THEN maps.created_at < $1
		WHEN maps.tags->>'lastAccessed' ~ '^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$'
			THEN (maps.tags->>'lastAccessed')::timestamptz < $1
		ELSE FALSE
	END)`

// IsStale reports whether m has not been accessed since threshold: it has no lastAccessed tag
// and was created before threshold, or its lastAccessed tag is before threshold.  An unparsable
// lastAccessed tag never makes a dataset stale.
func IsStale(m *Map, threshold time.Time) bool {
	la, ok := m.Tags[TagLastAccessed]
	if !ok {
		return m.CreatedAt.Before(threshold)
	}
	t, err := time.Parse(LastAccessedLayout, la)
	if err != nil {
		return false
	}
	return t.Before(threshold)
}

// FindStaleMaps returns every stale dataset, oldest first.
func FindStaleMaps(ctx context.Context, q sqlx.QueryerContext, threshold time.Time) ([]*Map, error) {
	var maps []*Map
	if err := sqlx.SelectContext(ctx, q, &maps,
		selectMap+` WHERE `+staleCondition+` ORDER BY created_at, id`, threshold); err != nil {
		return nil, errors.Wrap(err, "find stale maps")
	}
	return maps, nil
}

// StaleMapsSummary counts stale datasets per owner display name.  Owners without stale datasets
// are absent.
func StaleMapsSummary(ctx context.Context, q sqlx.QueryerContext, threshold time.Time) (map[string]int64, error) {
	var rows []struct {
		Owner string `db:"display_name"`
		Count int64  `db:"count"`
	}
	if err := sqlx.SelectContext(ctx, q, &rows, `
		SELECT users.display_name, count(DISTINCT maps.id) AS count
		FROM users JOIN maps ON users.id = maps.user_id
		WHERE `+staleCondition+`
		GROUP BY users.display_name`, threshold); err != nil {
		return nil, errors.Wrap(err, "summarize stale maps")
	}
	summary := make(map[string]int64, len(rows))
	for _, r := range rows {
		summary[r.Owner] = r.Count
	}
	return summary, nil
}
