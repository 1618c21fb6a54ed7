package jobdb

import (
	"context"

	"github.com/hootenanny/jobtrack/src/internal/errors"
	"github.com/hootenanny/jobtrack/src/internal/log"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// DefaultMaxAncestorDepth bounds ancestor walks when no other bound is configured.
const DefaultMaxAncestorDepth = 64

// ParentsOf returns the job's parents: the explicit relation plus anything still named by the
// parentId tag.
func ParentsOf(ctx context.Context, q sqlx.QueryerContext, id JobID) ([]JobID, error) {
	var parents []JobID
	if err := sqlx.SelectContext(ctx, q, &parents, `
		SELECT parent_id FROM job_parents WHERE job_id = $1
		UNION
		SELECT trim(p) FROM job_status, unnest(string_to_array(tags->>'parentId', ',')) AS p
		WHERE job_id = $1 AND trim(p) <> ''
		ORDER BY 1`, id); err != nil {
		return nil, errors.Wrapf(err, "list parents of job %q", id)
	}
	return parents, nil
}

// AddParent records that parent is a parent of id.
func AddParent(ctx context.Context, ext sqlx.ExtContext, id, parent JobID) error {
	if _, err := ext.ExecContext(ctx,
		`INSERT INTO job_parents (job_id, parent_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, id, parent); err != nil {
		return errors.Wrapf(err, "add parent %q to job %q", parent, id)
	}
	return nil
}

// WalkAncestors calls visit on start and then on each of its ancestors, breadth first.  Each job
// is visited at most once, and nothing deeper than maxDepth hops above start is visited, so the
// walk terminates even on cyclic data.  When visit returns false the walk does not continue past
// that job.  A visit error aborts the walk.
func WalkAncestors(ctx context.Context, q sqlx.QueryerContext, start JobID, maxDepth int, visit func(JobID) (bool, error)) error {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxAncestorDepth
	}
	visited := map[JobID]bool{start: true}
	frontier := []JobID{start}
	for depth := 0; len(frontier) > 0; depth++ {
		var next []JobID
		for _, id := range frontier {
			cont, err := visit(id)
			if err != nil {
				return err
			}
			if !cont {
				continue
			}
			if depth == maxDepth {
				log.Info(ctx, "ancestor walk reached its depth bound", log.JobID(string(start)), zap.Int("maxDepth", maxDepth))
				continue
			}
			parents, err := ParentsOf(ctx, q, id)
			if err != nil {
				return err
			}
			for _, p := range parents {
				if !visited[p] {
					visited[p] = true
					next = append(next, p)
				}
			}
		}
		frontier = next
	}
	return nil
}
