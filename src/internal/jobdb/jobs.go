package jobdb

import (
	"context"
	"database/sql"
	"regexp"
	"strconv"
	"time"

	"github.com/hootenanny/jobtrack/src/internal/dbutil"
	"github.com/hootenanny/jobtrack/src/internal/errors"
	"github.com/hootenanny/jobtrack/src/internal/hootsql"
	"github.com/jmoiron/sqlx"
)

const selectJob = `
	SELECT job_id, status, status_detail, percent_complete, trackable_command_count, start, tags, resource_id
	FROM job_status`

// CreateJob inserts job and its parent edges.  Parents are the union of job.Parents and the
// legacy parentId tag.  A job without a status starts out running.
func CreateJob(ctx context.Context, ext sqlx.ExtContext, job *Job) error {
	if job.ID == "" {
		return errors.New("job id must not be empty")
	}
	if job.Status == "" {
		job.Status = StatusRunning
	}
	if job.Detail == "" {
		job.Detail = DetailRunning
	}
	if job.Start.IsZero() {
		job.Start = time.Now()
	}
	if job.Tags == nil {
		job.Tags = hootsql.Tags{}
	}
	var resourceID sql.NullInt64
	if job.ResourceID != nil {
		resourceID = sql.NullInt64{Int64: *job.ResourceID, Valid: true}
	}
	if _, err := ext.ExecContext(ctx, `
		INSERT INTO job_status (job_id, status, status_detail, percent_complete, trackable_command_count, start, tags, resource_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.Status, job.Detail, job.PercentComplete, job.TrackableCommandCount, job.Start, job.Tags, resourceID,
	); err != nil {
		if dbutil.IsUniqueViolation(err) {
			return errors.EnsureStack(&JobAlreadyExistsError{ID: job.ID})
		}
		return errors.Wrapf(err, "insert job %q", job.ID)
	}
	job.Parents = mergeParents(job.Parents, SplitParents(job.Tags[TagParentID]))
	for _, p := range job.Parents {
		if _, err := ext.ExecContext(ctx,
			`INSERT INTO job_parents (job_id, parent_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			job.ID, p); err != nil {
			return errors.Wrapf(err, "insert parent %q of job %q", p, job.ID)
		}
	}
	return nil
}

func mergeParents(a, b []JobID) []JobID {
	seen := make(map[JobID]bool)
	var result []JobID
	for _, ids := range [][]JobID{a, b} {
		for _, id := range ids {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			result = append(result, id)
		}
	}
	return result
}

func getJob(ctx context.Context, q sqlx.QueryerContext, id JobID) (*Job, error) {
	row := &jobRow{}
	if err := sqlx.GetContext(ctx, q, row, selectJob+` WHERE job_id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.EnsureStack(&JobNotFoundError{ID: id})
		}
		return nil, errors.Wrapf(err, "get job %q", id)
	}
	return row.toJob(), nil
}

// GetJob returns the job with the given id, including its parents.
func GetJob(ctx context.Context, ext sqlx.ExtContext, id JobID) (*Job, error) {
	job, err := getJob(ctx, ext, id)
	if err != nil {
		return nil, err
	}
	if job.Parents, err = ParentsOf(ctx, ext, id); err != nil {
		return nil, err
	}
	return job, nil
}

// SetStatus records the executor's view of the job.
func SetStatus(ctx context.Context, ext sqlx.ExtContext, id JobID, s Status, detail StatusDetail) error {
	res, err := ext.ExecContext(ctx,
		`UPDATE job_status SET status = $1, status_detail = $2 WHERE job_id = $3`, s, detail, id)
	if err != nil {
		return errors.Wrapf(err, "set status of job %q", id)
	}
	return requireOneRow(res, &JobNotFoundError{ID: id})
}

func requireOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return errors.EnsureStack(notFound)
	}
	return nil
}

// MarkStale sets the job's status detail to STALE unless it is in CONFLICTS, which outranks
// STALE.  found is false when the id does not resolve to a job.
func MarkStale(ctx context.Context, ext sqlx.ExtContext, id JobID) (found bool, _ error) {
	res, err := ext.ExecContext(ctx, `
		UPDATE job_status
		SET status_detail = CASE WHEN status_detail = $1 THEN status_detail ELSE $2 END
		WHERE job_id = $3`, DetailConflicts, DetailStale, id)
	if err != nil {
		return false, errors.Wrapf(err, "mark job %q stale", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return n > 0, nil
}

// SetConflicted sets the job's status detail to CONFLICTS.  found is false when the id does not
// resolve to a job.
func SetConflicted(ctx context.Context, ext sqlx.ExtContext, id JobID) (found bool, _ error) {
	res, err := ext.ExecContext(ctx,
		`UPDATE job_status SET status_detail = $1 WHERE job_id = $2`, DetailConflicts, id)
	if err != nil {
		return false, errors.Wrapf(err, "mark job %q conflicted", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return n > 0, nil
}

// JobIDsByMapID returns the jobs that produced the dataset, newest first.
func JobIDsByMapID(ctx context.Context, q sqlx.QueryerContext, mapID int64) ([]JobID, error) {
	var ids []JobID
	if err := sqlx.SelectContext(ctx, q, &ids,
		`SELECT job_id FROM job_status WHERE resource_id = $1 ORDER BY start DESC`, mapID); err != nil {
		return nil, errors.Wrapf(err, "list jobs of map %d", mapID)
	}
	return ids, nil
}

// JobIDsByMapIDs returns, for each of the datasets, the jobs that produced it.
func JobIDsByMapIDs(ctx context.Context, q sqlx.QueryerContext, mapIDs []int64) ([]JobID, error) {
	if len(mapIDs) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(mapIDs))
	for i, id := range mapIDs {
		args[i] = id
	}
	var ids []JobID
	if err := sqlx.SelectContext(ctx, q, &ids,
		`SELECT job_id FROM job_status WHERE resource_id IN (`+hootsql.Placeholders(1, len(args))+`) ORDER BY job_id`,
		args...); err != nil {
		return nil, errors.Wrap(err, "list jobs of maps")
	}
	return ids, nil
}

// MapIDByJobID returns the dataset the job produced; ok is false if it produced none.
func MapIDByJobID(ctx context.Context, q sqlx.QueryerContext, id JobID) (mapID int64, ok bool, _ error) {
	var res sql.NullInt64
	if err := sqlx.GetContext(ctx, q, &res, `SELECT resource_id FROM job_status WHERE job_id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, errors.EnsureStack(&JobNotFoundError{ID: id})
		}
		return 0, false, errors.Wrapf(err, "get resource of job %q", id)
	}
	return res.Int64, res.Valid, nil
}

// JobBounds returns the job's bounds tag, falling back to bbox.  It is empty if neither is set.
func JobBounds(ctx context.Context, q sqlx.QueryerContext, id JobID) (string, error) {
	job, err := getJob(ctx, q, id)
	if err != nil {
		return "", err
	}
	if b, ok := job.Tags.Get(TagBounds); ok {
		return b, nil
	}
	return job.Tags[TagBBox], nil
}

const taskPrefix = "taskingManager:"

// JobIDByTask returns the newest job whose taskInfo tag names the tasking manager task.
func JobIDByTask(ctx context.Context, q sqlx.QueryerContext, task string) (JobID, error) {
	var id JobID
	if err := sqlx.GetContext(ctx, q, &id, `
		SELECT job_id FROM job_status
		WHERE tags->>'taskInfo' = $1
		ORDER BY start DESC LIMIT 1`, taskPrefix+task); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", errors.EnsureStack(&JobNotFoundError{ID: JobID(taskPrefix + task)})
		}
		return "", errors.Wrapf(err, "get job of task %q", task)
	}
	return id, nil
}

// TagTimeout flags the job as timed out.
func TagTimeout(ctx context.Context, ext sqlx.ExtContext, id JobID) error {
	res, err := ext.ExecContext(ctx,
		`UPDATE job_status SET tags = tags || jsonb_build_object('timeout', 'true') WHERE job_id = $1`, id)
	if err != nil {
		return errors.Wrapf(err, "tag job %q timed out", id)
	}
	return requireOneRow(res, &JobNotFoundError{ID: id})
}

// RemoveTimeoutTag clears the timeout flag from every job of the tasking manager task.
func RemoveTimeoutTag(ctx context.Context, ext sqlx.ExtContext, task string) error {
	if _, err := ext.ExecContext(ctx,
		`UPDATE job_status SET tags = tags - 'timeout' WHERE tags->>'taskInfo' = $1`, taskPrefix+task); err != nil {
		return errors.Wrapf(err, "remove timeout tag of task %q", task)
	}
	return nil
}

// TimeoutTasks returns the task numbers of the project's timed-out jobs.  A taskInfo tag that does
// not carry a task number yields -1.
func TimeoutTasks(ctx context.Context, q sqlx.QueryerContext, projectID string) ([]int64, error) {
	var infos []string
	if err := sqlx.SelectContext(ctx, q, &infos, `
		SELECT tags->>'taskInfo' FROM job_status
		WHERE tags->>'timeout' IS NOT NULL AND starts_with(tags->>'taskInfo', $1)
		ORDER BY start`, taskPrefix+projectID); err != nil {
		return nil, errors.Wrapf(err, "list timed out tasks of project %q", projectID)
	}
	re := regexp.MustCompile(regexp.QuoteMeta(taskPrefix+projectID+"_") + `([0-9]+)`)
	tasks := make([]int64, 0, len(infos))
	for _, info := range infos {
		task := int64(-1)
		if m := re.FindStringSubmatch(info); m != nil {
			if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
				task = n
			}
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}
