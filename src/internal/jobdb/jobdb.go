// Package jobdb stores job and command status: job rows, their commands' captured output, the
// aggregated percent complete, and the parent relation between jobs.
package jobdb

import (
	"database/sql"
	"strings"
	"time"

	"github.com/hootenanny/jobtrack/src/internal/hootsql"
)

// JobID identifies a job.  Job ids are opaque strings chosen by the submitter.
type JobID string

// CommandID identifies one step of a job.
type CommandID int64

// StatusDetail is the fine-grained state of a job.
type StatusDetail string

const (
	DetailRunning   StatusDetail = "RUNNING"
	DetailComplete  StatusDetail = "COMPLETE"
	DetailFailed    StatusDetail = "FAILED"
	DetailStale     StatusDetail = "STALE"
	DetailConflicts StatusDetail = "CONFLICTS"
)

// Status is the coarse state of a job, as reported to the executor.
type Status string

const (
	StatusRunning   Status = "running"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Tag keys with meaning to this package.
const (
	TagParentID   = "parentId"
	TagTaskInfo   = "taskInfo"
	TagTimeoutKey = "timeout"
	TagBounds     = "bounds"
	TagBBox       = "bbox"
)

// Job is a row of job_status, plus the job's explicit parents.
type Job struct {
	ID                    JobID
	Status                Status
	Detail                StatusDetail
	PercentComplete       int
	TrackableCommandCount int
	Start                 time.Time
	Tags                  hootsql.Tags
	// ResourceID is the dataset the job produced, if any.
	ResourceID *int64
	Parents    []JobID
}

type jobRow struct {
	ID                    string         `db:"job_id"`
	Status                string         `db:"status"`
	Detail                sql.NullString `db:"status_detail"`
	PercentComplete       int            `db:"percent_complete"`
	TrackableCommandCount int            `db:"trackable_command_count"`
	Start                 time.Time      `db:"start"`
	Tags                  hootsql.Tags   `db:"tags"`
	ResourceID            sql.NullInt64  `db:"resource_id"`
}

func (r *jobRow) toJob() *Job {
	j := &Job{
		ID:                    JobID(r.ID),
		Status:                Status(r.Status),
		Detail:                StatusDetail(r.Detail.String),
		PercentComplete:       r.PercentComplete,
		TrackableCommandCount: r.TrackableCommandCount,
		Start:                 r.Start,
		Tags:                  r.Tags,
	}
	if r.ResourceID.Valid {
		id := r.ResourceID.Int64
		j.ResourceID = &id
	}
	return j
}

// Command is a row of command_status.
type Command struct {
	ID              CommandID     `db:"id"`
	JobID           JobID         `db:"job_id"`
	Command         string        `db:"command"`
	Stdout          string        `db:"stdout"`
	Stderr          string        `db:"stderr"`
	PercentComplete int           `db:"percent_complete"`
	ExitCode        sql.NullInt32 `db:"exit_code"`
	Start           time.Time     `db:"start"`
	Finish          sql.NullTime  `db:"finish"`
}

// Running reports whether the command has not yet recorded an exit code.
func (c *Command) Running() bool {
	return !c.ExitCode.Valid
}

// SplitParents parses the legacy comma-separated parentId tag.  Empty entries are dropped.
func SplitParents(tag string) []JobID {
	var ids []JobID
	for _, p := range strings.Split(tag, ",") {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, JobID(p))
		}
	}
	return ids
}
