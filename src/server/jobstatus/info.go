package jobstatus

import (
	"context"

	"github.com/hootenanny/jobtrack/src/internal/dbutil"
	"github.com/hootenanny/jobtrack/src/internal/hootsql"
	"github.com/hootenanny/jobtrack/src/internal/jobdb"
	"github.com/hootenanny/jobtrack/src/internal/log"
)

// JobInfo is what the job's row and output say about it.
type JobInfo struct {
	Job *jobdb.Job
	// Bounds is the job's bounds tag, or its bbox tag when bounds is unset.
	Bounds string
	// Stats is the "stats = " block printed by the job's first command.
	Stats string
	// LastPushed is the last element an upload reported writing, if any.
	LastPushed *jobdb.PushedElement
	// ChangesetsUploaded is false only when a command reported uploading zero changesets.
	ChangesetsUploaded bool
}

// JobInfo reads the job and what its commands printed, in one read-only transaction.
func (t *Tracker) JobInfo(ctx context.Context, jobID jobdb.JobID) (info *JobInfo, retErr error) {
	ctx, end := log.SpanContext(ctx, "jobInfo", log.JobID(string(jobID)))
	defer end(log.Errorp(&retErr))
	info = &JobInfo{}
	err := dbutil.WithTx(ctx, t.env.DB, func(ctx context.Context, tx *hootsql.Tx) error {
		var err error
		if info.Job, err = jobdb.GetJob(ctx, tx, jobID); err != nil {
			return err
		}
		if info.Bounds, err = jobdb.JobBounds(ctx, tx, jobID); err != nil {
			return err
		}
		if info.Stats, err = jobdb.StdoutStats(ctx, tx, jobID); err != nil {
			return err
		}
		pushed, ok, err := jobdb.LastPushedInfo(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if ok {
			info.LastPushed = &pushed
		}
		info.ChangesetsUploaded, err = jobdb.DidChangesetsUpload(ctx, tx, jobID)
		return err
	}, dbutil.WithReadOnly())
	if err != nil {
		return nil, err
	}
	return info, nil
}

// JobForTask returns the newest job of the tasking manager task, named "<project>" or
// "<project>_<task>".
func (t *Tracker) JobForTask(ctx context.Context, task string) (jobdb.JobID, error) {
	return jobdb.JobIDByTask(ctx, t.env.DB, task)
}

// MarkTimedOut flags the job as timed out.
func (t *Tracker) MarkTimedOut(ctx context.Context, jobID jobdb.JobID) error {
	if err := jobdb.TagTimeout(ctx, t.env.DB, jobID); err != nil {
		return err
	}
	log.Info(ctx, "job timed out", log.JobID(string(jobID)))
	return nil
}

// ClearTimeout clears the timeout flag from every job of the task.
func (t *Tracker) ClearTimeout(ctx context.Context, task string) error {
	return jobdb.RemoveTimeoutTag(ctx, t.env.DB, task)
}

// TimedOutTasks returns the task numbers of the project's timed-out jobs, -1 for a job whose
// taskInfo carries no task number.
func (t *Tracker) TimedOutTasks(ctx context.Context, projectID string) ([]int64, error) {
	return jobdb.TimeoutTasks(ctx, t.env.DB, projectID)
}
