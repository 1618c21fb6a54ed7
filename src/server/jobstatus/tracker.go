// Package jobstatus is the best-effort job status service: it records command progress, keeps
// each job's percent complete current, and propagates STALE and CONFLICTS through the job
// hierarchy.  Apart from command writes, its operations log and swallow their failures.
package jobstatus

import (
	"context"
	"time"

	"github.com/hootenanny/jobtrack/src/internal/changesets"
	"github.com/hootenanny/jobtrack/src/internal/hootconfig"
	"github.com/hootenanny/jobtrack/src/internal/hootsql"
	"github.com/hootenanny/jobtrack/src/internal/jobdb"
	"github.com/hootenanny/jobtrack/src/internal/log"
	"go.uber.org/zap"
)

// Env is the dependencies of a Tracker.
type Env struct {
	DB        *hootsql.DB
	Workspace changesets.Workspace
	// MaxAncestorDepth bounds staleness propagation; zero means jobdb.DefaultMaxAncestorDepth.
	MaxAncestorDepth int
	// SweepCacheSize bounds the set of jobs remembered as marked during one sweep.
	SweepCacheSize int
}

// Tracker tracks job status.  It holds no state between calls and is safe for concurrent use.
type Tracker struct {
	env Env
}

// NewTracker returns a Tracker.
func NewTracker(env Env) *Tracker {
	if env.MaxAncestorDepth <= 0 {
		env.MaxAncestorDepth = jobdb.DefaultMaxAncestorDepth
	}
	if env.SweepCacheSize <= 0 {
		env.SweepCacheSize = 4096
	}
	return &Tracker{env: env}
}

func suppress(ctx context.Context, op string, err error, fields ...log.Field) {
	suppressedErrorsMetric.WithLabelValues(op).Inc()
	log.Error(ctx, op+" failed; continuing", append(fields, zap.Error(err))...)
}

// RecordCommandUpdate records output from one of the job's commands.  When id is zero a new
// command is inserted and its id returned; otherwise the deltas are appended to command id and
// its percent replaced.  The job's progress is recomputed afterwards in either case.  Only an
// error writing the command is returned.
func (t *Tracker) RecordCommandUpdate(ctx context.Context, jobID jobdb.JobID, id jobdb.CommandID, command, stdoutDelta, stderrDelta string, percent int) (jobdb.CommandID, error) {
	if id == 0 {
		var err error
		id, err = jobdb.InsertCommand(ctx, t.env.DB, &jobdb.Command{
			JobID:           jobID,
			Command:         command,
			Stdout:          stdoutDelta,
			Stderr:          stderrDelta,
			PercentComplete: percent,
		})
		if err != nil {
			return 0, err
		}
		commandUpdatesMetric.WithLabelValues("insert").Inc()
	} else {
		if err := jobdb.AppendCommandOutput(ctx, t.env.DB, id, stdoutDelta, stderrDelta, percent); err != nil {
			return 0, err
		}
		commandUpdatesMetric.WithLabelValues("append").Inc()
	}
	t.RecomputeProgress(ctx, jobID)
	return id, nil
}

// CompleteCommand records the command's exit.  The job's progress is left as it is; the
// executor finishes the job with jobdb.SetStatus.
func (t *Tracker) CompleteCommand(ctx context.Context, id jobdb.CommandID, exitCode int, finish time.Time) error {
	return jobdb.CompleteCommand(ctx, t.env.DB, id, exitCode, finish)
}

// RecomputeProgress refreshes the job's stored percent complete.  It reports whether the stored
// value changed; failures are logged and reported as no change.
func (t *Tracker) RecomputeProgress(ctx context.Context, jobID jobdb.JobID) bool {
	changed, err := jobdb.RecomputeProgress(ctx, t.env.DB, jobID)
	switch {
	case err != nil:
		recomputeMetric.WithLabelValues("failed").Inc()
		suppress(ctx, "recompute progress", err, log.JobID(string(jobID)))
	case changed:
		recomputeMetric.WithLabelValues("changed").Inc()
	default:
		recomputeMetric.WithLabelValues("unchanged").Inc()
	}
	return changed
}

// SetStale marks the job and each of its ancestors STALE, except those in CONFLICTS, and returns
// how many jobs it reached.  An id that does not resolve to a job marks nothing, and neither is
// anything above a parent that does not resolve.  Failures are logged.
func (t *Tracker) SetStale(ctx context.Context, jobID jobdb.JobID) int {
	return t.setStale(ctx, jobID, nil)
}

// markedSet remembers the jobs already marked during a sweep.
type markedSet interface {
	Contains(jobdb.JobID) bool
	Add(jobdb.JobID, struct{}) bool
}

func (t *Tracker) setStale(ctx context.Context, jobID jobdb.JobID, marked markedSet) (n int) {
	ctx, end := log.SpanContext(ctx, "setStale", log.JobID(string(jobID)))
	var walkErr error
	defer func() { end(log.Errorp(&walkErr), zap.Int("marked", n)) }()
	walkErr = jobdb.WalkAncestors(ctx, t.env.DB, jobID, t.env.MaxAncestorDepth, func(id jobdb.JobID) (bool, error) {
		if marked != nil && marked.Contains(id) {
			return false, nil
		}
		found, err := jobdb.MarkStale(ctx, t.env.DB, id)
		if err != nil {
			suppress(ctx, "mark stale", err, log.JobID(string(id)))
			return false, nil
		}
		if !found {
			return false, nil
		}
		n++
		staleMarkedMetric.Inc()
		if marked != nil {
			marked.Add(id, struct{}{})
		}
		return true, nil
	})
	if walkErr != nil {
		suppress(ctx, "propagate staleness", walkErr, log.JobID(string(jobID)))
	}
	return n
}

// CheckConflicted looks for conflict markers left in the parent's changesets directory and, if
// there are any, marks the job CONFLICTS.  Jobs without a parent are never checked.  It reports
// whether the job was marked; failures are logged.
func (t *Tracker) CheckConflicted(ctx context.Context, jobID, parentID jobdb.JobID) bool {
	if parentID == "" {
		return false
	}
	markers, err := t.env.Workspace.ConflictMarkers(string(parentID))
	if err != nil {
		suppress(ctx, "check conflicts", err, log.JobID(string(jobID)), zap.String("parentID", string(parentID)))
		return false
	}
	if len(markers) == 0 {
		return false
	}
	found, err := jobdb.SetConflicted(ctx, t.env.DB, jobID)
	if err != nil {
		suppress(ctx, "mark conflicted", err, log.JobID(string(jobID)))
		return false
	}
	if !found {
		log.Debug(ctx, "conflict markers found for unknown job", log.JobID(string(jobID)))
		return false
	}
	conflictsMetric.Inc()
	log.Info(ctx, "job has unapplied changes", log.JobID(string(jobID)), zap.Strings("markers", markers))
	return true
}

// JobProgress returns the job's stored percent complete.
func (t *Tracker) JobProgress(ctx context.Context, jobID jobdb.JobID) (int, error) {
	return jobdb.GetJobProgress(ctx, t.env.DB, jobID)
}

// EnvFromConfig returns the Env described by the service configuration.
func EnvFromConfig(db *hootsql.DB, c *hootconfig.Configuration) Env {
	return Env{
		DB:               db,
		Workspace:        changesets.Workspace{Root: c.ChangesetsFolder},
		MaxAncestorDepth: c.AncestorDepth(),
		SweepCacheSize:   c.Sweep.CacheSize,
	}
}
