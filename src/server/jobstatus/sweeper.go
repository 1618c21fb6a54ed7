package jobstatus

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hootenanny/jobtrack/src/internal/cronutil"
	"github.com/hootenanny/jobtrack/src/internal/errors"
	"github.com/hootenanny/jobtrack/src/internal/jobdb"
	"github.com/hootenanny/jobtrack/src/internal/log"
	"github.com/hootenanny/jobtrack/src/internal/mapdb"
	"github.com/robfig/cron"
	"go.uber.org/zap"
)

// SweepResult summarizes one SweepStale call.
type SweepResult struct {
	StaleMaps int
	Jobs      int
	// Marked counts every job marked, ancestors included.
	Marked int
}

// SweepStale marks stale every job that produced a dataset not accessed since threshold, along
// with the job's ancestors.  Jobs shared between several datasets' ancestries are marked once.
// Only the queries selecting the jobs can fail the sweep.
func (t *Tracker) SweepStale(ctx context.Context, threshold time.Time) (_ SweepResult, retErr error) {
	ctx, end := log.SpanContextL(ctx, "sweepStale", log.InfoLevel, zap.Time("threshold", threshold))
	defer end(log.Errorp(&retErr))
	start := time.Now()
	defer func() { sweepDurationMetric.Observe(time.Since(start).Seconds()) }()

	var res SweepResult
	maps, err := mapdb.FindStaleMaps(ctx, t.env.DB, threshold)
	if err != nil {
		return res, err
	}
	res.StaleMaps = len(maps)
	ids := make([]int64, len(maps))
	for i, m := range maps {
		ids[i] = int64(m.ID)
	}
	jobs, err := jobdb.JobIDsByMapIDs(ctx, t.env.DB, ids)
	if err != nil {
		return res, err
	}
	res.Jobs = len(jobs)
	marked, err := lru.New[jobdb.JobID, struct{}](t.env.SweepCacheSize)
	if err != nil {
		return res, errors.Wrap(err, "create marked-job cache")
	}
	for _, id := range jobs {
		if err := ctx.Err(); err != nil {
			return res, errors.EnsureStack(err)
		}
		res.Marked += t.setStale(ctx, id, marked)
	}
	log.Info(ctx, "stale sweep done", zap.Int("staleMaps", res.StaleMaps), zap.Int("jobs", res.Jobs), zap.Int("marked", res.Marked))
	return res, nil
}

// Sweeper runs SweepStale on a schedule.
type Sweeper struct {
	tracker  *Tracker
	schedule cron.Schedule
	maxAge   time.Duration
	now      func() time.Time
}

// NewSweeper returns a Sweeper that, at each activation of the cron expression, sweeps datasets
// not accessed in the last maxAge.
func NewSweeper(t *Tracker, cronExpr string, maxAge time.Duration) (*Sweeper, error) {
	s, err := cronutil.ParseCronExpression(cronExpr)
	if err != nil {
		return nil, err
	}
	if maxAge <= 0 {
		return nil, errors.Errorf("stale map age must be positive, got %v", maxAge)
	}
	return &Sweeper{tracker: t, schedule: s, maxAge: maxAge, now: time.Now}, nil
}

// Threshold is the access time before which datasets are stale as of now.
func (s *Sweeper) Threshold() time.Time {
	return s.now().Add(-s.maxAge)
}

// SweepOnce sweeps immediately.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	return s.tracker.SweepStale(ctx, s.Threshold())
}

// Run sweeps at each activation of the schedule until ctx is done.  A failed sweep is logged
// and the next activation proceeds normally.
func (s *Sweeper) Run(ctx context.Context) error {
	ctx = log.ChildLogger(ctx, "sweeper")
	if cronutil.IsNever(s.schedule) {
		log.Info(ctx, "stale sweep disabled")
		<-ctx.Done()
		return errors.EnsureStack(context.Cause(ctx))
	}
	return cronutil.Run(ctx, s.schedule, func(ctx context.Context) error {
		_, err := s.SweepOnce(ctx)
		return err
	}, func(err error) {
		suppress(ctx, "stale sweep", err)
	})
}
