// Package cronutil parses sweep schedules and runs functions on them.
package cronutil

import (
	"context"
	"strings"
	"time"

	"github.com/hootenanny/jobtrack/src/internal/errors"
	"github.com/robfig/cron"
)

const (
	// epoch seconds for UTC 9999-01-01T00:00:00
	epoch_9999_01_01 = 253_370_764_800
)

// Never is a cron.Schedule whose next activation is the start of year 9999.
type Never struct{}

// Next implements cron.Schedule.
func (Never) Next(_ time.Time) time.Time {
	return time.Unix(epoch_9999_01_01, 0)
}

// ParseCronExpression parses a standard five-field cron expression or descriptor such as
// @hourly or "@every 10m".  It additionally accepts @never, which disables the schedule.
func ParseCronExpression(cronExpr string) (cron.Schedule, error) {
	if strings.TrimSpace(cronExpr) == "@never" {
		return Never{}, nil
	}
	s, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, errors.Wrapf(err, "parse cron expression %q", cronExpr)
	}
	return s, nil
}

// IsNever reports whether s never fires.
func IsNever(s cron.Schedule) bool {
	_, ok := s.(Never)
	return ok
}

// Run calls f at each activation of s until ctx is done, returning ctx's error.  An error from f
// is passed to onErr and does not stop the loop.  Activations missed while f runs are skipped.
func Run(ctx context.Context, s cron.Schedule, f func(context.Context) error, onErr func(error)) error {
	return run(ctx, s, time.Now, f, onErr)
}

func run(ctx context.Context, s cron.Schedule, now func() time.Time, f func(context.Context) error, onErr func(error)) error {
	for {
		next := s.Next(now())
		t := time.NewTimer(next.Sub(now()))
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.EnsureStack(context.Cause(ctx))
		case <-t.C:
		}
		if err := f(ctx); err != nil && onErr != nil {
			onErr(err)
		}
	}
}
