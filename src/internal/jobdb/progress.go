package jobdb

import (
	"context"
	"database/sql"

	"github.com/hootenanny/jobtrack/src/internal/errors"
	"github.com/jmoiron/sqlx"
)

// NoCommandRunning is the InFlight value when the job has no running command.
const NoCommandRunning = -1

// ProgressInputs are the three quantities the job's percent complete is derived from.
type ProgressInputs struct {
	// Completed is the number of the job's commands that exited 0.
	Completed int
	// InFlight is the percent of the job's running command, or NoCommandRunning.
	InFlight int
	// Trackable is the number of commands the job expects to run; 0 when the job is missing.
	Trackable int
	// Stored is the percent currently recorded on the job.
	Stored int
}

// ReadProgressInputs performs the three reads independently, without a transaction.
func ReadProgressInputs(ctx context.Context, q sqlx.QueryerContext, id JobID) (ProgressInputs, error) {
	in := ProgressInputs{InFlight: NoCommandRunning}
	if err := sqlx.GetContext(ctx, q, &in.Completed,
		`SELECT count(*) FROM command_status WHERE job_id = $1 AND exit_code = 0`, id); err != nil {
		return in, errors.Wrapf(err, "count completed commands of job %q", id)
	}
	// Only one command per job is expected to be running; the newest wins if there are more.
	if err := sqlx.GetContext(ctx, q, &in.InFlight, `
		SELECT percent_complete FROM command_status
		WHERE job_id = $1 AND exit_code IS NULL
		ORDER BY start DESC, id DESC LIMIT 1`, id); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return in, errors.Wrapf(err, "read running command of job %q", id)
		}
		in.InFlight = NoCommandRunning
	}
	row := struct {
		Trackable int `db:"trackable_command_count"`
		Stored    int `db:"percent_complete"`
	}{}
	if err := sqlx.GetContext(ctx, q, &row,
		`SELECT trackable_command_count, percent_complete FROM job_status WHERE job_id = $1`, id); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return in, errors.Wrapf(err, "read job %q", id)
		}
	}
	in.Trackable, in.Stored = row.Trackable, row.Stored
	return in, nil
}

// ComputeProgress returns floor((Completed*100 + InFlight) / Trackable).  ok is false, and no
// update should happen, unless Completed >= 0, 0 <= InFlight <= 100 and Trackable > 0.
func ComputeProgress(in ProgressInputs) (percent int, ok bool) {
	if in.Completed < 0 || in.InFlight < 0 || in.InFlight > 100 || in.Trackable <= 0 {
		return 0, false
	}
	return (in.Completed*100 + in.InFlight) / in.Trackable, true
}

// RecomputeProgress derives the job's percent complete from its commands and stores it if it
// changed.
func RecomputeProgress(ctx context.Context, ext sqlx.ExtContext, id JobID) (changed bool, _ error) {
	in, err := ReadProgressInputs(ctx, ext, id)
	if err != nil {
		return false, err
	}
	p, ok := ComputeProgress(in)
	if !ok || p == in.Stored {
		return false, nil
	}
	if _, err := ext.ExecContext(ctx,
		`UPDATE job_status SET percent_complete = $1 WHERE job_id = $2`, p, id); err != nil {
		return false, errors.Wrapf(err, "store progress of job %q", id)
	}
	return true, nil
}

// GetJobProgress returns the stored percent complete of the job.
func GetJobProgress(ctx context.Context, q sqlx.QueryerContext, id JobID) (int, error) {
	var p int
	if err := sqlx.GetContext(ctx, q, &p, `SELECT percent_complete FROM job_status WHERE job_id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errors.EnsureStack(&JobNotFoundError{ID: id})
		}
		return 0, errors.Wrapf(err, "read progress of job %q", id)
	}
	return p, nil
}
