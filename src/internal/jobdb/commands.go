package jobdb

import (
	"bufio"
	"context"
	"database/sql"
	"regexp"
	"strings"
	"time"

	"github.com/hootenanny/jobtrack/src/internal/errors"
	"github.com/jmoiron/sqlx"
)

func checkPercent(p int) error {
	if p < 0 || p > 100 {
		return errors.Wrapf(ErrInvalidPercent, "got %d", p)
	}
	return nil
}

// InsertCommand records a new step of cmd.JobID and returns its generated id.
func InsertCommand(ctx context.Context, ext sqlx.ExtContext, cmd *Command) (CommandID, error) {
	if err := checkPercent(cmd.PercentComplete); err != nil {
		return 0, err
	}
	if cmd.Start.IsZero() {
		cmd.Start = time.Now()
	}
	var id CommandID
	if err := sqlx.GetContext(ctx, ext, &id, `
		INSERT INTO command_status (job_id, command, stdout, stderr, percent_complete, start)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		cmd.JobID, cmd.Command, cmd.Stdout, cmd.Stderr, cmd.PercentComplete, cmd.Start,
	); err != nil {
		return 0, errors.Wrapf(err, "insert command for job %q", cmd.JobID)
	}
	cmd.ID = id
	return id, nil
}

// AppendCommandOutput appends to the command's captured output and replaces its percent.
func AppendCommandOutput(ctx context.Context, ext sqlx.ExtContext, id CommandID, stdoutDelta, stderrDelta string, percent int) error {
	if err := checkPercent(percent); err != nil {
		return err
	}
	res, err := ext.ExecContext(ctx, `
		UPDATE command_status
		SET stdout = stdout || $1, stderr = stderr || $2, percent_complete = $3
		WHERE id = $4`, stdoutDelta, stderrDelta, percent, id)
	if err != nil {
		return errors.Wrapf(err, "append output of command %d", id)
	}
	return requireOneRow(res, &CommandNotFoundError{ID: id})
}

// CompleteCommand sets the command's terminal fields.  It does not recompute the job's progress.
func CompleteCommand(ctx context.Context, ext sqlx.ExtContext, id CommandID, exitCode int, finish time.Time) error {
	res, err := ext.ExecContext(ctx,
		`UPDATE command_status SET exit_code = $1, finish = $2 WHERE id = $3`, exitCode, finish, id)
	if err != nil {
		return errors.Wrapf(err, "complete command %d", id)
	}
	return requireOneRow(res, &CommandNotFoundError{ID: id})
}

// ListCommands returns the job's commands in the order they started.
func ListCommands(ctx context.Context, q sqlx.QueryerContext, id JobID) ([]*Command, error) {
	var cmds []*Command
	if err := sqlx.SelectContext(ctx, q, &cmds, `
		SELECT id, job_id, command, stdout, stderr, percent_complete, exit_code, start, finish
		FROM command_status WHERE job_id = $1 ORDER BY start, id`, id); err != nil {
		return nil, errors.Wrapf(err, "list commands of job %q", id)
	}
	return cmds, nil
}

// PushedElement is the last element an upload reported writing.
type PushedElement struct {
	OperationType string
	FeatureType   string
	FeatureID     string
	Version       string
}

var lastPushedRE = regexp.MustCompile(`Last element pushed: Type\((\w+)\) (\w+)\(([0-9]+)\) Version\(([0-9]+)\)`)

// LastPushedInfo finds the "Last element pushed" line in the job's output.  ok is false when
// no command reported one.
func LastPushedInfo(ctx context.Context, q sqlx.QueryerContext, id JobID) (_ PushedElement, ok bool, _ error) {
	var stdout string
	if err := sqlx.GetContext(ctx, q, &stdout, `
		SELECT stdout FROM command_status
		WHERE job_id = $1 AND strpos(stdout, 'Last element pushed:') > 0
		ORDER BY start, id LIMIT 1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PushedElement{}, false, nil
		}
		return PushedElement{}, false, errors.Wrapf(err, "read output of job %q", id)
	}
	m := lastPushedRE.FindStringSubmatch(stdout)
	if m == nil {
		return PushedElement{}, false, nil
	}
	return PushedElement{OperationType: m[1], FeatureType: m[2], FeatureID: m[3], Version: m[4]}, true, nil
}

// StdoutStats returns the "stats = " block from the job's first command: the line holding the
// marker, from the marker on, and every following line up to the first blank one.
func StdoutStats(ctx context.Context, q sqlx.QueryerContext, id JobID) (string, error) {
	var stdout string
	if err := sqlx.GetContext(ctx, q, &stdout,
		`SELECT stdout FROM command_status WHERE job_id = $1 ORDER BY start, id LIMIT 1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", errors.Wrapf(err, "read output of job %q", id)
	}
	return parseStats(stdout), nil
}

func parseStats(stdout string) string {
	var stats []string
	capturing := false
	s := bufio.NewScanner(strings.NewReader(stdout))
	s.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for s.Scan() {
		line := s.Text()
		if !capturing {
			i := strings.Index(line, "stats = ")
			if i < 0 {
				continue
			}
			capturing = true
			line = line[i:]
		}
		if line == "" {
			break
		}
		stats = append(stats, line)
	}
	return strings.Join(stats, "\n")
}

// DidChangesetsUpload reports false only when a command of the job printed that zero
// changesets were uploaded.
func DidChangesetsUpload(ctx context.Context, q sqlx.QueryerContext, id JobID) (bool, error) {
	var n int
	if err := sqlx.GetContext(ctx, q, &n, `
		SELECT count(*) FROM command_status
		WHERE job_id = $1 AND strpos(stdout, E'Total OSM Changesets Uploaded\t0') > 0`, id); err != nil {
		return false, errors.Wrapf(err, "read output of job %q", id)
	}
	return n == 0, nil
}
