package jobdb

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hootenanny/jobtrack/src/internal/errors"
	"github.com/hootenanny/jobtrack/src/internal/hootsql"
	"github.com/hootenanny/jobtrack/src/internal/pctx"
	"github.com/hootenanny/jobtrack/src/internal/require"
	"github.com/jmoiron/sqlx"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		raw.Close()
	})
	return sqlx.NewDb(raw, hootsql.DriverName), mock
}

func expectProgressInputs(mock sqlmock.Sqlmock, id string, completed int, inFlight *int, trackable, stored int) {
	mock.ExpectQuery(`exit_code = 0`).WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(completed))
	running := mock.ExpectQuery(`exit_code IS NULL`).WithArgs(id)
	if inFlight == nil {
		running.WillReturnRows(sqlmock.NewRows([]string{"percent_complete"}))
	} else {
		running.WillReturnRows(sqlmock.NewRows([]string{"percent_complete"}).AddRow(*inFlight))
	}
	mock.ExpectQuery(`SELECT trackable_command_count, percent_complete FROM job_status`).WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"trackable_command_count", "percent_complete"}).AddRow(trackable, stored))
}

func intp(i int) *int { return &i }

func TestComputeProgress(t *testing.T) {
	for _, tc := range []struct {
		name   string
		in     ProgressInputs
		want   int
		wantOK bool
	}{
		{"half way through the third of four", ProgressInputs{Completed: 2, InFlight: 50, Trackable: 4}, 62, true},
		{"first command starting", ProgressInputs{Completed: 0, InFlight: 0, Trackable: 3}, 0, true},
		{"last command finishing", ProgressInputs{Completed: 3, InFlight: 100, Trackable: 4}, 100, true},
		{"nothing running", ProgressInputs{Completed: 2, InFlight: NoCommandRunning, Trackable: 4}, 0, false},
		{"no trackable commands", ProgressInputs{Completed: 2, InFlight: 50, Trackable: 0}, 0, false},
		{"percent out of range", ProgressInputs{Completed: 1, InFlight: 101, Trackable: 4}, 0, false},
		{"negative count", ProgressInputs{Completed: -1, InFlight: 10, Trackable: 4}, 0, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ComputeProgress(tc.in)
			require.Equal(t, tc.wantOK, ok)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestRecomputeProgressWrites(t *testing.T) {
	ctx := pctx.TestContext(t)
	db, mock := newMockDB(t)
	expectProgressInputs(mock, "job", 2, intp(50), 4, 10)
	mock.ExpectExec(`UPDATE job_status SET percent_complete`).WithArgs(62, "job").
		WillReturnResult(sqlmock.NewResult(0, 1))
	changed, err := RecomputeProgress(ctx, db, "job")
	require.NoError(t, err)
	require.True(t, changed)
}

func TestRecomputeProgressUnchanged(t *testing.T) {
	ctx := pctx.TestContext(t)
	db, mock := newMockDB(t)
	expectProgressInputs(mock, "job", 2, intp(50), 4, 62)
	changed, err := RecomputeProgress(ctx, db, "job")
	require.NoError(t, err)
	require.False(t, changed)
}

func TestRecomputeProgressSkipped(t *testing.T) {
	t.Run("no running command", func(t *testing.T) {
		ctx := pctx.TestContext(t)
		db, mock := newMockDB(t)
		expectProgressInputs(mock, "job", 2, nil, 4, 10)
		changed, err := RecomputeProgress(ctx, db, "job")
		require.NoError(t, err)
		require.False(t, changed)
	})
	t.Run("zero trackable commands", func(t *testing.T) {
		ctx := pctx.TestContext(t)
		db, mock := newMockDB(t)
		expectProgressInputs(mock, "job", 2, intp(50), 0, 10)
		changed, err := RecomputeProgress(ctx, db, "job")
		require.NoError(t, err)
		require.False(t, changed)
	})
}

func TestReadProgressInputsMissingJob(t *testing.T) {
	ctx := pctx.TestContext(t)
	db, mock := newMockDB(t)
	mock.ExpectQuery(`exit_code = 0`).WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`exit_code IS NULL`).WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"percent_complete"}))
	mock.ExpectQuery(`SELECT trackable_command_count`).WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"trackable_command_count", "percent_complete"}))
	in, err := ReadProgressInputs(ctx, db, "gone")
	require.NoError(t, err)
	require.Equal(t, ProgressInputs{InFlight: NoCommandRunning}, in)
}

func expectParents(mock sqlmock.Sqlmock, id string, parents ...string) {
	rows := sqlmock.NewRows([]string{"parent_id"})
	for _, p := range parents {
		rows.AddRow(p)
	}
	mock.ExpectQuery(`SELECT parent_id FROM job_parents`).WithArgs(id).WillReturnRows(rows)
}

func TestWalkAncestors(t *testing.T) {
	ctx := pctx.TestContext(t)
	db, mock := newMockDB(t)
	expectParents(mock, "self", "A", "B")
	expectParents(mock, "A", "C")
	expectParents(mock, "B")
	expectParents(mock, "C")
	var visited []JobID
	require.NoError(t, WalkAncestors(ctx, db, "self", 0, func(id JobID) (bool, error) {
		visited = append(visited, id)
		return true, nil
	}))
	require.Equal(t, []JobID{"self", "A", "B", "C"}, visited)
}

func TestWalkAncestorsCycle(t *testing.T) {
	ctx := pctx.TestContext(t)
	db, mock := newMockDB(t)
	expectParents(mock, "A", "B")
	expectParents(mock, "B", "A")
	var visited []JobID
	require.NoError(t, WalkAncestors(ctx, db, "A", 0, func(id JobID) (bool, error) {
		visited = append(visited, id)
		return true, nil
	}))
	require.Equal(t, []JobID{"A", "B"}, visited)
}

func TestWalkAncestorsDepthBound(t *testing.T) {
	ctx := pctx.TestContext(t)
	db, mock := newMockDB(t)
	expectParents(mock, "a", "b")
	var visited []JobID
	require.NoError(t, WalkAncestors(ctx, db, "a", 1, func(id JobID) (bool, error) {
		visited = append(visited, id)
		return true, nil
	}))
	require.Equal(t, []JobID{"a", "b"}, visited)
}

func TestWalkAncestorsStopsAtUnresolved(t *testing.T) {
	ctx := pctx.TestContext(t)
	db, _ := newMockDB(t)
	var visited []JobID
	require.NoError(t, WalkAncestors(ctx, db, "missing", 0, func(id JobID) (bool, error) {
		visited = append(visited, id)
		return false, nil
	}))
	require.Equal(t, []JobID{"missing"}, visited)
}

func TestMarkStale(t *testing.T) {
	ctx := pctx.TestContext(t)
	db, mock := newMockDB(t)
	mock.ExpectExec(`UPDATE job_status\s+SET status_detail = CASE`).
		WithArgs("CONFLICTS", "STALE", "job").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE job_status\s+SET status_detail = CASE`).
		WithArgs("CONFLICTS", "STALE", "gone").WillReturnResult(sqlmock.NewResult(0, 0))
	found, err := MarkStale(ctx, db, "job")
	require.NoError(t, err)
	require.True(t, found)
	found, err = MarkStale(ctx, db, "gone")
	require.NoError(t, err)
	require.False(t, found)
}

func TestAppendCommandOutput(t *testing.T) {
	ctx := pctx.TestContext(t)
	db, mock := newMockDB(t)
	mock.ExpectExec(`SET stdout = stdout \|\| \$1`).WithArgs("more\n", "", 40, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET stdout = stdout \|\| \$1`).WithArgs("", "", 40, 8).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, AppendCommandOutput(ctx, db, 7, "more\n", "", 40))
	err := AppendCommandOutput(ctx, db, 8, "", "", 40)
	require.True(t, errors.Is(err, &CommandNotFoundError{}))
	require.ErrorIs(t, AppendCommandOutput(ctx, db, 8, "", "", 140), ErrInvalidPercent)
}

func TestInsertCommand(t *testing.T) {
	ctx := pctx.TestContext(t)
	db, mock := newMockDB(t)
	mock.ExpectQuery(`INSERT INTO command_status`).
		WithArgs("job", "hoot convert", "", "", 0, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))
	cmd := &Command{JobID: "job", Command: "hoot convert"}
	id, err := InsertCommand(ctx, db, cmd)
	require.NoError(t, err)
	require.Equal(t, CommandID(12), id)
	require.Equal(t, CommandID(12), cmd.ID)
	require.False(t, cmd.Start.IsZero())
}

func TestCompleteCommand(t *testing.T) {
	ctx := pctx.TestContext(t)
	db, mock := newMockDB(t)
	finish := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE command_status SET exit_code`).WithArgs(0, finish, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, CompleteCommand(ctx, db, 3, 0, finish))
}

func TestGetJobNotFound(t *testing.T) {
	ctx := pctx.TestContext(t)
	db, mock := newMockDB(t)
	mock.ExpectQuery(`FROM job_status WHERE job_id = \$1`).WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"job_id"}))
	_, err := GetJob(ctx, db, "gone")
	require.YesError(t, err)
	var notFound *JobNotFoundError
	require.True(t, errors.As(err, &notFound))
	require.Equal(t, JobID("gone"), notFound.ID)
}

func TestSplitParents(t *testing.T) {
	require.Equal(t, []JobID{"A", "B"}, SplitParents("A, B,"))
	require.Len(t, SplitParents(""), 0)
}

func TestMergeParents(t *testing.T) {
	require.Equal(t, []JobID{"A", "B", "C"}, mergeParents([]JobID{"A", "B"}, []JobID{"B", "C"}))
}

func TestParseStats(t *testing.T) {
	out := "Loading\nstats = (stat) name\nNodes: 12\nWays: 3\n\ntrailing"
	require.Equal(t, "stats = (stat) name\nNodes: 12\nWays: 3", parseStats(out))
	require.Equal(t, "", parseStats("no stats here\n"))
	require.Equal(t, "stats = x", parseStats("prefix stats = x"))
}

func TestTimeoutTasks(t *testing.T) {
	ctx := pctx.TestContext(t)
	db, mock := newMockDB(t)
	mock.ExpectQuery(`tags->>'timeout' IS NOT NULL`).WithArgs("taskingManager:42").
		WillReturnRows(sqlmock.NewRows([]string{"taskInfo"}).
			AddRow("taskingManager:42_7").
			AddRow("taskingManager:42_18").
			AddRow("taskingManager:42"))
	tasks, err := TimeoutTasks(ctx, db, "42")
	require.NoError(t, err)
	require.Equal(t, []int64{7, 18, -1}, tasks)
}

func TestLastPushedInfo(t *testing.T) {
	ctx := pctx.TestContext(t)
	db, mock := newMockDB(t)
	mock.ExpectQuery(`Last element pushed`).WithArgs("job").
		WillReturnRows(sqlmock.NewRows([]string{"stdout"}).
			AddRow("...\nLast element pushed: Type(modify) way(1234) Version(5)\n"))
	info, ok, err := LastPushedInfo(ctx, db, "job")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, PushedElement{OperationType: "modify", FeatureType: "way", FeatureID: "1234", Version: "5"}, info)
}

func TestDidChangesetsUpload(t *testing.T) {
	ctx := pctx.TestContext(t)
	db, mock := newMockDB(t)
	mock.ExpectQuery(`Total OSM Changesets Uploaded`).WithArgs("job").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	ok, err := DidChangesetsUpload(ctx, db, "job")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReadProgressInputsNewestRunningCommand(t *testing.T) {
	ctx := pctx.TestContext(t)
	db, mock := newMockDB(t)
	mock.ExpectQuery(`exit_code = 0`).WithArgs("job").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	// Two commands are running; the newest by start, then id, reports 20.
	mock.ExpectQuery(`exit_code IS NULL\s+ORDER BY start DESC, id DESC LIMIT 1`).WithArgs("job").
		WillReturnRows(sqlmock.NewRows([]string{"percent_complete"}).AddRow(20))
	mock.ExpectQuery(`SELECT trackable_command_count, percent_complete FROM job_status`).WithArgs("job").
		WillReturnRows(sqlmock.NewRows([]string{"trackable_command_count", "percent_complete"}).AddRow(3, 0))
	in, err := ReadProgressInputs(ctx, db, "job")
	require.NoError(t, err)
	require.Equal(t, 20, in.InFlight)
	p, ok := ComputeProgress(in)
	require.True(t, ok)
	require.Equal(t, 40, p)
}

var jobColumns = []string{"job_id", "status", "status_detail", "percent_complete", "trackable_command_count", "start", "tags", "resource_id"}

func expectJobTags(mock sqlmock.Sqlmock, id, tags string) {
	mock.ExpectQuery(`FROM job_status WHERE job_id = \$1`).WithArgs(id).
		WillReturnRows(sqlmock.NewRows(jobColumns).
			AddRow(id, "complete", "COMPLETE", 100, 2, time.Now(), []byte(tags), nil))
}

func TestJobBounds(t *testing.T) {
	ctx := pctx.TestContext(t)
	db, mock := newMockDB(t)
	expectJobTags(mock, "both", `{"bounds":"-77.1,38.8,-77.0,38.9","bbox":"0,0,1,1"}`)
	expectJobTags(mock, "bbox", `{"bbox":"0,0,1,1"}`)
	expectJobTags(mock, "empty bounds", `{"bounds":"","bbox":"0,0,1,1"}`)
	expectJobTags(mock, "neither", `{}`)
	mock.ExpectQuery(`FROM job_status WHERE job_id = \$1`).WithArgs("gone").
		WillReturnRows(sqlmock.NewRows(jobColumns))

	for _, tc := range []struct {
		id   JobID
		want string
	}{
		{"both", "-77.1,38.8,-77.0,38.9"},
		{"bbox", "0,0,1,1"},
		{"empty bounds", "0,0,1,1"},
		{"neither", ""},
	} {
		got, err := JobBounds(ctx, db, tc.id)
		require.NoError(t, err)
		require.Equal(t, tc.want, got, "job %q", tc.id)
	}
	_, err := JobBounds(ctx, db, "gone")
	require.True(t, errors.Is(err, &JobNotFoundError{}))
}

func TestJobIDByTask(t *testing.T) {
	ctx := pctx.TestContext(t)
	db, mock := newMockDB(t)
	mock.ExpectQuery(`tags->>'taskInfo' = \$1\s+ORDER BY start DESC LIMIT 1`).WithArgs("taskingManager:42_7").
		WillReturnRows(sqlmock.NewRows([]string{"job_id"}).AddRow("upload-7"))
	mock.ExpectQuery(`tags->>'taskInfo' = \$1`).WithArgs("taskingManager:42_8").
		WillReturnRows(sqlmock.NewRows([]string{"job_id"}))

	id, err := JobIDByTask(ctx, db, "42_7")
	require.NoError(t, err)
	require.Equal(t, JobID("upload-7"), id)

	_, err = JobIDByTask(ctx, db, "42_8")
	var notFound *JobNotFoundError
	require.True(t, errors.As(err, &notFound))
	require.Equal(t, JobID("taskingManager:42_8"), notFound.ID)
}

func TestStdoutStats(t *testing.T) {
	ctx := pctx.TestContext(t)
	db, mock := newMockDB(t)
	stdout := "Reading input\nConflating: stats = (stat) OSM\nNodes: 12\nWays: 3\n\nstats = second block\nWrote output\n"
	mock.ExpectQuery(`SELECT stdout FROM command_status WHERE job_id = \$1 ORDER BY start, id LIMIT 1`).WithArgs("job").
		WillReturnRows(sqlmock.NewRows([]string{"stdout"}).AddRow(stdout))
	mock.ExpectQuery(`SELECT stdout FROM command_status`).WithArgs("idle").
		WillReturnRows(sqlmock.NewRows([]string{"stdout"}))

	stats, err := StdoutStats(ctx, db, "job")
	require.NoError(t, err)
	require.Equal(t, "stats = (stat) OSM\nNodes: 12\nWays: 3", stats)

	stats, err = StdoutStats(ctx, db, "idle")
	require.NoError(t, err)
	require.Equal(t, "", stats)
}
