package jobstatus

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hootenanny/jobtrack/src/internal/changesets"
	"github.com/hootenanny/jobtrack/src/internal/errors"
	"github.com/hootenanny/jobtrack/src/internal/jobdb"
	"github.com/hootenanny/jobtrack/src/internal/pctx"
	"github.com/hootenanny/jobtrack/src/internal/require"
)

var jobColumns = []string{"job_id", "status", "status_detail", "percent_complete", "trackable_command_count", "start", "tags", "resource_id"}

func expectJob(mock sqlmock.Sqlmock, id, tags string) {
	mock.ExpectQuery(`FROM job_status WHERE job_id = \$1`).WithArgs(id).
		WillReturnRows(sqlmock.NewRows(jobColumns).AddRow(id, "complete", "COMPLETE", 100, 2, time.Now(), []byte(tags), 7))
}

func TestJobInfo(t *testing.T) {
	ctx := pctx.TestContext(t)
	tr, mock := newMockTracker(t, changesets.Workspace{})
	tags := `{"bbox":"0,0,1,1","parentId":"conflate"}`
	mock.ExpectBegin()
	expectJob(mock, "upload", tags)
	expectParents(mock, "upload", "conflate")
	expectJob(mock, "upload", tags)
	mock.ExpectQuery(`SELECT stdout FROM command_status WHERE job_id = \$1 ORDER BY start, id LIMIT 1`).WithArgs("upload").
		WillReturnRows(sqlmock.NewRows([]string{"stdout"}).AddRow("stats = (stat) OSM\nNodes: 4\n\ndone\n"))
	mock.ExpectQuery(`Last element pushed:`).WithArgs("upload").
		WillReturnRows(sqlmock.NewRows([]string{"stdout"}).AddRow("Last element pushed: Type(create) node(-3) Version(0)\n"))
	mock.ExpectQuery(`Total OSM Changesets Uploaded`).WithArgs("upload").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectCommit()

	info, err := tr.JobInfo(ctx, "upload")
	require.NoError(t, err)
	require.Equal(t, []jobdb.JobID{"conflate"}, info.Job.Parents)
	require.Equal(t, "0,0,1,1", info.Bounds)
	require.Equal(t, "stats = (stat) OSM\nNodes: 4", info.Stats)
	require.Equal(t, &jobdb.PushedElement{OperationType: "create", FeatureType: "node", FeatureID: "-3", Version: "0"}, info.LastPushed)
	require.True(t, info.ChangesetsUploaded)
}

func TestJobInfoUnknownJob(t *testing.T) {
	ctx := pctx.TestContext(t)
	tr, mock := newMockTracker(t, changesets.Workspace{})
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM job_status WHERE job_id = \$1`).WithArgs("gone").
		WillReturnRows(sqlmock.NewRows(jobColumns))
	mock.ExpectRollback()
	_, err := tr.JobInfo(ctx, "gone")
	require.True(t, errors.Is(err, &jobdb.JobNotFoundError{}))
}

func TestTimeouts(t *testing.T) {
	ctx := pctx.TestContext(t)
	tr, mock := newMockTracker(t, changesets.Workspace{})
	mock.ExpectExec(`jsonb_build_object\('timeout', 'true'\)`).WithArgs("upload").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`tags->>'timeout' IS NOT NULL`).WithArgs("taskingManager:42").
		WillReturnRows(sqlmock.NewRows([]string{"taskInfo"}).AddRow("taskingManager:42_7"))
	mock.ExpectExec(`SET tags = tags - 'timeout'`).WithArgs("taskingManager:42_7").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`tags->>'taskInfo' = \$1`).WithArgs("taskingManager:42_7").
		WillReturnRows(sqlmock.NewRows([]string{"job_id"}).AddRow("upload"))

	require.NoError(t, tr.MarkTimedOut(ctx, "upload"))
	tasks, err := tr.TimedOutTasks(ctx, "42")
	require.NoError(t, err)
	require.Equal(t, []int64{7}, tasks)
	require.NoError(t, tr.ClearTimeout(ctx, "42_7"))
	id, err := tr.JobForTask(ctx, "42_7")
	require.NoError(t, err)
	require.Equal(t, jobdb.JobID("upload"), id)
}
