package jobstatus

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hootenanny/jobtrack/src/internal/changesets"
	"github.com/hootenanny/jobtrack/src/internal/hootsql"
	"github.com/hootenanny/jobtrack/src/internal/jobdb"
	"github.com/hootenanny/jobtrack/src/internal/mapdb"
	"github.com/hootenanny/jobtrack/src/internal/migrations"
	"github.com/hootenanny/jobtrack/src/internal/pctx"
	"github.com/hootenanny/jobtrack/src/internal/require"
	"github.com/hootenanny/jobtrack/src/internal/schema"
	"github.com/hootenanny/jobtrack/src/internal/testutil"
)

func newTestTracker(ctx context.Context, t *testing.T) (*Tracker, *hootsql.DB) {
	t.Helper()
	db := testutil.NewTestDB(t)
	require.NoError(t, migrations.ApplyMigrations(ctx, db, migrations.Env{}, schema.DesiredState))
	return NewTracker(Env{DB: db, Workspace: changesets.Workspace{Root: t.TempDir()}}), db
}

func createJobs(ctx context.Context, t *testing.T, db *hootsql.DB, jobs ...*jobdb.Job) {
	t.Helper()
	for _, j := range jobs {
		require.NoError(t, jobdb.CreateJob(ctx, db, j))
	}
}

func requireDetail(ctx context.Context, t *testing.T, db *hootsql.DB, id jobdb.JobID, want jobdb.StatusDetail) {
	t.Helper()
	j, err := jobdb.GetJob(ctx, db, id)
	require.NoError(t, err)
	require.Equal(t, want, j.Detail, "job %q", id)
}

func TestStalenessPostgres(t *testing.T) {
	ctx := pctx.TestContext(t)
	tr, db := newTestTracker(ctx, t)
	createJobs(ctx, t, db,
		&jobdb.Job{ID: "C"},
		&jobdb.Job{ID: "A", Parents: []jobdb.JobID{"C"}},
		&jobdb.Job{ID: "B"},
		// B is named only through the legacy tag.
		&jobdb.Job{ID: "self", Parents: []jobdb.JobID{"A"}, Tags: hootsql.Tags{jobdb.TagParentID: "B"}},
		&jobdb.Job{ID: "bystander"},
	)
	_, err := jobdb.SetConflicted(ctx, db, "A")
	require.NoError(t, err)

	require.Equal(t, 4, tr.SetStale(ctx, "self"))
	requireDetail(ctx, t, db, "self", jobdb.DetailStale)
	requireDetail(ctx, t, db, "A", jobdb.DetailConflicts)
	requireDetail(ctx, t, db, "B", jobdb.DetailStale)
	requireDetail(ctx, t, db, "C", jobdb.DetailStale)
	requireDetail(ctx, t, db, "bystander", jobdb.DetailRunning)
}

func TestStalenessCyclePostgres(t *testing.T) {
	ctx := pctx.TestContext(t)
	tr, db := newTestTracker(ctx, t)
	createJobs(ctx, t, db,
		&jobdb.Job{ID: "A", Parents: []jobdb.JobID{"B"}},
		&jobdb.Job{ID: "B", Parents: []jobdb.JobID{"A"}},
	)
	require.Equal(t, 2, tr.SetStale(ctx, "A"))
	requireDetail(ctx, t, db, "B", jobdb.DetailStale)
}

func TestProgressPostgres(t *testing.T) {
	ctx := pctx.TestContext(t)
	tr, db := newTestTracker(ctx, t)
	createJobs(ctx, t, db, &jobdb.Job{ID: "job", TrackableCommandCount: 4})

	for i := 0; i < 2; i++ {
		id, err := tr.RecordCommandUpdate(ctx, "job", 0, "step", "", "", 0)
		require.NoError(t, err)
		require.NoError(t, tr.CompleteCommand(ctx, id, 0, time.Now()))
	}
	id, err := tr.RecordCommandUpdate(ctx, "job", 0, "step", "begin\n", "", 10)
	require.NoError(t, err)
	p, err := tr.JobProgress(ctx, "job")
	require.NoError(t, err)
	require.Equal(t, 52, p)

	_, err = tr.RecordCommandUpdate(ctx, "job", id, "", "half\n", "", 50)
	require.NoError(t, err)
	p, err = tr.JobProgress(ctx, "job")
	require.NoError(t, err)
	require.Equal(t, 62, p)

	cmds, err := jobdb.ListCommands(ctx, db, "job")
	require.NoError(t, err)
	require.Len(t, cmds, 3)
	require.Equal(t, "begin\nhalf\n", cmds[2].Stdout)
}

func TestProgressNewestRunningCommandPostgres(t *testing.T) {
	ctx := pctx.TestContext(t)
	tr, db := newTestTracker(ctx, t)
	createJobs(ctx, t, db, &jobdb.Job{ID: "job", TrackableCommandCount: 2})
	now := time.Now()
	_, err := jobdb.InsertCommand(ctx, db, &jobdb.Command{JobID: "job", Command: "older", PercentComplete: 90, Start: now.Add(-time.Minute)})
	require.NoError(t, err)
	_, err = jobdb.InsertCommand(ctx, db, &jobdb.Command{JobID: "job", Command: "newer", PercentComplete: 20, Start: now})
	require.NoError(t, err)

	require.True(t, tr.RecomputeProgress(ctx, "job"))
	p, err := tr.JobProgress(ctx, "job")
	require.NoError(t, err)
	require.Equal(t, 10, p)
}

func TestSweepPostgres(t *testing.T) {
	ctx := pctx.TestContext(t)
	tr, db := newTestTracker(ctx, t)
	now := time.Now()
	old, err := mapdb.CreateMap(ctx, db, &mapdb.Map{DisplayName: "old", UserID: 1, CreatedAt: now.Add(-90 * 24 * time.Hour)})
	require.NoError(t, err)
	fresh, err := mapdb.CreateMap(ctx, db, &mapdb.Map{DisplayName: "fresh", UserID: 1, CreatedAt: now.Add(-90 * 24 * time.Hour)})
	require.NoError(t, err)
	require.NoError(t, mapdb.TouchMap(ctx, db, fresh, now))
	oldID, freshID := int64(old), int64(fresh)
	createJobs(ctx, t, db,
		&jobdb.Job{ID: "import"},
		&jobdb.Job{ID: "conflate-old", ResourceID: &oldID, Parents: []jobdb.JobID{"import"}},
		&jobdb.Job{ID: "conflate-fresh", ResourceID: &freshID},
	)

	s, err := NewSweeper(tr, "@daily", 30*24*time.Hour)
	require.NoError(t, err)
	res, err := s.SweepOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, SweepResult{StaleMaps: 1, Jobs: 1, Marked: 2}, res)
	requireDetail(ctx, t, db, "conflate-old", jobdb.DetailStale)
	requireDetail(ctx, t, db, "import", jobdb.DetailStale)
	requireDetail(ctx, t, db, "conflate-fresh", jobdb.DetailRunning)
}

func TestConflictsPostgres(t *testing.T) {
	ctx := pctx.TestContext(t)
	tr, db := newTestTracker(ctx, t)
	createJobs(ctx, t, db, &jobdb.Job{ID: "conflate"}, &jobdb.Job{ID: "upload", Parents: []jobdb.JobID{"conflate"}})
	dir, err := tr.env.Workspace.JobDir("conflate")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, changesets.DiffRemaining), []byte("<osmChange/>"), 0o644))

	require.True(t, tr.CheckConflicted(ctx, "upload", "conflate"))
	requireDetail(ctx, t, db, "upload", jobdb.DetailConflicts)
	requireDetail(ctx, t, db, "conflate", jobdb.DetailRunning)

	// Staleness does not hide conflicts.
	tr.SetStale(ctx, "upload")
	requireDetail(ctx, t, db, "upload", jobdb.DetailConflicts)
}
