package cmds

import (
	"bytes"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/hootenanny/jobtrack/src/internal/cmdutil"
	"github.com/hootenanny/jobtrack/src/internal/hootctl"
	"github.com/hootenanny/jobtrack/src/internal/jobdb"
	"github.com/hootenanny/jobtrack/src/internal/pctx"
	"github.com/hootenanny/jobtrack/src/internal/require"
	"github.com/hootenanny/jobtrack/src/server/jobstatus"
	"github.com/spf13/cobra"
)

func TestParseComplete(t *testing.T) {
	testData := []struct {
		name     string
		args     []string
		wantID   jobdb.CommandID
		wantCode int
		wantErr  bool
	}{
		{name: "ok", args: []string{"12", "0"}, wantID: 12},
		{name: "failed", args: []string{"12", "-1"}, wantID: 12, wantCode: -1},
		{name: "bad id", args: []string{"twelve", "0"}, wantErr: true},
		{name: "bad code", args: []string{"12", "ok"}, wantErr: true},
	}
	for _, test := range testData {
		t.Run(test.name, func(t *testing.T) {
			id, code, err := parseComplete(test.args)
			if test.wantErr {
				require.YesError(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.wantID, id)
			require.Equal(t, test.wantCode, code)
		})
	}
}

func TestPrintCommands(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	require.NoError(t, printCommands(&buf, []*jobdb.Command{
		{ID: 1, Command: "import", PercentComplete: 100, ExitCode: sql.NullInt32{Int32: 0, Valid: true}, Start: start},
		{ID: 2, Command: "conflate", PercentComplete: 40, Start: start},
	}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, []string{"1", "import", "100", "0", "2024-03-01T10:00:00Z"}, strings.Fields(lines[1]))
	require.Equal(t, []string{"2", "conflate", "40", "-", "2024-03-01T10:00:00Z"}, strings.Fields(lines[2]))
}

func TestCmdsTree(t *testing.T) {
	root := &cobra.Command{Use: "hootjobs"}
	cmdutil.MergeCommands(root, Cmds(pctx.TestContext(t), &hootctl.Config{}))
	for _, path := range [][]string{
		{"job", "create"}, {"job", "progress"}, {"job", "recompute"}, {"job", "stale"},
		{"job", "conflicts"}, {"job", "complete"}, {"job", "commands"}, {"job", "sweep"},
		{"job", "info"}, {"job", "task"}, {"job", "timeout"}, {"job", "clear-timeout"}, {"job", "timeouts"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err)
		require.Equal(t, path[1], cmd.Name())
		require.True(t, cmd.Runnable(), "%v is not runnable", path)
	}
	job, _, err := root.Find([]string{"job"})
	require.NoError(t, err)
	require.Equal(t, "Inspect and update job status.", job.Short)
}

func TestPrintJobInfo(t *testing.T) {
	mapID := int64(7)
	var buf bytes.Buffer
	require.NoError(t, printJobInfo(&buf, &jobstatus.JobInfo{
		Job: &jobdb.Job{
			ID:              "upload",
			Status:          jobdb.StatusComplete,
			Detail:          jobdb.DetailConflicts,
			PercentComplete: 100,
			Start:           time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
			ResourceID:      &mapID,
			Parents:         []jobdb.JobID{"conflate", "import"},
		},
		Bounds:     "0,0,1,1",
		Stats:      "stats = (stat) OSM\nNodes: 4",
		LastPushed: &jobdb.PushedElement{OperationType: "modify", FeatureType: "way", FeatureID: "12", Version: "3"},
	}))
	out := buf.String()
	for _, want := range []string{
		"complete (CONFLICTS)", "conflate, import", "MAP:", "0,0,1,1", "modify way 12 v3",
		"false", "\nstats = (stat) OSM\nNodes: 4\n",
	} {
		require.True(t, strings.Contains(out, want), "missing %q in:\n%s", want, out)
	}
}

func TestTaskName(t *testing.T) {
	testData := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{name: "project", args: []string{"42"}, want: "42"},
		{name: "task", args: []string{"42", "7"}, want: "42_7"},
		{name: "bad project", args: []string{"roads"}, wantErr: true},
		{name: "bad task", args: []string{"42", "seven"}, wantErr: true},
	}
	for _, test := range testData {
		t.Run(test.name, func(t *testing.T) {
			got, err := taskName(test.args)
			if test.wantErr {
				require.YesError(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.want, got)
		})
	}
}
