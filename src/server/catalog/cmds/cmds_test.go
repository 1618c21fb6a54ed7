package cmds

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/hootenanny/jobtrack/src/internal/cmdutil"
	"github.com/hootenanny/jobtrack/src/internal/hootconfig"
	"github.com/hootenanny/jobtrack/src/internal/hootctl"
	"github.com/hootenanny/jobtrack/src/internal/hootsql"
	"github.com/hootenanny/jobtrack/src/internal/mapdb"
	"github.com/hootenanny/jobtrack/src/internal/pctx"
	"github.com/hootenanny/jobtrack/src/internal/reaper"
	"github.com/hootenanny/jobtrack/src/internal/require"
	"github.com/hootenanny/jobtrack/src/server/catalog"
	"github.com/spf13/cobra"
)

func TestThreshold(t *testing.T) {
	cfg := &hootctl.Config{Env: hootconfig.Default()}
	var before cmdutil.TimeFlag
	require.NoError(t, before.Set("2024-03-01T00:00:00Z"))
	require.True(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Equal(threshold(cfg, before)))

	got := threshold(cfg, cmdutil.TimeFlag{})
	want := time.Now().Add(-cfg.Env.Sweep.StaleMapAge)
	require.True(t, want.Sub(got) < time.Minute && got.Sub(want) < time.Minute, "threshold %v", got)
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printSummary(&buf, map[string]int64{"bob": 1, "alice": 3}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, []string{"alice", "3"}, strings.Fields(lines[1]))
	require.Equal(t, []string{"bob", "1"}, strings.Fields(lines[2]))
}

func TestPrintMaps(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	var buf bytes.Buffer
	require.NoError(t, printMaps(&buf, []*mapdb.Map{
		{ID: 7, DisplayName: "roads", UserID: 1, CreatedAt: created, Tags: hootsql.Tags{mapdb.TagLastAccessed: "2024-02-01T00:00:00.000Z"}},
		{ID: 8, DisplayName: "rivers", UserID: 2, CreatedAt: created},
	}))
	out := buf.String()
	require.True(t, strings.Contains(out, "2024-02-01T00:00:00.000Z"), out)
	require.True(t, strings.Contains(out, "never (created 2024-01-02T03:04:05.000Z)"), out)
	require.Equal(t, 2, strings.Count(out, " ago"), out)
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	objs := reaper.GeneratedObjects(3)
	printReport(&buf, &reaper.Report{MapID: 3, Existed: objs, Dropped: objs[:4]})
	require.Equal(t, "4 of 10 generated objects dropped\n", buf.String())
}

func TestPrintMapInfo(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printMapInfo(&buf, &catalog.MapInfo{
		Map:            &mapdb.Map{ID: 5, DisplayName: "roads", UserID: 1, CreatedAt: time.Now().Add(-48 * time.Hour)},
		Bounds:         "0,0,1,1",
		GrailEligible:  true,
		ConflationType: "Reference",
	}))
	out := buf.String()
	for _, want := range []string{"roads", "2 days ago", "0,0,1,1", "Reference", "true"} {
		require.True(t, strings.Contains(out, want), "missing %q in:\n%s", want, out)
	}

	buf.Reset()
	require.NoError(t, printMapInfo(&buf, &catalog.MapInfo{Map: &mapdb.Map{ID: 6, CreatedAt: time.Now()}}))
	require.False(t, strings.Contains(buf.String(), "BOUNDS"), buf.String())
	require.True(t, strings.Contains(buf.String(), "false"), buf.String())
}

func TestCmdsTree(t *testing.T) {
	root := &cobra.Command{Use: "hootjobs"}
	cmdutil.MergeCommands(root, Cmds(pctx.TestContext(t), &hootctl.Config{}))
	for _, path := range [][]string{
		{"map", "stale"}, {"map", "summary"}, {"map", "teardown"}, {"map", "drop"}, {"map", "residual"}, {"map", "info"},
		{"folder", "list"}, {"folder", "ls"}, {"folder", "create"}, {"folder", "move"}, {"folder", "file"}, {"folder", "prune"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err)
		require.True(t, cmd.Runnable(), "%v is not runnable", path)
	}
	file, _, err := root.Find([]string{"folder", "file"})
	require.NoError(t, err)
	require.True(t, file.Flags().Lookup("folder") != nil)
	require.True(t, file.Flags().Lookup("owner") != nil)
}
