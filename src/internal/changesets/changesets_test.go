package changesets

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/hootenanny/jobtrack/src/internal/require"
)

func TestIsConflictMarker(t *testing.T) {
	for name, want := range map[string]bool{
		"diff-error.osc":          true,
		"diff-remaining.osc":      true,
		"OsmApiWriter.osc":        true,
		"OsmApiWriter-12-3.osc":   true,
		"OsmApiWriter-12-3.osc.1": false,
		"diff.osc":                false,
		"changeset-1.osc":         false,
		"osmapiwriter-1.osc":      false,
	} {
		require.Equal(t, want, IsConflictMarker(name), name)
	}
}

func TestConflictMarkersFS(t *testing.T) {
	fsys := fstest.MapFS{
		"changeset.osc":           {Data: []byte("<osmChange/>")},
		"OsmApiWriter-2.osc":      {Data: []byte("<osmChange/>")},
		"diff-error.osc":          {Data: []byte("<osmChange/>")},
		"nested/diff-error.osc":   {Data: []byte("<osmChange/>")},
		"nested/OsmApiWriter.osc": {Data: []byte("<osmChange/>")},
	}
	markers, err := ConflictMarkers(fsys)
	require.NoError(t, err)
	require.Equal(t, []string{"OsmApiWriter-2.osc", "diff-error.osc"}, markers)
}

func TestWorkspace(t *testing.T) {
	root := t.TempDir()
	w := Workspace{Root: root}

	markers, err := w.ConflictMarkers("never-ran")
	require.NoError(t, err)
	require.Len(t, markers, 0)

	dir := filepath.Join(root, "job-1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "changeset-1.osc"), nil, 0o644))
	markers, err = w.ConflictMarkers("job-1")
	require.NoError(t, err)
	require.Len(t, markers, 0)

	require.NoError(t, os.WriteFile(filepath.Join(dir, DiffRemaining), nil, 0o644))
	markers, err = w.ConflictMarkers("job-1")
	require.NoError(t, err)
	require.Equal(t, []string{DiffRemaining}, markers)

	_, err = w.ConflictMarkers("../etc")
	require.YesError(t, err)
}
