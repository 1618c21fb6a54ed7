// Package changesets inspects the working directories an upload leaves behind, one per job, under
// a shared changesets root.
package changesets

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hootenanny/jobtrack/src/internal/errors"
	globlib "github.com/pachyderm/ohmyglob"
)

// Marker files an upload writes when the server rejected some or all of its changes.
const (
	DiffError     = "diff-error.osc"
	DiffRemaining = "diff-remaining.osc"
	// WriterDumpGlob matches the per-writer dumps of changes that were never applied.
	WriterDumpGlob = "OsmApiWriter*.osc"
)

var writerDump = globlib.MustCompile(WriterDumpGlob, '/')

// Workspace is the changesets root.
type Workspace struct {
	Root string
}

// JobDir returns the working directory of the job.
func (w Workspace) JobDir(jobID string) (string, error) {
	if jobID == "" || jobID == "." || jobID == ".." || strings.ContainsAny(jobID, `/\`) {
		return "", errors.Errorf("invalid job id %q for a changesets directory", jobID)
	}
	return filepath.Join(w.Root, jobID), nil
}

// ConflictMarkers returns the names of the conflict marker files in the job's directory, sorted.
// A missing directory has no markers.
func (w Workspace) ConflictMarkers(jobID string) ([]string, error) {
	dir, err := w.JobDir(jobID)
	if err != nil {
		return nil, err
	}
	return ConflictMarkers(os.DirFS(dir))
}

// ConflictMarkers returns the names of the conflict marker files at the top of fsys, sorted.
func ConflictMarkers(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read changesets directory")
	}
	var markers []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if IsConflictMarker(e.Name()) {
			markers = append(markers, e.Name())
		}
	}
	sort.Strings(markers)
	return markers, nil
}

// IsConflictMarker reports whether a file with this name marks unapplied changes.
func IsConflictMarker(name string) bool {
	return name == DiffError || name == DiffRemaining || writerDump.Match(name)
}
