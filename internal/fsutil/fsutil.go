package fsutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/moby/sys/atomicwriter"
)

// WriteFunc writes data to path so that readers observe either the previous
// content or the complete new content, never a partial file.
type WriteFunc func(path string, data []byte, perm os.FileMode) error

// WriteFileAtomic creates path's parent directory if needed, then writes data
// to a temporary file in the same directory, syncs it and renames it over
// path. A symlinked path is resolved so the link itself survives.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", path, err)
		}
		path = resolved
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	if err := atomicwriter.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Snapshot is the content of a file captured before it was replaced.
type Snapshot struct {
	Path   string
	Data   []byte
	Perm   os.FileMode
	Exists bool
}

// Capture records the current state of path.
func Capture(path string) (Snapshot, error) {
	s := Snapshot{Path: path, Perm: 0644}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("inspecting %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("reading %s: %w", path, err)
	}
	s.Data = data
	s.Perm = info.Mode().Perm()
	s.Exists = true
	return s, nil
}

// Restore puts path back into the captured state using write.
func (s Snapshot) Restore(write WriteFunc) error {
	if !s.Exists {
		if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", s.Path, err)
		}
		return nil
	}
	return write(s.Path, s.Data, s.Perm)
}
