package envscan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/ruminaider/ccswitch/internal/fsutil"
)

// BackupSuffix is appended to a shell file's path for the copy taken before
// conflicting lines are removed.
const BackupSuffix = ".ccswitch-bak"

// Removal reports what Remove did to one file.
type Removal struct {
	Path    string
	Backup  string
	Removed int
	// Stale counts conflicts whose line no longer matches the file, for
	// example because it was edited after the scan.
	Stale int
}

// Remove deletes the lines behind the given file conflicts. Each affected
// file is first copied to <file>.ccswitch-bak, then rewritten atomically. A
// conflict is applied only when the file still has RawLine at LineNumber.
// Process environment conflicts are ignored: they cannot be edited.
func Remove(conflicts []Conflict, write fsutil.WriteFunc) ([]Removal, error) {
	if write == nil {
		write = fsutil.WriteFileAtomic
	}

	byPath := map[string][]Conflict{}
	var order []string
	for _, c := range conflicts {
		if c.SourceType != SourceFile {
			continue
		}
		if _, ok := byPath[c.SourcePath]; !ok {
			order = append(order, c.SourcePath)
		}
		byPath[c.SourcePath] = append(byPath[c.SourcePath], c)
	}
	sort.Strings(order)

	var out []Removal
	for _, path := range order {
		r, err := removeLines(path, byPath[path], write)
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

func removeLines(path string, conflicts []Conflict, write fsutil.WriteFunc) (Removal, error) {
	r := Removal{Path: path}
	snap, err := fsutil.Capture(path)
	if err != nil {
		return r, err
	}
	if !snap.Exists {
		r.Stale = len(conflicts)
		return r, nil
	}

	text := string(snap.Data)
	trailingNewline := strings.HasSuffix(text, "\n")
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")

	drop := map[int]bool{}
	for _, c := range conflicts {
		idx := c.LineNumber - 1
		if idx < 0 || idx >= len(lines) || strings.TrimSuffix(lines[idx], "\r") != strings.TrimSuffix(c.RawLine, "\r") {
			r.Stale++
			continue
		}
		if !drop[idx] {
			drop[idx] = true
			r.Removed++
		}
	}
	if r.Removed == 0 {
		return r, nil
	}

	r.Backup = path + BackupSuffix
	if err := write(r.Backup, snap.Data, snap.Perm); err != nil {
		return r, fmt.Errorf("backing up %s: %w", path, err)
	}

	kept := make([]string, 0, len(lines)-len(drop))
	for i, line := range lines {
		if !drop[i] {
			kept = append(kept, line)
		}
	}
	result := strings.Join(kept, "\n")
	if trailingNewline && len(kept) > 0 {
		result += "\n"
	}
	if err := write(path, []byte(result), snap.Perm); err != nil {
		return r, fmt.Errorf("rewriting %s: %w", path, err)
	}
	log.Info().Str("path", path).Str("backup", r.Backup).Int("removed", r.Removed).Msg("removed conflicting variables")
	return r, nil
}
