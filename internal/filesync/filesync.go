// Package filesync records the (modification time, size) state of a directory
// tree and reports which files are new or grew newer since a previous snapshot.
//
// Only metadata is compared, never file contents. A file is considered changed
// when its (mtime, size) tuple is lexicographically greater than the recorded
// one: a later mtime, or the same mtime with a larger size. Deleted files and
// files that shrank without a newer mtime are not reported.
package filesync

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"time"
)

// FileState is the recorded metadata of one regular file.
type FileState struct {
	ModTime time.Time `json:"mod_time"`
	Size    int64     `json:"size"`
}

// Less orders states by modification time, then by size.
func (s FileState) Less(other FileState) bool {
	if !s.ModTime.Equal(other.ModTime) {
		return s.ModTime.Before(other.ModTime)
	}
	return s.Size < other.Size
}

// Snapshot maps absolute file paths to their recorded state.
type Snapshot map[string]FileState

// Freeze walks path and records every regular file below it. A missing root
// yields an empty snapshot.
func Freeze(path string) (Snapshot, error) {
	root, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	snap := make(Snapshot)
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == root && errors.Is(walkErr, fs.ErrNotExist) {
				return filepath.SkipAll
			}
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// removed between listing and stat
				return nil
			}
			return err
		}
		snap[p] = FileState{ModTime: info.ModTime(), Size: info.Size()}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("freeze %s: %w", root, err)
	}
	return snap, nil
}

// Changed returns, sorted, the paths of after that are absent from s or whose
// state is greater than the one recorded in s.
func (s Snapshot) Changed(after Snapshot) []string {
	var changed []string
	for p, now := range after {
		before, ok := s[p]
		if !ok || before.Less(now) {
			changed = append(changed, p)
		}
	}
	sort.Strings(changed)
	return changed
}

// Diff re-freezes path and reports the files changed relative to before.
func Diff(path string, before Snapshot) ([]string, error) {
	after, err := Freeze(path)
	if err != nil {
		return nil, err
	}
	return before.Changed(after), nil
}
