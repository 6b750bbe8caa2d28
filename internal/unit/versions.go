package unit

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	derrors "git.home.luguber.info/inful/reportbuilder/internal/foundation/errors"
)

var versionName = regexp.MustCompile(`^[0-9]{5}$`)

const stagingPrefix = ".staging-"

// Version describes one numbered version directory.
type Version struct {
	Number    int       `json:"number"`
	Name      string    `json:"name"`
	Path      string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	// Files holds slash-separated paths relative to the version directory.
	Files []string `json:"files"`
}

// FormatVersion renders n as a five digit, zero padded directory name.
func FormatVersion(n int) string { return fmt.Sprintf("%05d", n) }

// NextVersion returns one more than the highest numbered directory in root,
// or zero when there is none. Gaps left by removed versions are not reused.
func NextVersion(root string) (int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	next := 0
	for _, e := range entries {
		if !e.IsDir() || !versionName.MatchString(e.Name()) {
			continue
		}
		n, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		if n+1 > next {
			next = n + 1
		}
	}
	return next, nil
}

// materialize copies changed (absolute paths below buildDir) into the next
// version directory under root and returns its number. Files are staged in a
// hidden sibling and renamed into place; on failure the staging directory is
// removed and no version becomes visible.
func materialize(root, buildDir string, changed []string) (int, error) {
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return 0, derrors.FileSystemError("failed to create version root").WithCause(err).WithContext("path", root).Build()
	}
	n, err := NextVersion(root)
	if err != nil {
		return 0, derrors.FileSystemError("failed to scan versions").WithCause(err).WithContext("path", root).Build()
	}
	staging, err := os.MkdirTemp(root, stagingPrefix)
	if err != nil {
		return 0, derrors.FileSystemError("failed to create staging directory").WithCause(err).WithContext("path", root).Build()
	}
	fail := func(err error, msg, file string) (int, error) {
		_ = os.RemoveAll(staging)
		return 0, derrors.FileSystemError(msg).
			WithCause(err).
			WithContext("file", file).
			WithContext("version", FormatVersion(n)).
			Build()
	}

	for _, src := range changed {
		rel, err := filepath.Rel(buildDir, src)
		if err != nil {
			return fail(err, "changed file outside build directory", src)
		}
		if err := copyFileFn(src, filepath.Join(staging, rel)); err != nil {
			return fail(err, "failed to copy changed file", src)
		}
	}
	if err := os.Chmod(staging, dirPerm); err != nil {
		return fail(err, "failed to set version permissions", staging)
	}
	final := filepath.Join(root, FormatVersion(n))
	if err := renameFn(staging, final); err != nil {
		return fail(err, "failed to publish version", final)
	}
	return n, nil
}

// ListVersions returns the versions stored under root in ascending order.
func ListVersions(root string) ([]Version, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return []Version{}, nil
		}
		return nil, derrors.FileSystemError("failed to list versions").WithCause(err).WithContext("path", root).Build()
	}
	out := make([]Version, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || !versionName.MatchString(e.Name()) {
			continue
		}
		n, _ := strconv.Atoi(e.Name())
		v := Version{Number: n, Name: e.Name(), Path: filepath.Join(root, e.Name())}
		if info, err := e.Info(); err == nil {
			v.CreatedAt = info.ModTime()
		}
		files, err := relativeFiles(v.Path)
		if err != nil {
			return nil, derrors.FileSystemError("failed to read version").WithCause(err).WithContext("path", v.Path).Build()
		}
		v.Files = files
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func relativeFiles(dir string) ([]string, error) {
	files := []string{}
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	sort.Strings(files)
	return files, err
}
