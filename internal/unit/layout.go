package unit

import (
	"os"
	"path/filepath"

	derrors "git.home.luguber.info/inful/reportbuilder/internal/foundation/errors"
)

const (
	configDirName  = "config"
	sourceDirName  = "source"
	dataDirName    = "data"
	buildDirName   = "build"
	versionDirName = "version"
)

// Layout locates the fixed subdirectories of one unit:
//
//	<root>/config/
//	<root>/source/data/
//	<root>/build/{html,latex,pdf}/
//	<root>/version/{html,latex,pdf}/<00000, 00001, ...>/
type Layout struct {
	Name string
	Root string
}

// NewLayout returns the layout of the unit called name rooted at root.
func NewLayout(name, root string) *Layout {
	return &Layout{Name: name, Root: root}
}

func (l *Layout) ConfigDir() string      { return filepath.Join(l.Root, configDirName) }
func (l *Layout) SourceDir() string      { return filepath.Join(l.Root, sourceDirName) }
func (l *Layout) DataDir() string        { return filepath.Join(l.Root, sourceDirName, dataDirName) }
func (l *Layout) BuildRoot() string      { return filepath.Join(l.Root, buildDirName) }
func (l *Layout) VersionBase() string    { return filepath.Join(l.Root, versionDirName) }
func (l *Layout) BuildDir(k Kind) string { return filepath.Join(l.Root, buildDirName, string(k)) }

// VersionRoot is the directory holding the numbered versions of kind k.
func (l *Layout) VersionRoot(k Kind) string {
	return filepath.Join(l.Root, versionDirName, string(k))
}

// LogFile is where the engine output of the last build of k is kept.
func (l *Layout) LogFile(k Kind) string {
	return filepath.Join(l.Root, buildDirName, string(k)+".log")
}

// Validate checks that the unit root and its config and source directories exist.
func (l *Layout) Validate() error {
	for _, dir := range []string{l.Root, l.ConfigDir(), l.SourceDir()} {
		fi, err := os.Stat(dir)
		if err != nil || !fi.IsDir() {
			b := derrors.ConfigError("missing or invalid unit directory").
				WithContext("unit", l.Name).
				WithContext("path", dir)
			if err != nil {
				b = b.WithCause(err)
			}
			return b.Build()
		}
	}
	return nil
}

// skeleton lists every directory a freshly provisioned unit owns, parents first.
func (l *Layout) skeleton() []string {
	dirs := []string{l.Root, l.ConfigDir(), l.SourceDir(), l.DataDir(), l.BuildRoot()}
	for _, k := range AllKinds {
		dirs = append(dirs, l.BuildDir(k))
	}
	dirs = append(dirs, l.VersionBase())
	for _, k := range AllKinds {
		dirs = append(dirs, l.VersionRoot(k))
	}
	return dirs
}
