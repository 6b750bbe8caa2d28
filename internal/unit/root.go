package unit

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	derrors "git.home.luguber.info/inful/reportbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/reportbuilder/internal/logfields"
)

// CollisionPolicy decides what Provision does when the unit path is taken.
type CollisionPolicy int

const (
	// CollisionFail rejects the request with an already_exists error.
	CollisionFail CollisionPolicy = iota
	// CollisionAppend picks the lowest free name among name, name1, name2, ...
	CollisionAppend
)

// ParseCollisionPolicy accepts "fail" (or "raise") and "append".
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail", "raise":
		return CollisionFail, nil
	case "append":
		return CollisionAppend, nil
	default:
		return 0, derrors.ConfigError("unknown collision policy").WithContext("policy", s).Build()
	}
}

// RootManager provisions and locates units below a data root.
type RootManager struct {
	root     string
	template string
}

// NewRootManager returns a manager for units below root. template, when not
// empty, is a directory copied into the config directory of new units.
func NewRootManager(root, template string) *RootManager {
	return &RootManager{root: root, template: template}
}

// Root returns the data root directory.
func (m *RootManager) Root() string { return m.root }

// Layout returns the layout for name without touching the filesystem.
func (m *RootManager) Layout(name string) *Layout {
	return NewLayout(name, filepath.Join(m.root, name))
}

// ValidateName rejects names that cannot be a single directory below the root.
// Names starting with "_" or "." are reserved for bookkeeping files.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) ||
		strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
		return derrors.ValidationError("invalid unit name").WithContext("unit", name).Build()
	}
	return nil
}

// Provision creates the skeleton of a new unit. The unit root is claimed
// with a single mkdir, so concurrent callers never share a unit. Under
// CollisionFail an existing path is reported without mutating anything.
// Creation is not transactional: a failure may leave a partial tree behind.
func (m *RootManager) Provision(name string, policy CollisionPolicy) (*Layout, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	chosen, err := m.claim(name, policy)
	if err != nil {
		return nil, err
	}
	l := m.Layout(chosen)
	for _, dir := range l.skeleton() {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return nil, derrors.FileSystemError("failed to create unit directory").
				WithCause(err).
				WithContext("unit", chosen).
				WithContext("path", dir).
				Build()
		}
	}
	if m.template != "" {
		if err := copyTree(m.template, l.ConfigDir()); err != nil {
			return nil, derrors.FileSystemError("failed to copy config template").
				WithCause(err).
				WithContext("unit", chosen).
				WithContext("template", m.template).
				Build()
		}
	}
	slog.Info("Provisioned unit", logfields.Unit(chosen), logfields.Path(l.Root))
	return l, nil
}

// claim creates the root directory of the first free candidate name.
func (m *RootManager) claim(name string, policy CollisionPolicy) (string, error) {
	if err := os.MkdirAll(m.root, dirPerm); err != nil {
		return "", derrors.FileSystemError("failed to create data root").
			WithCause(err).
			WithContext("path", m.root).
			Build()
	}
	candidate := name
	for i := 1; ; i++ {
		path := m.Layout(candidate).Root
		err := os.Mkdir(path, dirPerm)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", derrors.FileSystemError("failed to create unit directory").
				WithCause(err).
				WithContext("unit", candidate).
				WithContext("path", path).
				Build()
		}
		switch policy {
		case CollisionFail:
			return "", derrors.AlreadyExistsError("unit already exists").
				WithContext("unit", candidate).
				WithContext("path", path).
				Build()
		case CollisionAppend:
			candidate = name + strconv.Itoa(i)
		default:
			return "", derrors.ConfigError("unknown collision policy").Build()
		}
	}
}

// Open returns the layout of an existing unit.
func (m *RootManager) Open(name string) (*Layout, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	l := m.Layout(name)
	if ok, err := exists(l.Root); err == nil && !ok {
		return nil, derrors.NotFoundError("unit not found").WithContext("unit", name).Build()
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// List returns the names of the unit directories below the root, sorted.
// A missing root yields an empty list.
func (m *RootManager) List() ([]string, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, derrors.FileSystemError("failed to list units").WithCause(err).WithContext("path", m.root).Build()
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || ValidateName(e.Name()) != nil {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}
