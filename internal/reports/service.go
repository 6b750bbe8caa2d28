// Package reports is the application layer of the report builder. It ties
// unit provisioning and versioned builds to source history, uploads, build
// history and event publication.
package reports

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/reportbuilder/internal/events"
	"git.home.luguber.info/inful/reportbuilder/internal/eventstore"
	"git.home.luguber.info/inful/reportbuilder/internal/figure"
	derrors "git.home.luguber.info/inful/reportbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/reportbuilder/internal/metrics"
	"git.home.luguber.info/inful/reportbuilder/internal/sourcerepo"
	"git.home.luguber.info/inful/reportbuilder/internal/unit"
)

// Service operates on the units below one data root.
type Service struct {
	roots  *unit.RootManager
	builds *unit.Manager

	master     string
	sourceExt  string
	uploadExts []string
	author     sourcerepo.Author

	history   eventstore.Store
	publisher events.Publisher
	recorder  metrics.Recorder
	newID     func() string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService returns a Service with sphinx defaults: master document
// "report" with a ".rst" source. History and events are disabled until set.
func NewService(roots *unit.RootManager, builds *unit.Manager) *Service {
	return &Service{
		roots:      roots,
		builds:     builds,
		master:     "report",
		sourceExt:  ".rst",
		uploadExts: figure.DefaultAllowedExtensions,
		author:     sourcerepo.DefaultAuthor,
		publisher:  events.NoopPublisher{},
		recorder:   metrics.NoopRecorder{},
		newID:      uuid.NewString,
		locks:      map[string]*sync.Mutex{},
	}
}

// lock serializes builds of one unit, from the pre-build commit to the
// history record.
func (s *Service) lock(root string) func() {
	s.mu.Lock()
	l, ok := s.locks[root]
	if !ok {
		l = &sync.Mutex{}
		s.locks[root] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// WithMasterDoc sets the base name of the main source and output files.
func (s *Service) WithMasterDoc(name string) *Service {
	if name != "" {
		s.master = name
	}
	return s
}

// WithSourceExt sets the extension of the master source file, e.g. ".md".
func (s *Service) WithSourceExt(ext string) *Service {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	s.sourceExt = ext
	return s
}

// WithUploadExtensions restricts figure uploads to exts.
func (s *Service) WithUploadExtensions(exts []string) *Service {
	if len(exts) > 0 {
		s.uploadExts = exts
	}
	return s
}

// WithAuthor sets the identity for commits made on behalf of nobody.
func (s *Service) WithAuthor(a sourcerepo.Author) *Service {
	if a.Name != "" {
		s.author = a
	}
	return s
}

// WithHistory records builds in store.
func (s *Service) WithHistory(store eventstore.Store) *Service {
	s.history = store
	return s
}

// WithPublisher publishes build events through p.
func (s *Service) WithPublisher(p events.Publisher) *Service {
	if p == nil {
		p = events.NoopPublisher{}
	}
	s.publisher = p
	return s
}

// WithRecorder sets the metrics recorder.
func (s *Service) WithRecorder(r metrics.Recorder) *Service {
	if r == nil {
		r = metrics.NoopRecorder{}
	}
	s.recorder = r
	return s
}

// WithIDGenerator overrides build id generation (for testing).
func (s *Service) WithIDGenerator(f func() string) *Service {
	s.newID = f
	return s
}

// Roots returns the unit provisioner.
func (s *Service) Roots() *unit.RootManager { return s.roots }

// SourceFile is the name of the master source file.
func (s *Service) SourceFile() string { return s.master + s.sourceExt }

// Provision creates a unit and initializes its source history.
func (s *Service) Provision(name string, policy unit.CollisionPolicy) (*unit.Layout, error) {
	l, err := s.roots.Provision(name, policy)
	if err != nil {
		return nil, err
	}
	if _, err := sourcerepo.Open(l.SourceDir()); err != nil {
		return nil, err
	}
	return l, nil
}

// Versions lists the versions of kind for unit name.
func (s *Service) Versions(name string, kind unit.Kind) ([]unit.Version, error) {
	l, err := s.roots.Open(name)
	if err != nil {
		return nil, err
	}
	return unit.ListVersions(l.VersionRoot(kind))
}

// VersionFile resolves rel inside version of kind for unit name.
func (s *Service) VersionFile(name string, kind unit.Kind, version, rel string) (string, error) {
	l, err := s.roots.Open(name)
	if err != nil {
		return "", err
	}
	if len(version) != 5 || strings.Trim(version, "0123456789") != "" {
		return "", derrors.ValidationError("invalid version").WithContext("version", version).Build()
	}
	return existingFile(filepath.Join(l.VersionRoot(kind), version), rel)
}

// existingFile joins rel below base, rejecting escapes, and requires a
// regular file at the result.
func existingFile(base, rel string) (string, error) {
	p := filepath.Join(base, filepath.FromSlash(filepath.Clean("/"+rel)))
	fi, err := os.Stat(p)
	if err != nil || !fi.Mode().IsRegular() {
		return "", derrors.NotFoundError("file not found").WithContext("path", rel).Build()
	}
	return p, nil
}
