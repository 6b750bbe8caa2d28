package unit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/reportbuilder/internal/engine"
	"git.home.luguber.info/inful/reportbuilder/internal/filesync"
	derrors "git.home.luguber.info/inful/reportbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/reportbuilder/internal/logfields"
	"git.home.luguber.info/inful/reportbuilder/internal/metrics"
)

// BuildStatus represents the outcome of a build.
type BuildStatus string

const (
	BuildStatusSuccess  BuildStatus = "success"
	BuildStatusFailed   BuildStatus = "failed"
	BuildStatusTimeout  BuildStatus = "timeout"
	BuildStatusCanceled BuildStatus = "canceled"
)

// BuildOptions tune a single build.
type BuildOptions struct {
	// Force requests a full rebuild of html output. Other kinds always rebuild.
	Force bool
	// Log receives the engine output. May be nil.
	Log io.Writer
}

// Result reports what a build did. A non-zero ExitCode is a failed build;
// nothing was diffed or versioned in that case.
type Result struct {
	Unit      string        `json:"unit"`
	Kind      Kind          `json:"kind"`
	Status    BuildStatus   `json:"status"`
	ExitCode  int           `json:"exit_code"`
	TimedOut  bool          `json:"timed_out,omitempty"`
	Versioned bool          `json:"versioned"`
	Version   string        `json:"version,omitempty"`
	Changed   []string      `json:"changed,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Succeeded reports whether the engine returned zero.
func (r *Result) Succeeded() bool { return r != nil && r.ExitCode == 0 }

// Manager runs builds of units and keeps numbered versions of the outputs of
// the kinds in its versioning set. Builds of the same unit are serialized.
type Manager struct {
	engine     engine.Engine
	versioning map[Kind]bool
	timeout    time.Duration
	recorder   metrics.Recorder

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager returns a Manager that builds with eng and versions nothing.
func NewManager(eng engine.Engine) *Manager {
	return &Manager{
		engine:     eng,
		versioning: map[Kind]bool{},
		recorder:   metrics.NoopRecorder{},
		locks:      map[string]*sync.Mutex{},
	}
}

// WithVersioning sets the kinds whose outputs are versioned.
func (m *Manager) WithVersioning(kinds ...Kind) *Manager {
	m.versioning = make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		m.versioning[k] = true
	}
	return m
}

// WithTimeout bounds each engine invocation. Zero disables the bound.
func (m *Manager) WithTimeout(d time.Duration) *Manager {
	m.timeout = d
	return m
}

// WithRecorder sets the metrics recorder.
func (m *Manager) WithRecorder(r metrics.Recorder) *Manager {
	if r == nil {
		r = metrics.NoopRecorder{}
	}
	m.recorder = r
	return m
}

// Versioned reports whether outputs of k are versioned.
func (m *Manager) Versioned(k Kind) bool { return m.versioning[k] }

func (m *Manager) lock(root string) func() {
	m.mu.Lock()
	l, ok := m.locks[root]
	if !ok {
		l = &sync.Mutex{}
		m.locks[root] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Build runs the engine for kind k of the unit at l. When k is versioned the
// output directory is snapshotted first and, after a successful build, the
// changed files are copied into the next version directory. A failed engine
// run is reported through Result.ExitCode with a nil error.
func (m *Manager) Build(ctx context.Context, l *Layout, k Kind, opts BuildOptions) (*Result, error) {
	if _, err := ParseKind(string(k)); err != nil {
		return nil, err
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	unlock := m.lock(l.Root)
	defer unlock()

	start := time.Now()
	res := &Result{Unit: l.Name, Kind: k}
	defer func() {
		res.Duration = time.Since(start)
		m.recorder.ObserveBuildDuration(string(k), res.Duration)
	}()

	outDir := l.BuildDir(k)
	if err := os.MkdirAll(outDir, dirPerm); err != nil {
		return nil, derrors.FileSystemError("failed to create build directory").WithCause(err).WithContext("path", outDir).Build()
	}
	// Snapshot keys are absolute.
	if abs, err := filepath.Abs(outDir); err == nil {
		outDir = abs
	}

	var before filesync.Snapshot
	versioned := m.versioning[k]
	if versioned {
		snap, err := filesync.Freeze(outDir)
		if err != nil {
			return nil, derrors.FileSystemError("failed to snapshot build directory").WithCause(err).WithContext("path", outDir).Build()
		}
		before = snap
	}

	code, err := m.runEngine(ctx, l, k, opts, res)
	if err != nil {
		res.Status = BuildStatusFailed
		res.ExitCode = code
		m.recorder.IncBuildOutcome(string(k), metrics.OutcomeFailed)
		return res, err
	}
	res.ExitCode = code
	if code != 0 {
		m.recordFailure(ctx, res)
		return res, nil
	}

	if k == KindPDF {
		if err := relocatePDFs(l.BuildDir(KindLaTeX), outDir); err != nil {
			res.Status = BuildStatusFailed
			m.recorder.IncBuildOutcome(string(k), metrics.OutcomeFailed)
			return res, err
		}
	}

	res.Status = BuildStatusSuccess
	m.recorder.IncBuildOutcome(string(k), metrics.OutcomeSuccess)
	if !versioned {
		slog.Info("Build finished", logfields.Unit(l.Name), logfields.Kind(string(k)))
		return res, nil
	}

	changed, err := filesync.Diff(outDir, before)
	if err != nil {
		return res, derrors.FileSystemError("failed to diff build directory").WithCause(err).WithContext("path", outDir).Build()
	}
	m.recorder.ObserveChangedFiles(string(k), len(changed))
	res.Changed = relativeTo(outDir, changed)
	if len(changed) == 0 {
		slog.Info("Build finished without changes", logfields.Unit(l.Name), logfields.Kind(string(k)))
		return res, nil
	}

	n, err := materialize(l.VersionRoot(k), outDir, changed)
	if err != nil {
		return res, err
	}
	res.Versioned = true
	res.Version = FormatVersion(n)
	m.recorder.IncVersionCreated(string(k))
	slog.Info("Build versioned",
		logfields.Unit(l.Name),
		logfields.Kind(string(k)),
		logfields.Version(res.Version),
		logfields.Changed(len(changed)))
	return res, nil
}

func (m *Manager) runEngine(ctx context.Context, l *Layout, k Kind, opts BuildOptions, res *Result) (int, error) {
	bctx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		bctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	req := engine.Request{
		SourceDir: l.SourceDir(),
		OutputDir: l.BuildDir(k),
		Kind:      string(k),
		ConfigDir: l.ConfigDir(),
		Force:     k != KindHTML || opts.Force,
		Log:       opts.Log,
	}
	slog.Debug("Starting build", logfields.Unit(l.Name), logfields.Kind(string(k)), slog.Bool("force", req.Force))
	code, err := m.engine.Build(bctx, req)
	if err != nil {
		return code, err
	}
	if code != 0 && errors.Is(bctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		res.TimedOut = true
		code = engine.ExitTimeout
	}
	return code, nil
}

func (m *Manager) recordFailure(ctx context.Context, res *Result) {
	outcome := metrics.OutcomeFailed
	res.Status = BuildStatusFailed
	switch {
	case res.TimedOut:
		outcome = metrics.OutcomeTimeout
		res.Status = BuildStatusTimeout
	case ctx.Err() != nil:
		outcome = metrics.OutcomeCanceled
		res.Status = BuildStatusCanceled
	}
	m.recorder.IncBuildOutcome(string(res.Kind), outcome)
	slog.Warn("Build failed",
		logfields.Unit(res.Unit),
		logfields.Kind(string(res.Kind)),
		logfields.ExitCode(res.ExitCode),
		slog.Bool("timed_out", res.TimedOut))
}

// relocatePDFs moves every top-level *.pdf in latexDir into pdfDir,
// replacing files of the same name.
func relocatePDFs(latexDir, pdfDir string) error {
	entries, err := os.ReadDir(latexDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return derrors.FileSystemError("failed to scan latex output").WithCause(err).WithContext("path", latexDir).Build()
	}
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		src := filepath.Join(latexDir, e.Name())
		dst := filepath.Join(pdfDir, e.Name())
		if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
			return derrors.FileSystemError("failed to replace pdf").WithCause(err).WithContext("path", dst).Build()
		}
		if err := renameFn(src, dst); err != nil {
			return derrors.FileSystemError("failed to relocate pdf").WithCause(err).WithContext("path", src).Build()
		}
		slog.Debug("Relocated pdf", logfields.File(e.Name()))
	}
	return nil
}

func relativeTo(base string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if rel, err := filepath.Rel(base, p); err == nil {
			out = append(out, filepath.ToSlash(rel))
		}
	}
	slices.Sort(out)
	return out
}
