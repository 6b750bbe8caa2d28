package reports

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/reportbuilder/internal/engine"
	"git.home.luguber.info/inful/reportbuilder/internal/events"
	"git.home.luguber.info/inful/reportbuilder/internal/eventstore"
	derrors "git.home.luguber.info/inful/reportbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/reportbuilder/internal/logfields"
	"git.home.luguber.info/inful/reportbuilder/internal/sourcerepo"
	"git.home.luguber.info/inful/reportbuilder/internal/unit"
)

// BuildResult is a unit build result tagged with its build id.
type BuildResult struct {
	BuildID string `json:"build_id"`
	*unit.Result
}

// Build commits pending source edits, runs a build of kind for unit name
// and records it. The engine output replaces build/<kind>.log.
func (s *Service) Build(ctx context.Context, name string, kind unit.Kind, force bool) (*BuildResult, error) {
	if _, err := unit.ParseKind(string(kind)); err != nil {
		return nil, err
	}
	l, err := s.roots.Open(name)
	if err != nil {
		return nil, err
	}
	unlock := s.lock(l.Root)
	defer unlock()

	buildID := s.newID()
	log := slog.With(logfields.Unit(name), logfields.Kind(string(kind)), logfields.BuildID(buildID))

	if repo, err := sourcerepo.Open(l.SourceDir()); err != nil {
		log.Warn("Source history unavailable", logfields.Error(err))
	} else if hash, err := repo.CommitAll(s.author, "Automatic commit before build"); err != nil {
		log.Warn("Failed to commit pending source changes", logfields.Error(err))
	} else if hash != "" {
		log.Info("Committed pending source changes", logfields.Commit(hash))
	}

	s.appendEvent(ctx, func() (eventstore.Event, error) {
		return eventstore.NewBuildStarted(name, buildID, string(kind), force)
	})

	logFile, err := os.Create(l.LogFile(kind))
	if err != nil {
		err = derrors.FileSystemError("failed to create build log").WithCause(err).WithContext("path", l.LogFile(kind)).Build()
		s.appendEvent(ctx, func() (eventstore.Event, error) {
			return eventstore.NewBuildFailed(name, buildID, string(kind), -1, false, err.Error())
		})
		return nil, err
	}
	res, buildErr := s.builds.Build(ctx, l, kind, unit.BuildOptions{Force: force, Log: logFile})
	if err := logFile.Close(); err != nil {
		log.Warn("Failed to close build log", logfields.Error(err))
	}

	out := &BuildResult{BuildID: buildID, Result: res}
	s.record(ctx, out, buildErr)
	if buildErr != nil {
		log.Error("Build error", logfields.Error(buildErr))
		return out, buildErr
	}
	return out, nil
}

// record appends the outcome to the history and publishes it.
func (s *Service) record(ctx context.Context, r *BuildResult, buildErr error) {
	res := r.Result
	if res == nil {
		return
	}
	if buildErr == nil && res.Succeeded() {
		s.appendEvent(ctx, func() (eventstore.Event, error) {
			return eventstore.NewBuildCompleted(res.Unit, r.BuildID, eventstore.BuildCompletedMeta{
				Kind:         string(res.Kind),
				Version:      res.Version,
				ChangedFiles: len(res.Changed),
				Duration:     res.Duration,
			})
		})
		if res.Versioned {
			s.appendEvent(ctx, func() (eventstore.Event, error) {
				return eventstore.NewVersionCreated(res.Unit, r.BuildID, string(res.Kind), res.Version, res.Changed)
			})
		}
	} else {
		msg := ""
		if buildErr != nil {
			msg = buildErr.Error()
		}
		s.appendEvent(ctx, func() (eventstore.Event, error) {
			return eventstore.NewBuildFailed(res.Unit, r.BuildID, string(res.Kind), res.ExitCode, res.TimedOut, msg)
		})
	}

	ev := events.BuildEvent{
		BuildID:      r.BuildID,
		Unit:         res.Unit,
		Kind:         string(res.Kind),
		Status:       string(res.Status),
		ExitCode:     res.ExitCode,
		Version:      res.Version,
		ChangedFiles: res.Changed,
		DurationMS:   res.Duration.Milliseconds(),
		Timestamp:    time.Now(),
	}
	if err := s.publisher.PublishBuild(ctx, ev); err != nil {
		slog.Warn("Failed to publish build event", logfields.BuildID(r.BuildID), logfields.Error(err))
	}
}

func (s *Service) appendEvent(ctx context.Context, mk func() (eventstore.Event, error)) {
	if s.history == nil {
		return
	}
	e, err := mk()
	if err == nil {
		err = s.history.Append(ctx, e)
	}
	if err != nil {
		slog.Warn("Failed to record build history", logfields.Error(err))
	}
}

// Stale reports whether kind of unit name needs a build: the main output is
// missing or not newer than the master source file.
func (s *Service) Stale(name string, kind unit.Kind) (bool, error) {
	l, err := s.roots.Open(name)
	if err != nil {
		return false, err
	}
	return s.stale(l, kind), nil
}

func (s *Service) stale(l *unit.Layout, kind unit.Kind) bool {
	out, err := os.Stat(s.mainFile(l, kind))
	if err != nil {
		return true
	}
	src, err := os.Stat(filepath.Join(l.SourceDir(), s.SourceFile()))
	if err != nil {
		return true
	}
	return !out.ModTime().After(src.ModTime())
}

func (s *Service) mainFile(l *unit.Layout, kind unit.Kind) string {
	return filepath.Join(l.BuildDir(kind), kind.MainFile(s.master))
}

// EnsureBuilt builds kind of unit name when it is stale. The result is nil
// when no build was needed.
func (s *Service) EnsureBuilt(ctx context.Context, name string, kind unit.Kind) (*BuildResult, error) {
	stale, err := s.Stale(name, kind)
	if err != nil || !stale {
		return nil, err
	}
	return s.Build(ctx, name, kind, false)
}

// MainArtifact returns the path of the main output of kind, building it
// first when stale. A failed build is reported as a build error carrying
// the exit code.
func (s *Service) MainArtifact(ctx context.Context, name string, kind unit.Kind) (string, error) {
	res, err := s.EnsureBuilt(ctx, name, kind)
	if err != nil {
		return "", err
	}
	if res != nil && !res.Succeeded() {
		return "", derrors.BuildFailure("build failed", res.ExitCode).
			WithContext("unit", name).
			WithContext("kind", string(kind)).
			WithContext("build_id", res.BuildID).
			Build()
	}
	l, err := s.roots.Open(name)
	if err != nil {
		return "", err
	}
	p := s.mainFile(l, kind)
	if _, err := os.Stat(p); err != nil {
		return "", derrors.NotFoundError("build produced no main output").WithContext("path", p).Build()
	}
	return p, nil
}

// Asset resolves rel inside the build output of kind.
func (s *Service) Asset(name string, kind unit.Kind, rel string) (string, error) {
	l, err := s.roots.Open(name)
	if err != nil {
		return "", err
	}
	return existingFile(l.BuildDir(kind), rel)
}

// LogReport is the last engine output of a kind and the errors found in it.
type LogReport struct {
	Log    string   `json:"log"`
	Errors []string `json:"errors"`
}

// Logs returns the log of the last build of kind.
func (s *Service) Logs(name string, kind unit.Kind) (*LogReport, error) {
	l, err := s.roots.Open(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(l.LogFile(kind))
	if os.IsNotExist(err) {
		return &LogReport{Errors: []string{}}, nil
	}
	if err != nil {
		return nil, derrors.FileSystemError("failed to open build log").WithCause(err).Build()
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, derrors.FileSystemError("failed to read build log").WithCause(err).Build()
	}
	return &LogReport{Log: string(data), Errors: engine.ErrorLines(string(data), string(kind))}, nil
}
