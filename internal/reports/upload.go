package reports

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/reportbuilder/internal/figure"
	derrors "git.home.luguber.info/inful/reportbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/reportbuilder/internal/logfields"
)

// UploadResult locates a stored figure and the directive that embeds it.
type UploadResult struct {
	Path      string `json:"path"`
	Directive string `json:"directive"`
}

// Upload stores r as a figure of unit name under source/data and returns
// the figure directive referencing it.
func (s *Service) Upload(name, filename string, r io.Reader, label, caption string) (*UploadResult, error) {
	l, err := s.roots.Open(name)
	if err != nil {
		return nil, err
	}
	path, err := figure.Prepare(l.DataDir(), filename, s.uploadExts)
	if err != nil {
		s.recorder.IncUpload(false)
		return nil, err
	}
	if err := writeNew(path, r); err != nil {
		s.recorder.IncUpload(false)
		return nil, err
	}
	s.recorder.IncUpload(true)

	rel, err := filepath.Rel(l.SourceDir(), path)
	if err != nil {
		return nil, derrors.InternalError("upload outside source directory").WithCause(err).Build()
	}
	slog.Info("Figure uploaded", logfields.Unit(name), logfields.File(rel))
	return &UploadResult{
		Path:      filepath.ToSlash(rel),
		Directive: figure.Directive(rel, label, caption),
	}, nil
}

func writeNew(path string, r io.Reader) error {
	// #nosec G304 -- path was sanitized by figure.Prepare
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return derrors.FileSystemError("failed to create upload").WithCause(err).WithContext("path", path).Build()
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return derrors.FileSystemError("failed to store upload").WithCause(err).WithContext("path", path).Build()
	}
	if err := f.Close(); err != nil {
		return derrors.FileSystemError("failed to store upload").WithCause(err).WithContext("path", path).Build()
	}
	return nil
}
