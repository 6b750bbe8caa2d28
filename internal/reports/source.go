package reports

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	derrors "git.home.luguber.info/inful/reportbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/reportbuilder/internal/logfields"
	"git.home.luguber.info/inful/reportbuilder/internal/sourcerepo"
)

// SaveSource replaces the master source of unit name with text and commits
// it as author. The returned hash is empty when the text was unchanged, in
// which case no rebuild is needed.
func (s *Service) SaveSource(_ context.Context, name, text string, author sourcerepo.Author) (string, error) {
	l, err := s.roots.Open(name)
	if err != nil {
		return "", err
	}
	path := filepath.Join(l.SourceDir(), s.SourceFile())
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		return "", derrors.FileSystemError("failed to write source").WithCause(err).WithContext("path", path).Build()
	}
	repo, err := sourcerepo.Open(l.SourceDir())
	if err != nil {
		return "", err
	}
	if author.Name == "" {
		author = s.author
	}
	hash, err := repo.CommitAll(author, "Source edited by "+author.Name)
	if err != nil {
		return "", err
	}
	if hash != "" {
		slog.Info("Source saved", logfields.Unit(name), logfields.Commit(hash))
	}
	return hash, nil
}

// Source returns the master source text of unit name, either from disk
// (empty commit) or as recorded in commit.
func (s *Service) Source(name, commit string) (string, error) {
	l, err := s.roots.Open(name)
	if err != nil {
		return "", err
	}
	if commit == "" {
		path := filepath.Join(l.SourceDir(), s.SourceFile())
		// #nosec G304 -- path is the master source of a managed unit
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			return "", nil
		}
		if err != nil {
			return "", derrors.FileSystemError("failed to read source").WithCause(err).WithContext("path", path).Build()
		}
		return string(data), nil
	}
	repo, err := sourcerepo.Open(l.SourceDir())
	if err != nil {
		return "", err
	}
	data, err := repo.Show(commit, s.SourceFile())
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Commits returns up to limit source commits of unit name, newest first.
func (s *Service) Commits(name string, limit int) ([]sourcerepo.Commit, error) {
	l, err := s.roots.Open(name)
	if err != nil {
		return nil, err
	}
	repo, err := sourcerepo.Open(l.SourceDir())
	if err != nil {
		return nil, err
	}
	return repo.Log(limit)
}
