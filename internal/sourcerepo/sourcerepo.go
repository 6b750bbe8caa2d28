// Package sourcerepo keeps the edit history of a unit's source directory in
// a local git repository.
package sourcerepo

import (
	"errors"
	"io"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	derrors "git.home.luguber.info/inful/reportbuilder/internal/foundation/errors"
)

// Author identifies who made a change.
type Author struct {
	Name  string
	Email string
}

// DefaultAuthor is used when a change carries no author.
var DefaultAuthor = Author{Name: "reportbuilder", Email: "reportbuilder@localhost"}

// Commit summarizes one commit of the source history.
type Commit struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	Email   string    `json:"email"`
	When    time.Time `json:"when"`
}

// Repo is a git repository rooted at a source directory.
type Repo struct {
	dir  string
	repo *git.Repository
}

// Open opens the repository at dir, initializing one when absent.
func Open(dir string) (*Repo, error) {
	r, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		r, err = git.PlainInit(dir, false)
	}
	if err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryGit, "failed to open source repository").
			WithContext("path", dir).
			Build()
	}
	return &Repo{dir: dir, repo: r}, nil
}

// Dir returns the worktree root.
func (r *Repo) Dir() string { return r.dir }

// Dirty reports whether the worktree has uncommitted changes.
func (r *Repo) Dirty() (bool, error) {
	w, err := r.repo.Worktree()
	if err != nil {
		return false, derrors.WrapError(err, derrors.CategoryGit, "failed to get git worktree").Build()
	}
	status, err := w.Status()
	if err != nil {
		return false, derrors.WrapError(err, derrors.CategoryGit, "failed to get git status").Build()
	}
	return !status.IsClean(), nil
}

// CommitAll stages every change in the worktree and commits it. It returns
// the new commit hash, or an empty string when there was nothing to commit.
func (r *Repo) CommitAll(author Author, message string) (string, error) {
	dirty, err := r.Dirty()
	if err != nil || !dirty {
		return "", err
	}
	w, err := r.repo.Worktree()
	if err != nil {
		return "", derrors.WrapError(err, derrors.CategoryGit, "failed to get git worktree").Build()
	}
	if err := w.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", derrors.WrapError(err, derrors.CategoryGit, "failed to stage changes").Build()
	}
	if author.Name == "" {
		author = DefaultAuthor
	}
	hash, err := w.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: author.Name, Email: author.Email, When: time.Now()},
	})
	if err != nil {
		return "", derrors.WrapError(err, derrors.CategoryGit, "failed to commit changes").Build()
	}
	return hash.String(), nil
}

// Log returns up to limit commits reachable from HEAD, newest first. A
// repository without commits yields an empty list.
func (r *Repo) Log(limit int) ([]Commit, error) {
	out := []Commit{}
	ref, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryGit, "failed to resolve HEAD").Build()
	}
	iter, err := r.repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryGit, "failed to read git log").Build()
	}
	defer iter.Close()

	err = iter.ForEach(func(c *object.Commit) error {
		if limit > 0 && len(out) >= limit {
			return io.EOF
		}
		out = append(out, Commit{
			Hash:    c.Hash.String(),
			Message: c.Message,
			Author:  c.Author.Name,
			Email:   c.Author.Email,
			When:    c.Author.When,
		})
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, derrors.WrapError(err, derrors.CategoryGit, "failed to walk git log").Build()
	}
	return out, nil
}

// Show returns the content of relPath at revision rev (a full or abbreviated
// hash, or a reference such as HEAD).
func (r *Repo) Show(rev, relPath string) ([]byte, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, derrors.NotFoundError("unknown revision").WithCause(err).WithContext("commit", rev).Build()
	}
	c, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, derrors.NotFoundError("unknown commit").WithCause(err).WithContext("commit", rev).Build()
	}
	f, err := c.File(filepath.ToSlash(relPath))
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, derrors.NotFoundError("file not present in commit").
				WithContext("commit", rev).
				WithContext("path", relPath).
				Build()
		}
		return nil, derrors.WrapError(err, derrors.CategoryGit, "failed to read commit tree").Build()
	}
	content, err := f.Contents()
	if err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryGit, "failed to read file from commit").Build()
	}
	return []byte(content), nil
}
