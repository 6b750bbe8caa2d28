package sourcerepo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "git.home.luguber.info/inful/reportbuilder/internal/foundation/errors"
)

func TestOpenInitializesRepository(t *testing.T) {
	dir := t.TempDir()
	r, err := Open(dir)
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(dir, ".git"))

	log, err := r.Log(10)
	require.NoError(t, err)
	assert.Empty(t, log)

	again, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, again.Dir())
}

func TestCommitAllAndHistory(t *testing.T) {
	dir := t.TempDir()
	r, err := Open(dir)
	require.NoError(t, err)

	hash, err := r.CommitAll(Author{}, "empty")
	require.NoError(t, err)
	assert.Empty(t, hash, "clean worktree commits nothing")

	src := filepath.Join(dir, "report.rst")
	require.NoError(t, os.WriteFile(src, []byte("Title\n=====\n"), 0o600))
	first, err := r.CommitAll(Author{Name: "Ada", Email: "ada@example.org"}, "initial")
	require.NoError(t, err)
	require.NotEmpty(t, first)

	dirty, err := r.Dirty()
	require.NoError(t, err)
	assert.False(t, dirty)

	require.NoError(t, os.WriteFile(src, []byte("Title\n=====\n\nMore.\n"), 0o600))
	second, err := r.CommitAll(Author{}, "edit")
	require.NoError(t, err)
	require.NotEmpty(t, second)

	log, err := r.Log(0)
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, second, log[0].Hash)
	assert.Equal(t, DefaultAuthor.Name, log[0].Author)
	assert.Equal(t, "Ada", log[1].Author)

	limited, err := r.Log(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	old, err := r.Show(first, "report.rst")
	require.NoError(t, err)
	assert.Equal(t, "Title\n=====\n", string(old))

	head, err := r.Show("HEAD", "report.rst")
	require.NoError(t, err)
	assert.Contains(t, string(head), "More.")
}

func TestShowMissing(t *testing.T) {
	dir := t.TempDir()
	r, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.rst"), []byte("a"), 0o600))
	hash, err := r.CommitAll(Author{}, "a")
	require.NoError(t, err)

	_, err = r.Show(hash, "b.rst")
	assert.True(t, derrors.HasCategory(err, derrors.CategoryNotFound))

	_, err = r.Show("0123456789abcdef0123456789abcdef01234567", "a.rst")
	assert.True(t, derrors.HasCategory(err, derrors.CategoryNotFound))
}
