package unit

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "git.home.luguber.info/inful/reportbuilder/internal/foundation/errors"
)

func TestParseKind(t *testing.T) {
	for _, s := range []string{"html", "latex", "pdf"} {
		k, err := ParseKind(s)
		require.NoError(t, err)
		assert.Equal(t, s, k.String())
	}
	_, err := ParseKind("docx")
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryConfig))

	_, err = ParseKinds([]string{"html", "epub"})
	assert.Error(t, err)
}

func TestKindMainFile(t *testing.T) {
	assert.Equal(t, "report.html", KindHTML.MainFile("report"))
	assert.Equal(t, "report.tex", KindLaTeX.MainFile("report"))
	assert.Equal(t, "report.pdf", KindPDF.MainFile("report"))
}

func TestProvisionCreatesSkeleton(t *testing.T) {
	root := t.TempDir()
	tmpl := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpl, "conf.py"), []byte("project = 'x'\n"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(tmpl, "_templates"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(tmpl, "_templates", "layout.html"), []byte("{{ body }}"), 0o600))

	l, err := NewRootManager(root, tmpl).Provision("net1", CollisionFail)
	require.NoError(t, err)
	assert.Equal(t, "net1", l.Name)

	for _, rel := range []string{
		"config", "source", "source/data",
		"build/html", "build/latex", "build/pdf",
		"version/html", "version/latex", "version/pdf",
	} {
		assert.DirExists(t, filepath.Join(root, "net1", rel))
	}
	assert.FileExists(t, filepath.Join(l.ConfigDir(), "conf.py"))
	assert.FileExists(t, filepath.Join(l.ConfigDir(), "_templates", "layout.html"))
	require.NoError(t, l.Validate())
}

func TestProvisionFailPolicyLeavesExistingUntouched(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, "net1")
	require.NoError(t, os.MkdirAll(existing, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(existing, "keep.txt"), []byte("x"), 0o600))

	_, err := NewRootManager(root, "").Provision("net1", CollisionFail)
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryAlreadyExists))

	entries, err := os.ReadDir(existing)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "keep.txt", entries[0].Name())
}

func TestProvisionAppendPolicyPicksLowestFreeSuffix(t *testing.T) {
	root := t.TempDir()
	m := NewRootManager(root, "")

	first, err := m.Provision("net", CollisionAppend)
	require.NoError(t, err)
	second, err := m.Provision("net", CollisionAppend)
	require.NoError(t, err)
	third, err := m.Provision("net", CollisionAppend)
	require.NoError(t, err)
	assert.Equal(t, []string{"net", "net1", "net2"}, []string{first.Name, second.Name, third.Name})

	require.NoError(t, os.RemoveAll(second.Root))
	again, err := m.Provision("net", CollisionAppend)
	require.NoError(t, err)
	assert.Equal(t, "net1", again.Name)
}

func TestConcurrentProvisionClaimsEachNameOnce(t *testing.T) {
	const workers = 8
	m := NewRootManager(filepath.Join(t.TempDir(), "reports"), "")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  []string
		rejected int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := m.Provision("net", CollisionFail)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.True(t, derrors.HasCategory(err, derrors.CategoryAlreadyExists))
				rejected++
				return
			}
			created = append(created, l.Name)
		}()
	}
	wg.Wait()
	assert.Equal(t, []string{"net"}, created)
	assert.Equal(t, workers-1, rejected)

	names := make(chan string, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := m.Provision("sta", CollisionAppend)
			if assert.NoError(t, err) {
				names <- l.Name
			}
		}()
	}
	wg.Wait()
	close(names)
	seen := map[string]bool{}
	for n := range names {
		assert.False(t, seen[n], n)
		seen[n] = true
	}
	assert.Len(t, seen, workers)
	assert.True(t, seen["sta"])
}

func TestProvisionWrapsFilesystemErrors(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "not-a-dir")
	require.NoError(t, os.WriteFile(root, []byte("file"), 0o600))

	_, err := NewRootManager(root, "").Provision("net1", CollisionFail)
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryFileSystem))
	ce, ok := derrors.AsClassified(err)
	require.True(t, ok)
	assert.Error(t, ce.Cause())
}

func TestProvisionRejectsInvalidNames(t *testing.T) {
	m := NewRootManager(t.TempDir(), "")
	for _, name := range []string{"", "..", "a/b", "_history", ".hidden"} {
		_, err := m.Provision(name, CollisionFail)
		assert.True(t, derrors.HasCategory(err, derrors.CategoryValidation), name)
	}
}

func TestOpenAndList(t *testing.T) {
	root := t.TempDir()
	m := NewRootManager(root, "")
	_, err := m.Provision("beta", CollisionFail)
	require.NoError(t, err)
	_, err = m.Provision("alpha", CollisionFail)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "_history.db"), nil, 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "_trash"), 0o750))

	names, err := m.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, names)

	l, err := m.Open("alpha")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "alpha"), l.Root)

	_, err = m.Open("gamma")
	assert.True(t, derrors.HasCategory(err, derrors.CategoryNotFound))

	require.NoError(t, os.MkdirAll(filepath.Join(root, "broken"), 0o750))
	_, err = m.Open("broken")
	assert.True(t, derrors.HasCategory(err, derrors.CategoryConfig))
}

func TestListMissingRoot(t *testing.T) {
	names, err := NewRootManager(filepath.Join(t.TempDir(), "nope"), "").List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestParseCollisionPolicy(t *testing.T) {
	p, err := ParseCollisionPolicy("append")
	require.NoError(t, err)
	assert.Equal(t, CollisionAppend, p)
	p, err = ParseCollisionPolicy("raise")
	require.NoError(t, err)
	assert.Equal(t, CollisionFail, p)
	_, err = ParseCollisionPolicy("merge")
	assert.Error(t, err)
}
