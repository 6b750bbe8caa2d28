package reports

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/reportbuilder/internal/engine"
	"git.home.luguber.info/inful/reportbuilder/internal/events"
	"git.home.luguber.info/inful/reportbuilder/internal/eventstore"
	derrors "git.home.luguber.info/inful/reportbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/reportbuilder/internal/sourcerepo"
	"git.home.luguber.info/inful/reportbuilder/internal/unit"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.BuildEvent
}

func (p *recordingPublisher) PublishBuild(_ context.Context, ev events.BuildEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() {}

func newService(t *testing.T, eng engine.Engine) (*Service, *recordingPublisher) {
	t.Helper()
	store, err := eventstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	n := 0
	pub := &recordingPublisher{}
	svc := NewService(
		unit.NewRootManager(t.TempDir(), ""),
		unit.NewManager(eng).WithVersioning(unit.KindHTML),
	).
		WithSourceExt("md").
		WithHistory(store).
		WithPublisher(pub).
		WithIDGenerator(func() string { n++; return fmt.Sprintf("build-%d", n) })
	return svc, pub
}

func TestReportLifecycle(t *testing.T) {
	svc, pub := newService(t, engine.NewMarkdownEngine())
	ctx := context.Background()

	l, err := svc.Provision("net1", unit.CollisionFail)
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(l.SourceDir(), ".git"))

	first, err := svc.SaveSource(ctx, "net1", "# Network One\n\nStations.\n", sourcerepo.Author{Name: "Ada", Email: "ada@example.org"})
	require.NoError(t, err)
	require.NotEmpty(t, first)
	again, err := svc.SaveSource(ctx, "net1", "# Network One\n\nStations.\n", sourcerepo.Author{})
	require.NoError(t, err)
	assert.Empty(t, again)

	src := filepath.Join(l.SourceDir(), "report.md")
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(src, past, past))

	stale, err := svc.Stale("net1", unit.KindHTML)
	require.NoError(t, err)
	assert.True(t, stale)

	page, err := svc.MainArtifact(ctx, "net1", unit.KindHTML)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(l.BuildDir(unit.KindHTML), "report.html"), page)

	stale, err = svc.Stale("net1", unit.KindHTML)
	require.NoError(t, err)
	assert.False(t, stale)
	res, err := svc.EnsureBuilt(ctx, "net1", unit.KindHTML)
	require.NoError(t, err)
	assert.Nil(t, res)

	list, err := svc.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, Summary{Name: "net1", Title: "Network One", Built: true}, list[0])

	versions, err := svc.Versions("net1", unit.KindHTML)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, []string{"report.html"}, versions[0].Files)
	vf, err := svc.VersionFile("net1", unit.KindHTML, "00000", "report.html")
	require.NoError(t, err)
	assert.FileExists(t, vf)

	history, err := svc.History(ctx, "net1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "build-1", history[0].BuildID)
	assert.Equal(t, "completed", history[0].Status)
	assert.Equal(t, "00000", history[0].Version)
	assert.Equal(t, []string{"report.html"}, history[0].VersionFiles)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "success", pub.events[0].Status)
	assert.Equal(t, "00000", pub.events[0].Version)

	logs, err := svc.Logs("net1", unit.KindHTML)
	require.NoError(t, err)
	assert.Contains(t, logs.Log, "rendering report.md")
	assert.Empty(t, logs.Errors)

	text, err := svc.Source("net1", first)
	require.NoError(t, err)
	assert.Equal(t, "# Network One\n\nStations.\n", text)
	commits, err := svc.Commits("net1", 10)
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, "Ada", commits[0].Author)
}

func TestUploadAndRebuildCommitsFigure(t *testing.T) {
	svc, _ := newService(t, engine.NewMarkdownEngine())
	ctx := context.Background()
	_, err := svc.Provision("net1", unit.CollisionFail)
	require.NoError(t, err)

	up, err := svc.Upload("net1", "Station Map.png", strings.NewReader("png-bytes"), "map", "The map")
	require.NoError(t, err)
	assert.Equal(t, "data/Station_Map.png", up.Path)
	assert.Equal(t, ".. _map:\n\n.. figure:: ./data/Station_Map.png\n\n   The map", up.Directive)

	second, err := svc.Upload("net1", "Station Map.png", strings.NewReader("other"), "", "")
	require.NoError(t, err)
	assert.Equal(t, "data/Station_Map_1.png", second.Path)

	_, err = svc.Upload("net1", "run.sh", strings.NewReader("#!"), "", "")
	assert.True(t, derrors.HasCategory(err, derrors.CategoryValidation))

	res, err := svc.Build(ctx, "net1", unit.KindHTML, true)
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Contains(t, res.Changed, "data/Station_Map.png")

	commits, err := svc.Commits("net1", 0)
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, "Automatic commit before build", commits[0].Message)

	asset, err := svc.Asset("net1", unit.KindHTML, "data/Station_Map.png")
	require.NoError(t, err)
	assert.FileExists(t, asset)
	_, err = svc.Asset("net1", unit.KindHTML, "../../config/conf.py")
	assert.True(t, derrors.HasCategory(err, derrors.CategoryNotFound))
}

func TestFailedBuildIsRecorded(t *testing.T) {
	svc, pub := newService(t, engine.NewMarkdownEngine())
	ctx := context.Background()
	_, err := svc.Provision("net1", unit.CollisionFail)
	require.NoError(t, err)

	res, err := svc.Build(ctx, "net1", unit.KindPDF, false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ExitCode)
	assert.Equal(t, unit.BuildStatusFailed, res.Status)

	_, err = svc.MainArtifact(ctx, "net1", unit.KindPDF)
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryBuild))
	code, ok := derrors.ExitCode(err)
	assert.True(t, ok)
	assert.Equal(t, 2, code)

	history, err := svc.History(ctx, "net1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "failed", history[0].Status)
	assert.Equal(t, 2, history[0].ExitCode)
	require.Len(t, pub.events, 2)
	assert.Equal(t, "failed", pub.events[1].Status)

	logs, err := svc.Logs("net1", unit.KindPDF)
	require.NoError(t, err)
	assert.Contains(t, logs.Log, "unsupported output kind")
}

func TestUnknownUnitAndKind(t *testing.T) {
	svc, _ := newService(t, engine.NewMarkdownEngine())
	ctx := context.Background()

	_, err := svc.Build(ctx, "ghost", unit.KindHTML, false)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryNotFound))
	_, err = svc.Build(ctx, "ghost", unit.Kind("epub"), false)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryConfig))

	_, err = svc.Provision("net1", unit.CollisionFail)
	require.NoError(t, err)
	_, err = svc.VersionFile("net1", unit.KindHTML, "1", "x")
	assert.True(t, derrors.HasCategory(err, derrors.CategoryValidation))
	logs, err := svc.Logs("net1", unit.KindLaTeX)
	require.NoError(t, err)
	assert.Empty(t, logs.Log)
}

func TestListFallsBackToName(t *testing.T) {
	svc, _ := newService(t, engine.NewMarkdownEngine())
	_, err := svc.Provision("beta", unit.CollisionFail)
	require.NoError(t, err)
	list, err := svc.List()
	require.NoError(t, err)
	assert.Equal(t, []Summary{{Name: "beta", Title: "beta"}}, list)
}

func TestBuildLogFailureEndsHistoryEntry(t *testing.T) {
	svc, pub := newService(t, engine.NewMarkdownEngine())
	ctx := context.Background()
	l, err := svc.Provision("net1", unit.CollisionFail)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(l.LogFile(unit.KindHTML), 0o750))

	_, err = svc.Build(ctx, "net1", unit.KindHTML, true)
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryFileSystem))

	history, err := svc.History(ctx, "net1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "failed", history[0].Status)
	assert.NotNil(t, history[0].CompletedAt)
	assert.Contains(t, history[0].ErrorMessage, "failed to create build log")
	assert.Empty(t, pub.events)
}

func TestConcurrentBuildsDoNotInterleaveLogs(t *testing.T) {
	var mu sync.Mutex
	n := 0
	eng := engine.Func(func(_ context.Context, req engine.Request) (int, error) {
		mu.Lock()
		n++
		id := n
		mu.Unlock()
		_, _ = fmt.Fprintf(req.Log, "start %d\n", id)
		time.Sleep(20 * time.Millisecond)
		_, _ = fmt.Fprintf(req.Log, "end %d\n", id)
		return 0, nil
	})
	svc, _ := newService(t, eng)
	ctx := context.Background()
	_, err := svc.Provision("net1", unit.CollisionFail)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Build(ctx, "net1", unit.KindLaTeX, false)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	logs, err := svc.Logs("net1", unit.KindLaTeX)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(logs.Log), "\n")
	require.Len(t, lines, 2)
	id := strings.TrimPrefix(lines[0], "start ")
	assert.Equal(t, "end "+id, lines[1])
}
