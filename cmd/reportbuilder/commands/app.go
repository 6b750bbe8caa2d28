package commands

import (
	"log/slog"
	"os"
	"path/filepath"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/reportbuilder/internal/config"
	"git.home.luguber.info/inful/reportbuilder/internal/engine"
	"git.home.luguber.info/inful/reportbuilder/internal/events"
	"git.home.luguber.info/inful/reportbuilder/internal/eventstore"
	"git.home.luguber.info/inful/reportbuilder/internal/logfields"
	"git.home.luguber.info/inful/reportbuilder/internal/metrics"
	"git.home.luguber.info/inful/reportbuilder/internal/reports"
	"git.home.luguber.info/inful/reportbuilder/internal/retry"
	"git.home.luguber.info/inful/reportbuilder/internal/sourcerepo"
	"git.home.luguber.info/inful/reportbuilder/internal/unit"
)

// App holds the wired application components for one command run.
type App struct {
	Config   *config.Config
	Service  *reports.Service
	Registry *prom.Registry

	history   *eventstore.SQLiteStore
	publisher events.Publisher
}

// NewApp wires engine, build manager, history store, event publisher and
// metrics according to cfg.
func NewApp(cfg *config.Config) (*App, error) {
	versioning, err := cfg.VersioningKinds()
	if err != nil {
		return nil, err
	}

	eng, sourceExt := newEngine(cfg)

	reg := prom.NewRegistry()
	reg.MustRegister(promcollect.NewGoCollector(), promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))
	recorder := metrics.NewPrometheusRecorder(reg)

	manager := unit.NewManager(eng).
		WithVersioning(versioning...).
		WithTimeout(cfg.Engine.Timeout).
		WithRecorder(recorder)

	svc := reports.NewService(unit.NewRootManager(cfg.DataRoot, cfg.ConfigTemplate), manager).
		WithMasterDoc(cfg.MasterDoc).
		WithSourceExt(sourceExt).
		WithUploadExtensions(cfg.Uploads.AllowedExtensions).
		WithAuthor(sourcerepo.Author{Name: cfg.Git.AuthorName, Email: cfg.Git.AuthorEmail}).
		WithRecorder(recorder)

	app := &App{Config: cfg, Service: svc, Registry: reg, publisher: events.NoopPublisher{}}

	if cfg.History.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.History.DBPath), 0o750); err != nil {
			return nil, err
		}
		store, err := eventstore.NewSQLiteStore(cfg.History.DBPath)
		if err != nil {
			return nil, err
		}
		app.history = store
		svc.WithHistory(store)
	}

	if cfg.Events.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.Subject,
			events.WithRetryPolicy(retry.NewPolicy(retry.ParseBackoff(cfg.Events.Retry.Backoff),
				cfg.Events.Retry.Initial, cfg.Events.Retry.Max, *cfg.Events.Retry.MaxRetries)))
		if err != nil {
			app.Close()
			return nil, err
		}
		app.publisher = pub
		svc.WithPublisher(pub)
	}

	slog.Debug("Application wired",
		logfields.Path(cfg.DataRoot),
		slog.String("engine", cfg.Engine.Type),
		slog.Any("versioning", cfg.Versioning))
	return app, nil
}

// Close releases the history store and the event connection.
func (a *App) Close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			slog.Warn("Failed to close history store", logfields.Error(err))
		}
	}
}

func newEngine(cfg *config.Config) (engine.Engine, string) {
	if cfg.Engine.Type == config.EngineMarkdown {
		return engine.NewMarkdownEngine(), ".md"
	}
	return engine.NewSphinxEngine(cfg.Engine.Binary), ".rst"
}
