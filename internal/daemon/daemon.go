// Package daemon runs the report server together with background rebuilds:
// a periodic rebuild of stale units and a watcher that rebuilds html when a
// unit's sources change.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/reportbuilder/internal/logfields"
	"git.home.luguber.info/inful/reportbuilder/internal/unit"
)

const (
	shutdownTimeout = 30 * time.Second
	rebuildJobName  = "rebuild-stale"
)

// Service is a component with a start/stop lifecycle, e.g. the HTTP server.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Options configure the background work.
type Options struct {
	// Interval between stale rebuilds. Zero disables the scheduler unless
	// Cron is set.
	Interval time.Duration
	// Cron is a five-field cron expression for stale rebuilds. It replaces
	// Interval when set.
	Cron string
	// Kinds rebuilt by the scheduler.
	Kinds []unit.Kind
	// Watch enables the source watcher.
	Watch bool
	// Debounce is the quiet window of the source watcher.
	Debounce time.Duration
}

// Daemon owns the long-running components.
type Daemon struct {
	builder Builder
	server  Service
	opts    Options

	mu        sync.Mutex
	scheduler *Scheduler
	watcher   *SourceWatcher
	running   bool
}

// New creates a daemon. server may be nil.
func New(builder Builder, server Service, opts Options) *Daemon {
	if len(opts.Kinds) == 0 {
		opts.Kinds = []unit.Kind{unit.KindHTML}
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 2 * time.Second
	}
	return &Daemon{builder: builder, server: server, opts: opts}
}

// Start starts the server, scheduler and watcher. On failure everything
// already started is stopped again.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return errors.New("daemon already running")
	}

	if d.server != nil {
		if err := d.server.Start(ctx); err != nil {
			return err
		}
	}

	if d.opts.Interval > 0 || d.opts.Cron != "" {
		s, err := NewScheduler()
		if err != nil {
			_ = d.stopLocked(ctx)
			return err
		}
		d.scheduler = s
		task := func() {
			if _, err := RebuildStale(ctx, d.builder, d.opts.Kinds); err != nil && ctx.Err() == nil {
				slog.Error("Scheduled rebuild aborted", logfields.Error(err))
			}
		}
		if d.opts.Cron != "" {
			_, err = s.ScheduleCron(rebuildJobName, d.opts.Cron, task)
		} else {
			_, err = s.ScheduleEvery(rebuildJobName, d.opts.Interval, task)
		}
		if err != nil {
			_ = d.stopLocked(ctx)
			return err
		}
		s.Start(ctx)
	}

	if d.opts.Watch {
		w, err := NewSourceWatcher(d.builder.Roots(), d.opts.Debounce, d.rebuildHTML)
		if err != nil {
			_ = d.stopLocked(ctx)
			return err
		}
		d.watcher = w
		if err := w.Start(ctx); err != nil {
			_ = d.stopLocked(ctx)
			return err
		}
	}

	d.running = true
	slog.Info("Daemon started",
		slog.Duration("interval", d.opts.Interval),
		slog.String("cron", d.opts.Cron),
		slog.Bool("watch", d.opts.Watch))
	return nil
}

// Stop stops all components in reverse start order.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.stopLocked(ctx)
	d.running = false
	return err
}

// Run starts the daemon and blocks until ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return d.Stop(stopCtx)
}

func (d *Daemon) stopLocked(ctx context.Context) error {
	var errs []error
	if d.watcher != nil {
		if err := d.watcher.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("source watcher: %w", err))
		}
		d.watcher = nil
	}
	if d.scheduler != nil {
		if err := d.scheduler.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("scheduler: %w", err))
		}
		d.scheduler = nil
	}
	if d.server != nil {
		if err := d.server.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Daemon) rebuildHTML(ctx context.Context, name string) {
	res, err := d.builder.Build(ctx, name, unit.KindHTML, false)
	if err != nil {
		slog.Warn("Rebuild after source change failed", logfields.Unit(name), logfields.Error(err))
		return
	}
	slog.Info("Rebuilt after source change",
		logfields.Unit(name),
		logfields.BuildID(res.BuildID),
		logfields.ExitCode(res.ExitCode),
		logfields.Version(res.Version))
}
