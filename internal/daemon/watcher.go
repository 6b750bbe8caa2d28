package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/reportbuilder/internal/logfields"
	"git.home.luguber.info/inful/reportbuilder/internal/unit"
)

// SourceWatcher watches the source directories of all units and calls
// onChange once per unit after writes have been quiet for the debounce
// window. The data root is watched too, so units provisioned later are
// picked up.
type SourceWatcher struct {
	roots    *unit.RootManager
	onChange func(ctx context.Context, name string)
	debounce time.Duration

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	ctx     context.Context
	dirs    map[string]string // watched dir -> unit name
	timers  map[string]*time.Timer
	started bool
	stopped bool
	done    chan struct{}
}

// NewSourceWatcher creates a watcher over the units below roots.
func NewSourceWatcher(roots *unit.RootManager, debounce time.Duration, onChange func(ctx context.Context, name string)) (*SourceWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &SourceWatcher{
		roots:    roots,
		onChange: onChange,
		debounce: debounce,
		watcher:  w,
		dirs:     map[string]string{},
		timers:   map[string]*time.Timer{},
		done:     make(chan struct{}),
	}, nil
}

// Start registers the watches and begins processing events.
func (sw *SourceWatcher) Start(ctx context.Context) error {
	sw.mu.Lock()
	if sw.started {
		sw.mu.Unlock()
		return fmt.Errorf("source watcher already started")
	}
	sw.ctx = ctx
	sw.started = true
	sw.mu.Unlock()

	if err := sw.watcher.Add(sw.roots.Root()); err != nil {
		return fmt.Errorf("failed to watch data root %s: %w", sw.roots.Root(), err)
	}
	names, err := sw.roots.List()
	if err != nil {
		return err
	}
	for _, name := range names {
		sw.addUnit(name)
	}
	slog.Info("Starting source watcher", logfields.Path(sw.roots.Root()), slog.Int("units", len(names)))
	go sw.watchLoop(ctx)
	return nil
}

// Stop cancels pending notifications and closes the watcher.
func (sw *SourceWatcher) Stop(context.Context) error {
	sw.mu.Lock()
	if sw.stopped {
		sw.mu.Unlock()
		return nil
	}
	sw.stopped = true
	started := sw.started
	for name, t := range sw.timers {
		t.Stop()
		delete(sw.timers, name)
	}
	sw.mu.Unlock()

	slog.Info("Stopping source watcher")
	err := sw.watcher.Close()
	if started {
		<-sw.done
	}
	return err
}

func (sw *SourceWatcher) addUnit(name string) {
	sw.mu.Lock()
	stopped := sw.stopped
	sw.mu.Unlock()
	if stopped {
		return
	}
	l := sw.roots.Layout(name)
	for _, dir := range []string{l.SourceDir(), l.DataDir()} {
		if err := sw.watcher.Add(dir); err != nil {
			slog.Debug("Skipping watch", logfields.Unit(name), logfields.Path(dir), logfields.Error(err))
			continue
		}
		sw.mu.Lock()
		sw.dirs[dir] = name
		sw.mu.Unlock()
	}
}

func (sw *SourceWatcher) watchLoop(ctx context.Context) {
	defer close(sw.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			sw.handle(event)
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Source watcher error", logfields.Error(err))
		}
	}
}

func (sw *SourceWatcher) handle(event fsnotify.Event) {
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return
	}
	parent := filepath.Dir(event.Name)

	if parent == filepath.Clean(sw.roots.Root()) {
		// The skeleton of a new unit is still being created; pick it up
		// once provisioning had time to finish.
		if event.Has(fsnotify.Create) && unit.ValidateName(base) == nil {
			time.AfterFunc(sw.debounce, func() { sw.addUnit(base) })
		}
		return
	}

	sw.mu.Lock()
	name, ok := sw.dirs[parent]
	sw.mu.Unlock()
	if !ok {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if event.Has(fsnotify.Create) && event.Name == sw.roots.Layout(name).DataDir() {
		sw.addUnit(name)
	}
	slog.Debug("Source change detected", logfields.Unit(name), logfields.File(base), slog.String("op", event.Op.String()))
	sw.trigger(name)
}

// trigger (re)starts the debounce timer of name.
func (sw *SourceWatcher) trigger(name string) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.stopped {
		return
	}
	if t, ok := sw.timers[name]; ok {
		t.Reset(sw.debounce)
		return
	}
	ctx := sw.ctx
	sw.timers[name] = time.AfterFunc(sw.debounce, func() {
		sw.mu.Lock()
		delete(sw.timers, name)
		stopped := sw.stopped
		sw.mu.Unlock()
		if stopped || ctx.Err() != nil {
			return
		}
		sw.onChange(ctx, name)
	})
}
