package daemon

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/reportbuilder/internal/logfields"
	"git.home.luguber.info/inful/reportbuilder/internal/reports"
	"git.home.luguber.info/inful/reportbuilder/internal/unit"
)

// Builder is the part of reports.Service the daemon drives.
type Builder interface {
	Roots() *unit.RootManager
	EnsureBuilt(ctx context.Context, name string, kind unit.Kind) (*reports.BuildResult, error)
	Build(ctx context.Context, name string, kind unit.Kind, force bool) (*reports.BuildResult, error)
}

// RebuildStale builds every stale kind of every unit and returns the number
// of builds started. Per-unit failures are logged and skipped.
func RebuildStale(ctx context.Context, b Builder, kinds []unit.Kind) (int, error) {
	names, err := b.Roots().List()
	if err != nil {
		return 0, err
	}
	built := 0
	for _, name := range names {
		for _, k := range kinds {
			if err := ctx.Err(); err != nil {
				return built, err
			}
			res, err := b.EnsureBuilt(ctx, name, k)
			if err != nil {
				slog.Warn("Scheduled rebuild failed", logfields.Unit(name), logfields.Kind(string(k)), logfields.Error(err))
				continue
			}
			if res == nil {
				continue
			}
			built++
			if !res.Succeeded() {
				slog.Warn("Scheduled rebuild exited with errors",
					logfields.Unit(name),
					logfields.Kind(string(k)),
					logfields.BuildID(res.BuildID),
					logfields.ExitCode(res.ExitCode))
			}
		}
	}
	if built > 0 {
		slog.Info("Rebuilt stale units", slog.Int("builds", built))
	}
	return built, nil
}
