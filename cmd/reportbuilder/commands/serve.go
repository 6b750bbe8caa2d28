package commands

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/reportbuilder/internal/daemon"
	"git.home.luguber.info/inful/reportbuilder/internal/server/httpserver"
)

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	Addr    string `help:"Listen address (overrides server.addr)"`
	NoWatch bool   `help:"Disable the source watcher"`
}

func (s *ServeCmd) Run(_ *Global, root *CLI) error {
	return withApp(root, func(ctx context.Context, app *App) error {
		cfg := app.Config
		addr := cfg.Server.Addr
		if s.Addr != "" {
			addr = s.Addr
		}
		kinds, err := cfg.ScheduleKinds()
		if err != nil {
			return err
		}

		srv := httpserver.New(app.Service, httpserver.Options{
			Addr:     addr,
			Registry: app.Registry,
			Logger:   slog.Default(),
		})
		d := daemon.New(app.Service, srv, daemon.Options{
			Interval: cfg.Schedule.Interval,
			Cron:     cfg.Schedule.Cron,
			Kinds:    kinds,
			Watch:    cfg.Watch.Enabled && !s.NoWatch,
			Debounce: cfg.Watch.Debounce,
		})

		slog.Info("Serving reports", slog.String("addr", addr), slog.String("data_root", cfg.DataRoot))
		return d.Run(ctx)
	})
}
