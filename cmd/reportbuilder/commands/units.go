package commands

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	derrors "git.home.luguber.info/inful/reportbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/reportbuilder/internal/unit"
)

// withApp loads the configuration, wires the application and runs fn.
func withApp(root *CLI, fn func(ctx context.Context, app *App) error) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	app, err := NewApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return fn(ctx, app)
}

// ProvisionCmd implements the 'provision' command.
type ProvisionCmd struct {
	Name   string `arg:"" help:"Unit name"`
	Append bool   `help:"Append a numeric suffix instead of failing when the name is taken"`
}

func (p *ProvisionCmd) Run(g *Global, root *CLI) error {
	policy := unit.CollisionFail
	if p.Append {
		policy = unit.CollisionAppend
	}
	return withApp(root, func(_ context.Context, app *App) error {
		l, err := app.Service.Provision(p.Name, policy)
		if err != nil {
			return err
		}
		fmt.Fprintf(g.out(), "Provisioned %s at %s\n", l.Name, l.Root)
		return nil
	})
}

// ListCmd implements the 'list' command.
type ListCmd struct{}

func (ListCmd) Run(g *Global, root *CLI) error {
	return withApp(root, func(_ context.Context, app *App) error {
		list, err := app.Service.List()
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(g.out(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tBUILT\tTITLE")
		for _, s := range list {
			fmt.Fprintf(tw, "%s\t%t\t%s\n", s.Name, s.Built, s.Title)
		}
		return tw.Flush()
	})
}

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Name  string `arg:"" help:"Unit name"`
	Kind  string `arg:"" help:"Output kind" enum:"html,latex,pdf"`
	Force bool   `short:"f" help:"Rebuild all html pages, not only changed ones"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	kind, err := unit.ParseKind(b.Kind)
	if err != nil {
		return err
	}
	return withApp(root, func(ctx context.Context, app *App) error {
		res, err := app.Service.Build(ctx, b.Name, kind, b.Force)
		if err != nil {
			return err
		}
		out := g.out()
		fmt.Fprintf(out, "Build %s: %s (exit code %d, %s)\n", res.BuildID, res.Status, res.ExitCode, res.Duration.Round(time.Millisecond))
		switch {
		case res.Versioned:
			fmt.Fprintf(out, "Stored version %s with %d changed file(s)\n", res.Version, len(res.Changed))
		case res.Succeeded() && len(res.Changed) == 0:
			fmt.Fprintln(out, "No output changes")
		}
		if !res.Succeeded() {
			return derrors.BuildFailure("build failed", res.ExitCode).
				WithContext("unit", b.Name).
				WithContext("kind", string(kind)).
				WithContext("log", "build/"+string(kind)+".log").
				Build()
		}
		return nil
	})
}

// VersionsCmd implements the 'versions' command.
type VersionsCmd struct {
	Name string `arg:"" help:"Unit name"`
	Kind string `arg:"" help:"Output kind" enum:"html,latex,pdf"`
}

func (v *VersionsCmd) Run(g *Global, root *CLI) error {
	kind, err := unit.ParseKind(v.Kind)
	if err != nil {
		return err
	}
	return withApp(root, func(_ context.Context, app *App) error {
		versions, err := app.Service.Versions(v.Name, kind)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(g.out(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "VERSION\tCREATED\tFILES")
		for _, ver := range versions {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", ver.Name, ver.CreatedAt.Format(time.RFC3339), len(ver.Files))
		}
		return tw.Flush()
	})
}

// LogsCmd implements the 'logs' command.
type LogsCmd struct {
	Name       string `arg:"" help:"Unit name"`
	Kind       string `arg:"" help:"Output kind" enum:"html,latex,pdf"`
	ErrorsOnly bool   `short:"e" help:"Only print lines reporting errors"`
}

func (l *LogsCmd) Run(g *Global, root *CLI) error {
	kind, err := unit.ParseKind(l.Kind)
	if err != nil {
		return err
	}
	return withApp(root, func(_ context.Context, app *App) error {
		report, err := app.Service.Logs(l.Name, kind)
		if err != nil {
			return err
		}
		if l.ErrorsOnly {
			if len(report.Errors) > 0 {
				fmt.Fprintln(g.out(), strings.Join(report.Errors, "\n"))
			}
			return nil
		}
		fmt.Fprint(g.out(), report.Log)
		return nil
	})
}

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Name  string `arg:"" help:"Unit name"`
	Limit int    `short:"n" help:"Number of builds to show" default:"20"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	return withApp(root, func(ctx context.Context, app *App) error {
		builds, err := app.Service.History(ctx, h.Name, h.Limit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(g.out(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "BUILD\tKIND\tSTATUS\tSTARTED\tVERSION\tCHANGED")
		for _, b := range builds {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
				b.BuildID, b.Kind, b.Status, b.StartedAt.Format(time.RFC3339), b.Version, b.ChangedFiles)
		}
		return tw.Flush()
	})
}
