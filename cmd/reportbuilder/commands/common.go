package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/reportbuilder/internal/config"
)

// Global context passed to subcommands.
type Global struct {
	Logger *slog.Logger
	// Out receives command output. Defaults to stdout.
	Out io.Writer
}

func (g *Global) out() io.Writer {
	if g == nil || g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"reportbuilder.yaml" env:"REPORTBUILDER_CONFIG"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Init      InitCmd      `cmd:"" help:"Initialize a new configuration file"`
	Provision ProvisionCmd `cmd:"" help:"Create a new report unit"`
	List      ListCmd      `cmd:"" help:"List report units"`
	Build     BuildCmd     `cmd:"" help:"Build one output kind of a report"`
	Versions  VersionsCmd  `cmd:"" help:"List the stored versions of an output kind"`
	Logs      LogsCmd      `cmd:"" help:"Show the last build log of an output kind"`
	History   HistoryCmd   `cmd:"" help:"Show recent builds of a report"`
	Serve     ServeCmd     `cmd:"" help:"Run the HTTP API with background rebuilds"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	setupLogging(level, config.LogFormatText)
	return nil
}

// applyLogging reconfigures logging from cfg unless --verbose already
// forced debug output.
func (c *CLI) applyLogging(cfg *config.Config) {
	level := config.NormalizeLogLevel(cfg.Logging.Level).Slog()
	if c.Verbose {
		level = slog.LevelDebug
	}
	setupLogging(level, config.NormalizeLogFormat(cfg.Logging.Format))
}

func setupLogging(level slog.Level, format config.LogFormat) {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if format == config.LogFormatJSON {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// loadConfig loads the configuration named by --config. A missing default
// file is not an error; built-in defaults apply.
func (c *CLI) loadConfig() (*config.Config, error) {
	path := c.Config
	if path == "reportbuilder.yaml" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	c.applyLogging(cfg)
	return cfg, nil
}
