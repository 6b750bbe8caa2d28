// Package config loads the report builder configuration from YAML.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/reportbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/reportbuilder/internal/unit"
)

// EnvDataRoot overrides data_root when set.
const EnvDataRoot = "REPORTBUILDER_DATA_ROOT"

// Engine types.
const (
	EngineSphinx   = "sphinx"
	EngineMarkdown = "markdown"
)

// Config represents the application configuration.
type Config struct {
	// DataRoot holds one directory per unit.
	DataRoot string `yaml:"data_root"`
	// ConfigTemplate is copied into the config directory of new units.
	ConfigTemplate string `yaml:"config_template,omitempty"`
	// MasterDoc is the base name of the main source and output files.
	MasterDoc string `yaml:"master_doc"`
	// Versioning lists the output kinds whose builds are versioned.
	Versioning []string `yaml:"versioning"`

	Engine   EngineConfig   `yaml:"engine"`
	Server   ServerConfig   `yaml:"server"`
	Uploads  UploadsConfig  `yaml:"uploads"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Watch    WatchConfig    `yaml:"watch"`
	Events   EventsConfig   `yaml:"events"`
	History  HistoryConfig  `yaml:"history"`
	Git      GitConfig      `yaml:"git"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// EngineConfig selects and tunes the documentation engine.
type EngineConfig struct {
	Type    string        `yaml:"type"` // sphinx | markdown
	Binary  string        `yaml:"binary,omitempty"`
	Timeout time.Duration `yaml:"timeout"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// UploadsConfig restricts figure uploads.
type UploadsConfig struct {
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// ScheduleConfig configures periodic rebuilds of stale units. Either a
// fixed interval or a cron expression is used; neither disables the schedule.
type ScheduleConfig struct {
	Interval time.Duration `yaml:"interval"`
	Cron     string        `yaml:"cron,omitempty"`
	Kinds    []string      `yaml:"kinds"`
}

// WatchConfig configures source directory watching.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// EventsConfig configures build event publication. An empty URL disables it.
type EventsConfig struct {
	NATSURL string      `yaml:"nats_url,omitempty"`
	Subject string      `yaml:"subject,omitempty"`
	Retry   RetryConfig `yaml:"retry"`
}

// RetryConfig controls backoff for event publication.
type RetryConfig struct {
	Backoff    string        `yaml:"backoff,omitempty"`
	Initial    time.Duration `yaml:"initial,omitempty"`
	Max        time.Duration `yaml:"max,omitempty"`
	MaxRetries *int          `yaml:"max_retries,omitempty"` // nil selects the default, 0 disables retries
}

// HistoryConfig locates the build history database.
type HistoryConfig struct {
	DBPath string `yaml:"db_path,omitempty"`
}

// GitConfig is the identity used for commits made without a user.
type GitConfig struct {
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configPath, expands ${VAR} references and applies defaults and
// validation. An empty path yields the defaults. .env files in the working
// directory are loaded first without overriding the process environment.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	cfg := &Config{}
	if configPath != "" {
		// #nosec G304 -- the configuration path is chosen by the operator
		data, err := os.ReadFile(configPath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errors.ConfigError("configuration file not found").WithContext("path", configPath).Build()
			}
			return nil, errors.WrapError(err, errors.CategoryConfig, "failed to read config file").WithContext("path", configPath).Build()
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, errors.WrapError(err, errors.CategoryConfig, "failed to parse config file").WithContext("path", configPath).Build()
		}
	}
	if root := os.Getenv(EnvDataRoot); root != "" {
		cfg.DataRoot = root
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.DataRoot == "" {
		c.DataRoot = "./reports"
	}
	if c.MasterDoc == "" {
		c.MasterDoc = "report"
	}
	if c.Versioning == nil {
		c.Versioning = []string{string(unit.KindHTML), string(unit.KindPDF)}
	}
	if c.Engine.Type == "" {
		c.Engine.Type = EngineSphinx
	}
	if c.Engine.Timeout == 0 {
		c.Engine.Timeout = 10 * time.Minute
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if len(c.Uploads.AllowedExtensions) == 0 {
		c.Uploads.AllowedExtensions = []string{"txt", "pdf", "png", "jpg", "jpeg", "gif"}
	}
	if len(c.Schedule.Kinds) == 0 {
		c.Schedule.Kinds = []string{string(unit.KindHTML)}
	}
	if c.Watch.Debounce == 0 {
		c.Watch.Debounce = 2 * time.Second
	}
	if c.Events.Subject == "" {
		c.Events.Subject = "reportbuilder.builds"
	}
	if c.Events.Retry.Backoff == "" {
		c.Events.Retry.Backoff = "linear"
	}
	if c.Events.Retry.MaxRetries == nil {
		n := 2
		c.Events.Retry.MaxRetries = &n
	}
	if c.History.DBPath == "" {
		c.History.DBPath = filepath.Join(c.DataRoot, "_history.db")
	}
	if c.Git.AuthorName == "" {
		c.Git.AuthorName = "reportbuilder"
	}
	if c.Git.AuthorEmail == "" {
		c.Git.AuthorEmail = "reportbuilder@localhost"
	}
	c.Logging.Level = string(NormalizeLogLevel(c.Logging.Level))
	c.Logging.Format = string(NormalizeLogFormat(c.Logging.Format))
}

// Validate checks field values after defaults are applied.
func (c *Config) Validate() error {
	if strings.ContainsAny(c.MasterDoc, `/\`) {
		return errors.ConfigError("master_doc must be a file base name").WithContext("master_doc", c.MasterDoc).Build()
	}
	switch c.Engine.Type {
	case EngineSphinx, EngineMarkdown:
	default:
		return errors.ConfigError("unknown engine type").WithContext("type", c.Engine.Type).Build()
	}
	if c.Engine.Timeout < 0 || c.Schedule.Interval < 0 || c.Watch.Debounce < 0 ||
		c.Events.Retry.Initial < 0 || c.Events.Retry.Max < 0 {
		return errors.ConfigError("durations must not be negative").Build()
	}
	switch c.Events.Retry.Backoff {
	case "fixed", "linear", "exponential":
	default:
		return errors.ConfigError("unknown retry backoff").WithContext("backoff", c.Events.Retry.Backoff).Build()
	}
	if c.Events.Retry.MaxRetries != nil && *c.Events.Retry.MaxRetries < 0 {
		return errors.ConfigError("max_retries must not be negative").Build()
	}
	if _, err := c.VersioningKinds(); err != nil {
		return err
	}
	if _, err := c.ScheduleKinds(); err != nil {
		return err
	}
	if c.Schedule.Cron != "" {
		if c.Schedule.Interval > 0 {
			return errors.ConfigError("schedule.interval and schedule.cron are mutually exclusive").Build()
		}
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			return errors.WrapError(err, errors.CategoryConfig, "invalid schedule.cron expression").
				WithContext("cron", c.Schedule.Cron).
				Build()
		}
	}
	return nil
}

// VersioningKinds returns Versioning as kinds.
func (c *Config) VersioningKinds() ([]unit.Kind, error) { return unit.ParseKinds(c.Versioning) }

// ScheduleKinds returns Schedule.Kinds as kinds.
func (c *Config) ScheduleKinds() ([]unit.Kind, error) { return unit.ParseKinds(c.Schedule.Kinds) }

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.AlreadyExistsError("configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).
			Build()
	}

	example := &Config{
		DataRoot:   "./reports",
		MasterDoc:  "report",
		Versioning: []string{"html", "pdf"},
		Engine:     EngineConfig{Type: EngineSphinx, Binary: "sphinx-build", Timeout: 10 * time.Minute},
		Server:     ServerConfig{Addr: ":8080"},
		Schedule:   ScheduleConfig{Interval: time.Hour, Kinds: []string{"html"}},
		Watch:      WatchConfig{Enabled: true, Debounce: 2 * time.Second},
		Git:        GitConfig{AuthorName: "reportbuilder", AuthorEmail: "reportbuilder@localhost"},
		Logging:    LoggingConfig{Level: "info", Format: "text"},
	}
	example.ApplyDefaults()
	example.History.DBPath = ""

	data, err := yaml.Marshal(example)
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to marshal config").Build()
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to write config file").WithContext("path", configPath).Build()
	}
	return nil
}
