package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/reportbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/reportbuilder/internal/unit"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reportbuilder.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvDataRoot, "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "./reports", cfg.DataRoot)
	assert.Equal(t, "report", cfg.MasterDoc)
	assert.Equal(t, []string{"html", "pdf"}, cfg.Versioning)
	assert.Equal(t, EngineSphinx, cfg.Engine.Type)
	assert.Equal(t, 10*time.Minute, cfg.Engine.Timeout)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, filepath.Join("./reports", "_history.db"), cfg.History.DBPath)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "linear", cfg.Events.Retry.Backoff)
	require.NotNil(t, cfg.Events.Retry.MaxRetries)
	assert.Equal(t, 2, *cfg.Events.Retry.MaxRetries)
}

func TestLoadFileWithEnvExpansion(t *testing.T) {
	t.Setenv(EnvDataRoot, "")
	t.Setenv("RB_TEST_ROOT", "/srv/reports")
	path := writeConfig(t, `
data_root: ${RB_TEST_ROOT}
master_doc: index
versioning: [latex]
engine:
  type: markdown
  timeout: 30s
schedule:
  interval: 15m
  kinds: [html, pdf]
watch:
  enabled: true
logging:
  level: DEBUG
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/reports", cfg.DataRoot)
	assert.Equal(t, "index", cfg.MasterDoc)
	assert.Equal(t, EngineMarkdown, cfg.Engine.Type)
	assert.Equal(t, 30*time.Second, cfg.Engine.Timeout)
	assert.Equal(t, 15*time.Minute, cfg.Schedule.Interval)
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	kinds, err := cfg.VersioningKinds()
	require.NoError(t, err)
	assert.Equal(t, []unit.Kind{unit.KindLaTeX}, kinds)
}

func TestDataRootEnvOverride(t *testing.T) {
	t.Setenv(EnvDataRoot, "/override")
	cfg, err := Load(writeConfig(t, "data_root: /from-file\n"))
	require.NoError(t, err)
	assert.Equal(t, "/override", cfg.DataRoot)
}

func TestExplicitEmptyVersioning(t *testing.T) {
	t.Setenv(EnvDataRoot, "")
	cfg, err := Load(writeConfig(t, "versioning: []\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Versioning)
}

func TestLoadErrors(t *testing.T) {
	t.Setenv(EnvDataRoot, "")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))

	for _, body := range []string{
		"engine: {type: latexmk}\n",
		"versioning: [docx]\n",
		"schedule: {kinds: [epub]}\n",
		"master_doc: a/b\n",
		"events: {retry: {backoff: random}}\n",
		"events: {retry: {max_retries: -3}}\n",
		"schedule: {cron: \"not a cron\"}\n",
		"schedule: {interval: 1h, cron: \"0 3 * * *\"}\n",
		"data_root: [not, a, string]\n",
	} {
		_, err := Load(writeConfig(t, body))
		assert.True(t, errors.HasCategory(err, errors.CategoryConfig), body)
	}
}

func TestInit(t *testing.T) {
	t.Setenv(EnvDataRoot, "")
	path := filepath.Join(t.TempDir(), "reportbuilder.yaml")
	require.NoError(t, Init(path, false))

	err := Init(path, false)
	assert.True(t, errors.HasCategory(err, errors.CategoryAlreadyExists))
	require.NoError(t, Init(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.Schedule.Interval)
	assert.True(t, cfg.Watch.Enabled)
}

func TestRetriesCanBeDisabled(t *testing.T) {
	t.Setenv(EnvDataRoot, "")
	cfg, err := Load(writeConfig(t, "events:\n  retry:\n    max_retries: 0\n"))
	require.NoError(t, err)
	require.NotNil(t, cfg.Events.Retry.MaxRetries)
	assert.Equal(t, 0, *cfg.Events.Retry.MaxRetries)
}

func TestCronSchedule(t *testing.T) {
	t.Setenv(EnvDataRoot, "")
	cfg, err := Load(writeConfig(t, "schedule:\n  cron: \"30 2 * * 1-5\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "30 2 * * 1-5", cfg.Schedule.Cron)
	assert.Zero(t, cfg.Schedule.Interval)
}

func TestLogLevels(t *testing.T) {
	assert.Equal(t, LogLevelWarn, NormalizeLogLevel("warning"))
	assert.Equal(t, LogLevelInfo, NormalizeLogLevel("loud"))
	assert.Equal(t, slog.LevelDebug, LogLevelDebug.Slog())
	assert.Equal(t, slog.LevelError, LogLevelError.Slog())
	assert.Equal(t, LogFormatJSON, NormalizeLogFormat("JSON"))
	assert.Equal(t, LogFormatText, NormalizeLogFormat(""))
}
