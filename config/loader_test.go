package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 2000, cfg.Router.BufferSize)
	assert.Equal(t, 1000, cfg.Replay.MaxSize)
	assert.Equal(t, 30*time.Second, cfg.Collab.DelegationTimeout)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  format: console
router:
  buffer_size: 64
replay:
  max_size: 10
  ttl: 5m
workflow:
  history_size: 7
  access_level: elevated
collab:
  delegation_timeout: 2s
  max_help_solutions: 5
`)

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 64, cfg.Router.BufferSize)
	assert.Equal(t, 10, cfg.Replay.MaxSize)
	assert.Equal(t, 5*time.Minute, cfg.Replay.TTL)
	assert.Equal(t, 7, cfg.Workflow.HistorySize)
	assert.Equal(t, "elevated", cfg.Workflow.AccessLevel)
	assert.Equal(t, 2*time.Second, cfg.Collab.DelegationTimeout)
	assert.Equal(t, 5, cfg.Collab.MaxHelpSolutions)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
router:
  buffer_size: 64
`)

	t.Setenv("AGENTCORE_LOG_LEVEL", "warn")
	t.Setenv("AGENTCORE_ROUTER_BUFFER_SIZE", "128")
	t.Setenv("AGENTCORE_COLLAB_DELEGATION_TIMEOUT", "90s")
	t.Setenv("AGENTCORE_METRICS_ENABLED", "false")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 128, cfg.Router.BufferSize)
	assert.Equal(t, 90*time.Second, cfg.Collab.DelegationTimeout)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestEnvPrefixOverride(t *testing.T) {
	t.Setenv("MYAPP_LOG_LEVEL", "error")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestEnvSliceValue(t *testing.T) {
	t.Setenv("AGENTCORE_LOG_OUTPUT_PATHS", "stdout, /tmp/agentcore.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"stdout", "/tmp/agentcore.log"}, cfg.Log.OutputPaths)
}

func TestEnvInvalidValue(t *testing.T) {
	t.Setenv("AGENTCORE_ROUTER_BUFFER_SIZE", "not-a-number")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AGENTCORE_ROUTER_BUFFER_SIZE")
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "log: [unclosed")

	_, err := NewLoader().WithConfigPath(path).Load()
	require.Error(t, err)
}

func TestValidatorRejects(t *testing.T) {
	sentinel := errors.New("nope")
	_, err := NewLoader().
		WithValidator(func(*Config) error { return sentinel }).
		Load()
	require.ErrorIs(t, err, sentinel)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Log.Level = "loud"
	cfg.Collab.ConfidenceThreshold = 1.5
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log level")
	assert.Contains(t, err.Error(), "confidence_threshold")
}

func TestBuildLogger(t *testing.T) {
	logger, err := DefaultLogConfig().BuildLogger()
	require.NoError(t, err)
	logger.Sync() //nolint:errcheck

	_, err = LogConfig{Level: "loud"}.BuildLogger()
	require.Error(t, err)
}
