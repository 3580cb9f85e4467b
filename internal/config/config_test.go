package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/repo-research/internal/db"
)

const sampleConfig = `
service:
  http_port: 9090
database:
  driver: sqlite3
  path: /tmp/research.db
engine:
  readiness_attempts: 5
  readiness_interval: 250ms
  max_concurrency: 3
tracker:
  provider: jira
providers:
  - id: github
    transport: http
    url: https://mcp.example.com/github
    bearer_token: ${TEST_GITHUB_TOKEN}
    rate_per_second: 2
    burst: 4
  - id: linear
    transport: stdio
    command: linear-mcp
    args: ["--readonly"]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "research.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	l, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), zaptest.NewLogger(t))
	require.NoError(t, err)

	cfg := l.Config()
	assert.Equal(t, 8080, cfg.Service.HTTPPort)
	assert.Equal(t, db.DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "research-tasks", cfg.Temporal.TaskQueue)
	assert.Equal(t, 30, cfg.Engine.ReadinessAttempts)
	assert.Equal(t, time.Second, cfg.Engine.ReadinessInterval)
	assert.Equal(t, 2*time.Minute, cfg.Engine.CompletionTimeout)
	assert.Equal(t, 50, cfg.Engine.MinResultLength)
	assert.Equal(t, 6, cfg.Engine.MaxConcurrency)
	assert.Equal(t, "linear", cfg.Tracker.Provider)
	assert.Equal(t, "issueId", cfg.Tracker.TaskArg)
	assert.Equal(t, time.Duration(0), cfg.Redis.TranscriptTTL)
	assert.Empty(t, cfg.Providers)
}

func TestLoadFile(t *testing.T) {
	t.Setenv("TEST_GITHUB_TOKEN", "ghp_secret")
	l, err := Load(writeConfig(t, sampleConfig), zaptest.NewLogger(t))
	require.NoError(t, err)

	cfg := l.Config()
	assert.Equal(t, 9090, cfg.Service.HTTPPort)
	assert.Equal(t, db.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "/tmp/research.db", cfg.Database.Path)
	assert.Equal(t, 5, l.Engine().ReadinessAttempts)
	assert.Equal(t, 250*time.Millisecond, l.Engine().ReadinessInterval)
	assert.Equal(t, 3, l.Engine().MaxConcurrency)
	assert.Equal(t, 50, l.Engine().MinResultLength)
	assert.Equal(t, "jira", l.Tracker().Provider)
	assert.Equal(t, 10, l.Tracker().MaxAttempts)

	require.Len(t, cfg.Providers, 2)
	assert.Equal(t, "ghp_secret", cfg.Providers[0].BearerToken)
	assert.Equal(t, 2.0, cfg.Providers[0].RatePerSecond)
	assert.Equal(t, 4, cfg.Providers[0].Burst)
	assert.Equal(t, []string{"--readonly"}, cfg.Providers[1].Args)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RESEARCH_DATABASE_HOST", "db.internal")
	t.Setenv("RESEARCH_ENGINE_READINESS_INTERVAL", "2s")
	t.Setenv("RESEARCH_TRACKER_MAX_ATTEMPTS", "3")

	l, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "db.internal", l.Config().Database.Host)
	assert.Equal(t, 2*time.Second, l.Engine().ReadinessInterval)
	assert.Equal(t, 3, l.Tracker().MaxAttempts)
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	assert.Equal(t, DefaultPath, Path())
	t.Setenv("CONFIG_PATH", "/etc/research.yaml")
	assert.Equal(t, "/etc/research.yaml", Path())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad driver", "database:\n  driver: mysql\n", "database.driver"},
		{"negative engine", "engine:\n  max_concurrency: -1\n", "engine counts"},
		{"missing provider id", "providers:\n  - transport: stdio\n    command: x\n", "id is required"},
		{"stdio without command", "providers:\n  - id: a\n    transport: stdio\n", "command is required"},
		{"http without url", "providers:\n  - id: a\n    transport: http\n", "url is required"},
		{"streamable_http without url", "providers:\n  - id: a\n    transport: streamable_http\n", "url is required"},
		{"unknown transport", "providers:\n  - id: a\n    transport: grpc\n", "unknown transport"},
		{"duplicate id", "providers:\n  - {id: a, transport: stdio, command: x}\n  - {id: a, transport: stdio, command: y}\n", "duplicate id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body), zaptest.NewLogger(t))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMalformedFile(t *testing.T) {
	_, err := Load(writeConfig(t, "engine: [unterminated"), zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "read config")
}

func TestApplyOnlySwapsTunables(t *testing.T) {
	l, err := Load(writeConfig(t, sampleConfig), zaptest.NewLogger(t))
	require.NoError(t, err)

	var notified *Config
	l.OnReload(func(c *Config) { notified = c })

	next := l.Config()
	next.Engine.MaxConcurrency = 1
	next.Tracker.Provider = "linear"
	next.Service.HTTPPort = 1
	l.apply(&next)

	assert.Equal(t, 1, l.Engine().MaxConcurrency)
	assert.Equal(t, "linear", l.Tracker().Provider)
	assert.Equal(t, 9090, l.Config().Service.HTTPPort)
	require.NotNil(t, notified)
	assert.Equal(t, 1, notified.Engine.MaxConcurrency)
}

func TestWatchReloadsEngine(t *testing.T) {
	path := writeConfig(t, "engine:\n  max_concurrency: 2\n")
	l, err := Load(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	l.Watch()

	require.NoError(t, os.WriteFile(path, []byte("engine:\n  max_concurrency: 4\n"), 0o644))
	assert.Eventually(t, func() bool { return l.Engine().MaxConcurrency == 4 }, 5*time.Second, 20*time.Millisecond)
}

func TestInvalidReloadKeepsPrevious(t *testing.T) {
	l, err := Load(writeConfig(t, "engine:\n  max_concurrency: 2\n"), zaptest.NewLogger(t))
	require.NoError(t, err)

	l.v.Set("engine.max_concurrency", -5)
	l.reload()
	assert.Equal(t, 2, l.Engine().MaxConcurrency)
}

func TestProviderEnvKeysUppercased(t *testing.T) {
	t.Setenv("TEST_LINEAR_KEY", "lin_123")
	l, err := Load(writeConfig(t, "providers:\n  - id: linear\n    transport: stdio\n    command: linear-mcp\n    env:\n      LINEAR_API_KEY: ${TEST_LINEAR_KEY}\n"), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"LINEAR_API_KEY": "lin_123"}, l.Config().Providers[0].Env)
}
