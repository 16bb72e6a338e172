package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesDefaultsForOmittedKeys(t *testing.T) {
	path := writeConfigFile(t, "node: node-a\n")

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 7700, cfg.Port)
	assert.Equal(t, []string{"nats://127.0.0.1:4222"}, cfg.NATS.Servers)
	assert.True(t, cfg.NATS.AllowReconnect)
	assert.Equal(t, 5*time.Second, cfg.NATS.ConnectTimeout)
	assert.Equal(t, "node-a", cfg.Node)
}

func TestLoadReadsExplicitKeys(t *testing.T) {
	path := writeConfigFile(t, `
port: 8800
node: node-b
account_service_url: http://accounts.internal
database:
  uri: postgres://localhost/chat
nats:
  servers:
    - nats://nats-1:4222
    - nats://nats-2:4222
  verbose: true
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 8800, cfg.Port)
	assert.Equal(t, "node-b", cfg.Node)
	assert.Equal(t, "http://accounts.internal", cfg.AccountServiceURL)
	assert.Equal(t, "postgres://localhost/chat", cfg.Database.URI)
	assert.Equal(t, []string{"nats://nats-1:4222", "nats://nats-2:4222"}, cfg.NATS.Servers)
	assert.True(t, cfg.NATS.Verbose)
}

func TestLoadErrorsOnMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
}

func TestLoadBuildInfoMergesLinkerVarsWithMissingFile(t *testing.T) {
	info, err := LoadBuildInfo(filepath.Join(t.TempDir(), "application.yml"), "1.2.3", "abc123", "2026-07-31", "main")
	require.NoError(t, err)

	assert.Equal(t, "1.2.3", info.Version)
	assert.Equal(t, "abc123", info.Commit)
	assert.Empty(t, info.Name)
}

func TestLoadBuildInfoOverlaysApplicationYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "application.yml")
	require.NoError(t, os.WriteFile(path, []byte("name: chatfabric-relay-node\nrepository: github.com/chatfabric/relay-node\nenvironment: production\n"), 0o600))

	info, err := LoadBuildInfo(path, "1.2.3", "abc123", "2026-07-31", "main")
	require.NoError(t, err)

	assert.Equal(t, "chatfabric-relay-node", info.Name)
	assert.Equal(t, "production", info.Environment)
	assert.Equal(t, "1.2.3", info.Version)
}

func TestProvideLoggerReturnsNonNilLogger(t *testing.T) {
	logger := ProvideLogger()
	require.NotNil(t, logger)
	logger.Info("smoke test")
}
