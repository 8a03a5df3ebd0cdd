package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crisismesh/meshchat/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meshchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
relay:
  address: "10.0.0.1:9000"
  transport: ws
  dial_timeout: 3s
reconnect:
  enabled: false
history:
  capacity: 500
logging:
  level: debug
  file: /tmp/meshchat.log
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1:9000", cfg.Relay.Address)
	assert.Equal(t, config.TransportWS, cfg.Relay.Transport)
	assert.Equal(t, 3*time.Second, cfg.Relay.DialTimeout)
	assert.False(t, cfg.Reconnect.Enabled)
	assert.Equal(t, 500, cfg.History.Capacity)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_PartialFileKeepsRemainingDefaults(t *testing.T) {
	path := writeConfig(t, `
relay:
  address: "192.168.1.50:9000"
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.50:9000", cfg.Relay.Address)
	assert.Equal(t, config.TransportTCP, cfg.Relay.Transport)
	assert.True(t, cfg.Reconnect.Enabled)
}

func TestLoad_RejectsUnknownTransport(t *testing.T) {
	path := writeConfig(t, `
relay:
  transport: carrier-pigeon
`)

	_, err := config.Load(path)
	assert.ErrorContains(t, err, "unknown transport")
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "relay: [not a mapping")

	_, err := config.Load(path)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestValidate_NegativeHistoryCapacity(t *testing.T) {
	cfg := config.Default()
	cfg.History.Capacity = -1
	assert.Error(t, cfg.Validate())
}
