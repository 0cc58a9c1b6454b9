package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pakctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultSocket, cfg.Daemon.Socket)
	assert.Equal(t, TransportSSE, cfg.Daemon.Transport)
	assert.Equal(t, DefaultJournalPath, cfg.Journal.Path)
	assert.Equal(t, DefaultMonitorAddr, cfg.Monitor.Addr)
	assert.Equal(t, DefaultUpdateCheckInterval, cfg.UpdateCheckInterval())
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
daemon:
  socket: /tmp/pakd-test.socket
  transport: nats
  nats:
    url: nats://localhost:4222
    subject_prefix: pakd-test
journal:
  path: /tmp/journal.db
monitor:
  enabled: true
  addr: 127.0.0.1:9999
  update_check_interval: 5m
logging:
  level: debug
  format: json
packages:
  tracked: [vim, htop]
  default_channel: candidate
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/pakd-test.socket", cfg.Daemon.Socket)
	assert.Equal(t, TransportNATS, cfg.Daemon.Transport)
	assert.Equal(t, "nats://localhost:4222", cfg.Daemon.NATS.URL)
	assert.Equal(t, "pakd-test", cfg.Daemon.NATS.SubjectPrefix)
	assert.Equal(t, "/tmp/journal.db", cfg.Journal.Path)
	assert.True(t, cfg.Monitor.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.UpdateCheckInterval())
	assert.Equal(t, []string{"vim", "htop"}, cfg.Packages.Tracked)
	assert.Equal(t, "candidate", cfg.Packages.DefaultChannel)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("PAKD_TEST_SOCKET", "/custom/pakd.socket")
	path := writeConfig(t, "daemon:\n  socket: ${PAKD_TEST_SOCKET}\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/custom/pakd.socket", cfg.Daemon.Socket)
}

func TestLoadRejectsBadInterval(t *testing.T) {
	path := writeConfig(t, "monitor:\n  update_check_interval: soon\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRequiresNATSURLForNATSTransport(t *testing.T) {
	path := writeConfig(t, "daemon:\n  transport: nats\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalizers(t *testing.T) {
	assert.Equal(t, LogLevelDebug, NormalizeLogLevel("DEBUG"))
	assert.Equal(t, LogLevelInfo, NormalizeLogLevel("bogus"))
	assert.Equal(t, LogFormatJSON, NormalizeLogFormat("json"))
	assert.Equal(t, LogFormatText, NormalizeLogFormat(""))
	assert.Equal(t, TransportNATS, NormalizeTransport("NATS"))
	assert.Equal(t, TransportSSE, NormalizeTransport("carrier-pigeon"))
}
