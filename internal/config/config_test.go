package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vendorchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, Defaults(), cfg)
	assert.Equal(t, 10*time.Second, cfg.PollInterval.Duration())
	assert.Equal(t, 3*time.Second, cfg.TypingIdle.Duration())
	assert.Equal(t, 5*time.Second, cfg.ReconnectDelay.Duration())
	assert.Equal(t, 4*time.Second, cfg.Heartbeat.Duration())
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
user_id: " vendor-001 "
broker_url: tcp://broker:61613
poll_interval: 30s
typing_idle: 1.5
refresh_burst: 5
status_token: secret
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "vendor-001", cfg.UserID)
	assert.Equal(t, "tcp://broker:61613", cfg.BrokerURL)
	assert.Equal(t, 30*time.Second, cfg.PollInterval.Duration())
	assert.Equal(t, 1500*time.Millisecond, cfg.TypingIdle.Duration())
	assert.Equal(t, 5, cfg.RefreshBurst)
	assert.Equal(t, "http://localhost:8080/api", cfg.APIBaseURL)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "user_id: from-file\npoll_interval: 30s\n")
	t.Setenv("VENDORCHAT_USER_ID", "from-env")
	t.Setenv("VENDORCHAT_POLL_INTERVAL", "2s")
	t.Setenv("VENDORCHAT_REFRESH_BURST", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.UserID)
	assert.Equal(t, 2*time.Second, cfg.PollInterval.Duration())
	assert.Equal(t, 7, cfg.RefreshBurst)
}

func TestLoadRejectsBadValues(t *testing.T) {
	_, err := Load(writeConfig(t, "poll_interval: soon\n"))
	require.Error(t, err)

	t.Setenv("VENDORCHAT_HEARTBEAT", "often")
	_, err = Load("")
	require.Error(t, err)
}
