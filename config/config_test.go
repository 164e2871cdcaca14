package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSampleConfig(t *testing.T) {
	cfg, err := Load("../sshchatd.toml")
	require.NoError(t, err)

	assert.Equal(t, uint16(2222), cfg.Server.Port)
	assert.Equal(t, 200, cfg.Server.MaxClients)
	assert.Equal(t, 2.0, cfg.RateLimit.MessagesPerSecond)
	assert.Equal(t, GeoIPModeBlacklist, cfg.GeoIP.Mode)
	assert.False(t, cfg.ThreatLists.Enabled)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	// missing required [server] table and friends.
	require.NoError(t, os.WriteFile(path, []byte(`[limits]
message_truncate_length = 400
message_max_length = 1024
nickname_truncate_length = 24
nickname_max_length = 32
`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
