package ban

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermanentBan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bans.json")
	s, err := Open(path)
	require.NoError(t, err)

	ip := net.ParseIP("1.2.3.4")
	require.NoError(t, s.Ban(ip, "spam"))

	assert.True(t, s.IsBanned(ip))
	entry := s.Check(ip)
	require.NotNil(t, entry)
	assert.Equal(t, "spam", entry.Reason)
	assert.Nil(t, entry.ExpiresAt)
}

func TestTemporaryBan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bans.json")
	s, err := Open(path)
	require.NoError(t, err)

	ip := net.ParseIP("1.2.3.4")
	require.NoError(t, s.TempBan(ip, time.Hour, "flood"))

	assert.True(t, s.IsBanned(ip))
	entry := s.Check(ip)
	require.NotNil(t, entry)
	assert.NotNil(t, entry.ExpiresAt)
}

func TestUnban(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bans.json")
	s, err := Open(path)
	require.NoError(t, err)

	ip := net.ParseIP("1.2.3.4")
	require.NoError(t, s.Ban(ip, "spam"))
	assert.True(t, s.IsBanned(ip))

	require.NoError(t, s.Unban(ip))
	assert.False(t, s.IsBanned(ip))
}

func TestPersistenceAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bans.json")

	s1, err := Open(path)
	require.NoError(t, err)
	ip := net.ParseIP("5.6.7.8")
	require.NoError(t, s1.Ban(ip, "abuse"))

	s2, err := Open(path)
	require.NoError(t, err)
	assert.True(t, s2.IsBanned(ip))
}

func TestExpiredBanCleanup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bans.json")
	s, err := Open(path)
	require.NoError(t, err)

	ip := net.ParseIP("9.9.9.9")
	require.NoError(t, s.TempBan(ip, -time.Minute, "already expired"))

	assert.False(t, s.IsBanned(ip))
	require.NoError(t, s.CleanupExpired())
	assert.Equal(t, 0, s.CountActive())
}
