package admission

import (
	"context"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshchat/sshchatd/autobahn"
	"github.com/sshchat/sshchatd/ban"
)

func TestCheckRejectsBannedIP(t *testing.T) {
	store, err := ban.Open(filepath.Join(t.TempDir(), "bans.json"))
	require.NoError(t, err)

	ip := net.ParseIP("1.2.3.4")
	require.NoError(t, store.Ban(ip, "abuse"))

	p := &Pipeline{Bans: store}
	assert.Error(t, p.Check(context.Background(), ip))
}

func TestCheckPassesCleanIP(t *testing.T) {
	store, err := ban.Open(filepath.Join(t.TempDir(), "bans.json"))
	require.NoError(t, err)

	p := &Pipeline{Bans: store, AutoBahn: autobahn.New(autobahn.Config{Enabled: false})}
	assert.NoError(t, p.Check(context.Background(), net.ParseIP("8.8.8.8")))
}
