package dashboard

import (
	"net"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"

	"github.com/sshchat/sshchatd/chat"
)

func testDashboard() *Dashboard {
	hub := chat.NewHub(chat.Config{MaxClients: 10, TruncateLength: 400, MaxLength: 1024}, nil)
	return New(Config{RefreshRateFPS: 10, MaxLogLines: 100}, hub)
}

func TestRunCommandBanRequiresDuration(t *testing.T) {
	d := testDashboard()
	_, err := d.hub.AddClient(chat.Client{Nickname: "alice", ConnectedAt: time.Now()})
	assert.NoError(t, err)

	msg, ok := d.runCommand("ban alice")
	assert.False(t, ok)
	assert.Contains(t, msg, "usage:")
}

func TestRunCommandBanMalformedDuration(t *testing.T) {
	d := testDashboard()
	_, err := d.hub.AddClient(chat.Client{Nickname: "alice", ConnectedAt: time.Now()})
	assert.NoError(t, err)

	msg, ok := d.runCommand("ban alice 5x spamming")
	assert.False(t, ok)
	assert.Contains(t, msg, "usage:")
}

func TestRunCommandBanWithDuration(t *testing.T) {
	d := testDashboard()
	_, err := d.hub.AddClient(chat.Client{Nickname: "alice", IP: net.ParseIP("127.0.0.1"), ConnectedAt: time.Now()})
	assert.NoError(t, err)

	msg, ok := d.runCommand("ban alice 10m spamming")
	assert.True(t, ok)
	assert.Contains(t, msg, "banned")
}

func TestRunCommandBanPermanent(t *testing.T) {
	d := testDashboard()
	_, err := d.hub.AddClient(chat.Client{Nickname: "alice", IP: net.ParseIP("127.0.0.1"), ConnectedAt: time.Now()})
	assert.NoError(t, err)

	msg, ok := d.runCommand("ban alice permanent spamming")
	assert.True(t, ok)
	assert.Contains(t, msg, "banned")
}

func TestRunCommandUnknown(t *testing.T) {
	d := testDashboard()
	msg, ok := d.runCommand("frobnicate alice")
	assert.False(t, ok)
	assert.Contains(t, msg, "unknown command")
}

func TestHandleKeyCommandHistory(t *testing.T) {
	d := testDashboard()
	d.mode = modeCommand
	d.cmdHistory = []string{"kick alice spam", "unban 1.2.3.4"}
	d.historyPos = len(d.cmdHistory)

	d.handleKey(tcell.NewEventKey(tcell.KeyUp, 0, tcell.ModNone))
	assert.Equal(t, "unban 1.2.3.4", string(d.cmdLine))

	d.handleKey(tcell.NewEventKey(tcell.KeyUp, 0, tcell.ModNone))
	assert.Equal(t, "kick alice spam", string(d.cmdLine))

	d.handleKey(tcell.NewEventKey(tcell.KeyDown, 0, tcell.ModNone))
	assert.Equal(t, "unban 1.2.3.4", string(d.cmdLine))

	d.handleKey(tcell.NewEventKey(tcell.KeyDown, 0, tcell.ModNone))
	assert.Equal(t, "", string(d.cmdLine))
}
