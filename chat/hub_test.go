package chat

import (
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHub() *Hub {
	return NewHub(Config{MaxClients: 10, TruncateLength: 400, MaxLength: 1024}, nil)
}

func newTestClient(nickname string) Client {
	return Client{ID: uuid.New(), Nickname: nickname, IP: net.ParseIP("127.0.0.1"), Color: ColorRed, ConnectedAt: time.Now()}
}

func TestAddClient(t *testing.T) {
	h := testHub()
	c := newTestClient("alice")

	ch, err := h.AddClient(c)
	require.NoError(t, err)
	require.NotNil(t, ch)
	assert.Equal(t, 1, h.ClientCount())

	select {
	case ev := <-ch:
		require.NotNil(t, ev.Notice)
		assert.Equal(t, NoticeJoined, ev.Notice.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected a join notice")
	}
}

func TestAddClientDuplicateNickname(t *testing.T) {
	h := testHub()
	_, err := h.AddClient(newTestClient("alice"))
	require.NoError(t, err)

	_, err = h.AddClient(newTestClient("alice"))
	assert.Error(t, err)
}

func TestAddClientServerFull(t *testing.T) {
	h := NewHub(Config{MaxClients: 1, TruncateLength: 400, MaxLength: 1024}, nil)
	_, err := h.AddClient(newTestClient("alice"))
	require.NoError(t, err)

	_, err = h.AddClient(newTestClient("bob"))
	assert.Error(t, err)
}

func TestRemoveClient(t *testing.T) {
	h := testHub()
	c := newTestClient("alice")
	_, err := h.AddClient(c)
	require.NoError(t, err)

	h.RemoveClient(c.ID)
	assert.Equal(t, 0, h.ClientCount())
}

func TestBroadcastChatRouting(t *testing.T) {
	h := testHub()
	alice := newTestClient("alice")
	bob := newTestClient("bob")

	aliceCh, err := h.AddClient(alice)
	require.NoError(t, err)
	drainNotice(t, aliceCh)

	bobCh, err := h.AddClient(bob)
	require.NoError(t, err)
	drainNotice(t, aliceCh) // bob's join notice
	drainNotice(t, bobCh)   // bob's own join notice

	require.NoError(t, h.BroadcastChat(alice.ID, "hello bob"))

	select {
	case ev := <-bobCh:
		require.NotNil(t, ev.Chat)
		assert.Equal(t, "alice", ev.Chat.Nickname)
		assert.Equal(t, "hello bob", ev.Chat.Text)
	case <-time.After(time.Second):
		t.Fatal("expected bob to receive alice's chat message")
	}

	stats := h.GetStats()
	assert.EqualValues(t, 1, stats.Messages)
}

func TestKickByNickname(t *testing.T) {
	h := testHub()
	c := newTestClient("alice")
	_, err := h.AddClient(c)
	require.NoError(t, err)

	id, err := h.Kick("alice", "spamming")
	require.NoError(t, err)
	assert.Equal(t, c.ID, id)

	h.RemoveClient(id)
	assert.Equal(t, 0, h.ClientCount())
}

func TestBanCascadesToLiveClients(t *testing.T) {
	h := testHub()
	c := newTestClient("alice")
	_, err := h.AddClient(c)
	require.NoError(t, err)

	removed, err := h.Ban("alice", "abuse")
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{c.ID}, removed)
	assert.Equal(t, 0, h.ClientCount())
}

func TestIsNicknameAvailable(t *testing.T) {
	h := testHub()
	assert.True(t, h.IsNicknameAvailable("alice"))

	_, err := h.AddClient(newTestClient("alice"))
	require.NoError(t, err)
	assert.False(t, h.IsNicknameAvailable("alice"))
}

func drainNotice(t *testing.T, ch <-chan MessageEvent) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a queued event")
	}
}
