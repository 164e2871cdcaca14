// Package chat implements the in-memory chat room: the client registry,
// message fanout, and the admin surface (kick/ban/unban) that the operator
// dashboard drives.
package chat

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sshchat/sshchatd/chaterr"
)

// chatFanoutCapacity is the buffered size of each subscriber's chat/notice
// channel. A subscriber that falls this far behind has its oldest queued
// event dropped to make room for the newest, rather than blocking the
// broadcaster — one slow SSH client must never stall the whole room.
const chatFanoutCapacity = 1000

// BanStore is the subset of ban.Store the Hub needs to cascade an operator
// ban into persistent storage. Accepting the interface here (rather than
// importing package ban) keeps chat free of a dependency on how bans are
// persisted.
type BanStore interface {
	Ban(ip net.IP, reason string) error
	TempBan(ip net.IP, duration time.Duration, reason string) error
	Unban(ip net.IP) error
}

// subscriber is one live client's view onto the fanout: a bounded channel
// of Chat/Notice events, guarded by its own mutex so BroadcastChat can drop
// the oldest queued event without racing the subscriber's own receive.
type subscriber struct {
	mu sync.Mutex
	ch chan MessageEvent
}

func newSubscriber() *subscriber {
	return &subscriber{ch: make(chan MessageEvent, chatFanoutCapacity)}
}

// send delivers ev, dropping the oldest queued event if the subscriber's
// channel is full rather than blocking the caller.
func (s *subscriber) send(ev MessageEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		select {
		case s.ch <- ev:
			return
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}

// Hub is the chat room: the live client registry, server-wide stats, and
// the fanout that delivers chat lines and join/leave notices to every
// connected SSH session. One Hub serves the whole server.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
	subs    map[uuid.UUID]*subscriber

	statsMu sync.Mutex
	stats   Stats

	systemLog chan MessageEvent

	maxClients int
	limits     ValidationLimits
	bans       BanStore
}

// Config bundles the construction-time knobs the Hub needs from the
// server config: the room size cap and the message validation limits.
type Config struct {
	MaxClients     int
	TruncateLength int
	MaxLength      int
}

// NewHub builds an empty Hub. bans may be nil if no BanStore is wired yet
// (Ban/TempBan then only remove the live clients and Unban only logs,
// without persisting); production wiring always supplies one.
func NewHub(cfg Config, bans BanStore) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]*Client),
		subs:       make(map[uuid.UUID]*subscriber),
		systemLog:  make(chan MessageEvent, 4096),
		maxClients: cfg.MaxClients,
		limits:     ValidationLimits{TruncateLength: cfg.TruncateLength, MaxLength: cfg.MaxLength},
		bans:       bans,
	}
}

// AddClient registers a new client after its SSH session negotiates a
// nickname. It enforces max_clients and nickname uniqueness, bumps the
// connection counter, announces the join on the chat fanout, and logs the
// event for the operator dashboard. The returned channel delivers every
// subsequent Chat and Notice event to this client; the caller must drain
// it until RemoveClient is called.
func (h *Hub) AddClient(c Client) (<-chan MessageEvent, error) {
	h.mu.Lock()
	if h.maxClients > 0 && len(h.clients) >= h.maxClients {
		h.mu.Unlock()
		return nil, fmt.Errorf("add client %s: %w", c.Nickname, chaterr.ErrServerFull)
	}
	for _, existing := range h.clients {
		if existing.Nickname == c.Nickname {
			h.mu.Unlock()
			return nil, fmt.Errorf("add client %s: %w", c.Nickname, chaterr.ErrNicknameTaken)
		}
	}
	sub := newSubscriber()
	h.clients[c.ID] = &c
	h.subs[c.ID] = sub
	h.mu.Unlock()

	h.statsMu.Lock()
	h.stats.Connections++
	h.statsMu.Unlock()

	now := time.Now()
	h.fanout(MessageEvent{Notice: &NoticeMessage{Timestamp: now, Kind: NoticeJoined, Nickname: c.Nickname, IP: c.IP}})
	h.logSystem(LogInfo, fmt.Sprintf("%s joined from %s", c.Nickname, c.IP), c.IP, nil)

	return sub.ch, nil
}

// RemoveClient unregisters a client on disconnect, announces the leave,
// and logs the event. It is a no-op if id is not registered.
func (h *Hub) RemoveClient(id uuid.UUID) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, id)
	delete(h.subs, id)
	h.mu.Unlock()

	now := time.Now()
	h.fanout(MessageEvent{Notice: &NoticeMessage{Timestamp: now, Kind: NoticeLeft, Nickname: c.Nickname, IP: c.IP}})
	h.logSystem(LogInfo, fmt.Sprintf("%s left", c.Nickname), c.IP, nil)
}

// BroadcastChat validates and fans a chat line out to every connected
// client. Validation runs here, not in the session handler, so no caller
// can emit an event that skips it.
func (h *Hub) BroadcastChat(from uuid.UUID, text string) error {
	h.mu.RLock()
	c, ok := h.clients[from]
	h.mu.RUnlock()
	if !ok {
		return chaterr.ErrClientNotFound
	}

	if err := validateMessage(text, h.limits); err != nil {
		return err
	}
	text = truncateMessage(text, h.limits.TruncateLength)

	h.statsMu.Lock()
	h.stats.Messages++
	h.statsMu.Unlock()

	h.fanout(MessageEvent{Chat: &ChatMessage{
		Timestamp: time.Now(),
		Nickname:  c.Nickname,
		Text:      text,
		Color:     c.Color,
		IP:        c.IP,
	}})
	return nil
}

// LogSystem emits an operator-only log line, with no associated admin
// action, to the dashboard.
func (h *Hub) LogSystem(level LogLevel, message string) {
	h.logSystem(level, message, nil, nil)
}

func (h *Hub) logSystem(level LogLevel, message string, ip net.IP, action AdminAction) {
	ev := MessageEvent{System: &SystemLog{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
		IP:        ip,
		Action:    action,
	}}
	select {
	case h.systemLog <- ev:
	default:
		// Operator log consumer (the dashboard) fell behind; drop rather
		// than block chat delivery. The dashboard itself never produces
		// enough volume to hit this in practice.
	}
}

// SubscribeSystem returns the single consumer channel for System events.
// Only the operator dashboard should read from it.
func (h *Hub) SubscribeSystem() <-chan MessageEvent {
	return h.systemLog
}

// fanout delivers ev to every currently subscribed client.
func (h *Hub) fanout(ev MessageEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		sub.send(ev)
	}
}

// resolveTarget implements the admin-command target grammar shared by
// Kick, Ban, and TempBan: try the string as an opaque client id, then as
// an IP matching a live client, then as a nickname. It returns the
// matching client if one is live, and/or the IP to act on.
func (h *Hub) resolveTarget(target string) (client *Client, ip net.IP, err error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if id, parseErr := uuid.Parse(target); parseErr == nil {
		if c, ok := h.clients[id]; ok {
			return c, c.IP, nil
		}
		return nil, nil, chaterr.ErrClientNotFound
	}

	if parsed := net.ParseIP(target); parsed != nil {
		for _, c := range h.clients {
			if c.IP.Equal(parsed) {
				return c, c.IP, nil
			}
		}
		return nil, parsed, nil
	}

	for _, c := range h.clients {
		if c.Nickname == target {
			return c, c.IP, nil
		}
	}
	return nil, nil, chaterr.ErrClientNotFound
}

// Kick disconnects target (resolved by id, IP, or nickname) without
// touching the ban list. Kick removes the client from the registry and
// announces it; it does not close the client's SSH channel.
func (h *Hub) Kick(target, reason string) (uuid.UUID, error) {
	c, _, err := h.resolveTarget(target)
	if err != nil {
		return uuid.UUID{}, err
	}
	if c == nil {
		return uuid.UUID{}, chaterr.ErrClientNotFound
	}
	h.RemoveClient(c.ID)

	h.statsMu.Lock()
	h.stats.Kicks++
	h.statsMu.Unlock()

	h.logSystem(LogWarning, fmt.Sprintf("%s kicked: %s", c.Nickname, reason), c.IP,
		KickAction{Nickname: c.Nickname, IP: c.IP})
	return c.ID, nil
}

// Ban permanently bans target's IP, persists it via the BanStore, and
// disconnects every live client currently on that IP. target may name a
// live client (id or nickname) or a bare IP with no live client at all.
func (h *Hub) Ban(target, reason string) ([]uuid.UUID, error) {
	return h.banImpl(target, reason, 0)
}

// TempBan bans target's IP for duration, per the same target grammar as Ban.
func (h *Hub) TempBan(target, reason string, duration time.Duration) ([]uuid.UUID, error) {
	return h.banImpl(target, reason, duration)
}

func (h *Hub) banImpl(target, reason string, duration time.Duration) ([]uuid.UUID, error) {
	_, ip, err := h.resolveTarget(target)
	if err != nil && ip == nil {
		return nil, err
	}
	if ip == nil {
		return nil, chaterr.ErrClientNotFound
	}

	if h.bans != nil {
		if duration > 0 {
			if err := h.bans.TempBan(ip, duration, reason); err != nil {
				return nil, err
			}
		} else {
			if err := h.bans.Ban(ip, reason); err != nil {
				return nil, err
			}
		}
	}

	h.mu.Lock()
	var matched []uuid.UUID
	for id, c := range h.clients {
		if c.IP.Equal(ip) {
			matched = append(matched, id)
		}
	}
	h.mu.Unlock()

	h.statsMu.Lock()
	h.stats.Bans++
	h.statsMu.Unlock()

	var action AdminAction
	if duration > 0 {
		action = TempBanAction{IP: ip, Duration: duration, Reason: reason}
	} else {
		action = BanAction{IP: ip, Reason: reason}
	}
	h.logSystem(LogWarning, fmt.Sprintf("%s banned: %s", ip, reason), ip, action)

	for _, id := range matched {
		h.RemoveClient(id)
	}
	return matched, nil
}

// Unban lifts a ban on target, which must be an IP address string; ids
// and nicknames are not resolved (a banned IP has no live clients).
func (h *Hub) Unban(target string) error {
	ip := net.ParseIP(target)
	if ip == nil {
		return chaterr.ErrClientNotFound
	}
	if h.bans != nil {
		if err := h.bans.Unban(ip); err != nil {
			return err
		}
	}
	h.logSystem(LogInfo, fmt.Sprintf("%s unbanned", ip), ip, UnbanAction{IP: ip})
	return nil
}

// ClientCount returns the number of currently registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetClients returns a snapshot of every currently registered client.
func (h *Hub) GetClients() []Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, *c)
	}
	return out
}

// GetClient returns the client registered under id, if any.
func (h *Hub) GetClient(id uuid.UUID) (Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	if !ok {
		return Client{}, false
	}
	return *c, true
}

// GetClientByNickname returns the client with the given nickname, if live.
func (h *Hub) GetClientByNickname(nickname string) (Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.Nickname == nickname {
			return *c, true
		}
	}
	return Client{}, false
}

// IsNicknameAvailable reports whether nickname is free to claim.
func (h *Hub) IsNicknameAvailable(nickname string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.Nickname == nickname {
			return false
		}
	}
	return true
}

// GetStats returns a snapshot of the server-wide counters.
func (h *Hub) GetStats() Stats {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	return h.stats
}
