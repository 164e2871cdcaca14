// Package ratelimit implements per-client message rate limiting, flood
// detection, and per-IP connection caps.
package ratelimit

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/sshchat/sshchatd/chaterr"
)

// RateConfig mirrors the server config's [rate_limit] table.
type RateConfig struct {
	MessagesPerSecond float64
	BurstCapacity     int
}

// FloodConfig mirrors the server config's [flood] table.
type FloodConfig struct {
	Window              time.Duration
	MaxMessagesInWindow int
	MaxConnectionsPerIP int
}

// Limiter tracks per-client token buckets, a sliding-window flood
// detector, and per-IP connection counts. Safe for concurrent use.
type Limiter struct {
	rateCfg  RateConfig
	floodCfg FloodConfig

	mu            sync.Mutex
	clientLimiter map[uuid.UUID]*rate.Limiter
	ipConnections map[string][]uuid.UUID
	messageHist   map[uuid.UUID][]time.Time
}

// New builds a Limiter from rateCfg and floodCfg.
func New(rateCfg RateConfig, floodCfg FloodConfig) *Limiter {
	return &Limiter{
		rateCfg:       rateCfg,
		floodCfg:      floodCfg,
		clientLimiter: make(map[uuid.UUID]*rate.Limiter),
		ipConnections: make(map[string][]uuid.UUID),
		messageHist:   make(map[uuid.UUID][]time.Time),
	}
}

// RegisterClient enforces the per-IP connection cap and, if it passes,
// creates a fresh token bucket and message history for clientID.
func (l *Limiter) RegisterClient(clientID uuid.UUID, ip net.IP) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := ip.String()
	if len(l.ipConnections[key]) >= l.floodCfg.MaxConnectionsPerIP {
		return fmt.Errorf("%w: %s (max %d)", chaterr.ErrTooManyConnections, ip, l.floodCfg.MaxConnectionsPerIP)
	}
	l.ipConnections[key] = append(l.ipConnections[key], clientID)

	perSecond := l.rateCfg.MessagesPerSecond
	if perSecond <= 0 {
		perSecond = 1
	}
	burst := l.rateCfg.BurstCapacity
	if burst <= 0 {
		burst = 1
	}
	l.clientLimiter[clientID] = rate.NewLimiter(rate.Limit(perSecond), burst)
	l.messageHist[clientID] = nil
	return nil
}

// UnregisterClient removes every trace of clientID: its IP-connection
// slot, token bucket, and message history.
func (l *Limiter) UnregisterClient(clientID uuid.UUID, ip net.IP) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := ip.String()
	conns := l.ipConnections[key]
	for i, id := range conns {
		if id == clientID {
			conns = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(conns) == 0 {
		delete(l.ipConnections, key)
	} else {
		l.ipConnections[key] = conns
	}

	delete(l.clientLimiter, clientID)
	delete(l.messageHist, clientID)
}

// CheckRateLimit consumes one token from clientID's bucket.
func (l *Limiter) CheckRateLimit(clientID uuid.UUID) error {
	l.mu.Lock()
	lim, ok := l.clientLimiter[clientID]
	l.mu.Unlock()
	if !ok {
		return chaterr.ErrNotRegistered
	}
	if !lim.Allow() {
		return chaterr.ErrRateLimited
	}
	return nil
}

// CheckFlood applies the sliding-window flood detector: it drops
// timestamps older than the configured window, then rejects if the
// remaining count has already reached the per-window cap; otherwise it
// records the current message and allows it.
func (l *Limiter) CheckFlood(clientID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	history, ok := l.messageHist[clientID]
	if !ok {
		return chaterr.ErrNotRegistered
	}

	now := time.Now()
	cutoff := now.Add(-l.floodCfg.Window)
	i := 0
	for i < len(history) && history[i].Before(cutoff) {
		i++
	}
	history = history[i:]

	if len(history) >= l.floodCfg.MaxMessagesInWindow {
		l.messageHist[clientID] = history
		return fmt.Errorf("%w: %d messages in %s", chaterr.ErrFlooding, len(history), l.floodCfg.Window)
	}

	l.messageHist[clientID] = append(history, now)
	return nil
}

// GetConnectionCount returns the number of registered clients on ip.
func (l *Limiter) GetConnectionCount(ip net.IP) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ipConnections[ip.String()])
}

// CleanupInactiveClients drops message history for any client whose most
// recent message is older than threshold. The client stays registered.
// Intended to run periodically from the Supervisor.
func (l *Limiter) CleanupInactiveClients(threshold time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	for id, history := range l.messageHist {
		if len(history) == 0 {
			continue
		}
		last := history[len(history)-1]
		if now.Sub(last) >= threshold {
			l.messageHist[id] = nil
		}
	}
}
