// Package ban implements the persistent IP ban list: permanent and
// temporary bans, JSON file persistence, and expiry cleanup.
package ban

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one banned IP, with an optional expiry. A nil ExpiresAt is a
// permanent ban.
type Entry struct {
	IP        net.IP     `json:"ip"`
	Reason    string     `json:"reason"`
	BannedAt  time.Time  `json:"banned_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// IsActive reports whether the ban is still in effect.
func (e Entry) IsActive() bool {
	return e.ExpiresAt == nil || time.Now().Before(*e.ExpiresAt)
}

// IsExpired is the complement of IsActive.
func (e Entry) IsExpired() bool { return !e.IsActive() }

// list is the on-disk representation: one entry per banned IP, keyed by
// its string form so it round-trips through encoding/json cleanly.
type list struct {
	Bans map[string]Entry `json:"bans"`
}

// Store is the thread-safe, file-backed ban list. The zero value is not
// usable; construct with Open.
type Store struct {
	path string
	mu   sync.RWMutex
	bans map[string]Entry
}

// Open loads path if it exists (or starts empty), drops any bans that
// have already expired, and returns a ready Store.
func Open(path string) (*Store, error) {
	s := &Store{path: path, bans: make(map[string]Entry)}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// no existing ban list; start empty
	case err != nil:
		return nil, fmt.Errorf("ban: read %s: %w", path, err)
	default:
		var l list
		if err := json.Unmarshal(data, &l); err != nil {
			return nil, fmt.Errorf("ban: parse %s: %w", path, err)
		}
		if l.Bans != nil {
			s.bans = l.Bans
		}
	}

	if err := s.cleanupExpiredLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// Ban permanently bans ip.
func (s *Store) Ban(ip net.IP, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bans[ip.String()] = Entry{IP: ip, Reason: reason, BannedAt: time.Now()}
	return s.saveLocked()
}

// TempBan bans ip for duration.
func (s *Store) TempBan(ip net.IP, duration time.Duration, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	expires := now.Add(duration)
	s.bans[ip.String()] = Entry{IP: ip, Reason: reason, BannedAt: now, ExpiresAt: &expires}
	return s.saveLocked()
}

// Unban removes any ban on ip. It is not an error for ip to be unbanned
// already; Unban simply saves if something was actually removed.
func (s *Store) Unban(ip net.IP) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ip.String()
	if _, ok := s.bans[key]; !ok {
		return nil
	}
	delete(s.bans, key)
	return s.saveLocked()
}

// IsBanned reports whether ip currently has an active ban.
func (s *Store) IsBanned(ip net.IP) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.bans[ip.String()]
	return ok && e.IsActive()
}

// Check is the Admission-pipeline entry point: nil means ip may proceed,
// non-nil is the active ban entry responsible for the rejection.
func (s *Store) Check(ip net.IP) *Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.bans[ip.String()]
	if !ok || !e.IsActive() {
		return nil
	}
	return &e
}

// CleanupExpired drops every entry whose ban has expired and persists the
// result if anything changed. Intended to run periodically from the
// Supervisor.
func (s *Store) CleanupExpired() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanupExpiredLocked()
}

func (s *Store) cleanupExpiredLocked() error {
	changed := false
	for k, e := range s.bans {
		if e.IsExpired() {
			delete(s.bans, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.saveLocked()
}

// AllActive returns every currently active ban.
func (s *Store) AllActive() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.bans))
	for _, e := range s.bans {
		if e.IsActive() {
			out = append(out, e)
		}
	}
	return out
}

// CountActive returns the number of currently active bans.
func (s *Store) CountActive() int {
	return len(s.AllActive())
}

// saveLocked writes the ban list to disk via a temp-file-then-rename, so a
// crash mid-write never leaves a truncated ban list behind. Caller must
// hold s.mu.
func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(list{Bans: s.bans}, "", "  ")
	if err != nil {
		return fmt.Errorf("ban: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".ban-*.tmp")
	if err != nil {
		return fmt.Errorf("ban: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("ban: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("ban: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("ban: rename temp file into place: %w", err)
	}
	return nil
}
