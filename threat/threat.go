// Package threat implements the external IP/CIDR blocklist feed: periodic
// HTTP refresh of configured sources, with a buntdb-backed on-disk cache
// so the feed survives a restart before its first refresh completes.
package threat

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/buntdb"
	"go.uber.org/zap"

	"github.com/sshchat/sshchatd/chaterr"
	"github.com/sshchat/sshchatd/logging"
)

// Format is the wire format of one threat list source.
type Format int

const (
	FormatIP Format = iota
	FormatCIDR
	FormatJSON
)

// Action selects whether a threat-listed IP is rejected or merely logged.
type Action int

const (
	ActionBlock Action = iota
	ActionLogOnly
)

// Source is one configured blocklist feed.
type Source struct {
	Name    string
	URL     string
	Format  Format
	Enabled bool
	Headers map[string]string
	Params  map[string]string
}

// Config mirrors the server config's [threat_lists] table.
type Config struct {
	Enabled          bool
	UpdateInterval   time.Duration
	CacheDir         string
	Action           Action
	Sources          []Source
}

// cacheEntry is the JSON value stored per source in the on-disk cache.
type cacheEntry struct {
	Source    string    `json:"source"`
	IPs       []string  `json:"ips"`
	CIDRs     []string  `json:"cidrs"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Feed tracks the combined IP and CIDR blocklist. A refresh of one source
// replaces the entire in-memory set, matching the single upstream source
// of truth the reference feed uses: the last source to refresh
// successfully "wins", rather than the sets being a union of every
// source. This is a known quirk carried forward deliberately rather than
// silently fixed.
type Feed struct {
	cfg    Config
	log    *logging.Manager
	client *http.Client

	mu    sync.RWMutex
	ips   map[string]struct{}
	cidrs []*net.IPNet

	cache *buntdb.DB
}

// Open builds a Feed and, if cfg.Enabled, opens (creating if necessary)
// the on-disk cache at cfg.CacheDir/threats.db and seeds the in-memory
// sets from it so Check has something to work with before the first
// refresh completes.
func Open(cfg Config, log *logging.Manager) (*Feed, error) {
	f := &Feed{
		cfg:    cfg,
		log:    log,
		client: &http.Client{Timeout: 30 * time.Second},
		ips:    make(map[string]struct{}),
	}
	if !cfg.Enabled {
		return f, nil
	}

	cachePath := filepath.Join(cfg.CacheDir, "threats.db")
	db, err := buntdb.Open(cachePath)
	if err != nil {
		return nil, fmt.Errorf("threat: open cache %s: %w", cachePath, err)
	}
	f.cache = db
	f.seedFromCache()
	return f, nil
}

// Close releases the on-disk cache, if one was opened.
func (f *Feed) Close() error {
	if f.cache == nil {
		return nil
	}
	return f.cache.Close()
}

// IsEnabled reports whether this feed performs any checks.
func (f *Feed) IsEnabled() bool { return f.cfg.Enabled }

// seedFromCache reads every cached source's entry back into the in-memory
// sets. A source's cached entry can have expired since it was written;
// buntdb drops expired keys on its own, so a miss here just means "no
// cached data yet", not an error.
func (f *Feed) seedFromCache() {
	err := f.cache.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(key, value string) bool {
			var ce cacheEntry
			if err := json.Unmarshal([]byte(value), &ce); err != nil {
				return true
			}
			f.mu.Lock()
			for _, ip := range ce.IPs {
				f.ips[ip] = struct{}{}
			}
			for _, c := range ce.CIDRs {
				if _, ipnet, err := net.ParseCIDR(c); err == nil {
					f.cidrs = append(f.cidrs, ipnet)
				}
			}
			f.mu.Unlock()
			return true
		})
	})
	if err != nil && f.log != nil {
		f.log.Warning("threat", "failed to seed cache", zap.Error(err))
	}
}

// RunAutoUpdate performs one synchronous refresh of every enabled source,
// then refreshes again every UpdateInterval until ctx is cancelled. It is
// meant to be run as one Supervisor task.
func (f *Feed) RunAutoUpdate(ctx context.Context) error {
	if !f.cfg.Enabled {
		return nil
	}

	f.updateAll(ctx)

	ticker := time.NewTicker(f.cfg.UpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			f.updateAll(ctx)
		}
	}
}

func (f *Feed) updateAll(ctx context.Context) {
	for _, source := range f.cfg.Sources {
		if !source.Enabled {
			continue
		}
		ips, cidrs, err := f.fetchList(ctx, source)
		if err != nil {
			if f.log != nil {
				f.log.Warning("threat", fmt.Sprintf("failed to update threat list %q", source.Name), zap.Error(err))
			}
			continue
		}

		f.mu.Lock()
		f.ips = make(map[string]struct{}, len(ips))
		for _, ip := range ips {
			f.ips[ip.String()] = struct{}{}
		}
		f.cidrs = cidrs
		f.mu.Unlock()

		f.storeCache(source.Name, ips, cidrs)

		if f.log != nil {
			f.log.Info("threat", fmt.Sprintf("updated threat list %q: %d IPs, %d CIDRs", source.Name, len(ips), len(cidrs)))
		}
	}
}

// storeCache persists source's results with a TTL of twice the configured
// update interval, so a source that goes offline doesn't leave a stale
// cache entry serving indefinitely.
func (f *Feed) storeCache(name string, ips []net.IP, cidrs []*net.IPNet) {
	if f.cache == nil {
		return
	}
	ce := cacheEntry{Source: name, FetchedAt: time.Now()}
	for _, ip := range ips {
		ce.IPs = append(ce.IPs, ip.String())
	}
	for _, c := range cidrs {
		ce.CIDRs = append(ce.CIDRs, c.String())
	}
	data, err := json.Marshal(ce)
	if err != nil {
		return
	}

	ttl := 2 * f.cfg.UpdateInterval
	err = f.cache.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(name, string(data), &buntdb.SetOptions{Expires: true, TTL: ttl})
		return err
	})
	if err != nil && f.log != nil {
		f.log.Warning("threat", fmt.Sprintf("failed to cache threat list %q", name), zap.Error(err))
	}
}

// fetchList downloads source.URL and parses it per source.Format.
func (f *Feed) fetchList(ctx context.Context, source Source) ([]net.IP, []*net.IPNet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.URL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range source.Headers {
		req.Header.Set(k, v)
	}
	q := req.URL.Query()
	for k, v := range source.Params {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("http error: %s", resp.Status)
	}

	return parseList(resp.Body, source.Format)
}

// parseList parses body per format: line-oriented IP, line-oriented CIDR
// (ignoring a trailing "; comment" DROP-list suffix), or a JSON array of
// IP strings.
func parseList(body io.Reader, format Format) ([]net.IP, []*net.IPNet, error) {
	switch format {
	case FormatJSON:
		var raw []string
		if err := json.NewDecoder(body).Decode(&raw); err != nil {
			return nil, nil, fmt.Errorf("parse json: %w", err)
		}
		var ips []net.IP
		for _, s := range raw {
			if ip := net.ParseIP(strings.TrimSpace(s)); ip != nil {
				ips = append(ips, ip)
			}
		}
		return ips, nil, nil

	case FormatCIDR:
		var cidrs []*net.IPNet
		sc := bufio.NewScanner(body)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
				continue
			}
			cidrStr := strings.TrimSpace(strings.SplitN(line, ";", 2)[0])
			if _, ipnet, err := net.ParseCIDR(cidrStr); err == nil {
				cidrs = append(cidrs, ipnet)
			}
		}
		return nil, cidrs, nil

	default: // FormatIP
		var ips []net.IP
		sc := bufio.NewScanner(body)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
				continue
			}
			if ip := net.ParseIP(line); ip != nil {
				ips = append(ips, ip)
			}
		}
		return ips, nil, nil
	}
}

// Check rejects ip if it exactly matches a listed IP or falls inside a
// listed CIDR, per the configured Action.
func (f *Feed) Check(ip net.IP) error {
	if !f.cfg.Enabled {
		return nil
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	matched := false
	var reason string
	if _, ok := f.ips[ip.String()]; ok {
		matched = true
		reason = fmt.Sprintf("ip %s is on threat list", ip)
	} else {
		for _, c := range f.cidrs {
			if c.Contains(ip) {
				matched = true
				reason = fmt.Sprintf("ip %s matches cidr %s on threat list", ip, c)
				break
			}
		}
	}
	if !matched {
		return nil
	}

	if f.cfg.Action == ActionLogOnly {
		if f.log != nil {
			f.log.Warning("threat", reason)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", chaterr.ErrThreatListed, reason)
}

