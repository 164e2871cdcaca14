// Package geo implements country-based IP filtering against a MaxMind
// GeoLite2 Country database.
package geo

import (
	"fmt"
	"net"

	"github.com/oschwald/maxminddb-golang"

	"github.com/sshchat/sshchatd/chaterr"
)

// Mode selects whether the configured country list is a blacklist or a
// whitelist.
type Mode int

const (
	ModeBlacklist Mode = iota
	ModeWhitelist
)

// Config are the construction-time GeoIP settings, mirroring the server
// config's [geoip] table.
type Config struct {
	Enabled           bool
	DatabasePath      string
	Mode              Mode
	BlockedCountries  []string
	AllowedCountries  []string
	RejectionMessage  string
}

// Filter rejects connections from disallowed countries. A Filter built
// with Enabled=false always permits every IP without opening a database.
type Filter struct {
	cfg    Config
	reader *maxminddb.Reader
}

// countryRecord is the subset of the GeoLite2 Country schema this filter
// needs: the ISO country code.
type countryRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

// Open builds a Filter. If cfg.Enabled is false, the database is never
// opened and Check always succeeds.
func Open(cfg Config) (*Filter, error) {
	if !cfg.Enabled {
		return &Filter{cfg: cfg}, nil
	}
	reader, err := maxminddb.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("geo: open %s: %w", cfg.DatabasePath, err)
	}
	return &Filter{cfg: cfg, reader: reader}, nil
}

// Close releases the underlying database file, if one was opened.
func (f *Filter) Close() error {
	if f.reader == nil {
		return nil
	}
	return f.reader.Close()
}

// IsEnabled reports whether this filter performs any lookups.
func (f *Filter) IsEnabled() bool { return f.cfg.Enabled }

// Check looks up ip's country and applies the configured blacklist or
// whitelist. A disabled filter always returns nil.
func (f *Filter) Check(ip net.IP) error {
	if !f.cfg.Enabled {
		return nil
	}
	if f.reader == nil {
		return fmt.Errorf("geo: reader not initialized")
	}

	var rec countryRecord
	if err := f.reader.Lookup(ip, &rec); err != nil {
		return fmt.Errorf("geo: lookup %s: %w", ip, err)
	}
	if rec.Country.ISOCode == "" {
		return fmt.Errorf("geo: no country code for %s", ip)
	}

	switch f.cfg.Mode {
	case ModeBlacklist:
		if contains(f.cfg.BlockedCountries, rec.Country.ISOCode) {
			return fmt.Errorf("%w: %s", chaterr.ErrGeoIPRejected, f.cfg.RejectionMessage)
		}
	case ModeWhitelist:
		if !contains(f.cfg.AllowedCountries, rec.Country.ISOCode) {
			return fmt.Errorf("%w: %s", chaterr.ErrGeoIPRejected, f.cfg.RejectionMessage)
		}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
