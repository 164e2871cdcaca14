// Package config loads and validates the server's TOML configuration
// file, with an optional .env overlay for host-specific overrides.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is the top-level configuration tree, one table per subsystem.
type Config struct {
	Server      ServerConfig      `toml:"server" validate:"required"`
	Limits      LimitsConfig      `toml:"limits" validate:"required"`
	RateLimit   RateLimitConfig   `toml:"rate_limit" validate:"required"`
	Flood       FloodConfig       `toml:"flood" validate:"required"`
	Bans        BanConfig         `toml:"bans" validate:"required"`
	AutoBahn    AutoBahnConfig    `toml:"autobahn" validate:"required"`
	GeoIP       GeoIPConfig       `toml:"geoip" validate:"required"`
	ThreatLists ThreatListsConfig `toml:"threat_lists" validate:"required"`
	TUI         TUIConfig         `toml:"tui" validate:"required"`
}

type ServerConfig struct {
	Host        string `toml:"host" validate:"required"`
	Port        uint16 `toml:"port" validate:"required"`
	HostKeyPath string `toml:"host_key_path" validate:"required"`
	MaxClients  int    `toml:"max_clients" validate:"gte=0"`
}

type LimitsConfig struct {
	MessageTruncateLength  int `toml:"message_truncate_length" validate:"gt=0"`
	MessageMaxLength       int `toml:"message_max_length" validate:"gt=0"`
	NicknameTruncateLength int `toml:"nickname_truncate_length" validate:"gt=0"`
	NicknameMaxLength      int `toml:"nickname_max_length" validate:"gt=0"`
	MaxMessageHistory      int `toml:"max_message_history" validate:"gte=0"`
}

type RateLimitConfig struct {
	MessagesPerSecond float64 `toml:"messages_per_second" validate:"gt=0"`
	BurstCapacity     int     `toml:"burst_capacity" validate:"gt=0"`
}

type FloodConfig struct {
	WindowSeconds        uint64 `toml:"window_seconds" validate:"gt=0"`
	MaxMessagesInWindow  int    `toml:"max_messages_in_window" validate:"gt=0"`
	MaxConnectionsPerIP  int    `toml:"max_connections_per_ip" validate:"gt=0"`
}

type BanConfig struct {
	AutoBanAfterViolations uint8  `toml:"auto_ban_after_violations"`
	TempBanDurationMinutes uint64 `toml:"temp_ban_duration_minutes" validate:"gt=0"`
	PermanentBanThreshold  uint8  `toml:"permanent_ban_threshold"`
	BanListPath            string `toml:"ban_list_path" validate:"required"`
}

type AutoBahnConfig struct {
	Enabled                   bool    `toml:"enabled"`
	DelayOnFirstViolation     uint64  `toml:"delay_on_first_violation"`
	DelayOnSecondViolation    uint64  `toml:"delay_on_second_violation"`
	DelayOnThirdViolation     uint64  `toml:"delay_on_third_violation"`
	DelayOnFourthViolation    uint64  `toml:"delay_on_fourth_violation"`
	ChallengeAfterViolations  uint8   `toml:"challenge_after_violations"`
	ChallengeTimeoutSeconds   uint64  `toml:"challenge_timeout_seconds"`
	ConnectionDelayBaseMs     uint64  `toml:"connection_delay_base_ms"`
	ConnectionDelayMultiplier float64 `toml:"connection_delay_multiplier"`
	ConnectionDelayMaxMs      uint64  `toml:"connection_delay_max_ms"`
}

// GeoIPMode is either "blacklist" or "whitelist" in the TOML source.
type GeoIPMode string

const (
	GeoIPModeBlacklist GeoIPMode = "blacklist"
	GeoIPModeWhitelist GeoIPMode = "whitelist"
)

type GeoIPConfig struct {
	Enabled          bool      `toml:"enabled"`
	DatabasePath     string    `toml:"database_path"`
	Mode             GeoIPMode `toml:"mode" validate:"omitempty,oneof=blacklist whitelist"`
	BlockedCountries []string  `toml:"blocked_countries"`
	AllowedCountries []string  `toml:"allowed_countries"`
	RejectionMessage string    `toml:"rejection_message"`
}

// ThreatAction is either "block" or "log_only" in the TOML source.
type ThreatAction string

const (
	ThreatActionBlock   ThreatAction = "block"
	ThreatActionLogOnly ThreatAction = "log_only"
)

type ThreatListsConfig struct {
	Enabled             bool               `toml:"enabled"`
	UpdateIntervalHours uint64             `toml:"update_interval_hours"`
	CacheDir            string             `toml:"cache_dir"`
	Action              ThreatAction       `toml:"action" validate:"omitempty,oneof=block log_only"`
	Sources             []ThreatListSource `toml:"sources"`
}

// ThreatListFormat is "ip", "cidr", or "json" in the TOML source.
type ThreatListFormat string

const (
	ThreatListFormatIP   ThreatListFormat = "ip"
	ThreatListFormatCIDR ThreatListFormat = "cidr"
	ThreatListFormatJSON ThreatListFormat = "json"
)

type ThreatListSource struct {
	Name    string            `toml:"name" validate:"required"`
	URL     string            `toml:"url" validate:"required,url"`
	Format  ThreatListFormat  `toml:"format" validate:"oneof=ip cidr json"`
	Enabled bool              `toml:"enabled"`
	Headers map[string]string `toml:"headers"`
	Params  map[string]string `toml:"params"`
}

type TUIConfig struct {
	RefreshRateFPS   uint8 `toml:"refresh_rate_fps" validate:"gt=0"`
	MaxLogLines      int   `toml:"max_log_lines" validate:"gt=0"`
	ShowIPAddresses  bool  `toml:"show_ip_addresses"`
}

// Load reads path as TOML into a Config and validates it. Before parsing,
// it overlays a ".env" file (if present) in path's directory onto the
// process environment. No Config value is read from the environment;
// every value comes from the TOML file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid %s: %w", path, err)
	}

	return &cfg, nil
}
