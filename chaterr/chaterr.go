// Package chaterr defines the error taxonomy shared by every layer of the
// server: admission, the rate limiter, and message validation all return
// errors wrapping one of these sentinels so callers can classify a failure
// with errors.Is without string-matching messages.
package chaterr

import "errors"

var (
	// ErrBanned means the connecting IP is on the ban list.
	ErrBanned = errors.New("banned")

	// ErrRateLimited means the client exceeded its token bucket.
	ErrRateLimited = errors.New("rate limited")

	// ErrFlooding means the client exceeded the sliding-window flood detector.
	ErrFlooding = errors.New("flooding")

	// Message validation failures (applied inside Hub.BroadcastChat).
	ErrEmpty          = errors.New("message is empty")
	ErrTooLong        = errors.New("message too long")
	ErrCombiningMarks = errors.New("message contains combining diacritical marks")
	ErrRepeatedChars  = errors.New("message contains repeated characters")

	// ErrServerFull means the Hub is at max_clients.
	ErrServerFull = errors.New("server full")

	// ErrNicknameTaken means the Hub already has a live client with that nickname.
	ErrNicknameTaken = errors.New("nickname already taken")

	// ErrTooManyConnections means the per-IP connection cap was hit.
	ErrTooManyConnections = errors.New("too many connections")

	// ErrGeoIPRejected means the GeoFilter rejected the IP's country.
	ErrGeoIPRejected = errors.New("geoip rejected")

	// ErrThreatListed means the ThreatFeed rejected the IP.
	ErrThreatListed = errors.New("ip on threat list")

	// ErrChallengeFailed means AutoBahn's challenge gate was not satisfied.
	ErrChallengeFailed = errors.New("autobahn challenge failed")

	// ErrClientNotFound means a Hub lookup (by id, IP, or nickname) came up empty.
	ErrClientNotFound = errors.New("client not found")

	// ErrNotRegistered means a RateLimiter operation was attempted for a
	// client that was never registered (or was already unregistered).
	ErrNotRegistered = errors.New("client not registered")
)
