// Package supervisor wires every subsystem together and runs them as a
// group of goroutines sharing one cancellation context, the Go analogue
// of the teacher's signal-driven Run/Shutdown lifecycle.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sshchat/sshchatd/admission"
	"github.com/sshchat/sshchatd/autobahn"
	"github.com/sshchat/sshchatd/ban"
	"github.com/sshchat/sshchatd/chat"
	"github.com/sshchat/sshchatd/config"
	"github.com/sshchat/sshchatd/dashboard"
	"github.com/sshchat/sshchatd/geo"
	"github.com/sshchat/sshchatd/logging"
	"github.com/sshchat/sshchatd/ratelimit"
	"github.com/sshchat/sshchatd/sshsrv"
	"github.com/sshchat/sshchatd/threat"
)

// cleanupInterval is how often AutoBahn and the rate limiter sweep stale
// per-IP/per-client state. Not presently exposed in config — the exact
// cadence isn't behavior an operator needs to tune.
const cleanupInterval = 10 * time.Minute

// Supervisor owns every long-lived subsystem and runs them to completion
// or shutdown.
type Supervisor struct {
	cfg *config.Config
	log *logging.Manager

	bans     *ban.Store
	geoFilter *geo.Filter
	threats  *threat.Feed
	autoBahn *autobahn.AutoBahn
	rateLim  *ratelimit.Limiter
	hub      *chat.Hub
	sshd     *sshsrv.Server
	dash     *dashboard.Dashboard
}

// New builds every subsystem from cfg. It opens the ban store, the GeoIP
// database (if enabled), and the threat cache (if enabled) eagerly, so a
// misconfiguration is reported before any client can connect.
func New(cfg *config.Config, log *logging.Manager) (*Supervisor, error) {
	bans, err := ban.Open(cfg.Bans.BanListPath)
	if err != nil {
		return nil, fmt.Errorf("supervisor: open ban store: %w", err)
	}

	geoFilter, err := geo.Open(geo.Config{
		Enabled:          cfg.GeoIP.Enabled,
		DatabasePath:     cfg.GeoIP.DatabasePath,
		Mode:             geoModeFrom(cfg.GeoIP.Mode),
		BlockedCountries: cfg.GeoIP.BlockedCountries,
		AllowedCountries: cfg.GeoIP.AllowedCountries,
		RejectionMessage: cfg.GeoIP.RejectionMessage,
	})
	if err != nil {
		return nil, fmt.Errorf("supervisor: open geoip filter: %w", err)
	}

	threats, err := threat.Open(threat.Config{
		Enabled:        cfg.ThreatLists.Enabled,
		UpdateInterval: time.Duration(cfg.ThreatLists.UpdateIntervalHours) * time.Hour,
		CacheDir:       cfg.ThreatLists.CacheDir,
		Action:         threatActionFrom(cfg.ThreatLists.Action),
		Sources:        threatSourcesFrom(cfg.ThreatLists.Sources),
	}, log)
	if err != nil {
		return nil, fmt.Errorf("supervisor: open threat feed: %w", err)
	}

	auto := autobahn.New(autobahn.Config{
		Enabled:                   cfg.AutoBahn.Enabled,
		DelayOnFirstViolation:     time.Duration(cfg.AutoBahn.DelayOnFirstViolation) * time.Millisecond,
		DelayOnSecondViolation:    time.Duration(cfg.AutoBahn.DelayOnSecondViolation) * time.Millisecond,
		DelayOnThirdViolation:     time.Duration(cfg.AutoBahn.DelayOnThirdViolation) * time.Millisecond,
		DelayOnFourthViolation:    time.Duration(cfg.AutoBahn.DelayOnFourthViolation) * time.Millisecond,
		ChallengeAfterViolations:  cfg.AutoBahn.ChallengeAfterViolations,
		ChallengeTimeout:          time.Duration(cfg.AutoBahn.ChallengeTimeoutSeconds) * time.Second,
		ConnectionDelayBase:       time.Duration(cfg.AutoBahn.ConnectionDelayBaseMs) * time.Millisecond,
		ConnectionDelayMultiplier: cfg.AutoBahn.ConnectionDelayMultiplier,
		ConnectionDelayMax:        time.Duration(cfg.AutoBahn.ConnectionDelayMaxMs) * time.Millisecond,
	})

	rateLim := ratelimit.New(
		ratelimit.RateConfig{
			MessagesPerSecond: cfg.RateLimit.MessagesPerSecond,
			BurstCapacity:     cfg.RateLimit.BurstCapacity,
		},
		ratelimit.FloodConfig{
			Window:              time.Duration(cfg.Flood.WindowSeconds) * time.Second,
			MaxMessagesInWindow: cfg.Flood.MaxMessagesInWindow,
			MaxConnectionsPerIP: cfg.Flood.MaxConnectionsPerIP,
		},
	)

	hub := chat.NewHub(chat.Config{
		MaxClients:     cfg.Server.MaxClients,
		TruncateLength: cfg.Limits.MessageTruncateLength,
		MaxLength:      cfg.Limits.MessageMaxLength,
	}, bans)

	pipeline := &admission.Pipeline{Bans: bans, GeoIP: geoFilter, Threats: threats, AutoBahn: auto}

	sshd, err := sshsrv.New(sshsrv.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		HostKeyPath: cfg.Server.HostKeyPath,
	}, hub, pipeline, rateLim, log)
	if err != nil {
		return nil, fmt.Errorf("supervisor: build ssh server: %w", err)
	}

	dash := dashboard.New(dashboard.Config{
		RefreshRateFPS:  int(cfg.TUI.RefreshRateFPS),
		MaxLogLines:     cfg.TUI.MaxLogLines,
		ShowIPAddresses: cfg.TUI.ShowIPAddresses,
	}, hub)

	return &Supervisor{
		cfg:       cfg,
		log:       log,
		bans:      bans,
		geoFilter: geoFilter,
		threats:   threats,
		autoBahn:  auto,
		rateLim:   rateLim,
		hub:       hub,
		sshd:      sshd,
		dash:      dash,
	}, nil
}

// Run starts the SSH acceptor, the threat feed's auto-update loop, and
// the periodic cleanup sweep as background tasks under one errgroup, then
// runs the dashboard in the foreground. When the dashboard exits (the
// operator quit it) or any background task fails, every other task is
// cancelled via the shared context and Run returns once they've all
// unwound — mirroring the teacher's "signal arrives, shut everything
// down, wait for it" lifecycle without needing OS signals for the normal
// quit path.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bgCtx, cancelBg := context.WithCancel(ctx)
	defer cancelBg()

	g, gctx := errgroup.WithContext(bgCtx)
	g.Go(func() error { return s.sshd.Run(gctx) })
	g.Go(func() error { return s.threats.RunAutoUpdate(gctx) })
	g.Go(func() error { return s.runCleanup(gctx) })

	dashErr := s.dash.Run(gctx, s.hub.SubscribeSystem())

	// The dashboard exiting — by operator request or by the same signal
	// that would stop the background tasks — is the cue to stop
	// everything else; there's nothing left for the acceptor to serve an
	// operator who can no longer see it.
	cancelBg()
	bgErr := g.Wait()
	s.closeSubsystems()

	if dashErr != nil {
		return dashErr
	}
	if bgErr != nil && bgErr != context.Canceled {
		return bgErr
	}
	return nil
}

// runCleanup periodically sweeps AutoBahn and rate-limiter state so
// abandoned per-IP/per-client entries don't grow the process's memory
// forever.
func (s *Supervisor) runCleanup(ctx context.Context) error {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.autoBahn.CleanupOldRecords(cleanupInterval)
			s.rateLim.CleanupInactiveClients(cleanupInterval)
			if err := s.bans.CleanupExpired(); err != nil {
				s.log.Warning("supervisor", fmt.Sprintf("ban cleanup failed: %s", err))
			}
		}
	}
}

func (s *Supervisor) closeSubsystems() {
	if err := s.geoFilter.Close(); err != nil {
		s.log.Warning("supervisor", fmt.Sprintf("closing geoip filter: %s", err))
	}
	if err := s.threats.Close(); err != nil {
		s.log.Warning("supervisor", fmt.Sprintf("closing threat cache: %s", err))
	}
}

func geoModeFrom(m config.GeoIPMode) geo.Mode {
	if m == config.GeoIPModeWhitelist {
		return geo.ModeWhitelist
	}
	return geo.ModeBlacklist
}

func threatActionFrom(a config.ThreatAction) threat.Action {
	if a == config.ThreatActionLogOnly {
		return threat.ActionLogOnly
	}
	return threat.ActionBlock
}

func threatSourcesFrom(sources []config.ThreatListSource) []threat.Source {
	out := make([]threat.Source, 0, len(sources))
	for _, s := range sources {
		out = append(out, threat.Source{
			Name:    s.Name,
			URL:     s.URL,
			Format:  threatFormatFrom(s.Format),
			Enabled: s.Enabled,
			Headers: s.Headers,
			Params:  s.Params,
		})
	}
	return out
}

func threatFormatFrom(f config.ThreatListFormat) threat.Format {
	switch f {
	case config.ThreatListFormatCIDR:
		return threat.FormatCIDR
	case config.ThreatListFormatJSON:
		return threat.FormatJSON
	default:
		return threat.FormatIP
	}
}
