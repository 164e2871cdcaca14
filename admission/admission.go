// Package admission composes the pre-handshake checks every incoming
// connection must pass, in the fixed order the spec requires: ban list,
// GeoIP filter, threat feed, then the AutoBahn throttle.
package admission

import (
	"context"
	"fmt"
	"net"

	"github.com/sshchat/sshchatd/autobahn"
	"github.com/sshchat/sshchatd/ban"
	"github.com/sshchat/sshchatd/chaterr"
	"github.com/sshchat/sshchatd/geo"
	"github.com/sshchat/sshchatd/threat"
)

// Pipeline runs the ordered admission checks for a newly accepted TCP
// connection, before any SSH handshake is attempted.
type Pipeline struct {
	Bans     *ban.Store
	GeoIP    *geo.Filter
	Threats  *threat.Feed
	AutoBahn *autobahn.AutoBahn
}

// Check runs every configured gate against ip in order, returning the
// first failure. A ban failure also records an AutoBahn violation, since
// a banned IP retrying is itself abuse signal; the other gates don't
// (they reflect policy, not client misbehavior).
func (p *Pipeline) Check(ctx context.Context, ip net.IP) error {
	if entry := p.Bans.Check(ip); entry != nil {
		if p.AutoBahn != nil {
			p.AutoBahn.RecordViolation(ip)
		}
		return fmt.Errorf("%w: %s", chaterr.ErrBanned, entry.Reason)
	}

	if p.GeoIP != nil {
		if err := p.GeoIP.Check(ip); err != nil {
			return err
		}
	}

	if p.Threats != nil {
		if err := p.Threats.Check(ip); err != nil {
			return err
		}
	}

	if p.AutoBahn != nil {
		if err := p.AutoBahn.CheckConnection(ctx, ip); err != nil {
			return err
		}
	}

	return nil
}
