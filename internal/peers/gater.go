package peers

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/connmgr"
	"github.com/libp2p/go-libp2p/core/control"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// DefaultGaterTimeout bounds a single policy evaluation made by the gater.
const DefaultGaterTimeout = 5 * time.Second

// PolicyGater implements ConnectionGater by evaluating a Policy against the
// remote address of each dial and each secured inbound connection.
type PolicyGater struct {
	policy  Policy
	timeout time.Duration

	// Callback for connection events
	onBlocked func(addr multiaddr.Multiaddr, reason string)
}

// NewPolicyGater creates a new connection gater. A zero timeout selects
// DefaultGaterTimeout.
func NewPolicyGater(policy Policy, timeout time.Duration) *PolicyGater {
	if timeout <= 0 {
		timeout = DefaultGaterTimeout
	}
	return &PolicyGater{
		policy:  policy,
		timeout: timeout,
	}
}

// SetBlockedCallback sets a callback for when connections are blocked.
func (g *PolicyGater) SetBlockedCallback(cb func(addr multiaddr.Multiaddr, reason string)) {
	g.onBlocked = cb
}

// allow evaluates the policy for addr. Undecided evaluations are refused.
func (g *PolicyGater) allow(addr multiaddr.Multiaddr) bool {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	ok, err := g.policy.IsAllowed(ctx, addr)
	if err != nil {
		log.Warnf("Policy evaluation for %s failed: %v", addr, err)
		g.blocked(addr, "policy error")
		return false
	}
	if !ok {
		g.blocked(addr, "policy")
		return false
	}
	return true
}

func (g *PolicyGater) blocked(addr multiaddr.Multiaddr, reason string) {
	log.Debugf("Blocked connection with %s: %s", addr, reason)
	if g.onBlocked != nil {
		g.onBlocked(addr, reason)
	}
}

// withIdentity appends /p2p/<p> to addr unless it already ends with an
// identity.
func withIdentity(addr multiaddr.Multiaddr, p peer.ID) (multiaddr.Multiaddr, error) {
	if addr != nil && HasIdentity(addr) {
		return addr, nil
	}
	idPart, err := multiaddr.NewComponent(multiaddr.ProtocolWithCode(IdentityProtocol).Name, p.String())
	if err != nil {
		return nil, err
	}
	if addr == nil {
		return idPart, nil
	}
	return addr.Encapsulate(idPart), nil
}

// InterceptPeerDial is called before dialing a peer. Without an address there
// is nothing to evaluate; InterceptAddrDial decides.
func (g *PolicyGater) InterceptPeerDial(p peer.ID) bool {
	return true
}

// InterceptAddrDial is called before dialing a specific address.
func (g *PolicyGater) InterceptAddrDial(p peer.ID, addr multiaddr.Multiaddr) bool {
	full, err := withIdentity(addr, p)
	if err != nil {
		log.Warnf("Cannot build address for %s: %v", p.ShortString(), err)
		return false
	}
	return g.allow(full)
}

// InterceptAccept is called when accepting a connection from a multiaddr.
func (g *PolicyGater) InterceptAccept(addrs network.ConnMultiaddrs) bool {
	// The peer ID is not known until the security handshake completes;
	// InterceptSecured makes the decision.
	return true
}

// InterceptSecured is called after the security handshake is complete.
func (g *PolicyGater) InterceptSecured(dir network.Direction, p peer.ID, addrs network.ConnMultiaddrs) bool {
	// Outbound connections were already checked by InterceptAddrDial.
	if dir == network.DirOutbound {
		return true
	}
	full, err := withIdentity(addrs.RemoteMultiaddr(), p)
	if err != nil {
		log.Warnf("Cannot build address for %s: %v", p.ShortString(), err)
		return false
	}
	return g.allow(full)
}

// InterceptUpgraded is called after the connection is fully upgraded.
func (g *PolicyGater) InterceptUpgraded(conn network.Conn) (bool, control.DisconnectReason) {
	return true, 0
}

// Ensure PolicyGater implements the ConnectionGater interface.
var _ connmgr.ConnectionGater = (*PolicyGater)(nil)
