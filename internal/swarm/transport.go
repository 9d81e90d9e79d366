package swarm

import (
	"context"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
)

// Transport performs the network side of Connect and Disconnect.
type Transport interface {
	Dial(ctx context.Context, info peer.AddrInfo) error
	Hangup(ctx context.Context, id peer.ID) error
}

// HostTransport dials through a libp2p host.
type HostTransport struct {
	host host.Host
}

// NewHostTransport wraps h.
func NewHostTransport(h host.Host) *HostTransport {
	return &HostTransport{host: h}
}

// Dial connects to the peer, reusing an existing connection if there is one.
func (t *HostTransport) Dial(ctx context.Context, info peer.AddrInfo) error {
	return t.host.Connect(ctx, info)
}

// Hangup closes every connection to the peer.
func (t *HostTransport) Hangup(ctx context.Context, id peer.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.host.Network().ClosePeer(id)
}

var _ Transport = (*HostTransport)(nil)
