// Package bootstrap seeds a swarm with its configured bootstrap peers.
package bootstrap

import (
	"context"
	"fmt"

	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"golang.org/x/sync/errgroup"

	"github.com/spacedatanetwork/sdn-swarm/internal/peers"
)

var log = logging.Logger("sdn-bootstrap")

// DefaultConcurrency bounds parallel registrations and dials.
const DefaultConcurrency = 8

// PeerInfo represents a bootstrap peer address.
type PeerInfo struct {
	// Addr is the parsed address
	Addr multiaddr.Multiaddr

	// ID is the pinned peer ID, empty when HasPinnedID is false
	ID peer.ID

	// HasPinnedID indicates whether the address ends with a peer ID.
	// Addresses without one cannot be registered.
	HasPinnedID bool

	// RawAddress is the original multiaddr string for logging
	RawAddress string
}

// ParseBootstrapAddress parses a single bootstrap multiaddress.
func ParseBootstrapAddress(addr string) (PeerInfo, error) {
	ma, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		return PeerInfo{}, fmt.Errorf("invalid multiaddr: %w", err)
	}

	info := PeerInfo{Addr: ma, RawAddress: addr}
	if id, err := peers.IdentityOf(ma); err == nil {
		info.ID = id
		info.HasPinnedID = true
	}
	return info, nil
}

// ParseBootstrapAddresses parses a list of bootstrap multiaddresses. Invalid
// entries are logged and skipped; addresses without a peer ID are kept but
// flagged.
func ParseBootstrapAddresses(addresses []string) []PeerInfo {
	infos := make([]PeerInfo, 0, len(addresses))

	for _, addr := range addresses {
		info, err := ParseBootstrapAddress(addr)
		if err != nil {
			log.Warnf("Invalid bootstrap address %s: %v", addr, err)
			continue
		}

		if !info.HasPinnedID {
			log.Warnf("Bootstrap address %s does not include a peer ID and will be ignored. "+
				"Please update to use format: %s/p2p/<PEER_ID>", addr, addr)
		}

		infos = append(infos, info)
	}

	return infos
}

// ValidateBootstrapConfig checks a list of bootstrap addresses and returns
// warnings about unusable entries.
func ValidateBootstrapConfig(addresses []string) []string {
	var warnings []string

	for _, addr := range addresses {
		info, err := ParseBootstrapAddress(addr)
		switch {
		case err != nil:
			warnings = append(warnings, fmt.Sprintf("Bootstrap address %q is invalid: %v", addr, err))
		case !info.HasPinnedID:
			warnings = append(warnings, fmt.Sprintf(
				"Bootstrap address %q lacks peer ID - update to format: %s/p2p/<PEER_ID>",
				addr, addr))
		}
	}

	return warnings
}

// Registrar registers discovered addresses.
type Registrar interface {
	RegisterPeer(ctx context.Context, addr multiaddr.Multiaddr) (bool, error)
}

// Connector connects to addresses.
type Connector interface {
	Connect(ctx context.Context, addr multiaddr.Multiaddr) error
}

// Result represents the outcome for one bootstrap peer.
type Result struct {
	PeerID  peer.ID
	Address string
	Success bool
	Error   error
}

// RegisterBootstrapPeers registers every pinned bootstrap address with r,
// at most concurrency at a time. Results are in input order. A registration
// that returns false (known or denied) is reported as unsuccessful without
// an error.
func RegisterBootstrapPeers(ctx context.Context, r Registrar, infos []PeerInfo, concurrency int) []Result {
	return run(ctx, infos, concurrency, func(ctx context.Context, p PeerInfo) (bool, error) {
		return r.RegisterPeer(ctx, p.Addr)
	})
}

// ConnectToBootstrapPeers connects to every pinned bootstrap address through
// c, at most concurrency at a time. Results are in input order.
func ConnectToBootstrapPeers(ctx context.Context, c Connector, infos []PeerInfo, concurrency int) []Result {
	return run(ctx, infos, concurrency, func(ctx context.Context, p PeerInfo) (bool, error) {
		if err := c.Connect(ctx, p.Addr); err != nil {
			log.Warnf("Failed to connect to bootstrap peer %s (%s): %v", p.ID.ShortString(), p.RawAddress, err)
			return false, err
		}
		log.Infof("Connected to bootstrap peer %s", p.ID.ShortString())
		return true, nil
	})
}

func run(ctx context.Context, infos []PeerInfo, concurrency int, fn func(context.Context, PeerInfo) (bool, error)) []Result {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	results := make([]Result, len(infos))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, p := range infos {
		results[i] = Result{PeerID: p.ID, Address: p.RawAddress}
		if !p.HasPinnedID {
			results[i].Error = peers.ErrMissingIdentity
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Error = err
				return nil
			}
			ok, err := fn(ctx, p)
			results[i].Success = ok
			results[i].Error = err
			return nil
		})
	}
	_ = g.Wait()

	return results
}
