package peers

import (
	"encoding/json"
	"sort"

	"github.com/ipfs/go-cid"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// Peer is a remote node and the known addresses that end with its identity.
// Peers are derived from the registry on demand and never stored.
type Peer struct {
	// ID is the libp2p peer ID
	ID peer.ID

	// Addrs are the full addresses, including the trailing identity component
	Addrs []multiaddr.Multiaddr
}

// AddrInfo returns the peer in the form libp2p dials: the identity plus the
// transport part of each address.
func (p Peer) AddrInfo() peer.AddrInfo {
	info := peer.AddrInfo{ID: p.ID}
	for _, addr := range p.Addrs {
		transport, _ := peer.SplitAddr(addr)
		if transport != nil {
			info.Addrs = append(info.Addrs, transport)
		}
	}
	return info
}

// CID returns the peer identity as a libp2p-key CID.
func (p Peer) CID() cid.Cid {
	return peer.ToCid(p.ID)
}

// MarshalJSON implements json.Marshaler for Peer.
func (p Peer) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID    string   `json:"id"`
		Addrs []string `json:"addrs"`
	}{
		ID:    p.ID.String(),
		Addrs: multiaddrsToStrings(p.Addrs),
	})
}

// AggregatePeers groups addrs by the identity in their last component. One
// Peer is returned per distinct identity, sorted by ID; addresses keep their
// input order. Addresses without an identity are skipped.
func AggregatePeers(addrs []multiaddr.Multiaddr) []Peer {
	byID := make(map[peer.ID]*Peer)
	for _, addr := range addrs {
		id, err := IdentityOf(addr)
		if err != nil {
			log.Errorf("Cannot group %s: %v", addr, err)
			continue
		}
		if existing, ok := byID[id]; ok {
			existing.Addrs = append(existing.Addrs, addr)
		} else {
			byID[id] = &Peer{ID: id, Addrs: []multiaddr.Multiaddr{addr}}
		}
	}

	peers := make([]Peer, 0, len(byID))
	for _, p := range byID {
		peers = append(peers, *p)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].ID < peers[j].ID })
	return peers
}

// Peers groups the current registry snapshot by peer identity.
func (r *AddressRegistry) Peers() []Peer {
	return AggregatePeers(r.Addrs())
}
