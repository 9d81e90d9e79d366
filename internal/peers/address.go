package peers

import (
	"errors"
	"fmt"

	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

var log = logging.Logger("sdn-peers")

// IdentityProtocol is the multiaddr protocol that must terminate every
// registrable address. "/ipfs/" is an alias of "/p2p/" and decodes to the
// same code.
const IdentityProtocol = multiaddr.P_P2P

// Errors
var (
	ErrMissingIdentity = errors.New("address does not end with a peer identity")
	ErrInvalidAddress  = errors.New("invalid multiaddr")
)

// ParseAddress parses a multiaddr string and checks that it ends with a peer
// identity component.
func ParseAddress(s string) (multiaddr.Multiaddr, error) {
	addr, err := multiaddr.NewMultiaddr(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if _, err := IdentityOf(addr); err != nil {
		return nil, err
	}
	return addr, nil
}

// ParseAddresses parses every string, skipping (and logging) the ones that are
// not valid peer addresses.
func ParseAddresses(strs []string) []multiaddr.Multiaddr {
	addrs := make([]multiaddr.Multiaddr, 0, len(strs))
	for _, s := range strs {
		addr, err := ParseAddress(s)
		if err != nil {
			log.Warnf("Skipping address %q: %v", s, err)
			continue
		}
		addrs = append(addrs, addr)
	}
	return addrs
}

// IdentityOf returns the peer identity carried by the last component of addr.
func IdentityOf(addr multiaddr.Multiaddr) (peer.ID, error) {
	if addr == nil {
		return "", ErrMissingIdentity
	}
	_, last := multiaddr.SplitLast(addr)
	if last == nil || last.Protocol().Code != IdentityProtocol {
		return "", ErrMissingIdentity
	}
	id, err := peer.IDFromBytes(last.RawValue())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMissingIdentity, err)
	}
	return id, nil
}

// HasIdentity reports whether addr ends with a peer identity component.
func HasIdentity(addr multiaddr.Multiaddr) bool {
	_, err := IdentityOf(addr)
	return err == nil
}

// addrKey is the map key for an address. The binary form is canonical, so
// textual aliases of one address share a key.
func addrKey(addr multiaddr.Multiaddr) string {
	return string(addr.Bytes())
}

func multiaddrsToStrings(addrs []multiaddr.Multiaddr) []string {
	strs := make([]string, len(addrs))
	for i, addr := range addrs {
		strs[i] = addr.String()
	}
	return strs
}
