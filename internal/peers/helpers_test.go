package peers

import (
	"testing"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	mh "github.com/multiformats/go-multihash"
)

// Well-known bootstrap node identity.
const mars = "QmaCpDMGvV2BGHeYERUEnRQAwe3N8SzbUtfsmvsqQLuvuJ"

// testPeerID derives a stable peer ID from seed.
func testPeerID(t testing.TB, seed string) peer.ID {
	t.Helper()
	h, err := mh.Sum([]byte(seed), mh.SHA2_256, -1)
	if err != nil {
		t.Fatalf("mh.Sum: %v", err)
	}
	return peer.ID(h)
}

func mustAddr(t testing.TB, s string) multiaddr.Multiaddr {
	t.Helper()
	addr, err := multiaddr.NewMultiaddr(s)
	if err != nil {
		t.Fatalf("NewMultiaddr(%q): %v", s, err)
	}
	return addr
}

func peerAddr(t testing.TB, transport string, id peer.ID) multiaddr.Multiaddr {
	t.Helper()
	return mustAddr(t, transport+"/p2p/"+id.String())
}
