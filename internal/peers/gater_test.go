package peers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/multiformats/go-multiaddr"
)

type connAddrs struct {
	local, remote multiaddr.Multiaddr
}

func (c connAddrs) LocalMultiaddr() multiaddr.Multiaddr  { return c.local }
func (c connAddrs) RemoteMultiaddr() multiaddr.Multiaddr { return c.remote }

func TestPolicyGater_InterceptAddrDial(t *testing.T) {
	id := testPeerID(t, "dial")
	transport := mustAddr(t, "/ip4/10.0.0.1/tcp/4001")

	deny := NewDenyList()
	gater := NewPolicyGater(All(deny, NewAllowList()), time.Second)

	if !gater.InterceptPeerDial(id) {
		t.Error("InterceptPeerDial should defer to InterceptAddrDial")
	}
	if !gater.InterceptAddrDial(id, transport) {
		t.Error("Should allow dial with permissive policy")
	}

	deny.Add(peerAddr(t, "/ip4/10.0.0.1/tcp/4001", id))
	if gater.InterceptAddrDial(id, transport) {
		t.Error("Should reject dial to a denied address")
	}
	if !gater.InterceptAddrDial(id, mustAddr(t, "/ip4/10.0.0.2/tcp/4001")) {
		t.Error("Should allow dial to another address of the peer")
	}
}

func TestPolicyGater_InterceptSecured(t *testing.T) {
	id := testPeerID(t, "inbound")
	remote := mustAddr(t, "/ip4/10.0.0.9/tcp/50000")
	addrs := connAddrs{local: mustAddr(t, "/ip4/0.0.0.0/tcp/4001"), remote: remote}

	deny := NewDenyList()
	deny.AddPeer(id)
	gater := NewPolicyGater(deny, 0)

	if !gater.InterceptAccept(addrs) {
		t.Error("InterceptAccept should always return true")
	}
	if gater.InterceptSecured(network.DirInbound, id, addrs) {
		t.Error("Should reject inbound connection from denied peer")
	}
	if !gater.InterceptSecured(network.DirOutbound, id, addrs) {
		t.Error("Outbound connections are decided at dial time")
	}
	if !gater.InterceptSecured(network.DirInbound, testPeerID(t, "someone"), addrs) {
		t.Error("Should accept inbound connection from other peers")
	}
}

func TestPolicyGater_BlockedCallback(t *testing.T) {
	id := testPeerID(t, "callback")
	boom := errors.New("reputation service unavailable")
	failing := PolicyFunc(func(context.Context, multiaddr.Multiaddr) (bool, error) { return false, boom })
	gater := NewPolicyGater(failing, time.Second)

	var blockedAddr multiaddr.Multiaddr
	var blockedReason string
	gater.SetBlockedCallback(func(addr multiaddr.Multiaddr, reason string) {
		blockedAddr = addr
		blockedReason = reason
	})

	if gater.InterceptAddrDial(id, mustAddr(t, "/ip4/10.0.0.1/tcp/4001")) {
		t.Fatal("Undecided policy should block")
	}
	if blockedReason != "policy error" {
		t.Errorf("Callback reason mismatch: got %q", blockedReason)
	}
	if got, err := IdentityOf(blockedAddr); err != nil || got != id {
		t.Errorf("Callback address should end with the dialed peer, got %v", blockedAddr)
	}
}
