// Package swarm tracks the remote nodes a local SDN node knows about and
// decides which of them it may register or connect to.
//
// A Swarm owns an address registry and two policy slots, a deny slot and an
// allow slot, holding a deny list and an allow list by default. An address is
// allowed only if both slots allow it. Either slot can be replaced at any time
// with any peers.Policy through SetDenyList and SetAllowList.
//
//	s := swarm.New(swarm.Options{})
//	s.Start()
//	defer s.Stop()
//
//	added, err := s.RegisterPeer(ctx, addr)
//	err = s.Connect(ctx, addr) // errors.Is(err, swarm.ErrNotAllowed) on denial
//
// Stop is a full reset: the registry is emptied and both lists are replaced
// with empty defaults. Operations other than the read views fail with
// ErrNotRunning while the swarm is stopped.
//
// Network dialing is delegated to a Transport. HostTransport adapts a libp2p
// host; without a Transport, Connect and Disconnect only record intent.
package swarm
