package swarm

import (
	"context"
	"fmt"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"github.com/multiformats/go-multiaddr"

	"github.com/spacedatanetwork/sdn-swarm/internal/peers"
)

var log = logging.Logger("sdn-swarm")

// Options configures a Swarm.
type Options struct {
	// StrictMode makes the default allow list deny everything while empty.
	// It applies to the list created by New and to the one Stop resets to.
	StrictMode bool

	// Transport dials and hangs up. Nil records connection intent only.
	Transport Transport

	// Metrics is optional.
	Metrics *Metrics
}

// Swarm manages the known peer addresses of the local node and the policy
// deciding which addresses may be used.
//
// No lock is held while a policy is evaluated or the transport is used, so
// both may call back into the swarm. Start and Stop bump a generation
// counter; an operation that began in an earlier generation does not touch
// the current state and reports ErrNotRunning.
type Swarm struct {
	opts Options

	mu        sync.RWMutex
	running   bool
	gen       uint64
	registry  *peers.AddressRegistry
	deny      peers.Policy
	allow     peers.Policy
	connected map[string]multiaddr.Multiaddr
}

// view is the state an operation works against.
type view struct {
	gen      uint64
	registry *peers.AddressRegistry
	policy   peers.Policy
}

// New creates a stopped swarm with an empty registry and default lists.
func New(opts Options) *Swarm {
	s := &Swarm{opts: opts}
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
	return s
}

func (s *Swarm) defaultAllowList() *peers.AllowList {
	if s.opts.StrictMode {
		return peers.NewStrictAllowList()
	}
	return peers.NewAllowList()
}

// resetLocked installs fresh state. Callers hold mu.
func (s *Swarm) resetLocked() {
	s.registry = peers.NewAddressRegistry()
	s.deny = peers.NewDenyList()
	s.allow = s.defaultAllowList()
	s.connected = make(map[string]multiaddr.Multiaddr)
	s.opts.Metrics.known(0)
}

// Start marks the swarm as running. Starting a running swarm does nothing.
func (s *Swarm) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	log.Debug("Starting")
	s.running = true
	s.gen++
	s.opts.Metrics.running(true)
}

// Stop discards every known address, connection intent and list entry, and
// marks the swarm as stopped. Operations still in flight complete against
// the discarded state. Stopping a stopped swarm does nothing.
func (s *Swarm) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	log.Debug("Stopping")
	s.resetLocked()
	s.running = false
	s.gen++
	s.opts.Metrics.running(false)
}

// IsRunning reports whether the swarm has been started and not stopped.
func (s *Swarm) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// DenyList returns the policy in the deny slot.
func (s *Swarm) DenyList() peers.Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deny
}

// SetDenyList replaces the deny slot. Any Policy may be installed, including
// one built with peers.All. Nil installs an empty deny list.
func (s *Swarm) SetDenyList(p peers.Policy) {
	if p == nil {
		p = peers.NewDenyList()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deny = p
}

// AllowList returns the policy in the allow slot.
func (s *Swarm) AllowList() peers.Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allow
}

// SetAllowList replaces the allow slot. Nil installs the default allow list
// for the swarm's strict mode.
func (s *Swarm) SetAllowList(p peers.Policy) {
	if p == nil {
		p = s.defaultAllowList()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allow = p
}

// current returns the running state, or ErrNotRunning.
func (s *Swarm) current() (view, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.running {
		return view{}, ErrNotRunning
	}
	return view{
		gen:      s.gen,
		registry: s.registry,
		policy:   peers.All(s.deny, s.allow),
	}, nil
}

// stale reports whether the generation gen has ended.
func (s *Swarm) stale(gen uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.running || s.gen != gen
}

// IsAllowed reports whether addr passes both the deny slot and the allow slot.
func (s *Swarm) IsAllowed(ctx context.Context, addr multiaddr.Multiaddr) (bool, error) {
	v, err := s.current()
	if err != nil {
		return false, err
	}
	return v.policy.IsAllowed(ctx, addr)
}

// IsDenied is the negation of IsAllowed.
func (s *Swarm) IsDenied(ctx context.Context, addr multiaddr.Multiaddr) (bool, error) {
	return peers.IsDenied(ctx, s, addr)
}

// RegisterPeer records that addr has been discovered. It returns true if the
// address was added, and false if it lacks a peer identity, is already known
// or is not allowed. Errors are ErrNotRunning or a context error.
func (s *Swarm) RegisterPeer(ctx context.Context, addr multiaddr.Multiaddr) (bool, error) {
	v, err := s.current()
	if err != nil {
		return false, err
	}

	added, err := v.registry.TryRegister(ctx, addr, v.policy)
	if err == nil && s.stale(v.gen) {
		// Stopped while the policy was evaluated.
		added, err = false, ErrNotRunning
	}
	switch {
	case err != nil:
		s.opts.Metrics.registration(outcomeError)
	case added:
		s.opts.Metrics.registration(outcomeRegistered)
		s.opts.Metrics.known(v.registry.Len())
	default:
		s.opts.Metrics.registration(outcomeRejected)
	}
	return added, err
}

// Connect registers addr as a known peer and, when a Transport is configured,
// dials it. A denied address fails with a *NotAllowedError. An address that
// is already known is not an error.
//
// If the dial fails the address stays registered but the connection intent
// is dropped.
func (s *Swarm) Connect(ctx context.Context, addr multiaddr.Multiaddr) error {
	v, err := s.current()
	if err != nil {
		return err
	}

	id, err := peers.IdentityOf(addr)
	if err != nil {
		s.opts.Metrics.connect(outcomeError)
		return fmt.Errorf("connect %s: %w", addr, err)
	}

	allowed, err := v.policy.IsAllowed(ctx, addr)
	if err != nil {
		s.opts.Metrics.connect(outcomeError)
		return err
	}
	if !allowed {
		log.Warnf("Not allowed %s", addr)
		s.opts.Metrics.connect(outcomeDenied)
		return &NotAllowedError{Addr: addr}
	}
	if err := ctx.Err(); err != nil {
		s.opts.Metrics.connect(outcomeError)
		return err
	}

	key := string(addr.Bytes())
	s.mu.Lock()
	if !s.running || s.gen != v.gen {
		s.mu.Unlock()
		s.opts.Metrics.connect(outcomeError)
		return ErrNotRunning
	}
	if v.registry.Add(addr) {
		log.Debugf("Registered %s", addr)
		s.opts.Metrics.known(v.registry.Len())
	}
	s.connected[key] = addr
	s.mu.Unlock()

	if s.opts.Transport != nil {
		info := peers.Peer{ID: id, Addrs: []multiaddr.Multiaddr{addr}}.AddrInfo()
		if err := s.opts.Transport.Dial(ctx, info); err != nil {
			s.dropIntent(v.gen, key)
			s.opts.Metrics.connect(outcomeError)
			return fmt.Errorf("dial %s: %w", addr, err)
		}
	}

	log.Debugf("Connected %s", addr)
	s.opts.Metrics.connect(outcomeConnected)
	return nil
}

// Disconnect drops the connection intent for addr and, when a Transport is
// configured, hangs up on the peer. The address stays registered.
func (s *Swarm) Disconnect(ctx context.Context, addr multiaddr.Multiaddr) error {
	v, err := s.current()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	id, err := peers.IdentityOf(addr)
	if err != nil {
		return fmt.Errorf("disconnect %s: %w", addr, err)
	}

	s.dropIntent(v.gen, string(addr.Bytes()))

	if s.opts.Transport != nil {
		if err := s.opts.Transport.Hangup(ctx, id); err != nil {
			return fmt.Errorf("hangup %s: %w", id.ShortString(), err)
		}
	}
	log.Debugf("Disconnected %s", addr)
	return nil
}

// dropIntent removes a connection intent recorded in generation gen.
func (s *Swarm) dropIntent(gen uint64, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		delete(s.connected, key)
	}
}

// KnownAddresses returns a snapshot of the registered addresses.
func (s *Swarm) KnownAddresses() []multiaddr.Multiaddr {
	s.mu.RLock()
	registry := s.registry
	s.mu.RUnlock()
	return registry.Addrs()
}

// KnownPeers groups the registered addresses by peer identity. It is
// recomputed on every call.
func (s *Swarm) KnownPeers() []peers.Peer {
	return peers.AggregatePeers(s.KnownAddresses())
}

// ConnectedAddresses returns the addresses with an outstanding connection
// intent.
func (s *Swarm) ConnectedAddresses() []multiaddr.Multiaddr {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addrs := make([]multiaddr.Multiaddr, 0, len(s.connected))
	for _, addr := range s.connected {
		addrs = append(addrs, addr)
	}
	return addrs
}

// Snapshot captures the registry and the entries of both slots for
// persistence. A slot holding something other than a list contributes no
// entries.
func (s *Swarm) Snapshot() *peers.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	deny, _ := s.deny.(*peers.DenyList)
	allow, _ := s.allow.(*peers.AllowList)
	snap := peers.TakeSnapshot(s.registry, deny, allow)
	if allow == nil {
		snap.StrictMode = s.opts.StrictMode
	}
	return snap
}

// Restore installs the lists held by snap and adds its addresses to the
// registry without evaluating policy. It returns the number of addresses
// added.
func (s *Swarm) Restore(snap *peers.Snapshot) (int, error) {
	deny, allow, err := snap.Lists()
	if err != nil {
		return 0, fmt.Errorf("restore lists: %w", err)
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return 0, ErrNotRunning
	}
	s.deny = deny
	s.allow = allow
	registry := s.registry
	s.mu.Unlock()

	added := registry.Restore(snap.Multiaddrs())
	s.opts.Metrics.known(registry.Len())
	log.Infof("Restored %d known addresses", added)
	return added, nil
}

var _ peers.Policy = (*Swarm)(nil)
