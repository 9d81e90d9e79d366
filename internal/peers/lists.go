package peers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// addrSet matches addresses either exactly or by peer identity.
type addrSet struct {
	mu    sync.RWMutex
	addrs map[string]multiaddr.Multiaddr
	ids   map[peer.ID]struct{}
}

func newAddrSet() *addrSet {
	return &addrSet{
		addrs: make(map[string]multiaddr.Multiaddr),
		ids:   make(map[peer.ID]struct{}),
	}
}

func (s *addrSet) add(addr multiaddr.Multiaddr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addrs[addrKey(addr)] = addr
}

func (s *addrSet) remove(addr multiaddr.Multiaddr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := addrKey(addr)
	if _, ok := s.addrs[key]; !ok {
		return false
	}
	delete(s.addrs, key)
	return true
}

func (s *addrSet) addPeer(id peer.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = struct{}{}
}

func (s *addrSet) removePeer(id peer.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; !ok {
		return false
	}
	delete(s.ids, id)
	return true
}

func (s *addrSet) contains(addr multiaddr.Multiaddr) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.addrs[addrKey(addr)]
	return ok
}

func (s *addrSet) containsPeer(id peer.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// matches reports whether addr is listed, either by value or by identity.
func (s *addrSet) matches(addr multiaddr.Multiaddr) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.addrs[addrKey(addr)]; ok {
		return true
	}
	if id, err := IdentityOf(addr); err == nil {
		_, ok := s.ids[id]
		return ok
	}
	return false
}

func (s *addrSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.addrs) + len(s.ids)
}

// entries returns the listed addresses and peer IDs as strings.
func (s *addrSet) entries() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.addrs)+len(s.ids))
	for _, addr := range s.addrs {
		out = append(out, addr.String())
	}
	for id := range s.ids {
		out = append(out, id.String())
	}
	return out
}

// addEntries adds multiaddr or bare peer ID strings.
func (s *addrSet) addEntries(entries []string) error {
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.HasPrefix(e, "/") {
			addr, err := multiaddr.NewMultiaddr(e)
			if err != nil {
				return fmt.Errorf("%w %q: %v", ErrInvalidAddress, e, err)
			}
			s.add(addr)
			continue
		}
		id, err := peer.Decode(e)
		if err != nil {
			return fmt.Errorf("invalid peer ID %q: %w", e, err)
		}
		s.addPeer(id)
	}
	return nil
}

// DenyList is a Policy that refuses listed addresses and identities. An empty
// DenyList denies nothing.
type DenyList struct {
	set *addrSet
}

// NewDenyList creates an empty DenyList.
func NewDenyList() *DenyList {
	return &DenyList{set: newAddrSet()}
}

// NewDenyListFromEntries creates a DenyList from multiaddr or peer ID strings.
func NewDenyListFromEntries(entries []string) (*DenyList, error) {
	d := NewDenyList()
	if err := d.set.addEntries(entries); err != nil {
		return nil, err
	}
	return d, nil
}

// IsAllowed implements Policy.
func (d *DenyList) IsAllowed(ctx context.Context, addr multiaddr.Multiaddr) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if d.set.matches(addr) {
		log.Debugf("Denied %s: on deny list", addr)
		return false, nil
	}
	return true, nil
}

// Add denies an exact address.
func (d *DenyList) Add(addr multiaddr.Multiaddr) { d.set.add(addr) }

// Remove lifts the denial of an exact address.
func (d *DenyList) Remove(addr multiaddr.Multiaddr) bool { return d.set.remove(addr) }

// AddPeer denies every address of a peer.
func (d *DenyList) AddPeer(id peer.ID) {
	d.set.addPeer(id)
	log.Infof("Denied peer: %s", id.ShortString())
}

// RemovePeer lifts a peer-wide denial.
func (d *DenyList) RemovePeer(id peer.ID) bool { return d.set.removePeer(id) }

// Contains reports whether the exact address is listed.
func (d *DenyList) Contains(addr multiaddr.Multiaddr) bool { return d.set.contains(addr) }

// ContainsPeer reports whether the identity is listed.
func (d *DenyList) ContainsPeer(id peer.ID) bool { return d.set.containsPeer(id) }

// Len returns the number of entries.
func (d *DenyList) Len() int { return d.set.len() }

// Entries returns the entries as strings.
func (d *DenyList) Entries() []string { return d.set.entries() }

// AllowList is a Policy that only admits listed addresses and identities.
//
// An empty AllowList admits everything, so that an unconfigured node can
// still find peers. A strict AllowList admits nothing until populated.
type AllowList struct {
	set    *addrSet
	strict bool
}

// NewAllowList creates an empty AllowList that allows all addresses while it
// has no entries.
func NewAllowList() *AllowList {
	return &AllowList{set: newAddrSet()}
}

// NewStrictAllowList creates an empty AllowList that denies all addresses
// while it has no entries.
func NewStrictAllowList() *AllowList {
	return &AllowList{set: newAddrSet(), strict: true}
}

// NewAllowListFromEntries creates an AllowList from multiaddr or peer ID
// strings.
func NewAllowListFromEntries(entries []string, strict bool) (*AllowList, error) {
	a := &AllowList{set: newAddrSet(), strict: strict}
	if err := a.set.addEntries(entries); err != nil {
		return nil, err
	}
	return a, nil
}

// IsAllowed implements Policy.
func (a *AllowList) IsAllowed(ctx context.Context, addr multiaddr.Multiaddr) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if a.set.len() == 0 {
		if a.strict {
			log.Debugf("Denied %s: allow list is empty (strict mode)", addr)
		}
		return !a.strict, nil
	}
	if !a.set.matches(addr) {
		log.Debugf("Denied %s: not on allow list", addr)
		return false, nil
	}
	return true, nil
}

// Strict reports whether an empty list denies everything.
func (a *AllowList) Strict() bool { return a.strict }

// Add allows an exact address.
func (a *AllowList) Add(addr multiaddr.Multiaddr) { a.set.add(addr) }

// Remove drops an exact address.
func (a *AllowList) Remove(addr multiaddr.Multiaddr) bool { return a.set.remove(addr) }

// AddPeer allows every address of a peer.
func (a *AllowList) AddPeer(id peer.ID) { a.set.addPeer(id) }

// RemovePeer drops a peer-wide entry.
func (a *AllowList) RemovePeer(id peer.ID) bool { return a.set.removePeer(id) }

// Contains reports whether the exact address is listed.
func (a *AllowList) Contains(addr multiaddr.Multiaddr) bool { return a.set.contains(addr) }

// ContainsPeer reports whether the identity is listed.
func (a *AllowList) ContainsPeer(id peer.ID) bool { return a.set.containsPeer(id) }

// Len returns the number of entries.
func (a *AllowList) Len() int { return a.set.len() }

// Entries returns the entries as strings.
func (a *AllowList) Entries() []string { return a.set.entries() }

var (
	_ Policy = (*DenyList)(nil)
	_ Policy = (*AllowList)(nil)
)
