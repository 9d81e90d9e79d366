package peers

import (
	"context"
	"sync"

	"github.com/multiformats/go-multiaddr"
)

// AddressRegistry is the set of known peer addresses. Each address is stored
// at most once.
type AddressRegistry struct {
	mu    sync.RWMutex
	addrs map[string]multiaddr.Multiaddr
}

// NewAddressRegistry creates an empty registry.
func NewAddressRegistry() *AddressRegistry {
	return &AddressRegistry{
		addrs: make(map[string]multiaddr.Multiaddr),
	}
}

// Add inserts addr if it is not already present and reports whether it did.
// Identity is not checked here; use TryRegister for untrusted input.
func (r *AddressRegistry) Add(addr multiaddr.Multiaddr) bool {
	key := addrKey(addr)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.addrs[key]; exists {
		return false
	}
	r.addrs[key] = addr
	return true
}

// TryRegister adds addr to the registry if it carries a peer identity, is not
// yet known and is allowed by policy.
//
// It returns false with a nil error for malformed, known and denied addresses.
// A non-nil error means the policy could not decide (for example ctx was
// cancelled); the registry is left untouched in that case.
//
// The policy is evaluated without holding the lock. When several callers
// register the same address concurrently, exactly one of them inserts it.
func (r *AddressRegistry) TryRegister(ctx context.Context, addr multiaddr.Multiaddr, policy Policy) (bool, error) {
	if !HasIdentity(addr) {
		log.Errorf("'%s' missing peer identity protocol", addr)
		return false, nil
	}

	if r.Contains(addr) {
		log.Debugf("Already registered %s", addr)
		return false, nil
	}

	allowed, err := policy.IsAllowed(ctx, addr)
	if err != nil {
		return false, err
	}
	if !allowed {
		log.Warnf("Not allowed %s", addr)
		return false, nil
	}

	// Do not insert on behalf of a caller that has given up.
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if !r.Add(addr) {
		log.Debugf("Already registered %s", addr)
		return false, nil
	}
	log.Debugf("Registered %s", addr)
	return true, nil
}

// Restore bulk-loads addresses without consulting any policy. Addresses that
// lack a peer identity are skipped. It returns the number of addresses added.
func (r *AddressRegistry) Restore(addrs []multiaddr.Multiaddr) int {
	added := 0
	for _, addr := range addrs {
		if !HasIdentity(addr) {
			log.Warnf("Skipping restored address %s: missing peer identity", addr)
			continue
		}
		if r.Add(addr) {
			added++
		}
	}
	return added
}

// Contains reports whether addr is registered.
func (r *AddressRegistry) Contains(addr multiaddr.Multiaddr) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.addrs[addrKey(addr)]
	return exists
}

// Addrs returns a snapshot of the registered addresses in no particular order.
func (r *AddressRegistry) Addrs() []multiaddr.Multiaddr {
	r.mu.RLock()
	defer r.mu.RUnlock()

	addrs := make([]multiaddr.Multiaddr, 0, len(r.addrs))
	for _, addr := range r.addrs {
		addrs = append(addrs, addr)
	}
	return addrs
}

// Len returns the number of registered addresses.
func (r *AddressRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.addrs)
}

// Reset removes every address.
func (r *AddressRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addrs = make(map[string]multiaddr.Multiaddr)
}
