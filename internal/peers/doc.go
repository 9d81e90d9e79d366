// Package peers provides the address registry and allow/deny policies for the
// SDN swarm.
//
// # Addresses
//
// Peer addresses are multiaddrs whose last component names the remote peer,
// for example:
//
//	/ip4/104.131.131.82/tcp/4001/ipfs/QmaCpDMGvV2BGHeYERUEnRQAwe3N8SzbUtfsmvsqQLuvuJ
//
// The /ipfs/ and /p2p/ spellings decode to the same component, so both are
// accepted and compare equal. Addresses without a trailing identity component
// are never registered.
//
// # Policies
//
// A Policy answers whether an address may be used. DenyList and AllowList are
// both policies and can be composed with All:
//
//	deny := peers.NewDenyList()
//	allow := peers.NewAllowList()
//	policy := peers.All(deny, allow)
//
//	ok, err := policy.IsAllowed(ctx, addr)
//
// An empty DenyList denies nothing. An empty AllowList allows everything
// unless it was created with NewStrictAllowList, in which case it allows
// nothing until entries are added.
//
// # Registry
//
// AddressRegistry holds the set of known addresses. TryRegister validates the
// address, skips known addresses, evaluates the policy and inserts the address
// only if no concurrent caller got there first:
//
//	registry := peers.NewAddressRegistry()
//	added, err := registry.TryRegister(ctx, addr, policy)
//
// AggregatePeers groups a snapshot of addresses by peer identity.
//
// # Connection Gater
//
// PolicyGater implements libp2p's ConnectionGater on top of a Policy, so the
// same deny/allow configuration also applies at the transport layer:
//
//	gater := peers.NewPolicyGater(policy, time.Second)
//	host, _ := libp2p.New(libp2p.ConnectionGater(gater))
package peers
