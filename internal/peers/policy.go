package peers

import (
	"context"

	"github.com/multiformats/go-multiaddr"
)

// Policy decides whether an address may be used. Implementations may block,
// for example on an external reputation lookup, and must honour ctx.
//
// A denial is reported as false with a nil error. A non-nil error means no
// decision was reached (cancellation, failed lookup).
type Policy interface {
	IsAllowed(ctx context.Context, addr multiaddr.Multiaddr) (bool, error)
}

// PolicyFunc adapts a function to the Policy interface.
type PolicyFunc func(ctx context.Context, addr multiaddr.Multiaddr) (bool, error)

// IsAllowed calls f(ctx, addr).
func (f PolicyFunc) IsAllowed(ctx context.Context, addr multiaddr.Multiaddr) (bool, error) {
	return f(ctx, addr)
}

// IsDenied is the negation of p.IsAllowed. Errors are passed through
// unchanged; an undecided address is neither allowed nor denied.
func IsDenied(ctx context.Context, p Policy, addr multiaddr.Multiaddr) (bool, error) {
	ok, err := p.IsAllowed(ctx, addr)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

type allPolicy []Policy

// All returns a Policy that allows an address only if every policy allows it.
// Policies are evaluated in order and evaluation stops at the first denial or
// error. All() with no policies allows everything.
func All(policies ...Policy) Policy {
	return allPolicy(policies)
}

func (a allPolicy) IsAllowed(ctx context.Context, addr multiaddr.Multiaddr) (bool, error) {
	for _, p := range a {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		ok, err := p.IsAllowed(ctx, addr)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}
