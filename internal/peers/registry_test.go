package peers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/multiformats/go-multiaddr"
	"golang.org/x/sync/errgroup"
)

func permissive() Policy {
	return All(NewDenyList(), NewAllowList())
}

func TestTryRegister_Twice(t *testing.T) {
	ctx := context.Background()
	r := NewAddressRegistry()
	a := mustAddr(t, "/ip4/104.131.131.82/tcp/4001/ipfs/"+mars)

	ok, err := r.TryRegister(ctx, a, permissive())
	if err != nil || !ok {
		t.Fatalf("first registration: got (%v, %v), want (true, nil)", ok, err)
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}

	ok, err = r.TryRegister(ctx, a, permissive())
	if err != nil || ok {
		t.Fatalf("second registration: got (%v, %v), want (false, nil)", ok, err)
	}

	// Same address, other spelling
	alias := mustAddr(t, "/ip4/104.131.131.82/tcp/4001/p2p/"+mars)
	if ok, _ := r.TryRegister(ctx, alias, permissive()); ok {
		t.Error("alias of a registered address should not register")
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestTryRegister_DuplicateSkipsPolicy(t *testing.T) {
	ctx := context.Background()
	r := NewAddressRegistry()
	a := mustAddr(t, "/ip4/10.0.0.1/tcp/4001/p2p/"+mars)
	r.Add(a)

	var calls int32
	counting := PolicyFunc(func(context.Context, multiaddr.Multiaddr) (bool, error) {
		atomic.AddInt32(&calls, 1)
		return true, nil
	})
	if ok, _ := r.TryRegister(ctx, a, counting); ok {
		t.Error("known address should not register again")
	}
	if calls != 0 {
		t.Errorf("policy consulted %d times for a known address", calls)
	}
}

func TestTryRegister_MissingIdentity(t *testing.T) {
	ctx := context.Background()
	r := NewAddressRegistry()

	allowAll := PolicyFunc(func(context.Context, multiaddr.Multiaddr) (bool, error) { return true, nil })
	for _, s := range []string{
		"/ip4/10.0.0.1/tcp/4001",
		"/ipfs/" + mars + "/tcp/4001",
		"/dns4/example.com",
	} {
		ok, err := r.TryRegister(ctx, mustAddr(t, s), allowAll)
		if err != nil || ok {
			t.Errorf("TryRegister(%s) = (%v, %v), want (false, nil)", s, ok, err)
		}
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestTryRegister_Denied(t *testing.T) {
	ctx := context.Background()
	r := NewAddressRegistry()
	a := mustAddr(t, "/ip4/10.0.0.1/tcp/4001/p2p/"+mars)

	deny := NewDenyList()
	deny.Add(a)

	ok, err := r.TryRegister(ctx, a, All(deny, NewAllowList()))
	if err != nil || ok {
		t.Fatalf("got (%v, %v), want (false, nil)", ok, err)
	}
	for _, known := range r.Addrs() {
		if known.Equal(a) {
			t.Fatal("denied address must not be registered")
		}
	}
}

func TestTryRegister_Cancelled(t *testing.T) {
	r := NewAddressRegistry()
	a := mustAddr(t, "/ip4/10.0.0.1/tcp/4001/p2p/"+mars)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err := r.TryRegister(ctx, a, permissive())
	if !errors.Is(err, context.Canceled) || ok {
		t.Fatalf("got (%v, %v), want (false, context.Canceled)", ok, err)
	}

	// Cancelled while the policy is still deciding
	ctx, cancel = context.WithCancel(context.Background())
	slow := PolicyFunc(func(ctx context.Context, _ multiaddr.Multiaddr) (bool, error) {
		cancel()
		<-ctx.Done()
		return false, ctx.Err()
	})
	ok, err = r.TryRegister(ctx, a, slow)
	if !errors.Is(err, context.Canceled) || ok {
		t.Fatalf("got (%v, %v), want (false, context.Canceled)", ok, err)
	}

	// Cancelled after a policy that ignores ctx said yes
	ctx, cancel = context.WithCancel(context.Background())
	late := PolicyFunc(func(context.Context, multiaddr.Multiaddr) (bool, error) {
		cancel()
		return true, nil
	})
	ok, err = r.TryRegister(ctx, a, late)
	if !errors.Is(err, context.Canceled) || ok {
		t.Fatalf("got (%v, %v), want (false, context.Canceled)", ok, err)
	}

	if r.Len() != 0 {
		t.Errorf("cancelled registrations must not mutate the registry, Len = %d", r.Len())
	}
}

func TestTryRegister_Concurrent(t *testing.T) {
	const callers = 64

	r := NewAddressRegistry()
	a := mustAddr(t, "/ip4/10.0.0.1/tcp/4001/p2p/"+mars)

	// Hold every caller inside the policy until all of them have passed the
	// membership check.
	var arrived sync.WaitGroup
	arrived.Add(callers)
	gate := PolicyFunc(func(context.Context, multiaddr.Multiaddr) (bool, error) {
		arrived.Done()
		arrived.Wait()
		return true, nil
	})

	var wins int32
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			ok, err := r.TryRegister(ctx, a, gate)
			if ok {
				atomic.AddInt32(&wins, 1)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if wins != 1 {
		t.Errorf("%d callers registered the address, want exactly 1", wins)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestAddressRegistry_RestoreReset(t *testing.T) {
	r := NewAddressRegistry()
	id := testPeerID(t, "restore")
	added := r.Restore([]multiaddr.Multiaddr{
		peerAddr(t, "/ip4/10.0.0.1/tcp/4001", id),
		peerAddr(t, "/ip4/10.0.0.1/tcp/4001", id),
		peerAddr(t, "/ip4/10.0.0.2/tcp/4001", id),
		mustAddr(t, "/ip4/10.0.0.3/tcp/4001"),
	})
	if added != 2 {
		t.Errorf("Restore added %d, want 2", added)
	}

	r.Reset()
	if r.Len() != 0 || len(r.Addrs()) != 0 {
		t.Error("Reset should empty the registry")
	}
}
