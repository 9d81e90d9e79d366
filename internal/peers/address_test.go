package peers

import (
	"errors"
	"testing"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr error
	}{
		{
			name: "ipfs identity",
			addr: "/ip4/104.131.131.82/tcp/4001/ipfs/" + mars,
		},
		{
			name: "p2p identity",
			addr: "/ip4/104.131.131.82/tcp/4001/p2p/" + mars,
		},
		{
			name: "identity only",
			addr: "/ipfs/" + mars,
		},
		{
			name:    "no identity",
			addr:    "/ip4/104.131.131.82/tcp/4001",
			wantErr: ErrMissingIdentity,
		},
		{
			name:    "identity not last",
			addr:    "/ipfs/" + mars + "/tcp/4001",
			wantErr: ErrMissingIdentity,
		},
		{
			name:    "invalid multiaddr",
			addr:    "not-a-multiaddr",
			wantErr: ErrInvalidAddress,
		},
		{
			name:    "empty string",
			addr:    "",
			wantErr: ErrInvalidAddress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := ParseAddress(tt.addr)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseAddress(%q) error = %v, want %v", tt.addr, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAddress(%q) unexpected error: %v", tt.addr, err)
			}
			id, err := IdentityOf(addr)
			if err != nil {
				t.Fatalf("IdentityOf: %v", err)
			}
			if id.String() != mars {
				t.Errorf("identity = %s, want %s", id, mars)
			}
		})
	}
}

func TestIdentityOf_Nil(t *testing.T) {
	if _, err := IdentityOf(nil); !errors.Is(err, ErrMissingIdentity) {
		t.Errorf("IdentityOf(nil) error = %v, want ErrMissingIdentity", err)
	}
}

func TestAddrKey_AliasesShareKey(t *testing.T) {
	a := mustAddr(t, "/ip4/104.131.131.82/tcp/4001/ipfs/"+mars)
	b := mustAddr(t, "/ip4/104.131.131.82/tcp/4001/p2p/"+mars)
	if addrKey(a) != addrKey(b) {
		t.Error("/ipfs/ and /p2p/ spellings should share a key")
	}

	c := mustAddr(t, "/ip4/104.131.131.83/tcp/4001/p2p/"+mars)
	if addrKey(a) == addrKey(c) {
		t.Error("different transports should not share a key")
	}
}

func TestParseAddresses_SkipsInvalid(t *testing.T) {
	addrs := ParseAddresses([]string{
		"/ip4/10.0.0.1/tcp/4001/p2p/" + mars,
		"/ip4/10.0.0.1/tcp/4001",
		"garbage",
		"/dns4/node.example.com/tcp/4001/ipfs/" + mars,
	})
	if len(addrs) != 2 {
		t.Fatalf("Expected 2 addresses, got %d", len(addrs))
	}
}
