package swarm

import (
	"errors"
	"fmt"

	"github.com/multiformats/go-multiaddr"
)

// Errors
var (
	ErrNotRunning = errors.New("swarm is not running")
	ErrNotAllowed = errors.New("communication not allowed")
)

// NotAllowedError is returned by Connect when the policy denies an address.
// It matches ErrNotAllowed with errors.Is.
type NotAllowedError struct {
	Addr multiaddr.Multiaddr
}

func (e *NotAllowedError) Error() string {
	return fmt.Sprintf("communication with '%s' is not allowed", e.Addr)
}

func (e *NotAllowedError) Unwrap() error { return ErrNotAllowed }
