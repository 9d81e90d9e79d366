package peers

import (
	"fmt"
	"strings"
)

// PolicyConfig holds configuration for the deny and allow lists.
type PolicyConfig struct {
	// DenyList entries are multiaddrs (denied exactly) or peer IDs (all
	// addresses of the peer are denied).
	DenyList []string

	// AllowList entries use the same format as DenyList.
	AllowList []string

	// StrictMode makes an empty allow list deny every address instead of
	// allowing every address.
	StrictMode bool
}

// NewLists builds the deny and allow lists described by cfg.
func NewLists(cfg PolicyConfig) (*DenyList, *AllowList, error) {
	deny, err := NewDenyListFromEntries(cfg.DenyList)
	if err != nil {
		return nil, nil, fmt.Errorf("deny list: %w", err)
	}
	allow, err := NewAllowListFromEntries(cfg.AllowList, cfg.StrictMode)
	if err != nil {
		return nil, nil, fmt.Errorf("allow list: %w", err)
	}
	return deny, allow, nil
}

// NewPersistence returns the persistence provider for path: SQLite for a
// ".db" file, JSON otherwise. An empty path means no persistence.
func NewPersistence(path string) (PersistenceProvider, error) {
	if path == "" {
		return nil, nil
	}
	if strings.HasSuffix(path, ".db") {
		sp, err := NewSQLitePersistence(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite persistence: %w", err)
		}
		return sp, nil
	}
	return NewJSONFilePersistence(path), nil
}
