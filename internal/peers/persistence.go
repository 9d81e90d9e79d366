package peers

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/multiformats/go-multiaddr"
)

// Snapshot is the persisted form of a registry and its policy lists.
type Snapshot struct {
	Addrs      []string  `json:"addrs"`
	Deny       []string  `json:"deny,omitempty"`
	Allow      []string  `json:"allow,omitempty"`
	StrictMode bool      `json:"strict_mode,omitempty"`
	SavedAt    time.Time `json:"saved_at"`
}

// TakeSnapshot captures the registry contents and both lists. Entries are
// sorted so that repeated saves of the same state are identical.
// A nil list contributes no entries.
func TakeSnapshot(r *AddressRegistry, deny *DenyList, allow *AllowList) *Snapshot {
	s := &Snapshot{
		Addrs:   multiaddrsToStrings(r.Addrs()),
		SavedAt: time.Now(),
	}
	if deny != nil {
		s.Deny = deny.Entries()
	}
	if allow != nil {
		s.Allow = allow.Entries()
		s.StrictMode = allow.Strict()
	}
	sort.Strings(s.Addrs)
	sort.Strings(s.Deny)
	sort.Strings(s.Allow)
	return s
}

// Multiaddrs returns the snapshot's addresses, skipping unparsable entries.
func (s *Snapshot) Multiaddrs() []multiaddr.Multiaddr {
	return stringsToMultiaddrs(s.Addrs)
}

// Lists rebuilds the deny and allow lists held by the snapshot.
func (s *Snapshot) Lists() (*DenyList, *AllowList, error) {
	deny, err := NewDenyListFromEntries(s.Deny)
	if err != nil {
		return nil, nil, err
	}
	allow, err := NewAllowListFromEntries(s.Allow, s.StrictMode)
	if err != nil {
		return nil, nil, err
	}
	return deny, allow, nil
}

// PersistenceProvider is an interface for persisting registry snapshots.
type PersistenceProvider interface {
	Save(s *Snapshot) error
	Load() (*Snapshot, error)
}

// SQLitePersistence provides SQLite-based persistence for the address registry.
type SQLitePersistence struct {
	db   *sql.DB
	path string
}

// NewSQLitePersistence creates a new SQLite persistence provider.
func NewSQLitePersistence(dbPath string) (*SQLitePersistence, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	sp := &SQLitePersistence{
		db:   db,
		path: dbPath,
	}

	if err := sp.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return sp, nil
}

// initialize creates the required tables.
func (sp *SQLitePersistence) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS known_addrs (
		addr TEXT PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS policy_entries (
		list TEXT NOT NULL,
		entry TEXT NOT NULL,
		PRIMARY KEY (list, entry)
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`

	_, err := sp.db.Exec(schema)
	return err
}

// Save replaces the stored snapshot.
func (sp *SQLitePersistence) Save(s *Snapshot) error {
	tx, err := sp.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM known_addrs`,
		`DELETE FROM policy_entries`,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	for _, addr := range s.Addrs {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO known_addrs (addr) VALUES (?)`, addr); err != nil {
			return err
		}
	}
	for list, entries := range map[string][]string{"deny": s.Deny, "allow": s.Allow} {
		for _, e := range entries {
			if _, err := tx.Exec(`INSERT OR IGNORE INTO policy_entries (list, entry) VALUES (?, ?)`, list, e); err != nil {
				return err
			}
		}
	}

	strict := "false"
	if s.StrictMode {
		strict = "true"
	}
	settings := map[string]string{
		"strict_mode": strict,
		"saved_at":    s.SavedAt.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range settings {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)`, k, v); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Load reads the stored snapshot. An empty database yields an empty snapshot.
func (sp *SQLitePersistence) Load() (*Snapshot, error) {
	s := &Snapshot{}

	rows, err := sp.db.Query(`SELECT addr FROM known_addrs ORDER BY addr`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			continue
		}
		s.Addrs = append(s.Addrs, addr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	entryRows, err := sp.db.Query(`SELECT list, entry FROM policy_entries ORDER BY list, entry`)
	if err != nil {
		return nil, err
	}
	defer entryRows.Close()

	for entryRows.Next() {
		var list, entry string
		if err := entryRows.Scan(&list, &entry); err != nil {
			continue
		}
		switch list {
		case "deny":
			s.Deny = append(s.Deny, entry)
		case "allow":
			s.Allow = append(s.Allow, entry)
		}
	}
	if err := entryRows.Err(); err != nil {
		return nil, err
	}

	settingRows, err := sp.db.Query(`SELECT key, value FROM settings`)
	if err != nil {
		return nil, err
	}
	defer settingRows.Close()

	for settingRows.Next() {
		var key string
		var value sql.NullString
		if err := settingRows.Scan(&key, &value); err != nil {
			continue
		}
		switch key {
		case "strict_mode":
			s.StrictMode = value.String == "true"
		case "saved_at":
			if t, err := time.Parse(time.RFC3339Nano, value.String); err == nil {
				s.SavedAt = t
			}
		}
	}

	return s, settingRows.Err()
}

// Close closes the database connection.
func (sp *SQLitePersistence) Close() error {
	return sp.db.Close()
}

// Helper functions

func stringsToMultiaddrs(strs []string) []multiaddr.Multiaddr {
	addrs := make([]multiaddr.Multiaddr, 0, len(strs))
	for _, s := range strs {
		if addr, err := multiaddr.NewMultiaddr(s); err == nil {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}

// JSONFilePersistence provides simple JSON file-based persistence.
type JSONFilePersistence struct {
	path string
}

// NewJSONFilePersistence creates a new JSON file persistence provider.
func NewJSONFilePersistence(path string) *JSONFilePersistence {
	return &JSONFilePersistence{path: path}
}

// Save writes the snapshot to the JSON file.
func (jp *JSONFilePersistence) Save(s *Snapshot) error {
	// Ensure directory exists
	dir := filepath.Dir(jp.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	jsonData, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(jp.path, jsonData, 0644)
}

// Load reads the snapshot from the JSON file. A missing file yields an empty
// snapshot.
func (jp *JSONFilePersistence) Load() (*Snapshot, error) {
	data, err := os.ReadFile(jp.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Snapshot{}, nil
		}
		return nil, err
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
