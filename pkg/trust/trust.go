// Package trust implements the multi-agent trust store: a mapping from
// signing-key fingerprint to a trust level, consulted on pull and merge to
// decide whether to auto-merge, prompt, or block a remote's commits.
package trust

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vivek-tiwari-vt/agmem/pkg/crypto"
)

// Level is a trust assignment for a signing key.
type Level string

const (
	Full        Level = "full"
	Conditional Level = "conditional"
	Untrusted   Level = "untrusted"
)

func (l Level) valid() bool {
	return l == Full || l == Conditional || l == Untrusted
}

// Entry binds a key ID (its crypto.Fingerprint) to its raw public key bytes
// and assigned trust level.
type Entry struct {
	KeyID     string `json:"key_id"`
	PublicKey []byte `json:"public_key"`
	Level     Level  `json:"level"`
}

// Store is the on-disk trust store: one JSON file holding every known
// signing key and the level assigned to it.
type Store struct {
	path    string
	entries map[string]Entry
}

type storeFile struct {
	Entries []Entry `json:"entries"`
}

// Open loads the trust store at path, treating a missing file as empty.
func Open(path string) (*Store, error) {
	s := &Store{path: path, entries: make(map[string]Entry)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("open trust store: %w", err)
	}
	var sf storeFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("open trust store: unmarshal: %w", err)
	}
	for _, e := range sf.Entries {
		s.entries[e.KeyID] = e
	}
	return s, nil
}

// Level returns the trust level assigned to keyID, and whether it is known
// at all.
func (s *Store) Level(keyID string) (Level, bool) {
	e, ok := s.entries[keyID]
	return e.Level, ok
}

// PublicKey returns the raw public key bytes registered under keyID.
func (s *Store) PublicKey(keyID string) ([]byte, bool) {
	e, ok := s.entries[keyID]
	if !ok {
		return nil, false
	}
	return e.PublicKey, true
}

// Lookup adapts the store to the signature-verification callback shape
// VerifyCommitIntegrity expects: keyID -> (publicKey, known).
func (s *Store) Lookup(keyID string) ([]byte, bool) {
	return s.PublicKey(keyID)
}

// Trust registers pub under level, keyed by its fingerprint.
func (s *Store) Trust(pub ed25519.PublicKey, level Level) (string, error) {
	if !level.valid() {
		return "", fmt.Errorf("trust: level must be one of full, conditional, untrusted, got %q", level)
	}
	keyID := crypto.Fingerprint(pub)
	s.entries[keyID] = Entry{KeyID: keyID, PublicKey: []byte(pub), Level: level}
	return keyID, nil
}

// Revoke removes keyID from the store entirely.
func (s *Store) Revoke(keyID string) {
	delete(s.entries, keyID)
}

// Entries returns every registered entry, in no particular order.
func (s *Store) Entries() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out
}

// Save atomically persists the store back to its file.
func (s *Store) Save() error {
	sf := storeFile{Entries: s.Entries()}
	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return fmt.Errorf("save trust store: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("save trust store: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".trust-tmp-*")
	if err != nil {
		return fmt.Errorf("save trust store: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("save trust store: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("save trust store: close: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("save trust store: rename: %w", err)
	}
	return nil
}
