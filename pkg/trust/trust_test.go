package trust

import (
	"crypto/ed25519"
	"path/filepath"
	"testing"
)

func TestOpenMissingReturnsEmptyStore(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "trust.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(s.Entries()) != 0 {
		t.Fatalf("entries = %d, want 0", len(s.Entries()))
	}
}

func TestTrustSaveReopenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trust.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	keyID, err := s.Trust(pub, Full)
	if err != nil {
		t.Fatalf("Trust: %v", err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open(reopened): %v", err)
	}
	level, ok := reopened.Level(keyID)
	if !ok {
		t.Fatalf("key %s not found after reopen", keyID)
	}
	if level != Full {
		t.Fatalf("level = %q, want %q", level, Full)
	}

	gotPub, ok := reopened.PublicKey(keyID)
	if !ok || ed25519.PublicKey(gotPub).Equal(pub) == false {
		t.Fatalf("public key mismatch after reopen")
	}
}

func TestTrustRejectsInvalidLevel(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "trust.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	pub, _, _ := ed25519.GenerateKey(nil)
	if _, err := s.Trust(pub, Level("bogus")); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestRevokeRemovesEntry(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "trust.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	pub, _, _ := ed25519.GenerateKey(nil)
	keyID, err := s.Trust(pub, Conditional)
	if err != nil {
		t.Fatalf("Trust: %v", err)
	}

	s.Revoke(keyID)
	if _, ok := s.Level(keyID); ok {
		t.Fatalf("key %s still present after Revoke", keyID)
	}
}
