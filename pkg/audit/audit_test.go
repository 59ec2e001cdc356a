package audit

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAppendReadRoundTrip(t *testing.T) {
	log := Open(filepath.Join(t.TempDir(), "log"))

	if _, err := log.Append("commit", map[string]interface{}{"hash": "abc123"}); err != nil {
		t.Fatalf("Append(1): %v", err)
	}
	if _, err := log.Append("merge", map[string]interface{}{"branch": "feature"}); err != nil {
		t.Fatalf("Append(2): %v", err)
	}

	entries, err := log.Read(10)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Operation != "merge" {
		t.Fatalf("entries[0].Operation = %q, want %q (newest first)", entries[0].Operation, "merge")
	}
	if entries[1].Operation != "commit" {
		t.Fatalf("entries[1].Operation = %q, want %q", entries[1].Operation, "commit")
	}
	if entries[0].PrevHash != entries[1].EntryHash {
		t.Fatalf("chain broken: entries[0].PrevHash = %q, want entries[1].EntryHash = %q", entries[0].PrevHash, entries[1].EntryHash)
	}
}

func TestVerifyDetectsTamper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log")
	log := Open(path)

	for i := 0; i < 3; i++ {
		if _, err := log.Append("op", map[string]interface{}{"n": i}); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	valid, bad, err := log.Verify()
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !valid {
		t.Fatalf("Verify = invalid at %d before tamper, want valid", bad)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	data[len(data)-5] ^= 0xff
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	valid, bad, err = log.Verify()
	if err != nil {
		t.Fatalf("Verify(after tamper): %v", err)
	}
	if valid {
		t.Fatalf("Verify = valid after tamper, want invalid")
	}
	if bad != 2 {
		t.Fatalf("bad index = %d, want 2 (last entry)", bad)
	}
}

func TestVerifyMissingLogIsValid(t *testing.T) {
	log := Open(filepath.Join(t.TempDir(), "does-not-exist"))
	valid, bad, err := log.Verify()
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !valid || bad != -1 {
		t.Fatalf("Verify(missing) = (%v, %d), want (true, -1)", valid, bad)
	}
}
