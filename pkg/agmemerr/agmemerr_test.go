package agmemerr

import (
	"fmt"
	"testing"
)

func TestIsMatchesWrappedSentinel(t *testing.T) {
	err := fmt.Errorf("update refs/heads/main: %w", ErrCASMismatch)
	if !Is(err, KindCASMismatch) {
		t.Fatalf("Is(err, KindCASMismatch) = false, want true")
	}
	if Is(err, KindConflict) {
		t.Fatalf("Is(err, KindConflict) = true, want false")
	}
}

func TestSentinelUnknownKindReturnsNil(t *testing.T) {
	if Sentinel(Kind("bogus")) != nil {
		t.Fatalf("Sentinel(bogus) != nil")
	}
}
