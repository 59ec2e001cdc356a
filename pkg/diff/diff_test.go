package diff

import (
	"strings"
	"testing"
)

const semanticBase = `---
schema_version: "1.0"
last_updated: "2026-01-01T00:00:00Z"
confidence_score: 0.6
---
The capital of France is Paris.
`

const semanticTagsAdded = `---
schema_version: "1.0"
last_updated: "2026-01-01T00:00:00Z"
confidence_score: 0.6
tags: ["geography", "europe"]
---
The capital of France is Paris.
`

const semanticConfidenceChanged = `---
schema_version: "1.0"
last_updated: "2026-01-02T00:00:00Z"
confidence_score: 0.95
---
The capital of France is Paris.
`

const semanticBodyChanged = `---
schema_version: "1.0"
last_updated: "2026-01-01T00:00:00Z"
confidence_score: 0.6
---
The capital of France is Paris, population ~2.1 million.
`

// Test 1: Added field — after has a frontmatter key not in before.
func TestDiffFiles_AddedField(t *testing.T) {
	d, err := DiffFiles("current/semantic/geo.md", []byte(semanticBase), []byte(semanticTagsAdded))
	if err != nil {
		t.Fatalf("DiffFiles failed: %v", err)
	}
	if d.Path != "current/semantic/geo.md" {
		t.Errorf("expected path preserved, got %q", d.Path)
	}

	added := filterChanges(d.FieldChanges, Added)
	if len(added) != 1 {
		t.Fatalf("expected 1 Added field change, got %d: %v", len(added), describeChanges(d.FieldChanges))
	}
	if added[0].Key != "tags" {
		t.Errorf("expected Added key %q, got %q", "tags", added[0].Key)
	}
}

// Test 2: Modified field — confidence_score and last_updated both change.
func TestDiffFiles_ModifiedField(t *testing.T) {
	d, err := DiffFiles("current/semantic/geo.md", []byte(semanticBase), []byte(semanticConfidenceChanged))
	if err != nil {
		t.Fatalf("DiffFiles failed: %v", err)
	}

	modified := filterChanges(d.FieldChanges, Modified)
	if len(modified) != 2 {
		t.Fatalf("expected 2 Modified field changes, got %d: %v", len(modified), describeChanges(d.FieldChanges))
	}
	keys := map[string]bool{}
	for _, c := range modified {
		keys[c.Key] = true
	}
	if !keys["confidence_score"] || !keys["last_updated"] {
		t.Errorf("expected confidence_score and last_updated in modified set, got %v", keys)
	}
}

// Test 3: Unchanged file → no field changes, body not changed.
func TestDiffFiles_Unchanged(t *testing.T) {
	d, err := DiffFiles("current/semantic/geo.md", []byte(semanticBase), []byte(semanticBase))
	if err != nil {
		t.Fatalf("DiffFiles failed: %v", err)
	}
	if len(d.FieldChanges) != 0 {
		t.Errorf("expected 0 field changes for identical files, got %d: %v",
			len(d.FieldChanges), describeChanges(d.FieldChanges))
	}
	if d.BodyChanged {
		t.Error("expected BodyChanged false for identical files")
	}
}

// Test 4: Body-only change is detected independently of frontmatter.
func TestDiffFiles_BodyChanged(t *testing.T) {
	d, err := DiffFiles("current/semantic/geo.md", []byte(semanticBase), []byte(semanticBodyChanged))
	if err != nil {
		t.Fatalf("DiffFiles failed: %v", err)
	}
	if !d.BodyChanged {
		t.Error("expected BodyChanged true when body text differs")
	}
	if len(d.FieldChanges) != 0 {
		t.Errorf("expected no field changes when only body differs, got %v", describeChanges(d.FieldChanges))
	}
}

// Test 5: FormatFieldDiff output contains +, ~, - markers.
func TestFormatFieldDiff(t *testing.T) {
	d, err := DiffFiles("current/semantic/geo.md", []byte(semanticBase), []byte(semanticTagsAdded))
	if err != nil {
		t.Fatalf("DiffFiles failed: %v", err)
	}
	out := FormatFieldDiff(d)
	if !strings.Contains(out, "+") {
		t.Errorf("FormatFieldDiff output should contain '+' marker for Added, got:\n%s", out)
	}

	d2, err := DiffFiles("current/semantic/geo.md", []byte(semanticBase), []byte(semanticConfidenceChanged))
	if err != nil {
		t.Fatalf("DiffFiles failed: %v", err)
	}
	out2 := FormatFieldDiff(d2)
	if !strings.Contains(out2, "~") {
		t.Errorf("FormatFieldDiff output should contain '~' marker for Modified, got:\n%s", out2)
	}
}

// Test 6: FormatBodyDiff output contains --- and +++ headers when body changed.
func TestFormatBodyDiff(t *testing.T) {
	d, err := DiffFiles("current/semantic/geo.md", []byte(semanticBase), []byte(semanticBodyChanged))
	if err != nil {
		t.Fatalf("DiffFiles failed: %v", err)
	}
	out := FormatBodyDiff(d)
	if !strings.Contains(out, "---") {
		t.Errorf("FormatBodyDiff output should contain '---' header, got:\n%s", out)
	}
	if !strings.Contains(out, "+++") {
		t.Errorf("FormatBodyDiff output should contain '+++' header, got:\n%s", out)
	}
}

// Test 7: FormatBodyDiff returns empty string when body is unchanged.
func TestFormatBodyDiff_Unchanged(t *testing.T) {
	d, err := DiffFiles("current/semantic/geo.md", []byte(semanticBase), []byte(semanticBase))
	if err != nil {
		t.Fatalf("DiffFiles failed: %v", err)
	}
	if out := FormatBodyDiff(d); out != "" {
		t.Errorf("expected empty FormatBodyDiff for unchanged body, got:\n%s", out)
	}
}

// --- helpers ---

func filterChanges(changes []FieldChange, ct ChangeType) []FieldChange {
	var out []FieldChange
	for _, c := range changes {
		if c.Type == ct {
			out = append(out, c)
		}
	}
	return out
}

func describeChanges(changes []FieldChange) string {
	var parts []string
	for _, c := range changes {
		var typeStr string
		switch c.Type {
		case Added:
			typeStr = "Added"
		case Removed:
			typeStr = "Removed"
		case Modified:
			typeStr = "Modified"
		}
		parts = append(parts, typeStr+":"+c.Key)
	}
	return strings.Join(parts, ", ")
}
