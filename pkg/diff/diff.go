// Package diff computes human-readable differences between two revisions
// of a memory file: changes to frontmatter fields and changes to the body
// text underneath them.
package diff

import (
	"fmt"

	"github.com/vivek-tiwari-vt/agmem/pkg/schema"
)

// ChangeType classifies what happened to a frontmatter field between two
// file revisions.
type ChangeType int

const (
	Added    ChangeType = iota // Field exists only in the after revision.
	Removed                    // Field exists only in the before revision.
	Modified                   // Field exists in both revisions but its value changed.
)

// FieldChange records a single frontmatter field change between two
// revisions of a memory file.
type FieldChange struct {
	Type   ChangeType
	Key    string
	Before string // formatted value, "" for Added
	After  string // formatted value, "" for Removed
}

// FileDiff holds the frontmatter and body diff for a single memory file.
type FileDiff struct {
	Path         string
	FieldChanges []FieldChange
	BodyChanged  bool
	BeforeBody   []byte
	AfterBody    []byte
}

// DiffFiles computes a frontmatter-field diff and a body-changed flag
// between before and after revisions of the file at path.
func DiffFiles(path string, before, after []byte) (*FileDiff, error) {
	beforeFM, beforeBody, err := schema.ParseFrontmatter(before)
	if err != nil {
		return nil, fmt.Errorf("parse frontmatter (before): %w", err)
	}
	afterFM, afterBody, err := schema.ParseFrontmatter(after)
	if err != nil {
		return nil, fmt.Errorf("parse frontmatter (after): %w", err)
	}

	fd := &FileDiff{
		Path:        path,
		BeforeBody:  beforeBody,
		AfterBody:   afterBody,
		BodyChanged: string(beforeBody) != string(afterBody),
	}

	beforeFields := flattenFrontmatter(beforeFM)
	afterFields := flattenFrontmatter(afterFM)

	seen := make(map[string]bool, len(beforeFields))
	for key, beforeVal := range beforeFields {
		seen[key] = true
		afterVal, inAfter := afterFields[key]
		if !inAfter {
			fd.FieldChanges = append(fd.FieldChanges, FieldChange{Type: Removed, Key: key, Before: beforeVal})
		} else if afterVal != beforeVal {
			fd.FieldChanges = append(fd.FieldChanges, FieldChange{Type: Modified, Key: key, Before: beforeVal, After: afterVal})
		}
	}
	for key, afterVal := range afterFields {
		if !seen[key] {
			fd.FieldChanges = append(fd.FieldChanges, FieldChange{Type: Added, Key: key, After: afterVal})
		}
	}

	return fd, nil
}

// flattenFrontmatter renders a Frontmatter's known fields (and any extra
// keys) to a flat map of key to display string, for comparison purposes.
func flattenFrontmatter(fm *schema.Frontmatter) map[string]string {
	out := make(map[string]string)
	if fm == nil {
		return out
	}
	if fm.SchemaVersion != "" {
		out["schema_version"] = fm.SchemaVersion
	}
	if fm.LastUpdated != "" {
		out["last_updated"] = fm.LastUpdated
	}
	if fm.SourceAgentID != "" {
		out["source_agent_id"] = fm.SourceAgentID
	}
	if fm.ConfidenceScore != nil {
		out["confidence_score"] = fmt.Sprintf("%v", *fm.ConfidenceScore)
	}
	if fm.MemoryType != "" {
		out["memory_type"] = fm.MemoryType
	}
	if len(fm.Tags) > 0 {
		out["tags"] = fmt.Sprintf("%v", fm.Tags)
	}
	if fm.Importance != nil {
		out["importance"] = fmt.Sprintf("%v", *fm.Importance)
	}
	if fm.ValidFrom != "" {
		out["valid_from"] = fm.ValidFrom
	}
	if fm.ValidUntil != "" {
		out["valid_until"] = fm.ValidUntil
	}
	if fm.SourceAuthority != "" {
		out["source_authority"] = fm.SourceAuthority
	}
	for k, v := range fm.Extra {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}
