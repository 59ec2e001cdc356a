// Package schema parses and validates the YAML frontmatter block that
// precedes the body of a memory file under current/.
package schema

import (
	"bytes"
	"fmt"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Frontmatter is the structured metadata block at the top of a memory file.
type Frontmatter struct {
	SchemaVersion    string                 `yaml:"schema_version"`
	LastUpdated      string                 `yaml:"last_updated,omitempty"`
	SourceAgentID    string                 `yaml:"source_agent_id,omitempty"`
	ConfidenceScore  *float64               `yaml:"confidence_score,omitempty"`
	MemoryType       string                 `yaml:"memory_type,omitempty"`
	Tags             []string               `yaml:"tags,omitempty"`
	Importance       *float64               `yaml:"importance,omitempty"`
	ValidFrom        string                 `yaml:"valid_from,omitempty"`
	ValidUntil       string                 `yaml:"valid_until,omitempty"`
	SourceAuthority  string                 `yaml:"source_authority,omitempty"`
	Extra            map[string]interface{} `yaml:",inline"`
}

var frontmatterPattern = regexp.MustCompile(`(?s)^---\s*\n(.*?)\n---\s*\n`)

// ParseFrontmatter splits content into a parsed Frontmatter and the
// remaining body. If content has no well-formed frontmatter block, or the
// block is not a YAML mapping, it returns a nil Frontmatter and the
// original content untouched.
func ParseFrontmatter(content []byte) (*Frontmatter, []byte, error) {
	m := frontmatterPattern.FindSubmatchIndex(content)
	if m == nil {
		return nil, content, nil
	}

	yamlBlock := content[m[2]:m[3]]
	body := content[m[1]:]

	var fm Frontmatter
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, content, nil
	}
	if fm.SchemaVersion == "" {
		fm.SchemaVersion = "1.0"
	}
	return &fm, body, nil
}

// HasFrontmatter reports whether content begins with a frontmatter block.
func HasFrontmatter(content []byte) bool {
	return frontmatterPattern.Match(content)
}

// Render serializes fm back into a "---\n...\n---\n" block followed by body.
func Render(fm *Frontmatter, body []byte) ([]byte, error) {
	yamlBytes, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("render frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(yamlBytes)
	buf.WriteString("---\n")
	buf.Write(body)
	return buf.Bytes(), nil
}

// ValidationIssue is a single frontmatter validation problem.
type ValidationIssue struct {
	Field    string
	Message  string
	Severity string // "error" or "warning"
}

// ValidationResult is the outcome of validating a memory file's frontmatter.
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationIssue
	Warnings []ValidationIssue
}

func (r *ValidationResult) addError(field, msg string) {
	r.Errors = append(r.Errors, ValidationIssue{Field: field, Message: msg, Severity: "error"})
	r.Valid = false
}

func (r *ValidationResult) addWarning(field, msg string) {
	r.Warnings = append(r.Warnings, ValidationIssue{Field: field, Message: msg, Severity: "warning"})
}

var requiredFields = map[string][]string{
	"semantic":          {"schema_version", "last_updated"},
	"episodic":          {"schema_version"},
	"procedural":        {"schema_version", "last_updated"},
	"other":             {"schema_version"},
}

var recommendedFields = map[string][]string{
	"semantic":   {"source_agent_id", "confidence_score", "tags"},
	"episodic":   {"source_agent_id"},
	"procedural": {"source_agent_id", "tags"},
	"other":      {},
}

var schemaVersionPattern = regexp.MustCompile(`^\d+\.\d+$`)

// Validate checks fm against the required and recommended fields for the
// given memory class (one of "episodic", "semantic", "procedural", "other").
// A nil fm is reported as a missing-frontmatter error.
func Validate(fm *Frontmatter, class string, strict bool) *ValidationResult {
	result := &ValidationResult{Valid: true}
	if fm == nil {
		result.addError("frontmatter", "missing YAML frontmatter block")
		return result
	}

	for _, field := range requiredFields[class] {
		if !hasField(fm, field) {
			result.addError(field, fmt.Sprintf("required field %q is missing", field))
		}
	}
	for _, field := range recommendedFields[class] {
		if !hasField(fm, field) {
			msg := fmt.Sprintf("recommended field %q is missing", field)
			if strict {
				result.addError(field, msg+" (strict mode)")
			} else {
				result.addWarning(field, msg)
			}
		}
	}

	if fm.SchemaVersion != "" && !schemaVersionPattern.MatchString(fm.SchemaVersion) {
		result.addError("schema_version", fmt.Sprintf("invalid schema_version %q (expected X.Y)", fm.SchemaVersion))
	}

	if fm.LastUpdated != "" {
		if _, err := parseTimestamp(fm.LastUpdated); err != nil {
			result.addError("last_updated", fmt.Sprintf("invalid last_updated %q (expected ISO 8601)", fm.LastUpdated))
		}
	}

	if fm.ConfidenceScore != nil {
		if *fm.ConfidenceScore < 0.0 || *fm.ConfidenceScore > 1.0 {
			result.addError("confidence_score", fmt.Sprintf("confidence_score must be between 0.0 and 1.0, got %v", *fm.ConfidenceScore))
		}
	}

	return result
}

func hasField(fm *Frontmatter, field string) bool {
	switch field {
	case "schema_version":
		return fm.SchemaVersion != ""
	case "last_updated":
		return fm.LastUpdated != ""
	case "source_agent_id":
		return fm.SourceAgentID != ""
	case "confidence_score":
		return fm.ConfidenceScore != nil
	case "tags":
		return len(fm.Tags) > 0
	default:
		return false
	}
}

func parseTimestamp(ts string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05", ts)
}

// CompareTimestamps orders two ISO 8601 timestamps, treating an unparsable
// or empty timestamp as older than any parsable one.
func CompareTimestamps(a, b string) int {
	ta, errA := parseTimestamp(a)
	tb, errB := parseTimestamp(b)
	switch {
	case errA != nil && errB != nil:
		return 0
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	case ta.Before(tb):
		return -1
	case ta.After(tb):
		return 1
	default:
		return 0
	}
}
