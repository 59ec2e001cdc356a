package diff

import (
	"fmt"
	"strings"

	"github.com/vivek-tiwari-vt/agmem/pkg/diff3"
)

// FormatFieldDiff produces a human-readable summary of frontmatter field
// changes.
//
// Output format:
//
//	path:
//	  + tags          (added)
//	  ~ confidence_score  (modified)
//	  - source_authority  (removed)
func FormatFieldDiff(d *FileDiff) string {
	if len(d.FieldChanges) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n", d.Path)

	for _, c := range d.FieldChanges {
		var marker, label string
		switch c.Type {
		case Added:
			marker, label = "+", "added"
		case Removed:
			marker, label = "-", "removed"
		case Modified:
			marker, label = "~", "modified"
		}
		fmt.Fprintf(&b, "  %s %-20s (%s)\n", marker, c.Key, label)
	}

	return b.String()
}

// FormatBodyDiff produces a unified-diff-style output showing line-level
// changes in the body text, when the body changed between revisions.
func FormatBodyDiff(d *FileDiff) string {
	if !d.BodyChanged {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n", d.Path)
	fmt.Fprintf(&b, "+++ b/%s\n", d.Path)

	for _, dl := range diff3.LineDiff(d.BeforeBody, d.AfterBody) {
		switch dl.Type {
		case diff3.Delete:
			fmt.Fprintf(&b, "-%s\n", dl.Content)
		case diff3.Insert:
			fmt.Fprintf(&b, "+%s\n", dl.Content)
		case diff3.Equal:
			fmt.Fprintf(&b, " %s\n", dl.Content)
		}
	}

	return b.String()
}
