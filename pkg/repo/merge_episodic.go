package repo

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

// episodicTimestampPrefix matches an ISO-8601 timestamp at the start of a
// line, the line-prefix convention episodic memory files use to mark when
// an event was recorded.
var episodicTimestampPrefix = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2})?)`)

type episodicLine struct {
	text      string
	timestamp time.Time
}

// mergeEpisodic implements the chronological-append strategy for episodic
// memory: concat(common_prefix, sort_by_timestamp(appended_A ∪ appended_B)).
// The common prefix is the longest run of lines base shares with both ours
// and theirs; everything past it was appended by one side or the other and
// is re-merged in timestamp order. A line with no leading ISO-8601
// timestamp falls back to the contributing side's commit time, so undated
// lines still sort deterministically next to dated ones. Episodic merges
// never conflict.
func mergeEpisodic(base, ours, theirs []byte, oursTime, theirsTime time.Time) (merged []byte, conflict bool) {
	baseLines := splitLines(base)
	oursLines := splitLines(ours)
	theirsLines := splitLines(theirs)

	prefixLen := commonPrefixLen(baseLines, oursLines)
	if p := commonPrefixLen(baseLines, theirsLines); p < prefixLen {
		prefixLen = p
	}

	appendedOurs := oursLines[prefixLen:]
	appendedTheirs := theirsLines[prefixLen:]

	appended := make([]episodicLine, 0, len(appendedOurs)+len(appendedTheirs))
	for _, l := range appendedOurs {
		appended = append(appended, newEpisodicLine(l, oursTime))
	}
	for _, l := range appendedTheirs {
		appended = append(appended, newEpisodicLine(l, theirsTime))
	}

	sort.SliceStable(appended, func(i, j int) bool {
		return appended[i].timestamp.Before(appended[j].timestamp)
	})

	out := make([]string, 0, prefixLen+len(appended))
	out = append(out, baseLines[:prefixLen]...)
	for _, l := range appended {
		out = append(out, l.text)
	}
	return []byte(joinLines(out)), false
}

func newEpisodicLine(text string, fallback time.Time) episodicLine {
	if m := episodicTimestampPrefix.FindString(text); m != "" {
		if ts, err := time.Parse(time.RFC3339Nano, m); err == nil {
			return episodicLine{text: text, timestamp: ts}
		}
	}
	return episodicLine{text: text, timestamp: fallback}
}

func commonPrefixLen(a, b []string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func splitLines(data []byte) []string {
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
