package repo

import (
	"time"

	"github.com/vivek-tiwari-vt/agmem/pkg/diff3"
	"github.com/vivek-tiwari-vt/agmem/pkg/object"
	"github.com/vivek-tiwari-vt/agmem/pkg/schema"
)

// mergeProcedural implements last-write-wins for procedural memory: when
// both sides changed, the frontmatter last_updated timestamp picks a
// winner. Equal or missing timestamps fall through to a conflict, since a
// workflow replaced by two different authors at once needs a human call.
func mergeProcedural(base, ours, theirs []byte) (merged []byte, conflict bool) {
	if bytesEqualStr(ours, theirs) {
		return ours, false
	}
	if bytesEqualStr(ours, base) {
		return theirs, false
	}
	if bytesEqualStr(theirs, base) {
		return ours, false
	}

	oursFM, _, _ := schema.ParseFrontmatter(ours)
	theirsFM, _, _ := schema.ParseFrontmatter(theirs)
	if oursFM != nil && theirsFM != nil && oursFM.LastUpdated != "" && theirsFM.LastUpdated != "" {
		switch schema.CompareTimestamps(oursFM.LastUpdated, theirsFM.LastUpdated) {
		case 1:
			return ours, false
		case -1:
			return theirs, false
		}
	}

	return renderFileConflict(ours, theirs), true
}

// mergeSemanticText implements the SEMANTIC strategy: a line-level
// three-way merge that emits conflict markers on overlapping edits and
// combines non-overlapping ones. Frontmatter recency plays no part here —
// that would suppress markers on genuine overlapping edits, which is
// exactly the case this strategy exists to surface.
func mergeSemanticText(base, ours, theirs []byte) (merged []byte, conflict bool) {
	if bytesEqualStr(ours, theirs) {
		return ours, false
	}
	if bytesEqualStr(ours, base) {
		return theirs, false
	}
	if bytesEqualStr(theirs, base) {
		return ours, false
	}

	result := diff3.Merge(base, ours, theirs)
	return result.Merged, result.HasConflicts
}

func bytesEqualStr(a, b []byte) bool {
	return string(a) == string(b)
}

// mergeByClass dispatches a three-way content merge to the strategy that
// matches the memory class of path. oursTime/theirsTime are the
// contributing commits' timestamps, used by the episodic strategy as the
// file-mtime fallback for lines with no ISO-8601 prefix.
func mergeByClass(path string, base, ours, theirs []byte, oursTime, theirsTime time.Time) (merged []byte, conflict bool) {
	switch MemoryClassOf(path) {
	case object.ClassEpisodic:
		return mergeEpisodic(base, ours, theirs, oursTime, theirsTime)
	case object.ClassProcedural:
		return mergeProcedural(base, ours, theirs)
	default:
		return mergeSemanticText(base, ours, theirs)
	}
}
