package repo

import (
	"path/filepath"
	"strings"

	"github.com/vivek-tiwari-vt/agmem/pkg/object"
)

// MemoryClassOf derives a file's memory class from its repo-relative path.
// A file is classified by the first path segment under current/; anything
// else (including files outside current/) is ClassOther.
func MemoryClassOf(relPath string) object.MemoryClass {
	clean := filepath.ToSlash(relPath)
	trimmed := strings.TrimPrefix(clean, "current/")
	if trimmed == clean {
		return object.ClassOther
	}

	segment, _, _ := strings.Cut(trimmed, "/")
	switch segment {
	case "episodic":
		return object.ClassEpisodic
	case "semantic":
		return object.ClassSemantic
	case "procedural":
		return object.ClassProcedural
	default:
		return object.ClassOther
	}
}
