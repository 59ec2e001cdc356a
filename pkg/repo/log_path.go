package repo

import (
	"errors"
	"fmt"
	"os"

	"github.com/vivek-tiwari-vt/agmem/pkg/object"
)

// PathLogEntry pairs a commit with its hash for path-filtered history.
type PathLogEntry struct {
	Hash   object.Hash
	Commit *object.CommitObj
}

// LogByPath walks first-parent history from start and returns the commits
// where the blob at path changed relative to the previous commit in the
// walk, up to limit entries. A commit where path does not exist in either
// revision is skipped.
func (r *Repo) LogByPath(start object.Hash, limit int, path string) ([]PathLogEntry, error) {
	var entries []PathLogEntry
	current := start
	var prevBlobHash object.Hash
	havePrev := false

	for len(entries) < limit {
		c, err := r.Store.ReadCommit(current)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				break
			}
			return nil, fmt.Errorf("log by path: read commit %s: %w", current, err)
		}

		blobHash, found, err := r.blobHashAtPath(c.TreeHash, path)
		if err != nil {
			return nil, fmt.Errorf("log by path: %w", err)
		}

		if found && (!havePrev || blobHash != prevBlobHash) {
			entries = append(entries, PathLogEntry{Hash: current, Commit: c})
		}
		if found {
			prevBlobHash = blobHash
			havePrev = true
		}

		if len(c.Parents) == 0 {
			break
		}
		current = c.Parents[0]
	}

	return entries, nil
}

// blobHashAtPath returns the blob hash for path within the tree rooted at
// treeHash, or found=false if path does not exist in that tree.
func (r *Repo) blobHashAtPath(treeHash object.Hash, path string) (object.Hash, bool, error) {
	entries, err := r.FlattenTree(treeHash)
	if err != nil {
		return "", false, err
	}
	for _, e := range entries {
		if e.Path == path {
			return e.BlobHash, true, nil
		}
	}
	return "", false, nil
}
