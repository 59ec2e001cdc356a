package repo

import (
	"sync"

	"github.com/vivek-tiwari-vt/agmem/pkg/object"
)

// Repo represents an opened memory-versioning repository.
type Repo struct {
	RootDir string        // working directory root
	GotDir  string        // .mem/ directory
	Store   *object.Store // content-addressed object store

	mergeTraversalStateOnce sync.Once
	mergeTraversalState     *mergeBaseTraversalState
}

func (r *Repo) getMergeTraversalState() *mergeBaseTraversalState {
	r.mergeTraversalStateOnce.Do(func() {
		r.mergeTraversalState = newMergeBaseTraversalState()
	})
	return r.mergeTraversalState
}
