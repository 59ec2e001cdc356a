package repo

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vivek-tiwari-vt/agmem/internal/memlog"
	"github.com/vivek-tiwari-vt/agmem/pkg/agmemerr"
	"github.com/vivek-tiwari-vt/agmem/pkg/audit"
	"github.com/vivek-tiwari-vt/agmem/pkg/object"
	"github.com/vivek-tiwari-vt/agmem/pkg/trust"
)

// MergeConflictRecord is one unresolved conflict persisted while the repo
// is in MERGING state: (path, ours_hash, theirs_hash, base_hash, strategy).
type MergeConflictRecord struct {
	Path       string      `json:"path"`
	BaseHash   object.Hash `json:"base_hash,omitempty"`
	OursHash   object.Hash `json:"ours_hash,omitempty"`
	TheirsHash object.Hash `json:"theirs_hash,omitempty"`
	Strategy   string      `json:"strategy"`
	Mode       string      `json:"mode,omitempty"`
}

// MergeState is the persisted record of an in-progress merge with
// unresolved conflicts. Its presence on disk means the repo is in MERGING
// state: Commit refuses to run until resolve clears every conflict.
type MergeState struct {
	Branch     string                 `json:"branch"`
	OursHash   object.Hash            `json:"ours_hash"`
	TheirsHash object.Hash            `json:"theirs_hash"`
	Conflicts  []MergeConflictRecord  `json:"conflicts"`
}

func (r *Repo) mergeStateDir() string {
	return filepath.Join(r.GotDir, "merge")
}

func (r *Repo) mergeStatePath() string {
	return filepath.Join(r.mergeStateDir(), "state")
}

// ReadMergeState loads the in-progress merge-state record, or nil if the
// repo is not currently MERGING.
func (r *Repo) ReadMergeState() (*MergeState, error) {
	data, err := os.ReadFile(r.mergeStatePath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read merge state: %w", err)
	}
	var ms MergeState
	if err := json.Unmarshal(data, &ms); err != nil {
		return nil, fmt.Errorf("read merge state: unmarshal: %w", err)
	}
	return &ms, nil
}

// WriteMergeState atomically persists the merge-state record, putting the
// repo into MERGING state.
func (r *Repo) WriteMergeState(ms *MergeState) error {
	if err := os.MkdirAll(r.mergeStateDir(), 0o755); err != nil {
		return fmt.Errorf("write merge state: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(ms, "", "  ")
	if err != nil {
		return fmt.Errorf("write merge state: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(r.mergeStateDir(), ".state-tmp-*")
	if err != nil {
		return fmt.Errorf("write merge state: tmpfile: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write merge state: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write merge state: close: %w", err)
	}
	if err := os.Rename(tmpName, r.mergeStatePath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write merge state: rename: %w", err)
	}
	return nil
}

// ClearMergeState removes the merge-state record, taking the repo out of
// MERGING state.
func (r *Repo) ClearMergeState() error {
	if err := os.Remove(r.mergeStatePath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear merge state: %w", err)
	}
	return nil
}

// IsMerging reports whether the repo currently has an unresolved merge
// recorded.
func (r *Repo) IsMerging() (bool, error) {
	ms, err := r.ReadMergeState()
	if err != nil {
		return false, err
	}
	return ms != nil, nil
}

// requireNotMerging refuses an operation while unresolved conflicts remain,
// per the MERGING-state gate: only the merge-completion commit produced by
// Resolve may run while the repo is MERGING.
func (r *Repo) requireNotMerging(op string) error {
	merging, err := r.IsMerging()
	if err != nil {
		return err
	}
	if merging {
		return fmt.Errorf("%s: repository has unresolved merge conflicts; run resolve first: %w", op, agmemerr.ErrConflict)
	}
	return nil
}

// resolveStrategy returns the merge-state strategy label for path's memory
// class, matching the dispatch in mergeByClass.
func resolveStrategy(path string) string {
	switch MemoryClassOf(path) {
	case object.ClassEpisodic:
		return "episodic"
	case object.ClassProcedural:
		return "procedural"
	default:
		return "semantic"
	}
}

// Resolve picks a side for every unresolved conflict path listed in
// resolutions (ours/theirs/both), rewrites the staged content, and - once
// every conflict in the merge state has a resolution - writes the
// merge-completion commit with both parents and clears MERGING state.
func (r *Repo) Resolve(resolutions map[string]string) (object.Hash, error) {
	ms, err := r.ReadMergeState()
	if err != nil {
		return "", fmt.Errorf("resolve: %w", err)
	}
	if ms == nil {
		return "", fmt.Errorf("resolve: repository is not in a MERGING state")
	}

	remaining := make([]MergeConflictRecord, 0, len(ms.Conflicts))
	for _, c := range ms.Conflicts {
		choice, requested := resolutions[c.Path]
		if !requested {
			remaining = append(remaining, c)
			continue
		}
		if err := r.resolveConflictPath(c, choice); err != nil {
			return "", fmt.Errorf("resolve %q: %w", c.Path, err)
		}
	}

	if len(remaining) > 0 {
		ms.Conflicts = remaining
		if err := r.WriteMergeState(ms); err != nil {
			return "", fmt.Errorf("resolve: %w", err)
		}
		return "", nil
	}

	commitHash, err := r.commitMerge(
		fmt.Sprintf("Merge branch '%s'", ms.Branch),
		"agmem-merge",
		ms.OursHash,
		ms.TheirsHash,
	)
	if err != nil {
		return "", fmt.Errorf("resolve: complete merge: %w", err)
	}
	if err := r.ClearMergeState(); err != nil {
		return "", fmt.Errorf("resolve: %w", err)
	}

	auditLog := audit.Open(filepath.Join(r.GotDir, "audit", "log"))
	if _, err := auditLog.Append("resolve", map[string]interface{}{
		"branch": ms.Branch,
		"commit": string(commitHash),
	}); err != nil {
		memlog.Default().Warn("audit log append failed", "operation", "resolve", "error", err)
	}

	return commitHash, nil
}

func (r *Repo) resolveConflictPath(c MergeConflictRecord, choice string) error {
	var content []byte
	var err error

	switch choice {
	case "ours":
		content, err = r.readBlobDataOrEmpty(c.OursHash)
	case "theirs":
		content, err = r.readBlobDataOrEmpty(c.TheirsHash)
	case "both":
		var oursData, theirsData []byte
		oursData, err = r.readBlobDataOrEmpty(c.OursHash)
		if err == nil {
			theirsData, err = r.readBlobDataOrEmpty(c.TheirsHash)
		}
		if err == nil {
			content = append(append([]byte{}, oursData...), theirsData...)
		}
	default:
		return fmt.Errorf("unknown resolution %q (want ours, theirs, or both)", choice)
	}
	if err != nil {
		return err
	}

	absPath := filepath.Join(r.RootDir, filepath.FromSlash(c.Path))
	if len(content) == 0 && choice != "both" {
		if err := os.Remove(absPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %q: %w", c.Path, err)
		}
		stg, err := r.ReadStaging()
		if err != nil {
			return err
		}
		delete(stg.Entries, c.Path)
		return r.WriteStaging(stg)
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return fmt.Errorf("mkdir for %q: %w", c.Path, err)
	}
	if err := os.WriteFile(absPath, content, filePermFromMode(normalizeFileMode(c.Mode))); err != nil {
		return fmt.Errorf("write %q: %w", c.Path, err)
	}
	return r.Add([]string{c.Path})
}

func (r *Repo) readBlobDataOrEmpty(h object.Hash) ([]byte, error) {
	if h == "" {
		return nil, nil
	}
	return r.readBlobData(h)
}

// requireTrustedCommit refuses to merge a commit whose signing key the local
// trust store has explicitly marked untrusted. Unsigned commits and commits
// from keys the store has never seen are allowed through here - this gate
// only stops a key that has been seen and rejected, matching the pull-side
// quarantine handling for unknown keys.
func (r *Repo) requireTrustedCommit(hash object.Hash, c *object.CommitObj) error {
	if c.SigningKeyID == "" {
		return nil
	}
	trustStore, err := trust.Open(filepath.Join(r.GotDir, "trust", "trust.json"))
	if err != nil {
		return fmt.Errorf("merge: open trust store: %w", err)
	}
	level, known := trustStore.Level(c.SigningKeyID)
	if known && level == trust.Untrusted {
		return fmt.Errorf("merge: commit %s is signed by untrusted key %s: %w", hash, c.SigningKeyID, agmemerr.ErrUntrusted)
	}
	return nil
}
