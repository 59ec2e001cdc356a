package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vivek-tiwari-vt/agmem/internal/memlog"
	"github.com/vivek-tiwari-vt/agmem/pkg/audit"
	"github.com/vivek-tiwari-vt/agmem/pkg/crypto"
	"github.com/vivek-tiwari-vt/agmem/pkg/object"
)

// CommitSigner signs canonical commit payload bytes (the commit's Merkle
// root) and returns an encoded signature plus the key ID that produced it,
// to be persisted in CommitObj.Signature and CommitObj.SigningKeyID.
type CommitSigner func(payload []byte) (signature, keyID string, err error)

// Commit creates a new commit from the current staging area.
//
//  1. Read staging
//  2. BuildTree from staging
//  3. Resolve HEAD to get parent commit hash (if any)
//  4. Create CommitObj with tree hash, parent, author, current timestamp, message
//  5. Write commit to store
//  6. Update current branch ref to new commit hash
//  7. Return commit hash
func (r *Repo) Commit(message, author string) (object.Hash, error) {
	return r.CommitWithSigner(message, author, nil)
}

// CommitWithSigner creates a new commit and signs it when signer is provided.
func (r *Repo) CommitWithSigner(message, author string, signer CommitSigner) (object.Hash, error) {
	if err := r.requireNotMerging("commit"); err != nil {
		return "", err
	}

	// 1. Read staging.
	stg, err := r.ReadStaging()
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	if len(stg.Entries) == 0 {
		return "", fmt.Errorf("commit: nothing staged")
	}

	// 2. Build tree from staging.
	treeHash, err := r.BuildTree(stg)
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	// 3. Resolve HEAD to get parent (may not exist for first commit).
	var parents []object.Hash
	parentHash, err := r.ResolveRef("HEAD")
	if err == nil && parentHash != "" {
		parents = append(parents, parentHash)
	}
	// If HEAD resolution fails (e.g., first commit, no ref file), that's fine.

	// 4. Create CommitObj.
	merkleRoot, err := r.MerkleRootForTree(treeHash)
	if err != nil {
		return "", fmt.Errorf("commit: build merkle root: %w", err)
	}
	commitObj := &object.CommitObj{
		TreeHash:   treeHash,
		Parents:    parents,
		Author:     author,
		Timestamp:  time.Now().Unix(),
		Message:    message,
		MerkleRoot: merkleRoot,
	}
	if signer != nil {
		payload := object.CommitSigningPayload(commitObj)
		signature, keyID, err := signer(payload)
		if err != nil {
			return "", fmt.Errorf("commit: sign commit: %w", err)
		}
		commitObj.Signature = signature
		commitObj.SigningKeyID = keyID
	}

	// 5. Write commit to store.
	commitHash, err := r.Store.WriteCommit(commitObj)
	if err != nil {
		return "", fmt.Errorf("commit: write commit: %w", err)
	}

	// 6. Update current branch ref.
	head, err := r.Head()
	if err != nil {
		return "", fmt.Errorf("commit: read HEAD: %w", err)
	}

	// head is either a ref path ("refs/heads/main") or a detached hash.
	if strings.HasPrefix(head, "refs/") {
		var updateErr error
		if parentHash == "" {
			updateErr = r.UpdateRefCAS(head, commitHash)
		} else {
			updateErr = r.UpdateRefCAS(head, commitHash, parentHash)
		}
		if updateErr != nil {
			return "", fmt.Errorf("commit: update ref %q: %w", head, updateErr)
		}
	} else {
		// Detached HEAD: update HEAD directly with a CAS against the old hash.
		if err := r.UpdateRefCAS("HEAD", commitHash, object.Hash(strings.TrimSpace(head))); err != nil {
			return "", fmt.Errorf("commit: update detached HEAD: %w", err)
		}
	}

	r.invalidateStatusCache()

	auditLog := audit.Open(filepath.Join(r.GotDir, "audit", "log"))
	if _, err := auditLog.Append("commit", map[string]interface{}{
		"hash":    string(commitHash),
		"author":  author,
		"message": message,
		"signed":  commitObj.Signature != "",
	}); err != nil {
		memlog.Default().Warn("audit log append failed", "operation", "commit", "error", err)
	}

	// 7. Return commit hash.
	return commitHash, nil
}

// Log walks the commit history starting from the given hash, following
// first-parent links, returning up to limit commits in reverse-chronological
// order (newest first).
func (r *Repo) Log(start object.Hash, limit int) ([]*object.CommitObj, error) {
	var commits []*object.CommitObj
	current := start

	for len(commits) < limit {
		c, err := r.Store.ReadCommit(current)
		if err != nil {
			// If we can't read the commit (e.g., doesn't exist), stop.
			if errors.Is(err, os.ErrNotExist) {
				break
			}
			return nil, fmt.Errorf("log: read commit %s: %w", current, err)
		}
		commits = append(commits, c)

		// Follow first parent.
		if len(c.Parents) == 0 {
			break
		}
		current = c.Parents[0]
	}

	return commits, nil
}
