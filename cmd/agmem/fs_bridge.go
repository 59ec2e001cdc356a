package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/vivek-tiwari-vt/agmem/pkg/object"
	"github.com/vivek-tiwari-vt/agmem/pkg/remote"
	"github.com/vivek-tiwari-vt/agmem/pkg/repo"
	"github.com/vivek-tiwari-vt/agmem/pkg/trust"
	"github.com/spf13/cobra"
)

// pullViaFS fetches from another agmem repository reachable over a shared
// filesystem (no HTTP endpoint involved), using remote.FSTransport in place
// of remote.Client. The ref-advancement and trust-gating logic mirrors the
// gothub transport path in newPullCmd.
func pullViaFS(cmd *cobra.Command, r *repo.Repo, remoteName, gotDir, branch string, allowMerge bool) error {
	t, err := remote.OpenFSTransport(gotDir)
	if err != nil {
		return err
	}

	currentBranch, err := r.CurrentBranch()
	if err != nil {
		return err
	}
	if branch == "" {
		branch = currentBranch
	}
	if branch == "" {
		return fmt.Errorf("cannot infer branch while HEAD is detached; specify branch")
	}

	remoteRefs, err := t.ListRefs(cmd.Context())
	if err != nil {
		return err
	}

	remoteRef := "heads/" + branch
	remoteHash, ok := remoteRefs[remoteRef]
	if !ok || strings.TrimSpace(string(remoteHash)) == "" {
		return fmt.Errorf("remote branch %q not found", branch)
	}

	localRef := "refs/heads/" + branch
	localHash, err := r.ResolveRef(localRef)
	hasLocal := err == nil
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	if currentBranch == branch {
		if err := ensureCleanWorkingTree(r); err != nil {
			return err
		}
	}

	fetched, accepted, level, err := fetchWithTrustGate(r, remoteHash, func(qStore *object.Store) (int, error) {
		return remote.FetchIntoStoreVia(cmd.Context(), t, qStore, []object.Hash{remoteHash})
	})
	if err != nil {
		return err
	}
	if !accepted {
		fmt.Fprintf(cmd.OutOrStdout(), "pull rejected: %s is signed by an untrusted or unknown key; objects quarantined, no ref advanced\n", shortHash(remoteHash))
		return nil
	}
	if level == trust.Conditional {
		fmt.Fprintf(cmd.OutOrStdout(), "note: %s is signed by a conditionally trusted key; flagged for review\n", shortHash(remoteHash))
	}

	if hasLocal && localHash != remoteHash {
		base, err := r.FindMergeBase(localHash, remoteHash)
		if err != nil {
			return fmt.Errorf("pull: merge-base: %w", err)
		}
		if base == remoteHash {
			if err := r.UpdateRef(remoteTrackingRefName(remoteName, remoteRef), remoteHash); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "already up to date (local %s is ahead of remote %s)\n", shortHash(localHash), shortHash(remoteHash))
			return nil
		}
		if base != localHash {
			if !allowMerge {
				return fmt.Errorf("pull would not fast-forward %s (local %s, remote %s); retry with --merge", branch, shortHash(localHash), shortHash(remoteHash))
			}
			if currentBranch != branch {
				return fmt.Errorf("pull --merge requires checked out branch %q (current: %q)", branch, currentBranch)
			}

			tempBranch := temporaryPullBranch(branch)
			if err := r.UpdateRef("refs/heads/"+tempBranch, remoteHash); err != nil {
				return fmt.Errorf("pull: create temp branch: %w", err)
			}
			defer func() { _ = r.DeleteBranch(tempBranch) }()

			report, err := r.Merge(tempBranch)
			if err != nil {
				return fmt.Errorf("pull: merge: %w", err)
			}
			if err := r.UpdateRef(remoteTrackingRefName(remoteName, remoteRef), remoteHash); err != nil {
				return err
			}
			if report.HasConflicts {
				return fmt.Errorf("pull: merge completed with %d conflict(s); run agmem resolve to complete the merge", report.TotalConflicts)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "merged %s into %s (%d objects fetched)\n", shortHash(remoteHash), branch, fetched)
			return nil
		}
	}

	needsWorktreeUpdate := currentBranch == branch && (!hasLocal || localHash != remoteHash)
	if needsWorktreeUpdate {
		if err := r.Checkout(string(remoteHash)); err != nil {
			return err
		}
	}

	if err := r.UpdateRef(localRef, remoteHash); err != nil {
		return err
	}
	if err := r.UpdateRef(remoteTrackingRefName(remoteName, remoteRef), remoteHash); err != nil {
		return err
	}

	if needsWorktreeUpdate {
		if err := writeSymbolicHead(r, branch); err != nil {
			return err
		}
	}

	if hasLocal && localHash == remoteHash {
		fmt.Fprintf(cmd.OutOrStdout(), "already up to date (%s)\n", shortHash(remoteHash))
		return nil
	}
	if !hasLocal {
		fmt.Fprintf(cmd.OutOrStdout(), "created local branch %s at %s (%d objects fetched)\n", branch, shortHash(remoteHash), fetched)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "updated %s: %s -> %s (%d objects fetched)\n", branch, shortHash(localHash), shortHash(remoteHash), fetched)
	return nil
}

// pushViaFS pushes a local branch to another agmem repository over a shared
// filesystem using remote.FSTransport.
func pushViaFS(cmd *cobra.Command, r *repo.Repo, remoteName, gotDir, branch string, force bool) error {
	t, err := remote.OpenFSTransport(gotDir)
	if err != nil {
		return err
	}

	pushTarget, localRef, remoteRef, err := resolvePushRefNames(r, branch)
	if err != nil {
		return err
	}
	localHash, err := r.ResolveRef(localRef)
	if err != nil {
		return fmt.Errorf("resolve local ref %q: %w", localRef, err)
	}

	remoteRefs, err := t.ListRefs(cmd.Context())
	if err != nil {
		return err
	}
	remoteHash, hasRemote := remoteRefs[remoteRef]
	if hasRemote && strings.TrimSpace(string(remoteHash)) == "" {
		hasRemote = false
	}

	if hasRemote && remoteHash == localHash {
		_ = r.UpdateRef(remoteTrackingRefName(remoteName, remoteRef), remoteHash)
		fmt.Fprintf(cmd.OutOrStdout(), "everything up-to-date (%s)\n", shortHash(localHash))
		return nil
	}

	if hasRemote && !force && strings.HasPrefix(remoteRef, "heads/") {
		if _, err := remote.FetchIntoStoreVia(cmd.Context(), t, r.Store, []object.Hash{remoteHash}); err != nil {
			return fmt.Errorf("push safety check failed fetching remote head: %w", err)
		}
		base, err := r.FindMergeBase(localHash, remoteHash)
		if err != nil {
			return fmt.Errorf("push safety check failed: %w", err)
		}
		if base != remoteHash {
			return fmt.Errorf("push rejected: non-fast-forward (local %s does not contain remote %s)", shortHash(localHash), shortHash(remoteHash))
		}
	} else if hasRemote && !force && remoteHash != localHash {
		return fmt.Errorf("push rejected: remote %s already exists at %s (use --force to overwrite)", remoteRef, shortHash(remoteHash))
	}

	stopRoots := make([]object.Hash, 0, len(remoteRefs))
	for _, h := range remoteRefs {
		if strings.TrimSpace(string(h)) != "" && r.Store.Has(h) {
			stopRoots = append(stopRoots, h)
		}
	}
	objectsToPush, err := remote.CollectObjectsForPush(r.Store, []object.Hash{localHash}, stopRoots)
	if err != nil {
		return err
	}
	if err := remote.PushObjectsVia(cmd.Context(), t, objectsToPush); err != nil {
		return err
	}

	old := object.Hash("")
	if hasRemote {
		old = remoteHash
	}
	newHash := localHash
	finalHash, err := t.CASUpdateRef(cmd.Context(), remoteRef, &old, &newHash)
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(finalHash)) == "" {
		finalHash = localHash
	}
	if err := r.UpdateRef(remoteTrackingRefName(remoteName, remoteRef), finalHash); err != nil {
		return err
	}

	if hasRemote {
		fmt.Fprintf(cmd.OutOrStdout(), "pushed %s: %s -> %s (%d objects)\n", pushTarget, shortHash(remoteHash), shortHash(finalHash), len(objectsToPush))
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pushed new %s at %s (%d objects)\n", pushTarget, shortHash(finalHash), len(objectsToPush))
	return nil
}
