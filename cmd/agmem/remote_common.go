package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vivek-tiwari-vt/agmem/internal/memlog"
	"github.com/vivek-tiwari-vt/agmem/pkg/audit"
	"github.com/vivek-tiwari-vt/agmem/pkg/object"
	"github.com/vivek-tiwari-vt/agmem/pkg/remote"
	"github.com/vivek-tiwari-vt/agmem/pkg/repo"
	"github.com/vivek-tiwari-vt/agmem/pkg/trust"
	"github.com/spf13/cobra"
)

// newProgressClient opens a remote client that forwards sideband progress
// frames from the server to cmd's output stream, prefixed so they're
// distinguishable from agmem's own status lines.
func newProgressClient(cmd *cobra.Command, remoteURL string) (*remote.Client, error) {
	return remote.NewClientWithOptions(remoteURL, remote.ClientOptions{
		Progress: func(msg string) {
			fmt.Fprintf(cmd.ErrOrStderr(), "remote: %s\n", msg)
		},
	})
}

func looksLikeRemoteURL(s string) bool {
	_, err := remote.ParseEndpoint(s)
	return err == nil
}

func resolveRemoteNameAndURL(r *repo.Repo, remoteArg string) (string, string, error) {
	remoteArg = strings.TrimSpace(remoteArg)
	if remoteArg == "" {
		url, err := r.RemoteURL("origin")
		if err != nil {
			return "", "", fmt.Errorf("remote not configured: %w", err)
		}
		return "origin", url, nil
	}

	if looksLikeRemoteURL(remoteArg) {
		return "origin", remoteArg, nil
	}

	url, err := r.RemoteURL(remoteArg)
	if err != nil {
		return "", "", err
	}
	return remoteArg, url, nil
}

// resolveRemoteNameAndSpec resolves a user-supplied remote argument (a
// configured remote name, or a literal URL/path) to its name, its spec
// string, and which transport kind serves it.
func resolveRemoteNameAndSpec(r *repo.Repo, remoteArg string) (string, string, remoteTransportKind, error) {
	name, rawURL, err := resolveRemoteNameAndURL(r, remoteArg)
	if err != nil {
		return "", "", "", err
	}
	kind, canonical, err := parseRemoteSpec(rawURL)
	if err != nil {
		return "", "", "", err
	}
	return name, canonical, kind, nil
}

func localRefTips(r *repo.Repo) ([]object.Hash, error) {
	refs, err := r.ListRefs("")
	if err != nil {
		return nil, err
	}
	tips := make([]object.Hash, 0, len(refs))
	for _, h := range refs {
		if strings.TrimSpace(string(h)) != "" {
			tips = append(tips, h)
		}
	}
	return tips, nil
}

func chooseDefaultBranch(remoteRefs map[string]object.Hash) (string, object.Hash, bool) {
	if h, ok := remoteRefs["heads/main"]; ok && strings.TrimSpace(string(h)) != "" {
		return "main", h, true
	}

	branches := make([]string, 0, len(remoteRefs))
	for name := range remoteRefs {
		if strings.HasPrefix(name, "heads/") {
			branches = append(branches, name)
		}
	}
	if len(branches) == 0 {
		return "", "", false
	}
	sort.Strings(branches)

	selected := branches[0]
	return strings.TrimPrefix(selected, "heads/"), remoteRefs[selected], true
}

func ensureEmptyDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return fmt.Errorf("destination path %q is not empty", path)
	}
	return nil
}

func writeSymbolicHead(r *repo.Repo, branch string) error {
	headPath := filepath.Join(r.GotDir, "HEAD")
	content := "ref: refs/heads/" + branch + "\n"
	return os.WriteFile(headPath, []byte(content), 0o644)
}

func remoteTrackingRefName(remoteName, remoteRef string) string {
	return fmt.Sprintf("refs/remotes/%s/%s", remoteName, strings.TrimPrefix(remoteRef, "/"))
}

// fetchWithTrustGate fetches the objects reachable from tip into a
// quarantine area (doFetch is given the quarantine store to fetch into),
// then evaluates tip's signing key against the local trust store before
// admitting anything into the repo's main object store. An already-local
// tip is treated as previously trusted and fetched straight into the main
// store.
func fetchWithTrustGate(r *repo.Repo, tip object.Hash, doFetch func(qStore *object.Store) (int, error)) (fetched int, accepted bool, level trust.Level, err error) {
	if r.Store.Has(tip) {
		n, err := doFetch(r.Store)
		return n, true, trust.Full, err
	}

	fetchID := repo.NewFetchID(tip)
	qStore, err := r.NewQuarantineStore(fetchID)
	if err != nil {
		return 0, false, "", err
	}

	n, err := doFetch(qStore)
	if err != nil {
		return n, false, "", err
	}

	trustStore, _, err := openTrustStore(r)
	if err != nil {
		return n, false, "", err
	}
	ct, err := repo.EvaluateCommitTrust(qStore, trustStore, tip)
	if err != nil {
		return n, false, "", err
	}

	if ct.Level == trust.Untrusted {
		return n, false, ct.Level, nil
	}
	if err := r.AdmitQuarantine(fetchID); err != nil {
		return n, false, "", err
	}
	if ct.Level == trust.Conditional {
		auditLog := audit.Open(filepath.Join(r.GotDir, "audit", "log"))
		if _, err := auditLog.Append("pull-flagged", map[string]interface{}{
			"commit": string(tip),
			"key_id": ct.KeyID,
		}); err != nil {
			memlog.Default().Warn("audit log append failed", "operation", "pull-flagged", "error", err)
		}
	}
	return n, true, ct.Level, nil
}

func ensureCleanWorkingTree(r *repo.Repo) error {
	entries, err := r.Status()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IndexStatus != repo.StatusClean || e.WorkStatus != repo.StatusClean {
			return fmt.Errorf("working tree has uncommitted changes (file %q)", e.Path)
		}
	}
	return nil
}
