package repo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vivek-tiwari-vt/agmem/pkg/object"
	"github.com/vivek-tiwari-vt/agmem/pkg/trust"
)

// NewQuarantineStore allocates a fresh receive area under
// .mem/objects/quarantine/<fetch-id>/ and returns a Store rooted there.
// Incoming pulls land here first so untrusted or unverifiable history never
// touches the main object store or advances a ref.
func (r *Repo) NewQuarantineStore(fetchID string) (*object.Store, error) {
	dir := r.quarantineDir(fetchID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("quarantine: mkdir: %w", err)
	}
	return object.NewStore(dir), nil
}

func (r *Repo) quarantineDir(fetchID string) string {
	return filepath.Join(r.GotDir, "objects", "quarantine", fetchID)
}

// AdmitQuarantine copies every object under the quarantine area into the
// main object store and removes the quarantine directory. Call this once a
// fetch's signing key has been judged trustworthy enough to accept.
func (r *Repo) AdmitQuarantine(fetchID string) error {
	dir := r.quarantineDir(fetchID)
	qStore := object.NewStore(dir)

	err := filepath.WalkDir(filepath.Join(dir, "objects"), func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		fanout := filepath.Base(filepath.Dir(path))
		h := object.Hash(fanout + d.Name())
		objType, data, err := qStore.Read(h)
		if err != nil {
			return fmt.Errorf("admit quarantine: read %s: %w", h, err)
		}
		if _, err := r.Store.Write(objType, data); err != nil {
			return fmt.Errorf("admit quarantine: write %s: %w", h, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

// DiscardQuarantine removes a quarantine area without admitting anything
// into the main object store.
func (r *Repo) DiscardQuarantine(fetchID string) error {
	if err := os.RemoveAll(r.quarantineDir(fetchID)); err != nil {
		return fmt.Errorf("discard quarantine: %w", err)
	}
	return nil
}

// NewFetchID returns a filesystem-safe directory name for a quarantine
// receive area, derived from the tip hash being fetched so repeated pulls of
// the same tip reuse (and safely overwrite) the same quarantine directory.
func NewFetchID(tip object.Hash) string {
	s := string(tip)
	if len(s) > 16 {
		s = s[:16]
	}
	if s == "" {
		s = "unknown"
	}
	return s
}

// CommitTrust is the result of evaluating a fetched commit's signing key
// against the local trust store.
type CommitTrust struct {
	KeyID string
	Level trust.Level
	Known bool
}

// EvaluateCommitTrust reads commitHash from store (which may be a
// quarantine store) and looks its signing key up in the trust store. An
// unsigned commit, or one signed by a key the trust store has never seen,
// reports Known=false and must be treated as untrusted.
func EvaluateCommitTrust(store *object.Store, trustStore *trust.Store, commitHash object.Hash) (CommitTrust, error) {
	c, err := store.ReadCommit(commitHash)
	if err != nil {
		return CommitTrust{}, fmt.Errorf("evaluate commit trust: read commit %s: %w", commitHash, err)
	}
	if c.SigningKeyID == "" {
		return CommitTrust{Level: trust.Untrusted, Known: false}, nil
	}
	level, known := trustStore.Level(c.SigningKeyID)
	if !known {
		return CommitTrust{KeyID: c.SigningKeyID, Level: trust.Untrusted, Known: false}, nil
	}
	return CommitTrust{KeyID: c.SigningKeyID, Level: level, Known: true}, nil
}
