package remote

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vivek-tiwari-vt/agmem/pkg/object"
)

// FSTransport is the reference Transport implementation: a remote that is
// just another agmem repository's .mem directory, reached over a mounted or
// shared filesystem rather than HTTP. It lets two agents sharing a volume
// (or a CI cache directory) sync without standing up a gothub endpoint.
type FSTransport struct {
	gotDir string
	store  *object.Store
}

// OpenFSTransport opens repoGotDir (a path ending in .mem, or containing
// one) as a filesystem transport.
func OpenFSTransport(repoGotDir string) (*FSTransport, error) {
	gotDir := repoGotDir
	if filepath.Base(gotDir) != ".mem" {
		candidate := filepath.Join(gotDir, ".mem")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			gotDir = candidate
		}
	}
	if info, err := os.Stat(gotDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("open fs transport: %q is not a repository directory", repoGotDir)
	}
	store := object.NewStore(gotDir)
	return &FSTransport{gotDir: gotDir, store: store}, nil
}

func (t *FSTransport) refPath(name string) string {
	return filepath.Join(t.gotDir, "refs", filepath.FromSlash(strings.TrimPrefix(name, "/")))
}

// ListRefs walks refs/ and returns every ref found, same format as the
// gothub protocol ("heads/main", "tags/v1").
func (t *FSTransport) ListRefs(_ context.Context) (map[string]object.Hash, error) {
	root := filepath.Join(t.gotDir, "refs")
	refs := make(map[string]object.Hash)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || strings.HasSuffix(path, ".lock") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		refs[filepath.ToSlash(rel)] = object.Hash(strings.TrimSpace(string(data)))
		return nil
	})
	if os.IsNotExist(err) {
		return refs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fs transport: list refs: %w", err)
	}
	return refs, nil
}

// ReadObject reads one object directly from the remote's object store.
func (t *FSTransport) ReadObject(_ context.Context, hash object.Hash) (ObjectRecord, error) {
	objType, data, err := t.store.Read(hash)
	if err != nil {
		return ObjectRecord{}, fmt.Errorf("fs transport: read object %s: %w", hash, err)
	}
	return ObjectRecord{Hash: hash, Type: objType, Data: data}, nil
}

// WriteObject verifies and writes one object into the remote's object store.
func (t *FSTransport) WriteObject(_ context.Context, obj ObjectRecord) error {
	computed := object.HashObject(obj.Type, obj.Data)
	if obj.Hash != "" && computed != obj.Hash {
		return fmt.Errorf("fs transport: object hash mismatch: expected %s, got %s", obj.Hash, computed)
	}
	if _, err := t.store.Write(obj.Type, obj.Data); err != nil {
		return fmt.Errorf("fs transport: write object: %w", err)
	}
	return nil
}

// CASUpdateRef performs a lockfile-guarded compare-and-swap on a ref file,
// mirroring the layout and locking discipline repo.UpdateRefCAS uses for
// local refs.
func (t *FSTransport) CASUpdateRef(_ context.Context, name string, old, new *object.Hash) (object.Hash, error) {
	path := t.refPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("fs transport: cas update ref %q: mkdir: %w", name, err)
	}

	lockPath := path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("fs transport: cas update ref %q: lock held: %w", name, err)
	}
	defer func() {
		lockFile.Close()
		os.Remove(lockPath)
	}()

	current := object.Hash("")
	data, readErr := os.ReadFile(path)
	if readErr == nil {
		current = object.Hash(strings.TrimSpace(string(data)))
	} else if !os.IsNotExist(readErr) {
		return "", fmt.Errorf("fs transport: cas update ref %q: %w", name, readErr)
	}

	if old != nil && current != *old {
		return "", fmt.Errorf("fs transport: cas update ref %q: expected %s, found %s", name, *old, current)
	}

	if new == nil || *new == "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("fs transport: cas update ref %q: remove: %w", name, err)
		}
		return "", nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".ref-tmp-*")
	if err != nil {
		return "", fmt.Errorf("fs transport: cas update ref %q: tmpfile: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(string(*new) + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("fs transport: cas update ref %q: write: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("fs transport: cas update ref %q: close: %w", name, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("fs transport: cas update ref %q: rename: %w", name, err)
	}
	return *new, nil
}
