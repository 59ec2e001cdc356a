package remote

import (
	"context"
	"fmt"

	"github.com/vivek-tiwari-vt/agmem/pkg/object"
)

// Transport is the minimal operation set a remote endpoint must support:
// list refs, read/write a single object, and compare-and-swap a ref. Client
// (gothub's HTTP protocol) and FSTransport (a plain directory) both satisfy
// it, and FetchIntoStore/push code can be written against either.
type Transport interface {
	ListRefs(ctx context.Context) (map[string]object.Hash, error)
	ReadObject(ctx context.Context, hash object.Hash) (ObjectRecord, error)
	WriteObject(ctx context.Context, obj ObjectRecord) error
	CASUpdateRef(ctx context.Context, name string, old, new *object.Hash) (object.Hash, error)
}

var _ Transport = (*Client)(nil)
var _ Transport = (*FSTransport)(nil)

// ReadObject implements Transport by delegating to GetObject.
func (c *Client) ReadObject(ctx context.Context, hash object.Hash) (ObjectRecord, error) {
	return c.GetObject(ctx, hash)
}

// WriteObject implements Transport by pushing a single object.
func (c *Client) WriteObject(ctx context.Context, obj ObjectRecord) error {
	return c.PushObjects(ctx, []ObjectRecord{obj})
}

// CASUpdateRef implements Transport as a single-ref UpdateRefs call.
func (c *Client) CASUpdateRef(ctx context.Context, name string, old, new *object.Hash) (object.Hash, error) {
	updated, err := c.UpdateRefs(ctx, []RefUpdate{{Name: name, Old: old, New: new}})
	if err != nil {
		return "", err
	}
	h, ok := updated[name]
	if !ok {
		return "", fmt.Errorf("cas update ref %q: remote did not report the new value", name)
	}
	return h, nil
}

// FetchIntoStoreVia is FetchIntoStore against any Transport rather than
// specifically a *Client, using point reads only (no batch negotiation).
// FSTransport and any future transport without a batch endpoint use this
// path; Client keeps using FetchIntoStore for batch/pack efficiency.
func FetchIntoStoreVia(ctx context.Context, t Transport, store *object.Store, wants []object.Hash) (int, error) {
	written := 0
	seen := make(map[object.Hash]struct{}, len(wants))
	stack := append([]object.Hash(nil), uniqueHashes(wants)...)

	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}

		if !store.Has(h) {
			obj, err := t.ReadObject(ctx, h)
			if err != nil {
				return written, err
			}
			n, err := writeVerifiedObject(store, obj)
			if err != nil {
				return written, err
			}
			written += n
		}

		objType, data, err := store.Read(h)
		if err != nil {
			return written, fmt.Errorf("read object %s: %w", h, err)
		}
		refs, err := referencedHashes(objType, data)
		if err != nil {
			return written, fmt.Errorf("parse object %s (%s): %w", h, objType, err)
		}
		stack = append(stack, refs...)
	}

	return written, nil
}

// PushObjectsVia uploads every record in objects through t, in order.
func PushObjectsVia(ctx context.Context, t Transport, objects []ObjectRecord) error {
	for _, obj := range objects {
		if err := t.WriteObject(ctx, obj); err != nil {
			return fmt.Errorf("write object %s: %w", obj.Hash, err)
		}
	}
	return nil
}
