// Package agmemerr centralizes the error kinds callers need to branch on
// across package boundaries (CLI exit codes, remote sync retry logic,
// merge conflict reporting) behind sentinels usable with errors.Is.
package agmemerr

import "errors"

// Kind classifies an error for callers that need to decide how to react
// (retry, prompt, abort) without string-matching messages.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindCASMismatch  Kind = "cas_mismatch"
	KindUntrusted    Kind = "untrusted"
	KindCorrupt      Kind = "corrupt"
	KindInvalidInput Kind = "invalid_input"
	KindLockBusy     Kind = "lock_busy"
)

// Sentinels for errors.Is checks. Wrap one of these with fmt.Errorf's
// "%w" verb to add context while keeping the kind identifiable.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrCASMismatch  = errors.New("compare-and-swap mismatch")
	ErrUntrusted    = errors.New("signing key not trusted")
	ErrCorrupt      = errors.New("object or log integrity check failed")
	ErrInvalidInput = errors.New("invalid input")
	ErrLockBusy     = errors.New("repository lock busy")
)

var sentinelByKind = map[Kind]error{
	KindNotFound:     ErrNotFound,
	KindConflict:     ErrConflict,
	KindCASMismatch:  ErrCASMismatch,
	KindUntrusted:    ErrUntrusted,
	KindCorrupt:      ErrCorrupt,
	KindInvalidInput: ErrInvalidInput,
	KindLockBusy:     ErrLockBusy,
}

// Sentinel returns the package sentinel error for kind, or nil if kind is
// unrecognized.
func Sentinel(kind Kind) error {
	return sentinelByKind[kind]
}

// Is reports whether err is (or wraps) the sentinel for kind.
func Is(err error, kind Kind) bool {
	sentinel := Sentinel(kind)
	if sentinel == nil {
		return false
	}
	return errors.Is(err, sentinel)
}
