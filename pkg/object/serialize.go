package object

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Blob
// ---------------------------------------------------------------------------

// MarshalBlob serializes a Blob to raw bytes (identity). It returns b.Data
// itself without copying.
func MarshalBlob(b *Blob) []byte {
	return b.Data
}

// UnmarshalBlob deserializes raw bytes into a Blob.
func UnmarshalBlob(data []byte) (*Blob, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return &Blob{Data: out}, nil
}

// ---------------------------------------------------------------------------
// TagObj
// ---------------------------------------------------------------------------

// MarshalTag serializes a TagObj to raw bytes (identity; Data already holds
// the canonical tag payload).
func MarshalTag(t *TagObj) []byte {
	out := make([]byte, len(t.Data))
	copy(out, t.Data)
	return out
}

// UnmarshalTag parses a TagObj from its serialized form. The first line must
// be "object <hash>", identifying the referenced object.
func UnmarshalTag(data []byte) (*TagObj, error) {
	firstLine, _, _ := strings.Cut(string(data), "\n")
	key, val, ok := strings.Cut(firstLine, " ")
	if !ok || key != "object" {
		return nil, fmt.Errorf("unmarshal tag: missing object header")
	}

	out := make([]byte, len(data))
	copy(out, data)
	return &TagObj{TargetHash: Hash(val), Data: out}, nil
}

// ---------------------------------------------------------------------------
// TreeObj
// ---------------------------------------------------------------------------

// MarshalTree serializes a TreeObj. Entries are sorted by Name for
// deterministic output. Each entry is one line:
//
//	name mode blobhash subtreehash
//
// where mode is a Git-compatible mode string (e.g. 40000, 100644, 100755),
// and empty hashes are represented as "-".
func MarshalTree(tr *TreeObj) []byte {
	// Sort entries by Name for determinism.
	sorted := make([]TreeEntry, len(tr.Entries))
	copy(sorted, tr.Entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	var buf bytes.Buffer
	for _, e := range sorted {
		mode := treeModeOrDefault(e)
		bh := hashOrDash(e.BlobHash)
		sth := hashOrDash(e.SubtreeHash)
		fmt.Fprintf(&buf, "%s %s %s %s\n", e.Name, mode, bh, sth)
	}
	return buf.Bytes()
}

func hashOrDash(h Hash) string {
	if h == "" {
		return "-"
	}
	return string(h)
}

func dashOrHash(s string) Hash {
	if s == "-" {
		return Hash("")
	}
	return Hash(s)
}

// UnmarshalTree parses a TreeObj from its serialized form.
func UnmarshalTree(data []byte) (*TreeObj, error) {
	tr := &TreeObj{}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return tr, nil
	}
	for _, line := range strings.Split(text, "\n") {
		parts := strings.SplitN(line, " ", 4)
		if len(parts) != 4 {
			return nil, fmt.Errorf("unmarshal tree: malformed entry %q", line)
		}
		isDir, mode, err := parseTreeMode(parts[1])
		if err != nil {
			return nil, fmt.Errorf("unmarshal tree: %w", err)
		}
		entry := TreeEntry{
			Name:        parts[0],
			IsDir:       isDir,
			Mode:        mode,
			BlobHash:    dashOrHash(parts[2]),
			SubtreeHash: dashOrHash(parts[3]),
		}
		tr.Entries = append(tr.Entries, entry)
	}
	return tr, nil
}

func treeModeOrDefault(e TreeEntry) string {
	if e.IsDir {
		return TreeModeDir
	}
	if strings.TrimSpace(e.Mode) == "" {
		return TreeModeFile
	}
	return e.Mode
}

func parseTreeMode(mode string) (bool, string, error) {
	// Backward compatibility for older serialized trees.
	switch mode {
	case "dir":
		return true, TreeModeDir, nil
	case "file":
		return false, TreeModeFile, nil
	}

	switch mode {
	case TreeModeDir:
		return true, TreeModeDir, nil
	case TreeModeFile:
		return false, TreeModeFile, nil
	case TreeModeExecutable:
		return false, TreeModeExecutable, nil
	default:
		return false, "", fmt.Errorf("unknown mode %q", mode)
	}
}

// ---------------------------------------------------------------------------
// CommitObj
// ---------------------------------------------------------------------------

// MarshalCommit serializes a CommitObj:
//
//	tree H
//	parent H     (zero or more)
//	author A
//	timestamp T
//	committer C
//	committer_timestamp T
//	merkleroot H   (optional)
//	signature S    (optional)
//	signingkey K   (optional)
//
//	message
func MarshalCommit(c *CommitObj) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", string(c.TreeHash))
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", string(p))
	}
	fmt.Fprintf(&buf, "author %s\n", c.Author)
	fmt.Fprintf(&buf, "timestamp %d\n", c.Timestamp)
	if strings.TrimSpace(c.AuthorTimezone) != "" {
		fmt.Fprintf(&buf, "authortz %s\n", c.AuthorTimezone)
	}
	if strings.TrimSpace(c.Committer) != "" {
		fmt.Fprintf(&buf, "committer %s\n", c.Committer)
	}
	if c.CommitterTimestamp != 0 {
		fmt.Fprintf(&buf, "committer_timestamp %d\n", c.CommitterTimestamp)
	}
	if strings.TrimSpace(c.CommitterTimezone) != "" {
		fmt.Fprintf(&buf, "committertz %s\n", c.CommitterTimezone)
	}
	if strings.TrimSpace(string(c.MerkleRoot)) != "" {
		fmt.Fprintf(&buf, "merkleroot %s\n", string(c.MerkleRoot))
	}
	if strings.TrimSpace(c.Signature) != "" {
		fmt.Fprintf(&buf, "signature %s\n", c.Signature)
	}
	if strings.TrimSpace(c.SigningKeyID) != "" {
		fmt.Fprintf(&buf, "signingkey %s\n", c.SigningKeyID)
	}
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

// UnmarshalCommit parses a CommitObj from its serialized form.
func UnmarshalCommit(data []byte) (*CommitObj, error) {
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return nil, fmt.Errorf("unmarshal commit: missing header/message separator")
	}
	header := string(data[:idx])
	message := string(data[idx+2:])

	c := &CommitObj{Message: message}
	for _, line := range strings.Split(header, "\n") {
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("unmarshal commit: malformed header line %q", line)
		}
		switch key {
		case "tree":
			c.TreeHash = Hash(val)
		case "parent":
			c.Parents = append(c.Parents, Hash(val))
		case "author":
			c.Author = val
		case "timestamp":
			ts, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: bad timestamp %q: %w", val, err)
			}
			c.Timestamp = ts
		case "authortz":
			c.AuthorTimezone = val
		case "committer":
			c.Committer = val
		case "committertz":
			c.CommitterTimezone = val
		case "committer_timestamp":
			ts, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: bad committer_timestamp %q: %w", val, err)
			}
			c.CommitterTimestamp = ts
		case "merkleroot":
			c.MerkleRoot = Hash(val)
		case "signature":
			c.Signature = val
		case "signingkey":
			c.SigningKeyID = val
		default:
			return nil, fmt.Errorf("unmarshal commit: unknown header key %q", key)
		}
	}
	return c, nil
}
