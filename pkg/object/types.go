package object

// Hash is a 64-character hex-encoded SHA-256 digest.
type Hash string

// ObjectType identifies the kind of object stored.
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"
	TypeTag    ObjectType = "tag"
	TypeTree   ObjectType = "tree"
	TypeCommit ObjectType = "commit"
)

const (
	// Tree mode constants compatible with Git's canonical mode strings.
	TreeModeDir        = "40000"
	TreeModeFile       = "100644"
	TreeModeExecutable = "100755"
)

// Blob holds raw file data.
type Blob struct {
	Data []byte
}

// TagObj preserves annotated tag payload while tracking the referenced object.
// Data stores the canonical tag bytes, where the "object" header points at the
// got hash (not git hash) so graph traversal can stay in got object space.
type TagObj struct {
	TargetHash Hash
	Data       []byte
}

// MemoryClass classifies a memory artifact for merge-strategy dispatch and
// similarity-matcher scoping. Derived from a path's top-level directory under
// current/ (current/episodic/..., current/semantic/..., current/procedural/...).
type MemoryClass string

const (
	ClassEpisodic   MemoryClass = "episodic"
	ClassSemantic   MemoryClass = "semantic"
	ClassProcedural MemoryClass = "procedural"
	ClassOther      MemoryClass = "other"
)

// TreeEntry is one entry in a tree object.
type TreeEntry struct {
	Name        string
	IsDir       bool
	Mode        string
	BlobHash    Hash
	SubtreeHash Hash
}

// TreeObj holds a sorted list of tree entries.
type TreeObj struct {
	Entries []TreeEntry // sorted by Name
}

// CommitObj represents a commit pointing to a tree with metadata.
//
// MerkleRoot is the Merkle root over the sorted blob hashes of every file
// in the commit's tree; file paths are not part of the leaves, so renaming
// a file leaves the root unchanged. Signature, when present, is an Ed25519
// signature over MerkleRoot rather than over the commit's own canonical
// bytes, and SigningKeyID identifies the trust-store entry that produced
// it (see pkg/crypto).
type CommitObj struct {
	TreeHash           Hash
	Parents            []Hash
	Author             string
	Timestamp          int64
	AuthorTimezone     string
	Committer          string
	CommitterTimestamp int64
	CommitterTimezone  string
	MerkleRoot         Hash
	Signature          string
	SigningKeyID       string
	Message            string
}
