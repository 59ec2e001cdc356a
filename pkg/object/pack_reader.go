package object

import (
	"bytes"
	"compress/zlib"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// PackEntry represents one object entry in a pack stream. For OFS_DELTA and
// REF_DELTA entries as decoded by ReadPack, Data holds the undecoded delta
// instruction stream and Type equals OriginalType; ResolvePackEntries
// replaces Type and Data with the reconstructed object while leaving
// OriginalType as the delta marker.
type PackEntry struct {
	Type         PackObjectType
	OriginalType PackObjectType
	Offset       uint64 // byte offset of this entry's header within the pack stream
	Size         uint64
	Data         []byte

	BaseDistance uint64 // OFS_DELTA only: backward distance to the base entry's offset
	BaseRef      Hash   // REF_DELTA only: hash of the base object
}

// PackFile is the decoded content of a full pack stream.
type PackFile struct {
	Header   PackHeader
	Entries  []PackEntry
	Checksum Hash
}

// ReadPack parses a full pack file byte slice, verifies trailer checksum, and
// returns decoded entries.
func ReadPack(data []byte) (*PackFile, error) {
	if len(data) < packHeaderSize+sha256.Size {
		return nil, fmt.Errorf("pack too short: %d", len(data))
	}

	payload := data[:len(data)-sha256.Size]
	trailer := data[len(data)-sha256.Size:]

	sum := sha256.Sum256(payload)
	if !bytes.Equal(sum[:], trailer) {
		return nil, fmt.Errorf("pack checksum mismatch")
	}

	header, err := UnmarshalPackHeader(payload[:packHeaderSize])
	if err != nil {
		return nil, err
	}

	offset := packHeaderSize
	entries := make([]PackEntry, 0, header.NumObjects)
	for i := uint32(0); i < header.NumObjects; i++ {
		entryOffset := offset
		objType, size, n, err := decodePackEntryHeaderStrict(payload[offset:])
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		offset += n

		var baseDistance uint64
		var baseRef Hash
		switch objType {
		case PackOfsDelta:
			dist, consumed, err := decodeOfsDeltaDistance(payload[offset:])
			if err != nil {
				return nil, fmt.Errorf("entry %d: ofs-delta distance: %w", i, err)
			}
			baseDistance = dist
			offset += consumed
		case PackRefDelta:
			if offset+sha256.Size > len(payload) {
				return nil, fmt.Errorf("entry %d: ref-delta base hash truncated", i)
			}
			baseRef = Hash(hex.EncodeToString(payload[offset : offset+sha256.Size]))
			offset += sha256.Size
		}

		if offset >= len(payload) {
			return nil, fmt.Errorf("entry %d: missing compressed payload", i)
		}

		sub := bytes.NewReader(payload[offset:])
		zr, err := zlib.NewReader(sub)
		if err != nil {
			return nil, fmt.Errorf("entry %d: zlib reader: %w", i, err)
		}
		raw, err := io.ReadAll(zr)
		if err != nil {
			_ = zr.Close()
			return nil, fmt.Errorf("entry %d: decompress: %w", i, err)
		}
		if err := zr.Close(); err != nil {
			return nil, fmt.Errorf("entry %d: close zlib stream: %w", i, err)
		}
		if uint64(len(raw)) != size {
			return nil, fmt.Errorf("entry %d: size mismatch header=%d decoded=%d", i, size, len(raw))
		}

		consumed := len(payload[offset:]) - sub.Len()
		offset += consumed

		entries = append(entries, PackEntry{
			Type:         objType,
			OriginalType: objType,
			Offset:       uint64(entryOffset),
			Size:         size,
			Data:         raw,
			BaseDistance: baseDistance,
			BaseRef:      baseRef,
		})
	}

	if offset != len(payload) {
		return nil, fmt.Errorf("pack has trailing undecoded bytes: %d", len(payload)-offset)
	}

	return &PackFile{
		Header:   *header,
		Entries:  entries,
		Checksum: Hash(hex.EncodeToString(trailer)),
	}, nil
}

// ReadPackResolved decodes a pack stream and resolves every OFS_DELTA and
// REF_DELTA entry against its base, so callers see fully reconstructed
// objects instead of raw delta instructions.
func ReadPackResolved(data []byte) (*PackFile, error) {
	pf, err := ReadPack(data)
	if err != nil {
		return nil, err
	}
	resolved, err := ResolvePackEntries(pf.Entries)
	if err != nil {
		return nil, err
	}
	return &PackFile{
		Header:   pf.Header,
		Entries:  resolved,
		Checksum: pf.Checksum,
	}, nil
}

// ResolvePackEntries walks entries in stream order and reconstructs every
// delta entry's object data, applying base-offset lookups for OFS_DELTA and
// base-hash lookups for REF_DELTA. Entries are processed in order, so a
// delta's base must already have been resolved (i.e. appear earlier in the
// slice); a base that cannot be found is an error.
func ResolvePackEntries(entries []PackEntry) ([]PackEntry, error) {
	resolved := make([]PackEntry, len(entries))
	byOffset := make(map[uint64]int, len(entries))
	for i, e := range entries {
		byOffset[e.Offset] = i
	}

	for i, e := range entries {
		switch e.OriginalType {
		case PackOfsDelta:
			baseOffset := e.Offset - e.BaseDistance
			baseIdx, ok := byOffset[baseOffset]
			if !ok || baseIdx >= i {
				return nil, fmt.Errorf("entry %d: ofs-delta base at offset %d not found", i, baseOffset)
			}
			data, err := applyDelta(resolved[baseIdx].Data, e.Data)
			if err != nil {
				return nil, fmt.Errorf("entry %d: resolve ofs-delta: %w", i, err)
			}
			resolved[i] = PackEntry{
				Type:         resolved[baseIdx].Type,
				OriginalType: e.OriginalType,
				Offset:       e.Offset,
				Size:         uint64(len(data)),
				Data:         data,
			}
		case PackRefDelta:
			baseIdx := -1
			for j := 0; j < i; j++ {
				if HashObject(packObjectTypeToCanonical(resolved[j].Type), resolved[j].Data) == e.BaseRef {
					baseIdx = j
					break
				}
			}
			if baseIdx < 0 {
				return nil, fmt.Errorf("entry %d: ref-delta base %s not found", i, e.BaseRef)
			}
			data, err := applyDelta(resolved[baseIdx].Data, e.Data)
			if err != nil {
				return nil, fmt.Errorf("entry %d: resolve ref-delta: %w", i, err)
			}
			resolved[i] = PackEntry{
				Type:         resolved[baseIdx].Type,
				OriginalType: e.OriginalType,
				Offset:       e.Offset,
				Size:         uint64(len(data)),
				Data:         data,
			}
		default:
			resolved[i] = e
		}
	}

	return resolved, nil
}

// packObjectTypeToCanonical maps a pack object type to the canonical object
// type used for content hashing, defaulting to TypeBlob for delta markers
// that never reach content hashing directly.
func packObjectTypeToCanonical(t PackObjectType) ObjectType {
	typ, ok := packObjectTypeToObjectType(t)
	if !ok {
		return TypeBlob
	}
	return typ
}

// ReadPackFromReader reads a complete pack stream from r and delegates to
// ReadPack for decode and verification.
func ReadPackFromReader(r io.Reader) (*PackFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pack stream: %w", err)
	}
	return ReadPack(data)
}

func decodePackEntryHeaderStrict(data []byte) (PackObjectType, uint64, int, error) {
	if len(data) == 0 {
		return 0, 0, 0, fmt.Errorf("entry header truncated")
	}

	b := data[0]
	objType := PackObjectType((b >> 4) & 0x7)
	size := uint64(b & 0x0f)
	shift := uint(4)
	consumed := 1

	for b&0x80 != 0 {
		if consumed >= len(data) {
			return 0, 0, 0, fmt.Errorf("entry header truncated")
		}
		b = data[consumed]
		size |= uint64(b&0x7f) << shift
		shift += 7
		consumed++
	}

	return objType, size, consumed, nil
}
