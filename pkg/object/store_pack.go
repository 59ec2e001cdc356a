package object

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/vivek-tiwari-vt/agmem/pkg/similarity"
)

// GCSummary reports the outcome of Store.GC.
type GCSummary struct {
	PackedObjects int
	PrunedObjects int
	PackFile      string
	IndexFile     string
}

// VerifySummary reports the outcome of Store.Verify.
type VerifySummary struct {
	LooseObjects int
	PackFiles    int
	PackObjects  int
}

// GC packs loose objects that are not already indexed by an existing pack idx,
// then prunes the now-redundant loose copies. Pruning only happens after the
// pack and its index are fully committed to disk.
func (s *Store) GC() (*GCSummary, error) {
	return s.gcLoose(nil)
}

// GCReachable is GC limited to the loose objects reachable from roots.
// Loose objects that are not reachable are neither packed nor removed.
func (s *Store) GCReachable(roots []Hash) (*GCSummary, error) {
	reachable, err := s.ReachableSet(roots)
	if err != nil {
		return nil, err
	}
	return s.gcLoose(reachable)
}

// gcLoose packs the loose objects in keep, or all of them when keep is nil.
func (s *Store) gcLoose(keep map[Hash]struct{}) (*GCSummary, error) {
	looseHashes, err := s.listLooseObjectHashes()
	if err != nil {
		return nil, err
	}

	packed, err := s.packedHashSet()
	if err != nil {
		return nil, err
	}

	toPack := make([]Hash, 0, len(looseHashes))
	for _, h := range looseHashes {
		if _, ok := packed[h]; ok {
			continue
		}
		if _, ok := keep[h]; keep != nil && !ok {
			continue
		}
		toPack = append(toPack, h)
	}
	if len(toPack) == 0 {
		return &GCSummary{}, nil
	}
	if len(toPack) > int(^uint32(0)) {
		return nil, fmt.Errorf("gc: too many objects to pack: %d", len(toPack))
	}

	packDir := filepath.Join(s.root, "objects", "pack")
	if err := os.MkdirAll(packDir, 0o755); err != nil {
		return nil, fmt.Errorf("gc: mkdir pack dir: %w", err)
	}

	packTmp, err := os.CreateTemp(packDir, ".tmp-pack-*.pack")
	if err != nil {
		return nil, fmt.Errorf("gc: create pack temp file: %w", err)
	}
	packTmpPath := packTmp.Name()
	packTmpRemoved := false
	defer func() {
		if !packTmpRemoved {
			_ = os.Remove(packTmpPath)
		}
	}()

	pw, err := NewPackWriter(packTmp, uint32(len(toPack)))
	if err != nil {
		_ = packTmp.Close()
		return nil, fmt.Errorf("gc: create pack writer: %w", err)
	}

	envelopes := make([][]byte, len(toPack))
	for i, h := range toPack {
		objType, content, err := s.readLoose(h)
		if err != nil {
			_ = packTmp.Close()
			return nil, fmt.Errorf("gc: read loose object %s: %w", h, err)
		}
		envelopes[i] = makeObjectEnvelope(objType, content)
	}

	deltaBase := selectDeltaBases(envelopes)

	indexEntries := make([]PackIndexEntry, len(toPack))
	offsets := make([]uint64, len(toPack))
	for i, h := range toPack {
		offsets[i] = pw.CurrentOffset()

		if baseIdx, ok := deltaBase[i]; ok {
			if err := pw.WriteOfsDelta(offsets[baseIdx], envelopes[baseIdx], envelopes[i]); err != nil {
				_ = packTmp.Close()
				return nil, fmt.Errorf("gc: write ofs-delta entry %s: %w", h, err)
			}
		} else if err := pw.WriteEntry(PackBlob, envelopes[i]); err != nil {
			_ = packTmp.Close()
			return nil, fmt.Errorf("gc: write pack entry %s: %w", h, err)
		}

		indexEntries[i] = PackIndexEntry{Hash: h, Offset: offsets[i]}
	}

	packChecksum, err := pw.Finish()
	if err != nil {
		_ = packTmp.Close()
		return nil, fmt.Errorf("gc: finalize pack: %w", err)
	}
	if err := packTmp.Close(); err != nil {
		return nil, fmt.Errorf("gc: close pack temp file: %w", err)
	}

	packBase := "pack-" + string(packChecksum)
	packPath := filepath.Join(packDir, packBase+".pack")
	idxPath := filepath.Join(packDir, packBase+".idx")
	if err := os.Rename(packTmpPath, packPath); err != nil {
		return nil, fmt.Errorf("gc: rename pack file: %w", err)
	}
	packTmpRemoved = true

	idxTmp, err := os.CreateTemp(packDir, ".tmp-pack-*.idx")
	if err != nil {
		_ = os.Remove(packPath)
		return nil, fmt.Errorf("gc: create index temp file: %w", err)
	}
	idxTmpPath := idxTmp.Name()
	idxTmpRemoved := false
	defer func() {
		if !idxTmpRemoved {
			_ = os.Remove(idxTmpPath)
		}
	}()

	if _, err := WritePackIndex(idxTmp, indexEntries, packChecksum); err != nil {
		_ = idxTmp.Close()
		_ = os.Remove(packPath)
		return nil, fmt.Errorf("gc: write pack index: %w", err)
	}
	if err := idxTmp.Close(); err != nil {
		_ = os.Remove(packPath)
		return nil, fmt.Errorf("gc: close index temp file: %w", err)
	}
	if err := os.Rename(idxTmpPath, idxPath); err != nil {
		_ = os.Remove(packPath)
		return nil, fmt.Errorf("gc: rename index file: %w", err)
	}
	idxTmpRemoved = true

	pruned := 0
	for _, h := range toPack {
		if err := os.Remove(s.objectPath(h)); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("gc: prune loose object %s: %w", h, err)
			}
			continue
		}
		pruned++
	}

	return &GCSummary{
		PackedObjects: len(toPack),
		PrunedObjects: pruned,
		PackFile:      filepath.Base(packPath),
		IndexFile:     filepath.Base(idxPath),
	}, nil
}

// selectDeltaBases runs the similarity matcher over a GC batch's object
// envelopes and returns, for each index that should be packed as an
// OFS_DELTA, the index of the earlier-written envelope to delta against.
// Chains are capped at depth one: an envelope already selected as a delta
// target is never itself used as a base, so every base entry in the
// returned map is a full object.
func selectDeltaBases(envelopes [][]byte) map[int]int {
	if len(envelopes) < 2 {
		return nil
	}

	objs := make([]similarity.Object, len(envelopes))
	for i, e := range envelopes {
		objs[i] = similarity.Object{ID: strconv.Itoa(i), Content: e}
	}

	pairs := similarity.NewMatcher().FindSimilarPairs(objs)
	if len(pairs) == 0 {
		return nil
	}

	isDelta := make(map[int]bool, len(envelopes))
	isBase := make(map[int]bool, len(envelopes))
	base := make(map[int]int, len(pairs))
	for _, p := range pairs {
		i, err1 := strconv.Atoi(p.ID1)
		j, err2 := strconv.Atoi(p.ID2)
		if err1 != nil || err2 != nil {
			continue
		}
		lower, higher := i, j
		if higher < lower {
			lower, higher = higher, lower
		}
		if _, already := base[higher]; already {
			continue
		}
		if isDelta[lower] || isBase[higher] {
			continue
		}
		base[higher] = lower
		isDelta[higher] = true
		isBase[lower] = true
	}
	return base
}

// Verify checks object integrity across loose objects and pack/index entries.
func (s *Store) Verify() (*VerifySummary, error) {
	report := &VerifySummary{}

	looseHashes, err := s.listLooseObjectHashes()
	if err != nil {
		return nil, err
	}
	for _, h := range looseHashes {
		objType, content, err := s.readLoose(h)
		if err != nil {
			return nil, fmt.Errorf("verify loose %s: %w", h, err)
		}
		if actual := HashObject(objType, content); actual != h {
			return nil, fmt.Errorf("verify loose %s: hash mismatch (computed %s)", h, actual)
		}
		report.LooseObjects++
	}

	idxPaths, err := s.listPackIndexPaths()
	if err != nil {
		return nil, err
	}
	for _, idxPath := range idxPaths {
		idxData, err := os.ReadFile(idxPath)
		if err != nil {
			return nil, fmt.Errorf("verify pack index %s: %w", filepath.Base(idxPath), err)
		}
		idx, err := ReadPackIndex(idxData)
		if err != nil {
			return nil, fmt.Errorf("verify pack index %s: %w", filepath.Base(idxPath), err)
		}

		packPath := packPathForIndex(idxPath)
		packData, err := os.ReadFile(packPath)
		if err != nil {
			return nil, fmt.Errorf("verify pack %s: %w", filepath.Base(packPath), err)
		}
		pf, err := ReadPackResolved(packData)
		if err != nil {
			return nil, fmt.Errorf("verify pack %s: %w", filepath.Base(packPath), err)
		}
		if pf.Checksum != idx.PackChecksum {
			return nil, fmt.Errorf(
				"verify pack %s: checksum mismatch between idx (%s) and pack (%s)",
				filepath.Base(packPath),
				idx.PackChecksum,
				pf.Checksum,
			)
		}

		offsets := make(map[uint64]PackEntry, len(pf.Entries))
		for _, entry := range pf.Entries {
			if _, exists := offsets[entry.Offset]; exists {
				return nil, fmt.Errorf("verify pack %s: duplicate offset %d", filepath.Base(packPath), entry.Offset)
			}
			offsets[entry.Offset] = entry
		}

		entries := idx.Entries()
		if len(entries) != len(offsets) {
			return nil, fmt.Errorf(
				"verify pack %s: idx entry count %d does not match pack entry count %d",
				filepath.Base(packPath),
				len(entries),
				len(offsets),
			)
		}
		for _, indexEntry := range entries {
			packEntry, ok := offsets[indexEntry.Offset]
			if !ok {
				return nil, fmt.Errorf(
					"verify pack %s: missing pack entry for hash %s at offset %d",
					filepath.Base(packPath),
					indexEntry.Hash,
					indexEntry.Offset,
				)
			}
			if _, _, err := decodeIndexedPackEntry(indexEntry.Hash, packEntry); err != nil {
				return nil, fmt.Errorf("verify pack %s hash %s: %w", filepath.Base(packPath), indexEntry.Hash, err)
			}
			report.PackObjects++
		}
		report.PackFiles++
	}

	return report, nil
}

func (s *Store) readFromPacks(h Hash) (ObjectType, []byte, error) {
	idxPaths, err := s.listPackIndexPaths()
	if err != nil {
		return "", nil, err
	}
	for _, idxPath := range idxPaths {
		idxData, err := os.ReadFile(idxPath)
		if err != nil {
			return "", nil, fmt.Errorf("object read %s: read pack index %s: %w", h, filepath.Base(idxPath), err)
		}
		idx, err := ReadPackIndex(idxData)
		if err != nil {
			return "", nil, fmt.Errorf("object read %s: parse pack index %s: %w", h, filepath.Base(idxPath), err)
		}
		indexEntry, ok := idx.Find(h)
		if !ok {
			continue
		}

		packPath := packPathForIndex(idxPath)
		packData, err := os.ReadFile(packPath)
		if err != nil {
			return "", nil, fmt.Errorf("object read %s: read pack %s: %w", h, filepath.Base(packPath), err)
		}

		pf, err := ReadPackResolved(packData)
		if err != nil {
			return "", nil, fmt.Errorf("object read %s: parse pack %s: %w", h, filepath.Base(packPath), err)
		}
		if pf.Checksum != idx.PackChecksum {
			return "", nil, fmt.Errorf(
				"object read %s: checksum mismatch between idx %s and pack %s",
				h,
				filepath.Base(idxPath),
				filepath.Base(packPath),
			)
		}

		packEntry, ok := findPackEntryByOffset(pf.Entries, indexEntry.Offset)
		if !ok {
			return "", nil, fmt.Errorf(
				"object read %s: pack %s missing entry at offset %d",
				h,
				filepath.Base(packPath),
				indexEntry.Offset,
			)
		}
		return decodeIndexedPackEntry(h, packEntry)
	}

	return "", nil, fmt.Errorf("object read %s: %w", h, os.ErrNotExist)
}

func decodeIndexedPackEntry(expected Hash, entry PackEntry) (ObjectType, []byte, error) {
	var envelopeHashMismatchErr error
	if envelopeType, envelopeData, err := parseObjectEnvelope(entry.Data, expected); err == nil {
		if computed := HashObject(envelopeType, envelopeData); computed == expected {
			return envelopeType, envelopeData, nil
		}
		envelopeHashMismatchErr = fmt.Errorf(
			"envelope hash mismatch: expected %s, computed %s",
			expected,
			HashObject(envelopeType, envelopeData),
		)
	}

	objType, ok := packObjectTypeToObjectType(entry.Type)
	if !ok {
		if envelopeHashMismatchErr != nil {
			return "", nil, envelopeHashMismatchErr
		}
		return "", nil, fmt.Errorf("unsupported packed object type %d", entry.Type)
	}
	computed := HashObject(objType, entry.Data)
	if computed != expected {
		return "", nil, fmt.Errorf(
			"packed object hash mismatch: expected %s, computed %s",
			expected,
			computed,
		)
	}
	return objType, entry.Data, nil
}

func findPackEntryByOffset(entries []PackEntry, offset uint64) (PackEntry, bool) {
	for _, entry := range entries {
		if entry.Offset == offset {
			return entry, true
		}
	}
	return PackEntry{}, false
}

func (s *Store) packedHashSet() (map[Hash]struct{}, error) {
	idxPaths, err := s.listPackIndexPaths()
	if err != nil {
		return nil, err
	}

	out := make(map[Hash]struct{})
	for _, idxPath := range idxPaths {
		packPath := packPathForIndex(idxPath)
		if _, err := os.Stat(packPath); err != nil {
			return nil, fmt.Errorf("read pack for index %s: %w", filepath.Base(idxPath), err)
		}

		idxData, err := os.ReadFile(idxPath)
		if err != nil {
			return nil, fmt.Errorf("read pack index %s: %w", filepath.Base(idxPath), err)
		}
		idx, err := ReadPackIndex(idxData)
		if err != nil {
			return nil, fmt.Errorf("parse pack index %s: %w", filepath.Base(idxPath), err)
		}
		for _, entry := range idx.Entries() {
			out[entry.Hash] = struct{}{}
		}
	}
	return out, nil
}

func (s *Store) listPackIndexPaths() ([]string, error) {
	packDir := filepath.Join(s.root, "objects", "pack")
	entries, err := os.ReadDir(packDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read pack dir: %w", err)
	}

	idxPaths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.HasSuffix(entry.Name(), ".idx") {
			continue
		}
		idxPaths = append(idxPaths, filepath.Join(packDir, entry.Name()))
	}
	sort.Strings(idxPaths)
	return idxPaths, nil
}

func (s *Store) listLooseObjectHashes() ([]Hash, error) {
	objectsDir := filepath.Join(s.root, "objects")
	fanoutDirs, err := os.ReadDir(objectsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read objects dir: %w", err)
	}

	hashes := make([]Hash, 0)
	for _, fanoutDir := range fanoutDirs {
		if !fanoutDir.IsDir() {
			continue
		}
		prefix := fanoutDir.Name()
		if prefix == "pack" || !isHexHashComponent(prefix, 2) {
			continue
		}

		objectDir := filepath.Join(objectsDir, prefix)
		objectEntries, err := os.ReadDir(objectDir)
		if err != nil {
			return nil, fmt.Errorf("read objects fanout %s: %w", prefix, err)
		}
		for _, objectEntry := range objectEntries {
			if objectEntry.IsDir() {
				continue
			}
			suffix := objectEntry.Name()
			if !isHexHashComponent(suffix, 62) {
				continue
			}
			hashes = append(hashes, Hash(prefix+suffix))
		}
	}

	sort.Slice(hashes, func(i, j int) bool {
		return hashes[i] < hashes[j]
	})
	return hashes, nil
}

func isHexHashComponent(s string, expectedLen int) bool {
	if len(s) != expectedLen {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func packPathForIndex(idxPath string) string {
	return strings.TrimSuffix(idxPath, ".idx") + ".pack"
}

func makeObjectEnvelope(objType ObjectType, data []byte) []byte {
	header := fmt.Sprintf("%s %d\x00", objType, len(data))
	out := make([]byte, 0, len(header)+len(data))
	out = append(out, header...)
	out = append(out, data...)
	return out
}
