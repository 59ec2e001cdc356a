// Package similarity finds near-duplicate objects among a candidate set
// so the delta encoder can pick a good base instead of diffing every pair
// of objects against every other. Matching runs in three tiers of rising
// cost: a length-ratio filter, a SimHash Hamming-distance filter, and
// finally full Levenshtein distance on whatever survives the first two.
package similarity

import (
	"crypto/sha256"
	"math/bits"
	"runtime"
	"sort"
	"sync"
)

// Object is one candidate for pairwise comparison.
type Object struct {
	ID      string
	Content []byte
}

// Pair is a matched object pair with its Levenshtein similarity score
// (1.0 = identical, 0.0 = maximally different).
type Pair struct {
	ID1, ID2   string
	Similarity float64
}

// Matcher runs the three-tier similarity scan.
type Matcher struct {
	LengthRatioThreshold float64 // skip a pair if sizes differ by more than this fraction
	SimHashThreshold     int     // skip a pair if SimHash Hamming distance exceeds this
	MinSimilarity        float64 // report a pair only if Levenshtein similarity is at least this
	Workers              int     // goroutines used for tier 3; 0 means runtime.NumCPU()

	Stats Stats
}

// Stats records how many pairs each tier filtered, for reporting.
type Stats struct {
	TotalPairs     int
	FilteredTier1  int
	FilteredTier2  int
	EvaluatedTier3 int
	MatchesFound   int
}

// NewMatcher returns a Matcher with the thresholds used throughout the
// delta encoder: a 50% length-ratio cutoff, Hamming distance <= 15 of 64
// bits, and a minimum reported similarity of 0.7 (tau3).
func NewMatcher() *Matcher {
	return &Matcher{
		LengthRatioThreshold: 0.5,
		SimHashThreshold:     15,
		MinSimilarity:        0.7,
	}
}

// FindSimilarPairs scans objects and returns every pair whose similarity
// meets MinSimilarity, sorted by similarity descending.
func (m *Matcher) FindSimilarPairs(objects []Object) []Pair {
	m.Stats = Stats{}
	if len(objects) < 2 {
		return nil
	}

	simhashes := make([]uint64, len(objects))
	for i, o := range objects {
		simhashes[i] = SimHash(o.Content)
	}

	type candidate struct{ i, j int }
	var candidates []candidate

	for i := 0; i < len(objects); i++ {
		for j := i + 1; j < len(objects); j++ {
			m.Stats.TotalPairs++

			if !passLengthFilter(len(objects[i].Content), len(objects[j].Content), m.LengthRatioThreshold) {
				m.Stats.FilteredTier1++
				continue
			}
			if hammingDistance(simhashes[i], simhashes[j]) > m.SimHashThreshold {
				m.Stats.FilteredTier2++
				continue
			}
			candidates = append(candidates, candidate{i, j})
		}
	}
	m.Stats.EvaluatedTier3 = len(candidates)
	if len(candidates) == 0 {
		return nil
	}

	workers := m.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(candidates) {
		workers = len(candidates)
	}

	results := make([]*Pair, len(candidates))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				c := candidates[idx]
				sim := levenshteinSimilarity(objects[c.i].Content, objects[c.j].Content)
				if sim >= m.MinSimilarity {
					results[idx] = &Pair{ID1: objects[c.i].ID, ID2: objects[c.j].ID, Similarity: sim}
				}
			}
		}()
	}
	for idx := range candidates {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	var pairs []Pair
	for _, r := range results {
		if r != nil {
			pairs = append(pairs, *r)
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Similarity > pairs[j].Similarity })
	m.Stats.MatchesFound = len(pairs)
	return pairs
}

func passLengthFilter(len1, len2 int, threshold float64) bool {
	if len1 == 0 || len2 == 0 {
		return len1 == len2
	}
	maxLen, minLen := len1, len2
	if minLen > maxLen {
		maxLen, minLen = minLen, maxLen
	}
	ratio := 1.0 - float64(minLen)/float64(maxLen)
	return ratio <= threshold
}

// SimHash computes a 64-bit approximate fingerprint of content: each bit
// is set if more 64-byte chunks hashed a 1 into that bit position than a
// 0, so near-duplicate content yields fingerprints with a small Hamming
// distance.
func SimHash(content []byte) uint64 {
	if len(content) == 0 {
		return 0
	}
	var votes [64]int
	for i := 0; i < len(content); i += 64 {
		end := i + 64
		if end > len(content) {
			end = len(content)
		}
		sum := sha256.Sum256(content[i:end])
		for bit := 0; bit < 64; bit++ {
			byteIdx := bit / 8
			bitPos := bit % 8
			if byteIdx >= len(sum) {
				continue
			}
			if (sum[byteIdx]>>bitPos)&1 == 1 {
				votes[bit]++
			} else {
				votes[bit]--
			}
		}
	}
	var result uint64
	for bit, v := range votes {
		if v > 0 {
			result |= 1 << uint(bit)
		}
	}
	return result
}

func hammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// levenshteinSimilarity returns 1 - (edit distance / max length).
func levenshteinSimilarity(a, b []byte) float64 {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1.0
	}
	dist := levenshteinDistance(a, b)
	return 1.0 - float64(dist)/float64(maxLen)
}

// levenshteinDistance computes edit distance with the classic two-row
// space optimization.
func levenshteinDistance(a, b []byte) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	curr := make([]int, len(b)+1)

	for i, ca := range a {
		curr[0] = i + 1
		for j, cb := range b {
			insertion := prev[j+1] + 1
			deletion := curr[j] + 1
			substitution := prev[j]
			if ca != cb {
				substitution++
			}
			best := insertion
			if deletion < best {
				best = deletion
			}
			if substitution < best {
				best = substitution
			}
			curr[j+1] = best
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
