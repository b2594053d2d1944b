// Package duplication implements the memory bank's duplication detector
// (spec component C9): exact content-hash clustering followed by a bucketed
// similarity pass, so the similarity phase never degrades to O(n²) over
// the whole bank.
package duplication

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DefaultSimilarityThreshold is T_sim from spec §4.9.
const DefaultSimilarityThreshold = 0.85

// similarityCacheCapacity bounds the (sha_a, sha_b) ratio cache.
const similarityCacheCapacity = 1000

// lengthBucketWidth groups files by content length before any pairwise
// comparison, turning the similarity scan into O(n) + O(k²) within groups
// of size k ≪ n, per spec §4.9's stated complexity bound. Hash-prefix
// bucketing is unusable here: near-duplicates differ in content and thus
// hash completely differently, so only a content-derived bucket (length)
// groups them together.
const lengthBucketWidth = 64

// Item is one file or section considered for duplication.
type Item struct {
	Name    string
	Content string
}

// ExactCluster is a set of items sharing an identical content hash.
type ExactCluster struct {
	SHA256 string
	Names  []string
}

// SimilarPair is two items whose content similarity ratio exceeds T_sim.
type SimilarPair struct {
	A, B  string
	Ratio float64
}

// Result is the detector's output (spec §4.9).
type Result struct {
	ExactDuplicates []ExactCluster
	SimilarContent  []SimilarPair
	DuplicatesFound int
}

// Detector finds exact and similar content across a set of items.
type Detector struct {
	threshold float64
	dmp       *diffmatchpatch.DiffMatchPatch

	mu    sync.Mutex
	cache map[[2]string]float64
}

// New creates a Detector using the given T_sim threshold.
func New(threshold float64) *Detector {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &Detector{threshold: threshold, dmp: diffmatchpatch.New(), cache: make(map[[2]string]float64)}
}

// Detect runs both phases over items and returns the combined result.
func (d *Detector) Detect(items []Item) Result {
	hashOf := make(map[string]string, len(items))
	for _, it := range items {
		hashOf[it.Name] = sha256Hex(it.Content)
	}

	exact, remaining := d.exactClusters(items, hashOf)
	similar := d.similarPairs(remaining, hashOf)

	found := 0
	for _, c := range exact {
		found += len(c.Names)
	}
	found += len(similar)

	return Result{ExactDuplicates: exact, SimilarContent: similar, DuplicatesFound: found}
}

// exactClusters groups items by identical content hash. Items belonging to
// an exact cluster are excluded from the similarity phase — they are
// already known duplicates.
func (d *Detector) exactClusters(items []Item, hashOf map[string]string) ([]ExactCluster, []Item) {
	groups := make(map[string][]string)
	for _, it := range items {
		h := hashOf[it.Name]
		groups[h] = append(groups[h], it.Name)
	}

	var clusters []ExactCluster
	exactNames := make(map[string]bool)
	for h, names := range groups {
		if len(names) >= 2 {
			sort.Strings(names)
			clusters = append(clusters, ExactCluster{SHA256: h, Names: names})
			for _, n := range names {
				exactNames[n] = true
			}
		}
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].SHA256 < clusters[j].SHA256 })

	var remaining []Item
	for _, it := range items {
		if !exactNames[it.Name] {
			remaining = append(remaining, it)
		}
	}
	return clusters, remaining
}

// similarPairs buckets remaining items by content length, then compares
// every pair within a bucket plus every pair straddling adjacent buckets
// (so a near-duplicate that happens to fall just across a bucket boundary
// is still caught).
func (d *Detector) similarPairs(items []Item, hashOf map[string]string) []SimilarPair {
	buckets := make(map[int][]Item)
	for _, it := range items {
		key := len(it.Content) / lengthBucketWidth
		buckets[key] = append(buckets[key], it)
	}

	seen := make(map[[2]string]bool)
	var pairs []SimilarPair
	compare := func(bucket []Item, other []Item, sameBucket bool) {
		for i, a := range bucket {
			start := 0
			if sameBucket {
				start = i + 1
			}
			for j := start; j < len(other); j++ {
				b := other[j]
				if a.Name == b.Name {
					continue
				}
				pairKey := [2]string{a.Name, b.Name}
				if pairKey[0] > pairKey[1] {
					pairKey = [2]string{b.Name, a.Name}
				}
				if seen[pairKey] {
					continue
				}
				seen[pairKey] = true

				ratio := d.ratio(a.Name, hashOf[a.Name], a.Content, b.Name, hashOf[b.Name], b.Content)
				if ratio > d.threshold {
					pairs = append(pairs, SimilarPair{A: pairKey[0], B: pairKey[1], Ratio: ratio})
				}
			}
		}
	}

	for key, bucket := range buckets {
		compare(bucket, bucket, true)
		if next, ok := buckets[key+1]; ok {
			compare(bucket, next, false)
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})
	return pairs
}

// ratio computes a Gestalt-equivalent similarity ratio via diffmatchpatch's
// Levenshtein distance over the diff, cached by (sha_a, sha_b).
func (d *Detector) ratio(nameA, shaA, contentA, nameB, shaB, contentB string) float64 {
	key := [2]string{shaA, shaB}
	if shaA > shaB {
		key = [2]string{shaB, shaA}
	}

	d.mu.Lock()
	if r, ok := d.cache[key]; ok {
		d.mu.Unlock()
		return r
	}
	d.mu.Unlock()

	diffs := d.dmp.DiffMain(contentA, contentB, false)
	dist := d.dmp.DiffLevenshtein(diffs)

	maxLen := len(contentA)
	if len(contentB) > maxLen {
		maxLen = len(contentB)
	}

	var ratio float64
	if maxLen == 0 {
		ratio = 1.0
	} else {
		ratio = 1.0 - float64(dist)/float64(maxLen)
	}

	d.mu.Lock()
	if len(d.cache) >= similarityCacheCapacity {
		for k := range d.cache {
			delete(d.cache, k)
			break
		}
	}
	d.cache[key] = ratio
	d.mu.Unlock()

	return ratio
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
