// Package relevance implements the memory bank's relevance scorer (spec
// component C7): keyword, dependency, recency, and quality components
// combined into a weighted score per file and section, with a bounded
// cache over the dependency component.
package relevance

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kraklabs/cortex/internal/depgraph"
)

// Weights are the named constants for the scoring formula (spec §4.7).
type Weights struct {
	Keyword    float64
	Dependency float64
	Recency    float64
	Quality    float64
}

// DefaultWeights matches the spec's documented defaults.
var DefaultWeights = Weights{Keyword: 0.40, Dependency: 0.30, Recency: 0.20, Quality: 0.10}

// recencyHalfLife sets the decay rate of recency(f): a file edited this
// long ago scores 0.5.
const recencyHalfLife = 14 * 24 * time.Hour

var wordPattern = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9_]*`)

var commonWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "for": true, "is": true, "on": true, "with": true,
	"this": true, "that": true, "it": true, "as": true, "by": true, "be": true,
	"are": true, "was": true, "were": true, "at": true,
}

// FileInput is the subset of a file's state the scorer needs.
type FileInput struct {
	Name       string
	Title      string
	Content    string
	Mtime      time.Time
	Quality    float64
}

// SectionInput is one section's text, scored with the file's non-keyword
// components.
type SectionInput struct {
	Title   string
	Content string
}

// depCacheCapacity is the fixed FIFO eviction bound for the dependency
// score cache (spec §4.7).
const depCacheCapacity = 100

type depCacheEntry struct {
	key   string
	value map[string]float64
}

// Scorer produces per-file and per-section relevance scores.
type Scorer struct {
	graph   *depgraph.Graph
	weights Weights

	mu       sync.Mutex
	depCache []depCacheEntry
	depIndex map[string]int
}

// New creates a Scorer backed by a dependency graph.
func New(graph *depgraph.Graph, weights Weights) *Scorer {
	return &Scorer{graph: graph, weights: weights, depIndex: make(map[string]int)}
}

// Keywords tokenizes and lowercases query text, discarding common words.
func Keywords(text string) []string {
	raw := wordPattern.FindAllString(strings.ToLower(text), -1)
	var out []string
	for _, w := range raw {
		if len(w) < 2 || commonWords[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}

// keywordScore is a TF-style overlap ratio between query keywords and the
// file's title+content, normalized to [0,1].
func keywordScore(query []string, f FileInput) float64 {
	if len(query) == 0 {
		return 0
	}
	haystack := strings.ToLower(f.Title + " " + f.Content)
	tokens := wordPattern.FindAllString(haystack, -1)

	freq := make(map[string]int, len(tokens))
	for _, t := range tokens {
		freq[t]++
	}

	var score float64
	for _, q := range query {
		if freq[q] > 0 {
			// Diminishing returns per extra occurrence, via log1p.
			score += math.Log1p(float64(freq[q]))
		}
	}

	maxPossible := float64(len(query)) * math.Log1p(float64(len(tokens))+1)
	if maxPossible <= 0 {
		return 0
	}
	normalized := score / maxPossible
	if normalized > 1 {
		normalized = 1
	}
	return normalized
}

// recencyScore decays monotonically in (now - mtime).
func recencyScore(mtime time.Time) float64 {
	if mtime.IsZero() {
		return 0
	}
	age := time.Since(mtime)
	if age < 0 {
		age = 0
	}
	return math.Exp(-math.Ln2 * age.Hours() / recencyHalfLife.Hours())
}

// dependencyScore is proportional to how many files in seedSet are directly
// connected (either direction) to f in the dependency graph.
func (s *Scorer) dependencyScore(f string, seedSet []string) float64 {
	if len(seedSet) == 0 {
		return 0
	}
	connected := 0
	deps := make(map[string]bool)
	for _, d := range s.graph.Dependencies(f, false) {
		deps[d] = true
	}
	for _, d := range s.graph.Dependents(f, false) {
		deps[d] = true
	}
	for _, seed := range seedSet {
		if seed != f && deps[seed] {
			connected++
		}
	}
	return float64(connected) / float64(len(seedSet))
}

// cacheKeyFromKeywordScores builds the dependency-cache key: a SHA-256 over
// the rounded (3 decimal places) keyword-score map, per spec §4.7. The key
// covers only that map: a later call with the same rounded keyword scores
// gets the cached dependency scores even if seedSet or the graph differs.
func cacheKeyFromKeywordScores(scores map[string]float64) string {
	names := make([]string, 0, len(scores))
	for n := range scores {
		names = append(names, n)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, n := range names {
		fmt.Fprintf(&sb, "%s=%.3f;", n, scores[n])
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

func (s *Scorer) dependencyScoresFor(files []FileInput, keywordScores map[string]float64, seedSet []string) map[string]float64 {
	key := cacheKeyFromKeywordScores(keywordScores)

	s.mu.Lock()
	if idx, ok := s.depIndex[key]; ok {
		cached := s.depCache[idx].value
		s.mu.Unlock()
		return cached
	}
	s.mu.Unlock()

	out := make(map[string]float64, len(files))
	for _, f := range files {
		out[f.Name] = s.dependencyScore(f.Name, seedSet)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.depIndex[key]; !ok {
		if len(s.depCache) >= depCacheCapacity {
			evicted := s.depCache[0]
			s.depCache = s.depCache[1:]
			delete(s.depIndex, evicted.key)
			for i := range s.depCache {
				s.depIndex[s.depCache[i].key] = i
			}
		}
		s.depCache = append(s.depCache, depCacheEntry{key: key, value: out})
		s.depIndex[key] = len(s.depCache) - 1
	}
	return out
}

// FileScore is the per-file result of Score.
type FileScore struct {
	Name       string
	Total      float64
	Keyword    float64
	Dependency float64
	Recency    float64
	Quality    float64
}

// Score produces a relevance score in [0,1] for each file against query,
// using seedSet (typically the files selected so far) for the dependency
// component.
func (s *Scorer) Score(query string, files []FileInput, seedSet []string) []FileScore {
	keywords := Keywords(query)

	keywordScores := make(map[string]float64, len(files))
	for _, f := range files {
		keywordScores[f.Name] = keywordScore(keywords, f)
	}

	depScores := s.dependencyScoresFor(files, keywordScores, seedSet)

	out := make([]FileScore, 0, len(files))
	for _, f := range files {
		k := keywordScores[f.Name]
		d := depScores[f.Name]
		r := recencyScore(f.Mtime)
		q := f.Quality

		total := s.weights.Keyword*k + s.weights.Dependency*d + s.weights.Recency*r + s.weights.Quality*q
		out = append(out, FileScore{Name: f.Name, Total: total, Keyword: k, Dependency: d, Recency: r, Quality: q})
	}
	return out
}

// ScoreSection scores one section, reusing the file's non-keyword
// components and the section's own text for the keyword component.
func (s *Scorer) ScoreSection(query string, fileScore FileScore, section SectionInput) float64 {
	keywords := Keywords(query)
	k := keywordScore(keywords, FileInput{Title: section.Title, Content: section.Content})
	return s.weights.Keyword*k + s.weights.Dependency*fileScore.Dependency + s.weights.Recency*fileScore.Recency + s.weights.Quality*fileScore.Quality
}
