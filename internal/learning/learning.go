// Package learning implements the memory bank's suggestion learning store
// (spec component C13): feedback on accepted/rejected/modified suggestions
// feeds a pattern success-rate table and a per-type preference table, which
// together adjust a suggestion's confidence at read time.
package learning

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kraklabs/cortex/internal/cortexerr"
	"github.com/kraklabs/cortex/internal/planner"
)

// Confidence adjustment coefficients (spec §4.13, left to the implementer
// but must be named constants rather than literals). Both are
// config-overridable per Store.
const (
	DefaultAlpha = 0.3
	DefaultBeta  = 0.2

	// DefaultRetentionCap bounds the number of feedback records kept;
	// beyond it, the oldest record is pruned first (FIFO).
	DefaultRetentionCap = 5000
)

// Outcome is the disposition a human gave a suggestion.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
	OutcomeModified Outcome = "modified"
)

// Feedback is one recorded disposition of a suggestion.
type Feedback struct {
	SuggestionID string
	Type         planner.SuggestionType
	Outcome      Outcome
	Conditions   map[string]string
	Timestamp    int64 // unix millis
}

// patternStats is the running success rate for one structural signature.
type patternStats struct {
	Successes int
	Samples   int
}

func (p patternStats) rate() float64 {
	if p.Samples == 0 {
		return 0.5
	}
	return float64(p.Successes) / float64(p.Samples)
}

// preferenceStats is the running weight for one suggestion type, derived
// the same way as pattern stats but keyed coarser (type only).
type preferenceStats struct {
	Successes int
	Samples   int
}

func (p preferenceStats) weight() float64 {
	if p.Samples == 0 {
		return 0.5
	}
	return float64(p.Successes) / float64(p.Samples)
}

type onDisk struct {
	Feedback     []Feedback
	Patterns     map[string]patternStats
	Preferences  map[string]preferenceStats
}

// Store holds feedback history and the derived pattern/preference tables.
type Store struct {
	path string

	mu           sync.Mutex
	feedback     []Feedback
	patterns     map[string]patternStats
	preferences  map[string]preferenceStats
	retentionCap int
	alpha        float64
	beta         float64
}

// Config overrides the learning store's defaults; zero values fall back to
// the package defaults.
type Config struct {
	RetentionCap int
	Alpha        float64
	Beta         float64
}

// New loads (or initializes) the learning store rooted at bankRoot.
func New(bankRoot string, cfg Config) (*Store, error) {
	if cfg.RetentionCap <= 0 {
		cfg.RetentionCap = DefaultRetentionCap
	}
	if cfg.Alpha == 0 {
		cfg.Alpha = DefaultAlpha
	}
	if cfg.Beta == 0 {
		cfg.Beta = DefaultBeta
	}
	s := &Store{
		path:         filepath.Join(bankRoot, "learning.json"),
		patterns:     make(map[string]patternStats),
		preferences:  make(map[string]preferenceStats),
		retentionCap: cfg.RetentionCap,
		alpha:        cfg.Alpha,
		beta:         cfg.Beta,
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, cortexerr.New(cortexerr.Internal, "reading learning store: "+err.Error())
	}

	var d onDisk
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, cortexerr.New(cortexerr.IndexCorrupted, "learning store is not valid JSON: "+err.Error())
	}
	s.feedback = d.Feedback
	if d.Patterns != nil {
		s.patterns = d.Patterns
	}
	if d.Preferences != nil {
		s.preferences = d.Preferences
	}
	return s, nil
}

// signature is the structural key a pattern is tracked under: the
// suggestion type plus a coarse category derived from the affected file
// extensions/paths (spec §4.13: "type + affected-category signature").
func signature(t planner.SuggestionType, affected []string) string {
	cats := make(map[string]bool)
	for _, f := range affected {
		cats[category(f)] = true
	}
	sorted := make([]string, 0, len(cats))
	for c := range cats {
		sorted = append(sorted, c)
	}
	sort.Strings(sorted)
	return string(t) + ":" + strings.Join(sorted, "+")
}

func category(path string) string {
	base := filepath.Base(path)
	if idx := strings.LastIndex(base, "."); idx >= 0 {
		return base[idx:]
	}
	return "none"
}

// RecordFeedback appends a feedback record for a suggestion and updates the
// pattern and preference tables, pruning the oldest record (FIFO) if the
// retention cap is exceeded. This is the only mutating entry point.
func (s *Store) RecordFeedback(sugg planner.Suggestion, fb Feedback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.feedback = append(s.feedback, fb)
	if len(s.feedback) > s.retentionCap {
		s.feedback = s.feedback[len(s.feedback)-s.retentionCap:]
	}

	success := 0
	if fb.Outcome == OutcomeAccepted {
		success = 1
	} else if fb.Outcome == OutcomeModified {
		success = 1 // counted as a full success, the same as accepted
	}

	sig := signature(sugg.Type, sugg.AffectedFiles)
	p := s.patterns[sig]
	p.Samples++
	p.Successes += success
	s.patterns[sig] = p

	pref := s.preferences[string(sugg.Type)]
	pref.Samples++
	pref.Successes += success
	s.preferences[string(sugg.Type)] = pref

	s.save()
}

// AdjustConfidence applies the spec's confidence-adjustment formula to a
// suggestion's BaseConfidence using the pattern and preference tables. It is
// pure: it reads the tables, it does not mutate them.
func (s *Store) AdjustConfidence(sugg planner.Suggestion) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig := signature(sugg.Type, sugg.AffectedFiles)
	pattern := s.patterns[sig].rate()
	preference := s.preferences[string(sugg.Type)].weight()

	c := sugg.BaseConfidence
	adjusted := c*(1+s.alpha*(pattern-0.5)) + s.beta*(preference-0.5)
	return clamp01(adjusted)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// PatternSuccessRate exposes one signature's running success rate, mostly
// useful for diagnostics and tests.
func (s *Store) PatternSuccessRate(t planner.SuggestionType, affected []string) (rate float64, samples int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.patterns[signature(t, affected)]
	return p.rate(), p.Samples
}

// save persists the store to disk. Caller must hold s.mu.
func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return cortexerr.New(cortexerr.Internal, "creating learning store dir: "+err.Error())
	}
	d := onDisk{Feedback: s.feedback, Patterns: s.patterns, Preferences: s.preferences}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return cortexerr.New(cortexerr.Internal, "marshaling learning store: "+err.Error())
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return cortexerr.New(cortexerr.Internal, "writing learning store: "+err.Error())
	}
	return os.Rename(tmp, s.path)
}

// now is overridable in tests; production code always uses wall-clock time.
var now = func() int64 { return time.Now().UnixMilli() }
