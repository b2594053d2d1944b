// Package planner implements the memory bank's quality metrics and
// suggestion planners (spec component C11): consolidation, split, and
// reorganization recommendations plus anti-pattern detection, all fed by
// C5 (dependency graph) and C9 (duplication detector).
package planner

import (
	"fmt"
	"sort"

	"github.com/kraklabs/cortex/internal/depgraph"
	"github.com/kraklabs/cortex/internal/duplication"
)

// QualityWeights names the weighted-sum coefficients for the overall
// quality score (spec §4.11).
type QualityWeights struct {
	Completeness float64
	Consistency  float64
	Freshness    float64
	Structure    float64
	Efficiency   float64
}

// DefaultQualityWeights matches SPEC_FULL.md §7's documented defaults.
var DefaultQualityWeights = QualityWeights{Completeness: 0.25, Consistency: 0.25, Freshness: 0.15, Structure: 0.20, Efficiency: 0.15}

// Grade is a fixed-threshold health letter grade.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// GradeThresholds are the fixed cutoffs named in SPEC_FULL.md §12.
var GradeThresholds = []struct {
	Min   float64
	Grade Grade
}{
	{0.90, GradeA},
	{0.75, GradeB},
	{0.60, GradeC},
	{0.40, GradeD},
}

// GradeFor maps an overall quality score in [0,1] to a letter grade.
func GradeFor(score float64) Grade {
	for _, t := range GradeThresholds {
		if score >= t.Min {
			return t.Grade
		}
	}
	return GradeF
}

// QualityInput is the raw per-file signal the metrics are computed from.
type QualityInput struct {
	Name               string
	RequiredSections   int
	PresentSections     int
	StyleViolations     int
	DaysSinceModified   float64
	SectionSizes        []int
	TokenCount          int
	UsefulReferenceCount int
}

// QualityMetrics is one file's scored dimensions plus overall grade.
type QualityMetrics struct {
	Name         string
	Completeness float64
	Consistency  float64
	Freshness    float64
	Structure    float64
	Efficiency   float64
	Overall      float64
	Grade        Grade
}

// ComputeQuality scores a single file across the five named dimensions.
func ComputeQuality(in QualityInput, weights QualityWeights) QualityMetrics {
	completeness := 1.0
	if in.RequiredSections > 0 {
		completeness = clamp01(float64(in.PresentSections) / float64(in.RequiredSections))
	}

	consistency := clamp01(1.0 - float64(in.StyleViolations)*0.1)

	freshness := clamp01(1.0 - in.DaysSinceModified/180.0)

	structure := sectionBalance(in.SectionSizes)

	efficiency := 1.0
	if in.TokenCount > 0 {
		efficiency = clamp01(float64(in.UsefulReferenceCount) / (float64(in.TokenCount) / 100.0))
	}

	overall := weights.Completeness*completeness + weights.Consistency*consistency +
		weights.Freshness*freshness + weights.Structure*structure + weights.Efficiency*efficiency

	return QualityMetrics{
		Name: in.Name, Completeness: completeness, Consistency: consistency,
		Freshness: freshness, Structure: structure, Efficiency: efficiency,
		Overall: overall, Grade: GradeFor(overall),
	}
}

// sectionBalance scores 1.0 when section sizes are close to uniform and
// decays as the spread between largest and smallest grows.
func sectionBalance(sizes []int) float64 {
	if len(sizes) == 0 {
		return 1.0
	}
	min, max := sizes[0], sizes[0]
	sum := 0
	for _, s := range sizes {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
		sum += s
	}
	if max == 0 {
		return 1.0
	}
	spread := float64(max-min) / float64(max)
	return clamp01(1.0 - spread*0.5)
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

// OperationKind names one of the concrete transformations a suggestion
// can carry (spec §3 "Suggestion").
type OperationKind string

const (
	OpReplaceSection OperationKind = "replace-section"
	OpRemoveSection  OperationKind = "remove-section"
	OpCreateFile     OperationKind = "create-file"
	OpMoveFile       OperationKind = "move-file"
	OpRenameFile     OperationKind = "rename-file"
	OpCreateCategory OperationKind = "create-category"
)

// transclusionDirective builds the spec §4.4 include directive that
// replaces a duplicate's content with a reference to its canonical file.
func transclusionDirective(canonical string) string {
	return fmt.Sprintf("{{include: %s}}\n", canonical)
}

// Operation is one step of a suggestion's plan.
type Operation struct {
	Kind    OperationKind
	File    string
	Target  string
	Section string
	Content string
}

// SuggestionType is one of the three planner categories.
type SuggestionType string

const (
	TypeConsolidate SuggestionType = "consolidate"
	TypeSplit       SuggestionType = "split"
	TypeReorganize  SuggestionType = "reorganize"
)

// Suggestion is a proposed refactoring, not yet adjusted for learned
// confidence (spec §4.13 applies that at read time).
type Suggestion struct {
	Type          SuggestionType
	AffectedFiles []string
	Rationale     string
	BaseConfidence float64
	Priority      int
	Operations    []Operation
}

// PlanConsolidations proposes, for each exact or similar cluster, replacing
// duplicate content with a transclusion to a canonical file (the
// alphabetically first member, for determinism).
func PlanConsolidations(dupes duplication.Result) []Suggestion {
	var out []Suggestion

	for _, c := range dupes.ExactDuplicates {
		names := append([]string(nil), c.Names...)
		sort.Strings(names)
		canonical := names[0]

		var ops []Operation
		for _, n := range names[1:] {
			ops = append(ops, Operation{Kind: OpReplaceSection, File: n, Target: canonical, Content: transclusionDirective(canonical)})
		}
		out = append(out, Suggestion{
			Type: TypeConsolidate, AffectedFiles: names,
			Rationale:      fmt.Sprintf("%d files are byte-identical; replace with a transclusion to %s", len(names), canonical),
			BaseConfidence: 0.9, Priority: 2, Operations: ops,
		})
	}

	for _, p := range dupes.SimilarContent {
		names := []string{p.A, p.B}
		sort.Strings(names)
		canonical := names[0]
		out = append(out, Suggestion{
			Type: TypeConsolidate, AffectedFiles: names,
			Rationale:      fmt.Sprintf("content similarity %.2f exceeds threshold", p.Ratio),
			BaseConfidence: p.Ratio, Priority: 1, Operations: []Operation{{Kind: OpReplaceSection, File: names[1], Target: canonical, Content: transclusionDirective(canonical)}},
		})
	}

	return out
}

// SplitCandidate is one file eligible for a split recommendation.
type SplitCandidate struct {
	Name           string
	TokenCount     int
	SectionTitles  []string
	SectionTopics  []string // coarse topic tag per section, empty if unknown
}

// SplitSizeThreshold is the token count above which a file is considered
// for splitting, absent a multi-topic signal.
const SplitSizeThreshold = 4000

// PlanSplits recommends split points at section boundaries for
// oversized or multi-topic files.
func PlanSplits(candidates []SplitCandidate) []Suggestion {
	var out []Suggestion
	for _, c := range candidates {
		distinctTopics := distinctNonEmpty(c.SectionTopics)
		oversized := c.TokenCount > SplitSizeThreshold
		multiTopic := len(distinctTopics) > 1

		if !oversized && !multiTopic {
			continue
		}

		var ops []Operation
		for _, title := range c.SectionTitles {
			ops = append(ops, Operation{Kind: OpCreateFile, File: c.Name, Section: title})
		}

		reason := "file exceeds the size threshold"
		if multiTopic {
			reason = "file spans multiple distinct topics"
		}
		out = append(out, Suggestion{
			Type: TypeSplit, AffectedFiles: []string{c.Name},
			Rationale: reason, BaseConfidence: 0.6, Priority: 1, Operations: ops,
		})
	}
	return out
}

func distinctNonEmpty(ss []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range ss {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// ReorgThresholds bound hub/depth detection in PlanReorganization.
const (
	HubDegreeThreshold = 5
	MaxDependencyDepth = 4
)

// Severity is how serious an anti-pattern is.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// AntiPattern is one detected structural issue.
type AntiPattern struct {
	Kind     string
	File     string
	Severity Severity
	Detail   string
}

// PlanReorganization inspects the dependency graph for orphans, hubs, and
// excessive dependency depth, emitting move/category suggestions and a
// severity-sorted anti-pattern report. Depth is measured as the number of
// transitive dependencies of a file, not the length of its longest chain.
func PlanReorganization(g *depgraph.Graph, fileSizes map[string]int, similarNames map[string][]string) ([]Suggestion, []AntiPattern) {
	var suggestions []Suggestion
	var antiPatterns []AntiPattern

	nodes := g.Nodes()
	for _, n := range nodes {
		outDeg := len(g.Dependencies(n, false))
		inDeg := len(g.Dependents(n, false))

		if outDeg == 0 && inDeg == 0 {
			suggestions = append(suggestions, Suggestion{
				Type: TypeReorganize, AffectedFiles: []string{n},
				Rationale: "file has no incoming or outgoing links (orphan)", BaseConfidence: 0.5, Priority: 1,
				Operations: []Operation{{Kind: OpCreateCategory, File: n}},
			})
		}

		if outDeg > HubDegreeThreshold || inDeg > HubDegreeThreshold {
			antiPatterns = append(antiPatterns, AntiPattern{
				Kind: "hub", File: n, Severity: SeverityMedium,
				Detail: fmt.Sprintf("in-degree=%d out-degree=%d exceeds threshold %d", inDeg, outDeg, HubDegreeThreshold),
			})
		}

		depth := len(g.Dependencies(n, true))
		if depth > MaxDependencyDepth {
			antiPatterns = append(antiPatterns, AntiPattern{
				Kind: "excessive-depth", File: n, Severity: SeverityLow,
				Detail: fmt.Sprintf("transitive dependency count %d exceeds %d", depth, MaxDependencyDepth),
			})
		}
	}

	for name, size := range fileSizes {
		if size > SplitSizeThreshold*2 {
			antiPatterns = append(antiPatterns, AntiPattern{
				Kind: "oversized-file", File: name, Severity: SeverityHigh,
				Detail: fmt.Sprintf("token count %d far exceeds the split threshold", size),
			})
		}
	}

	for name, similars := range similarNames {
		if len(similars) > 0 {
			antiPatterns = append(antiPatterns, AntiPattern{
				Kind: "similar-filename", File: name, Severity: SeverityLow,
				Detail: fmt.Sprintf("name resembles: %v", similars),
			})
		}
	}

	sort.Slice(antiPatterns, func(i, j int) bool {
		si, sj := severityRank(antiPatterns[i].Severity), severityRank(antiPatterns[j].Severity)
		if si != sj {
			return si < sj
		}
		return antiPatterns[i].File < antiPatterns[j].File
	})

	return suggestions, antiPatterns
}

func severityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	default:
		return 2
	}
}
