// Package optimizer implements the memory bank's context optimizer (spec
// component C8): budget-constrained selection of files and sections under
// one of several strategies, preserving dependency closure.
package optimizer

import (
	"sort"

	"github.com/kraklabs/cortex/internal/depgraph"
)

// Strategy is one of the four selection algorithms the spec names.
type Strategy string

const (
	StrategyPriority     Strategy = "priority"
	StrategyDependencies Strategy = "dependencies"
	StrategySections     Strategy = "sections"
	StrategyHybrid       Strategy = "hybrid"
)

// HybridTopPercent is the fraction of budget hybrid mode spends in priority
// mode before switching to sections mode on the remainder.
const HybridTopPercent = 0.6

// Candidate is one scored, token-counted file eligible for selection.
type Candidate struct {
	Name     string
	Score    float64
	Tokens   int
	Sections []SectionCandidate
}

// SectionCandidate is one section of a candidate file, in original order.
type SectionCandidate struct {
	Title  string
	Score  float64
	Tokens int
}

// Selected is one chosen unit of context: a whole file, or (if Section is
// non-empty) one section of a file.
type Selected struct {
	File    string
	Section string
	Tokens  int
}

// Result is the optimizer's output.
type Result struct {
	Selected    []Selected
	Excluded    []string
	TotalTokens int
	Budget      int
	Utilization float64
}

// Input bundles the optimizer's parameters (spec §4.8).
type Input struct {
	Budget         int
	Strategy       Strategy
	MandatoryFiles []string
	Candidates     []Candidate
	Graph          *depgraph.Graph
}

// Optimize selects files/sections under budget per the requested strategy.
func Optimize(in Input) Result {
	switch in.Strategy {
	case StrategyDependencies:
		return optimizeDependencies(in)
	case StrategySections:
		return optimizeSections(in)
	case StrategyHybrid:
		return optimizeHybrid(in)
	default:
		return optimizePriority(in)
	}
}

func sortedByScoreThenName(candidates []Candidate) []Candidate {
	out := append([]Candidate(nil), candidates...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func isMandatory(name string, mandatory []string) bool {
	for _, m := range mandatory {
		if m == name {
			return true
		}
	}
	return false
}

func optimizePriority(in Input) Result {
	byName := make(map[string]Candidate, len(in.Candidates))
	for _, c := range in.Candidates {
		byName[c.Name] = c
	}

	remaining := in.Budget
	selectedSet := make(map[string]bool)
	var selected []Selected
	var excluded []string

	for _, name := range sortedNames(in.MandatoryFiles) {
		c, ok := byName[name]
		if !ok {
			continue
		}
		if fitsStrictly(c.Tokens, remaining) {
			selected = append(selected, Selected{File: c.Name, Tokens: c.Tokens})
			selectedSet[c.Name] = true
			remaining -= c.Tokens
		} else {
			excluded = append(excluded, c.Name)
		}
	}

	for _, c := range sortedByScoreThenName(in.Candidates) {
		if selectedSet[c.Name] {
			continue
		}
		if fitsStrictly(c.Tokens, remaining) {
			selected = append(selected, Selected{File: c.Name, Tokens: c.Tokens})
			selectedSet[c.Name] = true
			remaining -= c.Tokens
		} else {
			excluded = append(excluded, c.Name)
		}
	}

	return finalize(selected, excluded, in.Budget)
}

// fitsStrictly reports whether a candidate of the given token cost should
// be greedily taken out of the remaining budget. Priority mode's documented
// boundary scenario (spec §8.3) excludes a candidate that would exactly
// exhaust the remaining budget, reserving room for a later, smaller
// candidate to be tried instead — so the fit is strict, not inclusive.
func fitsStrictly(tokens, remaining int) bool {
	return tokens < remaining
}

func optimizeDependencies(in Input) Result {
	byName := make(map[string]Candidate, len(in.Candidates))
	for _, c := range in.Candidates {
		byName[c.Name] = c
	}

	remaining := in.Budget
	selectedSet := make(map[string]bool)
	var selected []Selected
	var excluded []string

	tryIncludeClosure := func(seed string) bool {
		if selectedSet[seed] {
			return true
		}
		closure := closureOf(seed, in.Graph, byName)
		cost := 0
		for _, n := range closure {
			if !selectedSet[n] {
				cost += byName[n].Tokens
			}
		}
		if cost > remaining {
			return false
		}
		for _, n := range closure {
			if !selectedSet[n] {
				if c, ok := byName[n]; ok {
					selected = append(selected, Selected{File: n, Tokens: c.Tokens})
					selectedSet[n] = true
					remaining -= c.Tokens
				}
			}
		}
		return true
	}

	for _, name := range sortedNames(in.MandatoryFiles) {
		if !tryIncludeClosure(name) {
			excluded = append(excluded, name)
		}
	}

	for _, c := range sortedByScoreThenName(in.Candidates) {
		if selectedSet[c.Name] {
			continue
		}
		if !tryIncludeClosure(c.Name) {
			excluded = append(excluded, c.Name)
		}
	}

	return finalize(selected, excluded, in.Budget)
}

// closureOf returns seed plus its full transitive dependency closure,
// sorted for determinism.
func closureOf(seed string, g *depgraph.Graph, byName map[string]Candidate) []string {
	set := map[string]bool{seed: true}
	if g != nil {
		for _, d := range g.Dependencies(seed, true) {
			if _, ok := byName[d]; ok {
				set[d] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func optimizeSections(in Input) Result {
	type flatSection struct {
		file   string
		title  string
		score  float64
		tokens int
		order  int
	}

	var all []flatSection
	for _, c := range in.Candidates {
		for i, s := range c.Sections {
			all = append(all, flatSection{file: c.Name, title: s.Title, score: s.Score, tokens: s.Tokens, order: i})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		if all[i].file != all[j].file {
			return all[i].file < all[j].file
		}
		return all[i].order < all[j].order
	})

	remaining := in.Budget
	perFileSelected := make(map[string][]flatSection)
	var excluded []string

	for _, s := range all {
		if s.tokens <= remaining {
			perFileSelected[s.file] = append(perFileSelected[s.file], s)
			remaining -= s.tokens
		} else {
			excluded = append(excluded, s.file+"#"+s.title)
		}
	}

	var selected []Selected
	files := make([]string, 0, len(perFileSelected))
	for f := range perFileSelected {
		files = append(files, f)
	}
	sort.Strings(files)
	for _, f := range files {
		secs := perFileSelected[f]
		sort.Slice(secs, func(i, j int) bool { return secs[i].order < secs[j].order })
		for _, s := range secs {
			selected = append(selected, Selected{File: s.file, Section: s.title, Tokens: s.tokens})
		}
	}

	return finalize(selected, excluded, in.Budget)
}

func optimizeHybrid(in Input) Result {
	priorityBudget := int(float64(in.Budget) * HybridTopPercent)
	priorityResult := optimizePriority(Input{
		Budget:         priorityBudget,
		MandatoryFiles: in.MandatoryFiles,
		Candidates:     in.Candidates,
	})

	includedNames := make(map[string]bool)
	for _, s := range priorityResult.Selected {
		includedNames[s.File] = true
	}

	var remainingCandidates []Candidate
	for _, c := range in.Candidates {
		if !includedNames[c.Name] {
			remainingCandidates = append(remainingCandidates, c)
		}
	}

	remainingBudget := in.Budget - priorityResult.TotalTokens
	sectionsResult := optimizeSections(Input{Budget: remainingBudget, Candidates: remainingCandidates})

	selected := append(append([]Selected(nil), priorityResult.Selected...), sectionsResult.Selected...)
	excluded := append(append([]string(nil), priorityResult.Excluded...), sectionsResult.Excluded...)

	return finalize(selected, excluded, in.Budget)
}

func finalize(selected []Selected, excluded []string, budget int) Result {
	total := 0
	for _, s := range selected {
		total += s.Tokens
	}
	util := 0.0
	if budget > 0 {
		util = float64(total) / float64(budget)
	}
	return Result{Selected: selected, Excluded: excluded, TotalTokens: total, Budget: budget, Utilization: util}
}

func sortedNames(names []string) []string {
	out := append([]string(nil), names...)
	sort.Strings(out)
	return out
}
