// Package tokencount implements the memory bank's token counter (spec
// component C6): a deterministic, additive estimate of how many tokens a
// chunk of Markdown text would consume, calibrated against a
// characters-per-token ratio rather than any live tokenizer.
package tokencount

import "unicode/utf8"

// charsPerToken is the calibration constant, grounded on the teacher's
// TokenCounter (~4 characters per token, calibrated for Claude's tokenizer).
const charsPerToken = 4.0

// Tolerance bounds how far the sum of a file's section token counts may
// legitimately diverge from the whole-file count (spec §4.6, I4). Each
// section count truncates its own fractional token, so summing N sections
// can undershoot the whole-file count by at most N-1 truncations, plus 1
// for the whole file's own truncation.
func Tolerance(sectionCount int) int {
	if sectionCount <= 0 {
		return 1
	}
	return sectionCount - 1 + 1
}

// Count estimates the number of tokens in s. Deterministic: the same input
// always yields the same output, with no network calls.
func Count(s string) int {
	if s == "" {
		return 0
	}
	runes := utf8.RuneCountInString(s)
	return int(float64(runes) / charsPerToken)
}

// CountSections estimates tokens for each of a set of non-overlapping
// section texts, returning both the per-section counts (in input order)
// and their sum.
func CountSections(sections []string) ([]int, int) {
	counts := make([]int, len(sections))
	total := 0
	for i, s := range sections {
		counts[i] = Count(s)
		total += counts[i]
	}
	return counts, total
}
