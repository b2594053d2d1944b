package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kraklabs/cortex/internal/planner"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Report consolidation and reorganization suggestions",
	Long: `Runs duplication detection and the dependency-graph planner over
the current bank and prints what each would suggest, with no mutation.
Use "review" to interactively approve and apply suggestions.`,
	RunE: runSuggest,
}

func runSuggest(cmd *cobra.Command, args []string) error {
	suggestions, antiPatterns := gatherSuggestions()

	if len(suggestions) == 0 {
		fmt.Println("no suggestions")
	}
	for i, s := range suggestions {
		fmt.Printf("[%d] %s  confidence=%.2f  %v\n    %s\n", i, s.Type, s.BaseConfidence, s.AffectedFiles, s.Rationale)
	}

	if len(antiPatterns) > 0 {
		fmt.Println("\nanti-patterns:")
		for _, a := range antiPatterns {
			fmt.Printf("  [%s] %s: %s\n", a.Severity, a.File, a.Detail)
		}
	}
	return nil
}

// gatherSuggestions runs C9/C5 analysis and the C11 planners over the
// current bank state, in read-only fashion.
func gatherSuggestions() ([]planner.Suggestion, []planner.AntiPattern) {
	dupes := theBank.DetectDuplicates()
	var suggestions []planner.Suggestion
	suggestions = append(suggestions, planner.PlanConsolidations(dupes)...)

	fileSizes := make(map[string]int)
	for _, rec := range theBank.Index.ListAll() {
		if rec.Exists {
			fileSizes[rec.Path] = rec.TokenCount
		}
	}
	reorg, antiPatterns := planner.PlanReorganization(theBank.Graph, fileSizes, nil)
	suggestions = append(suggestions, reorg...)

	adjusted := make([]planner.Suggestion, len(suggestions))
	for i, s := range suggestions {
		s.BaseConfidence = theBank.Learning.AdjustConfidence(s)
		adjusted[i] = s
	}
	return adjusted, antiPatterns
}
