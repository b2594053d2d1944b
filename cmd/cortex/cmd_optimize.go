package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kraklabs/cortex/internal/optimizer"
)

var (
	optimizeBudget    int
	optimizeStrategy  string
	optimizeMandatory []string
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize <query>",
	Short: "Select files/sections under a token budget for a query",
	Long: `Scores every bank file against the query (keyword, dependency,
recency, quality) and selects as much as fits within --budget tokens
under the chosen --strategy: priority, dependencies, sections, or
hybrid.`,
	Args: cobra.ExactArgs(1),
	RunE: runOptimize,
}

func init() {
	optimizeCmd.Flags().IntVar(&optimizeBudget, "budget", 100000, "token budget")
	optimizeCmd.Flags().StringVar(&optimizeStrategy, "strategy", "priority", "priority|dependencies|sections|hybrid")
	optimizeCmd.Flags().StringSliceVar(&optimizeMandatory, "mandatory", nil, "files that must be included if they fit")
}

func runOptimize(cmd *cobra.Command, args []string) error {
	strategy := optimizer.Strategy(optimizeStrategy)
	switch strategy {
	case optimizer.StrategyPriority, optimizer.StrategyDependencies, optimizer.StrategySections, optimizer.StrategyHybrid:
	default:
		return fmt.Errorf("unknown strategy %q", optimizeStrategy)
	}

	result := theBank.OptimizeContext(optimizeBudget, strategy, optimizeMandatory, args[0])

	for _, sel := range result.Selected {
		if sel.Section != "" {
			fmt.Printf("%s :: %s  (%d tokens)\n", sel.File, sel.Section, sel.Tokens)
		} else {
			fmt.Printf("%s  (%d tokens)\n", sel.File, sel.Tokens)
		}
	}
	fmt.Printf("\n%d/%d tokens used (%.1f%%), %d file(s) excluded\n",
		result.TotalTokens, result.Budget, result.Utilization*100, len(result.Excluded))
	return nil
}
