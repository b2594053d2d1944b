// Package main implements the cortex CLI - a command-line front end over
// the memory bank engine (internal/bank).
//
// This file is the entry point and command registration hub; individual
// commands are split across cmd_*.go files for maintainability.
//
// # File Index
//
//   - main.go         - Entry point, rootCmd, global flags, init()
//   - cmd_write.go    - writeCmd
//   - cmd_read.go     - readCmd, showCmd
//   - cmd_optimize.go - optimizeCmd
//   - cmd_suggest.go  - suggestCmd (read-only report of planner suggestions)
//   - cmd_review.go   - reviewCmd (interactive propose/validate/approve/apply TUI)
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kraklabs/cortex/internal/bank"
	"github.com/kraklabs/cortex/internal/config"
	"github.com/kraklabs/cortex/internal/logging"
)

var (
	verbose    bool
	bankRoot   string
	configPath string

	logger *zap.Logger
	theBank *bank.Bank
)

var rootCmd = &cobra.Command{
	Use:   "cortex",
	Short: "cortex - a durable, dependency-aware Markdown memory bank",
	Long: `cortex manages a directory of interlinked Markdown files as a
memory bank: versioned writes, a dependency graph over links and
transclusions, relevance-scored context selection under a token budget,
duplication detection, and refactoring suggestions with human approval.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if err := logging.Initialize(cfg.BankRoot, cfg.Logging.DebugMode, cfg.Logging.Categories, cfg.Logging.Level); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}

		theBank, err = bank.Open(cfg)
		if err != nil {
			return fmt.Errorf("opening memory bank: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if theBank != nil {
			theBank.Close()
		}
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

// loadConfig resolves .cortex/config.yaml, honoring --config and --bank-root
// overrides over the on-disk defaults.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = filepath.Join(".cortex", "config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if bankRoot != "" {
		cfg.BankRoot = bankRoot
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&bankRoot, "bank-root", "", "memory bank directory (default: .cortex/config.yaml bank_root)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: .cortex/config.yaml)")

	rootCmd.AddCommand(writeCmd, readCmd, showCmd, optimizeCmd, suggestCmd, reviewCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
