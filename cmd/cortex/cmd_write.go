package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	writeExpectedHash string
	writeAuthor       string
)

var writeCmd = &cobra.Command{
	Use:   "write <file> [content-file]",
	Short: "Write a file into the memory bank, creating a new version",
	Long: `Writes content to a bank-relative Markdown file through the atomic
file layer, appending a version snapshot and updating the metadata index
and dependency graph. Content is read from the second argument's file, or
from stdin if omitted.

Use --expect-hash to require the file's current SHA-256 match before
writing (optimistic concurrency); omit it to write unconditionally.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runWrite,
}

func init() {
	writeCmd.Flags().StringVar(&writeExpectedHash, "expect-hash", "", "require this SHA-256 before writing")
	writeCmd.Flags().StringVar(&writeAuthor, "author", "", "attribute this version to an author")
}

func runWrite(cmd *cobra.Command, args []string) error {
	name := args[0]

	var content []byte
	var err error
	if len(args) == 2 {
		content, err = os.ReadFile(args[1])
	} else {
		content, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("reading content: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rec, err := theBank.Write(ctx, name, content, writeExpectedHash, writeAuthor)
	if err != nil {
		return err
	}

	logger.Info("wrote file", zap.String("file", name), zap.Int("version", rec.CurrentVersion), zap.String("sha256", rec.SHA256))
	fmt.Printf("%s  version=%d  sha256=%s\n", name, rec.CurrentVersion, rec.SHA256)
	return nil
}
