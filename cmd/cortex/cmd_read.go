package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

var readCmd = &cobra.Command{
	Use:   "read <file>",
	Short: "Read a file's current content from the memory bank",
	Args:  cobra.ExactArgs(1),
	RunE:  runRead,
}

var renderPlain bool

var showCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Render a bank file as formatted Markdown",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	showCmd.Flags().BoolVar(&renderPlain, "plain", false, "print raw Markdown instead of rendering")
}

func runRead(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	content, sum, err := theBank.Read(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("# sha256=%s\n%s\n", sum, content)
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	content, _, err := theBank.Read(ctx, args[0])
	if err != nil {
		return err
	}

	if renderPlain {
		fmt.Println(string(content))
		return nil
	}

	renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return fmt.Errorf("initializing renderer: %w", err)
	}
	out, err := renderer.Render(string(content))
	if err != nil {
		fmt.Println(string(content))
		return nil
	}
	fmt.Print(out)
	return nil
}
