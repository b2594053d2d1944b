package bank

import (
	"context"
	"testing"

	"github.com/kraklabs/cortex/internal/config"
	"github.com/kraklabs/cortex/internal/optimizer"
)

func newTestBank(t *testing.T) *Bank {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BankRoot = t.TempDir()

	b, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(b.Close)
	return b
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	b := newTestBank(t)
	ctx := context.Background()

	rec, err := b.Write(ctx, "projectBrief.md", []byte("# Brief\n\nSome content here."), "", "tester")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if rec.CurrentVersion != 1 {
		t.Errorf("expected version 1, got %d", rec.CurrentVersion)
	}

	content, _, err := b.Read(ctx, "projectBrief.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(content) != "# Brief\n\nSome content here." {
		t.Errorf("unexpected content: %q", content)
	}
}

func TestWriteParsesLinksIntoGraph(t *testing.T) {
	b := newTestBank(t)
	ctx := context.Background()

	b.Write(ctx, "b.md", []byte("content"), "", "")
	if _, err := b.Write(ctx, "a.md", []byte("see [b](b.md) for detail"), "", ""); err != nil {
		t.Fatalf("Write: %v", err)
	}

	deps := b.Graph.Dependencies("a.md", false)
	if len(deps) != 1 || deps[0] != "b.md" {
		t.Errorf("expected a.md to depend on b.md, got %v", deps)
	}
}

func TestRebuildReconstructsIndexFromDisk(t *testing.T) {
	b := newTestBank(t)
	ctx := context.Background()
	b.Write(ctx, "a.md", []byte("hello [b](b.md)"), "", "")
	b.Write(ctx, "b.md", []byte("world"), "", "")

	if err := b.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	rec, err := b.Index.Get("a.md")
	if err != nil {
		t.Fatalf("Get after rebuild: %v", err)
	}
	if rec.TokenCount == 0 {
		t.Error("expected rebuild to recompute token count")
	}

	deps := b.Graph.Dependencies("a.md", false)
	if len(deps) != 1 || deps[0] != "b.md" {
		t.Errorf("expected graph reconstructed after rebuild, got %v", deps)
	}
}

func TestStructureInfoCountsExistingFiles(t *testing.T) {
	b := newTestBank(t)
	ctx := context.Background()
	b.Write(ctx, "a.md", []byte("hello"), "", "")
	b.Write(ctx, "b.md", []byte("world"), "", "")

	info := b.StructureInfo()
	if info.FileCount != 2 {
		t.Errorf("expected 2 files, got %d", info.FileCount)
	}
	if info.TotalTokens == 0 {
		t.Error("expected nonzero total tokens")
	}
}

func TestOptimizeContextRespectsBudget(t *testing.T) {
	b := newTestBank(t)
	ctx := context.Background()
	b.Write(ctx, "a.md", []byte("alpha beta gamma delta epsilon"), "", "")
	b.Write(ctx, "b.md", []byte("alpha beta"), "", "")

	result := b.OptimizeContext(2, optimizer.StrategyPriority, nil, "alpha")
	if result.TotalTokens > 2 {
		t.Errorf("expected total tokens within budget 2, got %d", result.TotalTokens)
	}
}

func TestDetectDuplicatesFindsExactClusters(t *testing.T) {
	b := newTestBank(t)
	ctx := context.Background()
	b.Write(ctx, "a.md", []byte("identical content"), "", "")
	b.Write(ctx, "b.md", []byte("identical content"), "", "")

	result := b.DetectDuplicates()
	if len(result.ExactDuplicates) != 1 {
		t.Fatalf("expected 1 exact cluster, got %d", len(result.ExactDuplicates))
	}
}
