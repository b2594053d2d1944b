package main

import (
	"bytes"
	"io"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/kraklabs/cortex/internal/bank"
	"github.com/kraklabs/cortex/internal/config"
)

// newTestBank opens a fresh bank rooted at a temp directory and wires it
// into the package-level theBank used by every run* handler, the way
// PersistentPreRunE would for a real invocation.
func newTestBank(t *testing.T) *bank.Bank {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BankRoot = t.TempDir()

	b, err := bank.Open(cfg)
	if err != nil {
		t.Fatalf("bank.Open: %v", err)
	}
	t.Cleanup(b.Close)

	logger = zap.NewNop()
	theBank = b
	return b
}

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	origOut := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	os.Stdout = w

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		done <- buf.String()
	}()

	fn()

	_ = w.Close()
	os.Stdout = origOut
	return <-done
}

func TestLoadConfigAppliesBankRootOverride(t *testing.T) {
	orig := bankRoot
	defer func() { bankRoot = orig }()

	dir := t.TempDir()
	bankRoot = dir
	configPath = ""

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.BankRoot != dir {
		t.Fatalf("expected bank root %q, got %q", dir, cfg.BankRoot)
	}
}
