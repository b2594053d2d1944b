package version

import (
	"context"
	"testing"
	"time"

	"github.com/kraklabs/cortex/internal/cortexerr"
	"github.com/kraklabs/cortex/internal/fsstore"
)

func newTestStores(t *testing.T) (*fsstore.Store, *Store) {
	t.Helper()
	root := t.TempDir()

	fs, err := fsstore.New(root, fsstore.Config{LockTimeout: time.Second, RateOpsPerSecond: 1000, RateWait: time.Second})
	if err != nil {
		t.Fatalf("fsstore.New: %v", err)
	}
	vs, err := New(root)
	if err != nil {
		t.Fatalf("version.New: %v", err)
	}
	return fs, vs
}

func TestAppendAssignsIncreasingVersions(t *testing.T) {
	_, vs := newTestStores(t)

	s1, err := vs.Append("progress.md", []byte("v1"), "")
	if err != nil {
		t.Fatalf("Append 1: %v", err)
	}
	s2, err := vs.Append("progress.md", []byte("v2"), "")
	if err != nil {
		t.Fatalf("Append 2: %v", err)
	}

	if s1.Version != 1 || s2.Version != 2 {
		t.Fatalf("expected versions 1,2 got %d,%d", s1.Version, s2.Version)
	}
	if vs.CurrentVersion("progress.md") != 2 {
		t.Fatalf("expected current version 2, got %d", vs.CurrentVersion("progress.md"))
	}
}

func TestGetReturnsExactBytesForVersion(t *testing.T) {
	_, vs := newTestStores(t)

	vs.Append("techContext.md", []byte("alpha"), "")
	vs.Append("techContext.md", []byte("beta"), "")

	data, snap, err := vs.Get("techContext.md", 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "alpha" {
		t.Errorf("expected 'alpha', got %q", data)
	}
	if snap.Version != 1 {
		t.Errorf("expected version 1, got %d", snap.Version)
	}
}

func TestGetUnknownVersionIsNotFound(t *testing.T) {
	_, vs := newTestStores(t)
	vs.Append("x.md", []byte("a"), "")

	_, _, err := vs.Get("x.md", 99)
	if cortexerr.KindOf(err) != cortexerr.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestRollbackWritesThroughAndAppendsNewVersion(t *testing.T) {
	fs, vs := newTestStores(t)
	ctx := context.Background()

	content1 := []byte("original content")
	content2 := []byte("overwritten content")

	if _, err := fs.Write(ctx, "activeContext.md", content1, ""); err != nil {
		t.Fatalf("Write 1: %v", err)
	}
	vs.Append("activeContext.md", content1, "")

	if _, err := fs.Write(ctx, "activeContext.md", content2, ""); err != nil {
		t.Fatalf("Write 2: %v", err)
	}
	vs.Append("activeContext.md", content2, "")

	snap, err := vs.Rollback(ctx, fs, "activeContext.md", 1)
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if snap.Version != 3 {
		t.Fatalf("expected rollback to append version 3, got %d", snap.Version)
	}

	data, _, err := fs.Read(ctx, "activeContext.md", "")
	if err != nil {
		t.Fatalf("Read after rollback: %v", err)
	}
	if string(data) != string(content1) {
		t.Errorf("expected rolled-back content %q, got %q", content1, data)
	}

	if len(vs.List("activeContext.md")) != 3 {
		t.Errorf("rollback must not delete history; expected 3 entries, got %d", len(vs.List("activeContext.md")))
	}
}

func TestRebuildReconstructsHistoryFromDisk(t *testing.T) {
	root := t.TempDir()
	vs, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	vs.Append("notes/ideas.md", []byte("one"), "")
	vs.Append("notes/ideas.md", []byte("two"), "")

	vs2, err := New(root)
	if err != nil {
		t.Fatalf("New (second): %v", err)
	}
	if err := vs2.Rebuild(); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	hist := vs2.List("notes/ideas.md")
	if len(hist) != 2 {
		t.Fatalf("expected 2 versions after rebuild, got %d", len(hist))
	}
	if hist[0].Version != 1 || hist[1].Version != 2 {
		t.Errorf("expected versions in order 1,2, got %d,%d", hist[0].Version, hist[1].Version)
	}
}
