package refactor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kraklabs/cortex/internal/cortexerr"
	"github.com/kraklabs/cortex/internal/depgraph"
	"github.com/kraklabs/cortex/internal/fsstore"
	"github.com/kraklabs/cortex/internal/metadata"
	"github.com/kraklabs/cortex/internal/planner"
	"github.com/kraklabs/cortex/internal/version"
)

func newTestExecutor(t *testing.T) (*Executor, *fsstore.Store, *metadata.Index, *version.Store) {
	t.Helper()
	root := t.TempDir()

	fs, err := fsstore.New(root, fsstore.Config{LockTimeout: time.Second, RateOpsPerSecond: 1000, RateWait: time.Second})
	if err != nil {
		t.Fatalf("fsstore.New: %v", err)
	}
	idx, err := metadata.Load(root)
	if err != nil {
		t.Fatalf("metadata.Load: %v", err)
	}
	vs, err := version.New(root)
	if err != nil {
		t.Fatalf("version.New: %v", err)
	}

	return New(fs, vs, idx, depgraph.New()), fs, idx, vs
}

func seedFile(t *testing.T, fs *fsstore.Store, idx *metadata.Index, vs *version.Store, name string, content string) {
	t.Helper()
	ctx := context.Background()
	sum, err := fs.Write(ctx, name, []byte(content), "")
	if err != nil {
		t.Fatalf("seed write: %v", err)
	}
	idx.Update(name, metadata.Patch{SHA256: &sum})
	vs.Append(name, []byte(content), "")
}

func TestProposeCapturesExpectedHash(t *testing.T) {
	exec, fs, idx, vs := newTestExecutor(t)
	seedFile(t, fs, idx, vs, "a.md", "content")

	s := planner.Suggestion{Type: planner.TypeConsolidate, AffectedFiles: []string{"a.md"}}
	rec, err := exec.Propose(s)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if rec.State != StateProposed {
		t.Errorf("expected state proposed, got %s", rec.State)
	}
	if rec.ExpectedHash["a.md"] == "" {
		t.Error("expected captured hash for a.md")
	}
}

func TestValidateAdvancesToPendingApproval(t *testing.T) {
	exec, fs, idx, vs := newTestExecutor(t)
	seedFile(t, fs, idx, vs, "a.md", "content")

	rec, _ := exec.Propose(planner.Suggestion{AffectedFiles: []string{"a.md"}})
	if err := exec.Validate(rec.ID); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	got, _ := exec.Get(rec.ID)
	if got.State != StatePendingApproval {
		t.Errorf("expected pending_approval, got %s", got.State)
	}
}

func TestValidateDetectsStaleHash(t *testing.T) {
	exec, fs, idx, vs := newTestExecutor(t)
	seedFile(t, fs, idx, vs, "a.md", "content")

	rec, _ := exec.Propose(planner.Suggestion{AffectedFiles: []string{"a.md"}})

	// Simulate an external edit: write new content and update the index hash.
	ctx := context.Background()
	newSum, _ := fs.Write(ctx, "a.md", []byte("changed"), "")
	idx.Update("a.md", metadata.Patch{SHA256: &newSum})

	err := exec.Validate(rec.ID)
	if cortexerr.KindOf(err) != cortexerr.Stale {
		t.Fatalf("expected Stale, got %v", err)
	}
}

func TestApproveRejectIllegalTransitionFails(t *testing.T) {
	exec, fs, idx, vs := newTestExecutor(t)
	seedFile(t, fs, idx, vs, "a.md", "content")

	rec, _ := exec.Propose(planner.Suggestion{AffectedFiles: []string{"a.md"}})

	err := exec.Approve(rec.ID)
	if cortexerr.KindOf(err) != cortexerr.InvalidState {
		t.Fatalf("expected InvalidState approving a proposed (not pending) suggestion, got %v", err)
	}
}

func TestFullPipelineApplySucceeds(t *testing.T) {
	exec, fs, idx, vs := newTestExecutor(t)
	seedFile(t, fs, idx, vs, "a.md", "content")

	s := planner.Suggestion{
		AffectedFiles: []string{"a.md"},
		Operations:    []planner.Operation{{Kind: planner.OpReplaceSection, File: "a.md"}},
	}
	rec, _ := exec.Propose(s)

	if err := exec.Validate(rec.ID); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := exec.Approve(rec.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if err := exec.Apply(context.Background(), rec.ID); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	got, _ := exec.Get(rec.ID)
	if got.State != StateApplied {
		t.Errorf("expected applied, got %s", got.State)
	}
}

func TestApplyUnknownOperationRollsBack(t *testing.T) {
	exec, fs, idx, vs := newTestExecutor(t)
	seedFile(t, fs, idx, vs, "a.md", "v1")

	s := planner.Suggestion{
		AffectedFiles: []string{"a.md"},
		Operations:    []planner.Operation{{Kind: "bogus-op", File: "a.md"}},
	}
	rec, _ := exec.Propose(s)
	exec.Validate(rec.ID)
	exec.Approve(rec.ID)

	err := exec.Apply(context.Background(), rec.ID)
	if err == nil {
		t.Fatal("expected an error for unknown operation type")
	}

	got, _ := exec.Get(rec.ID)
	if got.State != StateRolledBack {
		t.Errorf("expected rolled_back, got %s", got.State)
	}
}

// TestApplyConsolidationRewritesContentNotJustState reproduces a consolidation
// suggestion end to end: the duplicate section must actually be replaced by
// a transclusion directive on disk, not merely transition state.
func TestApplyConsolidationRewritesContentNotJustState(t *testing.T) {
	exec, fs, idx, vs := newTestExecutor(t)
	seedFile(t, fs, idx, vs, "dup.md", "# Setup\n\nold duplicated instructions\n")
	seedFile(t, fs, idx, vs, "canonical.md", "# Setup\n\ncanonical instructions\n")

	s := planner.Suggestion{
		AffectedFiles: []string{"dup.md", "canonical.md"},
		Operations: []planner.Operation{
			{Kind: planner.OpReplaceSection, File: "dup.md", Section: "Setup", Target: "canonical.md", Content: "{{include: canonical.md}}\n"},
		},
	}
	rec, _ := exec.Propose(s)
	if err := exec.Validate(rec.ID); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := exec.Approve(rec.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if err := exec.Apply(context.Background(), rec.ID); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	content, _, err := fs.Read(context.Background(), "dup.md", "")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !strings.Contains(string(content), "{{include: canonical.md}}") {
		t.Errorf("expected dup.md to contain a transclusion directive, got %q", content)
	}
	if strings.Contains(string(content), "old duplicated instructions") {
		t.Errorf("expected dup.md's duplicated section body to be gone, got %q", content)
	}
}

// TestApplyRemoveSectionDeletesContent verifies remove-section actually
// excises the named section's bytes rather than rewriting the file unchanged.
func TestApplyRemoveSectionDeletesContent(t *testing.T) {
	exec, fs, idx, vs := newTestExecutor(t)
	seedFile(t, fs, idx, vs, "a.md", "# Intro\n\nkeep me\n\n# Scratch\n\nremove me\n")

	s := planner.Suggestion{
		AffectedFiles: []string{"a.md"},
		Operations:    []planner.Operation{{Kind: planner.OpRemoveSection, File: "a.md", Section: "Scratch"}},
	}
	rec, _ := exec.Propose(s)
	exec.Validate(rec.ID)
	exec.Approve(rec.ID)
	if err := exec.Apply(context.Background(), rec.ID); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	content, _, err := fs.Read(context.Background(), "a.md", "")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if strings.Contains(string(content), "remove me") || strings.Contains(string(content), "# Scratch") {
		t.Errorf("expected Scratch section removed, got %q", content)
	}
	if !strings.Contains(string(content), "keep me") {
		t.Errorf("expected Intro section preserved, got %q", content)
	}
}

// TestApplyPostValidateRollsBackOnBrokenTransclusion reproduces the spec's
// boundary scenario 6: a reorg renames a file a transclusion depends on,
// post-validate notices the dangling reference, and the whole transaction
// rolls back, fully restoring both touched files.
func TestApplyPostValidateRollsBackOnBrokenTransclusion(t *testing.T) {
	exec, fs, idx, vs := newTestExecutor(t)
	seedFile(t, fs, idx, vs, "child.md", "{{include: parent.md}}\n")
	seedFile(t, fs, idx, vs, "parent.md", "# Parent\n\nbody\n")

	s := planner.Suggestion{
		AffectedFiles: []string{"child.md", "parent.md"},
		Operations: []planner.Operation{
			{Kind: planner.OpRenameFile, File: "parent.md", Target: "renamed.md"},
		},
	}
	rec, _ := exec.Propose(s)
	if err := exec.Validate(rec.ID); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := exec.Approve(rec.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	err := exec.Apply(context.Background(), rec.ID)
	if cortexerr.KindOf(err) != cortexerr.ValidationFailed {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}

	got, _ := exec.Get(rec.ID)
	if got.State != StateRolledBack {
		t.Errorf("expected rolled_back, got %s", got.State)
	}

	if _, _, err := fs.Read(context.Background(), "parent.md", ""); err != nil {
		t.Errorf("expected parent.md restored after rollback, got read error: %v", err)
	}
	if _, _, err := fs.Read(context.Background(), "renamed.md", ""); err == nil {
		t.Error("expected renamed.md to not exist after rollback")
	}
}

func TestRejectIsTerminal(t *testing.T) {
	exec, fs, idx, vs := newTestExecutor(t)
	seedFile(t, fs, idx, vs, "a.md", "content")

	rec, _ := exec.Propose(planner.Suggestion{AffectedFiles: []string{"a.md"}})
	exec.Validate(rec.ID)
	if err := exec.Reject(rec.ID); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	if err := exec.Approve(rec.ID); cortexerr.KindOf(err) != cortexerr.InvalidState {
		t.Fatalf("expected InvalidState approving a rejected suggestion, got %v", err)
	}
}
