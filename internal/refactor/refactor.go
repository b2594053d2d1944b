// Package refactor implements the memory bank's refactoring executor (spec
// component C12): a strictly sequential validate/approve/apply/rollback
// pipeline over a suggestion's operations, driven by a dispatch table keyed
// on operation type.
package refactor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kraklabs/cortex/internal/cortexerr"
	"github.com/kraklabs/cortex/internal/depgraph"
	"github.com/kraklabs/cortex/internal/fsstore"
	"github.com/kraklabs/cortex/internal/linkparser"
	"github.com/kraklabs/cortex/internal/logging"
	"github.com/kraklabs/cortex/internal/metadata"
	"github.com/kraklabs/cortex/internal/planner"
	"github.com/kraklabs/cortex/internal/tokencount"
	"github.com/kraklabs/cortex/internal/version"
)

// State is one of the legal lifecycle states of a Suggestion (spec §4.12).
type State string

const (
	StateProposed        State = "proposed"
	StatePendingApproval State = "pending_approval"
	StateApproved        State = "approved"
	StateApplying        State = "applying"
	StateApplied         State = "applied"
	StateRejected        State = "rejected"
	StateRolledBack      State = "rolled_back"
	StateStale           State = "stale"
)

// legalTransitions enumerates the only allowed state transitions; any
// other attempt fails with InvalidState.
var legalTransitions = map[State][]State{
	StateProposed:        {StatePendingApproval},
	StatePendingApproval:  {StateApproved, StateRejected, StateStale},
	StateApproved:         {StateApplying},
	StateApplying:         {StateApplied, StateRolledBack},
}

// Record tracks one suggestion through the pipeline.
type Record struct {
	ID            string
	Suggestion    planner.Suggestion
	State         State
	ExpectedHash  map[string]string // file -> hash captured when the suggestion was produced
	TransactionID string
	PreState      map[string]int // file -> version to roll back to
}

// Executor drives suggestions through validate/approve/apply/rollback.
type Executor struct {
	fsStore  *fsstore.Store
	versions *version.Store
	index    *metadata.Index
	graph    *depgraph.Graph

	mu      sync.Mutex
	records map[string]*Record
}

// New creates an Executor wired to the file, version, metadata, and
// dependency-graph layers; graph may be nil, in which case post-apply edge
// rebuilding is skipped (metadata re-indexing still runs).
func New(fsStore *fsstore.Store, versions *version.Store, index *metadata.Index, graph *depgraph.Graph) *Executor {
	return &Executor{fsStore: fsStore, versions: versions, index: index, graph: graph, records: make(map[string]*Record)}
}

// Propose registers a new suggestion in the proposed state, capturing the
// expected hash of every affected file so later validation can detect
// staleness.
func (e *Executor) Propose(s planner.Suggestion) (*Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	expected := make(map[string]string, len(s.AffectedFiles))
	for _, f := range s.AffectedFiles {
		rec, err := e.index.Get(f)
		if err == nil {
			expected[f] = rec.SHA256
		}
	}

	r := &Record{ID: uuid.NewString(), Suggestion: s, State: StateProposed, ExpectedHash: expected}
	e.records[r.ID] = r
	logging.RecordAccess(logging.AccessEvent{EventType: logging.AccessSuggestionProposed, File: "", Success: true, Fields: map[string]interface{}{"suggestion_id": r.ID}})
	return r, nil
}

func (e *Executor) transition(r *Record, to State) error {
	for _, allowed := range legalTransitions[r.State] {
		if allowed == to {
			r.State = to
			return nil
		}
	}
	return cortexerr.New(cortexerr.InvalidState, fmt.Sprintf("cannot transition suggestion %s from %s to %s", r.ID, r.State, to))
}

// Validate checks a suggestion's referenced files still exist with
// unchanged hashes; a mismatch marks it stale.
func (e *Executor) Validate(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.records[id]
	if !ok {
		return cortexerr.NewNotFound(id)
	}

	for _, f := range r.Suggestion.AffectedFiles {
		rec, err := e.index.Get(f)
		if err != nil {
			r.State = StateStale
			return cortexerr.New(cortexerr.Stale, fmt.Sprintf("file %q no longer exists", f))
		}
		if want, ok := r.ExpectedHash[f]; ok && want != rec.SHA256 {
			r.State = StateStale
			return cortexerr.New(cortexerr.Stale, fmt.Sprintf("file %q has changed since the suggestion was produced", f))
		}
	}

	return e.transition(r, StatePendingApproval)
}

// Approve advances a pending_approval suggestion to approved.
func (e *Executor) Approve(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.records[id]
	if !ok {
		return cortexerr.NewNotFound(id)
	}
	if err := e.transition(r, StateApproved); err != nil {
		return err
	}
	logging.RecordAccess(logging.AccessEvent{EventType: logging.AccessSuggestionApproved, Success: true, Fields: map[string]interface{}{"suggestion_id": id}})
	return nil
}

// Reject marks a pending_approval suggestion rejected; terminal.
func (e *Executor) Reject(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.records[id]
	if !ok {
		return cortexerr.NewNotFound(id)
	}
	if err := e.transition(r, StateRejected); err != nil {
		return err
	}
	logging.RecordAccess(logging.AccessEvent{EventType: logging.AccessSuggestionRejected, Success: true, Fields: map[string]interface{}{"suggestion_id": id}})
	return nil
}

// dispatch maps an operation kind to its application function. Each
// function receives the executor, the suggestion record, and the
// operation, and returns an error on failure.
var dispatch = map[planner.OperationKind]func(ctx context.Context, e *Executor, r *Record, op planner.Operation) error{
	planner.OpReplaceSection: applyRewriteFile,
	planner.OpRemoveSection:  applyRewriteFile,
	planner.OpCreateFile:     applyCreateFile,
	planner.OpMoveFile:       applyMoveFile,
	planner.OpRenameFile:     applyRenameFile,
	planner.OpCreateCategory: applyCreateCategory,
}

// applyRewriteFile re-reads op.File, applies the section-level edit the
// operation names, and writes the result back through C1 with the
// suggestion's captured expected_hash.
//
// replace-section replaces the named section's body (or, with no Section,
// the whole file) with op.Content — typically a `{{include: target}}`
// transclusion built by the planner. remove-section excises the named
// section entirely.
func applyRewriteFile(ctx context.Context, e *Executor, r *Record, op planner.Operation) error {
	content, _, err := e.fsStore.Read(ctx, op.File, "")
	if err != nil {
		return err
	}
	original := string(content)

	var updated string
	switch op.Kind {
	case planner.OpRemoveSection:
		updated = removeSection(original, op.Section)
	default:
		replacement := op.Content
		if replacement == "" && op.Target != "" {
			replacement = transclusionDirective(op.Target)
		}
		if replacement == "" {
			updated = original
		} else {
			updated = replaceSection(original, op.Section, replacement)
		}
	}

	_, err = e.fsStore.Write(ctx, op.File, []byte(updated), r.ExpectedHash[op.File])
	return err
}

// transclusionDirective builds the spec §4.4 include directive, matching
// the form the planner embeds in a consolidation operation's Content.
func transclusionDirective(canonical string) string {
	return fmt.Sprintf("{{include: %s}}\n", canonical)
}

func applyCreateFile(ctx context.Context, e *Executor, r *Record, op planner.Operation) error {
	_, err := e.fsStore.Write(ctx, op.Target, []byte(op.Content), "")
	return err
}

func applyMoveFile(ctx context.Context, e *Executor, r *Record, op planner.Operation) error {
	content, _, err := e.fsStore.Read(ctx, op.File, "")
	if err != nil {
		return err
	}
	if _, err := e.fsStore.Write(ctx, op.Target, content, ""); err != nil {
		return err
	}
	if err := e.fsStore.Delete(ctx, op.File); err != nil {
		return err
	}
	// Mark the old path gone in the index so postValidate's referential-
	// integrity check can catch a transclusion left pointing at it.
	e.index.Delete(op.File)
	return nil
}

func applyRenameFile(ctx context.Context, e *Executor, r *Record, op planner.Operation) error {
	return applyMoveFile(ctx, e, r, op)
}

func applyCreateCategory(ctx context.Context, e *Executor, r *Record, op planner.Operation) error {
	return nil
}

// Apply runs the full pipeline for an approved suggestion: capture
// pre-state, apply operations in order through the dispatch table,
// post-validate, and roll back on any failure.
func (e *Executor) Apply(ctx context.Context, id string) error {
	e.mu.Lock()
	r, ok := e.records[id]
	if !ok {
		e.mu.Unlock()
		return cortexerr.NewNotFound(id)
	}
	if err := e.transition(r, StateApplying); err != nil {
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()

	txnID := uuid.NewString()
	touched := affectedPaths(r)
	preState := make(map[string]int, len(touched))
	for _, f := range touched {
		preState[f] = e.versions.CurrentVersion(f)
	}
	r.TransactionID = txnID
	r.PreState = preState

	for _, op := range r.Suggestion.Operations {
		fn, ok := dispatch[op.Kind]
		if !ok {
			e.rollback(ctx, r)
			return cortexerr.New(cortexerr.Invalid, fmt.Sprintf("unknown operation type %q", op.Kind))
		}
		if err := fn(ctx, e, r, op); err != nil {
			e.rollback(ctx, r)
			return err
		}
	}

	if err := e.postValidate(ctx, r); err != nil {
		e.rollback(ctx, r)
		return err
	}

	e.mu.Lock()
	r.State = StateApplied
	e.mu.Unlock()
	logging.RecordAccess(logging.AccessEvent{EventType: logging.AccessSuggestionApplied, Success: true, Fields: map[string]interface{}{"suggestion_id": id, "transaction_id": txnID}})
	return nil
}

// postValidate re-parses links (C4) in every file the suggestion touched,
// rebuilds their dependency-graph edges (C5), and refreshes their metadata
// records. A transclusion or link left pointing at a file that no longer
// exists fails validation with ValidationFailed, triggering a rollback
// (spec §4.12 step 5).
func (e *Executor) postValidate(ctx context.Context, r *Record) error {
	for _, file := range affectedPaths(r) {
		content, _, err := e.fsStore.Read(ctx, file, "")
		if err != nil {
			// Legitimately gone: a move/rename operation relocated it.
			continue
		}

		for _, l := range parseMetaLinks(content) {
			if l.Kind == metadata.LinkExternal {
				continue
			}
			if rec, err := e.index.Get(l.Target); err != nil || !rec.Exists {
				return cortexerr.New(cortexerr.ValidationFailed,
					fmt.Sprintf("%q references %q, which no longer exists after apply", file, l.Target))
			}
		}

		if err := e.refreshIndexFromDisk(ctx, file); err != nil {
			return cortexerr.Wrap(cortexerr.ValidationFailed, "refreshing metadata post-apply", err)
		}
	}
	return nil
}

// parseMetaLinks parses content's links and transclusions into a single
// metadata.Link slice for index/graph updates.
func parseMetaLinks(content []byte) []metadata.Link {
	links, transclusions := linkparser.Parse(content)
	out := make([]metadata.Link, 0, len(links)+len(transclusions))
	for _, l := range links {
		out = append(out, metadata.Link{Target: l.Target, Kind: metadata.LinkKind(l.Kind), SourceLine: l.SourceLine})
	}
	for _, t := range transclusions {
		out = append(out, metadata.Link{Target: t.Target, Kind: metadata.LinkTransclusion, SourceLine: t.SourceLine})
	}
	return out
}

// refreshIndexFromDisk re-reads file's current bytes and refreshes its
// metadata record and dependency-graph edges to match. Used after a
// successful apply and after a version rollback, so the index and graph
// never drift from what is actually on disk.
func (e *Executor) refreshIndexFromDisk(ctx context.Context, file string) error {
	content, _, err := e.fsStore.Read(ctx, file, "")
	if err != nil {
		return err
	}

	metaLinks := parseMetaLinks(content)
	sum := sha256Hex(content)
	tokens := tokencount.Count(string(content))
	sizeBytes := len(content)
	now := time.Now().Unix()
	if _, err := e.index.Update(file, metadata.Patch{
		SizeBytes:     &sizeBytes,
		Mtime:         &now,
		SHA256:        &sum,
		TokenCount:    &tokens,
		OutgoingLinks: metaLinks,
	}); err != nil {
		return err
	}

	if e.graph != nil {
		e.graph.RemoveEdgesFrom(file)
		for _, l := range metaLinks {
			if l.Kind == metadata.LinkExternal {
				continue
			}
			kind := depgraph.EdgeMarkdown
			if l.Kind == metadata.LinkTransclusion {
				kind = depgraph.EdgeTransclusion
			}
			e.graph.AddEdge(file, l.Target, kind, l.SourceLine)
		}
	}
	return nil
}

// affectedPaths is the union of a suggestion's declared affected files and
// every file/target named by its operations, deduplicated.
func affectedPaths(r *Record) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, f := range r.Suggestion.AffectedFiles {
		add(f)
	}
	for _, op := range r.Suggestion.Operations {
		add(op.File)
		add(op.Target)
	}
	return out
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// rollback restores every affected file to its pre-state snapshot. Rollback
// is idempotent and append-only: it never deletes history, it creates a
// fresh version per file.
func (e *Executor) rollback(ctx context.Context, r *Record) {
	for file, v := range r.PreState {
		if v == 0 {
			// Didn't exist before the suggestion; if apply created or moved
			// a file into this path, remove it so the pre-apply state is
			// fully restored.
			if _, _, err := e.fsStore.Read(ctx, file, ""); err == nil {
				e.fsStore.Delete(ctx, file)
				e.index.Delete(file)
			}
			continue
		}
		if _, err := e.versions.Rollback(ctx, e.fsStore, file, v); err == nil {
			e.refreshIndexFromDisk(ctx, file)
		}
	}

	e.mu.Lock()
	r.State = StateRolledBack
	e.mu.Unlock()

	logging.RecordAccess(logging.AccessEvent{EventType: logging.AccessSuggestionRolledBack, Success: true, Fields: map[string]interface{}{"suggestion_id": r.ID, "transaction_id": r.TransactionID}})
}

// Get returns a copy of a suggestion's current record.
func (e *Executor) Get(id string) (Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.records[id]
	if !ok {
		return Record{}, cortexerr.NewNotFound(id)
	}
	return *r, nil
}
