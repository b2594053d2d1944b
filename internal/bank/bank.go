// Package bank is the memory bank engine's composition root: it wires
// C1-C13 into one façade, constructed once at process start and passed
// down explicitly (spec Design Notes §9's "explicit container" pick).
package bank

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kraklabs/cortex/internal/config"
	"github.com/kraklabs/cortex/internal/cortexerr"
	"github.com/kraklabs/cortex/internal/depgraph"
	"github.com/kraklabs/cortex/internal/duplication"
	"github.com/kraklabs/cortex/internal/fsstore"
	"github.com/kraklabs/cortex/internal/learning"
	"github.com/kraklabs/cortex/internal/linkparser"
	"github.com/kraklabs/cortex/internal/logging"
	"github.com/kraklabs/cortex/internal/metadata"
	"github.com/kraklabs/cortex/internal/optimizer"
	"github.com/kraklabs/cortex/internal/pattern"
	"github.com/kraklabs/cortex/internal/planner"
	"github.com/kraklabs/cortex/internal/relevance"
	"github.com/kraklabs/cortex/internal/tokencount"
	"github.com/kraklabs/cortex/internal/version"
)

// Bank is the assembled engine: every component wired to its neighbors per
// spec §3's ownership rules.
type Bank struct {
	cfg *config.Config

	FS       *fsstore.Store
	Versions *version.Store
	Index    *metadata.Index
	Graph    *depgraph.Graph
	Scorer   *relevance.Scorer
	Dupes    *duplication.Detector
	Learning *learning.Store

	watcher *fsstore.ExternalEditWatcher
}

// Open constructs a Bank rooted at cfg.BankRoot, loading or initializing
// every on-disk component (spec §6 "On-disk layout").
func Open(cfg *config.Config) (*Bank, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	fs, err := fsstore.New(cfg.BankRoot, fsstore.Config{
		LockTimeout:      time.Duration(cfg.FSStore.LockTimeoutSeconds) * time.Second,
		RateOpsPerSecond: cfg.FSStore.RateOpsPerSecond,
		RateWait:         time.Duration(cfg.FSStore.RateWaitSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	vs, err := version.New(cfg.BankRoot)
	if err != nil {
		return nil, err
	}

	idx, err := metadata.Load(cfg.BankRoot)
	if err != nil {
		return nil, err
	}

	if err := logging.InitAccessLog(cfg.BankRoot); err != nil {
		return nil, err
	}

	graph := depgraph.New()
	rebuildGraphFromIndex(graph, idx)

	scorer := relevance.New(graph, relevance.Weights{
		Keyword:    cfg.Scoring.KeywordWeight,
		Dependency: cfg.Scoring.DependencyWeight,
		Recency:    cfg.Scoring.RecencyWeight,
		Quality:    cfg.Scoring.QualityWeight,
	})

	dupes := duplication.New(cfg.Similarity.DuplicationThreshold)

	learn, err := learning.New(cfg.BankRoot, learning.Config{
		RetentionCap: cfg.Learning.RetentionCap,
		Alpha:        cfg.Learning.Alpha,
		Beta:         cfg.Learning.Beta,
	})
	if err != nil {
		return nil, err
	}

	watcher, err := fsstore.NewExternalEditWatcher(cfg.BankRoot)
	if err != nil {
		return nil, err
	}

	return &Bank{
		cfg: cfg, FS: fs, Versions: vs, Index: idx, Graph: graph,
		Scorer: scorer, Dupes: dupes, Learning: learn, watcher: watcher,
	}, nil
}

// Close stops the background external-edit watcher and the access log.
func (b *Bank) Close() {
	if b.watcher != nil {
		b.watcher.Stop()
	}
	logging.CloseAccessLog()
}

// rebuildGraphFromIndex seeds the dependency graph's edges from every
// record's already-parsed outgoing links.
func rebuildGraphFromIndex(g *depgraph.Graph, idx *metadata.Index) {
	src := make(map[string][]depgraph.Edge)
	for _, rec := range idx.ListAll() {
		var edges []depgraph.Edge
		for _, l := range rec.OutgoingLinks {
			if l.Kind == metadata.LinkExternal {
				continue
			}
			kind := depgraph.EdgeMarkdown
			if l.Kind == metadata.LinkTransclusion {
				kind = depgraph.EdgeTransclusion
			}
			edges = append(edges, depgraph.Edge{To: l.Target, Kind: kind, SourceLine: l.SourceLine})
		}
		src[rec.Path] = edges
	}
	g.RebuildFromIndex(src)
}

// Write runs a full C1->C2->C3 write: atomic file write, a new version
// snapshot, and an updated metadata record (re-parsed links rebuild the
// file's graph edges).
func (b *Bank) Write(ctx context.Context, name string, content []byte, expectedHash, author string) (metadata.Record, error) {
	sum, err := b.FS.Write(ctx, name, content, expectedHash)
	if err != nil {
		return metadata.Record{}, err
	}

	snap, err := b.Versions.Append(name, content, author)
	if err != nil {
		return metadata.Record{}, err
	}

	links, transclusions := linkparser.Parse(content)
	metaLinks := make([]metadata.Link, 0, len(links)+len(transclusions))
	for _, l := range links {
		metaLinks = append(metaLinks, metadata.Link{Target: l.Target, Kind: metadata.LinkKind(l.Kind), SourceLine: l.SourceLine})
	}
	for _, t := range transclusions {
		metaLinks = append(metaLinks, metadata.Link{Target: t.Target, Kind: metadata.LinkTransclusion, SourceLine: t.SourceLine})
	}

	tokens := tokencount.Count(string(content))
	sizeBytes := len(content)
	now := time.Now().Unix()

	rec, err := b.Index.Update(name, metadata.Patch{
		SizeBytes:     &sizeBytes,
		Mtime:         &now,
		SHA256:        &sum,
		TokenCount:    &tokens,
		OutgoingLinks: metaLinks,
	})
	if err != nil {
		return metadata.Record{}, err
	}
	if _, err := b.Index.AppendVersion(name, metadata.VersionRef{Version: snap.Version, SHA256: snap.SHA256, Timestamp: snap.Timestamp, Author: author}); err != nil {
		return metadata.Record{}, err
	}

	b.Graph.RemoveEdgesFrom(name)
	for _, l := range metaLinks {
		if l.Kind == metadata.LinkExternal {
			continue
		}
		b.Graph.AddEdge(name, l.Target, toEdgeKind(l.Kind), l.SourceLine)
	}

	return rec, nil
}

func toEdgeKind(k metadata.LinkKind) depgraph.EdgeKind {
	if k == metadata.LinkTransclusion {
		return depgraph.EdgeTransclusion
	}
	return depgraph.EdgeMarkdown
}

// Read returns a file's content through C1, recording the access against
// C3's per-file access counters.
func (b *Bank) Read(ctx context.Context, name string) ([]byte, string, error) {
	content, sum, err := b.FS.Read(ctx, name, "")
	if err != nil {
		return nil, "", err
	}
	b.Index.RecordAccess(name)
	return content, sum, nil
}

// Rebuild rescans memory-bank/*.md from disk and reconstructs the metadata
// index, version history, and dependency graph, for recovery after
// IndexCorrupted (spec §4.5 rebuild_from_index, supplemented per SPEC_FULL
// §12 as a standalone operation).
func (b *Bank) Rebuild(ctx context.Context) error {
	if err := b.Versions.Rebuild(); err != nil {
		return err
	}

	entries, err := os.ReadDir(b.FS.BankRoot())
	if err != nil {
		return cortexerr.New(cortexerr.Internal, "scanning bank root: "+err.Error())
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		content, sum, err := b.FS.Read(ctx, e.Name(), "")
		if err != nil {
			continue
		}
		links, transclusions := linkparser.Parse(content)
		metaLinks := make([]metadata.Link, 0, len(links)+len(transclusions))
		for _, l := range links {
			metaLinks = append(metaLinks, metadata.Link{Target: l.Target, Kind: metadata.LinkKind(l.Kind), SourceLine: l.SourceLine})
		}
		for _, t := range transclusions {
			metaLinks = append(metaLinks, metadata.Link{Target: t.Target, Kind: metadata.LinkTransclusion, SourceLine: t.SourceLine})
		}

		info, statErr := os.Stat(filepath.Join(b.FS.BankRoot(), e.Name()))
		var mtime int64
		if statErr == nil {
			mtime = info.ModTime().Unix()
		}
		tokens := tokencount.Count(string(content))
		size := len(content)

		if _, err := b.Index.Update(e.Name(), metadata.Patch{
			SizeBytes: &size, Mtime: &mtime, SHA256: &sum, TokenCount: &tokens, OutgoingLinks: metaLinks,
		}); err != nil {
			return err
		}
	}

	rebuildGraphFromIndex(b.Graph, b.Index)
	return nil
}

// StructureInfo reports the bank's published layout plus summary health
// statistics for a dashboard façade (SPEC_FULL §12, supplemented).
type StructureInfo struct {
	ReviewsPath string
	PlansPath   string
	RulesPath   string

	FileCount   int
	TotalTokens int
	GradeCounts map[planner.Grade]int
}

// StructureInfo computes the published directories and a grade-distribution
// summary over every file currently in the index.
func (b *Bank) StructureInfo() StructureInfo {
	info := StructureInfo{
		ReviewsPath: filepath.Join(b.FS.BankRoot(), "reviews"),
		PlansPath:   filepath.Join(b.FS.BankRoot(), "plans"),
		RulesPath:   filepath.Join(b.FS.BankRoot(), "rules"),
		GradeCounts: make(map[planner.Grade]int),
	}

	for _, rec := range b.Index.ListAll() {
		if !rec.Exists {
			continue
		}
		info.FileCount++
		info.TotalTokens += rec.TokenCount

		q := planner.ComputeQuality(planner.QualityInput{
			Name:               rec.Path,
			RequiredSections:   0,
			PresentSections:    len(rec.Sections),
			DaysSinceModified:  time.Since(time.Unix(rec.Mtime, 0)).Hours() / 24,
			TokenCount:         rec.TokenCount,
		}, planner.QualityWeights{
			Completeness: b.cfg.Quality.CompletenessWeight,
			Consistency:  b.cfg.Quality.ConsistencyWeight,
			Freshness:    b.cfg.Quality.FreshnessWeight,
			Structure:    b.cfg.Quality.StructureWeight,
			Efficiency:   b.cfg.Quality.EfficiencyWeight,
		})
		info.GradeCounts[q.Grade]++
	}

	return info
}

// AnalyzePatterns replays the access log through C10 using the configured
// trailing window.
func (b *Bank) AnalyzePatterns() (pattern.Result, error) {
	events, err := logging.ReadAccessLog(b.FS.BankRoot())
	if err != nil {
		return pattern.Result{}, err
	}
	return pattern.Analyze(events, b.cfg.Pattern.WindowSize, pattern.DefaultUnusedWindow, time.Now()), nil
}

// fileInputsForScoring builds relevance.FileInput for every existing file,
// the shape both the context optimizer and a direct query consume.
func (b *Bank) fileInputsForScoring() []relevance.FileInput {
	recs := b.Index.ListAll()
	sort.Slice(recs, func(i, j int) bool { return recs[i].Path < recs[j].Path })

	out := make([]relevance.FileInput, 0, len(recs))
	for _, rec := range recs {
		if !rec.Exists {
			continue
		}
		content, _, err := b.FS.Read(context.Background(), rec.Path, "")
		if err != nil {
			continue
		}
		out = append(out, relevance.FileInput{
			Name:    rec.Path,
			Content: string(content),
			Mtime:   time.Unix(rec.Mtime, 0),
		})
	}
	return out
}

// Query scores every file against a free-text query and returns ranked
// results, the C8 entry point before optimization.
func (b *Bank) Query(q string) []relevance.FileScore {
	return b.Scorer.Score(q, b.fileInputsForScoring(), nil)
}

// OptimizeContext selects files/sections under a token budget and strategy
// (C8), logging the run for pattern analysis (C10).
func (b *Bank) OptimizeContext(budget int, strategy optimizer.Strategy, mandatory []string, query string) optimizer.Result {
	scores := b.Query(query)
	candidates := make([]optimizer.Candidate, 0, len(scores))
	for _, fs := range scores {
		rec, err := b.Index.Get(fs.Name)
		if err != nil {
			continue
		}
		candidates = append(candidates, optimizer.Candidate{Name: fs.Name, Score: fs.Score, Tokens: rec.TokenCount})
	}

	result := optimizer.Optimize(optimizer.Input{
		Budget: budget, Strategy: strategy, MandatoryFiles: mandatory, Candidates: candidates, Graph: b.Graph,
	})

	logging.RecordAccess(logging.AccessEvent{
		EventType: logging.AccessOptimizeRun, Success: true,
		Fields: map[string]interface{}{"strategy": string(strategy), "budget": budget, "utilization": fmt.Sprintf("%.4f", result.Utilization)},
	})
	return result
}

// DetectDuplicates runs C9 over every existing file's current content.
func (b *Bank) DetectDuplicates() duplication.Result {
	recs := b.Index.ListAll()
	items := make([]duplication.Item, 0, len(recs))
	for _, rec := range recs {
		if !rec.Exists {
			continue
		}
		content, _, err := b.FS.Read(context.Background(), rec.Path, "")
		if err != nil {
			continue
		}
		items = append(items, duplication.Item{Name: rec.Path, Content: string(content)})
	}

	result := b.Dupes.Detect(items)
	logging.RecordAccess(logging.AccessEvent{
		EventType: logging.AccessDuplicateDetected, Success: true,
		Fields: map[string]interface{}{"exact": len(result.ExactDuplicates), "similar": len(result.SimilarContent)},
	})
	return result
}
