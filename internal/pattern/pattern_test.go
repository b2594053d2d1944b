package pattern

import (
	"testing"
	"time"

	"github.com/kraklabs/cortex/internal/logging"
)

func TestAnalyzeCountsAccessFrequency(t *testing.T) {
	now := time.Now()
	events := []logging.AccessEvent{
		{File: "a.md", Timestamp: now.Add(-time.Hour).UnixMilli()},
		{File: "a.md", Timestamp: now.Add(-time.Minute).UnixMilli()},
		{File: "b.md", Timestamp: now.Add(-time.Minute).UnixMilli()},
	}

	res := Analyze(events, 100, 0, now)

	var aStats FileStats
	for _, s := range res.FileStats {
		if s.File == "a.md" {
			aStats = s
		}
	}
	if aStats.AccessCount != 2 {
		t.Errorf("expected a.md accessed twice, got %d", aStats.AccessCount)
	}
}

func TestAnalyzeOnlyScansTrailingWindow(t *testing.T) {
	now := time.Now()
	var events []logging.AccessEvent
	for i := 0; i < 50; i++ {
		events = append(events, logging.AccessEvent{File: "old.md", Timestamp: now.Add(-time.Duration(50-i) * time.Hour).UnixMilli()})
	}
	events = append(events, logging.AccessEvent{File: "new.md", Timestamp: now.UnixMilli()})

	res := Analyze(events, 10, 0, now)
	if res.WindowSize != 10 {
		t.Errorf("expected window size 10, got %d", res.WindowSize)
	}

	for _, s := range res.FileStats {
		if s.File == "old.md" && s.AccessCount > 9 {
			t.Errorf("expected old.md count bounded by window, got %d", s.AccessCount)
		}
	}
}

func TestCoAccessPairsWithinSameTask(t *testing.T) {
	now := time.Now()
	events := []logging.AccessEvent{
		{File: "a.md", Timestamp: now.UnixMilli(), Fields: map[string]interface{}{"task_id": "t1"}},
		{File: "b.md", Timestamp: now.UnixMilli(), Fields: map[string]interface{}{"task_id": "t1"}},
		{File: "c.md", Timestamp: now.UnixMilli(), Fields: map[string]interface{}{"task_id": "t2"}},
	}

	res := Analyze(events, 100, 0, now)
	if len(res.CoAccess) != 1 {
		t.Fatalf("expected 1 co-access pair, got %d: %+v", len(res.CoAccess), res.CoAccess)
	}
	if res.CoAccess[0].A != "a.md" || res.CoAccess[0].B != "b.md" {
		t.Errorf("unexpected pair: %+v", res.CoAccess[0])
	}
}

func TestUnusedFilesBeyondWindow(t *testing.T) {
	now := time.Now()
	events := []logging.AccessEvent{
		{File: "stale.md", Timestamp: now.Add(-60 * 24 * time.Hour).UnixMilli()},
		{File: "fresh.md", Timestamp: now.Add(-time.Hour).UnixMilli()},
	}

	res := Analyze(events, 100, 30*24*time.Hour, now)
	if len(res.Unused) != 1 || res.Unused[0] != "stale.md" {
		t.Errorf("expected only stale.md flagged unused, got %v", res.Unused)
	}
}
