package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func resetLoggingState() {
	CloseAll()
	CloseAccessLog()
	loggers = make(map[Category]*Logger)
	logsDir = ""
	cfg = settings{}
	logLevel = LevelInfo
}

func TestAllCategoriesLog(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	resetLoggingState()

	categories := map[string]bool{
		"fsstore": true, "version": true, "metadata": true, "linkparser": true,
		"depgraph": true, "tokencount": true, "relevance": true, "optimizer": true,
		"duplication": true, "pattern": true, "planner": true, "refactor": true,
		"learning": true, "cli": true,
	}
	if err := Initialize(tempDir, true, categories, "debug"); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	all := []Category{
		CategoryFSStore, CategoryVersion, CategoryMetadata, CategoryLinkParser,
		CategoryDepGraph, CategoryTokenCount, CategoryRelevance, CategoryOptimizer,
		CategoryDuplicate, CategoryPattern, CategoryPlanner, CategoryRefactor,
		CategoryLearning, CategoryCLI,
	}

	for _, cat := range all {
		if !IsCategoryEnabled(cat) {
			t.Errorf("category %s should be enabled", cat)
		}
		logger := Get(cat)
		logger.Info("info message for %s", cat)
		logger.Debug("debug message for %s", cat)
		logger.Warn("warn message for %s", cat)
		logger.Error("error message for %s", cat)
	}

	CloseAll()

	logsPath := filepath.Join(tempDir, ".cortex", "logs")
	entries, err := os.ReadDir(logsPath)
	if err != nil {
		t.Fatalf("read logs dir: %v", err)
	}

	for _, cat := range all {
		found := false
		for _, entry := range entries {
			if strings.Contains(entry.Name(), string(cat)+".log") {
				found = true
				content, err := os.ReadFile(filepath.Join(logsPath, entry.Name()))
				if err != nil {
					t.Errorf("read log file for %s: %v", cat, err)
					continue
				}
				if len(content) == 0 {
					t.Errorf("log file for %s is empty", cat)
				}
				break
			}
		}
		if !found {
			t.Errorf("no log file found for category: %s", cat)
		}
	}
}

func TestDebugModeDisabled(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test_disabled")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	resetLoggingState()

	if err := Initialize(tempDir, false, map[string]bool{"fsstore": true}, "debug"); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if IsCategoryEnabled(CategoryFSStore) {
		t.Error("fsstore should be disabled when debug_mode=false")
	}

	logger := Get(CategoryFSStore)
	logger.Info("this should not be logged")
	logger.Error("this should not be logged")

	CloseAll()

	logsPath := filepath.Join(tempDir, ".cortex", "logs")
	if _, err := os.Stat(logsPath); err == nil {
		entries, _ := os.ReadDir(logsPath)
		if len(entries) > 0 {
			t.Errorf("expected no log files in production mode, found %d", len(entries))
		}
	}
}

func TestCategoryToggle(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test_category")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	resetLoggingState()

	categories := map[string]bool{
		"fsstore":  true,
		"metadata": true,
		"refactor": false,
		"pattern":  false,
	}
	if err := Initialize(tempDir, true, categories, "debug"); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if !IsCategoryEnabled(CategoryFSStore) {
		t.Error("fsstore should be enabled")
	}
	if !IsCategoryEnabled(CategoryMetadata) {
		t.Error("metadata should be enabled")
	}
	if IsCategoryEnabled(CategoryRefactor) {
		t.Error("refactor should be disabled")
	}
	if IsCategoryEnabled(CategoryPattern) {
		t.Error("pattern should be disabled")
	}
	if !IsCategoryEnabled(CategoryLearning) {
		t.Error("learning (not in config) should default to enabled")
	}

	Get(CategoryFSStore).Info("should be logged")
	Get(CategoryRefactor).Info("should not be logged")

	CloseAll()

	logsPath := filepath.Join(tempDir, ".cortex", "logs")
	entries, _ := os.ReadDir(logsPath)

	hasFSStoreLog, hasRefactorLog := false, false
	for _, e := range entries {
		if strings.Contains(e.Name(), "fsstore") {
			hasFSStoreLog = true
		}
		if strings.Contains(e.Name(), "refactor") {
			hasRefactorLog = true
		}
	}
	if !hasFSStoreLog {
		t.Error("expected fsstore log file")
	}
	if hasRefactorLog {
		t.Error("should not have refactor log file (disabled)")
	}
}

func TestTimerLogging(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test_timer")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	resetLoggingState()
	if err := Initialize(tempDir, true, nil, "debug"); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	timer := StartTimer(CategoryOptimizer, "test_operation")
	time.Sleep(time.Millisecond)
	elapsed := timer.Stop()

	if elapsed <= 0 {
		t.Error("timer should have recorded non-zero duration")
	}

	CloseAll()
}

func TestAccessLogRoundTrip(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test_access")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	if err := InitAccessLog(tempDir); err != nil {
		t.Fatalf("init access log: %v", err)
	}

	RecordFileOp(AccessFileWrite, "notes.md", "write", true, 3, "")
	RecordFileOp(AccessFileRead, "notes.md", "read", true, 1, "")
	RecordFileOp(AccessLockTimeout, "notes.md", "write", false, 5000, "lock timeout")

	CloseAccessLog()

	events, err := ReadAccessLog(tempDir)
	if err != nil {
		t.Fatalf("read access log: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].EventType != AccessFileWrite || events[0].File != "notes.md" {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[2].EventType != AccessLockTimeout || events[2].Success {
		t.Errorf("unexpected third event: %+v", events[2])
	}
}
