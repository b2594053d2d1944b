// Package logging also provides the bank's access log: an append-only JSONL
// stream of every file-layer operation, written to access.log.jsonl at the
// bank root. internal/pattern replays a trailing window of this log to
// compute co-access and unused-file statistics (spec §4.10).
package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AccessEventType names one kind of bank operation recorded to the access log.
type AccessEventType string

const (
	AccessFileRead     AccessEventType = "file_read"
	AccessFileWrite    AccessEventType = "file_write"
	AccessFileDelete   AccessEventType = "file_delete"
	AccessFileConflict AccessEventType = "file_conflict"

	AccessLockTimeout AccessEventType = "lock_timeout"
	AccessRateLimited AccessEventType = "rate_limited"

	AccessVersionSnapshot AccessEventType = "version_snapshot"
	AccessVersionRollback AccessEventType = "version_rollback"

	AccessOptimizeRun       AccessEventType = "optimize_run"
	AccessDuplicateDetected AccessEventType = "duplicate_detected"

	AccessSuggestionProposed   AccessEventType = "suggestion_proposed"
	AccessSuggestionApproved   AccessEventType = "suggestion_approved"
	AccessSuggestionApplied    AccessEventType = "suggestion_applied"
	AccessSuggestionRejected   AccessEventType = "suggestion_rejected"
	AccessSuggestionRolledBack AccessEventType = "suggestion_rolled_back"

	AccessLearningAdjusted AccessEventType = "learning_adjusted"
)

// AccessEvent is one line of the access log.
type AccessEvent struct {
	Timestamp  int64                  `json:"ts"`
	EventType  AccessEventType        `json:"event"`
	File       string                 `json:"file"`
	Operation  string                 `json:"op,omitempty"`
	Success    bool                   `json:"success"`
	DurationMs int64                  `json:"dur_ms,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Message    string                 `json:"msg,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

var (
	accessFile *os.File
	accessMu   sync.Mutex
	accessPath string
)

// InitAccessLog opens (creating if necessary) access.log.jsonl at the bank
// root. Call once per Store, independent of debug_mode — the access log is
// a first-class input to internal/pattern, not a diagnostic artifact.
func InitAccessLog(bankRoot string) error {
	accessMu.Lock()
	defer accessMu.Unlock()

	if accessFile != nil && accessPath == filepath.Join(bankRoot, "access.log.jsonl") {
		return nil
	}
	if accessFile != nil {
		accessFile.Close()
		accessFile = nil
	}

	path := filepath.Join(bankRoot, "access.log.jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("logging: open access log: %w", err)
	}
	accessFile = file
	accessPath = path
	return nil
}

// CloseAccessLog closes the access log file handle.
func CloseAccessLog() {
	accessMu.Lock()
	defer accessMu.Unlock()
	if accessFile != nil {
		accessFile.Close()
		accessFile = nil
		accessPath = ""
	}
}

// RecordAccess appends one access event. Silently no-ops if the log has not
// been initialized, so callers in tests without a bank root don't need a
// guard at every call site.
func RecordAccess(event AccessEvent) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}

	accessMu.Lock()
	defer accessMu.Unlock()
	if accessFile == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	accessFile.Write(append(data, '\n'))
}

// RecordFileOp is the common-case helper used by internal/fsstore at the end
// of read/write/delete.
func RecordFileOp(eventType AccessEventType, file, op string, success bool, durationMs int64, errMsg string) {
	RecordAccess(AccessEvent{
		EventType:  eventType,
		File:       file,
		Operation:  op,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
	})
}

// ReadAccessLog reads back every event from a bank's access.log.jsonl, in
// file order (oldest first). Used by internal/pattern to load the trailing
// window for co-access analysis.
func ReadAccessLog(bankRoot string) ([]AccessEvent, error) {
	path := filepath.Join(bankRoot, "access.log.jsonl")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("logging: read access log: %w", err)
	}

	var events []AccessEvent
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var ev AccessEvent
		if err := dec.Decode(&ev); err != nil {
			if err == io.EOF {
				break
			}
			break
		}
		events = append(events, ev)
	}
	return events, nil
}
