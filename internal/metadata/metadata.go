// Package metadata implements the memory bank's metadata index (spec
// component C3): the authoritative per-file record store, persisted as a
// single JSON document with a SHA-256 integrity tag.
package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kraklabs/cortex/internal/cortexerr"
	"github.com/kraklabs/cortex/internal/logging"
)

// LinkKind identifies the kind of an outgoing link.
type LinkKind string

const (
	LinkMarkdown     LinkKind = "markdown"
	LinkTransclusion LinkKind = "transclusion"
	LinkExternal     LinkKind = "external"
)

// Link is one outgoing reference recorded against a file.
type Link struct {
	Target     string   `json:"target"`
	Kind       LinkKind `json:"kind"`
	SourceLine int      `json:"source_line"`
	Broken     bool     `json:"broken"`
}

// Section is one heading-delimited region of a file.
type Section struct {
	Title      string `json:"title"`
	Level      int    `json:"level"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	TokenCount int    `json:"token_count"`
}

// VersionRef is the lightweight version pointer kept in the file record;
// internal/version.Store holds the authoritative snapshot bytes.
type VersionRef struct {
	Version   int    `json:"version"`
	SHA256    string `json:"sha256"`
	Timestamp int64  `json:"timestamp"`
	Author    string `json:"author,omitempty"`
}

// Record is the authoritative per-file record (spec §3 "File record").
type Record struct {
	Path           string       `json:"path"`
	Exists         bool         `json:"exists"`
	SizeBytes      int          `json:"size_bytes"`
	Mtime          int64        `json:"mtime"`
	SHA256         string       `json:"sha256"`
	TokenCount     int          `json:"token_count"`
	Sections       []Section    `json:"sections"`
	OutgoingLinks  []Link       `json:"outgoing_links"`
	CurrentVersion int          `json:"current_version"`
	VersionHistory []VersionRef `json:"version_history"`
	LastAccessed   int64        `json:"last_accessed"`
	AccessCount    int          `json:"access_count"`
}

// Patch carries the fields update() may mutate on an existing record; zero
// values mean "leave unchanged" except where a pointer/slice is explicitly
// set (nil slice/pointer fields are skipped, except Exists: a nil Exists
// sets the record's exists flag to true).
type Patch struct {
	SizeBytes     *int
	Mtime         *int64
	SHA256        *string
	TokenCount    *int
	Sections      []Section
	OutgoingLinks []Link
	Exists        *bool
}

type onDisk struct {
	Records map[string]*Record `json:"records"`
}

// Index is the in-memory, disk-backed metadata store. Every mutation holds
// mu for its duration, serializing all writers through one owner per spec
// §4.3 "a single writer task".
type Index struct {
	path string

	mu      sync.Mutex
	records map[string]*Record
}

func indexPath(bankRoot string) string   { return filepath.Join(bankRoot, "index.json") }
func hashPath(bankRoot string) string    { return filepath.Join(bankRoot, "index.json.sha256") }

// Load reads the index from disk, verifying its integrity hash. A missing
// index is not an error — it returns an empty Index ready for use. A
// present-but-corrupt index returns IndexCorrupted; callers should rebuild
// via internal/bank's Rebuild, which repopulates from the bank itself.
func Load(bankRoot string) (*Index, error) {
	p := indexPath(bankRoot)
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return &Index{path: p, records: make(map[string]*Record)}, nil
		}
		return nil, cortexerr.Wrap(cortexerr.Internal, "read metadata index", err)
	}

	wantHash, err := os.ReadFile(hashPath(bankRoot))
	if err == nil {
		gotHash := sha256Hex(data)
		if string(wantHash) != gotHash {
			return nil, cortexerr.New(cortexerr.IndexCorrupted, "index.json hash does not match index.json.sha256").
				WithHint("rebuild the index by rescanning the bank")
		}
	}

	var disk onDisk
	if err := json.Unmarshal(data, &disk); err != nil {
		return nil, cortexerr.Wrap(cortexerr.IndexCorrupted, "parse index.json", err)
	}
	if disk.Records == nil {
		disk.Records = make(map[string]*Record)
	}

	return &Index{path: p, records: disk.Records}, nil
}

// save persists the index and its integrity hash. Caller must hold mu.
func (idx *Index) save() error {
	disk := onDisk{Records: idx.records}
	data, err := json.MarshalIndent(disk, "", "  ")
	if err != nil {
		return cortexerr.Wrap(cortexerr.Internal, "marshal metadata index", err)
	}

	if err := os.MkdirAll(filepath.Dir(idx.path), 0755); err != nil {
		return cortexerr.Wrap(cortexerr.Internal, "create bank directory", err)
	}
	if err := os.WriteFile(idx.path, data, 0644); err != nil {
		return cortexerr.Wrap(cortexerr.Internal, "write index.json", err)
	}

	sum := sha256Hex(data)
	hashFile := filepath.Join(filepath.Dir(idx.path), "index.json.sha256")
	if err := os.WriteFile(hashFile, []byte(sum), 0644); err != nil {
		return cortexerr.Wrap(cortexerr.Internal, "write index.json.sha256", err)
	}
	return nil
}

// Get returns a copy of the record for file, or NotFound.
func (idx *Index) Get(file string) (Record, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	r, ok := idx.records[file]
	if !ok {
		return Record{}, cortexerr.NewNotFound(file)
	}
	return *r, nil
}

// ListAll returns every record, including deleted (exists=false) ones.
func (idx *Index) ListAll() []Record {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	out := make([]Record, 0, len(idx.records))
	for _, r := range idx.records {
		out = append(out, *r)
	}
	return out
}

// Update creates the record for file if absent, applies patch, and persists.
// Used on every successful write (spec §3 "Lifecycle").
func (idx *Index) Update(file string, patch Patch) (Record, error) {
	timer := logging.StartTimer(logging.CategoryMetadata, "update:"+file)
	defer timer.Stop()

	idx.mu.Lock()
	defer idx.mu.Unlock()

	r, ok := idx.records[file]
	if !ok {
		r = &Record{Path: file}
		idx.records[file] = r
	}

	if patch.SizeBytes != nil {
		r.SizeBytes = *patch.SizeBytes
	}
	if patch.Mtime != nil {
		r.Mtime = *patch.Mtime
	}
	if patch.SHA256 != nil {
		r.SHA256 = *patch.SHA256
	}
	if patch.TokenCount != nil {
		r.TokenCount = *patch.TokenCount
	}
	if patch.Sections != nil {
		r.Sections = patch.Sections
	}
	if patch.OutgoingLinks != nil {
		r.OutgoingLinks = patch.OutgoingLinks
	}
	if patch.Exists != nil {
		r.Exists = *patch.Exists
	} else {
		r.Exists = true
	}

	if err := idx.save(); err != nil {
		return Record{}, err
	}
	return *r, nil
}

// AppendVersion records a new version pointer against a file's history
// (spec §4.3 "append_version"), keeping current_version = max(history).
func (idx *Index) AppendVersion(file string, v VersionRef) (Record, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	r, ok := idx.records[file]
	if !ok {
		r = &Record{Path: file}
		idx.records[file] = r
	}

	r.VersionHistory = append(r.VersionHistory, v)
	if v.Version > r.CurrentVersion {
		r.CurrentVersion = v.Version
	}

	if err := idx.save(); err != nil {
		return Record{}, err
	}
	return *r, nil
}

// RecordAccess bumps last_accessed and access_count for file; Bank.Read
// calls it after every successful read.
func (idx *Index) RecordAccess(file string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	r, ok := idx.records[file]
	if !ok {
		return
	}
	r.LastAccessed = time.Now().UnixMilli()
	r.AccessCount++
	idx.save()
}

// Delete marks a file record as no longer existing; history and the record
// itself are retained until an explicit purge (spec §3 "Lifecycle").
func (idx *Index) Delete(file string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	r, ok := idx.records[file]
	if !ok {
		return cortexerr.NewNotFound(file)
	}
	r.Exists = false
	return idx.save()
}

// Purge permanently removes a file's record, including history.
func (idx *Index) Purge(file string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	delete(idx.records, file)
	return idx.save()
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
