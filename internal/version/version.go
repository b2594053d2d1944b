// Package version implements the memory bank's version store (spec
// component C2): an append-only snapshot history per file, used to roll a
// file back to any prior version it has held.
package version

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kraklabs/cortex/internal/cortexerr"
	"github.com/kraklabs/cortex/internal/fsstore"
	"github.com/kraklabs/cortex/internal/logging"
)

// Snapshot is one immutable captured copy of a file's bytes at a version.
type Snapshot struct {
	File      string `json:"file"`
	Version   int    `json:"version"`
	SHA256    string `json:"sha256"`
	Bytes     int    `json:"bytes"`
	Timestamp int64  `json:"timestamp"`
	Author    string `json:"author,omitempty"`
}

// Store persists version snapshots under <bankRoot>/versions/<file>/v<N>.bin.
// All mutation is serialized through a single mutex per spec §4.2 "a single
// writer task" discipline, mirrored here from the metadata index's ownership
// rule rather than C2 having its own.
type Store struct {
	bankRoot string

	mu      sync.Mutex
	history map[string][]Snapshot
}

// New creates a version store rooted at bankRoot, creating the versions
// directory if needed.
func New(bankRoot string) (*Store, error) {
	dir := filepath.Join(bankRoot, "versions")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, cortexerr.Wrap(cortexerr.Internal, "create versions directory", err)
	}
	return &Store{bankRoot: bankRoot, history: make(map[string][]Snapshot)}, nil
}

func (s *Store) versionDir(file string) string {
	return filepath.Join(s.bankRoot, "versions", sanitizeDirName(file))
}

// sanitizeDirName maps a bank file name (which may contain a subdirectory,
// e.g. "notes/ideas.md") to a single safe directory component.
func sanitizeDirName(file string) string {
	return strings.ReplaceAll(file, string(filepath.Separator), "__")
}

// Append records a new snapshot for file. Versions are assigned
// sequentially starting at 1 and are strictly increasing (I2).
func (s *Store) Append(file string, content []byte, author string) (Snapshot, error) {
	timer := logging.StartTimer(logging.CategoryVersion, "append:"+file)
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	next := 1
	if existing := s.history[file]; len(existing) > 0 {
		next = existing[len(existing)-1].Version + 1
	}

	sum := sha256Hex(content)
	snap := Snapshot{
		File:      file,
		Version:   next,
		SHA256:    sum,
		Bytes:     len(content),
		Timestamp: time.Now().UnixMilli(),
		Author:    author,
	}

	dir := s.versionDir(file)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Snapshot{}, cortexerr.Wrap(cortexerr.Internal, "create version directory", err)
	}
	binPath := filepath.Join(dir, fmt.Sprintf("v%d.bin", next))
	if err := os.WriteFile(binPath, content, 0644); err != nil {
		return Snapshot{}, cortexerr.Wrap(cortexerr.Internal, "write version snapshot", err)
	}

	s.history[file] = append(s.history[file], snap)
	logging.RecordAccess(logging.AccessEvent{
		EventType: logging.AccessVersionSnapshot,
		File:      file,
		Success:   true,
		Fields:    map[string]interface{}{"version": next, "sha256": sum},
	})
	return snap, nil
}

// List returns a file's version history, oldest first. Returns an empty
// slice for a file with no recorded versions.
func (s *Store) List(file string) []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Snapshot, len(s.history[file]))
	copy(out, s.history[file])
	return out
}

// CurrentVersion returns the highest version number recorded for file, or 0
// if the file has no snapshots.
func (s *Store) CurrentVersion(file string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.history[file]
	if len(h) == 0 {
		return 0
	}
	return h[len(h)-1].Version
}

// Get returns the raw bytes of a file at a specific version.
func (s *Store) Get(file string, v int) ([]byte, Snapshot, error) {
	s.mu.Lock()
	var found *Snapshot
	for i := range s.history[file] {
		if s.history[file][i].Version == v {
			snap := s.history[file][i]
			found = &snap
			break
		}
	}
	s.mu.Unlock()

	if found == nil {
		return nil, Snapshot{}, cortexerr.New(cortexerr.NotFound, fmt.Sprintf("no version %d recorded for %q", v, file))
	}

	binPath := filepath.Join(s.versionDir(file), fmt.Sprintf("v%d.bin", v))
	data, err := os.ReadFile(binPath)
	if err != nil {
		return nil, Snapshot{}, cortexerr.Wrap(cortexerr.Internal, "read version snapshot", err)
	}
	return data, *found, nil
}

// Rollback restores file to the content it held at version v, by writing
// those bytes back through the file layer and recording a fresh snapshot —
// rollback is append-only, it never deletes or rewrites history (I2).
func (s *Store) Rollback(ctx context.Context, fsStore *fsstore.Store, file string, v int) (Snapshot, error) {
	content, _, err := s.Get(file, v)
	if err != nil {
		return Snapshot{}, err
	}

	if _, err := fsStore.Write(ctx, file, content, ""); err != nil {
		return Snapshot{}, err
	}

	snap, err := s.Append(file, content, "rollback")
	if err != nil {
		return Snapshot{}, err
	}

	logging.RecordAccess(logging.AccessEvent{
		EventType: logging.AccessVersionRollback,
		File:      file,
		Success:   true,
		Fields:    map[string]interface{}{"restored_from_version": v, "new_version": snap.Version},
	})
	return snap, nil
}

// Rebuild reconstructs in-memory history from the versions/ directory on
// disk, used after process restart or to recover from IndexCorrupted in C3.
func (s *Store) Rebuild() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	root := filepath.Join(s.bankRoot, "versions")
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return cortexerr.Wrap(cortexerr.Internal, "scan versions directory", err)
	}

	s.history = make(map[string][]Snapshot)
	for _, dirEntry := range entries {
		if !dirEntry.IsDir() {
			continue
		}
		file := strings.ReplaceAll(dirEntry.Name(), "__", string(filepath.Separator))
		dirPath := filepath.Join(root, dirEntry.Name())

		snapFiles, err := os.ReadDir(dirPath)
		if err != nil {
			return cortexerr.Wrap(cortexerr.Internal, "scan version file", err)
		}

		var snaps []Snapshot
		for _, f := range snapFiles {
			v, ok := parseVersionFileName(f.Name())
			if !ok {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dirPath, f.Name()))
			if err != nil {
				return cortexerr.Wrap(cortexerr.Internal, "read version snapshot", err)
			}
			info, err := f.Info()
			var ts int64
			if err == nil {
				ts = info.ModTime().UnixMilli()
			}
			snaps = append(snaps, Snapshot{
				File:      file,
				Version:   v,
				SHA256:    sha256Hex(data),
				Bytes:     len(data),
				Timestamp: ts,
			})
		}
		sort.Slice(snaps, func(i, j int) bool { return snaps[i].Version < snaps[j].Version })
		s.history[file] = snaps
	}
	return nil
}

func parseVersionFileName(name string) (int, bool) {
	if !strings.HasPrefix(name, "v") || !strings.HasSuffix(name, ".bin") {
		return 0, false
	}
	numStr := strings.TrimSuffix(strings.TrimPrefix(name, "v"), ".bin")
	v, err := strconv.Atoi(numStr)
	if err != nil {
		return 0, false
	}
	return v, true
}
