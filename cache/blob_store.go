package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/penwyp/tokencat/logging"
	"github.com/penwyp/tokencat/models"
)

// blobSchemaVersion is bumped whenever the on-disk blob layout changes.
// A mismatched blob is discarded and rebuilt by a full rescan.
const blobSchemaVersion = 1

type blobEntry struct {
	Fingerprint Fingerprint          `json:"fingerprint"`
	Records     []models.UsageRecord `json:"records"`
}

type blobFile struct {
	Version int                  `json:"version"`
	Files   map[string]blobEntry `json:"files"`
}

type toolBlob struct {
	files map[string]blobEntry
	dirty bool
}

// BlobStore keeps one serialized JSON blob per tool under the cache
// directory. Blobs are loaded lazily on first access and written back on
// Flush via temp file plus rename, so readers never observe a torn write.
type BlobStore struct {
	dir string

	mu    sync.Mutex
	tools map[string]*toolBlob
}

// OpenBlobStore opens a blob store rooted at dir, creating it if needed.
func OpenBlobStore(dir string) (*BlobStore, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	return &BlobStore{
		dir:   dir,
		tools: make(map[string]*toolBlob),
	}, nil
}

func (s *BlobStore) blobPath(tool string) string {
	return filepath.Join(s.dir, tool+".json")
}

// load returns the in-memory blob for a tool, reading it from disk on
// first use. Corrupt or version-mismatched blobs are dropped; the caller
// sees an empty cache and repopulates it.
func (s *BlobStore) load(tool string) *toolBlob {
	if tb, ok := s.tools[tool]; ok {
		return tb
	}

	tb := &toolBlob{files: make(map[string]blobEntry)}
	s.tools[tool] = tb

	data, err := os.ReadFile(s.blobPath(tool))
	if err != nil {
		if !os.IsNotExist(err) {
			logging.LogWarnf("Failed to read cache blob for %s: %v", tool, err)
		}
		return tb
	}

	var bf blobFile
	if err := sonic.Unmarshal(data, &bf); err != nil {
		logging.LogWarnf("Discarding corrupt cache blob for %s: %v", tool, err)
		tb.dirty = true
		return tb
	}
	if bf.Version != blobSchemaVersion {
		logging.LogInfof("Cache blob for %s has schema version %d, expected %d; rebuilding",
			tool, bf.Version, blobSchemaVersion)
		tb.dirty = true
		return tb
	}

	if bf.Files != nil {
		tb.files = bf.Files
	}
	return tb
}

// loadAll brings every blob present on disk into memory so Records can
// report tools that were never touched through Get or Put.
func (s *BlobStore) loadAll() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to list cache directory %s: %w", s.dir, err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		s.load(strings.TrimSuffix(name, ".json"))
	}
	return nil
}

func (s *BlobStore) Get(tool, path string) (Fingerprint, []models.UsageRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.load(tool).files[path]
	if !ok {
		return Fingerprint{}, nil, false
	}
	return entry.Fingerprint, entry.Records, true
}

func (s *BlobStore) Put(tool, path string, fp Fingerprint, records []models.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tb := s.load(tool)
	tb.files[path] = blobEntry{Fingerprint: fp, Records: records}
	tb.dirty = true
	return nil
}

func (s *BlobStore) Evict(tool, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tb := s.load(tool)
	if _, ok := tb.files[path]; ok {
		delete(tb.files, path)
		tb.dirty = true
	}
	return nil
}

func (s *BlobStore) Prune(tool string, existing map[string]bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tb := s.load(tool)
	removed := 0
	for path := range tb.files {
		if !existing[path] {
			delete(tb.files, path)
			removed++
		}
	}
	if removed > 0 {
		tb.dirty = true
	}
	return removed, nil
}

func (s *BlobStore) Records() ([]models.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadAll(); err != nil {
		return nil, err
	}

	var all []models.UsageRecord
	for _, tb := range s.tools {
		for _, entry := range tb.files {
			all = append(all, entry.Records...)
		}
	}
	return all, nil
}

// Flush writes every dirty blob to disk atomically.
func (s *BlobStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for tool, tb := range s.tools {
		if !tb.dirty {
			continue
		}
		if err := s.writeBlob(tool, tb); err != nil {
			return err
		}
		tb.dirty = false
	}
	return nil
}

func (s *BlobStore) writeBlob(tool string, tb *toolBlob) error {
	data, err := sonic.Marshal(blobFile{
		Version: blobSchemaVersion,
		Files:   tb.files,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal cache blob for %s: %w", tool, err)
	}

	target := s.blobPath(tool)
	tmp, err := os.CreateTemp(s.dir, tool+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write cache blob for %s: %w", tool, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp cache file: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace cache blob for %s: %w", tool, err)
	}
	return nil
}

func (s *BlobStore) Close() error {
	return s.Flush()
}
