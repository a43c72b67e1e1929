package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/penwyp/tokencat/config"
	"github.com/penwyp/tokencat/models"
)

// Fingerprint captures a file's observed state. A changed fingerprint
// invalidates the whole file's cached records; there is no sub-file diffing.
type Fingerprint struct {
	Size    int64  `json:"size"`
	ModTime int64  `json:"mtime"` // unix seconds
	Hash    string `json:"hash,omitempty"`
}

// Equal reports whether two fingerprints describe the same file state.
// When either side carries a content hash, the hash decides; otherwise
// size and modification time do.
func (f Fingerprint) Equal(other Fingerprint) bool {
	if f.Hash != "" || other.Hash != "" {
		return f.Hash == other.Hash && f.Size == other.Size
	}
	return f.Size == other.Size && f.ModTime == other.ModTime
}

// FingerprintFile computes a fingerprint for path under the given policy.
func FingerprintFile(path string, policy string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, &models.FileAccessError{Path: path, Err: err}
	}

	fp := Fingerprint{
		Size:    info.Size(),
		ModTime: info.ModTime().Unix(),
	}

	if policy == config.FingerprintHash {
		file, err := os.Open(path)
		if err != nil {
			return Fingerprint{}, &models.FileAccessError{Path: path, Err: err}
		}
		defer file.Close()

		h := sha256.New()
		if _, err := io.Copy(h, file); err != nil {
			return Fingerprint{}, &models.FileAccessError{Path: path, Err: err}
		}
		fp.Hash = hex.EncodeToString(h.Sum(nil))
	}

	return fp, nil
}

// Store persists fingerprint-tagged record sets per file path. All
// operations are scoped by tool so multiple providers share one store
// without interference.
//
// A completed Put is immediately visible to subsequent Gets and survives
// process restarts; a crash mid-Put never leaves a path with a mix of old
// and new records.
type Store interface {
	// Get returns the cached fingerprint and records for a path.
	Get(tool, path string) (Fingerprint, []models.UsageRecord, bool)

	// Put atomically replaces the cached entry for a path.
	Put(tool, path string, fp Fingerprint, records []models.UsageRecord) error

	// Evict removes a path's entry.
	Evict(tool, path string) error

	// Prune evicts every path of the tool that is absent from existing.
	// Returns the number of entries removed.
	Prune(tool string, existing map[string]bool) (int, error)

	// Records returns all cached records across every tool and path.
	Records() ([]models.UsageRecord, error)

	// Flush persists pending changes. No-op when nothing changed.
	Flush() error

	Close() error
}

// Open creates the store selected by the configuration. The backend choice
// is fixed per deployment.
func Open(cfg config.CacheConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return OpenSQLiteStore(cfg.Dir)
	case config.BackendBlob, "":
		return OpenBlobStore(cfg.Dir)
	default:
		return nil, models.NewUsageError("unknown cache backend %q (expected %q or %q)",
			cfg.Backend, config.BackendBlob, config.BackendSQLite)
	}
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	return nil
}
