package cache

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"

	"github.com/penwyp/tokencat/logging"
)

// FetchCache stores fetched network payloads (pricing tables, exchange
// rates) in a BadgerDB under the cache directory. Entries carry their
// fetch time instead of a TTL so callers can fall back to a stale payload
// when a refresh fails.
type FetchCache struct {
	db *badger.DB
}

type fetchEnvelope struct {
	FetchedAt int64  `json:"fetched_at"` // unix seconds
	Data      []byte `json:"data"`
}

// OpenFetchCache opens the fetch cache under dir/fetch.
func OpenFetchCache(dir string) (*FetchCache, error) {
	dbPath := filepath.Join(dir, "fetch")
	if err := ensureDir(dbPath); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(dbPath)
	opts = opts.WithCompression(options.Snappy)
	opts = opts.WithLogger(&badgerLogger{})
	// Payloads are a handful of JSON documents; shrink the footprint.
	opts = opts.WithMemTableSize(8 * 1024 * 1024)
	opts = opts.WithValueLogFileSize(16 * 1024 * 1024)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open fetch cache: %w", err)
	}
	return &FetchCache{db: db}, nil
}

// Get returns the cached payload for key and when it was fetched.
func (fc *FetchCache) Get(key string) ([]byte, time.Time, bool) {
	var env fetchEnvelope
	err := fc.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return sonic.Unmarshal(val, &env)
		})
	})
	if err != nil {
		if err != badger.ErrKeyNotFound {
			logging.LogWarnf("Failed to read fetch cache key %s: %v", key, err)
		}
		return nil, time.Time{}, false
	}
	return env.Data, time.Unix(env.FetchedAt, 0).UTC(), true
}

// Set stores a payload for key, stamped with fetchedAt.
func (fc *FetchCache) Set(key string, data []byte, fetchedAt time.Time) error {
	val, err := sonic.Marshal(fetchEnvelope{
		FetchedAt: fetchedAt.Unix(),
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal fetch cache entry: %w", err)
	}
	return fc.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
}

func (fc *FetchCache) Close() error {
	return fc.db.Close()
}

// badgerLogger routes badger's internal logging through the application
// logger, dropping its info and debug chatter.
type badgerLogger struct{}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	logging.LogErrorf("badger: "+format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	logging.LogWarnf("badger: "+format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{})  {}
func (l *badgerLogger) Debugf(format string, args ...interface{}) {}
