package cache

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/penwyp/tokencat/logging"
	"github.com/penwyp/tokencat/models"
)

// sqliteSchemaVersion is recorded via PRAGMA user_version. On mismatch the
// tables are dropped and recreated; the cache is always rebuildable from
// the source logs.
const sqliteSchemaVersion = 1

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS files (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	tool        TEXT NOT NULL,
	path        TEXT NOT NULL,
	size        INTEGER NOT NULL,
	mtime       INTEGER NOT NULL,
	hash        TEXT NOT NULL DEFAULT '',
	UNIQUE(tool, path)
);
CREATE TABLE IF NOT EXISTS records (
	file_id               INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	idx                   INTEGER NOT NULL,
	timestamp             INTEGER NOT NULL,
	tool                  TEXT NOT NULL,
	project               TEXT NOT NULL,
	session_id            TEXT NOT NULL,
	model                 TEXT NOT NULL,
	message_id            TEXT NOT NULL,
	request_id            TEXT NOT NULL,
	input_tokens          INTEGER NOT NULL,
	output_tokens         INTEGER NOT NULL,
	cache_creation_tokens INTEGER NOT NULL,
	cache_read_tokens     INTEGER NOT NULL,
	cost_usd              REAL,
	PRIMARY KEY(file_id, idx)
);
CREATE INDEX IF NOT EXISTS idx_files_tool ON files(tool);
`

// SQLiteStore persists the parse cache in a single SQLite database. Put
// replaces a file's rows inside one transaction, so a crash never leaves
// a path with a mix of old and new records.
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the cache database under dir.
func OpenSQLiteStore(dir string) (*SQLiteStore, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, "tokencat.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database %s: %w", dbPath, err)
	}
	// The store serializes writes itself; a single connection avoids
	// SQLITE_BUSY churn under WAL.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read cache schema version: %w", err)
	}

	if version != 0 && version != sqliteSchemaVersion {
		logging.LogInfof("Cache database has schema version %d, expected %d; rebuilding",
			version, sqliteSchemaVersion)
		if _, err := s.db.Exec("DROP TABLE IF EXISTS records; DROP TABLE IF EXISTS files"); err != nil {
			return fmt.Errorf("%w: failed to drop stale tables: %v", models.ErrCacheSchema, err)
		}
	}

	if _, err := s.db.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("failed to create cache tables: %w", err)
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", sqliteSchemaVersion)); err != nil {
		return fmt.Errorf("failed to set cache schema version: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(tool, path string) (Fingerprint, []models.UsageRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fileID int64
	var fp Fingerprint
	err := s.db.QueryRow(
		"SELECT id, size, mtime, hash FROM files WHERE tool = ? AND path = ?",
		tool, path,
	).Scan(&fileID, &fp.Size, &fp.ModTime, &fp.Hash)
	if err != nil {
		if err != sql.ErrNoRows {
			logging.LogWarnf("Failed to query cache for %s: %v", path, err)
		}
		return Fingerprint{}, nil, false
	}

	records, err := s.queryRecords(
		"SELECT timestamp, tool, project, session_id, model, message_id, request_id, "+
			"input_tokens, output_tokens, cache_creation_tokens, cache_read_tokens, cost_usd "+
			"FROM records WHERE file_id = ? ORDER BY idx", fileID)
	if err != nil {
		logging.LogWarnf("Failed to load cached records for %s: %v", path, err)
		return Fingerprint{}, nil, false
	}
	return fp, records, true
}

func (s *SQLiteStore) Put(tool, path string, fp Fingerprint, records []models.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin cache transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM files WHERE tool = ? AND path = ?", tool, path); err != nil {
		return fmt.Errorf("failed to evict stale cache entry for %s: %w", path, err)
	}

	res, err := tx.Exec(
		"INSERT INTO files (tool, path, size, mtime, hash) VALUES (?, ?, ?, ?, ?)",
		tool, path, fp.Size, fp.ModTime, fp.Hash)
	if err != nil {
		return fmt.Errorf("failed to insert cache entry for %s: %w", path, err)
	}
	fileID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to resolve cache entry id for %s: %w", path, err)
	}

	stmt, err := tx.Prepare(
		"INSERT INTO records (file_id, idx, timestamp, tool, project, session_id, model, " +
			"message_id, request_id, input_tokens, output_tokens, cache_creation_tokens, " +
			"cache_read_tokens, cost_usd) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		var cost interface{}
		if r.CostUSD != nil {
			cost = *r.CostUSD
		}
		if _, err := stmt.Exec(fileID, i, r.Timestamp.Unix(), r.Tool, r.Project,
			r.SessionID, r.Model, r.MessageID, r.RequestID,
			r.InputTokens, r.OutputTokens, r.CacheCreationTokens, r.CacheReadTokens,
			cost); err != nil {
			return fmt.Errorf("failed to insert cached record for %s: %w", path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache entry for %s: %w", path, err)
	}
	return nil
}

func (s *SQLiteStore) Evict(tool, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM files WHERE tool = ? AND path = ?", tool, path); err != nil {
		return fmt.Errorf("failed to evict cache entry for %s: %w", path, err)
	}
	return nil
}

func (s *SQLiteStore) Prune(tool string, existing map[string]bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query("SELECT path FROM files WHERE tool = ?", tool)
	if err != nil {
		return 0, fmt.Errorf("failed to list cached paths for %s: %w", tool, err)
	}
	var stale []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan cached path: %w", err)
		}
		if !existing[path] {
			stale = append(stale, path)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to list cached paths for %s: %w", tool, err)
	}

	for _, path := range stale {
		if _, err := s.db.Exec("DELETE FROM files WHERE tool = ? AND path = ?", tool, path); err != nil {
			return 0, fmt.Errorf("failed to prune cache entry for %s: %w", path, err)
		}
	}
	return len(stale), nil
}

func (s *SQLiteStore) Records() ([]models.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.queryRecords(
		"SELECT timestamp, tool, project, session_id, model, message_id, request_id, " +
			"input_tokens, output_tokens, cache_creation_tokens, cache_read_tokens, cost_usd " +
			"FROM records ORDER BY file_id, idx")
}

func (s *SQLiteStore) queryRecords(query string, args ...interface{}) ([]models.UsageRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cached records: %w", err)
	}
	defer rows.Close()

	var records []models.UsageRecord
	for rows.Next() {
		var r models.UsageRecord
		var ts int64
		var cost sql.NullFloat64
		if err := rows.Scan(&ts, &r.Tool, &r.Project, &r.SessionID, &r.Model,
			&r.MessageID, &r.RequestID,
			&r.InputTokens, &r.OutputTokens, &r.CacheCreationTokens, &r.CacheReadTokens,
			&cost); err != nil {
			return nil, fmt.Errorf("failed to scan cached record: %w", err)
		}
		r.Timestamp = time.Unix(ts, 0).UTC()
		if cost.Valid {
			v := cost.Float64
			r.CostUSD = &v
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cached records: %w", err)
	}
	return records, nil
}

// Flush is a no-op; every Put commits durably.
func (s *SQLiteStore) Flush() error {
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
