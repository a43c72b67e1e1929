package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/tokencat/config"
	"github.com/penwyp/tokencat/models"
)

func testRecord(model string, input, output int64) models.UsageRecord {
	return models.UsageRecord{
		Timestamp:    time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC),
		Tool:         "claude",
		Project:      "myproject",
		SessionID:    "session-1",
		Model:        model,
		MessageID:    "msg_" + model,
		RequestID:    "req_" + model,
		InputTokens:  input,
		OutputTokens: output,
	}
}

// openStoreFuncs lets the shared behavior tests run against both backends.
var openStoreFuncs = map[string]func(t *testing.T) Store{
	"blob": func(t *testing.T) Store {
		s, err := OpenBlobStore(t.TempDir())
		require.NoError(t, err)
		return s
	},
	"sqlite": func(t *testing.T) Store {
		s, err := OpenSQLiteStore(t.TempDir())
		require.NoError(t, err)
		return s
	},
}

func TestStorePutGet(t *testing.T) {
	for name, open := range openStoreFuncs {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			fp := Fingerprint{Size: 100, ModTime: 1700000000}
			records := []models.UsageRecord{
				testRecord("claude-sonnet-4", 120, 45),
				testRecord("claude-opus-4", 300, 80),
			}

			require.NoError(t, s.Put("claude", "/logs/a.jsonl", fp, records))

			gotFP, gotRecords, ok := s.Get("claude", "/logs/a.jsonl")
			require.True(t, ok)
			assert.True(t, fp.Equal(gotFP))
			require.Len(t, gotRecords, 2)
			assert.Equal(t, "claude-sonnet-4", gotRecords[0].Model)
			assert.Equal(t, int64(120), gotRecords[0].InputTokens)
			assert.Equal(t, "claude-opus-4", gotRecords[1].Model)
		})
	}
}

func TestStoreGetMissing(t *testing.T) {
	for name, open := range openStoreFuncs {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			_, _, ok := s.Get("claude", "/logs/missing.jsonl")
			assert.False(t, ok)
		})
	}
}

func TestStorePutReplaces(t *testing.T) {
	for name, open := range openStoreFuncs {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			fp1 := Fingerprint{Size: 100, ModTime: 1700000000}
			require.NoError(t, s.Put("claude", "/logs/a.jsonl", fp1, []models.UsageRecord{
				testRecord("claude-sonnet-4", 120, 45),
				testRecord("claude-opus-4", 300, 80),
			}))

			fp2 := Fingerprint{Size: 200, ModTime: 1700000100}
			require.NoError(t, s.Put("claude", "/logs/a.jsonl", fp2, []models.UsageRecord{
				testRecord("claude-haiku-4", 50, 10),
			}))

			gotFP, gotRecords, ok := s.Get("claude", "/logs/a.jsonl")
			require.True(t, ok)
			assert.True(t, fp2.Equal(gotFP))
			require.Len(t, gotRecords, 1)
			assert.Equal(t, "claude-haiku-4", gotRecords[0].Model)
		})
	}
}

func TestStoreToolScoping(t *testing.T) {
	for name, open := range openStoreFuncs {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			fp := Fingerprint{Size: 100, ModTime: 1700000000}
			require.NoError(t, s.Put("claude", "/logs/a.jsonl", fp, []models.UsageRecord{
				testRecord("claude-sonnet-4", 120, 45),
			}))

			_, _, ok := s.Get("codex", "/logs/a.jsonl")
			assert.False(t, ok, "entries must be scoped by tool")
		})
	}
}

func TestStoreEvict(t *testing.T) {
	for name, open := range openStoreFuncs {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			fp := Fingerprint{Size: 100, ModTime: 1700000000}
			require.NoError(t, s.Put("claude", "/logs/a.jsonl", fp, []models.UsageRecord{
				testRecord("claude-sonnet-4", 120, 45),
			}))
			require.NoError(t, s.Evict("claude", "/logs/a.jsonl"))

			_, _, ok := s.Get("claude", "/logs/a.jsonl")
			assert.False(t, ok)
		})
	}
}

func TestStorePrune(t *testing.T) {
	for name, open := range openStoreFuncs {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			fp := Fingerprint{Size: 100, ModTime: 1700000000}
			require.NoError(t, s.Put("claude", "/logs/a.jsonl", fp, nil))
			require.NoError(t, s.Put("claude", "/logs/b.jsonl", fp, nil))
			require.NoError(t, s.Put("codex", "/logs/a.jsonl", fp, nil))

			removed, err := s.Prune("claude", map[string]bool{"/logs/a.jsonl": true})
			require.NoError(t, err)
			assert.Equal(t, 1, removed)

			_, _, ok := s.Get("claude", "/logs/a.jsonl")
			assert.True(t, ok)
			_, _, ok = s.Get("claude", "/logs/b.jsonl")
			assert.False(t, ok)
			_, _, ok = s.Get("codex", "/logs/a.jsonl")
			assert.True(t, ok, "prune must not touch other tools")
		})
	}
}

func TestStoreRecordsAcrossTools(t *testing.T) {
	for name, open := range openStoreFuncs {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			fp := Fingerprint{Size: 100, ModTime: 1700000000}
			require.NoError(t, s.Put("claude", "/logs/a.jsonl", fp, []models.UsageRecord{
				testRecord("claude-sonnet-4", 120, 45),
			}))
			require.NoError(t, s.Put("codex", "/logs/b.jsonl", fp, []models.UsageRecord{
				testRecord("gpt-5", 200, 60),
			}))

			all, err := s.Records()
			require.NoError(t, err)
			assert.Len(t, all, 2)
		})
	}
}

func TestBlobStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s1, err := OpenBlobStore(dir)
	require.NoError(t, err)

	fp := Fingerprint{Size: 100, ModTime: 1700000000}
	cost := 0.042
	rec := testRecord("claude-sonnet-4", 120, 45)
	rec.CostUSD = &cost
	require.NoError(t, s1.Put("claude", "/logs/a.jsonl", fp, []models.UsageRecord{rec}))
	require.NoError(t, s1.Close())

	s2, err := OpenBlobStore(dir)
	require.NoError(t, err)
	defer s2.Close()

	gotFP, gotRecords, ok := s2.Get("claude", "/logs/a.jsonl")
	require.True(t, ok)
	assert.True(t, fp.Equal(gotFP))
	require.Len(t, gotRecords, 1)
	require.NotNil(t, gotRecords[0].CostUSD)
	assert.InDelta(t, 0.042, *gotRecords[0].CostUSD, 1e-9)
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s1, err := OpenSQLiteStore(dir)
	require.NoError(t, err)

	fp := Fingerprint{Size: 100, ModTime: 1700000000}
	require.NoError(t, s1.Put("claude", "/logs/a.jsonl", fp, []models.UsageRecord{
		testRecord("claude-sonnet-4", 120, 45),
	}))
	require.NoError(t, s1.Close())

	s2, err := OpenSQLiteStore(dir)
	require.NoError(t, err)
	defer s2.Close()

	_, gotRecords, ok := s2.Get("claude", "/logs/a.jsonl")
	require.True(t, ok)
	require.Len(t, gotRecords, 1)
	assert.Equal(t, "claude-sonnet-4", gotRecords[0].Model)
}

func TestSQLiteStorePutReplacesAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s1, err := OpenSQLiteStore(dir)
	require.NoError(t, err)
	require.NoError(t, s1.Put("claude", "/logs/a.jsonl",
		Fingerprint{Size: 100, ModTime: 1700000000}, []models.UsageRecord{
			testRecord("claude-sonnet-4", 120, 45),
			testRecord("claude-opus-4", 300, 80),
		}))
	require.NoError(t, s1.Close())

	s2, err := OpenSQLiteStore(dir)
	require.NoError(t, err)
	fp := Fingerprint{Size: 200, ModTime: 1700000100}
	require.NoError(t, s2.Put("claude", "/logs/a.jsonl", fp, []models.UsageRecord{
		testRecord("claude-haiku-4", 50, 10),
	}))
	require.NoError(t, s2.Close())

	// The replacement fully supersedes the old rows, with no leftovers
	// from the first generation.
	s3, err := OpenSQLiteStore(dir)
	require.NoError(t, err)
	defer s3.Close()

	gotFP, gotRecords, ok := s3.Get("claude", "/logs/a.jsonl")
	require.True(t, ok)
	assert.True(t, fp.Equal(gotFP))
	require.Len(t, gotRecords, 1)
	assert.Equal(t, "claude-haiku-4", gotRecords[0].Model)

	all, err := s3.Records()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestBlobStoreDiscardsCorruptBlob(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "claude.json"), []byte("not json{"), 0644))

	s, err := OpenBlobStore(dir)
	require.NoError(t, err)
	defer s.Close()

	_, _, ok := s.Get("claude", "/logs/a.jsonl")
	assert.False(t, ok, "corrupt blob must read as empty")
}

func TestBlobStoreDiscardsOldSchema(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "claude.json"),
		[]byte(`{"version":0,"files":{"/logs/a.jsonl":{"fingerprint":{"size":1,"mtime":1},"records":[]}}}`), 0644))

	s, err := OpenBlobStore(dir)
	require.NoError(t, err)
	defer s.Close()

	_, _, ok := s.Get("claude", "/logs/a.jsonl")
	assert.False(t, ok)
}

func TestFingerprintEqual(t *testing.T) {
	t.Run("mtime policy", func(t *testing.T) {
		a := Fingerprint{Size: 100, ModTime: 1700000000}
		assert.True(t, a.Equal(Fingerprint{Size: 100, ModTime: 1700000000}))
		assert.False(t, a.Equal(Fingerprint{Size: 101, ModTime: 1700000000}))
		assert.False(t, a.Equal(Fingerprint{Size: 100, ModTime: 1700000001}))
	})

	t.Run("hash wins over mtime", func(t *testing.T) {
		a := Fingerprint{Size: 100, ModTime: 1700000000, Hash: "abc"}
		// Same content but touched: mtime differs, hash matches.
		assert.True(t, a.Equal(Fingerprint{Size: 100, ModTime: 1700000042, Hash: "abc"}))
		assert.False(t, a.Equal(Fingerprint{Size: 100, ModTime: 1700000000, Hash: "xyz"}))
	})
}

func TestFingerprintFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("hello\n"), 0644))

	fp, err := FingerprintFile(path, config.FingerprintMtime)
	require.NoError(t, err)
	assert.Equal(t, int64(6), fp.Size)
	assert.Empty(t, fp.Hash)

	hashed, err := FingerprintFile(path, config.FingerprintHash)
	require.NoError(t, err)
	assert.NotEmpty(t, hashed.Hash)

	// Same content written again hashes identically.
	require.NoError(t, os.WriteFile(path, []byte("hello\n"), 0644))
	again, err := FingerprintFile(path, config.FingerprintHash)
	require.NoError(t, err)
	assert.Equal(t, hashed.Hash, again.Hash)
}

func TestFingerprintFileMissing(t *testing.T) {
	_, err := FingerprintFile(filepath.Join(t.TempDir(), "gone.jsonl"), config.FingerprintMtime)
	require.Error(t, err)
	var fae *models.FileAccessError
	assert.ErrorAs(t, err, &fae)
}

func TestOpenSelectsBackend(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(config.CacheConfig{Dir: dir, Backend: config.BackendBlob})
	require.NoError(t, err)
	_, ok := s.(*BlobStore)
	assert.True(t, ok)
	s.Close()

	s, err = Open(config.CacheConfig{Dir: dir, Backend: config.BackendSQLite})
	require.NoError(t, err)
	_, ok = s.(*SQLiteStore)
	assert.True(t, ok)
	s.Close()

	_, err = Open(config.CacheConfig{Dir: dir, Backend: "bogus"})
	require.Error(t, err)
	assert.True(t, models.IsUsageError(err))
}

func TestFetchCache(t *testing.T) {
	fc, err := OpenFetchCache(t.TempDir())
	require.NoError(t, err)
	defer fc.Close()

	_, _, ok := fc.Get("pricing:litellm")
	assert.False(t, ok)

	fetched := time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)
	require.NoError(t, fc.Set("pricing:litellm", []byte(`{"gpt-5":{}}`), fetched))

	data, at, ok := fc.Get("pricing:litellm")
	require.True(t, ok)
	assert.Equal(t, []byte(`{"gpt-5":{}}`), data)
	assert.True(t, at.Equal(fetched))
}
