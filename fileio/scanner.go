package fileio

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/penwyp/tokencat/cache"
	"github.com/penwyp/tokencat/config"
	"github.com/penwyp/tokencat/logging"
	"github.com/penwyp/tokencat/models"
	"github.com/penwyp/tokencat/providers"
)

// Scanner walks each provider's roots, reparses files whose fingerprint
// changed, and keeps the cache store in sync with what is on disk. A file
// that fails to read or parse is logged and skipped; it will be retried on
// the next scan.
type Scanner struct {
	store       cache.Store
	policy      string
	workerCount int
	maxFileSize int64
}

// ScanStats summarizes one scan pass.
type ScanStats struct {
	FilesSeen int64
	CacheHits int64
	Reparsed  int64
	Pruned    int64
	Skipped   int64
}

// NewScanner creates a scanner over the given store using the configured
// fingerprint policy and worker count.
func NewScanner(store cache.Store, cfg *config.Config) *Scanner {
	workers := cfg.Performance.WorkerCount
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Scanner{
		store:       store,
		policy:      cfg.Cache.Fingerprint,
		workerCount: workers,
		maxFileSize: cfg.Performance.MaxFileSize,
	}
}

// parseJob is one changed file awaiting a reparse.
type parseJob struct {
	provider providers.Provider
	path     string
	fp       cache.Fingerprint
}

// Scan brings the store up to date for every provider and returns the pass
// statistics. After Scan returns, Records on the store reflects the current
// state of the log directories.
func (s *Scanner) Scan(ctx context.Context, provs []providers.Provider) (ScanStats, error) {
	var stats ScanStats
	start := time.Now()

	for _, p := range provs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := s.scanProvider(ctx, p, &stats); err != nil {
			return stats, err
		}
	}

	if err := s.store.Flush(); err != nil {
		return stats, err
	}

	logging.LogDebugf("Scan complete in %v: %d files, %d cached, %d reparsed, %d pruned, %d skipped",
		time.Since(start), stats.FilesSeen, stats.CacheHits, stats.Reparsed, stats.Pruned, stats.Skipped)
	return stats, nil
}

func (s *Scanner) scanProvider(ctx context.Context, p providers.Provider, stats *ScanStats) error {
	paths := s.enumerate(p)
	existing := make(map[string]bool, len(paths))

	var jobs []parseJob
	for _, path := range paths {
		existing[path] = true
		stats.FilesSeen++

		fp, err := cache.FingerprintFile(path, s.policy)
		if err != nil {
			logging.LogWarnf("Skipping unreadable file: %v", err)
			stats.Skipped++
			delete(existing, path)
			continue
		}
		if s.maxFileSize > 0 && fp.Size > s.maxFileSize {
			logging.LogWarnf("Skipping %s: %d bytes exceeds max file size %d", path, fp.Size, s.maxFileSize)
			stats.Skipped++
			delete(existing, path)
			continue
		}

		if cached, _, ok := s.store.Get(p.Name(), path); ok && cached.Equal(fp) {
			stats.CacheHits++
			continue
		}
		jobs = append(jobs, parseJob{provider: p, path: path, fp: fp})
	}

	reparsed, skipped, err := s.parseAll(ctx, jobs)
	stats.Reparsed += reparsed
	stats.Skipped += skipped
	if err != nil {
		return err
	}

	pruned, err := s.store.Prune(p.Name(), existing)
	if err != nil {
		return err
	}
	stats.Pruned += int64(pruned)
	return nil
}

// enumerate lists every file under the provider's roots that carries its
// extension and passes Match. Missing roots are normal and skipped.
func (s *Scanner) enumerate(p providers.Provider) []string {
	suffix := "." + p.Extension()
	var paths []string

	for _, root := range p.Roots() {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				logging.LogWarnf("Failed to walk %s: %v", path, err)
				return nil
			}
			if d.IsDir() || filepath.Ext(path) != suffix {
				return nil
			}
			if !p.Match(path) {
				return nil
			}
			paths = append(paths, path)
			return nil
		})
		if err != nil {
			logging.LogWarnf("Failed to walk root %s: %v", root, err)
		}
	}
	return paths
}

// parseAll reparses the changed files on a worker pool and stores the
// results. Read and parse failures skip the file without failing the scan;
// store failures abort it.
func (s *Scanner) parseAll(ctx context.Context, jobs []parseJob) (reparsed, skipped int64, err error) {
	if len(jobs) == 0 {
		return 0, 0, nil
	}

	workers := s.workerCount
	if workers > len(jobs) {
		workers = len(jobs)
	}

	jobChan := make(chan parseJob, workers*2)
	var storeErr atomic.Value
	var reparsedCount, skippedCount int64

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for job := range jobChan {
				if ctx.Err() != nil {
					return
				}
				ok, err := s.parseOne(job)
				if err != nil {
					storeErr.CompareAndSwap(nil, err)
					return
				}
				if ok {
					atomic.AddInt64(&reparsedCount, 1)
				} else {
					atomic.AddInt64(&skippedCount, 1)
				}
			}
		}()
	}

	for _, job := range jobs {
		select {
		case jobChan <- job:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobChan)
	wg.Wait()

	if v := storeErr.Load(); v != nil {
		return reparsedCount, skippedCount, v.(error)
	}
	return reparsedCount, skippedCount, ctx.Err()
}

// parseOne reads and parses a single file, then caches the outcome. The
// boolean reports whether the file was stored; false means it was skipped.
func (s *Scanner) parseOne(job parseJob) (bool, error) {
	data, err := os.ReadFile(job.path)
	if err != nil {
		logging.LogWarnf("Skipping unreadable file: %v", &models.FileAccessError{Path: job.path, Err: err})
		return false, nil
	}

	records, err := job.provider.Parse(job.path, data)
	if err != nil {
		var pe *models.ParseError
		if errors.As(err, &pe) {
			logging.LogWarnf("Skipping unparseable file: %v", pe)
			return false, nil
		}
		logging.LogWarnf("Skipping %s: %v", job.path, err)
		return false, nil
	}

	if err := s.store.Put(job.provider.Name(), job.path, job.fp, records); err != nil {
		return false, err
	}
	return true, nil
}
