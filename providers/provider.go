package providers

import (
	"os"
	"path/filepath"

	"github.com/penwyp/tokencat/models"
)

// Provider normalizes one tool's raw session-log format into canonical
// usage records. Adding support for a new tool means adding a Provider
// implementation; the scanning and aggregation engine never changes.
type Provider interface {
	// Name is the tool identifier stamped onto every record.
	Name() string
	// Roots returns candidate log directories. Directories that do not
	// exist are skipped by the scanner.
	Roots() []string
	// Extension is the file extension (without dot) to enumerate under
	// the roots, e.g. "jsonl" or "json".
	Extension() string
	// Match reports whether an enumerated file should be parsed. Most
	// providers accept everything with the right extension.
	Match(path string) bool
	// Parse converts one file's raw bytes into usage records. Malformed
	// or truncated entries are skipped; an error covers only failures
	// that invalidate the whole file.
	Parse(path string, data []byte) ([]models.UsageRecord, error)
}

// All returns every supported provider. extraRoots are appended to each
// provider's default search locations.
func All(extraRoots []string) []Provider {
	return []Provider{
		newClaudeProvider(extraRoots),
		newCodexProvider(extraRoots),
		newGeminiProvider(extraRoots),
	}
}

// WatchRoots returns the existing root directories across all providers,
// deduplicated. This is what the live monitor subscribes to.
func WatchRoots(provs []Provider) []string {
	seen := make(map[string]bool)
	var roots []string
	for _, p := range provs {
		for _, root := range p.Roots() {
			if seen[root] {
				continue
			}
			seen[root] = true
			if info, err := os.Stat(root); err == nil && info.IsDir() {
				roots = append(roots, root)
			}
		}
	}
	return roots
}

// xdgBase selects which base directory convention a fallback path uses.
type xdgBase int

const (
	baseHome xdgBase = iota // ~/.<name> (legacy tool defaults)
	baseConfig
	baseData
)

type homeFallback struct {
	base     xdgBase
	subpaths []string
}

// computeRoots resolves a provider's root directories: the provider's env
// var wins when set; otherwise each fallback is resolved against HOME and
// the XDG base dirs.
func computeRoots(envVar string, envSubpaths []string, fallbacks []homeFallback, extra []string) []string {
	var roots []string

	if envVar != "" {
		if val := os.Getenv(envVar); val != "" {
			if len(envSubpaths) == 0 {
				roots = append(roots, val)
			}
			for _, sub := range envSubpaths {
				roots = append(roots, filepath.Join(val, sub))
			}
			return append(roots, extra...)
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return extra
	}

	for _, fb := range fallbacks {
		var base string
		switch fb.base {
		case baseConfig:
			base = os.Getenv("XDG_CONFIG_HOME")
			if base == "" {
				base = filepath.Join(home, ".config")
			}
		case baseData:
			base = os.Getenv("XDG_DATA_HOME")
			if base == "" {
				base = filepath.Join(home, ".local", "share")
			}
		default:
			base = home
		}
		roots = append(roots, filepath.Join(append([]string{base}, fb.subpaths...)...))
	}

	return append(roots, extra...)
}
