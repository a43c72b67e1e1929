package providers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeRootsEnvWins(t *testing.T) {
	t.Setenv("TOKENCAT_TEST_HOME", "/opt/logs")

	roots := computeRoots("TOKENCAT_TEST_HOME", []string{"projects"}, []homeFallback{
		{base: baseHome, subpaths: []string{".ignored"}},
	}, []string{"/extra"})

	assert.Equal(t, []string{filepath.Join("/opt/logs", "projects"), "/extra"}, roots)
}

func TestComputeRootsFallbacks(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, "xdg-data"))
	os.Unsetenv("TOKENCAT_TEST_UNSET")

	roots := computeRoots("TOKENCAT_TEST_UNSET", nil, []homeFallback{
		{base: baseHome, subpaths: []string{".claude", "projects"}},
		{base: baseConfig, subpaths: []string{"claude", "projects"}},
		{base: baseData, subpaths: []string{"claude"}},
	}, nil)

	assert.Equal(t, []string{
		filepath.Join(home, ".claude", "projects"),
		filepath.Join(home, ".config", "claude", "projects"),
		filepath.Join(home, "xdg-data", "claude"),
	}, roots)
}

func TestWatchRootsExistingOnly(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sessions")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	provs := []Provider{
		newClaudeProvider([]string{sub, filepath.Join(dir, "missing")}),
		newCodexProvider([]string{sub}),
	}

	roots := WatchRoots(provs)
	assert.Contains(t, roots, sub)
	assert.NotContains(t, roots, filepath.Join(dir, "missing"))

	count := 0
	for _, r := range roots {
		if r == sub {
			count++
		}
	}
	assert.Equal(t, 1, count, "shared roots appear once")
}

func TestAllProviders(t *testing.T) {
	provs := All(nil)
	require.Len(t, provs, 3)

	names := make(map[string]bool)
	for _, p := range provs {
		names[p.Name()] = true
	}
	assert.True(t, names["claude"] && names["codex"] && names["gemini"])
}
