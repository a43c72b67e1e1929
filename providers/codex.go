package providers

import (
	"bufio"
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/penwyp/tokencat/models"
)

// codexProvider reads Codex CLI rollout logs. Model names arrive on
// turn_context lines while usage arrives on token_count lines, some of
// which carry cumulative totals instead of per-turn deltas.
type codexProvider struct {
	extraRoots []string
}

func newCodexProvider(extraRoots []string) *codexProvider {
	return &codexProvider{extraRoots: extraRoots}
}

func (p *codexProvider) Name() string { return "codex" }

func (p *codexProvider) Extension() string { return "jsonl" }

func (p *codexProvider) Match(string) bool { return true }

func (p *codexProvider) Roots() []string {
	return computeRoots("CODEX_HOME", []string{"sessions"}, []homeFallback{
		{base: baseHome, subpaths: []string{".codex", "sessions"}},
		{base: baseConfig, subpaths: []string{"codex", "sessions"}},
	}, p.extraRoots)
}

type codexTokenUsage struct {
	InputTokens       int64  `json:"input_tokens"`
	OutputTokens      int64  `json:"output_tokens"`
	CachedInputTokens *int64 `json:"cached_input_tokens"`
	CacheReadTokens   *int64 `json:"cache_read_input_tokens"`
}

func (u *codexTokenUsage) cached() int64 {
	if u.CachedInputTokens != nil {
		return *u.CachedInputTokens
	}
	if u.CacheReadTokens != nil {
		return *u.CacheReadTokens
	}
	return 0
}

type codexLine struct {
	Timestamp string `json:"timestamp"`
	Payload   struct {
		Type     string `json:"type"`
		Model    string `json:"model"`
		Metadata struct {
			Model string `json:"model"`
		} `json:"metadata"`
		Info struct {
			Model    string `json:"model"`
			Metadata struct {
				Model string `json:"model"`
			} `json:"metadata"`
			LastTokenUsage  *codexTokenUsage `json:"last_token_usage"`
			TotalTokenUsage *codexTokenUsage `json:"total_token_usage"`
		} `json:"info"`
	} `json:"payload"`
}

func (l *codexLine) model() string {
	for _, m := range []string{
		l.Payload.Info.Model,
		l.Payload.Info.Metadata.Model,
		l.Payload.Model,
		l.Payload.Metadata.Model,
	} {
		if m != "" {
			return m
		}
	}
	return ""
}

var (
	codexTurnContextMarker = []byte(`"turn_context"`)
	codexTokenCountMarker  = []byte(`"token_count"`)
)

func (p *codexProvider) Parse(path string, data []byte) ([]models.UsageRecord, error) {
	sessionID := codexSessionID(path)
	project := codexProject(sessionID)

	var records []models.UsageRecord
	var lastModel string
	var prevInput, prevOutput, prevCached int64

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()

		if bytes.Contains(line, codexTurnContextMarker) {
			var entry codexLine
			if err := sonic.Unmarshal(line, &entry); err == nil {
				if m := entry.model(); m != "" {
					lastModel = m
				}
			}
			continue
		}

		if !bytes.Contains(line, codexTokenCountMarker) {
			continue
		}

		var entry codexLine
		if err := sonic.Unmarshal(line, &entry); err != nil {
			continue
		}
		if entry.Payload.Type != "token_count" {
			continue
		}

		ts, err := time.Parse(time.RFC3339, entry.Timestamp)
		if err != nil {
			continue
		}

		var input, output, cached int64
		switch {
		case entry.Payload.Info.LastTokenUsage != nil:
			u := entry.Payload.Info.LastTokenUsage
			input, output, cached = u.InputTokens, u.OutputTokens, u.cached()
		case entry.Payload.Info.TotalTokenUsage != nil:
			// Cumulative totals: convert to a delta against the
			// previous event, clamping at zero in case of resets.
			u := entry.Payload.Info.TotalTokenUsage
			input = max64(u.InputTokens-prevInput, 0)
			output = max64(u.OutputTokens-prevOutput, 0)
			cached = max64(u.cached()-prevCached, 0)
			prevInput, prevOutput, prevCached = u.InputTokens, u.OutputTokens, u.cached()
		default:
			continue
		}

		if input == 0 && output == 0 && cached == 0 {
			continue
		}

		model := entry.model()
		if model == "" {
			model = lastModel
		}
		if model == "" {
			model = "gpt-5"
		}

		records = append(records, models.UsageRecord{
			Timestamp: ts.UTC(),
			Tool:      p.Name(),
			Project:   project,
			SessionID: sessionID,
			Model:     model,
			// Codex events carry no message id; synthesize a stable one.
			MessageID:       fmt.Sprintf("codex:%s:%s:%d:%d", sessionID, entry.Timestamp, input, output),
			InputTokens:     input,
			OutputTokens:    output,
			CacheReadTokens: cached,
		})
	}

	return records, scanner.Err()
}

// codexSessionID is the file's path relative to the sessions/ directory,
// without the extension.
func codexSessionID(path string) string {
	norm := filepath.ToSlash(path)
	if idx := strings.Index(norm, "/sessions/"); idx >= 0 {
		rel := norm[idx+len("/sessions/"):]
		return strings.TrimSuffix(rel, ".jsonl")
	}
	return strings.TrimSuffix(filepath.Base(path), ".jsonl")
}

func codexProject(sessionID string) string {
	if first, _, ok := strings.Cut(sessionID, "/"); ok && first != "" {
		return first
	}
	return "codex"
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
