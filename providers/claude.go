package providers

import (
	"bufio"
	"bytes"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/penwyp/tokencat/models"
)

// claudeProvider reads Claude Code session transcripts: one JSON object per
// line under ~/.claude/projects/<encoded-project>/<session-id>.jsonl.
type claudeProvider struct {
	extraRoots []string
}

func newClaudeProvider(extraRoots []string) *claudeProvider {
	return &claudeProvider{extraRoots: extraRoots}
}

func (p *claudeProvider) Name() string { return "claude" }

func (p *claudeProvider) Extension() string { return "jsonl" }

func (p *claudeProvider) Match(string) bool { return true }

func (p *claudeProvider) Roots() []string {
	return computeRoots("", nil, []homeFallback{
		{base: baseHome, subpaths: []string{".claude", "projects"}},
		{base: baseConfig, subpaths: []string{"claude", "projects"}},
	}, p.extraRoots)
}

type claudeMessage struct {
	ID    string `json:"id"`
	Model string `json:"model"`
	Usage struct {
		InputTokens              int64 `json:"input_tokens"`
		OutputTokens             int64 `json:"output_tokens"`
		CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
		CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
	} `json:"usage"`
}

// claudeLine covers both line shapes that carry usage data: top-level
// "assistant" entries and "progress" entries wrapping a nested agent
// message.
type claudeLine struct {
	Type      string        `json:"type"`
	Timestamp string        `json:"timestamp"`
	RequestID string        `json:"requestId"`
	Cwd       string        `json:"cwd"`
	Message   claudeMessage `json:"message"`
	Data      struct {
		Type    string `json:"type"`
		Message struct {
			Timestamp string        `json:"timestamp"`
			RequestID string        `json:"requestId"`
			Message   claudeMessage `json:"message"`
		} `json:"message"`
	} `json:"data"`
}

var (
	claudeAssistantMarker = []byte(`"type":"assistant"`)
	claudeProgressMarker  = []byte(`"type":"progress"`)
)

func (p *claudeProvider) Parse(path string, data []byte) ([]models.UsageRecord, error) {
	sessionID := strings.TrimSuffix(filepath.Base(path), ".jsonl")
	project := claudeProjectFromPath(path)

	var records []models.UsageRecord

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if !bytes.Contains(line, claudeAssistantMarker) && !bytes.Contains(line, claudeProgressMarker) {
			continue
		}

		var entry claudeLine
		if err := sonic.Unmarshal(line, &entry); err != nil {
			continue // skip malformed or truncated trailing lines
		}

		msg := entry.Message
		timestamp := entry.Timestamp
		requestID := entry.RequestID

		if entry.Type == "progress" {
			if entry.Data.Type != "agent_progress" {
				continue
			}
			msg = entry.Data.Message.Message
			requestID = entry.Data.Message.RequestID
			if entry.Data.Message.Timestamp != "" {
				timestamp = entry.Data.Message.Timestamp
			}
		} else if entry.Type != "assistant" {
			continue
		}

		if msg.Model == "" || msg.Model == "<synthetic>" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, timestamp)
		if err != nil {
			continue
		}
		u := msg.Usage
		if u.InputTokens == 0 && u.OutputTokens == 0 &&
			u.CacheCreationInputTokens == 0 && u.CacheReadInputTokens == 0 {
			continue
		}

		recProject := project
		if entry.Cwd != "" {
			recProject = filepath.Base(entry.Cwd)
		}

		records = append(records, models.UsageRecord{
			Timestamp:           ts.UTC(),
			Tool:                p.Name(),
			Project:             recProject,
			SessionID:           sessionID,
			Model:               msg.Model,
			MessageID:           msg.ID,
			RequestID:           requestID,
			InputTokens:         u.InputTokens,
			OutputTokens:        u.OutputTokens,
			CacheCreationTokens: u.CacheCreationInputTokens,
			CacheReadTokens:     u.CacheReadInputTokens,
		})
	}

	// A scanner error means the remainder of the file was unreadable;
	// the records parsed so far are still valid.
	return records, scanner.Err()
}

// claudeProjectFromPath derives a project name from the encoded directory
// under projects/, e.g. "-home-franz-git-foo-bar" -> "foo-bar".
func claudeProjectFromPath(path string) string {
	dir := filepath.Dir(path)
	for dir != "" {
		parent := filepath.Dir(dir)
		if filepath.Base(parent) == "projects" {
			return decodeClaudeProjectName(filepath.Base(dir))
		}
		if parent == dir {
			break
		}
		dir = parent
	}
	return "unknown"
}

func decodeClaudeProjectName(encoded string) string {
	var parts []string
	for _, p := range strings.Split(encoded, "-") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "unknown"
	}

	for _, marker := range []string{"git", "projects", "src", "code", "repos", "workspace"} {
		for i, p := range parts {
			if p == marker && i+1 < len(parts) {
				return strings.Join(parts[i+1:], "-")
			}
		}
	}

	if len(parts) >= 3 && parts[0] == "home" {
		return strings.Join(parts[2:], "-")
	}

	return parts[len(parts)-1]
}
