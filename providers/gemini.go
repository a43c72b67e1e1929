package providers

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/penwyp/tokencat/models"
)

// geminiProvider reads Gemini CLI session files: one whole-file JSON
// document with a nested message list per session.
type geminiProvider struct {
	extraRoots []string
}

func newGeminiProvider(extraRoots []string) *geminiProvider {
	return &geminiProvider{extraRoots: extraRoots}
}

func (p *geminiProvider) Name() string { return "gemini" }

func (p *geminiProvider) Extension() string { return "json" }

func (p *geminiProvider) Match(string) bool { return true }

func (p *geminiProvider) Roots() []string {
	return computeRoots("GEMINI_HOME", []string{"tmp"}, []homeFallback{
		{base: baseHome, subpaths: []string{".gemini", "tmp"}},
	}, p.extraRoots)
}

type geminiSession struct {
	SessionID   string          `json:"sessionId"`
	ProjectHash string          `json:"projectHash"`
	Messages    []geminiMessage `json:"messages"`
}

type geminiMessage struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Model     string `json:"model"`
	Timestamp string `json:"timestamp"`
	Tokens    *struct {
		Input  int64 `json:"input"`
		Output int64 `json:"output"`
		Cached int64 `json:"cached"`
	} `json:"tokens"`
}

func (p *geminiProvider) Parse(path string, data []byte) ([]models.UsageRecord, error) {
	var session geminiSession
	if err := sonic.Unmarshal(data, &session); err != nil {
		return nil, &models.ParseError{Path: path, Err: err}
	}

	sessionID := session.SessionID
	if sessionID == "" {
		sessionID = "unknown"
	}
	project := session.ProjectHash
	if project == "" {
		project = "gemini"
	}

	var records []models.UsageRecord
	for _, msg := range session.Messages {
		if msg.Type != "gemini" || msg.Tokens == nil || msg.Model == "" {
			continue
		}
		if msg.Tokens.Input == 0 && msg.Tokens.Output == 0 {
			continue
		}

		ts, err := time.Parse(time.RFC3339, msg.Timestamp)
		if err != nil {
			continue
		}

		msgID := msg.ID
		if msgID == "" {
			msgID = "unknown"
		}

		records = append(records, models.UsageRecord{
			Timestamp:       ts.UTC(),
			Tool:            p.Name(),
			Project:         project,
			SessionID:       sessionID,
			Model:           msg.Model,
			MessageID:       fmt.Sprintf("gemini:%s:%s", sessionID, msgID),
			InputTokens:     msg.Tokens.Input,
			OutputTokens:    msg.Tokens.Output,
			CacheReadTokens: msg.Tokens.Cached,
		})
	}

	return records, nil
}
