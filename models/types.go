package models

import (
	"time"
)

// UsageRecord is a single normalized token usage event produced by one of
// the provider parsers. Records are immutable once parsed; their identity
// for deduplication is (Tool, MessageID, RequestID).
type UsageRecord struct {
	Timestamp           time.Time `json:"timestamp"`
	Tool                string    `json:"tool"`
	Project             string    `json:"project"`
	SessionID           string    `json:"session_id"`
	Model               string    `json:"model"`
	MessageID           string    `json:"message_id"`
	RequestID           string    `json:"request_id"`
	InputTokens         int64     `json:"input_tokens"`
	OutputTokens        int64     `json:"output_tokens"`
	CacheCreationTokens int64     `json:"cache_creation_tokens"`
	CacheReadTokens     int64     `json:"cache_read_tokens"`
	// CostUSD is set when the source log carries a precomputed cost.
	// Nil means the cost must be derived from a PriceTable.
	CostUSD *float64 `json:"cost_usd,omitempty"`
}

// TotalTokens returns the sum of all token kinds for this record.
func (r *UsageRecord) TotalTokens() int64 {
	return r.InputTokens + r.OutputTokens + r.CacheCreationTokens + r.CacheReadTokens
}

// TokenCounts accumulates token totals across records.
type TokenCounts struct {
	Input         int64 `json:"input_tokens"`
	Output        int64 `json:"output_tokens"`
	CacheCreation int64 `json:"cache_creation_tokens"`
	CacheRead     int64 `json:"cache_read_tokens"`
}

// Add accumulates one record's counts.
func (t *TokenCounts) Add(r *UsageRecord) {
	t.Input += r.InputTokens
	t.Output += r.OutputTokens
	t.CacheCreation += r.CacheCreationTokens
	t.CacheRead += r.CacheReadTokens
}

// Total returns the sum across all token kinds.
func (t *TokenCounts) Total() int64 {
	return t.Input + t.Output + t.CacheCreation + t.CacheRead
}
