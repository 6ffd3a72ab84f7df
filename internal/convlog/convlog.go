// Package convlog is the append-only conversation log. Records are never
// mutated or reordered after append; compaction only drops contiguously
// from the head, and only at append time.
package convlog

import "time"

// DefaultCap is the suggested record cap before head compaction.
const DefaultCap = 1000

// Record is one completed exchange.
type Record struct {
	Type            string     `json:"type"`
	ProviderID      string     `json:"api"`
	ModelAlias      string     `json:"model"`
	UpstreamModelID string     `json:"upstream_model,omitempty"`
	RequestSummary  string     `json:"message"`
	ResponseText    string     `json:"response"`
	Usage           *UsageInfo `json:"usage,omitempty"`
	Timestamp       string     `json:"timestamp"`
	RequestID       string     `json:"request_id"`
}

// UsageInfo mirrors the canonical usage passthrough.
type UsageInfo struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// Stamp fills the timestamp if the caller left it empty.
func (r *Record) Stamp() {
	if r.Timestamp == "" {
		r.Timestamp = time.Now().Format(time.RFC3339)
	}
}

// Log is the persistence contract. Append must be observable by a
// subsequent Load in the same process without caller-side synchronization.
type Log interface {
	Append(r Record) error
	// Load returns records in insertion order. limit <= 0 means all;
	// otherwise the most recent limit records (still oldest-first).
	Load(limit int) ([]Record, error)
	// Count returns the total number of stored records, independent of
	// any Load limit.
	Count() (int, error)
	Close() error
}
