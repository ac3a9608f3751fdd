package models

import "time"

// RequestLog is the audit row persisted for every embedding request,
// successful or not.
type RequestLog struct {
	Timestamp      time.Time `json:"ts"`
	TraceID        string    `json:"trace_id"`
	ReqID          string    `json:"req_id"`
	WorkerID       string    `json:"worker_id"`
	Source         string    `json:"source"`
	TextCount      int       `json:"text_count"`
	MaxTextLen     int       `json:"max_text_len"`
	BatchSize      int       `json:"batch_size"`
	BatchCount     int       `json:"batch_count"`
	EmbeddingSize  int       `json:"embedding_size"`
	EmbeddingCount int       `json:"embedding_count"`
	MemBeforeMB    float64   `json:"mem_before_mb"`
	MemAfterMB     float64   `json:"mem_after_mb"`
	DurationMs     int64     `json:"dur_ms"`
	Status         string    `json:"status"`
	Error          string    `json:"error"`
}
