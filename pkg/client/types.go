package client

import "time"

// Wire types for the NATS embedding transport. These mirror the
// service-side shapes without importing internal packages, so external
// consumers can vendor this package alone.

type EmbeddingRequest struct {
	TraceID string   `json:"trace_id,omitempty"`
	ReqID   string   `json:"req_id"`
	Texts   []string `json:"texts"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

type EmbeddingResponse struct {
	ReqID      string      `json:"req_id"`
	Embeddings [][]float32 `json:"embeddings"`
	DurationMs int64       `json:"duration_ms"`
	Error      string      `json:"error,omitempty"`
	ErrorType  string      `json:"error_type,omitempty"`
}

type MemorySnapshot struct {
	RSSMB   float64 `json:"rss_mb"`
	VMSMB   float64 `json:"vms_mb"`
	Percent float64 `json:"percent"`
}

type HealthStatus struct {
	ModelName    string         `json:"model_name"`
	Status       string         `json:"status"`
	ModelLoaded  bool           `json:"model_loaded"`
	Dimension    int            `json:"dimension"`
	Memory       MemorySnapshot `json:"memory"`
	LastActivity time.Time      `json:"last_activity"`
	Endpoint     string         `json:"endpoint"`
	NATSTopic    string         `json:"nats_topic"`
	Version      string         `json:"version"`
}
