package services

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/semflow/inference-gateway/internal/encoder"
	"github.com/semflow/inference-gateway/internal/errkind"
	"github.com/semflow/inference-gateway/internal/metrics"
	"github.com/semflow/inference-gateway/internal/models"
	"github.com/semflow/inference-gateway/internal/repository"
	"github.com/semflow/inference-gateway/internal/sysinfo"
)

// Batch sizing is a static heuristic on the longest text in the
// request: long inputs get small batches so that no more than a few
// large activations are resident at once. Memory readings are logged
// but never feed back into the batch size.
const (
	longTextThreshold = 10000
	longTextBatchSize = 10
	defaultBatchSize  = 50
)

type EmbeddingRequest struct {
	TraceID string   `json:"trace_id,omitempty"`
	ReqID   string   `json:"req_id"`
	Texts   []string `json:"texts"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

type EmbeddingResult struct {
	ReqID      string      `json:"req_id"`
	Embeddings [][]float32 `json:"embeddings"`
	BatchSize  int         `json:"batch_size"`
	DurationMs int64       `json:"duration_ms"`
}

// EmbeddingService runs the batching inference pipeline: validation is
// done by the transports, this service owns chunking, sequential
// encoding, and the memory bookkeeping around it.
type EmbeddingService struct {
	enc     encoder.Encoder
	repo    repository.Repository
	metrics *metrics.Metrics
}

func NewEmbeddingService(enc encoder.Encoder, repo repository.Repository, m *metrics.Metrics) *EmbeddingService {
	return &EmbeddingService{
		enc:     enc,
		repo:    repo,
		metrics: m,
	}
}

// BatchSizeFor returns the chunk size the pipeline will use for a
// request whose longest text has maxTextLen characters.
func BatchSizeFor(maxTextLen int) int {
	if maxTextLen > longTextThreshold {
		return longTextBatchSize
	}
	return defaultBatchSize
}

func (s *EmbeddingService) ProcessEmbedding(ctx context.Context, req EmbeddingRequest, source, workerID string) (result *EmbeddingResult, err error) {
	start := time.Now()
	memBefore := sysinfo.Sample()

	maxTextLen := 0
	minTextLen := 0
	totalLen := 0
	for i, text := range req.Texts {
		if len(text) > maxTextLen {
			maxTextLen = len(text)
		}
		if i == 0 || len(text) < minTextLen {
			minTextLen = len(text)
		}
		totalLen += len(text)
	}
	batchSize := BatchSizeFor(maxTextLen)

	// Crash recovery: a panicking encoder must surface as an error
	// response, never take the process down.
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Embedding pipeline panic",
				"req_id", req.ReqID,
				"panic", r,
				"stack", string(debug.Stack()))
			err = errkind.New(errkind.Internal, req.ReqID, fmt.Sprintf("encoder panic: %v", r))
			result = nil
			s.logRequest(ctx, req, source, workerID, start, maxTextLen, batchSize, 0, memBefore, "panic", err.Error())
		}
	}()

	slog.Info("Memory before processing",
		"req_id", req.ReqID,
		"rss_mb", memBefore.RSSMB,
		"percent", memBefore.Percent)

	if len(req.Texts) == 0 {
		slog.Info("Received empty texts list", "req_id", req.ReqID)
		s.logRequest(ctx, req, source, workerID, start, 0, batchSize, 0, memBefore, "ok", "")
		return &EmbeddingResult{
			ReqID:      req.ReqID,
			Embeddings: [][]float32{},
			BatchSize:  batchSize,
		}, nil
	}

	slog.Info("Processing texts",
		"req_id", req.ReqID,
		"count", len(req.Texts),
		"min_len", minTextLen,
		"max_len", maxTextLen,
		"avg_len", float64(totalLen)/float64(len(req.Texts)),
		"batch_size", batchSize)

	batchCount := (len(req.Texts) + batchSize - 1) / batchSize
	embeddings := make([][]float32, 0, len(req.Texts))

	for i := 0; i < len(req.Texts); i += batchSize {
		end := i + batchSize
		if end > len(req.Texts) {
			end = len(req.Texts)
		}
		batch := req.Texts[i:end]

		slog.Info("Processing batch",
			"req_id", req.ReqID,
			"batch", i/batchSize+1,
			"batches", batchCount,
			"size", len(batch))

		batchStart := time.Now()
		vectors, encErr := s.enc.Encode(ctx, batch)
		batchDur := time.Since(batchStart)

		if encErr != nil {
			slog.Error("Error generating embeddings",
				"req_id", req.ReqID,
				"batch", i/batchSize+1,
				"error", encErr)
			memErr := sysinfo.Sample()
			slog.Error("Memory at error",
				"req_id", req.ReqID,
				"rss_mb", memErr.RSSMB,
				"percent", memErr.Percent)
			wrapped := errkind.Wrap(errkind.Internal, req.ReqID, encErr.Error(), encErr)
			s.logRequest(ctx, req, source, workerID, start, maxTextLen, batchSize, len(embeddings), memBefore, "error", encErr.Error())
			return nil, wrapped
		}

		slog.Info("Batch processed",
			"req_id", req.ReqID,
			"duration_ms", batchDur.Milliseconds(),
			"per_text_ms", float64(batchDur.Milliseconds())/float64(len(batch)))

		if s.metrics != nil {
			s.metrics.BatchDuration.Observe(batchDur.Seconds())
		}

		embeddings = append(embeddings, vectors...)
		// vectors and batch fall out of scope here, so the chunk's
		// intermediate buffers are collectable before the next encode
		// allocates. Keeps at most one batch resident per request.
	}

	duration := time.Since(start)
	memAfter := sysinfo.Sample()
	slog.Info("Memory after processing",
		"req_id", req.ReqID,
		"rss_mb", memAfter.RSSMB,
		"percent", memAfter.Percent,
		"change_mb", memAfter.RSSMB-memBefore.RSSMB)
	slog.Info("Generated embeddings",
		"req_id", req.ReqID,
		"count", len(embeddings),
		"duration_ms", duration.Milliseconds(),
		"per_text_ms", float64(duration.Milliseconds())/float64(len(req.Texts)))

	if s.metrics != nil {
		s.metrics.TextsProcessed.Add(float64(len(req.Texts)))
		s.metrics.MemoryRSSBytes.Set(memAfter.RSSMB * 1024 * 1024)
	}

	s.logRequestFull(ctx, req, source, workerID, start, maxTextLen, batchSize, batchCount, len(embeddings), memBefore, memAfter, "ok", "")

	return &EmbeddingResult{
		ReqID:      req.ReqID,
		Embeddings: embeddings,
		BatchSize:  batchSize,
		DurationMs: duration.Milliseconds(),
	}, nil
}

func (s *EmbeddingService) logRequest(ctx context.Context, req EmbeddingRequest, source, workerID string, start time.Time, maxTextLen, batchSize, embeddingCount int, memBefore sysinfo.MemorySnapshot, status, errStr string) {
	s.logRequestFull(ctx, req, source, workerID, start, maxTextLen, batchSize, 0, embeddingCount, memBefore, sysinfo.Sample(), status, errStr)
}

func (s *EmbeddingService) logRequestFull(ctx context.Context, req EmbeddingRequest, source, workerID string, start time.Time, maxTextLen, batchSize, batchCount, embeddingCount int, memBefore, memAfter sysinfo.MemorySnapshot, status, errStr string) {
	if s.repo == nil {
		return
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = req.ReqID
	}

	entry := &models.RequestLog{
		Timestamp:      start,
		TraceID:        traceID,
		ReqID:          req.ReqID,
		WorkerID:       workerID,
		Source:         source,
		TextCount:      len(req.Texts),
		MaxTextLen:     maxTextLen,
		BatchSize:      batchSize,
		BatchCount:     batchCount,
		EmbeddingSize:  s.enc.Dimension(),
		EmbeddingCount: embeddingCount,
		MemBeforeMB:    memBefore.RSSMB,
		MemAfterMB:     memAfter.RSSMB,
		DurationMs:     time.Since(start).Milliseconds(),
		Status:         status,
		Error:          errStr,
	}

	if logErr := s.repo.Request().LogRequest(ctx, entry); logErr != nil {
		slog.Error("Failed to log embedding request", "req_id", req.ReqID, "error", logErr)
	}
}

// GetRequestLogs retrieves recent request audit rows.
func (s *EmbeddingService) GetRequestLogs(ctx context.Context, limit int) ([]*models.RequestLog, error) {
	return s.repo.Request().GetRequestLogs(ctx, limit)
}

// ModelLoaded reports whether the encoder is usable, for /health.
func (s *EmbeddingService) ModelLoaded() bool {
	return s.enc != nil
}
