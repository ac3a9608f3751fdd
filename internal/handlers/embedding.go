package handlers

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/semflow/inference-gateway/internal/errkind"
	"github.com/semflow/inference-gateway/internal/metrics"
	"github.com/semflow/inference-gateway/internal/services"
	"github.com/semflow/inference-gateway/internal/sysinfo"
)

type EmbeddingHandler struct {
	embeddingService *services.EmbeddingService
	metrics          *metrics.Metrics
}

func NewEmbeddingHandler(embeddingService *services.EmbeddingService, m *metrics.Metrics) *EmbeddingHandler {
	return &EmbeddingHandler{
		embeddingService: embeddingService,
		metrics:          m,
	}
}

func (h *EmbeddingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/embeddings", h.handleEmbeddings)
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/logs", h.handleLogs)
}

// embeddingsBody keeps texts raw so a missing key, a non-array value,
// and a valid array can be told apart during validation.
type embeddingsBody struct {
	Texts json.RawMessage `json:"texts"`
}

func (h *EmbeddingHandler) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	reqID := "req-" + ulid.Make().String()

	var body embeddingsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		slog.Warn("Invalid JSON body", "req_id", reqID, "error", err)
		h.writeError(w, errkind.New(errkind.BadRequest, reqID, "Invalid JSON"), "/embeddings", start)
		return
	}

	if body.Texts == nil {
		slog.Warn("Missing texts in request", "req_id", reqID)
		h.writeError(w, errkind.New(errkind.BadRequest, reqID, "Missing texts in request"), "/embeddings", start)
		return
	}

	// An explicit null is present but still not a list.
	if string(bytes.TrimSpace(body.Texts)) == "null" {
		slog.Warn("Texts is null", "req_id", reqID)
		h.writeError(w, errkind.New(errkind.BadRequest, reqID, "Texts must be a list"), "/embeddings", start)
		return
	}

	var texts []string
	if err := json.Unmarshal(body.Texts, &texts); err != nil {
		// Distinguish a non-array value from an array of non-strings.
		var anyList []interface{}
		msg := "Texts must be a list"
		if json.Unmarshal(body.Texts, &anyList) == nil {
			msg = "All input items must be strings"
		}
		slog.Warn("Invalid texts field", "req_id", reqID, "error", err)
		h.writeError(w, errkind.New(errkind.BadRequest, reqID, msg), "/embeddings", start)
		return
	}

	req := services.EmbeddingRequest{
		ReqID:   reqID,
		TraceID: r.Header.Get("X-Trace-ID"),
		Texts:   texts,
	}

	result, err := h.embeddingService.ProcessEmbedding(r.Context(), req, "http.embeddings", "http-worker")
	if err != nil {
		h.writeError(w, errkind.From(err, reqID), "/embeddings", start)
		return
	}

	h.observe("/embeddings", "ok", start)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"embeddings": result.Embeddings,
	})
}

func (h *EmbeddingHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	memory := sysinfo.Sample()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":          "healthy",
		"model_loaded":    h.embeddingService.ModelLoaded(),
		"memory_usage_mb": memory.RSSMB,
		"memory_percent":  memory.Percent,
	})
}

func (h *EmbeddingHandler) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}

	logs, err := h.embeddingService.GetRequestLogs(r.Context(), limit)
	if err != nil {
		http.Error(w, "Failed to get logs: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(logs)
}

func (h *EmbeddingHandler) writeError(w http.ResponseWriter, e *errkind.Error, endpoint string, start time.Time) {
	h.observe(endpoint, string(e.Kind), start)
	writeErrorEnvelope(w, e)
}

func (h *EmbeddingHandler) observe(endpoint, status string, start time.Time) {
	if h.metrics == nil {
		return
	}
	h.metrics.RequestsTotal.WithLabelValues(endpoint, status).Inc()
	h.metrics.RequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
