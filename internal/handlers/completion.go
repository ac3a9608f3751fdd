package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/semflow/inference-gateway/internal/errkind"
	"github.com/semflow/inference-gateway/internal/services"
)

type CompletionHandler struct {
	completionService *services.CompletionService
}

func NewCompletionHandler(completionService *services.CompletionService) *CompletionHandler {
	return &CompletionHandler{
		completionService: completionService,
	}
}

func (h *CompletionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/completion", h.handleCompletion)
	mux.HandleFunc("/healthz", h.handleHealthz)
}

func (h *CompletionHandler) handleCompletion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	reqID := uuid.NewString()

	var req services.CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Invalid JSON body", "req_id", reqID, "error", err)
		writeErrorEnvelope(w, errkind.New(errkind.BadRequest, reqID, "Invalid JSON"))
		return
	}

	if req.Prompt == nil {
		slog.Warn("Missing prompt in request", "req_id", reqID)
		writeErrorEnvelope(w, errkind.New(errkind.BadRequest, reqID, "Missing prompt in request"))
		return
	}

	maxTokens := services.DefaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	temperature := services.DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	resp, err := h.completionService.Complete(r.Context(), reqID, *req.Prompt, maxTokens, temperature)
	if err != nil {
		writeErrorEnvelope(w, errkind.From(err, reqID))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *CompletionHandler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
