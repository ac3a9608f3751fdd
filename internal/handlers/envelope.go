package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/semflow/inference-gateway/internal/errkind"
)

// writeErrorEnvelope renders the uniform JSON error shape shared by
// both services: message, kind, and the correlation id of the request
// the failure belongs to.
func writeErrorEnvelope(w http.ResponseWriter, e *errkind.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatus())

	envelope := map[string]interface{}{
		"error":      e.Message,
		"error_type": string(e.Kind),
	}
	if e.RequestID != "" {
		envelope["request_id"] = e.RequestID
	}
	_ = json.NewEncoder(w).Encode(envelope)
}
