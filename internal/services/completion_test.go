package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semflow/inference-gateway/internal/errkind"
)

func TestCompleteForwardsChatRequest(t *testing.T) {
	var received map[string]interface{}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{"content": "forwarded reply"}},
			},
			"usage": map[string]interface{}{"total_tokens": 42},
		})
	}))
	defer upstream.Close()

	svc := NewCompletionService(upstream.URL)
	resp, err := svc.Complete(context.Background(), "req-1", "say hi", 1000, 0.2)
	require.NoError(t, err)

	assert.Equal(t, "forwarded reply", resp.Text)
	assert.Equal(t, 42, resp.TokensUsed)

	// Single-turn user message, streaming disabled.
	messages := received["messages"].([]interface{})
	require.Len(t, messages, 1)
	msg := messages[0].(map[string]interface{})
	assert.Equal(t, "user", msg["role"])
	assert.Equal(t, "say hi", msg["content"])
	assert.Equal(t, false, received["stream"])
	assert.Equal(t, float64(1000), received["max_tokens"])
	assert.Equal(t, 0.2, received["temperature"])
}

func TestCompleteUpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer upstream.Close()

	svc := NewCompletionService(upstream.URL)
	_, err := svc.Complete(context.Background(), "req-2", "say hi", 1000, 0.2)
	require.Error(t, err)

	var e *errkind.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errkind.Upstream, e.Kind)
	assert.Contains(t, e.Message, "model not loaded")
}

func TestCompleteEmptyChoices(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []interface{}{},
		})
	}))
	defer upstream.Close()

	svc := NewCompletionService(upstream.URL)
	_, err := svc.Complete(context.Background(), "req-3", "say hi", 1000, 0.2)
	require.Error(t, err)

	var e *errkind.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errkind.Protocol, e.Kind)
	assert.Contains(t, e.Message, "unexpected response format")
}

func TestCompleteMissingUsageDefaultsToZero(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{"content": "no usage block"}},
			},
		})
	}))
	defer upstream.Close()

	svc := NewCompletionService(upstream.URL)
	resp, err := svc.Complete(context.Background(), "req-4", "say hi", 1000, 0.2)
	require.NoError(t, err)

	assert.Equal(t, "no usage block", resp.Text)
	assert.Equal(t, 0, resp.TokensUsed)
}

func TestCompleteUnreachableUpstream(t *testing.T) {
	svc := NewCompletionService("http://127.0.0.1:1")
	_, err := svc.Complete(context.Background(), "req-5", "say hi", 1000, 0.2)
	require.Error(t, err)

	var e *errkind.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errkind.Upstream, e.Kind)
}

func TestProbeListsModels(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/models", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"id": "llama-3-8b"},
				{"id": "qwen-2"},
			},
		})
	}))
	defer upstream.Close()

	svc := NewCompletionService(upstream.URL)
	models, err := svc.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama-3-8b", "qwen-2"}, models)
}

func TestProbeFailureReturnsError(t *testing.T) {
	svc := NewCompletionService("http://127.0.0.1:1")
	_, err := svc.Probe(context.Background())
	assert.Error(t, err)
}
