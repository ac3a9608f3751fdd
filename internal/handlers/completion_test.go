package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semflow/inference-gateway/internal/services"
)

func newForwarderServer(t *testing.T, upstream http.HandlerFunc) *httptest.Server {
	t.Helper()

	upstreamSrv := httptest.NewServer(upstream)
	t.Cleanup(upstreamSrv.Close)

	svc := services.NewCompletionService(upstreamSrv.URL)
	handler := NewCompletionHandler(svc)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func postCompletion(t *testing.T, url, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(url+"/completion", "application/json", bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func okUpstream(t *testing.T, capture *map[string]interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{"content": "hello from upstream"}},
			},
			"usage": map[string]interface{}{"total_tokens": 7},
		})
	}
}

func TestCompletionSuccess(t *testing.T) {
	srv := newForwarderServer(t, okUpstream(t, nil))

	resp, body := postCompletion(t, srv.URL, `{"prompt":"say hello"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello from upstream", body["text"])
	assert.Equal(t, float64(7), body["tokens_used"])
}

func TestCompletionAppliesDefaults(t *testing.T) {
	var received map[string]interface{}
	srv := newForwarderServer(t, okUpstream(t, &received))

	resp, _ := postCompletion(t, srv.URL, `{"prompt":"say hello"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, float64(1000), received["max_tokens"])
	assert.Equal(t, 0.2, received["temperature"])
}

func TestCompletionOverridesDefaults(t *testing.T) {
	var received map[string]interface{}
	srv := newForwarderServer(t, okUpstream(t, &received))

	resp, _ := postCompletion(t, srv.URL, `{"prompt":"p","max_tokens":5,"temperature":0.9}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, float64(5), received["max_tokens"])
	assert.Equal(t, 0.9, received["temperature"])
}

func TestCompletionMissingPrompt(t *testing.T) {
	srv := newForwarderServer(t, okUpstream(t, nil))

	resp, body := postCompletion(t, srv.URL, `{"max_tokens":10}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Missing prompt in request", body["error"])
	assert.Equal(t, "bad_request", body["error_type"])
	assert.NotEmpty(t, body["request_id"])
}

func TestCompletionEmptyPromptAllowed(t *testing.T) {
	// Only absence is a validation error; an empty string forwards.
	srv := newForwarderServer(t, okUpstream(t, nil))

	resp, _ := postCompletion(t, srv.URL, `{"prompt":""}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCompletionUpstreamError(t *testing.T) {
	srv := newForwarderServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gpu on fire", http.StatusInternalServerError)
	})

	resp, body := postCompletion(t, srv.URL, `{"prompt":"p"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "upstream_error", body["error_type"])
	assert.Contains(t, body["error"], "gpu on fire")
}

func TestCompletionEmptyChoices(t *testing.T) {
	srv := newForwarderServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	})

	resp, body := postCompletion(t, srv.URL, `{"prompt":"p"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "protocol_error", body["error_type"])
	assert.Contains(t, body["error"], "unexpected response format")
}

func TestCompletionMethodNotAllowed(t *testing.T) {
	srv := newForwarderServer(t, okUpstream(t, nil))

	resp, err := http.Get(srv.URL + "/completion")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
