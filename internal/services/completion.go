package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/semflow/inference-gateway/internal/errkind"
)

const (
	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.2
)

type CompletionRequest struct {
	// Prompt is a pointer so a missing field can be told apart from an
	// empty string; only absence is a validation error.
	Prompt      *string  `json:"prompt"`
	MaxTokens   *int     `json:"max_tokens"`
	Temperature *float64 `json:"temperature"`
}

type CompletionResponse struct {
	Text       string `json:"text"`
	TokensUsed int    `json:"tokens_used"`
}

// Upstream chat-completion wire shapes. Only the fields the forwarder
// reads or writes are declared.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// CompletionService forwards simplified completion requests to an
// external chat-completion server and maps the reply back. One
// synchronous outbound call per request, single attempt.
type CompletionService struct {
	upstreamURL string
	client      *http.Client
}

func NewCompletionService(upstreamURL string) *CompletionService {
	return &CompletionService{
		upstreamURL: strings.TrimRight(upstreamURL, "/"),
		client:      &http.Client{},
	}
}

func (s *CompletionService) UpstreamURL() string {
	return s.upstreamURL
}

// Complete forwards one prompt upstream. Defaults are already applied
// by the caller; reqID tags every log line and error.
func (s *CompletionService) Complete(ctx context.Context, reqID, prompt string, maxTokens int, temperature float64) (*CompletionResponse, error) {
	upstreamReq := chatCompletionRequest{
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      false,
	}

	slog.Info("Sending request upstream",
		"req_id", reqID,
		"prompt", previewPrompt(prompt),
		"max_tokens", maxTokens,
		"temperature", temperature)

	body, err := json.Marshal(upstreamReq)
	if err != nil {
		return nil, errkind.Wrap(errkind.Internal, reqID, "failed to encode upstream request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.upstreamURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errkind.Wrap(errkind.Internal, reqID, "failed to build upstream request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, errkind.Wrap(errkind.Upstream, reqID, fmt.Sprintf("upstream request failed: %v", err), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errkind.Wrap(errkind.Upstream, reqID, "failed to read upstream response", err)
	}

	if resp.StatusCode != http.StatusOK {
		slog.Error("Upstream API error",
			"req_id", reqID,
			"status", resp.StatusCode,
			"body", string(respBody))
		return nil, errkind.New(errkind.Upstream, reqID,
			fmt.Sprintf("upstream API error: %s", string(respBody)))
	}

	var upstreamResp chatCompletionResponse
	if err := json.Unmarshal(respBody, &upstreamResp); err != nil {
		slog.Error("Unparseable upstream response", "req_id", reqID, "error", err)
		return nil, errkind.Wrap(errkind.Protocol, reqID, "unexpected response format from upstream", err)
	}

	if len(upstreamResp.Choices) == 0 {
		slog.Error("Unexpected upstream response format", "req_id", reqID, "body", string(respBody))
		return nil, errkind.New(errkind.Protocol, reqID, "unexpected response format from upstream")
	}

	tokens := upstreamResp.Usage.TotalTokens
	slog.Info("Received upstream response",
		"req_id", reqID,
		"duration_ms", time.Since(start).Milliseconds(),
		"tokens_used", tokens)

	return &CompletionResponse{
		Text:       upstreamResp.Choices[0].Message.Content,
		TokensUsed: tokens,
	}, nil
}

// Probe checks upstream reachability via the model-listing endpoint.
// Best effort: callers only log the outcome, startup never blocks on it.
func (s *CompletionService) Probe(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.upstreamURL+"/v1/models", nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream responded with status %d", resp.StatusCode)
	}

	var listing struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(listing.Data))
	for _, m := range listing.Data {
		names = append(names, m.ID)
	}
	return names, nil
}

func previewPrompt(prompt string) string {
	if len(prompt) > 100 {
		return prompt[:100] + "..."
	}
	return prompt
}
