package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/oklog/ulid/v2"
)

// EmbeddingClient provides a client interface for the embedding service
type EmbeddingClient interface {
	// Embed generates embeddings for a batch of texts, order preserved.
	Embed(ctx context.Context, model string, texts []string) (*EmbeddingResponse, error)

	// CheckHealth queries a worker's health over request/reply.
	CheckHealth(ctx context.Context, model string) (*HealthStatus, error)

	// Lifecycle
	Close() error
}

// NATSEmbeddingClient implements EmbeddingClient over the NATS
// transport: publish to the model's request subject, collect the reply
// on a per-request subject.
type NATSEmbeddingClient struct {
	conn     *nats.Conn
	clientID string
	timeout  time.Duration
}

// NewNATSClient creates a new NATS-based embedding client
func NewNATSClient(natsURL, clientID string) (EmbeddingClient, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	if clientID == "" {
		clientID = "embedding-client"
	}

	return &NATSEmbeddingClient{
		conn:     conn,
		clientID: clientID,
		timeout:  30 * time.Second,
	}, nil
}

func (c *NATSEmbeddingClient) Embed(ctx context.Context, model string, texts []string) (*EmbeddingResponse, error) {
	topic := fmt.Sprintf("embedding.request.%s", model)

	reqID := ulid.Make().String()
	replySubject := fmt.Sprintf("embedding.reply.%s.%s", c.clientID, reqID)

	request := EmbeddingRequest{
		ReqID:   reqID,
		Texts:   texts,
		ReplyTo: replySubject,
	}

	slog.Debug("Sending embedding request",
		"topic", topic,
		"req_id", reqID,
		"texts", len(texts))

	requestBytes, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	// Subscribe to the reply subject before publishing so the response
	// cannot race the subscription.
	replyChan := make(chan *nats.Msg, 1)
	sub, err := c.conn.Subscribe(replySubject, func(msg *nats.Msg) {
		replyChan <- msg
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to reply: %w", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	if err := c.conn.Publish(topic, requestBytes); err != nil {
		return nil, fmt.Errorf("failed to publish request: %w", err)
	}

	select {
	case msg := <-replyChan:
		var response EmbeddingResponse
		if err := json.Unmarshal(msg.Data, &response); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
		if response.Error != "" {
			return &response, fmt.Errorf("embedding failed: %s", response.Error)
		}
		return &response, nil
	case <-time.After(c.timeout):
		return nil, fmt.Errorf("timeout waiting for embedding response")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *NATSEmbeddingClient) CheckHealth(ctx context.Context, model string) (*HealthStatus, error) {
	topic := fmt.Sprintf("models.%s.health", model)

	msg, err := c.conn.RequestWithContext(ctx, topic, nil)
	if err != nil {
		return nil, fmt.Errorf("health check failed: %w", err)
	}

	var status HealthStatus
	if err := json.Unmarshal(msg.Data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal health status: %w", err)
	}
	return &status, nil
}

func (c *NATSEmbeddingClient) Close() error {
	c.conn.Close()
	return nil
}
