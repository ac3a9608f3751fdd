package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/semflow/inference-gateway/internal/config"
	"github.com/semflow/inference-gateway/internal/encoder"
	"github.com/semflow/inference-gateway/internal/sysinfo"
)

// HealthService answers health probes and publishes heartbeats over
// NATS so fleet monitors can discover embedding workers. The HTTP
// /health endpoint is separate and works without NATS.
type HealthService struct {
	nats   *nats.Conn
	config *config.Embedding
	enc    encoder.Encoder
}

type HealthStatus struct {
	ModelName    string                 `json:"model_name"`
	Status       string                 `json:"status"` // online, offline, busy
	ModelLoaded  bool                   `json:"model_loaded"`
	Dimension    int                    `json:"dimension"`
	Memory       sysinfo.MemorySnapshot `json:"memory"`
	LastActivity time.Time              `json:"last_activity"`
	Endpoint     string                 `json:"endpoint"`
	NATSTopic    string                 `json:"nats_topic"`
	Version      string                 `json:"version"`
}

func NewHealthService(natsConn *nats.Conn, cfg *config.Embedding, enc encoder.Encoder) *HealthService {
	return &HealthService{
		nats:   natsConn,
		config: cfg,
		enc:    enc,
	}
}

func (h *HealthService) Start(ctx context.Context) error {
	// Subscribe to health check requests for this model
	healthTopic := fmt.Sprintf("models.%s.health", h.config.ModelName)

	_, err := h.nats.Subscribe(healthTopic, func(msg *nats.Msg) {
		status := h.getHealthStatus()

		statusData, err := json.Marshal(status)
		if err != nil {
			slog.Error("Failed to marshal health status", "error", err)
			return
		}

		if err := msg.Respond(statusData); err != nil {
			slog.Error("Failed to respond to health check", "error", err)
		}
	})

	if err != nil {
		return fmt.Errorf("failed to subscribe to health topic: %w", err)
	}

	slog.Info("Health service started", "topic", healthTopic)

	go h.publishHeartbeats(ctx)

	return nil
}

func (h *HealthService) publishHeartbeats(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	heartbeatTopic := fmt.Sprintf("monitoring.models.heartbeat.%s", h.config.ModelName)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := h.getHealthStatus()
			statusData, err := json.Marshal(status)
			if err != nil {
				continue
			}

			if err := h.nats.Publish(heartbeatTopic, statusData); err != nil {
				slog.Warn("Failed to publish heartbeat", "error", err)
			}
		}
	}
}

func (h *HealthService) getHealthStatus() HealthStatus {
	return HealthStatus{
		ModelName:    h.config.ModelName,
		Status:       "online",
		ModelLoaded:  h.enc != nil,
		Dimension:    h.enc.Dimension(),
		Memory:       sysinfo.Sample(),
		LastActivity: time.Now(),
		Endpoint:     fmt.Sprintf("http://%s", h.config.Addr()),
		NATSTopic:    h.config.Subject,
		Version:      "1.0.0",
	}
}
