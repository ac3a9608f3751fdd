package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/semflow/inference-gateway/internal/config"
	"github.com/semflow/inference-gateway/internal/sysinfo"
)

// MonitoringService publishes periodic memory and queue-depth reports
// for the embedding worker over NATS. Reports are observational only:
// nothing downstream of them changes batch sizing or admission.
type MonitoringService struct {
	nats         *nats.Conn
	config       *config.Embedding
	pendingCount int64 // atomic counter
	activeCount  int64 // atomic counter for active processing
}

type MemoryReport struct {
	ModelName        string                 `json:"model_name"`
	Memory           sysinfo.MemorySnapshot `json:"memory"`
	PendingMessages  int64                  `json:"pending_messages"`
	ActiveProcessing int64                  `json:"active_processing"`
	WorkerCount      int                    `json:"worker_count"`
	Timestamp        time.Time              `json:"timestamp"`
}

func NewMonitoringService(natsConn *nats.Conn, cfg *config.Embedding) *MonitoringService {
	return &MonitoringService{
		nats:   natsConn,
		config: cfg,
	}
}

func (m *MonitoringService) Start(ctx context.Context) error {
	slog.Info("Starting monitoring service", "model", m.config.ModelName)
	go m.reportLoop(ctx)
	return nil
}

func (m *MonitoringService) reportLoop(ctx context.Context) {
	// Report faster while work is queued, slower when idle.
	highLoadTicker := time.NewTicker(1 * time.Second)
	lowLoadTicker := time.NewTicker(10 * time.Second)
	defer highLoadTicker.Stop()
	defer lowLoadTicker.Stop()

	currentTicker := lowLoadTicker

	for {
		select {
		case <-ctx.Done():
			return
		case <-currentTicker.C:
			pending := atomic.LoadInt64(&m.pendingCount)
			active := atomic.LoadInt64(&m.activeCount)

			if pending > 0 && currentTicker == lowLoadTicker {
				currentTicker = highLoadTicker
				slog.Debug("Switched to high-frequency monitoring", "pending", pending)
			} else if pending == 0 && currentTicker == highLoadTicker {
				currentTicker = lowLoadTicker
				slog.Debug("Switched to low-frequency monitoring")
			}

			m.publishReport(pending, active)
		}
	}
}

func (m *MonitoringService) publishReport(pending, active int64) {
	report := MemoryReport{
		ModelName:        m.config.ModelName,
		Memory:           sysinfo.Sample(),
		PendingMessages:  pending,
		ActiveProcessing: active,
		WorkerCount:      m.config.Concurrency,
		Timestamp:        time.Now(),
	}

	reportData, err := json.Marshal(report)
	if err != nil {
		slog.Error("Failed to marshal memory report", "error", err)
		return
	}

	topic := fmt.Sprintf("monitoring.memory.%s", m.config.ModelName)
	if err := m.nats.Publish(topic, reportData); err != nil {
		slog.Warn("Failed to publish memory report", "error", err)
		return
	}

	if pending > 0 || active > 0 {
		slog.Info("Memory report",
			"pending", pending,
			"active", active,
			"rss_mb", report.Memory.RSSMB)
	}
}

// IncrementPending atomically increments pending message count
func (m *MonitoringService) IncrementPending() {
	atomic.AddInt64(&m.pendingCount, 1)
}

// DecrementPending atomically decrements pending message count
func (m *MonitoringService) DecrementPending() {
	atomic.AddInt64(&m.pendingCount, -1)
}

// IncrementActive atomically increments active processing count
func (m *MonitoringService) IncrementActive() {
	atomic.AddInt64(&m.activeCount, 1)
}

// DecrementActive atomically decrements active processing count
func (m *MonitoringService) DecrementActive() {
	atomic.AddInt64(&m.activeCount, -1)
}

// GetPendingCount returns current pending count
func (m *MonitoringService) GetPendingCount() int64 {
	return atomic.LoadInt64(&m.pendingCount)
}

// GetActiveCount returns current active count
func (m *MonitoringService) GetActiveCount() int64 {
	return atomic.LoadInt64(&m.activeCount)
}
