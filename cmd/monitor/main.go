package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
)

// WorkerStatus tracks the latest heartbeat and memory report seen for
// one embedding worker.
type WorkerStatus struct {
	ModelName   string    `json:"model_name"`
	Status      string    `json:"status"`
	ModelLoaded bool      `json:"model_loaded"`
	Dimension   int       `json:"dimension"`
	Memory      struct {
		RSSMB   float64 `json:"rss_mb"`
		Percent float64 `json:"percent"`
	} `json:"memory"`
	Endpoint string    `json:"endpoint"`
	LastSeen time.Time `json:"-"`
}

type memoryReport struct {
	ModelName        string `json:"model_name"`
	PendingMessages  int64  `json:"pending_messages"`
	ActiveProcessing int64  `json:"active_processing"`
	Memory           struct {
		RSSMB float64 `json:"rss_mb"`
	} `json:"memory"`
}

type monitor struct {
	nats    *nats.Conn
	mu      sync.RWMutex
	workers map[string]*WorkerStatus
	reports map[string]*memoryReport
}

func newMonitor(natsURL string) (*monitor, error) {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &monitor{
		nats:    nc,
		workers: make(map[string]*WorkerStatus),
		reports: make(map[string]*memoryReport),
	}, nil
}

func (m *monitor) start() error {
	if _, err := m.nats.Subscribe("monitoring.models.heartbeat.*", func(msg *nats.Msg) {
		var status WorkerStatus
		if err := json.Unmarshal(msg.Data, &status); err != nil {
			log.Printf("bad heartbeat on %s: %v", msg.Subject, err)
			return
		}
		status.LastSeen = time.Now()

		m.mu.Lock()
		m.workers[status.ModelName] = &status
		m.mu.Unlock()
	}); err != nil {
		return err
	}

	if _, err := m.nats.Subscribe("monitoring.memory.*", func(msg *nats.Msg) {
		var report memoryReport
		if err := json.Unmarshal(msg.Data, &report); err != nil {
			return
		}

		m.mu.Lock()
		m.reports[report.ModelName] = &report
		m.mu.Unlock()
	}); err != nil {
		return err
	}

	return nil
}

func (m *monitor) printStatus() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.workers))
	for name := range m.workers {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("\n=== Embedding workers (%s) ===\n", time.Now().Format(time.RFC3339))
	if len(names) == 0 {
		fmt.Println("no heartbeats received yet")
		return
	}

	for _, name := range names {
		w := m.workers[name]
		staleness := time.Since(w.LastSeen).Round(time.Second)
		line := fmt.Sprintf("%-24s %-8s dim=%-4d rss=%.1fMB (%.1f%%) seen %s ago",
			w.ModelName, w.Status, w.Dimension, w.Memory.RSSMB, w.Memory.Percent, staleness)
		if r, ok := m.reports[name]; ok {
			line += fmt.Sprintf("  pending=%d active=%d", r.PendingMessages, r.ActiveProcessing)
		}
		fmt.Println(line)
	}
}

func main() {
	natsURL := flag.String("nats-url", nats.DefaultURL, "NATS server URL")
	interval := flag.Duration("interval", 10*time.Second, "Status print interval")
	flag.Parse()

	m, err := newMonitor(*natsURL)
	if err != nil {
		log.Fatalf("monitor: %v", err)
	}
	defer m.nats.Close()

	if err := m.start(); err != nil {
		log.Fatalf("monitor: %v", err)
	}

	log.Printf("listening for heartbeats on %s", *natsURL)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			m.printStatus()
		case <-sig:
			return
		}
	}
}
