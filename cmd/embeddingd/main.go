package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/semflow/inference-gateway/internal/config"
	"github.com/semflow/inference-gateway/internal/encoder"
	"github.com/semflow/inference-gateway/internal/handlers"
	"github.com/semflow/inference-gateway/internal/logging"
	"github.com/semflow/inference-gateway/internal/metrics"
	"github.com/semflow/inference-gateway/internal/repository"
	"github.com/semflow/inference-gateway/internal/services"
	"github.com/semflow/inference-gateway/internal/store"
	"github.com/semflow/inference-gateway/internal/sysinfo"
	"github.com/semflow/inference-gateway/pkg/server"
)

func main() {
	envFile := flag.String("env", "", "Optional .env file to load")
	modelName := flag.String("model", "", "Model name or path")
	host := flag.String("host", "", "Host to bind the server to")
	port := flag.Int("port", 0, "Port to bind the server to")
	workers := flag.Int("workers", 0, "Number of concurrent request workers")
	logLevel := flag.String("log-level", "", "Logging level (DEBUG, INFO, WARNING, ERROR)")
	flag.Parse()

	cfg, err := config.LoadEmbedding(*envFile)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Explicitly set flags win over environment values.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "model":
			cfg.ModelName = *modelName
		case "host":
			cfg.Host = *host
		case "port":
			cfg.Port = *port
		case "workers":
			cfg.Workers = *workers
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	logging.Setup(cfg.LogLevel, cfg.LogDir, "embedding_service.log")

	slog.Info("Starting embedding service",
		"available_memory_gb", sysinfo.AvailableMemoryGB(),
		"cpu_count", sysinfo.CPUCount())

	// Initialize database
	_ = os.MkdirAll(filepath.Dir(cfg.DBPath), 0755)
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	db.Event("info", "startup", "Server starting", map[string]interface{}{
		"model_name": cfg.ModelName,
		"http_addr":  cfg.Addr(),
		"db_path":    cfg.DBPath,
	})

	repo := repository.NewSQLiteRepository(db)

	db.Event("info", "model.loading", "Model loading started", map[string]interface{}{
		"model_name": cfg.ModelName,
	})

	enc, err := encoder.Load(cfg.ModelName, cfg.Dimension)
	if err != nil {
		db.Event("error", "model.failed", "Model loading failed", map[string]interface{}{
			"model_name": cfg.ModelName,
			"error":      err.Error(),
		})
		slog.Error("Failed to load model", "error", err)
		os.Exit(1)
	}

	memAfterLoad := sysinfo.Sample()
	slog.Info("Memory after model load",
		"rss_mb", memAfterLoad.RSSMB,
		"percent", memAfterLoad.Percent)

	// Test the model with a simple input before accepting traffic.
	testStart := time.Now()
	testVecs, err := enc.Encode(context.Background(), []string{"This is a test sentence."})
	if err != nil || len(testVecs) != 1 {
		slog.Error("Model self-test failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Model test successful",
		"duration_ms", time.Since(testStart).Milliseconds(),
		"dimension", len(testVecs[0]))

	db.Event("info", "model.loaded", "Model loaded successfully", map[string]interface{}{
		"model_name": cfg.ModelName,
		"dimension":  enc.Dimension(),
	})

	// The hashing encoder is re-entrant, but the pipeline is written
	// against the serialized wrapper so swapping in a non-reentrant
	// backend stays safe under concurrent requests.
	sharedEnc := encoder.Serialize(enc)

	m := metrics.New("embedding-service")
	embeddingService := services.NewEmbeddingService(sharedEnc, repo, m)

	embeddingHandler := handlers.NewEmbeddingHandler(embeddingService, m)
	httpServer := server.NewServer(cfg.Addr(), cfg.Workers, embeddingHandler)
	httpServer.Handle("/metrics", m.Handler())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional NATS transport alongside HTTP.
	if cfg.NatsURL != "" {
		natsService, err := services.NewNATSService(cfg, embeddingService)
		if err != nil {
			db.Event("error", "nats.failed", "NATS service initialization failed", map[string]interface{}{
				"nats_url": cfg.NatsURL,
				"error":    err.Error(),
			})
			slog.Error("Failed to create NATS service", "error", err)
			os.Exit(1)
		}

		healthService := services.NewHealthService(natsService.GetConnection(), cfg, sharedEnc)

		go func() {
			if err := natsService.Start(ctx); err != nil {
				db.Event("error", "nats.failed", "NATS service failed", map[string]interface{}{
					"error": err.Error(),
				})
				slog.Error("NATS service failed", "error", err)
			}
		}()

		go func() {
			if err := healthService.Start(ctx); err != nil {
				db.Event("error", "health.failed", "Health service failed", map[string]interface{}{
					"error": err.Error(),
				})
				slog.Error("Health service failed", "error", err)
			}
		}()
	}

	db.Event("info", "server.ready", "Server ready to accept requests", map[string]interface{}{
		"http_addr":  cfg.Addr(),
		"model_name": cfg.ModelName,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start(ctx)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sig:
		slog.Info("Shutting down server")
		cancel()
	case err := <-errCh:
		if err != nil {
			db.Event("error", "http.failed", "HTTP server failed", map[string]interface{}{
				"error": err.Error(),
			})
			slog.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}
}
