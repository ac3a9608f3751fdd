package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/semflow/inference-gateway/internal/config"
	"github.com/semflow/inference-gateway/internal/handlers"
	"github.com/semflow/inference-gateway/internal/logging"
	"github.com/semflow/inference-gateway/internal/services"
	"github.com/semflow/inference-gateway/pkg/server"
)

func main() {
	envFile := flag.String("env", "", "Optional .env file to load")
	upstreamURL := flag.String("upstream-url", "", "Upstream chat-completion API URL")
	host := flag.String("host", "", "Host to bind the server to")
	port := flag.Int("port", 0, "Port to bind the server to")
	logLevel := flag.String("log-level", "", "Logging level (DEBUG, INFO, WARNING, ERROR)")
	flag.Parse()

	cfg, err := config.LoadForwarder(*envFile)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Explicitly set flags win over environment values.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "upstream-url":
			cfg.UpstreamURL = *upstreamURL
		case "host":
			cfg.Host = *host
		case "port":
			cfg.Port = *port
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	logging.Setup(cfg.LogLevel, cfg.LogDir, "completion_forwarder.log")

	completionService := services.NewCompletionService(cfg.UpstreamURL)

	// Best-effort reachability probe: the upstream may start later, so
	// a failure only warns and never blocks startup.
	probeCtx, cancelProbe := context.WithTimeout(context.Background(), 5*time.Second)
	models, err := completionService.Probe(probeCtx)
	cancelProbe()
	if err != nil {
		slog.Warn("Could not connect to upstream", "url", cfg.UpstreamURL, "error", err)
		slog.Warn("Service will start anyway, verify the upstream is running")
	} else {
		slog.Info("Connected to upstream", "url", cfg.UpstreamURL, "models", models)
	}

	completionHandler := handlers.NewCompletionHandler(completionService)
	httpServer := server.NewServer(cfg.Addr(), 0, completionHandler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
			slog.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}
}
