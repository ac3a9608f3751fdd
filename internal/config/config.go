package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Embedding holds the embedding server configuration. Values come from
// the environment with defaults; command-line flags in cmd/embeddingd
// override them.
type Embedding struct {
	// HTTP Configuration
	Host    string
	Port    int
	Workers int

	// Model Configuration
	ModelName string
	Dimension int

	// Logging Configuration
	LogLevel string
	LogDir   string

	// Database Configuration
	DBPath string

	// NATS Configuration (optional transport, disabled when NatsURL is empty)
	NatsURL        string
	Stream         string
	Subject        string
	Durable        string
	ResponsePrefix string
	MaxMsgs        int
	MaxAge         time.Duration
	Concurrency    int
}

// Forwarder holds the completion forwarder configuration.
type Forwarder struct {
	Host        string
	Port        int
	UpstreamURL string
	LogLevel    string
	LogDir      string
}

func LoadEmbedding(envFile string) (*Embedding, error) {
	loadEnvFile(envFile)

	return &Embedding{
		Host:           getEnv("HOST", "0.0.0.0"),
		Port:           getEnvInt("PORT", 8080),
		Workers:        getEnvInt("WORKERS", 4),
		ModelName:      getEnv("MODEL_NAME", "all-MiniLM-L6-v2"),
		Dimension:      getEnvInt("MODEL_DIMENSION", 0),
		LogLevel:       getEnv("LOG_LEVEL", "INFO"),
		LogDir:         getEnv("LOG_DIR", "logs"),
		DBPath:         getEnv("DB_PATH", "data/embedding.sqlite"),
		NatsURL:        getEnv("NATS_URL", ""),
		Stream:         getEnv("STREAM_NAME", "EMBED"),
		Subject:        getEnv("SUBJECT", "embedding.request.default"),
		Durable:        getEnv("QUEUE_DURABLE", "embed-wq"),
		ResponsePrefix: getEnv("RESPONSE_PREFIX", "embedding.reply"),
		MaxMsgs:        getEnvInt("QUEUE_MAX_MSGS", 2000),
		MaxAge:         getEnvDuration("QUEUE_MAX_AGE", "30s"),
		Concurrency:    getEnvInt("WORKER_CONCURRENCY", 2),
	}, nil
}

func LoadForwarder(envFile string) (*Forwarder, error) {
	loadEnvFile(envFile)

	return &Forwarder{
		Host:        getEnv("HOST", "0.0.0.0"),
		Port:        getEnvInt("PORT", 8081),
		UpstreamURL: getEnv("UPSTREAM_URL", "http://localhost:1234"),
		LogLevel:    getEnv("LOG_LEVEL", "INFO"),
		LogDir:      getEnv("LOG_DIR", "logs"),
	}, nil
}

func (c *Embedding) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Forwarder) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func loadEnvFile(envFile string) {
	if envFile == "" {
		return
	}
	if err := godotenv.Load(envFile); err != nil {
		slog.Warn("Could not load env file", "file", envFile, "error", err)
	} else {
		slog.Info("Environment loaded", "file", envFile)
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal string) time.Duration {
	val := getEnv(key, defaultVal)
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	d, _ := time.ParseDuration(defaultVal)
	return d
}
