package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds the worker's process configuration. Database settings are
// loaded separately by the database package.
type Config struct {
	// AMQP configuration
	AMQPURL           string
	AMQPPrefetchCount int

	// Recognition service configuration
	RecognitionURL     string
	RecognitionTimeout time.Duration

	// Search index configuration
	IndexPath string

	// Internal API configuration
	InternalAPIAddress string

	// Logging
	LogLevel logrus.Level
}

// Load reads the configuration from environment variables. A .env file is
// honored when present but not required.
func Load(logger *logrus.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using process environment")
	}

	config := &Config{
		AMQPURL:            os.Getenv("AMQP_URL"),
		AMQPPrefetchCount:  getEnvIntOrDefault("AMQP_PREFETCH_COUNT", 10),
		RecognitionURL:     os.Getenv("RECOGNITION_URL"),
		RecognitionTimeout: getEnvDurationOrDefault("RECOGNITION_TIMEOUT", 5*time.Minute),
		IndexPath:          getEnvOrDefault("INDEX_PATH", "./transcript_index"),
		InternalAPIAddress: getEnvOrDefault("INTERNAL_API_ADDRESS", ":8081"),
	}

	levelStr := getEnvOrDefault("LOG_LEVEL", "info")
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", levelStr, err)
	}
	config.LogLevel = level

	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"amqp_prefetch":       config.AMQPPrefetchCount,
		"recognition_timeout": config.RecognitionTimeout,
		"index_path":          config.IndexPath,
		"internal_api":        config.InternalAPIAddress,
		"log_level":           config.LogLevel,
	}).Info("Worker configuration loaded")

	return config, nil
}

// Validate checks that required settings are present and sane.
func (c *Config) Validate() error {
	if c.AMQPURL == "" {
		return fmt.Errorf("AMQP_URL is required")
	}

	if c.AMQPPrefetchCount <= 0 {
		return fmt.Errorf("AMQP prefetch count must be positive: %d", c.AMQPPrefetchCount)
	}

	if c.RecognitionURL == "" {
		return fmt.Errorf("RECOGNITION_URL is required")
	}

	if c.RecognitionTimeout <= 0 {
		return fmt.Errorf("recognition timeout must be positive: %v", c.RecognitionTimeout)
	}

	if c.IndexPath == "" {
		return fmt.Errorf("index path is required")
	}

	if c.InternalAPIAddress == "" {
		return fmt.Errorf("internal API address is required")
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
