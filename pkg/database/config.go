package database

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// LoadMySQLConfig loads MySQL configuration from environment variables.
func LoadMySQLConfig(logger *logrus.Logger) MySQLConfig {
	config := MySQLConfig{
		Host:            getEnvOrDefault("DB_HOST", "localhost"),
		Port:            getEnvIntOrDefault("DB_PORT", 3306),
		Database:        getEnvOrDefault("DB_NAME", "callai"),
		Username:        getEnvOrDefault("DB_USERNAME", "callai"),
		Password:        getEnvOrDefault("DB_PASSWORD", ""),
		MaxOpenConns:    getEnvIntOrDefault("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvIntOrDefault("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDurationOrDefault("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		QueryTimeout:    getEnvDurationOrDefault("DB_QUERY_TIMEOUT", 30*time.Second),
	}

	logger.WithFields(logrus.Fields{
		"host":           config.Host,
		"port":           config.Port,
		"database":       config.Database,
		"max_open_conns": config.MaxOpenConns,
		"query_timeout":  config.QueryTimeout,
	}).Info("MySQL configuration loaded")

	return config
}

// ValidateConfig validates the MySQL configuration.
func ValidateConfig(config MySQLConfig) error {
	if config.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if config.Port <= 0 || config.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", config.Port)
	}

	if config.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if config.Username == "" {
		return fmt.Errorf("database username is required")
	}

	if config.MaxOpenConns <= 0 {
		return fmt.Errorf("max open connections must be positive: %d", config.MaxOpenConns)
	}

	if config.MaxIdleConns < 0 {
		return fmt.Errorf("max idle connections cannot be negative: %d", config.MaxIdleConns)
	}

	if config.MaxIdleConns > config.MaxOpenConns {
		return fmt.Errorf("max idle connections (%d) cannot exceed max open connections (%d)",
			config.MaxIdleConns, config.MaxOpenConns)
	}

	if config.QueryTimeout <= 0 {
		return fmt.Errorf("query timeout must be positive: %v", config.QueryTimeout)
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
