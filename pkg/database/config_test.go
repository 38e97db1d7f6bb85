package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() MySQLConfig {
	return MySQLConfig{
		Host:            "localhost",
		Port:            3306,
		Database:        "callai",
		Username:        "callai",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		QueryTimeout:    30 * time.Second,
	}
}

func TestValidateConfig(t *testing.T) {
	assert.NoError(t, ValidateConfig(validConfig()))
}

func TestValidateConfigRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*MySQLConfig)
	}{
		{"empty host", func(c *MySQLConfig) { c.Host = "" }},
		{"zero port", func(c *MySQLConfig) { c.Port = 0 }},
		{"huge port", func(c *MySQLConfig) { c.Port = 70000 }},
		{"empty database", func(c *MySQLConfig) { c.Database = "" }},
		{"empty username", func(c *MySQLConfig) { c.Username = "" }},
		{"zero open conns", func(c *MySQLConfig) { c.MaxOpenConns = 0 }},
		{"negative idle conns", func(c *MySQLConfig) { c.MaxIdleConns = -1 }},
		{"idle above open", func(c *MySQLConfig) { c.MaxIdleConns = 100 }},
		{"zero query timeout", func(c *MySQLConfig) { c.QueryTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(&config)
			assert.Error(t, ValidateConfig(config))
		})
	}
}

func TestLoadMySQLConfigDefaults(t *testing.T) {
	logger := newTestLogger()

	config := LoadMySQLConfig(logger)

	assert.Equal(t, "localhost", config.Host)
	assert.Equal(t, 3306, config.Port)
	assert.Equal(t, 30*time.Second, config.QueryTimeout)
	assert.NoError(t, ValidateConfig(config))
}

func TestLoadMySQLConfigOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "3307")
	t.Setenv("DB_QUERY_TIMEOUT", "5s")

	config := LoadMySQLConfig(newTestLogger())

	assert.Equal(t, "db.internal", config.Host)
	assert.Equal(t, 3307, config.Port)
	assert.Equal(t, 5*time.Second, config.QueryTimeout)
}
