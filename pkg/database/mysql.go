package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
)

// MySQLConfig holds the database connection settings.
type MySQLConfig struct {
	Host            string
	Port            int
	Database        string
	Username        string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
}

// MySQLDatabase wraps the connection pool with query timeout handling.
type MySQLDatabase struct {
	db     *sql.DB
	config MySQLConfig
	logger *logrus.Logger
}

// NewMySQLDatabase opens a connection pool and verifies connectivity.
func NewMySQLDatabase(config MySQLConfig, logger *logrus.Logger) (*MySQLDatabase, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		config.Username, config.Password, config.Host, config.Port, config.Database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), config.QueryTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"host":     config.Host,
		"port":     config.Port,
		"database": config.Database,
	}).Info("Connected to MySQL database")

	return &MySQLDatabase{
		db:     db,
		config: config,
		logger: logger,
	}, nil
}

// Close closes the connection pool.
func (d *MySQLDatabase) Close() error {
	return d.db.Close()
}

// getContext returns a context bounded by the configured query timeout.
func (d *MySQLDatabase) getContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d.config.QueryTimeout)
}

// WithTransaction runs fn inside a transaction, committing on nil error
// and rolling back otherwise.
func (d *MySQLDatabase) WithTransaction(fn func(tx *sql.Tx) error) error {
	ctx, cancel := d.getContext()
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			d.logger.WithError(rbErr).Error("Failed to roll back transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
