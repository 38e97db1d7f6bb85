package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"callai-worker/pkg/config"
	"callai-worker/pkg/database"
	http_server "callai-worker/pkg/http"
	"callai-worker/pkg/index"
	"callai-worker/pkg/metrics"
	"callai-worker/pkg/pipeline"
	"callai-worker/pkg/transcription"
)

var (
	logger = logrus.New()

	appConfig   *config.Config
	dbConn      *database.MySQLDatabase
	repository  *database.Repository
	searchIndex *index.BleveIndex
	consumer    *pipeline.AMQPConsumer
	publisher   *pipeline.Publisher
	httpServer  *http_server.Server
)

func main() {
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	logger.SetOutput(os.Stdout)

	if err := initialize(); err != nil {
		logger.WithError(err).Fatal("Failed to initialize worker")
	}

	httpServer.Start()

	if err := consumer.Connect(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to AMQP server")
	}
	logger.Info("Worker started, waiting for tasks")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigChan
	logger.WithField("signal", sig.String()).Info("Received shutdown signal, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	// Stop taking new deliveries first, then let in-flight tasks drain.
	consumer.Disconnect()
	publisher.Disconnect()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Error shutting down internal API server")
	}

	if err := searchIndex.Close(); err != nil {
		logger.WithError(err).Error("Error closing search index")
	}

	if err := dbConn.Close(); err != nil {
		logger.WithError(err).Error("Error closing database connection")
	}

	logger.Info("Worker shut down")
}

func initialize() error {
	var err error

	appConfig, err = config.Load(logger)
	if err != nil {
		return err
	}
	logger.SetLevel(appConfig.LogLevel)

	metrics.Init(logger)

	dbConfig := database.LoadMySQLConfig(logger)
	dbConn, err = database.NewMySQLDatabase(dbConfig, logger)
	if err != nil {
		return err
	}
	repository = database.NewRepository(dbConn, logger)

	searchIndex, err = index.New(appConfig.IndexPath, logger)
	if err != nil {
		return err
	}

	transcriber, err := transcription.NewHTTPClient(transcription.Config{
		BaseURL: appConfig.RecognitionURL,
		Timeout: appConfig.RecognitionTimeout,
	}, logger)
	if err != nil {
		return err
	}

	processor := pipeline.NewProcessor(repository, transcriber, searchIndex, logger)
	amqpConfig := pipeline.DefaultAMQPConfig(appConfig.AMQPURL, appConfig.AMQPPrefetchCount)
	consumer = pipeline.NewAMQPConsumer(logger, amqpConfig, processor)
	publisher = pipeline.NewPublisher(logger, amqpConfig)

	httpConfig := http_server.DefaultConfig()
	httpConfig.Address = appConfig.InternalAPIAddress
	httpServer = http_server.NewServer(logger, httpConfig, searchIndex, consumer, repository, publisher)

	return nil
}
