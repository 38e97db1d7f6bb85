package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"callai-worker/pkg/metrics"
)

// AMQPConfig holds broker topology settings for the task queue.
type AMQPConfig struct {
	URL           string
	Exchange      string
	Queue         string
	RoutingKey    string
	PrefetchCount int
}

// DefaultAMQPConfig returns the task queue topology.
func DefaultAMQPConfig(url string, prefetchCount int) AMQPConfig {
	if prefetchCount <= 0 {
		prefetchCount = 10
	}
	return AMQPConfig{
		URL:           url,
		Exchange:      "task_exchanger",
		Queue:         "task_queue",
		RoutingKey:    "task",
		PrefetchCount: prefetchCount,
	}
}

// DeliveryHandler processes one queue message body. A nil return acks the
// message; an error rejects it without requeue.
type DeliveryHandler interface {
	HandleDelivery(ctx context.Context, body []byte) error
}

// AMQPConsumer consumes task notifications and dispatches each delivery
// to the handler on its own goroutine.
type AMQPConsumer struct {
	logger    *logrus.Logger
	config    AMQPConfig
	handler   DeliveryHandler
	conn      *amqp.Connection
	channel   *amqp.Channel
	connected bool
	connMutex sync.RWMutex
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewAMQPConsumer creates a consumer for the task queue.
func NewAMQPConsumer(logger *logrus.Logger, config AMQPConfig, handler DeliveryHandler) *AMQPConsumer {
	return &AMQPConsumer{
		logger:   logger,
		config:   config,
		handler:  handler,
		stopChan: make(chan struct{}),
	}
}

// Connect establishes the connection, declares the topology and starts
// consuming. Reconnects are handled internally until Disconnect.
func (c *AMQPConsumer) Connect() error {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if c.connected {
		return nil
	}

	if c.config.URL == "" {
		return fmt.Errorf("AMQP URL not configured")
	}

	// Dial with a hard timeout so a dead broker cannot stall startup.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connChan := make(chan struct {
		conn *amqp.Connection
		err  error
	}, 1)

	go func() {
		conn, err := amqp.Dial(c.config.URL)
		select {
		case <-ctx.Done():
			if conn != nil {
				conn.Close()
			}
		case connChan <- struct {
			conn *amqp.Connection
			err  error
		}{conn, err}:
		}
	}()

	var conn *amqp.Connection
	var err error
	select {
	case result := <-connChan:
		conn = result.conn
		err = result.err
	case <-ctx.Done():
		c.countConnectionError("dial_timeout")
		return fmt.Errorf("connection to AMQP server timed out after 5 seconds")
	}
	if err != nil {
		c.countConnectionError("dial")
		return fmt.Errorf("failed to connect to AMQP server: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		c.countConnectionError("channel")
		return fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		c.config.Exchange,
		"direct",
		true,  // Durable
		false, // Auto-delete
		false, // Internal
		false, // No-wait
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare AMQP exchange: %w", err)
	}

	if _, err := channel.QueueDeclare(
		c.config.Queue,
		true,  // Durable
		false, // Delete when unused
		false, // Exclusive
		false, // No-wait
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare AMQP queue: %w", err)
	}

	if err := channel.QueueBind(
		c.config.Queue,
		c.config.RoutingKey,
		c.config.Exchange,
		false,
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to bind AMQP queue: %w", err)
	}

	if err := channel.Qos(c.config.PrefetchCount, 0, false); err != nil {
		c.logger.WithError(err).Warn("Failed to set QoS on AMQP channel, continuing anyway")
	}

	deliveries, err := channel.Consume(
		c.config.Queue,
		"",    // Consumer tag
		false, // Auto-ack
		false, // Exclusive
		false, // No-local
		false, // No-wait
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to start AMQP consumer: %w", err)
	}

	c.conn = conn
	c.channel = channel
	c.connected = true
	c.stopChan = make(chan struct{})

	if metrics.AMQPConnectionStatus != nil {
		metrics.AMQPConnectionStatus.Set(1)
	}

	c.logger.WithFields(logrus.Fields{
		"url":      c.config.URL,
		"exchange": c.config.Exchange,
		"queue":    c.config.Queue,
	}).Info("Connected to AMQP server")

	go c.consumeLoop(deliveries)
	go c.monitorConnection()

	return nil
}

// Disconnect stops consuming and closes the connection. In-flight
// deliveries finish before it returns.
func (c *AMQPConsumer) Disconnect() {
	c.connMutex.Lock()
	if !c.connected {
		c.connMutex.Unlock()
		return
	}

	close(c.stopChan)

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.connected = false
	c.connMutex.Unlock()

	c.wg.Wait()

	if metrics.AMQPConnectionStatus != nil {
		metrics.AMQPConnectionStatus.Set(0)
	}
	c.logger.Info("Disconnected from AMQP server")
}

// IsConnected returns the connection status
func (c *AMQPConsumer) IsConnected() bool {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.connected
}

// consumeLoop drains the deliveries channel. Each message gets its own
// goroutine so a slow recognition call does not block the queue up to
// the prefetch window.
func (c *AMQPConsumer) consumeLoop(deliveries <-chan amqp.Delivery) {
	for delivery := range deliveries {
		c.wg.Add(1)
		go func(delivery amqp.Delivery) {
			defer c.wg.Done()
			c.handleDelivery(delivery)
		}(delivery)
	}
}

func (c *AMQPConsumer) handleDelivery(delivery amqp.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithField("recover", r).Error("Recovered from panic while handling AMQP delivery")
			if err := delivery.Nack(false, false); err != nil {
				c.logger.WithError(err).Error("Failed to nack AMQP delivery after panic")
			}
		}
	}()

	err := c.handler.HandleDelivery(context.Background(), delivery.Body)
	if err != nil {
		c.logger.WithError(err).Error("Failed to process AMQP delivery")
		c.countConsumed("rejected")
		if nackErr := delivery.Nack(false, false); nackErr != nil {
			c.logger.WithError(nackErr).Error("Failed to nack AMQP delivery")
		}
		return
	}

	c.countConsumed("acked")
	if ackErr := delivery.Ack(false); ackErr != nil {
		c.logger.WithError(ackErr).Error("Failed to ack AMQP delivery")
	}
}

// monitorConnection watches for connection loss and reconnects with
// exponential backoff.
func (c *AMQPConsumer) monitorConnection() {
	closeChan := make(chan *amqp.Error)

	// Capture the stop channel once: Connect replaces it under the lock
	// on a successful reconnect, at which point this monitor exits.
	c.connMutex.RLock()
	if c.conn != nil {
		c.conn.NotifyClose(closeChan)
	}
	stop := c.stopChan
	c.connMutex.RUnlock()

	select {
	case <-stop:
		return
	case closeErr := <-closeChan:
		c.connMutex.Lock()
		c.connected = false
		c.connMutex.Unlock()

		if metrics.AMQPConnectionStatus != nil {
			metrics.AMQPConnectionStatus.Set(0)
		}
		c.logger.WithError(closeErr).Warn("AMQP connection closed, attempting to reconnect")

		for attempt := 1; attempt <= 10; attempt++ {
			c.logger.WithField("attempt", attempt).Info("Reconnecting to AMQP server")

			err := c.Connect()
			if err == nil {
				c.countReconnect("success")
				c.logger.Info("Successfully reconnected to AMQP server")
				return
			}

			c.countReconnect("failure")
			c.logger.WithError(err).WithField("attempt", attempt).Error("Failed to reconnect to AMQP server")

			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}

			select {
			case <-stop:
				return
			case <-time.After(backoff):
			}
		}
	}
}

func (c *AMQPConsumer) countConsumed(status string) {
	if metrics.AMQPConsumedMessages != nil {
		metrics.AMQPConsumedMessages.WithLabelValues(c.config.Queue, status).Inc()
	}
}

func (c *AMQPConsumer) countConnectionError(errorType string) {
	if metrics.AMQPConnectionErrors != nil {
		metrics.AMQPConnectionErrors.WithLabelValues(errorType).Inc()
	}
}

func (c *AMQPConsumer) countReconnect(status string) {
	if metrics.AMQPReconnectAttempts != nil {
		metrics.AMQPReconnectAttempts.WithLabelValues(status).Inc()
	}
}
