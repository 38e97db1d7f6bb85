package pipeline

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"callai-worker/pkg/metrics"
)

// Publisher re-enqueues task notifications, used by the reprocess path.
type Publisher struct {
	logger    *logrus.Logger
	config    AMQPConfig
	conn      *amqp.Connection
	channel   *amqp.Channel
	connected bool
	connMutex sync.Mutex
}

// NewPublisher creates a publisher for the task exchange.
func NewPublisher(logger *logrus.Logger, config AMQPConfig) *Publisher {
	return &Publisher{
		logger: logger,
		config: config,
	}
}

// Connect establishes the publishing connection. The exchange is assumed
// declared by the consumer side.
func (p *Publisher) Connect() error {
	p.connMutex.Lock()
	defer p.connMutex.Unlock()
	return p.connectLocked()
}

func (p *Publisher) connectLocked() error {
	if p.connected {
		return nil
	}

	conn, err := amqp.Dial(p.config.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to AMQP server: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	p.conn = conn
	p.channel = channel
	p.connected = true
	return nil
}

// Disconnect closes the publishing connection.
func (p *Publisher) Disconnect() {
	p.connMutex.Lock()
	defer p.connMutex.Unlock()

	if !p.connected {
		return
	}
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
	p.connected = false
}

// taskMessageBody encodes a task id the way HandleDelivery decodes it.
func taskMessageBody(taskID uuid.UUID) ([]byte, error) {
	body, err := json.Marshal(taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task id: %w", err)
	}
	return body, nil
}

// PublishTask sends a task id to the task exchange. The body is the
// JSON-encoded task id, matching what the consumer decodes.
func (p *Publisher) PublishTask(taskID uuid.UUID) error {
	body, err := taskMessageBody(taskID)
	if err != nil {
		return err
	}

	p.connMutex.Lock()
	defer p.connMutex.Unlock()

	if err := p.connectLocked(); err != nil {
		p.countPublished("failure")
		return err
	}

	err = p.channel.Publish(
		p.config.Exchange,
		p.config.RoutingKey,
		false, // Mandatory
		false, // Immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		// Connection may be stale, drop it so the next publish redials.
		p.channel.Close()
		p.conn.Close()
		p.connected = false

		p.countPublished("failure")
		return fmt.Errorf("failed to publish task %s: %w", taskID, err)
	}

	p.countPublished("success")
	p.logger.WithField("task_id", taskID).Debug("Published task notification")
	return nil
}

func (p *Publisher) countPublished(status string) {
	if metrics.AMQPPublishedMessages != nil {
		metrics.AMQPPublishedMessages.WithLabelValues(p.config.Queue, status).Inc()
	}
}
