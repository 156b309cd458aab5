// Package queue publishes broker events to RabbitMQ. Publishing is
// fire-and-forget: callers log failures and carry on, no auth flow waits for
// a delivery confirmation.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Queue names consumed by downstream services. User lifecycle events all go
// to user.all; the event type inside the message distinguishes them.
const (
	QueueMailer    = "mailer"
	QueueAllUsers  = "user.all"
	QueueNewUser   = "user.new"
	QueueResetUser = "user.reset"
)

// Envelope wraps every published message with an id and timestamp so
// consumers can deduplicate.
type Envelope struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Publisher is the interface services publish through.
type Publisher interface {
	Publish(ctx context.Context, queueName string, payload any) error
}

// AMQPPublisher implements Publisher over a shared connection. Queues are
// declared durable on first use; messages are persistent JSON.
type AMQPPublisher struct {
	conn   *amqp.Connection
	node   *snowflake.Node
	logger *zap.Logger

	mu       sync.Mutex
	channel  *amqp.Channel
	declared map[string]bool
}

var _ Publisher = (*AMQPPublisher)(nil)

// Dial connects to the broker at url.
func Dial(url string, node *snowflake.Node, logger *zap.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	return &AMQPPublisher{
		conn:     conn,
		node:     node,
		logger:   logger,
		declared: make(map[string]bool),
	}, nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	return p.conn.Close()
}

// Publish sends payload to the named queue wrapped in an Envelope.
func (p *AMQPPublisher) Publish(ctx context.Context, queueName string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	envelope, err := json.Marshal(Envelope{
		ID:        p.node.Generate().String(),
		Timestamp: time.Now().UTC(),
		Payload:   body,
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	ch, err := p.channelFor(queueName)
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx,
		"",        // default exchange
		queueName, // routing key = queue name
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         envelope,
		},
	)
	if err != nil {
		// Drop the channel so the next publish re-opens it.
		p.mu.Lock()
		p.channel = nil
		p.declared = make(map[string]bool)
		p.mu.Unlock()
		return fmt.Errorf("publish to %s: %w", queueName, err)
	}

	if p.logger != nil {
		p.logger.Debug("queue message published", zap.String("queue", queueName))
	}
	return nil
}

func (p *AMQPPublisher) channelFor(queueName string) (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil {
		ch, err := p.conn.Channel()
		if err != nil {
			return nil, fmt.Errorf("amqp channel: %w", err)
		}
		p.channel = ch
	}

	if !p.declared[queueName] {
		if _, err := p.channel.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
			p.channel = nil
			return nil, fmt.Errorf("declare queue %s: %w", queueName, err)
		}
		p.declared[queueName] = true
	}
	return p.channel, nil
}
