package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/squigly/coach-api/internal/config"
	"github.com/squigly/coach-api/pkg/logger"
)

const (
	confirmTimeout = 5 * time.Second
	// confirmBuffer holds late confirmations until the next publish drains them.
	confirmBuffer = 16
)

// AMQPPublisher publishes events with publisher confirms.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	confirms chan amqp.Confirmation
	exchange string
	mu       sync.Mutex
}

// NewAMQPPublisher dials the broker and declares the durable topic exchange.
func NewAMQPPublisher(cfg *config.RabbitMQConfig) (*AMQPPublisher, error) {
	connURL := fmt.Sprintf("amqp://%s:%s@%s:%d/", cfg.User, cfg.Password, cfg.Host, cfg.Port)

	conn, err := amqp.Dial(connURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	logger.L().Info("Connected to RabbitMQ", zap.String("exchange", cfg.Exchange))

	return &AMQPPublisher{
		conn:     conn,
		channel:  ch,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, confirmBuffer)),
		exchange: cfg.Exchange,
	}, nil
}

// Publish sends one event and waits for the broker ack. Publishes are
// serialized so each confirmation matches its message.
func (p *AMQPPublisher) Publish(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil || p.channel.IsClosed() {
		return errors.New("channel is not open")
	}

	tag := p.channel.GetNextPublishSeqNo()
	err = p.channel.PublishWithContext(ctx, p.exchange, event.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.OccurredAt,
		MessageId:    event.ID.String(),
		Type:         event.Type,
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	if err := awaitConfirm(ctx, p.confirms, tag, confirmTimeout); err != nil {
		return err
	}

	logger.L().Debug("Published event",
		zap.String("eventId", event.ID.String()),
		zap.String("type", event.Type),
	)
	return nil
}

// awaitConfirm waits for the broker's answer to delivery tag. Confirmations
// for earlier tags belong to publishes that stopped waiting and are dropped.
func awaitConfirm(ctx context.Context, confirms <-chan amqp.Confirmation, tag uint64, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case confirm, ok := <-confirms:
			if !ok {
				return errors.New("confirmation channel closed")
			}
			if confirm.DeliveryTag < tag {
				logger.L().Debug("Discarding stale publish confirmation", zap.Uint64("deliveryTag", confirm.DeliveryTag))
				continue
			}
			if confirm.DeliveryTag != tag {
				return fmt.Errorf("confirmation for delivery tag %d while waiting for %d", confirm.DeliveryTag, tag)
			}
			if !confirm.Ack {
				return errors.New("message was not acknowledged by broker")
			}
			return nil
		case <-timer.C:
			return errors.New("timeout waiting for publish confirmation")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close closes the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IsHealthy reports whether the connection is still open.
func (p *AMQPPublisher) IsHealthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil && !p.conn.IsClosed() && p.channel != nil && !p.channel.IsClosed()
}

// NewPublisher returns an AMQP publisher when RabbitMQ is enabled and a
// NopPublisher otherwise.
func NewPublisher(cfg *config.RabbitMQConfig) (Publisher, error) {
	if cfg == nil || !cfg.Enabled {
		return NopPublisher{}, nil
	}
	pub, err := NewAMQPPublisher(cfg)
	if err != nil {
		return nil, err
	}
	return pub, nil
}
