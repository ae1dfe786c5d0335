package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"rodae/internal/shared/config"
	"rodae/internal/shared/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

var ErrChannelUnavailable = errors.New("rabbitmq channel not available")

// Handler обрабатывает одно сообщение; ack/nack — ответственность обработчика
type Handler func(ctx context.Context, msg amqp.Delivery)

// RabbitMQ — подключение с одним каналом на публикацию и чтение
type RabbitMQ struct {
	url    string
	conn   *amqp.Connection
	ch     *amqp.Channel
	log    *logger.Logger
	mu     sync.RWMutex
	closed bool
}

// NewRabbitMQ подключается с повторами и растущей задержкой (до 30с)
func NewRabbitMQ(ctx context.Context, cfg config.MQConfig, log *logger.Logger) (*RabbitMQ, error) {
	r := &RabbitMQ{url: cfg.AMQPURL(), log: log}

	const maxAttempts = 10
	delay := time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if lastErr = r.connect(); lastErr == nil {
			log.Info(logger.Entry{
				Action:     "rabbitmq_connected",
				Message:    fmt.Sprintf("connected to %s:%d", cfg.Host, cfg.Port),
				Additional: map[string]any{"attempt": attempt},
			})
			return r, nil
		}

		log.Warn(logger.Entry{
			Action:  "rabbitmq_connection_attempt_failed",
			Message: lastErr.Error(),
			Error:   &logger.ErrObj{Msg: lastErr.Error()},
			Additional: map[string]any{
				"attempt":      attempt,
				"max_attempts": maxAttempts,
				"retry_in_sec": delay.Seconds(),
			},
		})
		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = min(time.Duration(float64(delay)*1.5), 30*time.Second)
	}

	return nil, fmt.Errorf("connect rabbitmq after %d attempts: %w", maxAttempts, lastErr)
}

func (r *RabbitMQ) connect() error {
	conn, err := amqp.Dial(r.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Qos(10, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("set qos: %w", err)
	}

	r.mu.Lock()
	r.conn, r.ch = conn, ch
	r.mu.Unlock()
	return nil
}

func (r *RabbitMQ) Channel() *amqp.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ch
}

// Publish публикует persistent JSON-сообщение с таймаутом 5с
func (r *RabbitMQ) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	ch := r.Channel()
	if ch == nil {
		return ErrChannelUnavailable
	}

	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return ch.PublishWithContext(publishCtx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
	})
}

// Consume запускает чтение очереди в отдельной горутине (manual ack)
func (r *RabbitMQ) Consume(ctx context.Context, queue, consumer string, handler Handler) error {
	ch := r.Channel()
	if ch == nil {
		return ErrChannelUnavailable
	}

	msgs, err := ch.Consume(queue, consumer, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming %s: %w", queue, err)
	}

	r.log.Info(logger.Entry{
		Action:  "consumer_started",
		Message: fmt.Sprintf("consuming from queue: %s", queue),
	})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					r.log.Info(logger.Entry{Action: "consumer_stopped", Message: queue})
					return
				}
				handler(ctx, msg)
			}
		}
	}()
	return nil
}

func (r *RabbitMQ) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true

	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		_ = r.conn.Close()
	}
	r.log.Info(logger.Entry{Action: "rabbitmq_closed", Message: "connection closed"})
}
