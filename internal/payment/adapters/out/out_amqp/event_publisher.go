package out_amqp

import (
	"context"
	"encoding/json"
	"fmt"

	"rodae/internal/model"
	"rodae/internal/payment/application/ports/out"
	"rodae/internal/shared/logger"
)

// Broker — то, что нужно publisher'у от mq.RabbitMQ
type Broker interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
}

// envelope — общий формат сообщений payment_topic
type envelope struct {
	EventType string `json:"event_type"`
	Data      any    `json:"data"`
}

// PaymentEventPublisher публикует события платежей и репассов в payment_topic
type PaymentEventPublisher struct {
	broker Broker
	log    *logger.Logger
}

func NewPaymentEventPublisher(broker Broker, log *logger.Logger) *PaymentEventPublisher {
	return &PaymentEventPublisher{broker: broker, log: log}
}

func (p *PaymentEventPublisher) PublishPaymentEvent(ctx context.Context, eventType string, data out.PaymentEventData) error {
	return p.publish(ctx, eventType, data, logger.Entry{RideID: data.RideID, PaymentID: data.PaymentID})
}

func (p *PaymentEventPublisher) PublishPayoutEvent(ctx context.Context, eventType string, data out.PayoutEventData) error {
	return p.publish(ctx, eventType, data, logger.Entry{PaymentID: data.PaymentID, PayoutID: data.PayoutID})
}

func (p *PaymentEventPublisher) publish(ctx context.Context, eventType string, data any, ids logger.Entry) error {
	routingKey, err := RoutingKey(eventType)
	if err != nil {
		return err
	}
	body, err := json.Marshal(envelope{EventType: eventType, Data: data})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}

	if err := p.broker.Publish(ctx, model.ExchangePaymentTopic, routingKey, body); err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	ids.Action = "payment_event_published"
	ids.Message = eventType
	ids.Additional = map[string]any{"routing_key": routingKey}
	p.log.Debug(ids)
	return nil
}

// RoutingKey сопоставляет тип события и routing key в payment_topic
func RoutingKey(eventType string) (string, error) {
	switch eventType {
	case model.EventPaymentPaid:
		return "payment.paid", nil
	case model.EventPaymentFailed:
		return "payment.failed", nil
	case model.EventPaymentRefunded:
		return "payment.refunded", nil
	case model.EventPayoutCompleted:
		return "payout.completed", nil
	case model.EventPayoutFailed:
		return "payout.failed", nil
	case model.EventPayoutCancelled:
		return "payout.cancelled", nil
	}
	return "", fmt.Errorf("unknown payment event type %q", eventType)
}

// NopPublisher используется, когда messaging выключен в конфигурации
type NopPublisher struct{}

func (NopPublisher) PublishPaymentEvent(context.Context, string, out.PaymentEventData) error {
	return nil
}

func (NopPublisher) PublishPayoutEvent(context.Context, string, out.PayoutEventData) error {
	return nil
}
