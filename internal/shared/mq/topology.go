package mq

import (
	"context"
	"fmt"

	"rodae/internal/model"
	"rodae/internal/shared/logger"
)

// Очереди платежного домена; имя очереди совпадает с routing key
var PaymentQueues = []string{
	"payment.paid",
	"payment.failed",
	"payment.refunded",
	"payout.completed",
	"payout.failed",
	"payout.cancelled",
}

// RideCompletedQueue — собственная очередь платежного сервиса на ride.completed
const (
	RideCompletedQueue      = "payment_service_ride_completed"
	RideCompletedRoutingKey = "ride.completed"
)

// SetupTopology объявляет exchanges, очереди и привязки платежного сервиса
func SetupTopology(ctx context.Context, r *RabbitMQ, log *logger.Logger) error {
	ch := r.Channel()
	if ch == nil {
		return ErrChannelUnavailable
	}

	for _, ex := range []string{model.ExchangeRideTopic, model.ExchangePaymentTopic} {
		if err := ch.ExchangeDeclare(ex, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare %s: %w", ex, err)
		}
	}

	for _, q := range PaymentQueues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
		if err := ch.QueueBind(q, q, model.ExchangePaymentTopic, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", q, err)
		}
	}

	if _, err := ch.QueueDeclare(RideCompletedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", RideCompletedQueue, err)
	}
	if err := ch.QueueBind(RideCompletedQueue, RideCompletedRoutingKey, model.ExchangeRideTopic, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", RideCompletedQueue, err)
	}

	log.Info(logger.Entry{
		Action:  "topology_setup_complete",
		Message: "payment exchanges and queues declared",
	})
	return nil
}
