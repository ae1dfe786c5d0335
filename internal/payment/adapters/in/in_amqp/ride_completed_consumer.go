package in_amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"rodae/internal/model"
	"rodae/internal/payment/application/ports/in"
	"rodae/internal/payment/domain"
	"rodae/internal/shared/logger"
	"rodae/internal/shared/mq"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
)

// RideCompletedEvent — тело ride.completed, как его публикует ride service
type RideCompletedEvent struct {
	RideID         string         `json:"ride_id"`
	PassengerID    string         `json:"passenger_id"`
	DriverID       *string        `json:"driver_id,omitempty"`
	Status         string         `json:"status"`
	VehicleType    string         `json:"vehicle_type"`
	AdditionalData map[string]any `json:"additional_data,omitempty"`
}

// Source — откуда читаются сообщения (mq.RabbitMQ)
type Source interface {
	Consume(ctx context.Context, queue, consumer string, handler mq.Handler) error
}

// RideSnapshots сохраняет поездку до регистрации платежа
type RideSnapshots interface {
	UpsertSnapshot(ctx context.Context, ride *domain.Ride) error
}

// RideCompletedConsumer регистрирует оплату по событию завершения поездки
type RideCompletedConsumer struct {
	source    Source
	snapshots RideSnapshots
	register  in.RegisterPaymentUseCase
	log       *logger.Logger
}

// NewRideCompletedConsumer: snapshots может быть nil, если таблицу rides ведет ride service
func NewRideCompletedConsumer(source Source, snapshots RideSnapshots, register in.RegisterPaymentUseCase, log *logger.Logger) *RideCompletedConsumer {
	return &RideCompletedConsumer{
		source:    source,
		snapshots: snapshots,
		register:  register,
		log:       log,
	}
}

func (c *RideCompletedConsumer) Start(ctx context.Context) error {
	c.log.Info(logger.Entry{
		Action:  "ride_completed_consumer_starting",
		Message: mq.RideCompletedQueue,
	})
	return c.source.Consume(ctx, mq.RideCompletedQueue, "payment-service", c.Handle)
}

// Handle: ack после обработки (в том числе дубликат и отказ шлюза),
// requeue при временной ошибке, reject для сообщений, которые не разобрать.
func (c *RideCompletedConsumer) Handle(ctx context.Context, msg amqp.Delivery) {
	event, input, err := ParseRideCompleted(msg.Body)
	if err != nil {
		c.log.Error(logger.Entry{
			Action:  "ride_completed_invalid_message",
			Message: err.Error(),
			RideID:  event.RideID,
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
		_ = msg.Reject(false)
		return
	}

	if c.snapshots != nil {
		ride := &domain.Ride{
			ID:          event.RideID,
			PassengerID: event.PassengerID,
			DriverID:    event.DriverID,
			Status:      event.Status,
		}
		if err := c.snapshots.UpsertSnapshot(ctx, ride); err != nil {
			c.log.Error(logger.Entry{
				Action:  "ride_snapshot_failed",
				Message: err.Error(),
				RideID:  event.RideID,
				Error:   &logger.ErrObj{Msg: err.Error()},
			})
			if errors.Is(err, domain.ErrValidation) {
				_ = msg.Reject(false)
				return
			}
			_ = msg.Nack(false, true)
			return
		}
	}

	output, err := c.register.Execute(ctx, input)
	switch {
	case err == nil:
		c.log.Info(logger.Entry{
			Action:    "ride_completed_payment_registered",
			Message:   output.Payment.Status,
			RideID:    event.RideID,
			PaymentID: output.Payment.ID,
		})
		_ = msg.Ack(false)
	case errors.Is(err, domain.ErrDuplicate):
		c.log.Info(logger.Entry{
			Action:  "ride_completed_already_paid",
			Message: err.Error(),
			RideID:  event.RideID,
		})
		_ = msg.Ack(false)
	case errors.Is(err, domain.ErrGatewayUnavailable):
		c.log.Warn(logger.Entry{
			Action:  "ride_completed_requeued",
			Message: err.Error(),
			RideID:  event.RideID,
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
		_ = msg.Nack(false, true)
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrNotFound):
		c.log.Error(logger.Entry{
			Action:  "ride_completed_rejected",
			Message: err.Error(),
			RideID:  event.RideID,
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
		_ = msg.Reject(false)
	default:
		c.log.Error(logger.Entry{
			Action:  "ride_completed_processing_failed",
			Message: err.Error(),
			RideID:  event.RideID,
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
		_ = msg.Nack(false, true)
	}
}

// ParseRideCompleted разбирает событие; сумма — additional_data.final_fare,
// метод — additional_data.payment_method (по умолчанию PIX).
func ParseRideCompleted(body []byte) (RideCompletedEvent, in.RegisterPaymentInput, error) {
	var event RideCompletedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return event, in.RegisterPaymentInput{}, fmt.Errorf("unmarshal ride event: %w", err)
	}
	if event.RideID == "" {
		return event, in.RegisterPaymentInput{}, errors.New("ride_id is required")
	}
	if event.Status == "" {
		event.Status = model.RideStatusCompleted
	}

	fare, err := fareFrom(event.AdditionalData["final_fare"])
	if err != nil {
		return event, in.RegisterPaymentInput{}, err
	}

	method := model.MethodPix
	if m, ok := event.AdditionalData["payment_method"].(string); ok && m != "" {
		method = m
	}
	txID, _ := event.AdditionalData["transaction_id"].(string)

	return event, in.RegisterPaymentInput{
		RideID:                event.RideID,
		Amount:                fare,
		Method:                method,
		ExternalTransactionID: txID,
	}, nil
}

func fareFrom(v any) (decimal.Decimal, error) {
	switch f := v.(type) {
	case float64:
		return decimal.NewFromFloat(f).Round(2), nil
	case string:
		return domain.ParseAmount(f)
	case nil:
		return decimal.Decimal{}, errors.New("additional_data.final_fare is required")
	default:
		return decimal.Decimal{}, fmt.Errorf("unexpected final_fare type %T", v)
	}
}
