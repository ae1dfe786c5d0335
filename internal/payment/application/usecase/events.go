package usecase

import (
	"context"
	"time"

	"rodae/internal/model"
	"rodae/internal/payment/application/ports/out"
	"rodae/internal/payment/domain"
	"rodae/internal/shared/logger"
)

// Публикация и уведомления не откатывают уже сохраненное состояние:
// ошибки пишутся в лог и не возвращаются вызывающему.

func publishPaymentEvent(ctx context.Context, pub out.EventPublisher, log *logger.Logger, eventType string, data out.PaymentEventData) {
	if err := pub.PublishPaymentEvent(ctx, eventType, data); err != nil {
		log.Error(logger.Entry{
			Action:    "publish_payment_event_failed",
			Message:   err.Error(),
			RideID:    data.RideID,
			PaymentID: data.PaymentID,
			Error:     &logger.ErrObj{Msg: err.Error()},
			Additional: map[string]any{
				"event_type": eventType,
			},
		})
	}
}

func paymentEventData(p *domain.Payment, at time.Time) out.PaymentEventData {
	data := out.PaymentEventData{
		PaymentID:  p.ID,
		RideID:     p.RideID,
		Status:     p.Status,
		Amount:     p.Amount.StringFixed(2),
		Method:     p.Method,
		OccurredAt: at,
	}
	if p.TransactionID != nil {
		data.TransactionID = *p.TransactionID
	}
	return data
}

func publishPayoutEvent(ctx context.Context, pub out.EventPublisher, log *logger.Logger, eventType string, p *domain.Payout, at time.Time) {
	data := out.PayoutEventData{
		PayoutID:       p.ID,
		PaymentID:      p.PaymentID,
		DriverID:       p.DriverID,
		Status:         p.Status,
		DriverAmount:   p.DriverAmount.StringFixed(2),
		PlatformAmount: p.PlatformAmount.StringFixed(2),
		AttemptCount:   p.AttemptCount,
		OccurredAt:     at,
	}
	if p.LastError != nil {
		data.LastError = *p.LastError
	}
	if err := pub.PublishPayoutEvent(ctx, eventType, data); err != nil {
		log.Error(logger.Entry{
			Action:    "publish_payout_event_failed",
			Message:   err.Error(),
			PaymentID: p.PaymentID,
			PayoutID:  p.ID,
			Error:     &logger.ErrObj{Msg: err.Error()},
			Additional: map[string]any{
				"event_type": eventType,
			},
		})
	}
}

func notifyDriver(ctx context.Context, notifier out.PayoutNotifier, log *logger.Logger, eventType string, p *domain.Payout) {
	n := out.PayoutNotification{
		PayoutID: p.ID,
		Data: map[string]any{
			"payment_id":    p.PaymentID,
			"driver_amount": p.DriverAmount.StringFixed(2),
			"status":        p.Status,
			"attempt_count": p.AttemptCount,
		},
	}
	switch eventType {
	case model.EventPayoutCompleted:
		n.Type = "payout_completed"
		n.Message = "Your payout has been transferred"
	case model.EventPayoutFailed:
		n.Type = "payout_failed"
		n.Message = "Your payout transfer failed and will be retried by support"
	case model.EventPayoutCancelled:
		n.Type = "payout_cancelled"
		n.Message = "Your payout was cancelled because the ride payment was refunded"
	default:
		return
	}

	if err := notifier.NotifyDriver(ctx, p.DriverID, n); err != nil {
		log.Warn(logger.Entry{
			Action:   "notify_driver_failed",
			Message:  err.Error(),
			PayoutID: p.ID,
			Error:    &logger.ErrObj{Msg: err.Error()},
			Additional: map[string]any{
				"driver_id": p.DriverID,
			},
		})
	}
}
