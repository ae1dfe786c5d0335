package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rodae/internal/payment/application/ports/out"
	"rodae/internal/payment/domain"
	"rodae/internal/shared/logger"
)

// Resilient оборачивает шлюзы таймаутом на вызов и бюджетом повторов
// для транспортных сбоев. Бизнес-ошибки и отказы не повторяются.
type Resilient struct {
	payments   out.PaymentGateway
	payouts    out.PayoutGateway
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	log        *logger.Logger
}

func NewResilient(payments out.PaymentGateway, payouts out.PayoutGateway, timeout time.Duration, maxRetries int, log *logger.Logger) *Resilient {
	return &Resilient{
		payments:   payments,
		payouts:    payouts,
		timeout:    timeout,
		maxRetries: maxRetries,
		backoff:    200 * time.Millisecond,
		log:        log,
	}
}

func (r *Resilient) Charge(ctx context.Context, req out.ChargeRequest) (*out.ChargeResult, error) {
	var res *out.ChargeResult
	err := r.call(ctx, "charge", func(ctx context.Context) (err error) {
		res, err = r.payments.Charge(ctx, req)
		return err
	})
	return res, err
}

func (r *Resilient) Reverse(ctx context.Context, rideID string) (*out.ReversalResult, error) {
	var res *out.ReversalResult
	err := r.call(ctx, "reverse", func(ctx context.Context) (err error) {
		res, err = r.payments.Reverse(ctx, rideID)
		return err
	})
	return res, err
}

func (r *Resilient) Transfer(ctx context.Context, req out.TransferRequest) (*out.TransferResult, error) {
	var res *out.TransferResult
	err := r.call(ctx, "transfer", func(ctx context.Context) (err error) {
		res, err = r.payouts.Transfer(ctx, req)
		return err
	})
	return res, err
}

func (r *Resilient) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var (
		lastErr  error
		attempts int
	)
	delay := r.backoff
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			r.log.Warn(logger.Entry{
				Action:  "gateway_call_retry",
				Message: lastErr.Error(),
				Additional: map[string]any{
					"operation": op,
					"attempt":   attempt + 1,
				},
			})
			if err := wait(ctx, delay); err != nil {
				return fmt.Errorf("%w: %s: %v", domain.ErrGatewayUnavailable, op, err)
			}
			delay *= 2
		}

		attempts++
		callCtx, cancel := r.withTimeout(ctx)
		err := fn(callCtx)
		cancel()
		if err == nil || isPermanent(err) {
			return err
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("%w: %s failed after %d attempts: %v", domain.ErrGatewayUnavailable, op, attempts, lastErr)
}

func (r *Resilient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// isPermanent — ошибки состояния платежа: повтор не изменит ответ
func isPermanent(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrInvalidState) ||
		errors.Is(err, domain.ErrValidation)
}
