package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rodae/internal/model"
	"rodae/internal/payment/application/ports/out"
	"rodae/internal/payment/domain"
	"rodae/internal/shared/logger"
	"rodae/internal/shared/utils"
)

// finalizeTimeout — время на фиксацию результата перевода, даже если запрос уже отменен
const finalizeTimeout = 10 * time.Second

// PayoutService — движок репассов: создание, первая попытка и reprocess.
// Все попытки идут через один алгоритм attempt.
type PayoutService struct {
	tx        out.TxManager
	payments  out.PaymentRepository
	payouts   out.PayoutRepository
	gateway   out.PayoutGateway
	publisher out.EventPublisher
	notifier  out.PayoutNotifier
	log       *logger.Logger
	now       func() time.Time
}

func NewPayoutService(
	tx out.TxManager,
	payments out.PaymentRepository,
	payouts out.PayoutRepository,
	gateway out.PayoutGateway,
	publisher out.EventPublisher,
	notifier out.PayoutNotifier,
	log *logger.Logger,
) *PayoutService {
	return &PayoutService{
		tx:        tx,
		payments:  payments,
		payouts:   payouts,
		gateway:   gateway,
		publisher: publisher,
		notifier:  notifier,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateAndProcess создает репасс для (payment, driver) и сразу делает первую попытку.
// Если репасс уже есть, он возвращается без изменений.
func (s *PayoutService) CreateAndProcess(ctx context.Context, payment *domain.Payment, driverID string) (*domain.Payout, error) {
	if payment == nil {
		return nil, domain.ErrPaymentNotFound
	}
	if driverID == "" {
		return nil, domain.ErrDriverRequired
	}
	if !payment.IsPaid() {
		return nil, domain.ErrPaymentNotPaid
	}

	var (
		payout  *domain.Payout
		created bool
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		// блокировка платежа сериализует создание с возвратом
		locked, err := s.payments.FindByIDForUpdate(ctx, payment.ID)
		if err != nil {
			return err
		}
		if !locked.IsPaid() {
			return domain.ErrPaymentNotPaid
		}

		existing, err := s.payouts.FindByPaymentAndDriver(ctx, locked.ID, driverID)
		if err == nil {
			payout = existing
			return nil
		}
		if !errors.Is(err, domain.ErrPayoutNotFound) {
			return err
		}

		payout = domain.NewPayout(utils.NewUUID(), locked.ID, driverID, locked.Amount, s.now())
		if err := s.payouts.Create(ctx, payout); err != nil {
			return err
		}
		created = true
		return nil
	})
	if errors.Is(err, domain.ErrDuplicatePayout) {
		// параллельный запрос успел создать репасс первым
		return s.payouts.FindByPaymentAndDriver(ctx, payment.ID, driverID)
	}
	if err != nil {
		s.log.Error(logger.Entry{
			Action:    "payout_create_failed",
			Message:   err.Error(),
			RideID:    payment.RideID,
			PaymentID: payment.ID,
			Error:     &logger.ErrObj{Msg: err.Error()},
			Additional: map[string]any{
				"driver_id": driverID,
			},
		})
		return nil, err
	}

	if !created {
		s.log.Info(logger.Entry{
			Action:    "payout_already_exists",
			Message:   "returning existing payout",
			PaymentID: payment.ID,
			PayoutID:  payout.ID,
			Additional: map[string]any{
				"status": payout.Status,
			},
		})
		return payout, nil
	}

	s.log.Info(logger.Entry{
		Action:    "payout_created",
		Message:   fmt.Sprintf("driver %s, platform %s", payout.DriverAmount.StringFixed(2), payout.PlatformAmount.StringFixed(2)),
		RideID:    payment.RideID,
		PaymentID: payment.ID,
		PayoutID:  payout.ID,
		Additional: map[string]any{
			"driver_id":    driverID,
			"total_amount": payout.TotalAmount.StringFixed(2),
		},
	})

	return s.attempt(ctx, payout.ID)
}

// Reprocess повторяет перевод для PENDING/FAILED репасса
func (s *PayoutService) Reprocess(ctx context.Context, payoutID string) (*domain.Payout, error) {
	payout, err := s.attempt(ctx, payoutID)
	if err != nil && !errors.Is(err, domain.ErrPayoutFailed) {
		s.log.Warn(logger.Entry{
			Action:   "payout_reprocess_rejected",
			Message:  err.Error(),
			PayoutID: payoutID,
			Error:    &logger.ErrObj{Msg: err.Error()},
		})
	}
	return payout, err
}

// attempt — общий алгоритм попытки:
//  1. в транзакции: блокировка платежа и репасса, проверки, PROCESSING и attempt_count++
//  2. перевод вне транзакции
//  3. в транзакции: COMPLETED или FAILED, если репасс не отменили за время перевода
func (s *PayoutService) attempt(ctx context.Context, payoutID string) (*domain.Payout, error) {
	current, err := s.payouts.FindByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if err := current.CanAttempt(s.now()); err != nil {
		return current, err
	}

	var payout *domain.Payout
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		payment, err := s.payments.FindByIDForUpdate(ctx, current.PaymentID)
		if err != nil {
			return err
		}
		p, err := s.payouts.FindByIDForUpdate(ctx, payoutID)
		if err != nil {
			return err
		}
		if err := p.CanAttempt(s.now()); err != nil {
			return err
		}
		if !payment.IsPaid() {
			return domain.ErrPaymentNotPaid
		}
		p.BeginAttempt(s.now())
		if err := s.payouts.Update(ctx, p); err != nil {
			return err
		}
		payout = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(logger.Entry{
		Action:    "payout_processing",
		Message:   fmt.Sprintf("attempt %d", payout.AttemptCount),
		PaymentID: payout.PaymentID,
		PayoutID:  payout.ID,
	})

	result, transferErr := s.gateway.Transfer(ctx, out.TransferRequest{
		PayoutID: payout.ID,
		DriverID: payout.DriverID,
		Amount:   payout.DriverAmount,
	})

	approved := transferErr == nil && result != nil && result.Approved
	var reason, reference string
	switch {
	case transferErr != nil:
		reason = "transfer error: " + transferErr.Error()
	case result == nil:
		reason = "transfer returned no result"
	case !result.Approved:
		reason = result.Reason
		if reason == "" {
			reason = "transfer declined"
		}
	default:
		reference = result.Reference
	}

	// результат перевода фиксируется даже если клиент ушел
	finCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	var cancelledMeanwhile bool
	err = s.tx.WithinTx(finCtx, func(ctx context.Context) error {
		p, err := s.payouts.FindByIDForUpdate(ctx, payoutID)
		if err != nil {
			return err
		}
		now := s.now()
		switch {
		case p.Status == model.PayoutStatusCancelled:
			cancelledMeanwhile = true
			if approved && reference != "" {
				p.TransferReference = &reference
				p.UpdatedAt = now
			}
		case approved:
			p.Complete(reference, now)
		default:
			p.Fail(reason, now)
		}
		if err := s.payouts.Update(ctx, p); err != nil {
			return err
		}
		payout = p
		return nil
	})
	if err != nil {
		s.log.Error(logger.Entry{
			Action:    "payout_finalize_failed",
			Message:   err.Error(),
			PaymentID: payout.PaymentID,
			PayoutID:  payoutID,
			Error:     &logger.ErrObj{Msg: err.Error()},
			Additional: map[string]any{
				"transfer_approved":  approved,
				"transfer_reference": reference,
			},
		})
		return nil, fmt.Errorf("finalize payout: %w", err)
	}

	switch {
	case cancelledMeanwhile:
		s.log.Warn(logger.Entry{
			Action:    "payout_cancelled_during_transfer",
			Message:   "payout was cancelled by a refund while the transfer was in flight",
			PaymentID: payout.PaymentID,
			PayoutID:  payout.ID,
			Additional: map[string]any{
				"transfer_approved":  approved,
				"transfer_reference": reference,
			},
		})
		return payout, domain.ErrCancelledPayout

	case approved:
		s.log.Info(logger.Entry{
			Action:    "payout_completed",
			Message:   reference,
			PaymentID: payout.PaymentID,
			PayoutID:  payout.ID,
			Additional: map[string]any{
				"driver_id":     payout.DriverID,
				"driver_amount": payout.DriverAmount.StringFixed(2),
				"attempt_count": payout.AttemptCount,
			},
		})
		s.announce(ctx, model.EventPayoutCompleted, payout)
		return payout, nil

	default:
		s.log.Warn(logger.Entry{
			Action:    "payout_failed",
			Message:   reason,
			PaymentID: payout.PaymentID,
			PayoutID:  payout.ID,
			Additional: map[string]any{
				"driver_id":     payout.DriverID,
				"attempt_count": payout.AttemptCount,
			},
		})
		s.announce(ctx, model.EventPayoutFailed, payout)
		return payout, &domain.PayoutFailedError{
			PayoutID: payout.ID,
			Attempt:  payout.AttemptCount,
			Reason:   reason,
		}
	}
}

// announce публикует событие и уведомляет водителя; ошибки только логируются
func (s *PayoutService) announce(ctx context.Context, eventType string, p *domain.Payout) {
	publishPayoutEvent(ctx, s.publisher, s.log, eventType, p, s.now())
	notifyDriver(ctx, s.notifier, s.log, eventType, p)
}
