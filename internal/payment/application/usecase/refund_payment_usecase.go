package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rodae/internal/model"
	"rodae/internal/payment/application/ports/in"
	"rodae/internal/payment/application/ports/out"
	"rodae/internal/payment/domain"
	"rodae/internal/shared/logger"

	"github.com/shopspring/decimal"
)

// RefundPaymentService реализует RefundPaymentUseCase
type RefundPaymentService struct {
	tx        out.TxManager
	payments  out.PaymentRepository
	payouts   out.PayoutRepository
	gateway   out.PaymentGateway
	publisher out.EventPublisher
	notifier  out.PayoutNotifier
	log       *logger.Logger
	now       func() time.Time
}

func NewRefundPaymentService(
	tx out.TxManager,
	payments out.PaymentRepository,
	payouts out.PayoutRepository,
	gateway out.PaymentGateway,
	publisher out.EventPublisher,
	notifier out.PayoutNotifier,
	log *logger.Logger,
) *RefundPaymentService {
	return &RefundPaymentService{
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

// Execute возвращает оплату. Быстрые проверки идут без блокировки, затем в одной
// транзакции: блокировка строки, повторная проверка PAID, reverse в шлюзе,
// REFUNDED и отмена открытых репассов. Конкурентный возврат ждет на блокировке
// и до шлюза не доходит.
func (s *RefundPaymentService) Execute(ctx context.Context, input in.RefundPaymentInput) (*in.RefundPaymentOutput, error) {
	justification, err := domain.ValidateJustification(input.Justification)
	if err != nil {
		return nil, err
	}
	if input.Amount != nil {
		if err := domain.ValidateAmount(*input.Amount); err != nil {
			return nil, err
		}
	}

	payment, err := s.payments.FindByID(ctx, input.PaymentID)
	if err != nil {
		return nil, err
	}
	if err := s.checkRefundable(payment); err != nil {
		return nil, err
	}
	refundAmount, err := resolveRefundAmount(payment, input.Amount)
	if err != nil {
		return nil, err
	}

	var (
		reversal  *out.ReversalResult
		cancelled []*domain.Payout
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		cancelled = nil
		locked, err := s.payments.FindByIDForUpdate(ctx, payment.ID)
		if err != nil {
			return err
		}
		// строку могли вернуть, пока ждали блокировку
		if err := s.checkRefundable(locked); err != nil {
			return err
		}
		if refundAmount, err = resolveRefundAmount(locked, input.Amount); err != nil {
			return err
		}

		reversal, err = s.gateway.Reverse(ctx, locked.RideID)
		if err != nil {
			s.log.Error(logger.Entry{
				Action:    "refund_reversal_failed",
				Message:   err.Error(),
				RideID:    locked.RideID,
				PaymentID: locked.ID,
				Error:     &logger.ErrObj{Msg: err.Error()},
			})
			if isBusinessError(err) {
				return err
			}
			return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
		}

		now := s.now()
		if err := locked.MarkRefunded(justification, input.AdminID, now); err != nil {
			return err
		}
		if err := s.payments.UpdateRefund(ctx, locked); err != nil {
			return err
		}

		open, err := s.payouts.ListOpenByPaymentForUpdate(ctx, locked.ID)
		if err != nil {
			return err
		}
		note := domain.CancellationNote(justification)
		for _, p := range open {
			if !p.Cancel(note, now) {
				continue
			}
			if err := s.payouts.Update(ctx, p); err != nil {
				return err
			}
			cancelled = append(cancelled, p)
		}
		payment = locked
		return nil
	})
	if err != nil {
		if reversal != nil {
			s.log.Error(logger.Entry{
				Action:    "refund_persist_failed",
				Message:   err.Error(),
				RideID:    payment.RideID,
				PaymentID: payment.ID,
				Error:     &logger.ErrObj{Msg: err.Error()},
				Additional: map[string]any{
					"reversal_id": reversal.ReversalID,
				},
			})
		}
		return nil, err
	}
	kind := domain.RefundKind(payment.Amount, refundAmount)

	plog := s.log.WithPayment(payment.RideID, payment.ID)
	plog.Info(logger.Entry{
		Action:  "refund_completed",
		Message: fmt.Sprintf("%s refund of %s", kind, refundAmount.StringFixed(2)),
		Additional: map[string]any{
			"admin_id":          input.AdminID,
			"reversal_id":       reversal.ReversalID,
			"cancelled_payouts": len(cancelled),
		},
	})

	now := s.now()
	data := paymentEventData(payment, now)
	data.RefundAmount = refundAmount.StringFixed(2)
	data.RefundKind = kind
	data.Reason = justification
	publishPaymentEvent(ctx, s.publisher, s.log, model.EventPaymentRefunded, data)

	for _, p := range cancelled {
		plog.Info(logger.Entry{
			Action:   "payout_cancelled",
			Message:  "cancelled by refund",
			PayoutID: p.ID,
		})
		publishPayoutEvent(ctx, s.publisher, s.log, model.EventPayoutCancelled, p, now)
		notifyDriver(ctx, s.notifier, s.log, model.EventPayoutCancelled, p)
	}

	return &in.RefundPaymentOutput{
		Payment:          payment,
		RefundAmount:     refundAmount,
		Kind:             kind,
		CancelledPayouts: cancelled,
	}, nil
}

func (s *RefundPaymentService) checkRefundable(payment *domain.Payment) error {
	if payment.IsPaid() {
		return nil
	}
	s.log.Warn(logger.Entry{
		Action:     "refund_rejected_invalid_state",
		Message:    domain.ErrPaymentNotRefundable.Error(),
		RideID:     payment.RideID,
		PaymentID:  payment.ID,
		Additional: map[string]any{"status": payment.Status},
	})
	return domain.ErrPaymentNotRefundable
}

// resolveRefundAmount — без суммы возвращается вся оплата
func resolveRefundAmount(payment *domain.Payment, requested *decimal.Decimal) (decimal.Decimal, error) {
	if requested == nil {
		return payment.Amount, nil
	}
	if requested.GreaterThan(payment.Amount) {
		return decimal.Zero, fmt.Errorf("%w: %s > %s", domain.ErrRefundExceedsAmount,
			requested.StringFixed(2), payment.Amount.StringFixed(2))
	}
	return *requested, nil
}

// isBusinessError — ошибка, которую шлюз вернул по состоянию платежа, а не по сбою
func isBusinessError(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrInvalidState) ||
		errors.Is(err, domain.ErrValidation)
}
