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
	"rodae/internal/shared/utils"
)

// RegisterPaymentService реализует RegisterPaymentUseCase
type RegisterPaymentService struct {
	rides     out.RideRepository
	payments  out.PaymentRepository
	gateway   out.PaymentGateway
	payouts   in.PayoutProcessingUseCase
	publisher out.EventPublisher
	log       *logger.Logger
	now       func() time.Time
}

func NewRegisterPaymentService(
	rides out.RideRepository,
	payments out.PaymentRepository,
	gateway out.PaymentGateway,
	payouts in.PayoutProcessingUseCase,
	publisher out.EventPublisher,
	log *logger.Logger,
) *RegisterPaymentService {
	return &RegisterPaymentService{
		rides:     rides,
		payments:  payments,
		gateway:   gateway,
		payouts:   payouts,
		publisher: publisher,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Execute списывает оплату за завершенную поездку и сохраняет платеж.
// Отказ шлюза дает FAILED платеж без ошибки; PAID с водителем запускает репасс.
func (s *RegisterPaymentService) Execute(ctx context.Context, input in.RegisterPaymentInput) (*in.RegisterPaymentOutput, error) {
	if !domain.IsValidMethod(input.Method) {
		return nil, domain.ErrInvalidMethod
	}
	if err := domain.ValidateAmount(input.Amount); err != nil {
		return nil, err
	}

	ride, err := s.rides.FindByID(ctx, input.RideID)
	if err != nil {
		if !errors.Is(err, domain.ErrRideNotFound) {
			s.log.Error(logger.Entry{
				Action:  "register_payment_ride_lookup_failed",
				Message: err.Error(),
				RideID:  input.RideID,
				Error:   &logger.ErrObj{Msg: err.Error()},
			})
		}
		return nil, err
	}
	if !ride.IsCompleted() {
		s.log.Warn(logger.Entry{
			Action:     "register_payment_ride_not_completed",
			Message:    "payment requested for a ride that is not completed",
			RideID:     ride.ID,
			Additional: map[string]any{"ride_status": ride.Status},
		})
		return nil, domain.ErrRideNotCompleted
	}

	existing, err := s.payments.FindByRideID(ctx, ride.ID)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicatePayment, existing.ID)
	case !errors.Is(err, domain.ErrPaymentNotFound):
		return nil, err
	}

	charge, err := s.gateway.Charge(ctx, out.ChargeRequest{
		PayerID: ride.PassengerID,
		RideID:  ride.ID,
		Amount:  input.Amount,
		Method:  input.Method,
	})
	if err != nil {
		s.log.Error(logger.Entry{
			Action:  "payment_gateway_unavailable",
			Message: err.Error(),
			RideID:  ride.ID,
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
		if errors.Is(err, domain.ErrGatewayUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}

	now := s.now()
	payment := &domain.Payment{
		ID:        utils.NewUUID(),
		RideID:    ride.ID,
		Amount:    input.Amount,
		Method:    input.Method,
		Status:    model.PaymentStatusFailed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if charge.Approved {
		payment.Status = model.PaymentStatusPaid
		if charge.TransactionID != "" {
			txID := charge.TransactionID
			payment.TransactionID = &txID
		}
	}
	if input.ExternalTransactionID != "" {
		ext := input.ExternalTransactionID
		payment.TransactionID = &ext
	}

	if err := s.payments.Create(ctx, payment); err != nil {
		if charge.Approved && errors.Is(err, domain.ErrDuplicatePayment) {
			// параллельная регистрация успела раньше; списание осталось без платежа
			s.log.Error(logger.Entry{
				Action:    "payment_charge_orphaned",
				Message:   "charge approved but ride already has a payment, manual reversal required",
				RideID:    ride.ID,
				PaymentID: payment.ID,
				Error:     &logger.ErrObj{Msg: err.Error()},
				Additional: map[string]any{
					"transaction_id": charge.TransactionID,
					"amount":         input.Amount.StringFixed(2),
				},
			})
			return nil, err
		}
		s.log.Error(logger.Entry{
			Action:    "payment_persist_failed",
			Message:   err.Error(),
			RideID:    ride.ID,
			PaymentID: payment.ID,
			Error:     &logger.ErrObj{Msg: err.Error()},
			Additional: map[string]any{
				"charge_approved": charge.Approved,
				"transaction_id":  charge.TransactionID,
			},
		})
		return nil, err
	}

	output := &in.RegisterPaymentOutput{
		Payment:     payment,
		PassengerID: ride.PassengerID,
		DriverID:    ride.DriverID,
	}

	if !payment.IsPaid() {
		s.log.Warn(logger.Entry{
			Action:    "payment_declined",
			Message:   charge.Reason,
			RideID:    ride.ID,
			PaymentID: payment.ID,
			Additional: map[string]any{
				"amount": payment.Amount.StringFixed(2),
				"method": payment.Method,
			},
		})
		data := paymentEventData(payment, now)
		data.Reason = charge.Reason
		publishPaymentEvent(ctx, s.publisher, s.log, model.EventPaymentFailed, data)
		return output, nil
	}

	s.log.Info(logger.Entry{
		Action:    "payment_registered",
		Message:   payment.Amount.StringFixed(2),
		RideID:    ride.ID,
		PaymentID: payment.ID,
		Additional: map[string]any{
			"method":         payment.Method,
			"transaction_id": payment.TransactionID,
		},
	})
	publishPaymentEvent(ctx, s.publisher, s.log, model.EventPaymentPaid, paymentEventData(payment, now))

	if !ride.HasDriver() {
		return output, nil
	}

	// платеж уже сохранен как PAID; неудача репасса его не откатывает
	payout, err := s.payouts.CreateAndProcess(ctx, payment, *ride.DriverID)
	output.Payout = payout
	if err != nil {
		output.PayoutError = err.Error()
		s.log.Warn(logger.Entry{
			Action:    "register_payment_payout_failed",
			Message:   err.Error(),
			RideID:    ride.ID,
			PaymentID: payment.ID,
			Error:     &logger.ErrObj{Msg: err.Error()},
		})
	}
	return output, nil
}
