package gateway

import (
	"context"
	"fmt"
	"time"

	"rodae/internal/payment/application/ports/out"
	"rodae/internal/payment/domain"
	"rodae/internal/shared/logger"
	"rodae/internal/shared/utils"
)

// PaymentLookup — откуда симулятор узнает, оплачена ли поездка
type PaymentLookup interface {
	FindByRideID(ctx context.Context, rideID string) (*domain.Payment, error)
}

type SimulatorConfig struct {
	ChargeOutcome   OutcomeProvider
	TransferOutcome OutcomeProvider
	ChargeDelay     time.Duration
	ReversalDelay   time.Duration
	TransferDelay   time.Duration
}

// Simulator имитирует платежный процессор и банковские переводы:
// фиксированная задержка, затем исход от OutcomeProvider.
type Simulator struct {
	cfg      SimulatorConfig
	payments PaymentLookup
	log      *logger.Logger
}

func NewSimulator(cfg SimulatorConfig, payments PaymentLookup, log *logger.Logger) *Simulator {
	if cfg.ChargeOutcome == nil {
		cfg.ChargeOutcome = FixedOutcome(true)
	}
	if cfg.TransferOutcome == nil {
		cfg.TransferOutcome = FixedOutcome(true)
	}
	return &Simulator{cfg: cfg, payments: payments, log: log}
}

// Charge не возвращает ошибку на отказ: отказ — это Approved=false
func (s *Simulator) Charge(ctx context.Context, req out.ChargeRequest) (*out.ChargeResult, error) {
	if err := wait(ctx, s.cfg.ChargeDelay); err != nil {
		return nil, err
	}

	if !s.cfg.ChargeOutcome.Approve() {
		s.log.Debug(logger.Entry{
			Action:  "gateway_charge_declined",
			Message: req.Method,
			RideID:  req.RideID,
		})
		return &out.ChargeResult{Approved: false, Reason: declineReason(req.Method)}, nil
	}

	driver, platform := domain.Split(req.Amount)
	res := &out.ChargeResult{
		Approved:       true,
		TransactionID:  utils.NewTransactionID(),
		DriverAmount:   driver,
		PlatformAmount: platform,
	}
	s.log.Debug(logger.Entry{
		Action:  "gateway_charge_approved",
		Message: res.TransactionID,
		RideID:  req.RideID,
	})
	return res, nil
}

// Reverse работает только для поездки с оплаченным платежом
func (s *Simulator) Reverse(ctx context.Context, rideID string) (*out.ReversalResult, error) {
	if err := wait(ctx, s.cfg.ReversalDelay); err != nil {
		return nil, err
	}

	p, err := s.payments.FindByRideID(ctx, rideID)
	if err != nil {
		return nil, fmt.Errorf("reverse ride %s: %w", rideID, err)
	}
	if !p.IsPaid() {
		return nil, fmt.Errorf("reverse ride %s: %w", rideID, domain.ErrPaymentNotRefundable)
	}

	res := &out.ReversalResult{
		RideID:     rideID,
		ReversalID: "REV-" + utils.NewTransactionID()[4:],
	}
	if p.TransactionID != nil {
		res.TransactionID = *p.TransactionID
	}
	return res, nil
}

// Transfer имитирует банковский перевод репасса водителю
func (s *Simulator) Transfer(ctx context.Context, req out.TransferRequest) (*out.TransferResult, error) {
	if err := wait(ctx, s.cfg.TransferDelay); err != nil {
		return nil, err
	}
	if !s.cfg.TransferOutcome.Approve() {
		return &out.TransferResult{Approved: false, Reason: "bank transfer rejected by receiving institution"}, nil
	}
	return &out.TransferResult{Approved: true, Reference: utils.NewTransferReference()}, nil
}

func declineReason(method string) string {
	switch method {
	case "CREDIT_CARD":
		return "card declined by issuer"
	case "PIX":
		return "pix transfer not authorized"
	default:
		return "wallet payment declined"
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
