package in

import (
	"context"

	"rodae/internal/payment/domain"

	"github.com/shopspring/decimal"
)

// RegisterPaymentInput — оплата завершенной поездки
type RegisterPaymentInput struct {
	RideID string
	Amount decimal.Decimal
	Method string // PIX | CREDIT_CARD | DIGITAL_WALLET
	// ExternalTransactionID, если задан, сохраняется вместо id шлюза
	ExternalTransactionID string
}

// RegisterPaymentOutput — сохраненный платеж и, если был запущен, репасс.
// Отказ шлюза — это Payment.Status == FAILED, а не ошибка.
type RegisterPaymentOutput struct {
	Payment     *domain.Payment
	PassengerID string
	DriverID    *string
	Payout      *domain.Payout
	// PayoutError — причина неудачи репасса; платеж при этом остается PAID
	PayoutError string
}

type RegisterPaymentUseCase interface {
	Execute(ctx context.Context, input RegisterPaymentInput) (*RegisterPaymentOutput, error)
}
