package in

import (
	"context"

	"rodae/internal/payment/domain"

	"github.com/shopspring/decimal"
)

type RefundPaymentInput struct {
	PaymentID string
	// Amount == nil — полный возврат
	Amount        *decimal.Decimal
	Justification string
	AdminID       string
}

type RefundPaymentOutput struct {
	Payment          *domain.Payment
	RefundAmount     decimal.Decimal
	Kind             string // PARTIAL | TOTAL
	CancelledPayouts []*domain.Payout
}

type RefundPaymentUseCase interface {
	Execute(ctx context.Context, input RefundPaymentInput) (*RefundPaymentOutput, error)
}
