package in

import (
	"context"

	"rodae/internal/payment/domain"
)

type GetPaymentInput struct {
	PaymentID   string
	RequesterID string
	Role        string
}

type GetPaymentUseCase interface {
	Execute(ctx context.Context, input GetPaymentInput) (*domain.PaymentRecord, error)
}
