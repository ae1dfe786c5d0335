package in

import (
	"context"
	"time"

	"rodae/internal/payment/domain"
)

type ListPayoutsInput struct {
	Status   string
	DriverID string
	From     *time.Time
	To       *time.Time
}

type ListPayoutsOutput struct {
	Payouts []*domain.Payout
	Stats   domain.PayoutStats
}

// ListPayoutsUseCase — только для администратора
type ListPayoutsUseCase interface {
	Execute(ctx context.Context, input ListPayoutsInput) (*ListPayoutsOutput, error)
}
