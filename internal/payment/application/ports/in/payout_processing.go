package in

import (
	"context"

	"rodae/internal/payment/domain"
)

// PayoutProcessingUseCase — создание и повторная обработка репассов.
// Неудачный перевод возвращает *domain.PayoutFailedError вместе с репассом в FAILED.
type PayoutProcessingUseCase interface {
	CreateAndProcess(ctx context.Context, payment *domain.Payment, driverID string) (*domain.Payout, error)
	Reprocess(ctx context.Context, payoutID string) (*domain.Payout, error)
}
