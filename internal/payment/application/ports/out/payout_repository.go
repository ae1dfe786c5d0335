package out

import (
	"context"

	"rodae/internal/payment/domain"
)

// PayoutRepository — хранилище репассов
type PayoutRepository interface {
	// Create сохраняет репасс; дубликат (payment, driver) — domain.ErrDuplicatePayout
	Create(ctx context.Context, p *domain.Payout) error

	FindByID(ctx context.Context, id string) (*domain.Payout, error)
	FindByIDForUpdate(ctx context.Context, id string) (*domain.Payout, error)
	FindByPaymentAndDriver(ctx context.Context, paymentID, driverID string) (*domain.Payout, error)

	// Update сохраняет статус, счетчик попыток, ошибку и ссылку перевода
	Update(ctx context.Context, p *domain.Payout) error

	// ListOpenByPaymentForUpdate — PENDING/PROCESSING репассы платежа под блокировкой
	ListOpenByPaymentForUpdate(ctx context.Context, paymentID string) ([]*domain.Payout, error)

	List(ctx context.Context, f domain.PayoutFilter) ([]*domain.Payout, error)
}
