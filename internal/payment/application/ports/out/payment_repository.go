package out

import (
	"context"

	"rodae/internal/payment/domain"
)

// PaymentRepository — хранилище платежей.
// Методы *ForUpdate блокируют строку и должны вызываться внутри TxManager.WithinTx.
type PaymentRepository interface {
	// Create сохраняет платеж; второй платеж на ту же поездку — domain.ErrDuplicatePayment
	Create(ctx context.Context, p *domain.Payment) error

	FindByID(ctx context.Context, id string) (*domain.Payment, error)
	FindByIDForUpdate(ctx context.Context, id string) (*domain.Payment, error)
	FindByRideID(ctx context.Context, rideID string) (*domain.Payment, error)

	// UpdateRefund сохраняет статус и аудит возврата
	UpdateRefund(ctx context.Context, p *domain.Payment) error

	// FindRecordByID возвращает платеж вместе с участниками поездки
	FindRecordByID(ctx context.Context, id string) (*domain.PaymentRecord, error)
	ListRecords(ctx context.Context, f domain.PaymentFilter) ([]*domain.PaymentRecord, error)
}
