package out

import (
	"context"

	"github.com/shopspring/decimal"
)

// ChargeRequest — списание с плательщика за поездку
type ChargeRequest struct {
	PayerID string
	RideID  string
	Amount  decimal.Decimal
	Method  string
}

// ChargeResult — итог списания. Отказ — это Approved=false, а не ошибка.
type ChargeResult struct {
	Approved      bool
	TransactionID string
	Reason        string
	// справочно: разбивка 80/20
	DriverAmount   decimal.Decimal
	PlatformAmount decimal.Decimal
}

type ReversalResult struct {
	RideID        string
	TransactionID string
	ReversalID    string
}

// PaymentGateway — внешний платежный процессор.
// Ошибка означает недоступность или сбой транспорта, а не отказ.
type PaymentGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	// Reverse возвращает деньги по оплаченной поездке; ошибка, если платеж не PAID
	Reverse(ctx context.Context, rideID string) (*ReversalResult, error)
}

type TransferRequest struct {
	PayoutID string
	DriverID string
	Amount   decimal.Decimal
}

// TransferResult — итог банковского перевода водителю
type TransferResult struct {
	Approved  bool
	Reference string
	Reason    string
}

// PayoutGateway — банковская интеграция репасса
type PayoutGateway interface {
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
}
