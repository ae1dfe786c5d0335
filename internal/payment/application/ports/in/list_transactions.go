package in

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type ListTransactionsInput struct {
	RequesterID string
	Role        string
	Status      string
	RideID      string
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
}

// TransactionView — строка истории с проекцией по роли.
// Водитель видит PayoutAmount/PayoutStatus вместо полей платежа.
type TransactionView struct {
	PaymentID string
	RideID    string
	Status    string
	CreatedAt time.Time

	Amount              *decimal.Decimal
	Method              string
	TransactionID       *string
	RefundJustification *string
	PassengerID         string
	DriverID            *string

	PayoutAmount *decimal.Decimal
	PayoutStatus *string
}

type ListTransactionsUseCase interface {
	Execute(ctx context.Context, input ListTransactionsInput) ([]TransactionView, error)
}
