package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"rodae/internal/model"

	"github.com/shopspring/decimal"
)

// MinJustificationLength — минимальная длина обоснования возврата (в символах)
const MinJustificationLength = 10

// Payment — оплата поездки. Не более одной на поездку.
type Payment struct {
	ID                  string          `json:"id" db:"id"`
	RideID              string          `json:"ride_id" db:"ride_id"`
	TransactionID       *string         `json:"transaction_id,omitempty" db:"transaction_id"`
	Amount              decimal.Decimal `json:"amount" db:"amount"`
	Method              string          `json:"method" db:"method"`
	Status              string          `json:"status" db:"status"`
	RefundJustification *string         `json:"refund_justification,omitempty" db:"refund_justification"`
	RefundedBy          *string         `json:"refunded_by,omitempty" db:"refunded_by"`
	RefundedAt          *time.Time      `json:"refunded_at,omitempty" db:"refunded_at"`
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at" db:"updated_at"`
}

func IsValidMethod(method string) bool {
	switch method {
	case model.MethodPix, model.MethodCreditCard, model.MethodDigitalWallet:
		return true
	}
	return false
}

func (p *Payment) IsPaid() bool {
	return p.Status == model.PaymentStatusPaid
}

// MarkRefunded — единственный переход после PAID
func (p *Payment) MarkRefunded(justification, adminID string, at time.Time) error {
	if !p.IsPaid() {
		return ErrPaymentNotRefundable
	}
	p.Status = model.PaymentStatusRefunded
	p.RefundJustification = &justification
	if adminID != "" {
		p.RefundedBy = &adminID
	}
	p.RefundedAt = &at
	p.UpdatedAt = at
	return nil
}

// ValidateJustification обрезает пробелы и проверяет длину в символах
func ValidateJustification(s string) (string, error) {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) < MinJustificationLength {
		return "", ErrJustificationTooShort
	}
	return s, nil
}

// RefundKind — PARTIAL, если сумма меньше оплаты, иначе TOTAL
func RefundKind(payment, refund decimal.Decimal) string {
	if refund.LessThan(payment) {
		return model.RefundPartial
	}
	return model.RefundTotal
}

// PaymentRecord — платеж вместе с участниками поездки
type PaymentRecord struct {
	Payment
	PassengerID string  `json:"passenger_id"`
	DriverID    *string `json:"driver_id,omitempty"`
}

func (r *PaymentRecord) IsParty(userID string) bool {
	ride := Ride{PassengerID: r.PassengerID, DriverID: r.DriverID}
	return ride.IsParty(userID)
}

// PaymentFilter — фильтры выборки платежей; пустые поля не ограничивают
type PaymentFilter struct {
	Status      string
	RideID      string
	PassengerID string
	DriverID    string
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
}

func IsValidPaymentStatus(s string) bool {
	switch s {
	case model.PaymentStatusPending, model.PaymentStatusPaid, model.PaymentStatusFailed, model.PaymentStatusRefunded:
		return true
	}
	return false
}

// Validate проверяет статус и порядок дат
func (f PaymentFilter) Validate() error {
	if f.Status != "" && !IsValidPaymentStatus(f.Status) {
		return fmt.Errorf("%w: unknown payment status %q", ErrInvalidFilter, f.Status)
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return fmt.Errorf("%w: from is after to", ErrInvalidFilter)
	}
	return nil
}

// Match используется хранилищем в памяти
func (f PaymentFilter) Match(r *PaymentRecord) bool {
	switch {
	case f.Status != "" && r.Status != f.Status:
		return false
	case f.RideID != "" && r.RideID != f.RideID:
		return false
	case f.PassengerID != "" && r.PassengerID != f.PassengerID:
		return false
	case f.DriverID != "" && (r.DriverID == nil || *r.DriverID != f.DriverID):
		return false
	}
	return inRange(r.CreatedAt, f.From, f.To)
}

func inRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && t.After(*to) {
		return false
	}
	return true
}
