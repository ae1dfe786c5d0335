package domain

import (
	"errors"
	"fmt"
)

// Виды ошибок. Конкретные ошибки ниже разворачиваются в один из них,
// поэтому транспорт проверяет только вид: errors.Is(err, ErrNotFound).
var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrDuplicate          = errors.New("duplicate")
	ErrInvalidState       = errors.New("invalid state")
	ErrForbidden          = errors.New("forbidden")
	ErrGatewayDeclined    = errors.New("gateway declined")
	ErrGatewayUnavailable = errors.New("gateway unavailable")
	ErrPayoutFailed       = errors.New("payout failed")
)

var (
	ErrRideNotFound     = kindError(ErrNotFound, "ride not found")
	ErrPaymentNotFound  = kindError(ErrNotFound, "payment not found")
	ErrPayoutNotFound   = kindError(ErrNotFound, "payout not found")
	ErrRideNotCompleted = kindError(ErrInvalidState, "ride is not completed")

	// ErrPaymentNotRefundable — возвращать можно только оплаченные транзакции
	ErrPaymentNotRefundable = kindError(ErrInvalidState, "only paid transactions can be refunded")
	ErrPaymentNotPaid       = kindError(ErrInvalidState, "payment is not paid")
	ErrAlreadyCompleted     = kindError(ErrInvalidState, "payout already completed")
	ErrCancelledPayout      = kindError(ErrInvalidState, "payout is cancelled")
	ErrPayoutInProgress     = kindError(ErrInvalidState, "payout is being processed")

	ErrDuplicatePayment = kindError(ErrDuplicate, "payment already exists for ride")
	ErrDuplicatePayout  = kindError(ErrDuplicate, "payout already exists for payment and driver")

	ErrInvalidMethod         = kindError(ErrValidation, "invalid payment method")
	ErrInvalidAmount         = kindError(ErrValidation, "amount must be positive with at most two decimal places")
	ErrJustificationTooShort = kindError(ErrValidation, "justification must have at least 10 characters")
	ErrRefundExceedsAmount   = kindError(ErrValidation, "refund amount exceeds payment amount")
	ErrDriverRequired        = kindError(ErrValidation, "driver id is required")
	ErrInvalidFilter         = kindError(ErrValidation, "invalid filter")
	ErrNotAParty             = kindError(ErrForbidden, "requester is not a party to this ride")
	ErrRoleNotAllowed        = kindError(ErrForbidden, "role is not allowed")
)

// kindErr — конкретная ошибка с видом
type kindErr struct {
	kind error
	msg  string
}

func kindError(kind error, msg string) error { return &kindErr{kind: kind, msg: msg} }

func (e *kindErr) Error() string { return e.msg }
func (e *kindErr) Unwrap() error { return e.kind }

// PayoutFailedError — попытка перевода не удалась; запись репасса осталась в FAILED
type PayoutFailedError struct {
	PayoutID string
	Attempt  int
	Reason   string
}

func (e *PayoutFailedError) Error() string {
	return fmt.Sprintf("payout %s failed on attempt %d: %s", e.PayoutID, e.Attempt, e.Reason)
}

func (e *PayoutFailedError) Unwrap() error { return ErrPayoutFailed }
