package transport

import (
	"time"

	"rodae/internal/payment/application/ports/in"
	"rodae/internal/payment/domain"

	"github.com/shopspring/decimal"
)

// Суммы в ответах — строки с двумя знаками: "40.00"

type RegisterPaymentRequest struct {
	RideID        string          `json:"ride_id"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method"`
	TransactionID string          `json:"transaction_id,omitempty"`
}

type RefundRequest struct {
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Justification string           `json:"justification"`
}

type PaymentResponse struct {
	ID                  string     `json:"id"`
	RideID              string     `json:"ride_id"`
	TransactionID       *string    `json:"transaction_id"`
	Amount              string     `json:"amount"`
	Method              string     `json:"method"`
	Status              string     `json:"status"`
	RefundJustification *string    `json:"refund_justification,omitempty"`
	RefundedBy          *string    `json:"refunded_by,omitempty"`
	RefundedAt          *time.Time `json:"refunded_at,omitempty"`
	PassengerID         string     `json:"passenger_id,omitempty"`
	DriverID            *string    `json:"driver_id,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

type PayoutResponse struct {
	ID                string     `json:"id"`
	PaymentID         string     `json:"payment_id"`
	DriverID          string     `json:"driver_id"`
	TotalAmount       string     `json:"total_amount"`
	DriverAmount      string     `json:"driver_amount"`
	PlatformAmount    string     `json:"platform_amount"`
	Status            string     `json:"status"`
	AttemptCount      int        `json:"attempt_count"`
	LastError         *string    `json:"last_error,omitempty"`
	TransferReference *string    `json:"transfer_reference,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

type RegisterPaymentResponse struct {
	Payment     PaymentResponse `json:"payment"`
	Payout      *PayoutResponse `json:"payout,omitempty"`
	PayoutError string          `json:"payout_error,omitempty"`
}

type RefundResponse struct {
	Payment          PaymentResponse  `json:"payment"`
	RefundAmount     string           `json:"refund_amount"`
	RefundKind       string           `json:"refund_kind"`
	CancelledPayouts []PayoutResponse `json:"cancelled_payouts"`
}

type TransactionResponse struct {
	PaymentID           string    `json:"payment_id"`
	RideID              string    `json:"ride_id"`
	Status              string    `json:"status"`
	CreatedAt           time.Time `json:"created_at"`
	Amount              *string   `json:"amount,omitempty"`
	Method              string    `json:"method,omitempty"`
	TransactionID       *string   `json:"transaction_id,omitempty"`
	RefundJustification *string   `json:"refund_justification,omitempty"`
	PassengerID         string    `json:"passenger_id,omitempty"`
	DriverID            *string   `json:"driver_id,omitempty"`
	PayoutAmount        *string   `json:"payout_amount,omitempty"`
	PayoutStatus        *string   `json:"payout_status,omitempty"`
}

type StatsResponse struct {
	Total                   int            `json:"total"`
	CountByStatus           map[string]int `json:"count_by_status"`
	CompletedDriverAmount   string         `json:"completed_driver_amount"`
	CompletedPlatformAmount string         `json:"completed_platform_amount"`
}

type PayoutListResponse struct {
	Payouts []PayoutResponse `json:"payouts"`
	Stats   StatsResponse    `json:"stats"`
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func moneyPtr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := money(*d)
	return &s
}

func toPaymentResponse(p *domain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:                  p.ID,
		RideID:              p.RideID,
		TransactionID:       p.TransactionID,
		Amount:              money(p.Amount),
		Method:              p.Method,
		Status:              p.Status,
		RefundJustification: p.RefundJustification,
		RefundedBy:          p.RefundedBy,
		RefundedAt:          p.RefundedAt,
		CreatedAt:           p.CreatedAt,
	}
}

func toRecordResponse(r *domain.PaymentRecord) PaymentResponse {
	resp := toPaymentResponse(&r.Payment)
	resp.PassengerID = r.PassengerID
	resp.DriverID = r.DriverID
	return resp
}

func toPayoutResponse(p *domain.Payout) PayoutResponse {
	return PayoutResponse{
		ID:                p.ID,
		PaymentID:         p.PaymentID,
		DriverID:          p.DriverID,
		TotalAmount:       money(p.TotalAmount),
		DriverAmount:      money(p.DriverAmount),
		PlatformAmount:    money(p.PlatformAmount),
		Status:            p.Status,
		AttemptCount:      p.AttemptCount,
		LastError:         p.LastError,
		TransferReference: p.TransferReference,
		CompletedAt:       p.CompletedAt,
		CreatedAt:         p.CreatedAt,
	}
}

func toPayoutResponses(list []*domain.Payout) []PayoutResponse {
	out := make([]PayoutResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toPayoutResponse(p))
	}
	return out
}

func toTransactionResponse(v in.TransactionView) TransactionResponse {
	return TransactionResponse{
		PaymentID:           v.PaymentID,
		RideID:              v.RideID,
		Status:              v.Status,
		CreatedAt:           v.CreatedAt,
		Amount:              moneyPtr(v.Amount),
		Method:              v.Method,
		TransactionID:       v.TransactionID,
		RefundJustification: v.RefundJustification,
		PassengerID:         v.PassengerID,
		DriverID:            v.DriverID,
		PayoutAmount:        moneyPtr(v.PayoutAmount),
		PayoutStatus:        v.PayoutStatus,
	}
}

func toStatsResponse(s domain.PayoutStats) StatsResponse {
	return StatsResponse{
		Total:                   s.Total,
		CountByStatus:           s.CountByStatus,
		CompletedDriverAmount:   money(s.CompletedDriverSum),
		CompletedPlatformAmount: money(s.CompletedPlatformSum),
	}
}
