package out

import (
	"context"
	"time"
)

// PaymentEventData — тело события payment.*
type PaymentEventData struct {
	PaymentID     string    `json:"payment_id"`
	RideID        string    `json:"ride_id"`
	Status        string    `json:"status"`
	Amount        string    `json:"amount"`
	Method        string    `json:"method"`
	TransactionID string    `json:"transaction_id,omitempty"`
	RefundAmount  string    `json:"refund_amount,omitempty"`
	RefundKind    string    `json:"refund_kind,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// PayoutEventData — тело события payout.*
type PayoutEventData struct {
	PayoutID       string    `json:"payout_id"`
	PaymentID      string    `json:"payment_id"`
	DriverID       string    `json:"driver_id"`
	Status         string    `json:"status"`
	DriverAmount   string    `json:"driver_amount"`
	PlatformAmount string    `json:"platform_amount"`
	AttemptCount   int       `json:"attempt_count"`
	LastError      string    `json:"last_error,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// EventPublisher публикует доменные события в payment_topic
type EventPublisher interface {
	PublishPaymentEvent(ctx context.Context, eventType string, data PaymentEventData) error
	PublishPayoutEvent(ctx context.Context, eventType string, data PayoutEventData) error
}
