package model

// ==== Roles ====
const (
	RolePassenger = "PASSENGER"
	RoleDriver    = "DRIVER"
	RoleAdmin     = "ADMIN"
)

// ==== Ride Status ====
// Платежный сервис читает только статус поездки, остальные статусы принадлежат ride service.
const (
	RideStatusInProgress = "IN_PROGRESS"
	RideStatusCompleted  = "COMPLETED"
	RideStatusCancelled  = "CANCELLED"
)

// ==== Payment Method ====
const (
	MethodPix           = "PIX"
	MethodCreditCard    = "CREDIT_CARD"
	MethodDigitalWallet = "DIGITAL_WALLET"
)

// ==== Payment Status ====
const (
	PaymentStatusPending  = "PENDING"
	PaymentStatusPaid     = "PAID"
	PaymentStatusFailed   = "FAILED"
	PaymentStatusRefunded = "REFUNDED"
)

// ==== Payout (repasse) Status ====
const (
	PayoutStatusPending    = "PENDING"
	PayoutStatusProcessing = "PROCESSING"
	PayoutStatusCompleted  = "COMPLETED"
	PayoutStatusFailed     = "FAILED"
	PayoutStatusCancelled  = "CANCELLED"
)

// ==== Refund Kind ====
const (
	RefundPartial = "PARTIAL"
	RefundTotal   = "TOTAL"
)

// ==== Payment Event Type ====
const (
	EventPaymentPaid     = "PAYMENT_PAID"
	EventPaymentFailed   = "PAYMENT_FAILED"
	EventPaymentRefunded = "PAYMENT_REFUNDED"
	EventPayoutCompleted = "PAYOUT_COMPLETED"
	EventPayoutFailed    = "PAYOUT_FAILED"
	EventPayoutCancelled = "PAYOUT_CANCELLED"
)

// ==== Exchanges ====
const (
	ExchangeRideTopic    = "ride_topic"
	ExchangePaymentTopic = "payment_topic"
)
