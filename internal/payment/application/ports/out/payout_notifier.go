package out

import "context"

// PayoutNotification — сообщение водителю о судьбе его репасса
type PayoutNotification struct {
	Type     string         `json:"type"` // payout_completed | payout_failed | payout_cancelled
	PayoutID string         `json:"payout_id"`
	Message  string         `json:"message"`
	Data     map[string]any `json:"data,omitempty"`
}

type PayoutNotifier interface {
	NotifyDriver(ctx context.Context, driverID string, n PayoutNotification) error
}
