package out_ws

import (
	"context"
	"fmt"

	"rodae/internal/payment/application/ports/out"
	"rodae/internal/shared/logger"
)

// Sender — доставка JSON пользователю; реализуется ws.Hub
type Sender interface {
	SendToUserJSON(userID string, data any) (int, error)
}

// PayoutNotifier отправляет водителю уведомления о репассах через WebSocket
type PayoutNotifier struct {
	hub Sender
	log *logger.Logger
}

func NewPayoutNotifier(hub Sender, log *logger.Logger) *PayoutNotifier {
	return &PayoutNotifier{hub: hub, log: log}
}

// NotifyDriver не считает ошибкой отсутствие подключения водителя
func (n *PayoutNotifier) NotifyDriver(ctx context.Context, driverID string, msg out.PayoutNotification) error {
	delivered, err := n.hub.SendToUserJSON(driverID, msg)
	if err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	if delivered == 0 {
		n.log.Debug(logger.Entry{
			Action:   "driver_not_connected",
			Message:  msg.Type,
			PayoutID: msg.PayoutID,
			Additional: map[string]any{
				"driver_id": driverID,
			},
		})
	}
	return nil
}
