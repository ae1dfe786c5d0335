package out_ws

import (
	"context"
	"errors"
	"io"
	"testing"

	"rodae/internal/payment/application/ports/out"
	"rodae/internal/shared/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	delivered int
	err       error
	to        []string
}

func (s *fakeSender) SendToUserJSON(userID string, _ any) (int, error) {
	s.to = append(s.to, userID)
	return s.delivered, s.err
}

func TestNotifyDriver(t *testing.T) {
	log := logger.New("test", io.Discard, logger.LevelDebug)
	msg := out.PayoutNotification{Type: "payout_completed", PayoutID: "po-1"}

	connected := &fakeSender{delivered: 1}
	require.NoError(t, NewPayoutNotifier(connected, log).NotifyDriver(context.Background(), "drv-1", msg))
	assert.Equal(t, []string{"drv-1"}, connected.to)

	offline := &fakeSender{}
	assert.NoError(t, NewPayoutNotifier(offline, log).NotifyDriver(context.Background(), "drv-1", msg))

	broken := &fakeSender{err: errors.New("json: unsupported type")}
	err := NewPayoutNotifier(broken, log).NotifyDriver(context.Background(), "drv-1", msg)
	assert.ErrorContains(t, err, "payout_completed")
}
