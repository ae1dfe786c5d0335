package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"rodae/internal/model"
	"rodae/internal/payment/adapters/out/memory"
	"rodae/internal/payment/application/ports/in"
	"rodae/internal/payment/application/ports/out"
	"rodae/internal/payment/domain"
	"rodae/internal/shared/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterPaymentPaidWithDriverCompletesPayout(t *testing.T) {
	h := newHarness(t)
	h.completedRide("ride-42", "pas-1", "drv-7")

	out, err := h.register.Execute(context.Background(), in.RegisterPaymentInput{
		RideID: "ride-42",
		Amount: amount("50.00"),
		Method: model.MethodPix,
	})
	require.NoError(t, err)

	assert.Equal(t, model.PaymentStatusPaid, out.Payment.Status)
	require.NotNil(t, out.Payment.TransactionID)
	assert.Regexp(t, `^TXN-[0-9A-F]{16}$`, *out.Payment.TransactionID)
	assert.Equal(t, "pas-1", out.PassengerID)
	assert.Empty(t, out.PayoutError)

	require.NotNil(t, out.Payout)
	p := h.payout(t, out.Payout.ID)
	assert.Equal(t, model.PayoutStatusCompleted, p.Status)
	assert.Equal(t, "40.00", p.DriverAmount.StringFixed(2))
	assert.Equal(t, "10.00", p.PlatformAmount.StringFixed(2))
	assert.Equal(t, 1, p.AttemptCount)
	require.NotNil(t, p.TransferReference)
	assert.Equal(t, "drv-7", p.DriverID)

	assert.Equal(t, []string{model.EventPaymentPaid, model.EventPayoutCompleted}, h.publisher.Events())
	assert.Equal(t, []string{"payout_completed"}, h.notifier.For("drv-7"))
}

func TestRegisterPaymentDeclined(t *testing.T) {
	h := newHarness(t)
	h.charge.Set(false)
	h.completedRide("ride-43", "pas-1", "drv-7")

	out, err := h.register.Execute(context.Background(), in.RegisterPaymentInput{
		RideID: "ride-43",
		Amount: amount("30.00"),
		Method: model.MethodCreditCard,
	})
	require.NoError(t, err)

	assert.Equal(t, model.PaymentStatusFailed, out.Payment.Status)
	assert.Nil(t, out.Payment.TransactionID)
	assert.Nil(t, out.Payout)

	list, err := h.store.Payouts().List(context.Background(), domain.PayoutFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, []string{model.EventPaymentFailed}, h.publisher.Events())
}

func TestRegisterPaymentWithoutDriverSkipsPayout(t *testing.T) {
	h := newHarness(t)
	h.completedRide("ride-1", "pas-1", "")

	out, err := h.register.Execute(context.Background(), in.RegisterPaymentInput{
		RideID: "ride-1",
		Amount: amount("20.00"),
		Method: model.MethodDigitalWallet,
	})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPaid, out.Payment.Status)
	assert.Nil(t, out.Payout)
}

func TestRegisterPaymentPayoutFailureKeepsPayment(t *testing.T) {
	h := newHarness(t)
	h.transfer.Set(false)
	h.completedRide("ride-1", "pas-1", "drv-1")

	out, err := h.register.Execute(context.Background(), in.RegisterPaymentInput{
		RideID: "ride-1",
		Amount: amount("25.00"),
		Method: model.MethodPix,
	})
	require.NoError(t, err)

	assert.Equal(t, model.PaymentStatusPaid, h.payment(t, out.Payment.ID).Status)
	require.NotNil(t, out.Payout)
	assert.Equal(t, model.PayoutStatusFailed, out.Payout.Status)
	assert.Contains(t, out.PayoutError, "failed on attempt 1")
}

func TestRegisterPaymentExternalTransactionID(t *testing.T) {
	h := newHarness(t)
	h.completedRide("ride-1", "pas-1", "")

	out, err := h.register.Execute(context.Background(), in.RegisterPaymentInput{
		RideID:                "ride-1",
		Amount:                amount("20.00"),
		Method:                model.MethodPix,
		ExternalTransactionID: "PSP-123",
	})
	require.NoError(t, err)
	require.NotNil(t, out.Payment.TransactionID)
	assert.Equal(t, "PSP-123", *out.Payment.TransactionID)
}

func TestRegisterPaymentDuplicate(t *testing.T) {
	h := newHarness(t)
	h.completedRide("ride-1", "pas-1", "drv-1")
	ctx := context.Background()

	first, err := h.register.Execute(ctx, in.RegisterPaymentInput{RideID: "ride-1", Amount: amount("50.00"), Method: model.MethodPix})
	require.NoError(t, err)
	before := h.payment(t, first.Payment.ID)

	_, err = h.register.Execute(ctx, in.RegisterPaymentInput{RideID: "ride-1", Amount: amount("99.00"), Method: model.MethodCreditCard})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDuplicate)
	assert.Contains(t, err.Error(), first.Payment.ID)

	after := h.payment(t, first.Payment.ID)
	assert.Equal(t, before, after)
}

// racingChargeGateway одобряет списание, но перед ответом другой запрос
// успевает сохранить платеж за ту же поездку
type racingChargeGateway struct {
	out.PaymentGateway
	store *memory.Store
}

func (g *racingChargeGateway) Charge(ctx context.Context, req out.ChargeRequest) (*out.ChargeResult, error) {
	now := time.Now().UTC()
	winner := &domain.Payment{
		ID:        "pay-winner",
		RideID:    req.RideID,
		Amount:    req.Amount,
		Method:    req.Method,
		Status:    model.PaymentStatusPaid,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := g.store.Payments().Create(ctx, winner); err != nil {
		return nil, err
	}
	return &out.ChargeResult{Approved: true, TransactionID: "TXN-ORPHAN-0001"}, nil
}

func TestRegisterPaymentLogsOrphanedChargeOnDuplicate(t *testing.T) {
	h := newHarness(t)
	h.completedRide("ride-1", "pas-1", "drv-1")

	var buf bytes.Buffer
	log := logger.New("payment-test", &buf, logger.LevelDebug)
	svc := NewRegisterPaymentService(h.store.Rides(), h.store.Payments(),
		&racingChargeGateway{store: h.store}, h.payouts, h.publisher, log)

	_, err := svc.Execute(context.Background(), in.RegisterPaymentInput{RideID: "ride-1", Amount: amount("50.00"), Method: model.MethodPix})
	assert.ErrorIs(t, err, domain.ErrDuplicatePayment)
	assert.Equal(t, "pay-winner", h.payment(t, "pay-winner").ID)
	assert.Empty(t, h.publisher.Events())

	var orphaned map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		if entry["action"] == "payment_charge_orphaned" {
			orphaned = entry
		}
	}
	require.NotNil(t, orphaned, buf.String())
	assert.Equal(t, "ERROR", orphaned["level"])
	assert.Equal(t, "ride-1", orphaned["ride_id"])
	additional, ok := orphaned["additional"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "TXN-ORPHAN-0001", additional["transaction_id"])
}

func TestRegisterPaymentValidation(t *testing.T) {
	h := newHarness(t)
	h.completedRide("ride-done", "pas-1", "drv-1")
	h.store.PutRide(&domain.Ride{ID: "ride-running", PassengerID: "pas-1", Status: model.RideStatusInProgress})
	ctx := context.Background()

	cases := []struct {
		name  string
		input in.RegisterPaymentInput
		kind  error
	}{
		{"unknown method", in.RegisterPaymentInput{RideID: "ride-done", Amount: amount("10"), Method: "CASH"}, domain.ErrValidation},
		{"zero amount", in.RegisterPaymentInput{RideID: "ride-done", Amount: amount("0"), Method: model.MethodPix}, domain.ErrValidation},
		{"negative amount", in.RegisterPaymentInput{RideID: "ride-done", Amount: amount("-5"), Method: model.MethodPix}, domain.ErrValidation},
		{"sub-cent amount", in.RegisterPaymentInput{RideID: "ride-done", Amount: amount("1.234"), Method: model.MethodPix}, domain.ErrValidation},
		{"missing ride", in.RegisterPaymentInput{RideID: "nope", Amount: amount("10"), Method: model.MethodPix}, domain.ErrNotFound},
		{"ride not completed", in.RegisterPaymentInput{RideID: "ride-running", Amount: amount("10"), Method: model.MethodPix}, domain.ErrInvalidState},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.register.Execute(ctx, tc.input)
			assert.ErrorIs(t, err, tc.kind)
		})
	}

	records, err := h.store.Payments().ListRecords(ctx, domain.PaymentFilter{})
	require.NoError(t, err)
	assert.Empty(t, records, "rejected requests must not persist anything")
	assert.Empty(t, h.publisher.Events())
}
