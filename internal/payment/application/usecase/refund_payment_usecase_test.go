package usecase

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"rodae/internal/model"
	"rodae/internal/payment/adapters/out/memory"
	"rodae/internal/payment/application/ports/in"
	"rodae/internal/payment/application/ports/out"
	"rodae/internal/payment/domain"
	"rodae/internal/shared/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRefundCancelsOnlyOpenPayouts(t *testing.T) {
	h := newHarness(t)
	h.completedRide("ride-1", "pas-1", "drv-1")
	ctx := context.Background()

	reg, err := h.register.Execute(ctx, in.RegisterPaymentInput{RideID: "ride-1", Amount: amount("50.00"), Method: model.MethodPix})
	require.NoError(t, err)
	completed := reg.Payout
	require.Equal(t, model.PayoutStatusCompleted, completed.Status)

	pending := domain.NewPayout("po-2", reg.Payment.ID, "drv-2", reg.Payment.Amount, time.Now().UTC())
	require.NoError(t, h.store.Payouts().Create(ctx, pending))

	res, err := h.refund.Execute(ctx, in.RefundPaymentInput{
		PaymentID:     reg.Payment.ID,
		Justification: "Passenger reported driver no-show",
		AdminID:       "adm-1",
	})
	require.NoError(t, err)

	assert.Equal(t, model.PaymentStatusRefunded, res.Payment.Status)
	assert.Equal(t, model.RefundTotal, res.Kind)
	assert.Equal(t, "50.00", res.RefundAmount.StringFixed(2))
	require.Len(t, res.CancelledPayouts, 1)
	assert.Equal(t, "po-2", res.CancelledPayouts[0].ID)

	stored := h.payment(t, reg.Payment.ID)
	assert.Equal(t, model.PaymentStatusRefunded, stored.Status)
	assert.Equal(t, "Passenger reported driver no-show", *stored.RefundJustification)
	assert.Equal(t, "adm-1", *stored.RefundedBy)
	assert.NotNil(t, stored.RefundedAt)

	cancelled := h.payout(t, "po-2")
	assert.Equal(t, model.PayoutStatusCancelled, cancelled.Status)
	assert.Equal(t, "cancelled by refund: Passenger reported driver no-show", *cancelled.LastError)

	untouched := h.payout(t, completed.ID)
	assert.Equal(t, model.PayoutStatusCompleted, untouched.Status)
	assert.Equal(t, completed.CompletedAt, untouched.CompletedAt)

	assert.Contains(t, h.publisher.Events(), model.EventPaymentRefunded)
	assert.Contains(t, h.publisher.Events(), model.EventPayoutCancelled)
	assert.Equal(t, []string{"payout_cancelled"}, h.notifier.For("drv-2"))
}

func TestRefundKindBoundaries(t *testing.T) {
	cases := []struct {
		name   string
		amount *decimal.Decimal
		kind   string
	}{
		{"no amount", nil, model.RefundTotal},
		{"equal amount", ptr(amount("40.00")), model.RefundTotal},
		{"smaller amount", ptr(amount("39.99")), model.RefundPartial},
		{"one cent", ptr(amount("0.01")), model.RefundPartial},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			payment := paidPayment(t, h, "ride-1", "40.00")

			res, err := h.refund.Execute(context.Background(), in.RefundPaymentInput{
				PaymentID:     payment.ID,
				Amount:        tc.amount,
				Justification: "customer complaint about fare",
				AdminID:       "adm-1",
			})
			require.NoError(t, err)
			assert.Equal(t, tc.kind, res.Kind)
			assert.Equal(t, model.PaymentStatusRefunded, res.Payment.Status)
		})
	}
}

func TestRefundAlreadyRefunded(t *testing.T) {
	h := newHarness(t)
	payment := paidPayment(t, h, "ride-1", "40.00")
	ctx := context.Background()

	input := in.RefundPaymentInput{PaymentID: payment.ID, Justification: "first refund reason", AdminID: "adm-1"}
	_, err := h.refund.Execute(ctx, input)
	require.NoError(t, err)
	before := h.payment(t, payment.ID)

	input.Justification = "second refund reason"
	input.AdminID = "adm-2"
	_, err = h.refund.Execute(ctx, input)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, "only paid transactions can be refunded", err.Error())
	assert.Equal(t, before, h.payment(t, payment.ID))
}

func TestRefundFailedPaymentRejected(t *testing.T) {
	h := newHarness(t)
	h.charge.Set(false)
	h.completedRide("ride-1", "pas-1", "")
	reg, err := h.register.Execute(context.Background(), in.RegisterPaymentInput{RideID: "ride-1", Amount: amount("10.00"), Method: model.MethodPix})
	require.NoError(t, err)

	_, err = h.refund.Execute(context.Background(), in.RefundPaymentInput{PaymentID: reg.Payment.ID, Justification: "long enough reason"})
	assert.ErrorIs(t, err, domain.ErrPaymentNotRefundable)
}

// mockPaymentGateway — testify mock шлюза для проверки, что reverse не вызывался
type mockPaymentGateway struct {
	mock.Mock
}

func (m *mockPaymentGateway) Charge(ctx context.Context, req out.ChargeRequest) (*out.ChargeResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*out.ChargeResult)
	return res, args.Error(1)
}

func (m *mockPaymentGateway) Reverse(ctx context.Context, rideID string) (*out.ReversalResult, error) {
	args := m.Called(ctx, rideID)
	res, _ := args.Get(0).(*out.ReversalResult)
	return res, args.Error(1)
}

func newMockedRefund(t *testing.T) (*RefundPaymentService, *mockPaymentGateway, *memory.Store, *domain.Payment) {
	t.Helper()
	store := memory.NewStore()
	now := time.Now().UTC()
	txID := "TXN-0000000000000001"
	payment := &domain.Payment{
		ID:            "pay-1",
		RideID:        "ride-1",
		TransactionID: &txID,
		Amount:        amount("40.00"),
		Method:        model.MethodPix,
		Status:        model.PaymentStatusPaid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, store.Payments().Create(context.Background(), payment))

	gw := &mockPaymentGateway{}
	log := logger.New("payment-test", io.Discard, logger.LevelDebug)
	svc := NewRefundPaymentService(store, store.Payments(), store.Payouts(), gw, &recordingPublisher{}, &recordingNotifier{}, log)
	return svc, gw, store, payment
}

func TestRefundValidationNeverCallsGateway(t *testing.T) {
	cases := []struct {
		name  string
		input in.RefundPaymentInput
		err   error
	}{
		{"exceeds amount", in.RefundPaymentInput{Amount: ptr(amount("40.01")), Justification: "reason long enough"}, domain.ErrRefundExceedsAmount},
		{"short justification", in.RefundPaymentInput{Justification: "too short"}, domain.ErrJustificationTooShort},
		{"blank justification", in.RefundPaymentInput{Justification: "             "}, domain.ErrJustificationTooShort},
		{"zero amount", in.RefundPaymentInput{Amount: ptr(amount("0")), Justification: "reason long enough"}, domain.ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, gw, store, payment := newMockedRefund(t)
			tc.input.PaymentID = payment.ID

			_, err := svc.Execute(context.Background(), tc.input)
			assert.ErrorIs(t, err, tc.err)
			assert.ErrorIs(t, err, domain.ErrValidation)

			gw.AssertNotCalled(t, "Reverse", mock.Anything, mock.Anything)
			stored, err := store.Payments().FindByID(context.Background(), payment.ID)
			require.NoError(t, err)
			assert.Equal(t, model.PaymentStatusPaid, stored.Status)
		})
	}
}

func TestRefundGatewayFailureLeavesPaymentPaid(t *testing.T) {
	svc, gw, store, payment := newMockedRefund(t)
	gw.On("Reverse", mock.Anything, "ride-1").Return(nil, errors.New("connection reset")).Once()

	_, err := svc.Execute(context.Background(), in.RefundPaymentInput{
		PaymentID:     payment.ID,
		Justification: "reason long enough",
		AdminID:       "adm-1",
	})
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	gw.AssertExpectations(t)

	stored, err := store.Payments().FindByID(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPaid, stored.Status)
	assert.Nil(t, stored.RefundJustification)
}

func TestRefundUnknownPayment(t *testing.T) {
	svc, gw, _, _ := newMockedRefund(t)

	_, err := svc.Execute(context.Background(), in.RefundPaymentInput{PaymentID: "nope", Justification: "reason long enough"})
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
	gw.AssertNotCalled(t, "Reverse", mock.Anything, mock.Anything)
}

func TestConcurrentRefundsReverseOnce(t *testing.T) {
	svc, gw, store, payment := newMockedRefund(t)
	gw.On("Reverse", mock.Anything, "ride-1").
		Return(&out.ReversalResult{ReversalID: "REV-1"}, nil).
		After(50 * time.Millisecond)

	start := make(chan struct{})
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = svc.Execute(context.Background(), in.RefundPaymentInput{
				PaymentID:     payment.ID,
				Justification: "passenger was charged twice",
				AdminID:       "adm-1",
			})
		}()
	}
	close(start)
	wg.Wait()

	gw.AssertNumberOfCalls(t, "Reverse", 1)

	var ok, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrPaymentNotRefundable):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, rejected)

	stored, err := store.Payments().FindByID(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusRefunded, stored.Status)
}

// refundFirstTx возвращает оплату другим админом до того, как отдать блокировку
type refundFirstTx struct {
	store *memory.Store
	id    string
}

func (r *refundFirstTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.store.WithinTx(ctx, func(ctx context.Context) error {
		p, err := r.store.Payments().FindByIDForUpdate(ctx, r.id)
		if err != nil {
			return err
		}
		if p.IsPaid() {
			if err := p.MarkRefunded("refunded by another admin", "adm-2", time.Now().UTC()); err != nil {
				return err
			}
			if err := r.store.Payments().UpdateRefund(ctx, p); err != nil {
				return err
			}
		}
		return fn(ctx)
	})
}

func TestRefundRechecksStatusUnderLock(t *testing.T) {
	_, gw, store, payment := newMockedRefund(t)
	log := logger.New("payment-test", io.Discard, logger.LevelDebug)
	svc := NewRefundPaymentService(&refundFirstTx{store: store, id: payment.ID},
		store.Payments(), store.Payouts(), gw, &recordingPublisher{}, &recordingNotifier{}, log)

	_, err := svc.Execute(context.Background(), in.RefundPaymentInput{
		PaymentID:     payment.ID,
		Justification: "passenger was charged twice",
		AdminID:       "adm-1",
	})
	assert.ErrorIs(t, err, domain.ErrPaymentNotRefundable)
	gw.AssertNotCalled(t, "Reverse", mock.Anything, mock.Anything)
}

func ptr[T any](v T) *T { return &v }
