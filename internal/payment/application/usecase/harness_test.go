package usecase

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"rodae/internal/model"
	"rodae/internal/payment/adapters/out/gateway"
	"rodae/internal/payment/adapters/out/memory"
	"rodae/internal/payment/application/ports/out"
	"rodae/internal/payment/domain"
	"rodae/internal/shared/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// recordingPublisher запоминает типы опубликованных событий
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	fail   error
}

func (p *recordingPublisher) PublishPaymentEvent(_ context.Context, eventType string, _ out.PaymentEventData) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return p.fail
}

func (p *recordingPublisher) PublishPayoutEvent(_ context.Context, eventType string, _ out.PayoutEventData) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return p.fail
}

func (p *recordingPublisher) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent map[string][]string // driver -> типы уведомлений
}

func (n *recordingNotifier) NotifyDriver(_ context.Context, driverID string, msg out.PayoutNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sent == nil {
		n.sent = map[string][]string{}
	}
	n.sent[driverID] = append(n.sent[driverID], msg.Type)
	return nil
}

func (n *recordingNotifier) For(driverID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent[driverID]
}

// harness — сервисы поверх хранилища в памяти и симулятора без задержек
type harness struct {
	store     *memory.Store
	charge    *gateway.SequenceOutcome
	transfer  *gateway.SequenceOutcome
	publisher *recordingPublisher
	notifier  *recordingNotifier

	payouts  *PayoutService
	register *RegisterPaymentService
	refund   *RefundPaymentService
	list     *ListTransactionsService
	get      *GetPaymentService
	report   *ListPayoutsService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logger.New("payment-test", io.Discard, logger.LevelDebug)

	h := &harness{
		store:     memory.NewStore(),
		charge:    gateway.NewSequenceOutcome(true),
		transfer:  gateway.NewSequenceOutcome(true),
		publisher: &recordingPublisher{},
		notifier:  &recordingNotifier{},
	}
	payments, payouts := h.store.Payments(), h.store.Payouts()

	sim := gateway.NewSimulator(gateway.SimulatorConfig{
		ChargeOutcome:   h.charge,
		TransferOutcome: h.transfer,
	}, payments, log)
	gw := gateway.NewResilient(sim, sim, time.Second, 0, log)

	h.payouts = NewPayoutService(h.store, payments, payouts, gw, h.publisher, h.notifier, log)
	h.register = NewRegisterPaymentService(h.store.Rides(), payments, gw, h.payouts, h.publisher, log)
	h.refund = NewRefundPaymentService(h.store, payments, payouts, gw, h.publisher, h.notifier, log)
	h.list = NewListTransactionsService(payments, payouts)
	h.get = NewGetPaymentService(payments, log)
	h.report = NewListPayoutsService(payouts)
	return h
}

// completedRide кладет в хранилище завершенную поездку
func (h *harness) completedRide(rideID, passengerID, driverID string) {
	r := &domain.Ride{ID: rideID, PassengerID: passengerID, Status: model.RideStatusCompleted}
	if driverID != "" {
		r.DriverID = &driverID
	}
	h.store.PutRide(r)
}

func (h *harness) payout(t *testing.T, id string) *domain.Payout {
	t.Helper()
	p, err := h.store.Payouts().FindByID(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (h *harness) payment(t *testing.T, id string) *domain.Payment {
	t.Helper()
	p, err := h.store.Payments().FindByID(context.Background(), id)
	require.NoError(t, err)
	return p
}

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }
