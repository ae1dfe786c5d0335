package memory

import (
	"context"
	"slices"
	"sync"

	"rodae/internal/payment/domain"
)

// Store — хранилище в памяти для локального запуска (storage: memory) и тестов.
// Повторяет ограничения схемы: UNIQUE(ride_id) и UNIQUE(payment_id, driver_id).
// Транзакции выполняются строго по одной; ошибка в fn откатывает только записи,
// которые изменила сама транзакция.
type Store struct {
	mu       sync.Mutex
	rides    map[string]domain.Ride
	payments map[string]domain.Payment
	payouts  map[string]domain.Payout

	txMu sync.Mutex
}

func NewStore() *Store {
	return &Store{
		rides:    map[string]domain.Ride{},
		payments: map[string]domain.Payment{},
		payouts:  map[string]domain.Payout{},
	}
}

type txKey struct{}

// undoLog хранит исходные версии записей, тронутых транзакцией; nil — записи не было
type undoLog struct {
	payments map[string]*domain.Payment
	payouts  map[string]*domain.Payout
}

func undoFrom(ctx context.Context) *undoLog {
	u, _ := ctx.Value(txKey{}).(*undoLog)
	return u
}

// WithinTx реализует out.TxManager
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if undoFrom(ctx) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	u := &undoLog{
		payments: map[string]*domain.Payment{},
		payouts:  map[string]*domain.Payout{},
	}
	if err := fn(context.WithValue(ctx, txKey{}, u)); err != nil {
		s.rollback(u)
		return err
	}
	return nil
}

func (s *Store) rollback(u *undoLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, orig := range u.payments {
		if orig == nil {
			delete(s.payments, id)
			continue
		}
		s.payments[id] = *orig
	}
	for id, orig := range u.payouts {
		if orig == nil {
			delete(s.payouts, id)
			continue
		}
		s.payouts[id] = *orig
	}
}

// touchPayment и touchPayout вызываются под s.mu перед записью;
// запоминается только первая версия
func (s *Store) touchPayment(ctx context.Context, id string) {
	u := undoFrom(ctx)
	if u == nil {
		return
	}
	if _, seen := u.payments[id]; seen {
		return
	}
	if cur, ok := s.payments[id]; ok {
		u.payments[id] = clonePayment(cur)
	} else {
		u.payments[id] = nil
	}
}

func (s *Store) touchPayout(ctx context.Context, id string) {
	u := undoFrom(ctx)
	if u == nil {
		return
	}
	if _, seen := u.payouts[id]; seen {
		return
	}
	if cur, ok := s.payouts[id]; ok {
		u.payouts[id] = clonePayout(cur)
	} else {
		u.payouts[id] = nil
	}
}

// PutRide сохраняет снимок поездки (поездками владеет ride service)
func (s *Store) PutRide(r *domain.Ride) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rides[r.ID] = cloneRide(*r)
}

func (s *Store) Rides() *RideRepository       { return &RideRepository{s: s} }
func (s *Store) Payments() *PaymentRepository { return &PaymentRepository{s: s} }
func (s *Store) Payouts() *PayoutRepository   { return &PayoutRepository{s: s} }

type RideRepository struct{ s *Store }

func (r *RideRepository) FindByID(_ context.Context, rideID string) (*domain.Ride, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ride, ok := r.s.rides[rideID]
	if !ok {
		return nil, domain.ErrRideNotFound
	}
	out := cloneRide(ride)
	return &out, nil
}

// UpsertSnapshot сохраняет поездку из события ride.completed
func (r *RideRepository) UpsertSnapshot(_ context.Context, ride *domain.Ride) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	next := cloneRide(*ride)
	if cur, ok := r.s.rides[ride.ID]; ok && next.DriverID == nil {
		next.DriverID = cur.DriverID
	}
	r.s.rides[ride.ID] = next
	return nil
}

// clone* копируют указатели, чтобы вызывающий не менял данные хранилища

func cloneRide(r domain.Ride) domain.Ride {
	r.DriverID = clonePtr(r.DriverID)
	return r
}

func clonePayment(p domain.Payment) *domain.Payment {
	p.TransactionID = clonePtr(p.TransactionID)
	p.RefundJustification = clonePtr(p.RefundJustification)
	p.RefundedBy = clonePtr(p.RefundedBy)
	p.RefundedAt = clonePtr(p.RefundedAt)
	return &p
}

func clonePayout(p domain.Payout) *domain.Payout {
	p.LastError = clonePtr(p.LastError)
	p.TransferReference = clonePtr(p.TransferReference)
	p.CompletedAt = clonePtr(p.CompletedAt)
	return &p
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// page применяет offset/limit к уже отсортированной выборке
func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return slices.Clip(items)
}
