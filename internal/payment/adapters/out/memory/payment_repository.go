package memory

import (
	"cmp"
	"context"
	"slices"

	"rodae/internal/payment/domain"
)

type PaymentRepository struct{ s *Store }

func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.payments {
		if existing.RideID == p.RideID {
			return domain.ErrDuplicatePayment
		}
	}
	r.s.touchPayment(ctx, p.ID)
	r.s.payments[p.ID] = *clonePayment(*p)
	return nil
}

func (r *PaymentRepository) FindByID(_ context.Context, id string) (*domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

func (r *PaymentRepository) FindByIDForUpdate(ctx context.Context, id string) (*domain.Payment, error) {
	return r.FindByID(ctx, id)
}

func (r *PaymentRepository) FindByRideID(_ context.Context, rideID string) (*domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.payments {
		if p.RideID == rideID {
			return clonePayment(p), nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (r *PaymentRepository) UpdateRefund(ctx context.Context, p *domain.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.payments[p.ID]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	cur.Status = p.Status
	cur.RefundJustification = clonePtr(p.RefundJustification)
	cur.RefundedBy = clonePtr(p.RefundedBy)
	cur.RefundedAt = clonePtr(p.RefundedAt)
	cur.UpdatedAt = p.UpdatedAt
	r.s.touchPayment(ctx, p.ID)
	r.s.payments[p.ID] = cur
	return nil
}

func (r *PaymentRepository) FindRecordByID(_ context.Context, id string) (*domain.PaymentRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return r.recordLocked(p), nil
}

func (r *PaymentRepository) ListRecords(_ context.Context, f domain.PaymentFilter) ([]*domain.PaymentRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	records := make([]*domain.PaymentRecord, 0, len(r.s.payments))
	for _, p := range r.s.payments {
		rec := r.recordLocked(p)
		if f.Match(rec) {
			records = append(records, rec)
		}
	}
	slices.SortFunc(records, func(a, b *domain.PaymentRecord) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return page(records, f.Limit, f.Offset), nil
}

// recordLocked вызывается под r.s.mu
func (r *PaymentRepository) recordLocked(p domain.Payment) *domain.PaymentRecord {
	rec := &domain.PaymentRecord{Payment: *clonePayment(p)}
	if ride, ok := r.s.rides[p.RideID]; ok {
		rec.PassengerID = ride.PassengerID
		rec.DriverID = clonePtr(ride.DriverID)
	}
	return rec
}
