package memory

import (
	"cmp"
	"context"
	"slices"

	"rodae/internal/payment/domain"
)

type PayoutRepository struct{ s *Store }

func (r *PayoutRepository) Create(ctx context.Context, p *domain.Payout) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.payments[p.PaymentID]; !ok {
		return domain.ErrPaymentNotFound
	}
	for _, existing := range r.s.payouts {
		if existing.PaymentID == p.PaymentID && existing.DriverID == p.DriverID {
			return domain.ErrDuplicatePayout
		}
	}
	r.s.touchPayout(ctx, p.ID)
	r.s.payouts[p.ID] = *clonePayout(*p)
	return nil
}

func (r *PayoutRepository) FindByID(_ context.Context, id string) (*domain.Payout, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payouts[id]
	if !ok {
		return nil, domain.ErrPayoutNotFound
	}
	return clonePayout(p), nil
}

func (r *PayoutRepository) FindByIDForUpdate(ctx context.Context, id string) (*domain.Payout, error) {
	return r.FindByID(ctx, id)
}

func (r *PayoutRepository) FindByPaymentAndDriver(_ context.Context, paymentID, driverID string) (*domain.Payout, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.payouts {
		if p.PaymentID == paymentID && p.DriverID == driverID {
			return clonePayout(p), nil
		}
	}
	return nil, domain.ErrPayoutNotFound
}

// Update меняет только изменяемые поля; суммы фиксируются при создании
func (r *PayoutRepository) Update(ctx context.Context, p *domain.Payout) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.payouts[p.ID]
	if !ok {
		return domain.ErrPayoutNotFound
	}
	cur.Status = p.Status
	cur.AttemptCount = p.AttemptCount
	cur.LastError = clonePtr(p.LastError)
	cur.TransferReference = clonePtr(p.TransferReference)
	cur.CompletedAt = clonePtr(p.CompletedAt)
	cur.UpdatedAt = p.UpdatedAt
	r.s.touchPayout(ctx, p.ID)
	r.s.payouts[p.ID] = cur
	return nil
}

func (r *PayoutRepository) ListOpenByPaymentForUpdate(_ context.Context, paymentID string) ([]*domain.Payout, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var open []*domain.Payout
	for _, p := range r.s.payouts {
		if p.PaymentID == paymentID && p.IsOpen() {
			open = append(open, clonePayout(p))
		}
	}
	sortPayouts(open)
	return open, nil
}

func (r *PayoutRepository) List(_ context.Context, f domain.PayoutFilter) ([]*domain.Payout, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []*domain.Payout
	for _, p := range r.s.payouts {
		if f.Match(&p) {
			list = append(list, clonePayout(p))
		}
	}
	sortPayouts(list)
	return page(list, f.Limit, f.Offset), nil
}

func sortPayouts(list []*domain.Payout) {
	slices.SortFunc(list, func(a, b *domain.Payout) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
