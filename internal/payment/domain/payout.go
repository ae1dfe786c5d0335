package domain

import (
	"fmt"
	"slices"
	"time"

	"rodae/internal/model"

	"github.com/shopspring/decimal"
)

// StaleProcessingAfter — PROCESSING старше этого считается зависшим и может быть
// перезапущен через reprocess
const StaleProcessingAfter = 5 * time.Minute

// Payout — репасс водителю. Не более одного на пару (payment, driver).
type Payout struct {
	ID                string          `json:"id" db:"id"`
	PaymentID         string          `json:"payment_id" db:"payment_id"`
	DriverID          string          `json:"driver_id" db:"driver_id"`
	TotalAmount       decimal.Decimal `json:"total_amount" db:"total_amount"`
	DriverAmount      decimal.Decimal `json:"driver_amount" db:"driver_amount"`
	PlatformAmount    decimal.Decimal `json:"platform_amount" db:"platform_amount"`
	Status            string          `json:"status" db:"status"`
	AttemptCount      int             `json:"attempt_count" db:"attempt_count"`
	LastError         *string         `json:"last_error,omitempty" db:"last_error"`
	TransferReference *string         `json:"transfer_reference,omitempty" db:"transfer_reference"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// NewPayout создает PENDING репасс с разделением 80/20, посчитанным один раз
func NewPayout(id, paymentID, driverID string, total decimal.Decimal, now time.Time) *Payout {
	driver, platform := Split(total)
	return &Payout{
		ID:             id,
		PaymentID:      paymentID,
		DriverID:       driverID,
		TotalAmount:    total,
		DriverAmount:   driver,
		PlatformAmount: platform,
		Status:         model.PayoutStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (p *Payout) IsOpen() bool {
	return p.Status == model.PayoutStatusPending || p.Status == model.PayoutStatusProcessing
}

func (p *Payout) IsTerminal() bool {
	return p.Status == model.PayoutStatusCompleted || p.Status == model.PayoutStatusCancelled
}

// CanAttempt проверяет, можно ли начать новую попытку перевода.
// Свежий PROCESSING означает, что перевод уже идет в другом запросе.
func (p *Payout) CanAttempt(now time.Time) error {
	switch p.Status {
	case model.PayoutStatusCompleted:
		return ErrAlreadyCompleted
	case model.PayoutStatusCancelled:
		return ErrCancelledPayout
	case model.PayoutStatusProcessing:
		if now.Sub(p.UpdatedAt) < StaleProcessingAfter {
			return ErrPayoutInProgress
		}
	}
	return nil
}

// BeginAttempt переводит в PROCESSING; attempt_count растет на каждой попытке
func (p *Payout) BeginAttempt(now time.Time) {
	p.Status = model.PayoutStatusProcessing
	p.AttemptCount++
	p.UpdatedAt = now
}

func (p *Payout) Complete(reference string, now time.Time) {
	p.Status = model.PayoutStatusCompleted
	p.LastError = nil
	if reference != "" {
		p.TransferReference = &reference
	}
	p.CompletedAt = &now
	p.UpdatedAt = now
}

func (p *Payout) Fail(reason string, now time.Time) {
	p.Status = model.PayoutStatusFailed
	p.LastError = &reason
	p.UpdatedAt = now
}

// Cancel отменяет только PENDING/PROCESSING; возвращает false, если статус не изменился
func (p *Payout) Cancel(note string, now time.Time) bool {
	if !p.IsOpen() {
		return false
	}
	p.Status = model.PayoutStatusCancelled
	p.LastError = &note
	p.UpdatedAt = now
	return true
}

// CancellationNote — текст last_error для репассов, отмененных возвратом
func CancellationNote(justification string) string {
	return "cancelled by refund: " + justification
}

// PayoutFilter — фильтры выборки репассов
type PayoutFilter struct {
	Status     string
	DriverID   string
	PaymentIDs []string
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// PayoutStats — количество по статусам и суммы завершенных репассов
type PayoutStats struct {
	Total                int             `json:"total"`
	CountByStatus        map[string]int  `json:"count_by_status"`
	CompletedDriverSum   decimal.Decimal `json:"completed_driver_amount"`
	CompletedPlatformSum decimal.Decimal `json:"completed_platform_amount"`
}

// NewPayoutStats считает статистику по уже отфильтрованному списку
func NewPayoutStats(payouts []*Payout) PayoutStats {
	stats := PayoutStats{
		CountByStatus: map[string]int{
			model.PayoutStatusPending:    0,
			model.PayoutStatusProcessing: 0,
			model.PayoutStatusCompleted:  0,
			model.PayoutStatusFailed:     0,
			model.PayoutStatusCancelled:  0,
		},
		CompletedDriverSum:   decimal.Zero,
		CompletedPlatformSum: decimal.Zero,
	}
	for _, p := range payouts {
		stats.Total++
		stats.CountByStatus[p.Status]++
		if p.Status == model.PayoutStatusCompleted {
			stats.CompletedDriverSum = stats.CompletedDriverSum.Add(p.DriverAmount)
			stats.CompletedPlatformSum = stats.CompletedPlatformSum.Add(p.PlatformAmount)
		}
	}
	return stats
}

func IsValidPayoutStatus(s string) bool {
	switch s {
	case model.PayoutStatusPending, model.PayoutStatusProcessing, model.PayoutStatusCompleted,
		model.PayoutStatusFailed, model.PayoutStatusCancelled:
		return true
	}
	return false
}

func (f PayoutFilter) Validate() error {
	if f.Status != "" && !IsValidPayoutStatus(f.Status) {
		return fmt.Errorf("%w: unknown payout status %q", ErrInvalidFilter, f.Status)
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return fmt.Errorf("%w: from is after to", ErrInvalidFilter)
	}
	return nil
}

func (f PayoutFilter) Match(p *Payout) bool {
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.DriverID != "" && p.DriverID != f.DriverID {
		return false
	}
	if len(f.PaymentIDs) > 0 && !slices.Contains(f.PaymentIDs, p.PaymentID) {
		return false
	}
	return inRange(p.CreatedAt, f.From, f.To)
}
