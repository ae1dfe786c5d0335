package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rodae/internal/model"
	"rodae/internal/payment/domain"
	"rodae/internal/shared/db"
	"rodae/internal/shared/logger"
	"rodae/internal/shared/utils"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PayoutPgRepository — PostgreSQL репозиторий репассов
type PayoutPgRepository struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

func NewPayoutPgRepository(pool *pgxpool.Pool, log *logger.Logger) *PayoutPgRepository {
	return &PayoutPgRepository{pool: pool, log: log}
}

const payoutSelect = `
	SELECT id::text, payment_id::text, driver_id::text,
		total_amount::text, driver_amount::text, platform_amount::text,
		status, attempt_count, last_error, transfer_reference,
		completed_at, created_at, updated_at
	FROM payouts`

func (r *PayoutPgRepository) Create(ctx context.Context, p *domain.Payout) error {
	query := `
		INSERT INTO payouts (
			id, payment_id, driver_id, total_amount, driver_amount, platform_amount,
			status, attempt_count, last_error, transfer_reference, completed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := db.Conn(ctx, r.pool).Exec(ctx, query,
		p.ID,
		p.PaymentID,
		p.DriverID,
		p.TotalAmount.String(),
		p.DriverAmount.String(),
		p.PlatformAmount.String(),
		p.Status,
		p.AttemptCount,
		p.LastError,
		p.TransferReference,
		p.CompletedAt,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return domain.ErrDuplicatePayout
		}
		r.log.Error(logger.Entry{
			Action:    "db_create_payout_failed",
			Message:   err.Error(),
			PaymentID: p.PaymentID,
			PayoutID:  p.ID,
			Error:     &logger.ErrObj{Msg: err.Error()},
		})
		return fmt.Errorf("insert payout: %w", err)
	}
	return nil
}

func (r *PayoutPgRepository) FindByID(ctx context.Context, id string) (*domain.Payout, error) {
	return r.findOne(ctx, payoutSelect+` WHERE id = $1`, id)
}

func (r *PayoutPgRepository) FindByIDForUpdate(ctx context.Context, id string) (*domain.Payout, error) {
	return r.findOne(ctx, payoutSelect+` WHERE id = $1 FOR UPDATE`, id)
}

func (r *PayoutPgRepository) FindByPaymentAndDriver(ctx context.Context, paymentID, driverID string) (*domain.Payout, error) {
	if !utils.IsUUID(driverID) {
		return nil, domain.ErrPayoutNotFound
	}
	return r.findOne(ctx, payoutSelect+` WHERE payment_id = $1 AND driver_id = $2`, paymentID, driverID)
}

func (r *PayoutPgRepository) findOne(ctx context.Context, query string, args ...any) (*domain.Payout, error) {
	if id, _ := args[0].(string); !utils.IsUUID(id) {
		return nil, domain.ErrPayoutNotFound
	}
	p, err := scanPayout(db.Conn(ctx, r.pool).QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPayoutNotFound
		}
		r.log.Error(logger.Entry{
			Action:  "db_find_payout_failed",
			Message: err.Error(),
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
		return nil, fmt.Errorf("find payout: %w", err)
	}
	return p, nil
}

// Update сохраняет изменяемые поля; суммы не пересчитываются
func (r *PayoutPgRepository) Update(ctx context.Context, p *domain.Payout) error {
	query := `
		UPDATE payouts
		SET status = $2, attempt_count = $3, last_error = $4, transfer_reference = $5,
			completed_at = $6, updated_at = $7
		WHERE id = $1
	`
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, query,
		p.ID, p.Status, p.AttemptCount, p.LastError, p.TransferReference, p.CompletedAt, p.UpdatedAt,
	)
	if err != nil {
		r.log.Error(logger.Entry{
			Action:    "db_update_payout_failed",
			Message:   err.Error(),
			PaymentID: p.PaymentID,
			PayoutID:  p.ID,
			Error:     &logger.ErrObj{Msg: err.Error()},
		})
		return fmt.Errorf("update payout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPayoutNotFound
	}
	return nil
}

func (r *PayoutPgRepository) ListOpenByPaymentForUpdate(ctx context.Context, paymentID string) ([]*domain.Payout, error) {
	query := payoutSelect + ` WHERE payment_id = $1 AND status IN ($2, $3) ORDER BY created_at FOR UPDATE`
	return r.query(ctx, query, paymentID, model.PayoutStatusPending, model.PayoutStatusProcessing)
}

func (r *PayoutPgRepository) List(ctx context.Context, f domain.PayoutFilter) ([]*domain.Payout, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.DriverID != "" {
		add("driver_id::text = $%d", f.DriverID)
	}
	if len(f.PaymentIDs) > 0 {
		add("payment_id::text = ANY($%d)", f.PaymentIDs)
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}

	query := payoutSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	query += limitOffset(f.Limit, f.Offset, &args)

	return r.query(ctx, query, args...)
}

func (r *PayoutPgRepository) query(ctx context.Context, query string, args ...any) ([]*domain.Payout, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		r.log.Error(logger.Entry{
			Action:  "db_list_payouts_failed",
			Message: err.Error(),
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	defer rows.Close()

	payouts := []*domain.Payout{}
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payout: %w", err)
		}
		payouts = append(payouts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payouts: %w", err)
	}
	return payouts, nil
}

func scanPayout(row pgx.Row) (*domain.Payout, error) {
	var (
		p                       domain.Payout
		total, driver, platform string
	)
	if err := row.Scan(
		&p.ID,
		&p.PaymentID,
		&p.DriverID,
		&total,
		&driver,
		&platform,
		&p.Status,
		&p.AttemptCount,
		&p.LastError,
		&p.TransferReference,
		&p.CompletedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	amounts := []struct {
		raw string
		dst *decimal.Decimal
	}{
		{total, &p.TotalAmount},
		{driver, &p.DriverAmount},
		{platform, &p.PlatformAmount},
	}
	for _, a := range amounts {
		d, err := decimal.NewFromString(a.raw)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", a.raw, err)
		}
		*a.dst = d
	}
	return &p, nil
}
