package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rodae/internal/payment/domain"
	"rodae/internal/shared/db"
	"rodae/internal/shared/logger"
	"rodae/internal/shared/utils"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PaymentPgRepository — PostgreSQL репозиторий платежей.
// Внутри TxManager.WithinTx запросы идут через активную транзакцию.
type PaymentPgRepository struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

func NewPaymentPgRepository(pool *pgxpool.Pool, log *logger.Logger) *PaymentPgRepository {
	return &PaymentPgRepository{pool: pool, log: log}
}

// суммы читаются как text, чтобы не терять точность NUMERIC
const paymentColumns = `
	p.id::text, p.ride_id::text, p.transaction_id, p.amount::text, p.method, p.status,
	p.refund_justification, p.refunded_by, p.refunded_at, p.created_at, p.updated_at`

func (r *PaymentPgRepository) Create(ctx context.Context, p *domain.Payment) error {
	query := `
		INSERT INTO payments (
			id, ride_id, transaction_id, amount, method, status,
			refund_justification, refunded_by, refunded_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := db.Conn(ctx, r.pool).Exec(ctx, query,
		p.ID,
		p.RideID,
		p.TransactionID,
		p.Amount.String(),
		p.Method,
		p.Status,
		p.RefundJustification,
		p.RefundedBy,
		p.RefundedAt,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return domain.ErrDuplicatePayment
		}
		r.log.Error(logger.Entry{
			Action:    "db_create_payment_failed",
			Message:   err.Error(),
			RideID:    p.RideID,
			PaymentID: p.ID,
			Error:     &logger.ErrObj{Msg: err.Error()},
		})
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PaymentPgRepository) FindByID(ctx context.Context, id string) (*domain.Payment, error) {
	return r.findOne(ctx, "p.id = $1", "", id)
}

func (r *PaymentPgRepository) FindByIDForUpdate(ctx context.Context, id string) (*domain.Payment, error) {
	return r.findOne(ctx, "p.id = $1", "FOR UPDATE", id)
}

func (r *PaymentPgRepository) FindByRideID(ctx context.Context, rideID string) (*domain.Payment, error) {
	return r.findOne(ctx, "p.ride_id = $1", "", rideID)
}

func (r *PaymentPgRepository) findOne(ctx context.Context, where, lock, id string) (*domain.Payment, error) {
	if !utils.IsUUID(id) {
		return nil, domain.ErrPaymentNotFound
	}
	query := `SELECT ` + paymentColumns + ` FROM payments p WHERE ` + where + ` ` + lock

	p, err := scanPayment(db.Conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}
		r.log.Error(logger.Entry{
			Action:  "db_find_payment_failed",
			Message: err.Error(),
			Error:   &logger.ErrObj{Msg: err.Error()},
			Additional: map[string]any{
				"where": where,
				"id":    id,
			},
		})
		return nil, fmt.Errorf("find payment: %w", err)
	}
	return p, nil
}

func (r *PaymentPgRepository) UpdateRefund(ctx context.Context, p *domain.Payment) error {
	query := `
		UPDATE payments
		SET status = $2, refund_justification = $3, refunded_by = $4, refunded_at = $5, updated_at = $6
		WHERE id = $1
	`
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, query,
		p.ID, p.Status, p.RefundJustification, p.RefundedBy, p.RefundedAt, p.UpdatedAt,
	)
	if err != nil {
		r.log.Error(logger.Entry{
			Action:    "db_update_payment_refund_failed",
			Message:   err.Error(),
			PaymentID: p.ID,
			Error:     &logger.ErrObj{Msg: err.Error()},
		})
		return fmt.Errorf("update payment refund: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

const recordSelect = `
	SELECT ` + paymentColumns + `, COALESCE(r.passenger_id::text, ''), r.driver_id::text
	FROM payments p
	LEFT JOIN rides r ON r.id = p.ride_id`

func (r *PaymentPgRepository) FindRecordByID(ctx context.Context, id string) (*domain.PaymentRecord, error) {
	if !utils.IsUUID(id) {
		return nil, domain.ErrPaymentNotFound
	}
	rec, err := scanRecord(db.Conn(ctx, r.pool).QueryRow(ctx, recordSelect+` WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}
		r.log.Error(logger.Entry{
			Action:    "db_find_payment_record_failed",
			Message:   err.Error(),
			PaymentID: id,
			Error:     &logger.ErrObj{Msg: err.Error()},
		})
		return nil, fmt.Errorf("find payment record: %w", err)
	}
	return rec, nil
}

// ListRecords — выборка по фильтрам, новые первыми
func (r *PaymentPgRepository) ListRecords(ctx context.Context, f domain.PaymentFilter) ([]*domain.PaymentRecord, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("p.status = $%d", f.Status)
	}
	if f.RideID != "" {
		if !utils.IsUUID(f.RideID) {
			return []*domain.PaymentRecord{}, nil
		}
		add("p.ride_id = $%d", f.RideID)
	}
	if f.PassengerID != "" {
		add("r.passenger_id::text = $%d", f.PassengerID)
	}
	if f.DriverID != "" {
		add("r.driver_id::text = $%d", f.DriverID)
	}
	if f.From != nil {
		add("p.created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("p.created_at <= $%d", *f.To)
	}

	query := recordSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY p.created_at DESC, p.id"
	query += limitOffset(f.Limit, f.Offset, &args)

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		r.log.Error(logger.Entry{
			Action:  "db_list_payments_failed",
			Message: err.Error(),
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	records := []*domain.PaymentRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return records, nil
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var (
		p      domain.Payment
		amount string
	)
	if err := row.Scan(
		&p.ID,
		&p.RideID,
		&p.TransactionID,
		&amount,
		&p.Method,
		&p.Status,
		&p.RefundJustification,
		&p.RefundedBy,
		&p.RefundedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	p.Amount = d
	return &p, nil
}

func scanRecord(row pgx.Row) (*domain.PaymentRecord, error) {
	var (
		rec    domain.PaymentRecord
		amount string
	)
	p := &rec.Payment
	if err := row.Scan(
		&p.ID,
		&p.RideID,
		&p.TransactionID,
		&amount,
		&p.Method,
		&p.Status,
		&p.RefundJustification,
		&p.RefundedBy,
		&p.RefundedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
		&rec.PassengerID,
		&rec.DriverID,
	); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	p.Amount = d
	return &rec, nil
}

func limitOffset(limit, offset int, args *[]any) string {
	var sb strings.Builder
	if limit > 0 {
		*args = append(*args, limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(*args))
	}
	if offset > 0 {
		*args = append(*args, offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(*args))
	}
	return sb.String()
}
