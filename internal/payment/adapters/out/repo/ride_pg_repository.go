package repo

import (
	"context"
	"errors"
	"fmt"

	"rodae/internal/payment/domain"
	"rodae/internal/shared/db"
	"rodae/internal/shared/logger"
	"rodae/internal/shared/utils"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RidePgRepository читает таблицу rides ride service'а
type RidePgRepository struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

func NewRidePgRepository(pool *pgxpool.Pool, log *logger.Logger) *RidePgRepository {
	return &RidePgRepository{pool: pool, log: log}
}

func (r *RidePgRepository) FindByID(ctx context.Context, rideID string) (*domain.Ride, error) {
	if !utils.IsUUID(rideID) {
		return nil, domain.ErrRideNotFound
	}

	query := `SELECT id::text, passenger_id::text, driver_id::text, status FROM rides WHERE id = $1`

	ride := &domain.Ride{}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, query, rideID).Scan(
		&ride.ID,
		&ride.PassengerID,
		&ride.DriverID,
		&ride.Status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRideNotFound
		}
		r.log.Error(logger.Entry{
			Action:  "db_find_ride_by_id_failed",
			Message: err.Error(),
			RideID:  rideID,
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
		return nil, fmt.Errorf("find ride: %w", err)
	}
	return ride, nil
}

// UpsertSnapshot сохраняет поездку из события ride.completed, если ride service
// пишет в другую базу. Существующая строка обновляется только статусом и водителем.
func (r *RidePgRepository) UpsertSnapshot(ctx context.Context, ride *domain.Ride) error {
	if !utils.IsUUID(ride.ID) || !utils.IsUUID(ride.PassengerID) {
		return fmt.Errorf("%w: ride and passenger ids must be uuids", domain.ErrValidation)
	}
	query := `
		INSERT INTO rides (id, passenger_id, driver_id, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
			driver_id = COALESCE(EXCLUDED.driver_id, rides.driver_id),
			updated_at = now()
	`
	if _, err := db.Conn(ctx, r.pool).Exec(ctx, query, ride.ID, ride.PassengerID, ride.DriverID, ride.Status); err != nil {
		r.log.Error(logger.Entry{
			Action:  "db_upsert_ride_snapshot_failed",
			Message: err.Error(),
			RideID:  ride.ID,
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
		return fmt.Errorf("upsert ride snapshot: %w", err)
	}
	return nil
}
