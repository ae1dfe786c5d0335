package out

import (
	"context"

	"rodae/internal/payment/domain"
)

// RideRepository — чтение поездок, принадлежащих ride service
type RideRepository interface {
	FindByID(ctx context.Context, rideID string) (*domain.Ride, error)
}
