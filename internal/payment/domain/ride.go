package domain

import "rodae/internal/model"

// Ride — проекция поездки, нужная платежам. Поездкой владеет ride service.
type Ride struct {
	ID          string  `json:"id" db:"id"`
	PassengerID string  `json:"passenger_id" db:"passenger_id"`
	DriverID    *string `json:"driver_id,omitempty" db:"driver_id"`
	Status      string  `json:"status" db:"status"`
}

func (r *Ride) IsCompleted() bool {
	return r.Status == model.RideStatusCompleted
}

func (r *Ride) HasDriver() bool {
	return r.DriverID != nil && *r.DriverID != ""
}

// IsParty — пассажир или назначенный водитель поездки
func (r *Ride) IsParty(userID string) bool {
	if userID == "" {
		return false
	}
	return r.PassengerID == userID || (r.DriverID != nil && *r.DriverID == userID)
}
