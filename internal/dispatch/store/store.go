package store

import (
	"context"
	"time"

	"github.com/ItsMeArm00n/UBER---clone/internal/dispatch/model"
)

// DriverRecord is the persisted driver document as the dispatch core sees it.
type DriverRecord struct {
	ID       string
	Name     string
	Vehicle  model.Vehicle
	Status   model.PresenceStatus
	Location *model.Location
}

// RideRecord is the persisted ride document. The dispatch coordinator hands
// lifecycle ownership to this store once a ride is assigned.
type RideRecord struct {
	ID        string
	RiderID   string
	DriverID  string
	Pickup    model.Point
	Dropoff   model.Point
	Fare      float64
	Status    model.RideStatus
	CreatedAt time.Time
}

// DriverStore is the external persistence collaborator for drivers.
type DriverStore interface {
	FindByID(ctx context.Context, id string) (DriverRecord, error)
	// UpdateStatus persists a status change, optionally with a fresh
	// location, and returns the updated record.
	UpdateStatus(ctx context.Context, id string, status model.PresenceStatus, loc *model.Location) (DriverRecord, error)
}

// RideStore is the external persistence collaborator for rides.
type RideStore interface {
	Create(ctx context.Context, ride RideRecord) error
	UpdateStatus(ctx context.Context, rideID string, status model.RideStatus, driverID string) error
}
