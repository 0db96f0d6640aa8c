package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ItsMeArm00n/UBER---clone/internal/dispatch/model"
)

type PostgresDriverStore struct {
	db *pgxpool.Pool
}

func NewPostgresDriverStore(db *pgxpool.Pool) *PostgresDriverStore {
	return &PostgresDriverStore{db: db}
}

func (s *PostgresDriverStore) FindByID(ctx context.Context, id string) (DriverRecord, error) {
	query := `
		SELECT id, name, vehicle_color, vehicle_plate, vehicle_capacity, vehicle_type,
		       status, latitude, longitude
		FROM drivers
		WHERE id = $1
	`

	var (
		rec      DriverRecord
		lat, lng *float64
	)
	err := s.db.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.Name,
		&rec.Vehicle.Color, &rec.Vehicle.Plate, &rec.Vehicle.Capacity, &rec.Vehicle.VehicleType,
		&rec.Status, &lat, &lng,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return DriverRecord{}, fmt.Errorf("driver %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return DriverRecord{}, fmt.Errorf("find driver: %w", err)
	}
	if lat != nil && lng != nil {
		rec.Location = &model.Location{Lat: *lat, Lng: *lng}
	}
	return rec, nil
}

func (s *PostgresDriverStore) UpdateStatus(ctx context.Context, id string, status model.PresenceStatus, loc *model.Location) (DriverRecord, error) {
	var err error
	if loc != nil {
		_, err = s.db.Exec(ctx, `
			UPDATE drivers
			SET status = $2, latitude = $3, longitude = $4, updated_at = now()
			WHERE id = $1
		`, id, status, loc.Lat, loc.Lng)
	} else {
		_, err = s.db.Exec(ctx, `
			UPDATE drivers
			SET status = $2, updated_at = now()
			WHERE id = $1
		`, id, status)
	}
	if err != nil {
		return DriverRecord{}, fmt.Errorf("update driver status: %w", err)
	}
	return s.FindByID(ctx, id)
}

type PostgresRideStore struct {
	db *pgxpool.Pool
}

func NewPostgresRideStore(db *pgxpool.Pool) *PostgresRideStore {
	return &PostgresRideStore{db: db}
}

func (s *PostgresRideStore) Create(ctx context.Context, ride RideRecord) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO rides (id, rider_id, pickup_lat, pickup_lng, pickup_address,
		                   dropoff_lat, dropoff_lng, dropoff_address, fare, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		ride.ID, ride.RiderID,
		ride.Pickup.Lat, ride.Pickup.Lng, ride.Pickup.Address,
		ride.Dropoff.Lat, ride.Dropoff.Lng, ride.Dropoff.Address,
		ride.Fare, ride.Status, ride.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ride: %w", err)
	}
	return nil
}

func (s *PostgresRideStore) UpdateStatus(ctx context.Context, rideID string, status model.RideStatus, driverID string) error {
	var err error
	if driverID != "" {
		_, err = s.db.Exec(ctx, `
			UPDATE rides SET status = $2, driver_id = $3, updated_at = now() WHERE id = $1
		`, rideID, status, driverID)
	} else {
		_, err = s.db.Exec(ctx, `
			UPDATE rides SET status = $2, updated_at = now() WHERE id = $1
		`, rideID, status)
	}
	if err != nil {
		return fmt.Errorf("update ride status: %w", err)
	}
	return nil
}
