package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/ItsMeArm00n/UBER---clone/internal/dispatch/model"
)

// MemoryDriverStore is an in-memory DriverStore for tests and for running the
// service without Postgres.
type MemoryDriverStore struct {
	mu      sync.RWMutex
	drivers map[string]DriverRecord
}

func NewMemoryDriverStore() *MemoryDriverStore {
	return &MemoryDriverStore{drivers: make(map[string]DriverRecord)}
}

// Put seeds or replaces a driver record.
func (s *MemoryDriverStore) Put(rec DriverRecord) {
	s.mu.Lock()
	s.drivers[rec.ID] = rec
	s.mu.Unlock()
}

func (s *MemoryDriverStore) FindByID(_ context.Context, id string) (DriverRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.drivers[id]
	if !ok {
		return DriverRecord{}, fmt.Errorf("driver %s: %w", id, model.ErrNotFound)
	}
	return rec, nil
}

func (s *MemoryDriverStore) UpdateStatus(_ context.Context, id string, status model.PresenceStatus, loc *model.Location) (DriverRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.drivers[id]
	if !ok {
		return DriverRecord{}, fmt.Errorf("driver %s: %w", id, model.ErrNotFound)
	}
	rec.Status = status
	if loc != nil {
		l := *loc
		rec.Location = &l
	}
	s.drivers[id] = rec
	return rec, nil
}

// MemoryRideStore is an in-memory RideStore counterpart.
type MemoryRideStore struct {
	mu    sync.RWMutex
	rides map[string]RideRecord
}

func NewMemoryRideStore() *MemoryRideStore {
	return &MemoryRideStore{rides: make(map[string]RideRecord)}
}

func (s *MemoryRideStore) Create(_ context.Context, ride RideRecord) error {
	s.mu.Lock()
	s.rides[ride.ID] = ride
	s.mu.Unlock()
	return nil
}

func (s *MemoryRideStore) UpdateStatus(_ context.Context, rideID string, status model.RideStatus, driverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ride, ok := s.rides[rideID]
	if !ok {
		return fmt.Errorf("ride %s: %w", rideID, model.ErrNotFound)
	}
	ride.Status = status
	if driverID != "" {
		ride.DriverID = driverID
	}
	s.rides[rideID] = ride
	return nil
}

// Get returns a stored ride, primarily for tests.
func (s *MemoryRideStore) Get(rideID string) (RideRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ride, ok := s.rides[rideID]
	return ride, ok
}
