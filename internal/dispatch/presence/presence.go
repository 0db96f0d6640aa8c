package presence

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ItsMeArm00n/UBER---clone/internal/dispatch/model"
	"github.com/ItsMeArm00n/UBER---clone/internal/dispatch/store"
	"github.com/ItsMeArm00n/UBER---clone/internal/dispatch/topic"
)

// Record is a driver's live presence state. Mutated by the Manager only.
type Record struct {
	Subject      string
	Status       model.PresenceStatus
	Location     *model.Location
	ConnID       string
	ActiveRideID string
}

// Manager owns driver presence: the offline/online/on-trip state machine,
// membership of the available-drivers topic, and relaying live locations into
// ride topics.
type Manager struct {
	mu      sync.Mutex
	records map[string]*Record
	topics  *topic.Broadcaster
	drivers store.DriverStore
	log     zerolog.Logger
}

func NewManager(topics *topic.Broadcaster, drivers store.DriverStore, log zerolog.Logger) *Manager {
	return &Manager{
		records: make(map[string]*Record),
		topics:  topics,
		drivers: drivers,
		log:     log,
	}
}

// canTransition is the presence state table. Edges not listed are invalid.
func canTransition(from, to model.PresenceStatus) bool {
	switch {
	case from == model.StatusOffline && to == model.StatusOnline:
		return true
	case from == model.StatusOnline && to == model.StatusOnTrip:
		return true
	case from == model.StatusOnTrip && to == model.StatusOnline:
		return true
	case from == model.StatusOnline && to == model.StatusOffline:
		return true
	case from == model.StatusOnTrip && to == model.StatusOffline:
		return true
	}
	return false
}

// SetOnline brings a driver into the available pool and binds it to the given
// connection. Calling it again while already online refreshes the connection
// and location. A driver mid-trip cannot re-enter the pool.
func (m *Manager) SetOnline(ctx context.Context, subject, connID string, loc *model.Location) error {
	m.mu.Lock()
	rec, ok := m.records[subject]
	if !ok {
		rec = &Record{Subject: subject, Status: model.StatusOffline}
		m.records[subject] = rec
	}
	if rec.Status == model.StatusOnTrip {
		m.mu.Unlock()
		return fmt.Errorf("%s -> %s: %w", rec.Status, model.StatusOnline, model.ErrInvalidTransition)
	}
	rec.Status = model.StatusOnline
	rec.ConnID = connID
	if loc != nil {
		l := *loc
		rec.Location = &l
	}
	m.mu.Unlock()

	m.topics.Join(connID, model.TopicAvailableDrivers)
	m.persistStatus(ctx, subject, model.StatusOnline, loc)
	m.log.Info().Str("driver_id", subject).Str("conn_id", connID).Msg("driver online")
	return nil
}

// SetLocation updates a driver's last known position without touching status
// or topic membership. If rideID names the ride this driver is currently
// on-trip for, the position is relayed to that ride's topic; in every other
// case the relay is a silent no-op so an idle driver never leaks location
// into stale ride topics.
func (m *Manager) SetLocation(ctx context.Context, subject string, lat, lng float64, rideID string) error {
	m.mu.Lock()
	rec, ok := m.records[subject]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("driver %s: %w", subject, model.ErrNotFound)
	}
	rec.Location = &model.Location{Lat: lat, Lng: lng}
	relay := rideID != "" && rec.Status == model.StatusOnTrip && rec.ActiveRideID == rideID
	status := rec.Status
	m.mu.Unlock()

	m.persistStatus(ctx, subject, status, &model.Location{Lat: lat, Lng: lng})

	if relay {
		if _, err := m.topics.Publish(model.RideTopic(rideID), model.EventDriverLocation,
			model.DriverLocationEvent{Lat: lat, Lng: lng, RideID: rideID}); err != nil {
			m.log.Warn().Err(err).Str("ride_id", rideID).Msg("location relay failed")
		}
	}
	return nil
}

// SetStatus applies a validated status transition, adjusting membership of
// the available-drivers topic as the driver enters or leaves the pool.
func (m *Manager) SetStatus(ctx context.Context, subject string, status model.PresenceStatus) error {
	return m.transition(ctx, subject, status, "")
}

// StartTrip moves a driver to on-trip and binds the assigned ride, so later
// location updates relay only into that ride's topic.
func (m *Manager) StartTrip(ctx context.Context, subject, rideID string) error {
	return m.transition(ctx, subject, model.StatusOnTrip, rideID)
}

// EndTrip returns an on-trip driver to the available pool.
func (m *Manager) EndTrip(ctx context.Context, subject string) error {
	return m.transition(ctx, subject, model.StatusOnline, "")
}

func (m *Manager) transition(ctx context.Context, subject string, status model.PresenceStatus, rideID string) error {
	m.mu.Lock()
	rec, ok := m.records[subject]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("driver %s: %w", subject, model.ErrNotFound)
	}
	if !canTransition(rec.Status, status) {
		from := rec.Status
		m.mu.Unlock()
		return fmt.Errorf("%s -> %s: %w", from, status, model.ErrInvalidTransition)
	}
	rec.Status = status
	rec.ActiveRideID = rideID
	connID := rec.ConnID
	if status == model.StatusOffline {
		rec.ConnID = ""
	}
	m.mu.Unlock()

	switch status {
	case model.StatusOnTrip, model.StatusOffline:
		// A driver mid-trip (or gone) must not receive new broadcasts.
		m.topics.Leave(connID, model.TopicAvailableDrivers)
	case model.StatusOnline:
		m.topics.Join(connID, model.TopicAvailableDrivers)
	}

	m.persistStatus(ctx, subject, status, nil)
	m.log.Info().Str("driver_id", subject).Str("status", string(status)).Msg("presence changed")
	return nil
}

// ConnectionClosed forces the driver bound to connID offline, whatever state
// it was in. Invoked from the registry close hook; topic membership is already
// removed by the broadcaster's own hook.
func (m *Manager) ConnectionClosed(ctx context.Context, connID string) {
	m.mu.Lock()
	var rec *Record
	for _, r := range m.records {
		if r.ConnID == connID {
			rec = r
			break
		}
	}
	if rec == nil || rec.Status == model.StatusOffline {
		m.mu.Unlock()
		return
	}
	subject := rec.Subject
	rec.Status = model.StatusOffline
	rec.ConnID = ""
	rec.ActiveRideID = ""
	m.mu.Unlock()

	m.persistStatus(ctx, subject, model.StatusOffline, nil)
	m.log.Info().Str("driver_id", subject).Str("conn_id", connID).Msg("driver forced offline on disconnect")
}

// Get returns a copy of a driver's presence record.
func (m *Manager) Get(subject string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[subject]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// persistStatus mirrors the in-process state into the driver store. The
// socket state is authoritative; store failures are logged and do not fail
// the presence operation.
func (m *Manager) persistStatus(ctx context.Context, subject string, status model.PresenceStatus, loc *model.Location) {
	if _, err := m.drivers.UpdateStatus(ctx, subject, status, loc); err != nil {
		m.log.Warn().Err(err).Str("driver_id", subject).Msg("persist driver status failed")
	}
}
