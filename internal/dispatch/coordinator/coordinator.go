package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ItsMeArm00n/UBER---clone/internal/common/metrics"
	"github.com/ItsMeArm00n/UBER---clone/internal/dispatch/model"
	"github.com/ItsMeArm00n/UBER---clone/internal/dispatch/store"
	"github.com/ItsMeArm00n/UBER---clone/internal/dispatch/topic"
)

// Ride dispatch states. The broadcasting -> assigned edge is the correctness
// core and is resolved with a compare-and-set; everything else hangs off the
// winner of that race.
const (
	stateBroadcasting int32 = iota
	stateAssigned
	stateClosed
)

type ride struct {
	id      string
	pickup  model.Point
	dropoff model.Point
	rider   model.Rider
	fare    float64

	state atomic.Int32

	mu        sync.Mutex // guards driver and timer
	driver    string
	timer     *time.Timer
	createdAt time.Time
}

// Presence is the slice of the presence manager the coordinator drives.
type Presence interface {
	StartTrip(ctx context.Context, subject, rideID string) error
	EndTrip(ctx context.Context, subject string) error
}

// EventPublisher fans ride lifecycle events out to interested services.
type EventPublisher interface {
	PublishRideEvent(ctx context.Context, event, rideID, driverID string) error
}

// NopPublisher discards lifecycle events; used when the broker is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishRideEvent(context.Context, string, string, string) error { return nil }

// BroadcastRequest carries a rider's dispatch request into the coordinator.
type BroadcastRequest struct {
	RideID  string
	Pickup  model.Point
	Dropoff model.Point
	Rider   model.Rider
	Fare    float64
}

// Deps wires the coordinator's collaborators.
type Deps struct {
	Topics   *topic.Broadcaster
	Presence Presence
	Drivers  store.DriverStore
	Rides    store.RideStore
	Events   EventPublisher
	Metrics  *metrics.Metrics
	// BroadcastTTL closes an unaccepted ride after this duration.
	// Zero keeps it open until accepted or closed explicitly.
	BroadcastTTL time.Duration
	Log          zerolog.Logger
	Now          func() time.Time
}

// Coordinator owns every in-flight ride dispatch record from broadcast to
// single-driver assignment.
type Coordinator struct {
	mu    sync.RWMutex
	rides map[string]*ride

	topics   *topic.Broadcaster
	presence Presence
	drivers  store.DriverStore
	rstore   store.RideStore
	events   EventPublisher
	met      *metrics.Metrics
	ttl      time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

func New(d Deps) *Coordinator {
	if d.Events == nil {
		d.Events = NopPublisher{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Coordinator{
		rides:    make(map[string]*ride),
		topics:   d.Topics,
		presence: d.Presence,
		drivers:  d.Drivers,
		rstore:   d.Rides,
		events:   d.Events,
		met:      d.Metrics,
		ttl:      d.BroadcastTTL,
		log:      d.Log,
		now:      d.Now,
	}
}

// Broadcast advertises a new ride request to every available driver. The ride
// id is caller-supplied; a non-closed record under the same id is rejected,
// while a closed one is replaced so ids are reusable after closure. Broadcast
// does not track which drivers received the offer.
func (c *Coordinator) Broadcast(ctx context.Context, req BroadcastRequest) error {
	if req.RideID == "" || req.Rider.ID == "" {
		return fmt.Errorf("ride id and rider id required: %w", model.ErrMalformedPayload)
	}

	r := &ride{
		id:        req.RideID,
		pickup:    req.Pickup,
		dropoff:   req.Dropoff,
		rider:     req.Rider,
		fare:      req.Fare,
		createdAt: c.now(),
	}

	c.mu.Lock()
	if existing, ok := c.rides[req.RideID]; ok && existing.state.Load() != stateClosed {
		c.mu.Unlock()
		return fmt.Errorf("ride %s: %w", req.RideID, model.ErrDuplicateRideID)
	}
	c.rides[req.RideID] = r
	c.mu.Unlock()

	if c.ttl > 0 {
		r.mu.Lock()
		r.timer = time.AfterFunc(c.ttl, func() { c.expire(r) })
		r.mu.Unlock()
	}

	// Persistence is best-effort here: the broadcast is live regardless,
	// matching the socket-first behavior of the rest of the flow.
	if err := c.rstore.Create(ctx, store.RideRecord{
		ID:        req.RideID,
		RiderID:   req.Rider.ID,
		Pickup:    req.Pickup,
		Dropoff:   req.Dropoff,
		Fare:      req.Fare,
		Status:    model.RideBroadcasting,
		CreatedAt: r.createdAt,
	}); err != nil {
		c.log.Warn().Err(err).Str("ride_id", req.RideID).Msg("persist ride failed")
	}

	n, err := c.topics.Publish(model.TopicAvailableDrivers, model.EventRideNew, model.RideNewPayload{
		RideID:    req.RideID,
		Pickup:    req.Pickup,
		Dropoff:   req.Dropoff,
		Rider:     req.Rider,
		Fare:      req.Fare,
		Timestamp: c.now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	c.met.RideBroadcast()
	c.met.AddDelivered(n)
	c.publishLifecycle(ctx, "broadcast", req.RideID, "")
	c.log.Info().Str("ride_id", req.RideID).Int("drivers_notified", n).Msg("ride broadcast")
	return nil
}

// Accept resolves the first-accept-wins race. Exactly one caller per ride id
// performs the broadcasting -> assigned transition; every other caller
// observes a taken ride and fails with ErrRideAlreadyTaken. No priority by
// distance, rating or request time is applied.
func (c *Coordinator) Accept(ctx context.Context, rideID, driverID string) error {
	if rideID == "" || driverID == "" {
		return fmt.Errorf("ride id and driver id required: %w", model.ErrMalformedPayload)
	}

	c.mu.RLock()
	r, ok := c.rides[rideID]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("ride %s: %w", rideID, model.ErrNotFound)
	}

	if !r.state.CompareAndSwap(stateBroadcasting, stateAssigned) {
		return fmt.Errorf("ride %s: %w", rideID, model.ErrRideAlreadyTaken)
	}
	r.stopTimer()

	// The winner must actually be dispatchable. If the presence transition
	// fails (driver never online, already on another trip), roll the ride
	// back so another driver can still take it.
	if err := c.presence.StartTrip(ctx, driverID, rideID); err != nil {
		r.state.Store(stateBroadcasting)
		c.rearmTimer(r)
		return fmt.Errorf("driver %s cannot take ride %s: %w", driverID, rideID, err)
	}

	r.mu.Lock()
	r.driver = driverID
	r.mu.Unlock()

	profile := c.driverProfile(ctx, driverID)

	if _, err := c.topics.Publish(model.RideTopic(rideID), model.EventRideAccepted, model.RideAcceptedPayload{
		RideID:    rideID,
		Driver:    profile,
		Message:   "Driver accepted your ride!",
		Timestamp: c.now().UnixMilli(),
	}); err != nil {
		c.log.Warn().Err(err).Str("ride_id", rideID).Msg("publish ride:accepted failed")
	}

	// Best-effort UI hint so other drivers retract the offer. Correctness
	// does not depend on it: stragglers hit the CAS and get RideAlreadyTaken.
	if _, err := c.topics.Publish(model.TopicAvailableDrivers, model.EventRideTaken,
		model.RideTakenPayload{RideID: rideID}); err != nil {
		c.log.Warn().Err(err).Str("ride_id", rideID).Msg("publish ride:taken failed")
	}

	if err := c.rstore.UpdateStatus(ctx, rideID, model.RideAssigned, driverID); err != nil {
		c.log.Warn().Err(err).Str("ride_id", rideID).Msg("persist ride assignment failed")
	}
	c.met.RideAssigned()
	c.publishLifecycle(ctx, "assigned", rideID, driverID)
	c.log.Info().Str("ride_id", rideID).Str("driver_id", driverID).Msg("ride assigned")
	return nil
}

// Reject is advisory only: it changes no dispatch state and exists for
// telemetry. It never errors beyond malformed input.
func (c *Coordinator) Reject(ctx context.Context, rideID, driverID string) error {
	if rideID == "" || driverID == "" {
		return fmt.Errorf("ride id and driver id required: %w", model.ErrMalformedPayload)
	}
	c.met.RideRejected()
	c.publishLifecycle(ctx, "rejected", rideID, driverID)
	c.log.Info().Str("ride_id", rideID).Str("driver_id", driverID).Msg("ride rejected by driver")
	return nil
}

// JoinRideTopic subscribes a connection to a ride's topic for acceptance and
// live-location events. Any connection that knows an existing ride id may
// join; there is deliberately no further authorization check, matching the
// source protocol (a known gap, not silently patched here).
func (c *Coordinator) JoinRideTopic(connID, rideID string) error {
	if rideID == "" {
		return fmt.Errorf("ride id required: %w", model.ErrMalformedPayload)
	}
	c.mu.RLock()
	_, ok := c.rides[rideID]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("ride %s: %w", rideID, model.ErrNotFound)
	}
	c.topics.Join(connID, model.RideTopic(rideID))
	return nil
}

// CloseRide ends a ride from either live state. Closing an assigned ride
// returns its driver to the available pool. Closing an already-closed ride is
// a no-op.
func (c *Coordinator) CloseRide(ctx context.Context, rideID string) error {
	c.mu.RLock()
	r, ok := c.rides[rideID]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("ride %s: %w", rideID, model.ErrNotFound)
	}

	if r.state.CompareAndSwap(stateBroadcasting, stateClosed) {
		r.stopTimer()
		c.finishClose(ctx, rideID, "")
		return nil
	}
	if r.state.CompareAndSwap(stateAssigned, stateClosed) {
		r.mu.Lock()
		driverID := r.driver
		r.mu.Unlock()
		if driverID != "" {
			if err := c.presence.EndTrip(ctx, driverID); err != nil {
				c.log.Warn().Err(err).Str("driver_id", driverID).Msg("end trip failed")
			}
		}
		c.finishClose(ctx, rideID, driverID)
		return nil
	}
	return nil
}

// Status reports a ride's dispatch state and assigned driver.
func (c *Coordinator) Status(rideID string) (model.RideStatus, string, bool) {
	c.mu.RLock()
	r, ok := c.rides[rideID]
	c.mu.RUnlock()
	if !ok {
		return "", "", false
	}
	r.mu.Lock()
	driver := r.driver
	r.mu.Unlock()
	switch r.state.Load() {
	case stateAssigned:
		return model.RideAssigned, driver, true
	case stateClosed:
		return model.RideClosed, driver, true
	default:
		return model.RideBroadcasting, "", true
	}
}

func (c *Coordinator) finishClose(ctx context.Context, rideID, driverID string) {
	if err := c.rstore.UpdateStatus(ctx, rideID, model.RideClosed, driverID); err != nil {
		c.log.Warn().Err(err).Str("ride_id", rideID).Msg("persist ride close failed")
	}
	c.publishLifecycle(ctx, "closed", rideID, driverID)
	c.log.Info().Str("ride_id", rideID).Msg("ride closed")
}

// expire closes a ride nobody accepted within the TTL. The protocol defines
// no wire frame for expiry, so only the lifecycle event and store reflect it.
func (c *Coordinator) expire(r *ride) {
	if !r.state.CompareAndSwap(stateBroadcasting, stateClosed) {
		return
	}
	ctx := context.Background()
	if err := c.rstore.UpdateStatus(ctx, r.id, model.RideClosed, ""); err != nil {
		c.log.Warn().Err(err).Str("ride_id", r.id).Msg("persist ride expiry failed")
	}
	c.met.RideExpired()
	c.publishLifecycle(ctx, "expired", r.id, "")
	c.log.Info().Str("ride_id", r.id).Dur("ttl", c.ttl).Msg("ride broadcast expired")
}

func (r *ride) stopTimer() {
	r.mu.Lock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.mu.Unlock()
}

// rearmTimer restores the expiry clock after a rolled-back accept, keeping
// the original deadline.
func (c *Coordinator) rearmTimer(r *ride) {
	if c.ttl <= 0 {
		return
	}
	remaining := c.ttl - c.now().Sub(r.createdAt)
	if remaining < 0 {
		remaining = 0
	}
	r.mu.Lock()
	r.timer = time.AfterFunc(remaining, func() { c.expire(r) })
	r.mu.Unlock()
}

func (c *Coordinator) driverProfile(ctx context.Context, driverID string) model.DriverProfile {
	rec, err := c.drivers.FindByID(ctx, driverID)
	if err != nil {
		// The rider still deserves the acceptance signal even if the
		// profile lookup fails; send the id alone.
		c.log.Warn().Err(err).Str("driver_id", driverID).Msg("driver profile lookup failed")
		return model.DriverProfile{ID: driverID}
	}
	return model.DriverProfile{
		ID:       rec.ID,
		Name:     rec.Name,
		Vehicle:  rec.Vehicle,
		Location: rec.Location,
	}
}

func (c *Coordinator) publishLifecycle(ctx context.Context, event, rideID, driverID string) {
	if err := c.events.PublishRideEvent(ctx, event, rideID, driverID); err != nil {
		c.log.Warn().Err(err).Str("ride_id", rideID).Str("event", event).Msg("publish lifecycle event failed")
	}
}
