package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ItsMeArm00n/UBER---clone/internal/dispatch/model"
	"github.com/ItsMeArm00n/UBER---clone/internal/dispatch/presence"
	"github.com/ItsMeArm00n/UBER---clone/internal/dispatch/store"
	"github.com/ItsMeArm00n/UBER---clone/internal/dispatch/topic"
)

type fakeSender struct {
	mu     sync.Mutex
	frames map[string][][]byte
}

func newFakeSender() *fakeSender {
	return &fakeSender{frames: make(map[string][][]byte)}
}

func (s *fakeSender) Send(connID string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames[connID] = append(s.frames[connID], payload)
	return nil
}

func (s *fakeSender) events(t *testing.T, connID string) []model.Envelope {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Envelope
	for _, frame := range s.frames[connID] {
		var env model.Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		out = append(out, env)
	}
	return out
}

func (s *fakeSender) eventsNamed(t *testing.T, connID, name string) []model.Envelope {
	t.Helper()
	var out []model.Envelope
	for _, env := range s.events(t, connID) {
		if env.Event == name {
			out = append(out, env)
		}
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) PublishRideEvent(_ context.Context, event, rideID, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event+":"+rideID)
	return nil
}

func (p *recordingPublisher) recorded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

type fixture struct {
	sender  *fakeSender
	topics  *topic.Broadcaster
	pres    *presence.Manager
	drivers *store.MemoryDriverStore
	rides   *store.MemoryRideStore
	pub     *recordingPublisher
	coord   *Coordinator
}

func newFixture(ttl time.Duration) *fixture {
	sender := newFakeSender()
	topics := topic.NewBroadcaster(sender, zerolog.Nop())
	drivers := store.NewMemoryDriverStore()
	rides := store.NewMemoryRideStore()
	pres := presence.NewManager(topics, drivers, zerolog.Nop())
	pub := &recordingPublisher{}

	coord := New(Deps{
		Topics:       topics,
		Presence:     pres,
		Drivers:      drivers,
		Rides:        rides,
		Events:       pub,
		BroadcastTTL: ttl,
		Log:          zerolog.Nop(),
	})
	return &fixture{
		sender:  sender,
		topics:  topics,
		pres:    pres,
		drivers: drivers,
		rides:   rides,
		pub:     pub,
		coord:   coord,
	}
}

func (f *fixture) addOnlineDriver(t *testing.T, id, connID string) {
	t.Helper()
	f.drivers.Put(store.DriverRecord{
		ID:      id,
		Name:    "Driver " + id,
		Vehicle: model.Vehicle{Color: "black", Plate: "KA-" + id, Capacity: 4, VehicleType: "car"},
		Status:  model.StatusOffline,
	})
	require.NoError(t, f.pres.SetOnline(context.Background(), id, connID, &model.Location{Lat: 1, Lng: 1}))
}

func broadcastReq(rideID string) BroadcastRequest {
	return BroadcastRequest{
		RideID:  rideID,
		Pickup:  model.Point{Lat: 12.9, Lng: 77.6, Address: "MG Road"},
		Dropoff: model.Point{Lat: 13.0, Lng: 77.7},
		Rider:   model.Rider{ID: "u1", Name: "Riya"},
		Fare:    180,
	}
}

func TestBroadcastReachesOnlineDrivers(t *testing.T) {
	f := newFixture(0)
	ctx := context.Background()
	f.addOnlineDriver(t, "d1", "conn-d1")
	f.addOnlineDriver(t, "d2", "conn-d2")

	require.NoError(t, f.coord.Broadcast(ctx, broadcastReq("r1")))

	for _, conn := range []string{"conn-d1", "conn-d2"} {
		offers := f.sender.eventsNamed(t, conn, model.EventRideNew)
		require.Len(t, offers, 1)
		var p model.RideNewPayload
		require.NoError(t, json.Unmarshal(offers[0].Data, &p))
		assert.Equal(t, "r1", p.RideID)
		assert.Equal(t, "u1", p.Rider.ID)
		assert.Equal(t, 180.0, p.Fare)
		assert.NotZero(t, p.Timestamp)
	}

	rec, ok := f.rides.Get("r1")
	require.True(t, ok)
	assert.Equal(t, model.RideBroadcasting, rec.Status)
}

func TestBroadcastWithNoDriversIsNoop(t *testing.T) {
	f := newFixture(0)

	// All drivers busy or offline: broadcasting to nobody is not an error.
	err := f.coord.Broadcast(context.Background(), broadcastReq("r1"))
	require.NoError(t, err)

	status, _, ok := f.coord.Status("r1")
	require.True(t, ok)
	assert.Equal(t, model.RideBroadcasting, status)
}

func TestBroadcastDuplicateRideID(t *testing.T) {
	f := newFixture(0)
	ctx := context.Background()

	require.NoError(t, f.coord.Broadcast(ctx, broadcastReq("r1")))
	err := f.coord.Broadcast(ctx, broadcastReq("r1"))
	assert.ErrorIs(t, err, model.ErrDuplicateRideID)

	// Still duplicate once assigned.
	f.addOnlineDriver(t, "d1", "conn-d1")
	require.NoError(t, f.coord.Accept(ctx, "r1", "d1"))
	err = f.coord.Broadcast(ctx, broadcastReq("r1"))
	assert.ErrorIs(t, err, model.ErrDuplicateRideID)

	// A closed id is reusable.
	require.NoError(t, f.coord.CloseRide(ctx, "r1"))
	assert.NoError(t, f.coord.Broadcast(ctx, broadcastReq("r1")))
}

func TestBroadcastMalformed(t *testing.T) {
	f := newFixture(0)
	err := f.coord.Broadcast(context.Background(), BroadcastRequest{RideID: "", Rider: model.Rider{ID: "u1"}})
	assert.ErrorIs(t, err, model.ErrMalformedPayload)

	err = f.coord.Broadcast(context.Background(), BroadcastRequest{RideID: "r1"})
	assert.ErrorIs(t, err, model.ErrMalformedPayload)
}

func TestConcurrentAcceptExactlyOneWinner(t *testing.T) {
	f := newFixture(0)
	ctx := context.Background()

	const drivers = 32
	for i := 0; i < drivers; i++ {
		id := fmt.Sprintf("d%d", i)
		f.addOnlineDriver(t, id, "conn-"+id)
	}
	require.NoError(t, f.coord.Broadcast(ctx, broadcastReq("r1")))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   []string
		losses int
	)
	for i := 0; i < drivers; i++ {
		wg.Add(1)
		id := fmt.Sprintf("d%d", i)
		go func() {
			defer wg.Done()
			err := f.coord.Accept(ctx, "r1", id)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins = append(wins, id)
			} else {
				assert.ErrorIs(t, err, model.ErrRideAlreadyTaken)
				losses++
			}
		}()
	}
	wg.Wait()

	require.Len(t, wins, 1)
	assert.Equal(t, drivers-1, losses)

	status, driver, ok := f.coord.Status("r1")
	require.True(t, ok)
	assert.Equal(t, model.RideAssigned, status)
	assert.Equal(t, wins[0], driver)

	rec, ok := f.pres.Get(wins[0])
	require.True(t, ok)
	assert.Equal(t, model.StatusOnTrip, rec.Status)
	assert.Equal(t, "r1", rec.ActiveRideID)
}

func TestAcceptUnknownRide(t *testing.T) {
	f := newFixture(0)
	err := f.coord.Accept(context.Background(), "nope", "d1")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAcceptRollbackWhenDriverNotOnline(t *testing.T) {
	f := newFixture(0)
	ctx := context.Background()

	require.NoError(t, f.coord.Broadcast(ctx, broadcastReq("r1")))

	// d1 never went online; the CAS win must be rolled back.
	err := f.coord.Accept(ctx, "r1", "d1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrRideAlreadyTaken)

	status, _, ok := f.coord.Status("r1")
	require.True(t, ok)
	assert.Equal(t, model.RideBroadcasting, status)

	// Another driver can still win it.
	f.addOnlineDriver(t, "d2", "conn-d2")
	assert.NoError(t, f.coord.Accept(ctx, "r1", "d2"))
}

func TestEndToEndAcceptRace(t *testing.T) {
	f := newFixture(0)
	ctx := context.Background()

	f.addOnlineDriver(t, "dA", "conn-dA")
	f.addOnlineDriver(t, "dB", "conn-dB")

	require.NoError(t, f.coord.Broadcast(ctx, broadcastReq("r1")))

	// The rider joined ride:r1 at request time.
	require.NoError(t, f.coord.JoinRideTopic("conn-rider", "r1"))

	require.NoError(t, f.coord.Accept(ctx, "r1", "dA"))
	err := f.coord.Accept(ctx, "r1", "dB")
	assert.ErrorIs(t, err, model.ErrRideAlreadyTaken)

	// Rider receives exactly one ride:accepted naming dA, with profile.
	accepted := f.sender.eventsNamed(t, "conn-rider", model.EventRideAccepted)
	require.Len(t, accepted, 1)
	var ap model.RideAcceptedPayload
	require.NoError(t, json.Unmarshal(accepted[0].Data, &ap))
	assert.Equal(t, "r1", ap.RideID)
	assert.Equal(t, "dA", ap.Driver.ID)
	assert.Equal(t, "Driver dA", ap.Driver.Name)
	assert.Equal(t, "car", ap.Driver.Vehicle.VehicleType)

	// dB (still in the pool) receives exactly one ride:taken for r1. dA
	// left the pool on winning, so membership at publish time decides.
	taken := f.sender.eventsNamed(t, "conn-dB", model.EventRideTaken)
	require.Len(t, taken, 1)
	var tp model.RideTakenPayload
	require.NoError(t, json.Unmarshal(taken[0].Data, &tp))
	assert.Equal(t, "r1", tp.RideID)

	// The winner no longer receives new broadcasts.
	require.NoError(t, f.coord.Broadcast(ctx, broadcastReq("r2")))
	assert.Len(t, f.sender.eventsNamed(t, "conn-dA", model.EventRideNew), 1)
	assert.Len(t, f.sender.eventsNamed(t, "conn-dB", model.EventRideNew), 2)
}

func TestCloseRideReturnsDriverToPool(t *testing.T) {
	f := newFixture(0)
	ctx := context.Background()

	f.addOnlineDriver(t, "d1", "conn-d1")
	require.NoError(t, f.coord.Broadcast(ctx, broadcastReq("r1")))
	require.NoError(t, f.coord.Accept(ctx, "r1", "d1"))

	require.NoError(t, f.coord.CloseRide(ctx, "r1"))

	rec, _ := f.pres.Get("d1")
	assert.Equal(t, model.StatusOnline, rec.Status)
	assert.True(t, f.topics.IsMember("conn-d1", model.TopicAvailableDrivers))

	status, _, _ := f.coord.Status("r1")
	assert.Equal(t, model.RideClosed, status)

	// Closing again is a no-op.
	assert.NoError(t, f.coord.CloseRide(ctx, "r1"))

	// A late accept observes the closed ride.
	err := f.coord.Accept(ctx, "r1", "d1")
	assert.ErrorIs(t, err, model.ErrRideAlreadyTaken)
}

func TestRejectIsAdvisory(t *testing.T) {
	f := newFixture(0)
	ctx := context.Background()

	f.addOnlineDriver(t, "d1", "conn-d1")
	require.NoError(t, f.coord.Broadcast(ctx, broadcastReq("r1")))

	require.NoError(t, f.coord.Reject(ctx, "r1", "d1"))

	// No state change: the ride is still up for grabs.
	status, _, ok := f.coord.Status("r1")
	require.True(t, ok)
	assert.Equal(t, model.RideBroadcasting, status)
	assert.NoError(t, f.coord.Accept(ctx, "r1", "d1"))

	err := f.coord.Reject(ctx, "", "d1")
	assert.ErrorIs(t, err, model.ErrMalformedPayload)
}

func TestJoinRideTopicRequiresExistingRide(t *testing.T) {
	f := newFixture(0)

	err := f.coord.JoinRideTopic("conn-x", "ghost")
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, f.coord.Broadcast(context.Background(), broadcastReq("r1")))
	require.NoError(t, f.coord.JoinRideTopic("conn-x", "r1"))
	assert.True(t, f.topics.IsMember("conn-x", model.RideTopic("r1")))
}

func TestBroadcastTTLExpiresUnacceptedRide(t *testing.T) {
	f := newFixture(20 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, f.coord.Broadcast(ctx, broadcastReq("r1")))

	require.Eventually(t, func() bool {
		status, _, ok := f.coord.Status("r1")
		return ok && status == model.RideClosed
	}, time.Second, 5*time.Millisecond)

	// The id is free again after expiry.
	assert.NoError(t, f.coord.Broadcast(ctx, broadcastReq("r1")))
	assert.Contains(t, f.pub.recorded(), "expired:r1")
}

func TestAcceptStopsTTL(t *testing.T) {
	f := newFixture(30 * time.Millisecond)
	ctx := context.Background()

	f.addOnlineDriver(t, "d1", "conn-d1")
	require.NoError(t, f.coord.Broadcast(ctx, broadcastReq("r1")))
	require.NoError(t, f.coord.Accept(ctx, "r1", "d1"))

	time.Sleep(60 * time.Millisecond)
	status, driver, ok := f.coord.Status("r1")
	require.True(t, ok)
	assert.Equal(t, model.RideAssigned, status)
	assert.Equal(t, "d1", driver)
	assert.NotContains(t, f.pub.recorded(), "expired:r1")
}

func TestLifecycleEventsPublished(t *testing.T) {
	f := newFixture(0)
	ctx := context.Background()

	f.addOnlineDriver(t, "d1", "conn-d1")
	require.NoError(t, f.coord.Broadcast(ctx, broadcastReq("r1")))
	require.NoError(t, f.coord.Accept(ctx, "r1", "d1"))
	require.NoError(t, f.coord.Reject(ctx, "r1", "d2"))
	require.NoError(t, f.coord.CloseRide(ctx, "r1"))

	got := f.pub.recorded()
	assert.Equal(t, []string{"broadcast:r1", "assigned:r1", "rejected:r1", "closed:r1"}, got)
}

func TestConcurrentAcceptErrorsAreRideAlreadyTaken(t *testing.T) {
	// Accept on a closed ride also reports taken, to make late accepts
	// indistinguishable from lost races for clients.
	f := newFixture(0)
	ctx := context.Background()

	require.NoError(t, f.coord.Broadcast(ctx, broadcastReq("r1")))
	require.NoError(t, f.coord.CloseRide(ctx, "r1"))

	err := f.coord.Accept(ctx, "r1", "d1")
	assert.True(t, errors.Is(err, model.ErrRideAlreadyTaken))
}
