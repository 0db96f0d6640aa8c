package topic

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ItsMeArm00n/UBER---clone/internal/dispatch/model"
)

type fakeSender struct {
	mu     sync.Mutex
	frames map[string][][]byte
	fail   map[string]bool
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		frames: make(map[string][][]byte),
		fail:   make(map[string]bool),
	}
}

func (s *fakeSender) Send(connID string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[connID] {
		return errors.New("transport closed")
	}
	s.frames[connID] = append(s.frames[connID], payload)
	return nil
}

func (s *fakeSender) count(connID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames[connID])
}

func (s *fakeSender) lastEvent(t *testing.T, connID string) model.Envelope {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.frames[connID])
	var env model.Envelope
	require.NoError(t, json.Unmarshal(s.frames[connID][len(s.frames[connID])-1], &env))
	return env
}

func TestPublishEmptyTopic(t *testing.T) {
	b := NewBroadcaster(newFakeSender(), zerolog.Nop())

	n, err := b.Publish("ride:nope", model.EventRideTaken, model.RideTakenPayload{RideID: "nope"})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPublishReachesMembers(t *testing.T) {
	sender := newFakeSender()
	b := NewBroadcaster(sender, zerolog.Nop())

	b.Join("c1", model.TopicAvailableDrivers)
	b.Join("c2", model.TopicAvailableDrivers)
	b.Join("c3", "ride:r1")

	n, err := b.Publish(model.TopicAvailableDrivers, model.EventRideTaken, model.RideTakenPayload{RideID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, sender.count("c1"))
	assert.Equal(t, 1, sender.count("c2"))
	assert.Equal(t, 0, sender.count("c3"))

	env := sender.lastEvent(t, "c1")
	assert.Equal(t, model.EventRideTaken, env.Event)
}

func TestLeaveStopsDelivery(t *testing.T) {
	sender := newFakeSender()
	b := NewBroadcaster(sender, zerolog.Nop())

	b.Join("c1", "ride:r1")
	b.Leave("c1", "ride:r1")

	n, err := b.Publish("ride:r1", model.EventRideAccepted, model.RideAcceptedPayload{RideID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, sender.count("c1"))
}

func TestFailedDeliveryNotCounted(t *testing.T) {
	sender := newFakeSender()
	sender.fail["dead"] = true
	b := NewBroadcaster(sender, zerolog.Nop())

	b.Join("dead", "ride:r1")
	b.Join("live", "ride:r1")

	n, err := b.Publish("ride:r1", model.EventRideTaken, model.RideTakenPayload{RideID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDropConnRemovesAllMemberships(t *testing.T) {
	sender := newFakeSender()
	b := NewBroadcaster(sender, zerolog.Nop())

	b.Join("c1", model.TopicAvailableDrivers)
	b.Join("c1", "ride:r1")
	b.Join("c1", "ride:r2")

	b.DropConn("c1")

	assert.False(t, b.IsMember("c1", model.TopicAvailableDrivers))
	assert.Equal(t, 0, b.MemberCount("ride:r1"))
	assert.Equal(t, 0, b.MemberCount("ride:r2"))

	// A topic whose sole member disconnected is empty; publishing to it
	// still succeeds and reaches nobody.
	n, err := b.Publish("ride:r1", model.EventRideTaken, model.RideTakenPayload{RideID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestConcurrentJoinPublish(t *testing.T) {
	sender := newFakeSender()
	b := NewBroadcaster(sender, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		connID := fmt.Sprintf("c%d", i)
		go func() {
			defer wg.Done()
			b.Join(connID, model.TopicAvailableDrivers)
		}()
		go func() {
			defer wg.Done()
			_, err := b.Publish(model.TopicAvailableDrivers, model.EventRideTaken, model.RideTakenPayload{RideID: "r"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, b.MemberCount(model.TopicAvailableDrivers))
}
