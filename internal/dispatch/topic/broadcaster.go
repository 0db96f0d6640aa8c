package topic

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ItsMeArm00n/UBER---clone/internal/dispatch/model"
)

// Sender delivers a raw frame to one connection. Implemented by the
// connection registry.
type Sender interface {
	Send(connID string, payload []byte) error
}

// Broadcaster maintains named topics and fans published events out to their
// current members. Membership changes are serialized against publishes: a
// publish snapshots the member set under the lock, so a member either joined
// before the publish committed and receives it, or joined after and does not.
type Broadcaster struct {
	mu     sync.RWMutex
	topics map[string]map[string]struct{}
	conns  map[string]map[string]struct{}
	sender Sender
	log    zerolog.Logger
}

func NewBroadcaster(sender Sender, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		topics: make(map[string]map[string]struct{}),
		conns:  make(map[string]map[string]struct{}),
		sender: sender,
		log:    log,
	}
}

func (b *Broadcaster) Join(connID, topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	members, ok := b.topics[topic]
	if !ok {
		members = make(map[string]struct{})
		b.topics[topic] = members
	}
	members[connID] = struct{}{}

	joined, ok := b.conns[connID]
	if !ok {
		joined = make(map[string]struct{})
		b.conns[connID] = joined
	}
	joined[topic] = struct{}{}
}

func (b *Broadcaster) Leave(connID, topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leaveLocked(connID, topic)
}

func (b *Broadcaster) leaveLocked(connID, topic string) {
	if members, ok := b.topics[topic]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(b.topics, topic)
		}
	}
	if joined, ok := b.conns[connID]; ok {
		delete(joined, topic)
		if len(joined) == 0 {
			delete(b.conns, connID)
		}
	}
}

// DropConn removes a connection from every topic it belongs to. Called from
// the registry close hook so no dangling membership survives teardown.
func (b *Broadcaster) DropConn(connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for topic := range b.conns[connID] {
		b.leaveLocked(connID, topic)
	}
}

// Publish wraps payload in the wire envelope and sends it to every current
// member of the topic. Delivery is at-most-once per member with no ordering
// guarantee across members; a member whose transport fails is skipped, not
// retried. Publishing to an empty or unknown topic delivers to nobody and is
// not an error.
func (b *Broadcaster) Publish(topic, event string, payload any) (int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	frame, err := json.Marshal(model.Envelope{Event: event, Data: data})
	if err != nil {
		return 0, fmt.Errorf("marshal %s envelope: %w", event, err)
	}

	b.mu.RLock()
	members := make([]string, 0, len(b.topics[topic]))
	for connID := range b.topics[topic] {
		members = append(members, connID)
	}
	b.mu.RUnlock()

	delivered := 0
	for _, connID := range members {
		if err := b.sender.Send(connID, frame); err != nil {
			b.log.Debug().Err(err).Str("conn_id", connID).Str("topic", topic).
				Str("event", event).Msg("delivery skipped")
			continue
		}
		delivered++
	}
	return delivered, nil
}

// MemberCount reports the current size of a topic.
func (b *Broadcaster) MemberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// IsMember reports whether a connection currently belongs to a topic.
func (b *Broadcaster) IsMember(connID, topic string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.topics[topic][connID]
	return ok
}
