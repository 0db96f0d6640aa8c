package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ItsMeArm00n/UBER---clone/internal/dispatch/model"
)

// Transport is the bidirectional channel behind a connection. The websocket
// handler provides the real one; tests use in-memory fakes.
type Transport interface {
	Send(payload []byte) error
	Close() error
}

// TokenVerifier is the external credential-checking collaborator.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// CloseHook runs exactly once when a connection is torn down. Subject is
// empty if the connection never authenticated.
type CloseHook func(connID, subject string)

type conn struct {
	id        string
	subject   string
	transport Transport
	lastSeen  time.Time
}

// Registry owns every live connection and its authenticated identity.
// Connections are destroyed on transport close; hooks let the broadcaster and
// the presence manager clean up their own state.
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]*conn
	verifier TokenVerifier
	hooks    []CloseHook
	log      zerolog.Logger
}

func New(verifier TokenVerifier, log zerolog.Logger) *Registry {
	return &Registry{
		conns:    make(map[string]*conn),
		verifier: verifier,
		log:      log,
	}
}

// OnClose registers a teardown hook. Call during wiring, before serving.
func (r *Registry) OnClose(h CloseHook) {
	r.hooks = append(r.hooks, h)
}

func (r *Registry) Register(t Transport) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.conns[id] = &conn{id: id, transport: t, lastSeen: time.Now()}
	r.mu.Unlock()
	r.log.Debug().Str("conn_id", id).Msg("connection registered")
	return id
}

// Authenticate verifies the token and binds its subject to the connection.
// Failure leaves the connection open and unauthenticated.
func (r *Registry) Authenticate(connID, token string) (string, error) {
	r.mu.Lock()
	c, ok := r.conns[connID]
	r.mu.Unlock()
	if !ok {
		return "", model.ErrNotFound
	}

	subject, err := r.verifier.Verify(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrAuth, err)
	}

	r.mu.Lock()
	c.subject = subject
	c.lastSeen = time.Now()
	r.mu.Unlock()
	return subject, nil
}

// Subject returns the authenticated identity of a connection, or
// ErrUnauthenticated if it has none yet.
func (r *Registry) Subject(connID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	if !ok {
		return "", model.ErrNotFound
	}
	if c.subject == "" {
		return "", model.ErrUnauthenticated
	}
	return c.subject, nil
}

func (r *Registry) Send(connID string, payload []byte) error {
	r.mu.RLock()
	c, ok := r.conns[connID]
	r.mu.RUnlock()
	if !ok {
		return model.ErrNotFound
	}
	return c.transport.Send(payload)
}

// Touch refreshes the connection's last-seen timestamp.
func (r *Registry) Touch(connID string) {
	r.mu.Lock()
	if c, ok := r.conns[connID]; ok {
		c.lastSeen = time.Now()
	}
	r.mu.Unlock()
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Close tears a connection down. Idempotent: the first call removes the entry
// and runs the hooks; later calls are no-ops. Hooks run outside the registry
// lock so they may call back into other components freely.
func (r *Registry) Close(connID string) {
	r.mu.Lock()
	c, ok := r.conns[connID]
	if ok {
		delete(r.conns, connID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	_ = c.transport.Close()
	for _, h := range r.hooks {
		h(connID, c.subject)
	}
	r.log.Debug().Str("conn_id", connID).Str("subject", c.subject).Msg("connection closed")
}
