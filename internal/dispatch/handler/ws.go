package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ItsMeArm00n/UBER---clone/internal/common/metrics"
	"github.com/ItsMeArm00n/UBER---clone/internal/dispatch/coordinator"
	"github.com/ItsMeArm00n/UBER---clone/internal/dispatch/model"
	"github.com/ItsMeArm00n/UBER---clone/internal/dispatch/presence"
	"github.com/ItsMeArm00n/UBER---clone/internal/dispatch/registry"
)

// WSHandler is the socket entrypoint: it upgrades connections, registers them
// and routes inbound events into the dispatch core. Real-time events are
// advisory, so failures are logged and dropped rather than surfaced; nothing
// a single client sends can crash the shared components.
type WSHandler struct {
	registry    *registry.Registry
	presence    *presence.Manager
	coordinator *coordinator.Coordinator
	met         *metrics.Metrics
	log         zerolog.Logger
	upgrader    websocket.Upgrader
}

func NewWSHandler(reg *registry.Registry, pres *presence.Manager, coord *coordinator.Coordinator, met *metrics.Metrics, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		registry:    reg,
		presence:    pres,
		coordinator: coord,
		met:         met,
		log:         log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	t := newWSTransport(conn)
	connID := h.registry.Register(t)
	h.met.ConnOpened()
	h.log.Info().Str("conn_id", connID).Msg("socket connected")

	go t.writePump()

	// Close is idempotent and runs the registered teardown hooks exactly
	// once: topic membership removal and presence force-offline.
	defer func() {
		h.registry.Close(connID)
		h.met.ConnClosed()
		h.log.Info().Str("conn_id", connID).Msg("socket disconnected")
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		h.registry.Touch(connID)
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var env model.Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			h.log.Debug().Str("conn_id", connID).Msg("malformed frame dropped")
			continue
		}
		h.route(r.Context(), connID, env)
	}
}

func (h *WSHandler) route(ctx context.Context, connID string, env model.Envelope) {
	var err error
	switch env.Event {
	case model.EventDriverOnline:
		err = h.handleDriverOnline(ctx, connID, env.Data)
	case model.EventDriverLocation:
		err = h.handleDriverLocation(ctx, connID, env.Data)
	case model.EventRideJoin:
		err = h.handleRideJoin(connID, env.Data)
	case model.EventRideBroadcast:
		err = h.handleRideBroadcast(ctx, env.Data)
	case model.EventRideAccept:
		err = h.handleRideAccept(ctx, connID, env.Data)
	case model.EventRideReject:
		err = h.handleRideReject(ctx, connID, env.Data)
	default:
		h.log.Debug().Str("conn_id", connID).Str("event", env.Event).Msg("unknown event dropped")
		return
	}

	if err == nil {
		return
	}
	// Lost races and junk input are routine; keep those quiet.
	if errors.Is(err, model.ErrMalformedPayload) || errors.Is(err, model.ErrRideAlreadyTaken) {
		h.log.Debug().Err(err).Str("conn_id", connID).Str("event", env.Event).Msg("event dropped")
		return
	}
	h.log.Warn().Err(err).Str("conn_id", connID).Str("event", env.Event).Msg("event handling failed")
}

func (h *WSHandler) handleDriverOnline(ctx context.Context, connID string, data json.RawMessage) error {
	var p model.DriverOnlinePayload
	if err := json.Unmarshal(data, &p); err != nil || p.Token == "" {
		return model.ErrMalformedPayload
	}
	subject, err := h.registry.Authenticate(connID, p.Token)
	if err != nil {
		return err
	}
	return h.presence.SetOnline(ctx, subject, connID, p.Location)
}

func (h *WSHandler) handleDriverLocation(ctx context.Context, connID string, data json.RawMessage) error {
	var p model.DriverLocationPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Token == "" {
		return model.ErrMalformedPayload
	}
	subject, err := h.registry.Authenticate(connID, p.Token)
	if err != nil {
		return err
	}
	return h.presence.SetLocation(ctx, subject, p.Lat, p.Lng, p.RideID)
}

func (h *WSHandler) handleRideJoin(connID string, data json.RawMessage) error {
	var p model.RideJoinPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RideID == "" {
		return model.ErrMalformedPayload
	}
	return h.coordinator.JoinRideTopic(connID, p.RideID)
}

func (h *WSHandler) handleRideBroadcast(ctx context.Context, data json.RawMessage) error {
	var p model.RideBroadcastPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return model.ErrMalformedPayload
	}
	return h.coordinator.Broadcast(ctx, coordinator.BroadcastRequest{
		RideID:  p.RideID,
		Pickup:  p.Pickup,
		Dropoff: p.Dropoff,
		Rider:   p.Rider,
		Fare:    p.Fare,
	})
}

func (h *WSHandler) handleRideAccept(ctx context.Context, connID string, data json.RawMessage) error {
	var p model.RideAcceptPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Token == "" {
		return model.ErrMalformedPayload
	}
	subject, err := h.registry.Authenticate(connID, p.Token)
	if err != nil {
		return err
	}
	// The accepting driver must own the token it presents.
	if subject != p.DriverID {
		return model.ErrAuth
	}
	return h.coordinator.Accept(ctx, p.RideID, p.DriverID)
}

func (h *WSHandler) handleRideReject(ctx context.Context, connID string, data json.RawMessage) error {
	var p model.RideRejectPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Token == "" {
		return model.ErrMalformedPayload
	}
	subject, err := h.registry.Authenticate(connID, p.Token)
	if err != nil {
		return err
	}
	if subject != p.DriverID {
		return model.ErrAuth
	}
	return h.coordinator.Reject(ctx, p.RideID, p.DriverID)
}
