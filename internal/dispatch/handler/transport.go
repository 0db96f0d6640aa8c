package handler

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 32
)

var errSendBufferFull = errors.New("send buffer full")

// wsTransport adapts a gorilla connection to the registry's Transport. Writes
// are funneled through a buffered channel drained by a single write pump so
// concurrent publishes never interleave frames.
type wsTransport struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// Send queues a frame. A full buffer means the client is not keeping up; the
// frame is dropped and the caller decides whether to tear the connection down.
func (t *wsTransport) Send(payload []byte) error {
	select {
	case <-t.done:
		return errors.New("transport closed")
	default:
	}
	select {
	case t.send <- payload:
		return nil
	default:
		return errSendBufferFull
	}
}

func (t *wsTransport) Close() error {
	t.once.Do(func() { close(t.done) })
	return t.conn.Close()
}

// writePump drains queued frames and keeps the connection alive with pings.
// Runs until Close or a write failure.
func (t *wsTransport) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case payload := <-t.send:
			_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := t.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
