package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the dispatch-core collectors. A nil *Metrics is valid and
// records nothing, so components can be wired without a registry in tests.
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	RidesBroadcast    prometheus.Counter
	RidesAssigned     prometheus.Counter
	RidesRejected     prometheus.Counter
	RidesExpired      prometheus.Counter
	MessagesDelivered prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ConnectionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "dispatch_connections_active",
			Help: "Currently registered socket connections.",
		}),
		RidesBroadcast: f.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_rides_broadcast_total",
			Help: "Ride requests broadcast to available drivers.",
		}),
		RidesAssigned: f.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_rides_assigned_total",
			Help: "Rides won by a driver through accept.",
		}),
		RidesRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_rides_rejected_total",
			Help: "Advisory ride rejections reported by drivers.",
		}),
		RidesExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_rides_expired_total",
			Help: "Broadcasting rides closed by the TTL without an acceptor.",
		}),
		MessagesDelivered: f.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_messages_delivered_total",
			Help: "Topic messages delivered to individual connections.",
		}),
	}
}

func (m *Metrics) ConnOpened() {
	if m != nil {
		m.ConnectionsActive.Inc()
	}
}

func (m *Metrics) ConnClosed() {
	if m != nil {
		m.ConnectionsActive.Dec()
	}
}

func (m *Metrics) AddDelivered(n int) {
	if m != nil && n > 0 {
		m.MessagesDelivered.Add(float64(n))
	}
}

func (m *Metrics) RideBroadcast() {
	if m != nil {
		m.RidesBroadcast.Inc()
	}
}

func (m *Metrics) RideAssigned() {
	if m != nil {
		m.RidesAssigned.Inc()
	}
}

func (m *Metrics) RideRejected() {
	if m != nil {
		m.RidesRejected.Inc()
	}
}

func (m *Metrics) RideExpired() {
	if m != nil {
		m.RidesExpired.Inc()
	}
}
