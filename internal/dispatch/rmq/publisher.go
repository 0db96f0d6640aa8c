package rmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/ItsMeArm00n/UBER---clone/internal/common/mq"
)

// Publisher fans ride lifecycle events out to a durable topic exchange so
// downstream services (billing, analytics) can consume them. Routing key is
// ride.<event>.
type Publisher struct {
	ch       *amqp.Channel
	exchange string
	log      zerolog.Logger
}

func NewPublisher(conn *mq.RabbitMQ, exchange string, log zerolog.Logger) (*Publisher, error) {
	if err := conn.Chan.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false,
		false,
		nil,
	); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Publisher{ch: conn.Chan, exchange: exchange, log: log}, nil
}

type rideEvent struct {
	Event     string    `json:"event"`
	RideID    string    `json:"rideId"`
	DriverID  string    `json:"driverId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (p *Publisher) PublishRideEvent(ctx context.Context, event, rideID, driverID string) error {
	body, err := json.Marshal(rideEvent{
		Event:     event,
		RideID:    rideID,
		DriverID:  driverID,
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal ride event: %w", err)
	}

	routingKey := fmt.Sprintf("ride.%s", event)
	if err := p.ch.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	); err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	p.log.Debug().Str("ride_id", rideID).Str("routing_key", routingKey).Msg("lifecycle event published")
	return nil
}
