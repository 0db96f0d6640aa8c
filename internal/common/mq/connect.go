package mq

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type RabbitMQ struct {
	Conn *amqp.Connection
	Chan *amqp.Channel

	url string
	log zerolog.Logger
}

// Connect dials RabbitMQ with a few backed-off retries; brokers are commonly
// still starting when the service comes up.
func Connect(url string, log zerolog.Logger) (*RabbitMQ, error) {
	r := &RabbitMQ{url: url, log: log}

	var err error
	for i := 1; i <= 5; i++ {
		var conn *amqp.Connection
		conn, err = amqp.Dial(r.url)
		if err == nil {
			r.Conn = conn
			r.Chan, err = conn.Channel()
			if err != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("open channel: %w", err)
			}
			log.Info().Msg("connected to rabbitmq")
			return r, nil
		}
		log.Warn().Err(err).Int("attempt", i).Msg("rabbitmq connect failed, retrying")
		time.Sleep(time.Duration(i) * 2 * time.Second)
	}
	return nil, fmt.Errorf("connect to rabbitmq after retries: %w", err)
}

func (r *RabbitMQ) Close() {
	if r.Chan != nil {
		_ = r.Chan.Close()
	}
	if r.Conn != nil {
		_ = r.Conn.Close()
	}
	r.log.Info().Msg("rabbitmq connection closed")
}
