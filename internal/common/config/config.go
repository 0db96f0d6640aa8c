package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	HTTP struct {
		Port int `json:"port"`
	} `json:"http"`
	Database struct {
		Disabled bool   `json:"disabled"`
		Host     string `json:"host"`
		Port     int    `json:"port"`
		User     string `json:"user"`
		Password string `json:"password"`
		Name     string `json:"name"`
	} `json:"database"`
	RabbitMQ struct {
		Disabled bool   `json:"disabled"`
		Host     string `json:"host"`
		Port     int    `json:"port"`
		User     string `json:"user"`
		Password string `json:"password"`
		Exchange string `json:"exchange"`
	} `json:"rabbitmq"`
	JWT struct {
		Secret string `json:"secret"`
	} `json:"jwt"`
	Dispatch struct {
		// BroadcastTTLSeconds closes an unaccepted ride after this many
		// seconds. Zero disables expiry: a broadcasting ride then stays
		// eligible until accepted or explicitly closed.
		BroadcastTTLSeconds int `json:"broadcastTtlSeconds"`
	} `json:"dispatch"`
	Fare struct {
		BaseFare  float64 `json:"baseFare"`
		RatePerKM float64 `json:"ratePerKm"`
	} `json:"fare"`
}

func Default() *Config {
	cfg := &Config{}

	cfg.HTTP.Port = 8080

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "ridehail_user"
	cfg.Database.Password = "ridehail_pass"
	cfg.Database.Name = "ridehail_db"

	cfg.RabbitMQ.Host = "localhost"
	cfg.RabbitMQ.Port = 5672
	cfg.RabbitMQ.User = "guest"
	cfg.RabbitMQ.Password = "guest"
	cfg.RabbitMQ.Exchange = "ride.events"

	cfg.JWT.Secret = "super-secret-key"

	cfg.Fare.BaseFare = 50
	cfg.Fare.RatePerKM = 10

	return cfg
}

// Load builds the config from defaults overridden by RIDE_-prefixed
// environment variables, e.g. RIDE_HTTP__PORT=9090, RIDE_JWT__SECRET=...
func Load() (*Config, error) {
	cfg := Default()

	k := koanf.New(".")
	if err := k.Load(env.Provider("RIDE_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "ride_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c *Config) BroadcastTTL() time.Duration {
	return time.Duration(c.Dispatch.BroadcastTTLSeconds) * time.Second
}

func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.Name)
}

func (c *Config) RabbitMQURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/",
		c.RabbitMQ.User, c.RabbitMQ.Password, c.RabbitMQ.Host, c.RabbitMQ.Port)
}
