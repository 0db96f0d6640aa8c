package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ItsMeArm00n/UBER---clone/internal/common/auth"
	"github.com/ItsMeArm00n/UBER---clone/internal/common/config"
	"github.com/ItsMeArm00n/UBER---clone/internal/common/db"
	"github.com/ItsMeArm00n/UBER---clone/internal/common/logger"
	"github.com/ItsMeArm00n/UBER---clone/internal/common/metrics"
	"github.com/ItsMeArm00n/UBER---clone/internal/common/mq"
	"github.com/ItsMeArm00n/UBER---clone/internal/dispatch/coordinator"
	"github.com/ItsMeArm00n/UBER---clone/internal/dispatch/handler"
	"github.com/ItsMeArm00n/UBER---clone/internal/dispatch/presence"
	"github.com/ItsMeArm00n/UBER---clone/internal/dispatch/registry"
	"github.com/ItsMeArm00n/UBER---clone/internal/dispatch/rmq"
	"github.com/ItsMeArm00n/UBER---clone/internal/dispatch/store"
	"github.com/ItsMeArm00n/UBER---clone/internal/dispatch/topic"
	"github.com/ItsMeArm00n/UBER---clone/internal/fare"
)

// Run wires the dispatch core and serves it until SIGINT/SIGTERM. Every
// component is constructed here and passed down explicitly; nothing reaches
// for process-wide state.
func Run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.New("dispatch-service")

	var (
		driverStore store.DriverStore
		rideStore   store.RideStore
	)
	if cfg.Database.Disabled {
		log.Warn().Msg("database disabled, using in-memory stores")
		driverStore = store.NewMemoryDriverStore()
		rideStore = store.NewMemoryRideStore()
	} else {
		pool, err := db.Connect(ctx, cfg.DatabaseDSN(), logger.New("postgres"))
		if err != nil {
			return err
		}
		defer pool.Close()
		driverStore = store.NewPostgresDriverStore(pool)
		rideStore = store.NewPostgresRideStore(pool)
	}

	var events coordinator.EventPublisher = coordinator.NopPublisher{}
	if !cfg.RabbitMQ.Disabled {
		rabbit, err := mq.Connect(cfg.RabbitMQURL(), logger.New("rabbitmq"))
		if err != nil {
			return err
		}
		defer rabbit.Close()
		events, err = rmq.NewPublisher(rabbit, cfg.RabbitMQ.Exchange, logger.New("ride-events"))
		if err != nil {
			return err
		}
	}

	promReg := prometheus.NewRegistry()
	met := metrics.New(promReg)

	verifier := auth.NewVerifier(cfg.JWT.Secret)
	reg := registry.New(verifier, logger.New("registry"))
	topics := topic.NewBroadcaster(reg, logger.New("topics"))
	pres := presence.NewManager(topics, driverStore, logger.New("presence"))

	coord := coordinator.New(coordinator.Deps{
		Topics:       topics,
		Presence:     pres,
		Drivers:      driverStore,
		Rides:        rideStore,
		Events:       events,
		Metrics:      met,
		BroadcastTTL: cfg.BroadcastTTL(),
		Log:          logger.New("coordinator"),
	})

	// Teardown order matters: drop topic memberships first so a forced
	// offline transition never observes a stale membership.
	reg.OnClose(func(connID, _ string) { topics.DropConn(connID) })
	reg.OnClose(func(connID, _ string) { pres.ConnectionClosed(context.Background(), connID) })

	ws := handler.NewWSHandler(reg, pres, coord, met, logger.New("ws"))
	estimator := fare.NewEstimator(cfg.Fare.BaseFare, cfg.Fare.RatePerKM)

	r := chi.NewRouter()
	r.Get("/ws", ws.ServeWS)
	r.Post("/fares/estimate", fare.EstimateHandler(estimator, logger.New("fare")))
	r.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTP.Port).Msg("dispatch service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
