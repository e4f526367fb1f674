package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/GibsMichele/WeatherApp/internal/config"
	"github.com/GibsMichele/WeatherApp/internal/httpapi"
	"github.com/GibsMichele/WeatherApp/internal/kafka"
	"github.com/GibsMichele/WeatherApp/internal/metrics"
	"github.com/GibsMichele/WeatherApp/internal/mqtt"
	"github.com/GibsMichele/WeatherApp/internal/station"
)

const (
	connectTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

type stationSink interface {
	station.Sink
	Connected() bool
}

// RunStation publishes readings until ctx is cancelled. It returns nil
// without connecting anywhere when publishing is disabled.
func RunStation(ctx context.Context, cfg config.Config) error {
	slog.Info("config loaded",
		"stationId", cfg.StationID,
		"interval", cfg.Interval,
		"sink", cfg.Sink,
		"brokerHost", cfg.Broker.Host,
		"brokerPort", cfg.Broker.Port,
		"topic", cfg.Broker.Topic,
		"failurePolicy", cfg.FailurePolicy.String(),
		"metricsAddr", cfg.MetricsAddr,
	)

	if cfg.DisableMQTT {
		slog.Info("publishing disabled, exiting", "station_id", cfg.StationID)
		return nil
	}

	sink, closeSink, err := openSink(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSink()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.NewStation(reg, cfg.StationID)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	rnd := station.NewRandomRand()
	if cfg.Seed != nil {
		rnd = station.NewRand(*cfg.Seed)
	}

	pub, err := station.New(
		station.Config{StationID: cfg.StationID, Interval: cfg.Interval, Topic: cfg.Broker.Topic},
		sink,
		station.WithRand(rnd),
		station.WithLogger(slog.Default()),
		station.WithObserver(m),
		station.WithFailurePolicy(cfg.FailurePolicy),
	)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var srv *http.Server
	httpErr := make(chan error, 1)
	if cfg.MetricsAddr != "" {
		srv = httpapi.NewServer(cfg.MetricsAddr, httpapi.NewMux(sink, reg))
		go func() {
			slog.Info("http listening", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				httpErr <- err
				cancel()
			}
		}()
	}

	runErr := pub.Run(runCtx)

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		slog.Info("http shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown", "error", err)
		}
	}

	select {
	case err := <-httpErr:
		return fmt.Errorf("metrics server: %w", err)
	default:
	}
	return runErr
}

// openSink connects the configured transport once; a failure here is fatal.
func openSink(ctx context.Context, cfg config.Config) (stationSink, func(), error) {
	switch cfg.Sink {
	case config.SinkKafka:
		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		if err := kafka.Ping(pingCtx, cfg.KafkaBrokers); err != nil {
			return nil, nil, fmt.Errorf("kafka connect: %w", err)
		}
		sink := kafka.NewSink(cfg.KafkaBrokers, cfg.StationID, slog.Default())
		return sink, func() {
			if err := sink.Close(); err != nil {
				slog.Error("kafka close", "error", err)
			}
		}, nil
	default:
		client := mqtt.NewClient(cfg.Broker, slog.Default())
		connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		if err := client.Connect(connectCtx); err != nil {
			client.Disconnect()
			return nil, nil, err
		}
		return client, client.Disconnect, nil
	}
}
