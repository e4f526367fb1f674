package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/GibsMichele/WeatherApp/internal/config"
	"github.com/GibsMichele/WeatherApp/internal/db"
	"github.com/GibsMichele/WeatherApp/internal/db/migrate"
	"github.com/GibsMichele/WeatherApp/internal/monitor"
	"github.com/GibsMichele/WeatherApp/internal/monitor/store"
	"github.com/GibsMichele/WeatherApp/internal/mqtt"
)

// RunMonitor subscribes to station readings and redraws the dashboard on out
// every refresh interval until ctx is cancelled.
func RunMonitor(ctx context.Context, cfg config.MonitorConfig, out io.Writer) error {
	slog.Info("config loaded",
		"brokerHost", cfg.Broker.Host,
		"brokerPort", cfg.Broker.Port,
		"topic", cfg.Broker.Topic,
		"outageAfter", cfg.OutageAfter,
		"refresh", cfg.RefreshInterval,
		"hideInvalid", cfg.HideInvalid,
		"outageLog", cfg.OutageLogPath,
		"sqlitePath", cfg.SQLitePath,
	)

	sinks := &reportSinks{}

	if cfg.SQLitePath != "" {
		conn, err := db.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := conn.Close(); closeErr != nil {
				slog.Error("db close", "error", closeErr)
			}
		}()
		if _, err := migrate.Run(ctx, conn, slog.Default()); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		sinks.store = store.New(conn)
	}

	if cfg.OutageLogPath != "" {
		f, err := os.OpenFile(cfg.OutageLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open outage log: %w", err)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil {
				slog.Error("outage log close", "error", closeErr)
			}
		}()
		sinks.alertLog = f
	}

	board := monitor.NewBoard(cfg.OutageAfter)
	sub := mqtt.NewSubscriber(cfg.Broker, func(topic string, payload []byte) {
		if !board.Observe(payload, time.Now()) {
			slog.Debug("ignored message", "topic", topic, "size", len(payload))
		}
	}, slog.Default())
	defer sub.Disconnect()

	go func() {
		if err := sub.Connect(ctx); err != nil && ctx.Err() == nil {
			slog.Error("mqtt connect failed", "error", err)
		}
	}()

	opts := monitor.RenderOptions{
		Header: fmt.Sprintf("Weather monitor | broker tcp://%s:%d | topic %s",
			cfg.Broker.Host, cfg.Broker.Port, cfg.Broker.Topic),
		HideInvalid: cfg.HideInvalid,
	}

	ticker := time.NewTicker(cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("monitor shutting down")
			return ctx.Err()
		case now := <-ticker.C:
			report := board.Tick(now)
			if err := draw(out, report, opts); err != nil {
				return fmt.Errorf("render: %w", err)
			}
			sinks.persist(ctx, report)
		}
	}
}

func draw(out io.Writer, report monitor.Report, opts monitor.RenderOptions) error {
	if _, err := io.WriteString(out, monitor.ClearScreen); err != nil {
		return err
	}
	if err := monitor.Render(out, report, opts); err != nil {
		return err
	}
	for _, a := range report.Alerts {
		if _, err := fmt.Fprintln(out, a.String()); err != nil {
			return err
		}
	}
	return nil
}

// reportSinks receives the alerts and completed hours of every refresh.
// Failures are logged and do not stop the monitor.
type reportSinks struct {
	alertLog io.Writer
	store    *store.Store
}

func (s *reportSinks) persist(ctx context.Context, report monitor.Report) {
	for _, a := range report.Alerts {
		slog.Warn("station outage", "station_id", a.StationID, "silent", a.Silent)
		if s.alertLog != nil {
			if _, err := fmt.Fprintln(s.alertLog, a.String()); err != nil {
				slog.Error("outage log write", "error", err)
			}
		}
		if s.store != nil {
			if err := s.store.SaveAlert(ctx, a); err != nil {
				slog.Error("store alert", "error", err)
			}
		}
	}
	if s.store == nil {
		return
	}
	for _, h := range report.Hours {
		if err := s.store.SaveHourly(ctx, h); err != nil {
			slog.Error("store hourly", "error", err)
		}
	}
}
