package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/GibsMichele/WeatherApp/internal/app"
	"github.com/GibsMichele/WeatherApp/internal/config"
	"github.com/GibsMichele/WeatherApp/internal/logging"
)

var version = "dev"
var appName = "weather-monitor"

func main() {
	cfg, err := config.LoadMonitorFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// stdout belongs to the dashboard.
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.AppEnv, version, appName)
	slog.SetDefault(logger)

	slog.Info("starting",
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
		"log_level", cfg.LogLevel.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunMonitor(ctx, cfg, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run failed", "err", err)
		os.Exit(1)
	}

	slog.Info("shutting down")
}
