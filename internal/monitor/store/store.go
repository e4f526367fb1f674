// Package store persists the monitor's hourly summaries and outage alerts.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/GibsMichele/WeatherApp/internal/monitor"
)

//go:embed sql/upsert-hourly.sql
var upsertHourlySQL string

//go:embed sql/insert-alert.sql
var insertAlertSQL string

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// SaveHourly records a completed hour. Saving the same station and hour again
// replaces the earlier row.
func (s *Store) SaveHourly(ctx context.Context, h monitor.HourlySummary) error {
	if h.Count == 0 {
		return fmt.Errorf("hourly summary %s/%s has no samples", h.StationID, h.Hour)
	}
	_, err := s.db.ExecContext(ctx, upsertHourlySQL,
		h.StationID, h.Hour, h.Count,
		h.AvgTemperature(), h.MinTemperature, h.MaxTemperature,
		h.AvgHumidity(), h.MinHumidity, h.MaxHumidity,
	)
	if err != nil {
		return fmt.Errorf("save hourly %s/%s: %w", h.StationID, h.Hour, err)
	}
	return nil
}

func (s *Store) SaveAlert(ctx context.Context, a monitor.Alert) error {
	_, err := s.db.ExecContext(ctx, insertAlertSQL,
		a.StationID, a.At.UTC().Format(time.RFC3339Nano), int64(a.Silent/time.Second))
	if err != nil {
		return fmt.Errorf("save alert %s: %w", a.StationID, err)
	}
	return nil
}
