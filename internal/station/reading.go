package station

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// FaultTemperature is published instead of a measured temperature when a
// sensor fault is simulated. It is a valid data point, not an error.
const FaultTemperature = -999

// TimestampLayout is the wire format of Reading.Timestamp (UTC, second precision).
const TimestampLayout = "2006-01-02T15:04:05Z"

const (
	MinTemperature = 15.0
	MaxTemperature = 30.0
	MinHumidity    = 30.0
	MaxHumidity    = 60.0
)

// Reading is one synthetic measurement of a station.
type Reading struct {
	StationID   string
	Temperature float64
	Humidity    float64
	Timestamp   time.Time
}

// Faulty reports whether the reading carries the sensor fault sentinel.
func (r Reading) Faulty() bool {
	return r.Temperature == FaultTemperature
}

type wireReading struct {
	StationID   string          `json:"stationId"`
	Temperature json.RawMessage `json:"temperature"`
	Humidity    json.RawMessage `json:"humidity"`
	Timestamp   string          `json:"timestamp"`
}

// MarshalJSON renders measured values with one fractional digit and the
// fault sentinel as the integer literal -999.
func (r Reading) MarshalJSON() ([]byte, error) {
	temperature := formatDecimal(r.Temperature)
	if r.Faulty() {
		temperature = strconv.Itoa(FaultTemperature)
	}
	return json.Marshal(wireReading{
		StationID:   r.StationID,
		Temperature: json.RawMessage(temperature),
		Humidity:    json.RawMessage(formatDecimal(r.Humidity)),
		Timestamp:   r.Timestamp.UTC().Format(TimestampLayout),
	})
}

func (r *Reading) UnmarshalJSON(b []byte) error {
	var w struct {
		StationID   string  `json:"stationId"`
		Temperature float64 `json:"temperature"`
		Humidity    float64 `json:"humidity"`
		Timestamp   string  `json:"timestamp"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	ts, err := time.Parse(TimestampLayout, w.Timestamp)
	if err != nil {
		return fmt.Errorf("timestamp %q: %w", w.Timestamp, err)
	}
	*r = Reading{
		StationID:   w.StationID,
		Temperature: w.Temperature,
		Humidity:    w.Humidity,
		Timestamp:   ts,
	}
	return nil
}

func formatDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func uniform(rnd Rand, lo, hi float64) float64 {
	return lo + rnd.Float64()*(hi-lo)
}

// generateReading draws the fault roll first, then the temperature (only
// when no fault), then the humidity.
func generateReading(stationID string, rnd Rand, faultProbability float64, now time.Time) Reading {
	temperature := float64(FaultTemperature)
	if rnd.Float64() >= faultProbability {
		temperature = round1(uniform(rnd, MinTemperature, MaxTemperature))
	}
	return Reading{
		StationID:   stationID,
		Temperature: temperature,
		Humidity:    round1(uniform(rnd, MinHumidity, MaxHumidity)),
		Timestamp:   now.UTC().Truncate(time.Second),
	}
}
