// Package monitor aggregates readings published by weather stations: the
// latest value, a five minute average, daily extremes, hourly summaries
// and silence-based outage alerts.
package monitor

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Bounds a reading must fall within to count as valid.
const (
	MinValidTemperature = -50.0
	MaxValidTemperature = 80.0
	MinValidHumidity    = 0.0
	MaxValidHumidity    = 100.0

	faultTemperature = -999
)

// Message is a decoded station payload. Absent or non-numeric values are nil.
type Message struct {
	StationID   string
	Temperature *float64
	Humidity    *float64
	// Timestamp is zero when the payload carries none or it does not parse.
	Timestamp time.Time
}

type rawMessage struct {
	StationID      string          `json:"stationId"`
	StationIDSnake string          `json:"station_id"`
	Temperature    json.RawMessage `json:"temperature"`
	Humidity       json.RawMessage `json:"humidity"`
	Timestamp      string          `json:"timestamp"`
}

// ParseMessage decodes payload. It reports false for anything that is not a
// JSON object naming a station.
func ParseMessage(payload []byte) (Message, bool) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || payload[0] != '{' {
		return Message{}, false
	}
	var raw rawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Message{}, false
	}

	id := raw.StationIDSnake
	if id == "" {
		id = raw.StationID
	}
	if id == "" {
		return Message{}, false
	}

	return Message{
		StationID:   id,
		Temperature: parseNumber(raw.Temperature),
		Humidity:    parseNumber(raw.Humidity),
		Timestamp:   parseTimestamp(raw.Timestamp),
	}, true
}

// parseNumber accepts JSON numbers and numeric strings.
func parseNumber(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		if v, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return nil
		}
	}
	return &v
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseTimestamp reads RFC 3339 and zone-less forms; zone-less means UTC.
func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// Valid reports whether both values are present, finite, not the fault
// sentinel and within the plausible bounds.
func (m Message) Valid() bool {
	if m.Temperature == nil || m.Humidity == nil {
		return false
	}
	t, h := *m.Temperature, *m.Humidity
	if math.IsNaN(t) || math.IsInf(t, 0) || math.IsNaN(h) || math.IsInf(h, 0) {
		return false
	}
	if t == faultTemperature {
		return false
	}
	if t < MinValidTemperature || t > MaxValidTemperature {
		return false
	}
	return h >= MinValidHumidity && h <= MaxValidHumidity
}
