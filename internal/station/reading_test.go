package station

import (
	"encoding/json"
	"testing"
	"time"
)

func TestReadingMarshalJSON(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 7, 0, time.FixedZone("CEST", 2*60*60))
	tests := []struct {
		name    string
		reading Reading
		want    string
	}{
		{
			name:    "whole numbers keep one decimal",
			reading: Reading{StationID: "WS-01", Temperature: 22, Humidity: 45, Timestamp: ts},
			want:    `{"stationId":"WS-01","temperature":22.0,"humidity":45.0,"timestamp":"2024-05-01T10:00:07Z"}`,
		},
		{
			name:    "fault sentinel is an integer",
			reading: Reading{StationID: "WS-02", Temperature: FaultTemperature, Humidity: 31.4, Timestamp: ts},
			want:    `{"stationId":"WS-02","temperature":-999,"humidity":31.4,"timestamp":"2024-05-01T10:00:07Z"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.reading)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Marshal = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestReadingUnmarshalJSON_BadTimestamp(t *testing.T) {
	var r Reading
	err := json.Unmarshal([]byte(`{"stationId":"WS-01","temperature":20.0,"humidity":40.0,"timestamp":"yesterday"}`), &r)
	if err == nil {
		t.Fatal("Unmarshal error = nil, want non-nil")
	}
}

func TestGenerateReading_DrawOrder(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 900_000_000, time.UTC)

	rnd := &scriptedRand{values: []float64{0.5, 0, 0.999999}}
	r := generateReading("WS-01", rnd, 0.01, now)
	if r.Temperature != MinTemperature {
		t.Errorf("Temperature = %v, want %v", r.Temperature, MinTemperature)
	}
	if r.Humidity != MaxHumidity {
		t.Errorf("Humidity = %v, want %v", r.Humidity, MaxHumidity)
	}
	if !r.Timestamp.Equal(now.Truncate(time.Second)) {
		t.Errorf("Timestamp = %v, want truncated to the second", r.Timestamp)
	}

	rnd = &scriptedRand{values: []float64{0.001, 0.5}}
	r = generateReading("WS-01", rnd, 0.01, now)
	if !r.Faulty() {
		t.Errorf("Temperature = %v, want fault sentinel", r.Temperature)
	}
	if r.Humidity != 45 {
		t.Errorf("Humidity = %v, want 45 (second draw)", r.Humidity)
	}
}
