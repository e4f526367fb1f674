package monitor

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

const (
	averageWindow = 5 * time.Minute
	// alertRepeat throttles repeated outage alerts for the same station.
	alertRepeat = 10 * time.Second

	dayLayout  = "2006-01-02"
	hourLayout = "2006-01-02T15"
)

type sample struct {
	at          time.Time
	temperature float64
	humidity    float64
}

// Extremes are the lowest and highest valid values of one UTC day.
type Extremes struct {
	Date           string
	MinTemperature float64
	MaxTemperature float64
	MinHumidity    float64
	MaxHumidity    float64
}

// HourlySummary aggregates the valid samples of one station in one UTC hour.
type HourlySummary struct {
	StationID      string
	Hour           string
	Count          int
	SumTemperature float64
	SumHumidity    float64
	MinTemperature float64
	MaxTemperature float64
	MinHumidity    float64
	MaxHumidity    float64
}

func (h HourlySummary) AvgTemperature() float64 { return h.SumTemperature / float64(h.Count) }

func (h HourlySummary) AvgHumidity() float64 { return h.SumHumidity / float64(h.Count) }

// Alert is raised when a station has been silent longer than the threshold.
type Alert struct {
	StationID string
	At        time.Time
	Silent    time.Duration
}

func (a Alert) String() string {
	return fmt.Sprintf("[ALERT] %s Station %s OUTAGE (%ds no data)",
		a.At.Local().Format(localLayout), a.StationID, int(a.Silent/time.Second))
}

type stationState struct {
	lastSeen  time.Time
	last      Message
	lastValid bool
	window    []sample
	day       *Extremes
	hourly    map[string]*HourlySummary
	nextAlert time.Time
}

func (s *stationState) pushValid(at time.Time, t, h float64) {
	cutoff := at.Add(-averageWindow)
	s.window = append(s.window, sample{at: at, temperature: t, humidity: h})
	drop := 0
	for drop < len(s.window) && s.window[drop].at.Before(cutoff) {
		drop++
	}
	s.window = s.window[drop:]

	date := at.UTC().Format(dayLayout)
	if s.day == nil || s.day.Date != date {
		s.day = &Extremes{Date: date, MinTemperature: t, MaxTemperature: t, MinHumidity: h, MaxHumidity: h}
	} else {
		s.day.MinTemperature = min(s.day.MinTemperature, t)
		s.day.MaxTemperature = max(s.day.MaxTemperature, t)
		s.day.MinHumidity = min(s.day.MinHumidity, h)
		s.day.MaxHumidity = max(s.day.MaxHumidity, h)
	}

	bucket := at.UTC().Format(hourLayout)
	acc, ok := s.hourly[bucket]
	if !ok {
		acc = &HourlySummary{Hour: bucket, MinTemperature: t, MaxTemperature: t, MinHumidity: h, MaxHumidity: h}
		s.hourly[bucket] = acc
	}
	acc.Count++
	acc.SumTemperature += t
	acc.SumHumidity += h
	acc.MinTemperature = min(acc.MinTemperature, t)
	acc.MaxTemperature = max(acc.MaxTemperature, t)
	acc.MinHumidity = min(acc.MinHumidity, h)
	acc.MaxHumidity = max(acc.MaxHumidity, h)
}

func (s *stationState) average() (t, h *float64) {
	if len(s.window) == 0 {
		return nil, nil
	}
	var st, sh float64
	for _, w := range s.window {
		st += w.temperature
		sh += w.humidity
	}
	n := float64(len(s.window))
	avgT, avgH := st/n, sh/n
	return &avgT, &avgH
}

// popCompletedHours removes and returns buckets older than the current hour, oldest first.
func (s *stationState) popCompletedHours(current string) []*HourlySummary {
	var done []*HourlySummary
	for bucket, acc := range s.hourly {
		if bucket < current {
			done = append(done, acc)
			delete(s.hourly, bucket)
		}
	}
	sort.Slice(done, func(i, j int) bool { return done[i].Hour < done[j].Hour })
	return done
}

// Board holds the per-station state. It is safe for concurrent use: Observe
// runs on the broker callback goroutine and Tick on the refresh loop.
type Board struct {
	mu          sync.Mutex
	stations    map[string]*stationState
	outageAfter time.Duration
}

func NewBoard(outageAfter time.Duration) *Board {
	return &Board{
		stations:    make(map[string]*stationState),
		outageAfter: outageAfter,
	}
}

// Observe records a payload received at now. It reports false when the
// payload was ignored.
func (b *Board) Observe(payload []byte, now time.Time) bool {
	msg, ok := ParseMessage(payload)
	if !ok {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.stations[msg.StationID]
	if !ok {
		st = &stationState{hourly: make(map[string]*HourlySummary)}
		b.stations[msg.StationID] = st
	}
	st.lastSeen = now
	st.last = msg
	st.lastValid = msg.Valid()

	if st.lastValid {
		at := msg.Timestamp
		if at.IsZero() {
			at = now
		}
		st.pushValid(at, *msg.Temperature, *msg.Humidity)
	}
	return true
}

// Row is one station line of the dashboard.
type Row struct {
	StationID      string
	Temperature    *float64
	Humidity       *float64
	Valid          bool
	LastSeen       time.Time
	AvgTemperature *float64
	AvgHumidity    *float64
	Day            *Extremes
}

// Report is the outcome of one refresh.
type Report struct {
	At     time.Time
	Rows   []Row
	Hours  []HourlySummary
	Alerts []Alert
}

// Tick builds the dashboard at now. Completed hours are handed out exactly
// once, and alerts at most every ten seconds per silent station.
func (b *Board) Tick(now time.Time) Report {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]string, 0, len(b.stations))
	for id := range b.stations {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	report := Report{At: now}
	currentHour := now.UTC().Format(hourLayout)
	for _, id := range ids {
		st := b.stations[id]

		row := Row{
			StationID:   id,
			Temperature: st.last.Temperature,
			Humidity:    st.last.Humidity,
			Valid:       st.lastValid,
			LastSeen:    st.lastSeen,
		}
		row.AvgTemperature, row.AvgHumidity = st.average()
		if st.day != nil {
			day := *st.day
			row.Day = &day
		}
		report.Rows = append(report.Rows, row)

		for _, acc := range st.popCompletedHours(currentHour) {
			h := *acc
			h.StationID = id
			report.Hours = append(report.Hours, h)
		}

		silent := now.Sub(st.lastSeen)
		if silent > b.outageAfter && !now.Before(st.nextAlert) {
			report.Alerts = append(report.Alerts, Alert{StationID: id, At: now, Silent: silent})
			st.nextAlert = now.Add(alertRepeat)
		}
	}
	return report
}
