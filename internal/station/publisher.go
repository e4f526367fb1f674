// Package station runs the publish loop of a simulated weather station:
// periodic synthetic readings, randomly injected 60 second outages during
// which nothing is published, and occasional -999 sensor fault values.
package station

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	DefaultOutageProbability = 0.005
	DefaultFaultProbability  = 0.01

	// OutageDuration is how long a station stays silent once an outage starts.
	OutageDuration = 60 * time.Second
	// PollInterval is the delay between checks while silent and after an
	// outage starts. It does not depend on the publish interval.
	PollInterval = time.Second
)

// State is the publisher's connectivity state.
type State int

const (
	StateNormal State = iota
	StateOutage
)

func (s State) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateOutage:
		return "outage"
	default:
		return "unknown"
	}
}

// FailurePolicy decides what a failed publish does to the loop.
type FailurePolicy int

const (
	// FailContinue logs the failure and carries on as if the tick published nothing.
	FailContinue FailurePolicy = iota
	// FailFatal stops the loop with the publish error.
	FailFatal
)

func (p FailurePolicy) String() string {
	if p == FailFatal {
		return "fatal"
	}
	return "continue"
}

// ParseFailurePolicy accepts "continue" or "fatal" (case-insensitive).
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "continue":
		return FailContinue, nil
	case "fatal":
		return FailFatal, nil
	default:
		return FailContinue, fmt.Errorf("invalid failure policy %q (allowed: continue, fatal)", s)
	}
}

// Sink delivers a serialized reading to a broker topic.
type Sink interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Config identifies the station and its publish timeline.
type Config struct {
	StationID string
	Interval  time.Duration
	Topic     string
}

// TickResult describes what one Step did.
type TickResult struct {
	State         State
	OutageStarted bool
	Published     bool
	// Reading is set whenever a reading was generated, published or not.
	Reading *Reading
	Delay   time.Duration
}

// Publisher owns the outage state of one station and drives its loop.
// It is not safe for concurrent use; one goroutine runs it.
type Publisher struct {
	cfg      Config
	sink     Sink
	clock    Clock
	rand     Rand
	logger   *slog.Logger
	observer Observer
	policy   FailurePolicy

	outageProbability float64
	faultProbability  float64

	silentUntil time.Time
	silent      bool
}

// New validates cfg and returns a Publisher in the normal state.
func New(cfg Config, sink Sink, opts ...Option) (*Publisher, error) {
	if strings.TrimSpace(cfg.StationID) == "" {
		return nil, errors.New("station id is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("publish interval must be positive, got %v", cfg.Interval)
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic is required")
	}
	if sink == nil {
		return nil, errors.New("sink is required")
	}

	p := &Publisher{
		cfg:               cfg,
		sink:              sink,
		clock:             SystemClock{},
		logger:            slog.Default(),
		observer:          nopObserver{},
		outageProbability: DefaultOutageProbability,
		faultProbability:  DefaultFaultProbability,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.rand == nil {
		p.rand = NewRandomRand()
	}
	if err := checkProbability("outage", p.outageProbability); err != nil {
		return nil, err
	}
	if err := checkProbability("fault", p.faultProbability); err != nil {
		return nil, err
	}
	return p, nil
}

func checkProbability(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s probability must be within [0, 1], got %v", name, v)
	}
	return nil
}

// SilentUntil returns the end of the current or last outage; zero if none started.
func (p *Publisher) SilentUntil() time.Time {
	return p.silentUntil
}

// State reports the state at instant now.
func (p *Publisher) State(now time.Time) State {
	if now.Before(p.silentUntil) {
		return StateOutage
	}
	return StateNormal
}

// Run loops until ctx is done or, under FailFatal, a publish fails.
func (p *Publisher) Run(ctx context.Context) error {
	p.logger.Info("station loop started",
		"station_id", p.cfg.StationID,
		"topic", p.cfg.Topic,
		"interval", p.cfg.Interval.String(),
		"failure_policy", p.policy.String(),
	)
	for {
		if _, err := p.Step(ctx); err != nil {
			return err
		}
	}
}

// Step runs one tick: stay silent, start an outage, or publish one reading,
// followed by the matching delay.
func (p *Publisher) Step(ctx context.Context) (TickResult, error) {
	now := p.clock.Now()
	if now.Before(p.silentUntil) {
		return p.pause(ctx, TickResult{State: StateOutage}, PollInterval)
	}
	if p.silent {
		p.silent = false
		p.logger.Debug("outage ended", "station_id", p.cfg.StationID)
		p.observer.OutageEnded()
	}

	if p.rand.Float64() < p.outageProbability {
		p.silentUntil = now.Add(OutageDuration)
		p.silent = true
		p.logger.Info("outage started",
			"station_id", p.cfg.StationID,
			"duration", OutageDuration.String(),
			"until", p.silentUntil.UTC().Format(TimestampLayout),
		)
		p.observer.OutageStarted(p.silentUntil)
		return p.pause(ctx, TickResult{State: StateOutage, OutageStarted: true}, PollInterval)
	}

	reading := generateReading(p.cfg.StationID, p.rand, p.faultProbability, p.clock.Now())
	res := TickResult{State: StateNormal, Reading: &reading}
	if reading.Faulty() {
		p.observer.FaultInjected()
	}

	payload, err := json.Marshal(reading)
	if err != nil {
		return res, fmt.Errorf("marshal reading: %w", err)
	}

	if err := p.sink.Publish(ctx, p.cfg.Topic, payload); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		p.observer.PublishFailed(err)
		if p.policy == FailFatal {
			return res, fmt.Errorf("publish to %s: %w", p.cfg.Topic, err)
		}
		p.logger.Warn("publish failed",
			"station_id", p.cfg.StationID,
			"topic", p.cfg.Topic,
			"error", err,
		)
		return p.pause(ctx, res, p.cfg.Interval)
	}

	res.Published = true
	p.observer.ReadingPublished(reading)
	p.logger.Info("reading published",
		"station_id", p.cfg.StationID,
		"record", string(payload),
	)
	return p.pause(ctx, res, p.cfg.Interval)
}

func (p *Publisher) pause(ctx context.Context, res TickResult, d time.Duration) (TickResult, error) {
	res.Delay = d
	if err := p.clock.Sleep(ctx, d); err != nil {
		return res, err
	}
	return res, nil
}
