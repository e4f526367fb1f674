package station

import (
	"log/slog"
	"time"
)

type Option func(*Publisher)

func WithClock(c Clock) Option {
	return func(p *Publisher) { p.clock = c }
}

func WithRand(r Rand) Option {
	return func(p *Publisher) { p.rand = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(p *Publisher) {
		if o != nil {
			p.observer = o
		}
	}
}

// WithOutageProbability sets the per-tick chance of starting an outage.
func WithOutageProbability(v float64) Option {
	return func(p *Publisher) { p.outageProbability = v }
}

// WithFaultProbability sets the per-reading chance of a -999 temperature.
func WithFaultProbability(v float64) Option {
	return func(p *Publisher) { p.faultProbability = v }
}

func WithFailurePolicy(policy FailurePolicy) Option {
	return func(p *Publisher) { p.policy = policy }
}

// Observer is notified of loop events. Implementations must not block.
type Observer interface {
	ReadingPublished(r Reading)
	FaultInjected()
	OutageStarted(until time.Time)
	OutageEnded()
	PublishFailed(err error)
}

type nopObserver struct{}

func (nopObserver) ReadingPublished(Reading) {}
func (nopObserver) FaultInjected() {}
func (nopObserver) OutageStarted(time.Time) {}
func (nopObserver) OutageEnded() {}
func (nopObserver) PublishFailed(error) {}
