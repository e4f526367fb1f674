package station

import (
	"context"
	"math/rand/v2"
	"time"
)

// Clock is the time source and delay primitive of the publish loop.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock uses wall-clock time.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Rand yields uniform values in [0, 1).
type Rand interface {
	Float64() float64
}

// NewRand returns a deterministic source for the given seed.
func NewRand(seed uint64) Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// NewRandomRand returns a source seeded from the runtime's entropy.
func NewRandomRand() Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}
