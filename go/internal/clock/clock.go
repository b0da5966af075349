// Package clock wraps a clockwork.Clock with a scale factor so every delay the
// session engine schedules can be compressed in tests without touching the
// production code paths.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the time source used by the session engine, the rate limiter and
// the sweepers. Durations handed to AfterFunc, NewTicker and Scale are
// multiplied by the configured factor; Since divides real elapsed time by it,
// so callers always reason in game time.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	Scale(d time.Duration) time.Duration
	AfterFunc(d time.Duration, f func()) Timer
	NewTicker(d time.Duration) clockwork.Ticker
}

// Timer is a cancellable handle for a scheduled callback.
type Timer interface {
	Stop() bool
}

// Scaled is the Clock implementation backed by clockwork.
type Scaled struct {
	base   clockwork.Clock
	factor float64
}

// New returns a Clock over base. A non-positive factor means real time.
func New(base clockwork.Clock, factor float64) *Scaled {
	if factor <= 0 {
		factor = 1
	}
	return &Scaled{base: base, factor: factor}
}

// NewReal returns a wall-clock Clock with the given scale factor.
func NewReal(factor float64) *Scaled {
	return New(clockwork.NewRealClock(), factor)
}

// Factor reports the configured scale factor.
func (c *Scaled) Factor() float64 {
	return c.factor
}

func (c *Scaled) Now() time.Time {
	return c.base.Now()
}

// Since returns game time elapsed since t.
func (c *Scaled) Since(t time.Time) time.Duration {
	elapsed := c.base.Since(t)
	if c.factor == 1 {
		return elapsed
	}
	return time.Duration(float64(elapsed) / c.factor)
}

// Scale converts a game duration into the real duration the clock waits for.
func (c *Scaled) Scale(d time.Duration) time.Duration {
	if c.factor == 1 {
		return d
	}
	return time.Duration(float64(d) * c.factor)
}

func (c *Scaled) AfterFunc(d time.Duration, f func()) Timer {
	return c.base.AfterFunc(c.Scale(d), f)
}

func (c *Scaled) NewTicker(d time.Duration) clockwork.Ticker {
	scaled := c.Scale(d)
	if scaled <= 0 {
		scaled = time.Millisecond
	}
	return c.base.NewTicker(scaled)
}
