// Package clock provides the pausable, speed-scalable playback time source
// shared by the scheduler, the input path and the accompaniment sequencer.
package clock

import (
	"math"
	"sync"
	"time"
)

// Playback speed limits.
const (
	MinSpeed = 0.1
	MaxSpeed = 2.0
)

// Clock reports effective playback time in seconds. Wall time spent paused
// never counts as elapsed playback time.
//
// Effective time is kept as a base value plus the scaled wall time since the
// last anchor. Pause, Resume and SetSpeed move the anchor so the reported
// value stays continuous across every state change.
type Clock struct {
	mu  sync.Mutex
	now func() time.Time

	started bool
	anchor  time.Time // wall time of the last rebase
	base    float64   // effective seconds at anchor
	speed   float64

	paused           bool
	pauseBeganAt     time.Time
	accumulatedPause time.Duration
}

// Option configures a Clock.
type Option func(*Clock)

// WithNow replaces the wall clock, mainly for tests.
func WithNow(now func() time.Time) Option {
	return func(c *Clock) {
		c.now = now
	}
}

// WithSpeed sets the initial playback speed.
func WithSpeed(speed float64) Option {
	return func(c *Clock) {
		if s, ok := clampSpeed(speed); ok {
			c.speed = s
		}
	}
}

// New creates a stopped clock. EffectiveTime reports 0 until Start.
func New(opts ...Option) *Clock {
	c := &Clock{
		now:   time.Now,
		speed: 1.0,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start (re)starts playback from effective time 0 in the running state.
func (c *Clock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.started = true
	c.anchor = c.now()
	c.base = 0
	c.paused = false
	c.pauseBeganAt = time.Time{}
	c.accumulatedPause = 0
}

// Pause freezes effective time. It is a no-op when already paused or not started.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started || c.paused {
		return
	}
	now := c.now()
	c.base = c.effectiveAt(now)
	c.anchor = now
	c.paused = true
	c.pauseBeganAt = now
}

// Resume continues playback from the frozen value. It is a no-op when not paused.
func (c *Clock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.paused {
		return
	}
	now := c.now()
	if d := now.Sub(c.pauseBeganAt); d > 0 {
		c.accumulatedPause += d
	}
	c.anchor = now
	c.paused = false
	c.pauseBeganAt = time.Time{}
}

// SetSpeed changes the playback rate, clamped to [MinSpeed, MaxSpeed].
// Non-positive and NaN values are ignored. Time elapsed so far is kept.
func (c *Clock) SetSpeed(speed float64) {
	s, ok := clampSpeed(speed)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started && !c.paused {
		now := c.now()
		c.base = c.effectiveAt(now)
		c.anchor = now
	}
	c.speed = s
}

// EffectiveTime returns playback time in seconds.
func (c *Clock) EffectiveTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return 0
	}
	if c.paused {
		return c.base
	}
	return c.effectiveAt(c.now())
}

// Speed returns the current playback rate.
func (c *Clock) Speed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

// IsPaused reports whether the clock is paused.
func (c *Clock) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// IsStarted reports whether Start has been called.
func (c *Clock) IsStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// PausedFor returns the total wall time spent paused since Start,
// including the current pause.
func (c *Clock) PausedFor() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.accumulatedPause
	if c.paused {
		if d := c.now().Sub(c.pauseBeganAt); d > 0 {
			total += d
		}
	}
	return total
}

// effectiveAt must be called with mu held and the clock running.
func (c *Clock) effectiveAt(now time.Time) float64 {
	elapsed := now.Sub(c.anchor).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	return c.base + elapsed*c.speed
}

func clampSpeed(speed float64) (float64, bool) {
	if math.IsNaN(speed) || speed <= 0 {
		return 0, false
	}
	return math.Max(MinSpeed, math.Min(MaxSpeed, speed)), true
}
