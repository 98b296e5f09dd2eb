// Package scheduler turns score events into falling notes over playback time.
//
// A Scheduler is advanced once per update tick. Each tick activates notes
// whose spawn time has passed, marks notes that slipped past the good window
// as missed, and retires resolved notes after the feedback grace period.
// A Scheduler is owned by a single goroutine and is not safe for concurrent use.
package scheduler

import (
	"errors"
	"fmt"
	"math"

	"github.com/zurustar/keyfall/pkg/score"
)

// ErrInvalidConfig is returned by New for non-positive lead time or negative windows.
var ErrInvalidConfig = errors.New("invalid scheduler configuration")

// Defaults for Config.
const (
	DefaultGoodWindow  = 0.15
	DefaultRetireGrace = 0.5
)

// Clock is the time source the scheduler reads once per tick.
type Clock interface {
	EffectiveTime() float64
}

// Config holds the timing constants of a session.
type Config struct {
	LeadTime    float64 // seconds between spawn and target
	GoodWindow  float64 // a note is missed once t >= target + GoodWindow
	RetireGrace float64 // seconds a resolved note stays visible; 0 retires on the next tick
}

// LeadTime derives the lead time from the configured fall distance and speed.
func LeadTime(fallDistance, fallSpeed float64) (float64, error) {
	if !(fallDistance > 0) || !(fallSpeed > 0) || math.IsInf(fallDistance, 0) || math.IsInf(fallSpeed, 0) {
		return 0, fmt.Errorf("%w: fall distance %v and speed %v must be positive", ErrInvalidConfig, fallDistance, fallSpeed)
	}
	return fallDistance / fallSpeed, nil
}

// Scheduler owns the pending queue and the active set of one session.
type Scheduler struct {
	cfg Config

	pending []score.Event // sorted by start, so also by spawn
	next    int

	active []*FallingNote // spawn order
	nextID int
}

// New creates a scheduler over events, which must already be sorted by start
// time as score.Load returns them.
func New(events []score.Event, cfg Config) (*Scheduler, error) {
	if !(cfg.LeadTime > 0) {
		return nil, fmt.Errorf("%w: lead time %v must be positive", ErrInvalidConfig, cfg.LeadTime)
	}
	if cfg.GoodWindow < 0 || cfg.RetireGrace < 0 {
		return nil, fmt.Errorf("%w: windows must not be negative", ErrInvalidConfig)
	}

	pending := make([]score.Event, len(events))
	copy(pending, events)

	return &Scheduler{
		cfg:     cfg,
		pending: pending,
	}, nil
}

// Tick advances the scheduler to the clock's effective time.
func (s *Scheduler) Tick(c Clock) (activated, missed []*FallingNote) {
	return s.Advance(c.EffectiveTime())
}

// Advance runs activation, miss detection and retirement at time t.
func (s *Scheduler) Advance(t float64) (activated, missed []*FallingNote) {
	activated = s.Activate(t)
	missed = s.Expire(t)
	s.Retire(t)
	return activated, missed
}

// Activate consumes the prefix of the pending queue whose spawn time has come
// and returns the new Active notes.
func (s *Scheduler) Activate(t float64) []*FallingNote {
	var activated []*FallingNote
	for s.next < len(s.pending) {
		ev := s.pending[s.next]
		spawn := ev.StartTime - s.cfg.LeadTime
		if spawn > t {
			break
		}
		note := &FallingNote{
			ID:         s.nextID,
			Pitch:      ev.Pitch,
			Velocity:   ev.Velocity,
			Channel:    ev.Channel,
			SpawnTime:  spawn,
			TargetTime: ev.StartTime,
			EndTime:    ev.EndTime,
			Status:     Scheduled,
		}
		_ = note.transition(Active, t)
		s.nextID++
		s.next++
		s.active = append(s.active, note)
		activated = append(activated, note)
	}
	return activated
}

// Expire marks every Active note whose good window closed at or before t as
// Missed and returns them. It does not activate new notes.
func (s *Scheduler) Expire(t float64) []*FallingNote {
	var missed []*FallingNote
	for _, note := range s.active {
		if note.Status != Active {
			continue
		}
		if t >= note.TargetTime+s.cfg.GoodWindow {
			_ = note.transition(Missed, t)
			missed = append(missed, note)
		}
	}
	return missed
}

// Retire drops resolved notes whose grace period has elapsed at t.
func (s *Scheduler) Retire(t float64) {
	kept := s.active[:0]
	for _, note := range s.active {
		if note.Status.IsResolved() && t >= note.resolvedAt+s.cfg.RetireGrace {
			_ = note.transition(Retired, t)
			continue
		}
		kept = append(kept, note)
	}
	for i := len(kept); i < len(s.active); i++ {
		s.active[i] = nil
	}
	s.active = kept
}

// Resolve records a judgement for an active note at input time at.
func (s *Scheduler) Resolve(note *FallingNote, status Status, at float64) error {
	if !status.IsResolved() {
		return fmt.Errorf("%w: %s is not a judgement", ErrInvalidTransition, status)
	}
	return note.transition(status, at)
}

// ActiveNotes returns the notes currently in the active set, including
// resolved notes inside their grace period, in spawn order.
func (s *Scheduler) ActiveNotes() []*FallingNote {
	out := make([]*FallingNote, len(s.active))
	copy(out, s.active)
	return out
}

// IsComplete reports whether both the pending queue and the active set are empty.
func (s *Scheduler) IsComplete() bool {
	return s.next >= len(s.pending) && len(s.active) == 0
}

// Pending returns the number of score events not yet spawned.
func (s *Scheduler) Pending() int {
	return len(s.pending) - s.next
}

// Total returns the number of score events the scheduler was created with.
func (s *Scheduler) Total() int {
	return len(s.pending)
}

// LeadTime returns the configured lead time.
func (s *Scheduler) LeadTime() float64 {
	return s.cfg.LeadTime
}

// Upcoming returns up to n pending events that spawn after the active set,
// for previews.
func (s *Scheduler) Upcoming(n int) []score.Event {
	if n <= 0 {
		return nil
	}
	end := min(s.next+n, len(s.pending))
	out := make([]score.Event, end-s.next)
	copy(out, s.pending[s.next:end])
	return out
}
