// Package matcher classifies live key presses against the active falling notes.
package matcher

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/zurustar/keyfall/pkg/logger"
	"github.com/zurustar/keyfall/pkg/scheduler"
)

// Default timing windows in seconds.
const (
	DefaultPerfectWindow = 0.05
	DefaultGoodWindow    = 0.15
)

// ErrInvalidWindows is returned when the perfect window is negative or wider
// than the good window.
var ErrInvalidWindows = errors.New("invalid timing windows")

// Result is the classification of one key press.
type Result int

const (
	NoMatch Result = iota
	Perfect
	Good
	Hit
	Wrong
)

var resultNames = [...]string{"no-match", "perfect", "good", "hit", "wrong"}

func (r Result) String() string {
	if r < 0 || int(r) >= len(resultNames) {
		return fmt.Sprintf("Result(%d)", int(r))
	}
	return resultNames[r]
}

// IsSuccess reports whether the result continues a combo.
func (r Result) IsSuccess() bool {
	return r == Perfect || r == Good || r == Hit
}

// Policy decides what happens to a press whose pitch has no active note.
type Policy int

const (
	// PolicyPitchScoped ignores the press (NoMatch).
	PolicyPitchScoped Policy = iota
	// PolicyNearestActive judges the press Wrong against the nearest active
	// note of another pitch that is inside its good window.
	PolicyNearestActive
)

func (p Policy) String() string {
	switch p {
	case PolicyPitchScoped:
		return "pitch-scoped"
	case PolicyNearestActive:
		return "nearest-active"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy accepts the names printed by Policy.String.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pitch-scoped":
		return PolicyPitchScoped, nil
	case "nearest-active":
		return PolicyNearestActive, nil
	default:
		return 0, fmt.Errorf("unknown wrong-note policy: %q", s)
	}
}

// Windows holds the tiered timing tolerances.
type Windows struct {
	Perfect float64
	Good    float64
}

// DefaultWindows returns the standard 50ms/150ms tiers.
func DefaultWindows() Windows {
	return Windows{Perfect: DefaultPerfectWindow, Good: DefaultGoodWindow}
}

// Validate checks 0 <= Perfect <= Good.
func (w Windows) Validate() error {
	if math.IsNaN(w.Perfect) || math.IsNaN(w.Good) || w.Perfect < 0 || w.Good < w.Perfect {
		return fmt.Errorf("%w: perfect %v, good %v", ErrInvalidWindows, w.Perfect, w.Good)
	}
	return nil
}

// Classify maps an absolute timing error to a result for a press that has a
// candidate note.
func (w Windows) Classify(timingError float64) Result {
	e := math.Abs(timingError)
	switch {
	case e <= w.Perfect:
		return Perfect
	case e <= w.Good:
		return Good
	default:
		return Hit
	}
}

// Notes is the view of the scheduler the matcher needs.
type Notes interface {
	ActiveNotes() []*scheduler.FallingNote
	Resolve(note *scheduler.FallingNote, status scheduler.Status, at float64) error
}

// Match describes the outcome of one press.
type Match struct {
	Result      Result
	Pitch       int
	Time        float64
	Note        *scheduler.FallingNote // nil for NoMatch
	TimingError float64                // press time minus target, 0 for NoMatch
}

// Matcher resolves presses against active notes. It shares the scheduler's
// single-goroutine ownership.
type Matcher struct {
	notes   Notes
	windows Windows
	policy  Policy
	log     *slog.Logger
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithWindows overrides the timing windows.
func WithWindows(w Windows) Option {
	return func(m *Matcher) {
		m.windows = w
	}
}

// WithPolicy selects the unmatched-pitch policy. It cannot change afterwards.
func WithPolicy(p Policy) Option {
	return func(m *Matcher) {
		m.policy = p
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Matcher) {
		m.log = log
	}
}

// New creates a Matcher over the given notes.
func New(notes Notes, opts ...Option) (*Matcher, error) {
	m := &Matcher{
		notes:   notes,
		windows: DefaultWindows(),
		policy:  PolicyPitchScoped,
		log:     logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.windows.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Policy returns the policy fixed at construction.
func (m *Matcher) Policy() Policy {
	return m.policy
}

// Windows returns the configured timing windows.
func (m *Matcher) Windows() Windows {
	return m.windows
}

// OnInput classifies a press of pitch at effective time t. Among active notes
// of that pitch the earliest spawned one is chosen.
func (m *Matcher) OnInput(pitch int, t float64) Match {
	active := m.notes.ActiveNotes()

	if note := earliestOfPitch(active, pitch); note != nil {
		timingError := note.TimingError(t)
		result := m.windows.Classify(timingError)
		if err := m.notes.Resolve(note, scheduler.Hit, t); err != nil {
			m.log.Error("Failed to resolve hit", "note", note.ID, "error", err)
			return Match{Result: NoMatch, Pitch: pitch, Time: t}
		}
		m.log.Debug("Input matched", "pitch", pitch, "result", result.String(), "error_ms", timingError*1000)
		return Match{Result: result, Pitch: pitch, Time: t, Note: note, TimingError: timingError}
	}

	if m.policy == PolicyNearestActive {
		if note := m.nearestInWindow(active, t); note != nil {
			if err := m.notes.Resolve(note, scheduler.Wrong, t); err != nil {
				m.log.Error("Failed to resolve wrong note", "note", note.ID, "error", err)
				return Match{Result: NoMatch, Pitch: pitch, Time: t}
			}
			m.log.Debug("Wrong note", "pressed", pitch, "expected", note.Pitch)
			return Match{Result: Wrong, Pitch: pitch, Time: t, Note: note, TimingError: note.TimingError(t)}
		}
	}

	return Match{Result: NoMatch, Pitch: pitch, Time: t}
}

// earliestOfPitch picks the Active note of pitch with the smallest spawn time.
// Equal spawn times fall back to score order.
func earliestOfPitch(active []*scheduler.FallingNote, pitch int) *scheduler.FallingNote {
	var best *scheduler.FallingNote
	for _, n := range active {
		if n.Status != scheduler.Active || n.Pitch != pitch {
			continue
		}
		if best == nil || n.SpawnTime < best.SpawnTime ||
			(n.SpawnTime == best.SpawnTime && n.ID < best.ID) {
			best = n
		}
	}
	return best
}

// nearestInWindow picks the Active note closest to t among those whose good
// window contains t.
func (m *Matcher) nearestInWindow(active []*scheduler.FallingNote, t float64) *scheduler.FallingNote {
	var best *scheduler.FallingNote
	bestErr := math.Inf(1)
	for _, n := range active {
		if n.Status != scheduler.Active {
			continue
		}
		e := math.Abs(n.TimingError(t))
		if e > m.windows.Good {
			continue
		}
		if e < bestErr || (e == bestErr && best != nil && n.SpawnTime < best.SpawnTime) {
			best, bestErr = n, e
		}
	}
	return best
}
