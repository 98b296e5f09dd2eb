package scheduler

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a status change would move a note
// backwards or skip a state.
var ErrInvalidTransition = errors.New("invalid falling note transition")

// Status is the lifecycle state of a FallingNote.
type Status int

const (
	Scheduled Status = iota
	Active
	Hit
	Missed
	Wrong
	Retired
)

var statusNames = [...]string{"scheduled", "active", "hit", "missed", "wrong", "retired"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// IsResolved reports whether the note reached a terminal judgement.
func (s Status) IsResolved() bool {
	return s == Hit || s == Missed || s == Wrong
}

// canTransition encodes the only allowed moves:
// Scheduled -> Active -> {Hit, Missed, Wrong} -> Retired.
func canTransition(from, to Status) bool {
	switch from {
	case Scheduled:
		return to == Active
	case Active:
		return to.IsResolved()
	case Hit, Missed, Wrong:
		return to == Retired
	default:
		return false
	}
}

// FallingNote is the live instance of one score event during a session.
type FallingNote struct {
	ID       int
	Pitch    int
	Velocity int
	Channel  int

	SpawnTime  float64 // TargetTime - lead time
	TargetTime float64 // score event start
	EndTime    float64 // score event end

	Status Status

	// MatchedAt is the input time that resolved the note as Hit or Wrong.
	// It is nil until then and stays nil for Missed notes.
	MatchedAt *float64

	resolvedAt float64
}

// Progress returns how far the note has fallen at time t, 0 at spawn and 1
// at the target line. Values outside [0, 1] are not clamped.
func (n *FallingNote) Progress(t float64) float64 {
	lead := n.TargetTime - n.SpawnTime
	if lead <= 0 {
		return 1
	}
	return (t - n.SpawnTime) / lead
}

// TimingError returns t minus the target time. Negative means early.
func (n *FallingNote) TimingError(t float64) float64 {
	return t - n.TargetTime
}

func (n *FallingNote) transition(to Status, at float64) error {
	if !canTransition(n.Status, to) {
		return fmt.Errorf("%w: note %d %s -> %s", ErrInvalidTransition, n.ID, n.Status, to)
	}
	n.Status = to
	if to.IsResolved() {
		n.resolvedAt = at
		if to != Missed {
			matched := at
			n.MatchedAt = &matched
		}
	}
	return nil
}
