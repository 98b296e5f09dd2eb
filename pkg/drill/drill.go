// Package drill generates note-identification exercises as ordinary scores,
// so a drill runs through the same session machinery as a song.
package drill

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/zurustar/keyfall/pkg/score"
)

const (
	MinLevel = 1
	MaxLevel = 5

	// Piano range, A0..C8.
	LowestPitch  = 21
	HighestPitch = 108

	// DrillVelocity is the velocity of generated notes.
	DrillVelocity = 80

	// rangeStep is how many semitones each level trims from both ends.
	rangeStep = 4

	// LeadIn is the silence before the first note, in seconds.
	LeadIn = 1.0
)

// ErrInvalidDrill is returned for a non-positive count or interval.
var ErrInvalidDrill = errors.New("invalid drill parameters")

// PitchRange returns the inclusive pitch range for a level. Each level
// narrows the range by four semitones each way toward the C4..C5 octave, so
// every level lies inside the previous one and MaxLevel is exactly C4..C5.
// Levels outside [MinLevel, MaxLevel] are clamped.
func PitchRange(level int) (low, high int) {
	level = min(max(level, MinLevel), MaxLevel)
	spread := rangeStep * (MaxLevel - level)
	low = max(LowestPitch, 60-spread)
	high = min(HighestPitch, 72+spread)
	return low, high
}

// Generate builds a score of count single notes spaced interval seconds
// apart, drawn from the level's range. The same seed always yields the same
// drill; consecutive notes never repeat a pitch.
func Generate(level, count int, interval float64, seed uint64) (*score.Score, error) {
	if count <= 0 || !(interval > 0) {
		return nil, fmt.Errorf("%w: count %d, interval %v", ErrInvalidDrill, count, interval)
	}

	low, high := PitchRange(level)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	events := make([]score.Event, 0, count)
	prev := -1
	for i := range count {
		pitch := low + rng.IntN(high-low+1)
		if pitch == prev {
			pitch = low + (pitch-low+1+rng.IntN(high-low))%(high-low+1)
		}
		prev = pitch

		start := LeadIn + float64(i)*interval
		events = append(events, score.Event{
			Pitch:     pitch,
			Velocity:  DrillVelocity,
			StartTime: start,
			EndTime:   start + interval*0.8,
		})
	}

	return &score.Score{
		Events:       events,
		Duration:     events[len(events)-1].EndTime,
		Title:        Title(level),
		TicksPerBeat: 480,
		TrackCount:   1,
		TempoMap:     []score.TempoEvent{{Tick: 0, MicrosPerBeat: score.DefaultMicrosPerBeat}},
	}, nil
}

// Title is the song identifier of a drill level, used as the high-score key.
func Title(level int) string {
	level = min(max(level, MinLevel), MaxLevel)
	return fmt.Sprintf("drill-level-%d", level)
}
