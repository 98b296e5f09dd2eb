package score

import (
	"math"
	"sort"
)

// DefaultMicrosPerBeat is the tempo in force before any tempo meta event (120 BPM).
const DefaultMicrosPerBeat = 500000

// TempoEvent is a tempo change on the file's tick timeline.
type TempoEvent struct {
	Tick          int // absolute tick position
	MicrosPerBeat int // microseconds per quarter note
}

// BPM returns the tempo in beats per minute.
func (t TempoEvent) BPM() float64 {
	if t.MicrosPerBeat <= 0 {
		return 0
	}
	return 60000000.0 / float64(t.MicrosPerBeat)
}

// tempoMap converts absolute ticks to seconds with a piecewise-constant tempo.
// secondsAt[i] is the time at which tempos[i] takes effect, so a change only
// affects ticks at or after its own position.
type tempoMap struct {
	ticksPerBeat int
	tempos       []TempoEvent
	secondsAt    []float64
}

// newTempoMap orders the raw tempo events by tick, lets the last event at a
// given tick win, and seeds the default tempo at tick 0 when the file does not.
func newTempoMap(ticksPerBeat int, raw []TempoEvent) *tempoMap {
	events := make([]TempoEvent, len(raw))
	copy(events, raw)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Tick < events[j].Tick
	})

	tempos := make([]TempoEvent, 0, len(events)+1)
	if len(events) == 0 || events[0].Tick > 0 {
		tempos = append(tempos, TempoEvent{Tick: 0, MicrosPerBeat: DefaultMicrosPerBeat})
	}
	for _, ev := range events {
		if ev.MicrosPerBeat <= 0 {
			continue
		}
		if n := len(tempos); n > 0 && tempos[n-1].Tick == ev.Tick {
			tempos[n-1] = ev
			continue
		}
		tempos = append(tempos, ev)
	}

	tm := &tempoMap{ticksPerBeat: ticksPerBeat, tempos: tempos}
	tm.precalculate()
	return tm
}

func (tm *tempoMap) precalculate() {
	tm.secondsAt = make([]float64, len(tm.tempos))
	for i := 1; i < len(tm.tempos); i++ {
		prev := tm.tempos[i-1]
		ticks := tm.tempos[i].Tick - prev.Tick
		tm.secondsAt[i] = tm.secondsAt[i-1] + tm.ticksToSeconds(ticks, prev.MicrosPerBeat)
	}
}

// ticksToSeconds is seconds = ticks * (tempo / 1_000_000) / ticks_per_beat.
func (tm *tempoMap) ticksToSeconds(ticks, microsPerBeat int) float64 {
	return float64(ticks) * (float64(microsPerBeat) / 1000000.0) / float64(tm.ticksPerBeat)
}

// segment returns the index of the tempo in force at tick.
func (tm *tempoMap) segment(tick int) int {
	i := sort.Search(len(tm.tempos), func(i int) bool {
		return tm.tempos[i].Tick > tick
	})
	if i == 0 {
		return 0
	}
	return i - 1
}

// Seconds converts an absolute tick position to seconds.
func (tm *tempoMap) Seconds(tick int) float64 {
	idx := tm.segment(tick)
	tempo := tm.tempos[idx]
	return tm.secondsAt[idx] + tm.ticksToSeconds(tick-tempo.Tick, tempo.MicrosPerBeat)
}

// microsPerBeatFromBPM recovers the integer tempo value the file stored.
func microsPerBeatFromBPM(bpm float64) int {
	if bpm <= 0 {
		return 0
	}
	return int(math.Round(60000000.0 / bpm))
}
