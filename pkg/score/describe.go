package score

import (
	"fmt"
	"io"
	"sort"
)

// Describe writes a human readable summary of the score: header values,
// tempo map, and per-channel note counts.
func (s *Score) Describe(w io.Writer) {
	if s.Title != "" {
		fmt.Fprintf(w, "Title: %s\n", s.Title)
	}
	fmt.Fprintf(w, "Format: %d\n", s.Format)
	fmt.Fprintf(w, "Ticks per quarter note: %d\n", s.TicksPerBeat)
	fmt.Fprintf(w, "Number of tracks: %d\n", s.TrackCount)
	fmt.Fprintf(w, "Duration: %.3f seconds\n", s.Duration)
	fmt.Fprintf(w, "Notes: %d\n", len(s.Events))

	fmt.Fprintln(w, "Tempo map:")
	for _, t := range s.TempoMap {
		fmt.Fprintf(w, "  tick %d: %d us/beat (%.2f BPM)\n", t.Tick, t.MicrosPerBeat, t.BPM())
	}

	perChannel := make(map[int]int)
	low, high := 128, -1
	for _, ev := range s.Events {
		perChannel[ev.Channel]++
		low = min(low, ev.Pitch)
		high = max(high, ev.Pitch)
	}
	if len(perChannel) == 0 {
		return
	}

	channels := make([]int, 0, len(perChannel))
	for ch := range perChannel {
		channels = append(channels, ch)
	}
	sort.Ints(channels)

	fmt.Fprintf(w, "Pitch range: %d-%d\n", low, high)
	fmt.Fprintln(w, "Channels:")
	for _, ch := range channels {
		fmt.Fprintf(w, "  %d: %d notes\n", ch, perChannel[ch])
	}
}

// Channel returns a copy of the score holding only events on the given
// channels. An empty list returns every event.
func (s *Score) Channel(channels ...int) *Score {
	if len(channels) == 0 {
		return s
	}
	keep := make(map[int]bool, len(channels))
	for _, ch := range channels {
		keep[ch] = true
	}

	out := *s
	out.Events = nil
	out.Duration = 0
	for _, ev := range s.Events {
		if !keep[ev.Channel] {
			continue
		}
		out.Events = append(out.Events, ev)
		out.Duration = max(out.Duration, ev.EndTime)
	}
	return &out
}
