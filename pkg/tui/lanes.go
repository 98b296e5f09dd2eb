package tui

import (
	"strings"
	"time"

	"github.com/zurustar/keyfall/pkg/scheduler"
	"github.com/zurustar/keyfall/pkg/score"
)

// pitchSpan returns the displayed pitch range: the score's range widened to
// whole octaves, at least two octaves wide.
func pitchSpan(events []score.Event) (low, high int) {
	if len(events) == 0 {
		return 48, 72
	}
	low, high = events[0].Pitch, events[0].Pitch
	for _, ev := range events {
		low = min(low, ev.Pitch)
		high = max(high, ev.Pitch)
	}
	low -= low % 12
	high += 11 - high%12
	if high-low < 24 {
		high = low + 24
	}
	return low, high
}

func statusGlyph(s scheduler.Status) byte {
	switch s {
	case scheduler.Hit:
		return '+'
	case scheduler.Missed:
		return '.'
	case scheduler.Wrong:
		return 'x'
	default:
		return '#'
	}
}

// renderLanes draws the falling area as rows lines, one column per pitch.
// Row rows-1 is just above the hit line.
func renderLanes(notes []*scheduler.FallingNote, t float64, low, high, rows int) []string {
	width := high - low + 1
	grid := make([][]byte, rows)
	for i := range grid {
		grid[i] = []byte(strings.Repeat(" ", width))
	}

	for _, n := range notes {
		if n.Pitch < low || n.Pitch > high {
			continue
		}
		lead := n.TargetTime - n.SpawnTime
		bottom := n.Progress(t) * float64(rows)
		length := 1.0
		if lead > 0 {
			length = max(1, (n.EndTime-n.TargetTime)/lead*float64(rows))
		}
		top := bottom - length
		col := n.Pitch - low
		for row := range rows {
			// Cell row covers [row, row+1).
			if float64(row+1) > top && float64(row) < bottom {
				grid[row][col] = statusGlyph(n.Status)
			}
		}
	}

	lines := make([]string, rows)
	for i, row := range grid {
		lines[i] = string(row)
	}
	return lines
}

// renderKeys draws the keyboard line, marking held pitches.
func renderKeys(low, high int, held map[int]time.Time) string {
	var b strings.Builder
	for pitch := low; pitch <= high; pitch++ {
		switch {
		case isHeld(held, pitch):
			b.WriteByte('*')
		case isSharp(pitch):
			b.WriteByte('^')
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func isHeld(held map[int]time.Time, pitch int) bool {
	_, ok := held[pitch]
	return ok
}

func isSharp(pitch int) bool {
	switch pitch % 12 {
	case 1, 3, 6, 8, 10:
		return true
	}
	return false
}
