package input

import (
	"sort"
	"sync"
)

// KeyboardVelocity is the velocity given to computer-keyboard presses.
const KeyboardVelocity = 127

// Octave shift limits for a KeyMap.
const (
	MinOctaveShift = -3
	MaxOctaveShift = 3
)

// defaultLayout maps two rows of a QWERTY keyboard onto C3..C5 like a
// tracker: the bottom row starts at C3, the top row at C4.
var defaultLayout = map[rune]int{
	'z': 48, 's': 49, 'x': 50, 'd': 51, 'c': 52, 'v': 53,
	'g': 54, 'b': 55, 'h': 56, 'n': 57, 'j': 58, 'm': 59,
	'q': 60, '2': 61, 'w': 62, '3': 63, 'e': 64, 'r': 65,
	'5': 66, 't': 67, '6': 68, 'y': 69, '7': 70, 'u': 71,
	'i': 72,
}

// KeyMap translates computer-keyboard keys to MIDI pitches.
type KeyMap struct {
	mu     sync.RWMutex
	keys   map[rune]int
	octave int
}

// DefaultKeyMap returns the two-row layout covering MIDI 48..72.
func DefaultKeyMap() *KeyMap {
	return NewKeyMap(defaultLayout)
}

// NewKeyMap creates a KeyMap from a key-to-pitch layout.
func NewKeyMap(layout map[rune]int) *KeyMap {
	keys := make(map[rune]int, len(layout))
	for r, p := range layout {
		keys[r] = p
	}
	return &KeyMap{keys: keys}
}

// Pitch returns the pitch for key after the octave shift. Keys outside the
// layout or shifted outside 0..127 report false.
func (k *KeyMap) Pitch(key rune) (int, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	base, ok := k.keys[key]
	if !ok {
		return 0, false
	}
	p := base + k.octave*12
	if p < 0 || p > 127 {
		return 0, false
	}
	return p, true
}

// ShiftOctave moves the layout by delta octaves within the allowed range and
// returns the new shift.
func (k *KeyMap) ShiftOctave(delta int) int {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.octave = max(MinOctaveShift, min(MaxOctaveShift, k.octave+delta))
	return k.octave
}

// Octave returns the current octave shift.
func (k *KeyMap) Octave() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.octave
}

// Keys returns every mapped key in a stable order.
func (k *KeyMap) Keys() []rune {
	k.mu.RLock()
	defer k.mu.RUnlock()

	keys := make([]rune, 0, len(k.keys))
	for r := range k.keys {
		keys = append(keys, r)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
