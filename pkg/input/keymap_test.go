package input

import "testing"

func TestDefaultKeyMap(t *testing.T) {
	k := DefaultKeyMap()
	tests := []struct {
		key  rune
		want int
	}{
		{'z', 48},
		{'s', 49},
		{'m', 59},
		{'q', 60},
		{'i', 72},
	}
	for _, tt := range tests {
		got, ok := k.Pitch(tt.key)
		if !ok || got != tt.want {
			t.Errorf("Pitch(%q) = %d, %v; want %d", tt.key, got, ok, tt.want)
		}
	}
	if _, ok := k.Pitch('p'); ok {
		t.Error("unmapped key should report false")
	}
	if len(k.Keys()) != 25 {
		t.Errorf("expected 25 keys, got %d", len(k.Keys()))
	}
}

func TestKeyMap_OctaveShift(t *testing.T) {
	k := DefaultKeyMap()

	if got := k.ShiftOctave(1); got != 1 {
		t.Errorf("expected shift 1, got %d", got)
	}
	if p, _ := k.Pitch('q'); p != 72 {
		t.Errorf("expected 72 after shift, got %d", p)
	}

	if got := k.ShiftOctave(10); got != MaxOctaveShift {
		t.Errorf("shift should clamp to %d, got %d", MaxOctaveShift, got)
	}
	if got := k.ShiftOctave(-20); got != MinOctaveShift {
		t.Errorf("shift should clamp to %d, got %d", MinOctaveShift, got)
	}
	if p, _ := k.Pitch('z'); p != 12 {
		t.Errorf("expected 12 at lowest shift, got %d", p)
	}
}

func TestKeyMap_OutOfRange(t *testing.T) {
	k := NewKeyMap(map[rune]int{'a': 120})
	k.ShiftOctave(1)
	if _, ok := k.Pitch('a'); ok {
		t.Error("pitch above 127 should report false")
	}
}
