package scoring

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownDifficulty is returned for a difficulty missing from the multiplier table.
var ErrUnknownDifficulty = errors.New("unknown difficulty")

// Difficulty names a row of the multiplier table.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
	Expert Difficulty = "expert"
)

// Multipliers maps each difficulty to its score multiplier.
type Multipliers map[Difficulty]float64

// DefaultMultipliers returns the standard table.
func DefaultMultipliers() Multipliers {
	return Multipliers{
		Easy:   0.8,
		Medium: 1.0,
		Hard:   1.2,
		Expert: 1.5,
	}
}

// Lookup returns the multiplier for d.
func (m Multipliers) Lookup(d Difficulty) (float64, error) {
	v, ok := m[d]
	if !ok {
		return 0, fmt.Errorf("%w: %q (known: %s)", ErrUnknownDifficulty, d, strings.Join(m.names(), ", "))
	}
	if !(v > 0) {
		return 0, fmt.Errorf("%w: %q has non-positive multiplier %v", ErrUnknownDifficulty, d, v)
	}
	return v, nil
}

func (m Multipliers) names() []string {
	names := make([]string, 0, len(m))
	for d := range m {
		names = append(names, string(d))
	}
	sort.Strings(names)
	return names
}

// ParseDifficulty normalizes user input to a Difficulty. It does not check
// the multiplier table.
func ParseDifficulty(s string) Difficulty {
	return Difficulty(strings.ToLower(strings.TrimSpace(s)))
}
