package scoring

import (
	"math"

	"github.com/zurustar/keyfall/pkg/matcher"
)

// MaxComboBonus caps the combo bonus per press.
const MaxComboBonus = 100

// State is the running score of a session.
type State struct {
	Score                int
	Combo                int
	MaxCombo             int
	Perfect              int
	Good                 int
	Hit                  int
	Missed               int
	Wrong                int
	DifficultyMultiplier float64
}

// Successes counts perfect, good and hit presses.
func (s State) Successes() int {
	return s.Perfect + s.Good + s.Hit
}

// Resolved counts every judged note, including wrong and missed ones.
func (s State) Resolved() int {
	return s.Successes() + s.Missed + s.Wrong
}

// Accuracy returns the success percentage of resolved notes, 0 when none.
func (s State) Accuracy() float64 {
	total := s.Resolved()
	if total == 0 {
		return 0
	}
	return float64(s.Successes()) / float64(total) * 100
}

// TimeAccuracy is the timing quality of a result in [0, 1].
func TimeAccuracy(r matcher.Result) float64 {
	switch r {
	case matcher.Perfect:
		return 1.0
	case matcher.Good:
		return 0.5
	case matcher.Hit:
		return 0.25
	default:
		return 0
	}
}

// Points computes the award for a successful press given the combo after it
// was counted:
//
//	round((100 + round(100*time_accuracy) + min(combo*2, 100)) * multiplier)
func Points(r matcher.Result, combo int, multiplier float64) int {
	accuracyBonus := math.Round(100 * TimeAccuracy(r))
	comboBonus := float64(min(combo*2, MaxComboBonus))
	return int(math.Round((100 + accuracyBonus + comboBonus) * multiplier))
}
