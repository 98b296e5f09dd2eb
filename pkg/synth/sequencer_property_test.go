package synth

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/zurustar/keyfall/pkg/score"
)

// TestSequencerBalancedProperty checks that every sounded key is released
// by the end, and never released twice, regardless of update granularity
// or overlapping events on the same key.
func TestSequencerBalancedProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("every sounded key is released once", prop.ForAll(
		func(starts []float64, step float64) bool {
			var events []score.Event
			for i, s := range starts {
				events = append(events, ev(40+i%8, s, s+0.25, i%2))
			}
			rec := NewRecorder()
			seq := NewSequencer(events, rec)
			for now := 0.0; now < 12; now += step {
				seq.Update(now)
			}
			seq.Update(12)

			down := map[[2]int]bool{}
			for _, d := range rec.Decisions() {
				key := [2]int{d.Channel, d.Key}
				switch d.Kind {
				case KindNoteOn:
					down[key] = true
				case KindNoteOff:
					if !down[key] {
						return false
					}
					delete(down, key)
				}
			}
			return len(down) == 0 && seq.Done()
		},
		gen.SliceOf(gen.Float64Range(0, 10)),
		gen.Float64Range(0.01, 0.5),
	))

	properties.TestingRun(t)
}
