package session

import (
	"errors"
	"fmt"

	"github.com/zurustar/keyfall/pkg/clock"
	"github.com/zurustar/keyfall/pkg/input"
	"github.com/zurustar/keyfall/pkg/matcher"
	"github.com/zurustar/keyfall/pkg/scheduler"
	"github.com/zurustar/keyfall/pkg/scoring"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid session configuration")

// Config holds the per-session settings. The values are fixed once the
// session is created.
type Config struct {
	SongID string // high-score key; empty uses the score title

	FallDistance float64 // lane length in display units
	FallSpeed    float64 // display units per second; lead time = distance / speed

	PerfectWindow float64 // seconds
	GoodWindow    float64 // seconds; also the miss threshold
	RetireGrace   float64 // seconds a judged note stays visible

	Difficulty  scoring.Difficulty
	Multipliers scoring.Multipliers
	Policy      matcher.Policy

	Parts          []int // channels to practice; empty means every channel
	Accompaniment  bool  // play the score through the accompaniment sink
	MuteParts      bool  // leave the practiced channels out of the accompaniment
	MonitorChannel int   // channel used to sound live presses

	InputQueueSize int
	Speed          float64
}

// DefaultConfig returns a medium-difficulty configuration with a three
// second lead time.
func DefaultConfig() Config {
	return Config{
		FallDistance:   600,
		FallSpeed:      200,
		PerfectWindow:  matcher.DefaultPerfectWindow,
		GoodWindow:     matcher.DefaultGoodWindow,
		RetireGrace:    scheduler.DefaultRetireGrace,
		Difficulty:     scoring.Medium,
		Multipliers:    scoring.DefaultMultipliers(),
		Policy:         matcher.PolicyPitchScoped,
		MonitorChannel: 0,
		InputQueueSize: input.DefaultQueueSize,
		Speed:          1.0,
	}
}

// LeadTime returns FallDistance / FallSpeed.
func (c Config) LeadTime() (float64, error) {
	return scheduler.LeadTime(c.FallDistance, c.FallSpeed)
}

// Windows returns the matcher windows.
func (c Config) Windows() matcher.Windows {
	return matcher.Windows{Perfect: c.PerfectWindow, Good: c.GoodWindow}
}

// Validate checks that the configuration can build a session.
func (c Config) Validate() error {
	if _, err := c.LeadTime(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Windows().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.RetireGrace < 0 {
		return fmt.Errorf("%w: retire grace %v must not be negative", ErrInvalidConfig, c.RetireGrace)
	}
	mult := c.Multipliers
	if mult == nil {
		mult = scoring.DefaultMultipliers()
	}
	if _, err := mult.Lookup(c.Difficulty); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Speed < clock.MinSpeed || c.Speed > clock.MaxSpeed {
		return fmt.Errorf("%w: speed %v outside [%v, %v]", ErrInvalidConfig, c.Speed, clock.MinSpeed, clock.MaxSpeed)
	}
	if c.MonitorChannel < 0 || c.MonitorChannel > 15 {
		return fmt.Errorf("%w: monitor channel %d outside 0..15", ErrInvalidConfig, c.MonitorChannel)
	}
	for _, ch := range c.Parts {
		if ch < 0 || ch > 15 {
			return fmt.Errorf("%w: part channel %d outside 0..15", ErrInvalidConfig, ch)
		}
	}
	return nil
}
