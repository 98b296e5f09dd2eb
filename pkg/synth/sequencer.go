package synth

import (
	"log/slog"
	"sort"

	"github.com/zurustar/keyfall/pkg/logger"
	"github.com/zurustar/keyfall/pkg/score"
)

// Sequencer plays score events through a Sink as playback time advances.
// Time only moves forward; a note whose whole span was skipped by a large
// jump is never sounded.
type Sequencer struct {
	events   []score.Event
	next     int
	sounding []score.Event
	held     map[heldKey]int
	sink     Sink
	muted    map[int]bool
	log      *slog.Logger
}

// heldKey identifies a sounding key on the sink.
type heldKey struct {
	channel, pitch int
}

// SequencerOption configures a Sequencer.
type SequencerOption func(*Sequencer)

// WithMutedChannels suppresses the given channels, typically the ones the
// player performs.
func WithMutedChannels(channels ...int) SequencerOption {
	return func(s *Sequencer) {
		for _, ch := range channels {
			s.muted[ch] = true
		}
	}
}

// WithSequencerLogger sets the logger.
func WithSequencerLogger(log *slog.Logger) SequencerOption {
	return func(s *Sequencer) {
		s.log = log
	}
}

// NewSequencer creates a Sequencer over events. The slice is copied.
func NewSequencer(events []score.Event, sink Sink, opts ...SequencerOption) *Sequencer {
	s := &Sequencer{
		sink:  sink,
		held:  make(map[heldKey]int),
		muted: make(map[int]bool),
		log:   logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, e := range events {
		if !s.muted[e.Channel] {
			s.events = append(s.events, e)
		}
	}
	sort.SliceStable(s.events, func(i, j int) bool {
		return s.events[i].StartTime < s.events[j].StartTime
	})
	return s
}

// Update releases notes that ended and starts notes that began by t.
// It returns how many notes were started and stopped.
func (s *Sequencer) Update(t float64) (started, stopped int) {
	kept := s.sounding[:0]
	for _, e := range s.sounding {
		if e.EndTime <= t {
			s.noteOff(e)
			stopped++
			continue
		}
		kept = append(kept, e)
	}
	s.sounding = kept

	for s.next < len(s.events) && s.events[s.next].StartTime <= t {
		e := s.events[s.next]
		s.next++
		if e.EndTime <= t {
			continue
		}
		if err := s.sink.NoteOn(e.Channel, e.Pitch, e.Velocity); err != nil {
			s.log.Warn("Accompaniment note-on failed", "pitch", e.Pitch, "error", err)
		}
		s.held[heldKey{e.Channel, e.Pitch}]++
		s.sounding = append(s.sounding, e)
		started++
	}
	return started, stopped
}

// Silence releases every sounding note without advancing. Released notes are
// not restarted.
func (s *Sequencer) Silence() {
	for _, e := range s.sounding {
		s.noteOff(e)
	}
	s.sounding = s.sounding[:0]
}

// Stop silences the sequencer and skips every remaining event.
func (s *Sequencer) Stop() {
	s.Silence()
	s.next = len(s.events)
	if err := s.sink.AllNotesOff(); err != nil {
		s.log.Warn("Accompaniment all-notes-off failed", "error", err)
	}
}

// Sounding returns the number of notes currently held.
func (s *Sequencer) Sounding() int {
	return len(s.sounding)
}

// Done reports whether every event has been started and released.
func (s *Sequencer) Done() bool {
	return s.next >= len(s.events) && len(s.sounding) == 0
}

// noteOff releases e. The key is only released on the sink once no other
// sounding event holds the same channel and pitch.
func (s *Sequencer) noteOff(e score.Event) {
	key := heldKey{e.Channel, e.Pitch}
	if s.held[key] > 1 {
		s.held[key]--
		return
	}
	delete(s.held, key)
	if err := s.sink.NoteOff(e.Channel, e.Pitch); err != nil {
		s.log.Warn("Accompaniment note-off failed", "pitch", e.Pitch, "error", err)
	}
}
