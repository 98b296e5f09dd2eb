// Package synth carries start-note and stop-note decisions to whatever makes
// sound: a SoundFont synthesizer, a hardware MIDI port, or a serial MIDI
// interface. It also schedules accompaniment playback against the shared
// playback clock.
package synth

import (
	"errors"
	"sync"
)

// Sink receives note decisions. Implementations must be safe for use from
// the session goroutine while their own output goroutine runs.
type Sink interface {
	NoteOn(channel, key, velocity int) error
	NoteOff(channel, key int) error
	AllNotesOff() error
	Close() error
}

// Kind of a recorded decision.
type Kind int

const (
	KindNoteOn Kind = iota
	KindNoteOff
	KindAllNotesOff
)

func (k Kind) String() string {
	switch k {
	case KindNoteOn:
		return "note-on"
	case KindNoteOff:
		return "note-off"
	default:
		return "all-notes-off"
	}
}

// Decision is one call made on a Sink.
type Decision struct {
	Kind     Kind
	Channel  int
	Key      int
	Velocity int
}

// Recorder is a Sink that remembers every decision.
type Recorder struct {
	mu        sync.Mutex
	decisions []Decision
	closed    bool
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) NoteOn(channel, key, velocity int) error {
	r.add(Decision{Kind: KindNoteOn, Channel: channel, Key: key, Velocity: velocity})
	return nil
}

func (r *Recorder) NoteOff(channel, key int) error {
	r.add(Decision{Kind: KindNoteOff, Channel: channel, Key: key})
	return nil
}

func (r *Recorder) AllNotesOff() error {
	r.add(Decision{Kind: KindAllNotesOff})
	return nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *Recorder) add(d Decision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, d)
}

// Decisions returns a copy of everything recorded so far.
func (r *Recorder) Decisions() []Decision {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Decision(nil), r.decisions...)
}

// Closed reports whether Close was called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Multi fans every decision out to several sinks.
type Multi []Sink

func (m Multi) NoteOn(channel, key, velocity int) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.NoteOn(channel, key, velocity))
	}
	return errors.Join(errs...)
}

func (m Multi) NoteOff(channel, key int) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.NoteOff(channel, key))
	}
	return errors.Join(errs...)
}

func (m Multi) AllNotesOff() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.AllNotesOff())
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// Null discards every decision.
type Null struct{}

func (Null) NoteOn(channel, key, velocity int) error { return nil }
func (Null) NoteOff(channel, key int) error          { return nil }
func (Null) AllNotesOff() error                      { return nil }
func (Null) Close() error                            { return nil }
