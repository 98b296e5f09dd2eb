// Package input funnels live performance events from asynchronous producers
// (MIDI devices, a computer keyboard, synthetic drivers) into a bounded queue
// drained once per update tick by the session.
package input

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/zurustar/keyfall/pkg/logger"
)

// DefaultQueueSize is the default capacity of a Queue.
const DefaultQueueSize = 256

// ErrQueueClosed is returned by Push after Close.
var ErrQueueClosed = errors.New("input queue closed")

// Source identifies the producer of an event.
type Source string

const (
	SourceKeyboard  Source = "keyboard"
	SourceMIDI      Source = "midi"
	SourceSynthetic Source = "synthetic"
)

// Event is a live note event stamped with effective playback time.
type Event struct {
	Pitch    int
	Velocity int // 0 means note-off
	Channel  int
	Time     float64
	Source   Source
}

// IsNoteOff reports whether the event releases a key. A velocity-0 note-on
// counts as a release, never as a hit attempt.
func (e Event) IsNoteOff() bool {
	return e.Velocity == 0
}

// Queue is a thread-safe, bounded, time-ordered event queue. When full the
// oldest event is discarded.
type Queue struct {
	events  []Event
	maxSize int
	closed  bool
	dropped int
	mu      sync.Mutex
	log     *slog.Logger
}

// NewQueue creates a queue holding at most maxSize events. A non-positive
// size selects DefaultQueueSize.
func NewQueue(maxSize int, log *slog.Logger) *Queue {
	if maxSize <= 0 {
		maxSize = DefaultQueueSize
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Queue{
		events:  make([]Event, 0, maxSize),
		maxSize: maxSize,
		log:     log,
	}
}

// Push adds an event, keeping the queue ordered by Time. Producers stamp
// events independently, so a late arrival may sort before queued events.
func (q *Queue) Push(ev Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	if len(q.events) >= q.maxSize {
		q.dropped++
		q.log.Warn("Input queue full, dropping oldest event",
			"pitch", q.events[0].Pitch, "time", q.events[0].Time, "dropped", q.dropped)
		q.events = q.events[1:]
	}

	q.events = append(q.events, ev)
	sort.SliceStable(q.events, func(i, j int) bool {
		return q.events[i].Time < q.events[j].Time
	})
	return nil
}

// Drain removes and returns every queued event in time order.
func (q *Queue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return nil
	}
	out := make([]Event, len(q.events))
	copy(out, q.events)
	q.events = q.events[:0]
	return out
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Dropped returns how many events were discarded because the queue was full.
func (q *Queue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Clear discards every queued event.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = q.events[:0]
}

// Close makes every later Push fail. Events already queued can still be drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// IsClosed reports whether Close was called.
func (q *Queue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
