// Package score turns Standard MIDI Files into absolute-time note events.
//
// Ticks are converted to seconds through a piecewise-constant tempo map built
// from every tempo meta event in the file. Note-on/note-off pairs are matched
// per (pitch, channel); unterminated notes are closed at the file's last event.
package score

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/zurustar/keyfall/pkg/logger"
	"gitlab.com/gomidi/midi/v2/smf"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// Event is one note of the score. EndTime is always greater than StartTime.
type Event struct {
	Pitch     int     // 0..127
	Velocity  int     // 1..127
	StartTime float64 // seconds
	EndTime   float64 // seconds
	Channel   int
	Track     int
}

// Duration returns the length of the note in seconds.
func (e Event) Duration() float64 {
	return e.EndTime - e.StartTime
}

// Score is the immutable result of loading a MIDI file.
type Score struct {
	Events       []Event // sorted by StartTime, ties in file order
	Duration     float64 // max EndTime, 0 when there are no events
	Title        string
	TicksPerBeat int
	Format       int
	TrackCount   int
	TempoMap     []TempoEvent
}

// Option configures Load.
type Option func(*loader)

// WithLogger sets the logger used for leniency warnings.
func WithLogger(log *slog.Logger) Option {
	return func(l *loader) {
		l.log = log
	}
}

type loader struct {
	log *slog.Logger
}

type noteKey struct {
	channel int
	pitch   int
}

type openNote struct {
	track     int
	startTick int
	velocity  int
	order     int
}

type closedNote struct {
	event Event
	order int
}

// Load parses raw SMF bytes. Only structural problems produce an error;
// orphaned, duplicate and zero-length notes are resolved leniently.
func Load(data []byte, opts ...Option) (*Score, error) {
	l := &loader{log: logger.GetLogger()}
	for _, opt := range opts {
		opt(l)
	}
	return l.load(data)
}

// LoadFile reads and parses a MIDI file. When the file carries no track name
// the base file name becomes the title.
func LoadFile(path string, opts ...Option) (*Score, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read MIDI file: %w", err)
	}
	s, err := Load(data, opts...)
	if err != nil {
		return nil, err
	}
	if s.Title == "" {
		s.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return s, nil
}

func (l *loader) load(data []byte) (*Score, error) {
	format, err := readHeaderFormat(data)
	if err != nil {
		return nil, err
	}

	file, err := readSMF(data)
	if err != nil {
		return nil, err
	}

	tf, ok := file.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, &ParseError{Reason: "SMPTE time division", Err: ErrUnsupportedFormat}
	}
	ticksPerBeat := int(tf)
	if ticksPerBeat <= 0 {
		return nil, &ParseError{Reason: "zero ticks per beat"}
	}

	tm := newTempoMap(ticksPerBeat, collectTempoEvents(file))

	s := &Score{
		TicksPerBeat: ticksPerBeat,
		Format:       format,
		TrackCount:   len(file.Tracks),
		TempoMap:     tm.tempos,
		Title:        findTitle(file),
	}
	s.Events = l.extractNotes(file, tm)
	for _, ev := range s.Events {
		if ev.EndTime > s.Duration {
			s.Duration = ev.EndTime
		}
	}
	return s, nil
}

// readHeaderFormat checks the MThd chunk and rejects SMF type 2.
func readHeaderFormat(data []byte) (int, error) {
	if len(data) < 14 || string(data[0:4]) != "MThd" {
		return 0, &ParseError{Reason: "missing MThd header"}
	}
	format := int(binary.BigEndian.Uint16(data[8:10]))
	if format > 1 {
		return 0, &ParseError{Reason: fmt.Sprintf("SMF type %d", format), Err: ErrUnsupportedFormat}
	}
	return format, nil
}

// readSMF wraps smf.ReadFrom, which can panic on truncated input.
func readSMF(data []byte) (file *smf.SMF, err error) {
	defer func() {
		if r := recover(); r != nil {
			file = nil
			err = &ParseError{Reason: fmt.Sprint(r)}
		}
	}()

	file, err = smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Reason: "unreadable track data", Err: err}
	}
	return file, nil
}

func collectTempoEvents(file *smf.SMF) []TempoEvent {
	var events []TempoEvent
	for _, track := range file.Tracks {
		tick := 0
		for _, ev := range track {
			tick += int(ev.Delta)
			var bpm float64
			if ev.Message.GetMetaTempo(&bpm) {
				if mpb := microsPerBeatFromBPM(bpm); mpb > 0 {
					events = append(events, TempoEvent{Tick: tick, MicrosPerBeat: mpb})
				}
			}
		}
	}
	return events
}

func (l *loader) extractNotes(file *smf.SMF, tm *tempoMap) []Event {
	var notes []closedNote
	order := 0
	lastTick := 0

	// open notes survive across tracks only for orphan handling
	var orphans []openNote
	var orphanKeys []noteKey

	for trackIdx, track := range file.Tracks {
		open := make(map[noteKey]openNote)
		tick := 0

		closeNote := func(key noteKey, n openNote, endTick int) {
			notes = append(notes, closedNote{
				event: l.makeEvent(tm, key, n, endTick),
				order: n.order,
			})
		}

		for _, ev := range track {
			tick += int(ev.Delta)
			var ch, pitch, vel uint8

			switch {
			case ev.Message.GetNoteOn(&ch, &pitch, &vel) && vel > 0:
				key := noteKey{channel: int(ch), pitch: int(pitch)}
				if prev, ok := open[key]; ok {
					l.log.Debug("Retriggered note closes previous", "pitch", key.pitch, "channel", key.channel, "tick", tick)
					closeNote(key, prev, tick)
				}
				open[key] = openNote{track: trackIdx, startTick: tick, velocity: int(vel), order: order}
				order++

			case ev.Message.GetNoteOff(&ch, &pitch, &vel),
				ev.Message.GetNoteOn(&ch, &pitch, &vel) && vel == 0:
				key := noteKey{channel: int(ch), pitch: int(pitch)}
				if n, ok := open[key]; ok {
					closeNote(key, n, tick)
					delete(open, key)
				}
			}
		}

		if tick > lastTick {
			lastTick = tick
		}
		for key, n := range open {
			orphans = append(orphans, n)
			orphanKeys = append(orphanKeys, key)
		}
	}

	for i, n := range orphans {
		key := orphanKeys[i]
		l.log.Warn("Note-on without note-off, closing at end of file",
			"pitch", key.pitch, "channel", key.channel, "track", n.track,
			"start", tm.Seconds(n.startTick))
		notes = append(notes, closedNote{
			event: l.makeEvent(tm, key, n, lastTick),
			order: n.order,
		})
	}

	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].event.StartTime != notes[j].event.StartTime {
			return notes[i].event.StartTime < notes[j].event.StartTime
		}
		return notes[i].order < notes[j].order
	})

	events := make([]Event, len(notes))
	for i, n := range notes {
		events[i] = n.event
	}
	return events
}

// makeEvent converts a closed note to seconds. A note that would end at or
// before its start is stretched to one tick.
func (l *loader) makeEvent(tm *tempoMap, key noteKey, n openNote, endTick int) Event {
	if endTick <= n.startTick {
		endTick = n.startTick + 1
	}
	return Event{
		Pitch:     key.pitch,
		Velocity:  n.velocity,
		StartTime: tm.Seconds(n.startTick),
		EndTime:   tm.Seconds(endTick),
		Channel:   key.channel,
		Track:     n.track,
	}
}

// findTitle returns the first non-empty track name in the file.
func findTitle(file *smf.SMF) string {
	for _, track := range file.Tracks {
		for _, ev := range track {
			var name string
			if ev.Message.GetMetaTrackName(&name) {
				if name = strings.TrimSpace(decodeText(name)); name != "" {
					return name
				}
			}
		}
	}
	return ""
}

// decodeText converts Shift-JIS meta text to UTF-8. Text that is already
// valid UTF-8 is returned unchanged.
func decodeText(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	reader := transform.NewReader(strings.NewReader(s), japanese.ShiftJIS.NewDecoder())
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return s
	}
	return string(decoded)
}
