package score

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
)

const epsilon = 1e-9

func approx(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func mustLoad(t *testing.T, data []byte) *Score {
	t.Helper()
	s, err := Load(data)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return s
}

func TestLoad_SingleNote(t *testing.T) {
	data := buildSMF(0, 480, []rawEvent{
		{0, tempo(500000)},
		{0, noteOn(0, 60, 100)},
		{480, noteOff(0, 60)},
	})

	s := mustLoad(t, data)
	if len(s.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(s.Events))
	}
	ev := s.Events[0]
	if !approx(ev.StartTime, 0.0) || !approx(ev.EndTime, 0.5) {
		t.Errorf("expected 0.0-0.5, got %v-%v", ev.StartTime, ev.EndTime)
	}
	if ev.Pitch != 60 || ev.Velocity != 100 || ev.Channel != 0 {
		t.Errorf("unexpected event fields: %+v", ev)
	}
	if !approx(s.Duration, 0.5) {
		t.Errorf("expected duration 0.5, got %v", s.Duration)
	}
	if s.TicksPerBeat != 480 {
		t.Errorf("expected 480 ticks per beat, got %d", s.TicksPerBeat)
	}
}

func TestLoad_DefaultTempo(t *testing.T) {
	data := buildSMF(0, 96, []rawEvent{
		{96, noteOn(0, 64, 90)},
		{96, noteOff(0, 64)},
	})

	s := mustLoad(t, data)
	if len(s.TempoMap) != 1 || s.TempoMap[0].MicrosPerBeat != DefaultMicrosPerBeat {
		t.Fatalf("expected default tempo map, got %+v", s.TempoMap)
	}
	ev := s.Events[0]
	if !approx(ev.StartTime, 0.5) || !approx(ev.EndTime, 1.0) {
		t.Errorf("expected 0.5-1.0, got %v-%v", ev.StartTime, ev.EndTime)
	}
}

func TestLoad_TempoChangeIsPiecewise(t *testing.T) {
	t.Run("single track", func(t *testing.T) {
		data := buildSMF(0, 480, []rawEvent{
			{0, noteOn(0, 60, 100)},
			{480, noteOff(0, 60)},
			{0, tempo(400000)},
			{0, noteOn(0, 62, 100)},
			{480, noteOff(0, 62)},
		})

		s := mustLoad(t, data)
		if len(s.Events) != 2 {
			t.Fatalf("expected 2 events, got %d", len(s.Events))
		}
		first, second := s.Events[0], s.Events[1]
		if !approx(first.StartTime, 0.0) || !approx(first.EndTime, 0.5) {
			t.Errorf("first note rescaled: %v-%v", first.StartTime, first.EndTime)
		}
		if !approx(second.StartTime, 0.5) || !approx(second.EndTime, 0.9) {
			t.Errorf("expected second note 0.5-0.9, got %v-%v", second.StartTime, second.EndTime)
		}
	})

	t.Run("tempo track drives note track", func(t *testing.T) {
		conductor := []rawEvent{
			{0, trackName("Conductor")},
			{0, tempo(500000)},
			{960, tempo(250000)},
		}
		notes := []rawEvent{
			{0, noteOn(1, 48, 80)},
			{960, noteOff(1, 48)},
			{0, noteOn(1, 50, 80)},
			{480, noteOff(1, 50)},
		}

		s := mustLoad(t, buildSMF(1, 480, conductor, notes))
		if s.Format != 1 || s.TrackCount != 2 {
			t.Errorf("unexpected header: format %d tracks %d", s.Format, s.TrackCount)
		}
		if len(s.TempoMap) != 2 {
			t.Fatalf("expected 2 tempo events, got %+v", s.TempoMap)
		}
		if !approx(s.Events[0].EndTime, 1.0) {
			t.Errorf("expected first note to end at 1.0, got %v", s.Events[0].EndTime)
		}
		if !approx(s.Events[1].StartTime, 1.0) || !approx(s.Events[1].EndTime, 1.25) {
			t.Errorf("expected second note 1.0-1.25, got %v-%v", s.Events[1].StartTime, s.Events[1].EndTime)
		}
		if s.Events[1].Track != 1 || s.Events[1].Channel != 1 {
			t.Errorf("unexpected track/channel: %+v", s.Events[1])
		}
	})
}

func TestLoad_VelocityZeroNoteOnClosesNote(t *testing.T) {
	data := buildSMF(0, 480, []rawEvent{
		{0, noteOn(0, 60, 100)},
		{240, noteOn(0, 60, 0)},
	})

	s := mustLoad(t, data)
	if len(s.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(s.Events))
	}
	if !approx(s.Events[0].EndTime, 0.25) {
		t.Errorf("expected end 0.25, got %v", s.Events[0].EndTime)
	}
}

func TestLoad_OrphanClosedAtLastEvent(t *testing.T) {
	data := buildSMF(0, 480, []rawEvent{
		{0, noteOn(0, 60, 100)},
		{0, noteOn(0, 64, 100)},
		{960, noteOff(0, 64)},
	})

	s := mustLoad(t, data)
	if len(s.Events) != 2 {
		t.Fatalf("orphan should be kept, got %d events", len(s.Events))
	}
	for _, ev := range s.Events {
		if !approx(ev.EndTime, 1.0) {
			t.Errorf("pitch %d: expected end 1.0, got %v", ev.Pitch, ev.EndTime)
		}
	}
}

func TestLoad_OrphanInEarlierTrackUsesFileEnd(t *testing.T) {
	short := []rawEvent{{0, noteOn(0, 60, 100)}}
	long := []rawEvent{
		{0, noteOn(1, 67, 100)},
		{1920, noteOff(1, 67)},
	}

	s := mustLoad(t, buildSMF(1, 480, short, long))
	for _, ev := range s.Events {
		if ev.Pitch == 60 && !approx(ev.EndTime, 2.0) {
			t.Errorf("expected orphan to end at 2.0, got %v", ev.EndTime)
		}
	}
}

func TestLoad_DuplicateNoteOnRetriggers(t *testing.T) {
	data := buildSMF(0, 480, []rawEvent{
		{0, noteOn(0, 60, 100)},
		{240, noteOn(0, 60, 90)},
		{240, noteOff(0, 60)},
	})

	s := mustLoad(t, data)
	if len(s.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(s.Events))
	}
	if !approx(s.Events[0].EndTime, 0.25) || s.Events[0].Velocity != 100 {
		t.Errorf("unexpected first event: %+v", s.Events[0])
	}
	if !approx(s.Events[1].StartTime, 0.25) || !approx(s.Events[1].EndTime, 0.5) || s.Events[1].Velocity != 90 {
		t.Errorf("unexpected second event: %+v", s.Events[1])
	}
}

func TestLoad_ZeroLengthNote(t *testing.T) {
	data := buildSMF(0, 480, []rawEvent{
		{240, noteOn(0, 60, 100)},
		{0, noteOff(0, 60)},
	})

	s := mustLoad(t, data)
	if len(s.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(s.Events))
	}
	ev := s.Events[0]
	if ev.EndTime <= ev.StartTime {
		t.Errorf("expected end > start, got %v-%v", ev.StartTime, ev.EndTime)
	}
}

func TestLoad_TiesKeepFileOrder(t *testing.T) {
	data := buildSMF(0, 480, []rawEvent{
		{0, noteOn(0, 67, 100)},
		{0, noteOn(0, 60, 100)},
		{0, noteOn(0, 64, 100)},
		{480, noteOff(0, 60)},
		{0, noteOff(0, 64)},
		{0, noteOff(0, 67)},
	})

	s := mustLoad(t, data)
	want := []int{67, 60, 64}
	for i, ev := range s.Events {
		if ev.Pitch != want[i] {
			t.Errorf("event %d: expected pitch %d, got %d", i, want[i], ev.Pitch)
		}
	}
}

func TestLoad_StrayNoteOffIgnored(t *testing.T) {
	data := buildSMF(0, 480, []rawEvent{
		{0, noteOff(0, 60)},
		{0, noteOn(0, 62, 100)},
		{480, noteOff(0, 62)},
	})

	s := mustLoad(t, data)
	if len(s.Events) != 1 || s.Events[0].Pitch != 62 {
		t.Errorf("unexpected events: %+v", s.Events)
	}
}

func TestLoad_Empty(t *testing.T) {
	s := mustLoad(t, buildSMF(0, 480, []rawEvent{{0, tempo(500000)}}))
	if len(s.Events) != 0 {
		t.Errorf("expected no events, got %d", len(s.Events))
	}
	if s.Duration != 0 {
		t.Errorf("expected duration 0, got %v", s.Duration)
	}
}

func TestLoad_Title(t *testing.T) {
	t.Run("utf-8", func(t *testing.T) {
		s := mustLoad(t, buildSMF(0, 480, []rawEvent{{0, trackName("  Minuet in G ")}}))
		if s.Title != "Minuet in G" {
			t.Errorf("unexpected title %q", s.Title)
		}
	})

	t.Run("shift-jis", func(t *testing.T) {
		// "日本" in Shift-JIS
		sjis := string([]byte{0x93, 0xFA, 0x96, 0x7B})
		s := mustLoad(t, buildSMF(0, 480, []rawEvent{{0, trackName(sjis)}}))
		if s.Title != "日本" {
			t.Errorf("unexpected title %q", s.Title)
		}
	})
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		unsupported bool
	}{
		{"empty", []byte{}, false},
		{"not a MIDI file", []byte("RIFF....WAVEfmt hello world"), false},
		{"short header", []byte("MThd\x00\x00"), false},
		{"type 2", buildSMF(2, 480, []rawEvent{{0, noteOn(0, 60, 1)}}), true},
		{"SMPTE division", buildSMF(0, 0xE728, []rawEvent{{0, noteOn(0, 60, 1)}}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Load(tt.data)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if s != nil {
				t.Error("expected no partial score on error")
			}
			if !errors.Is(err, ErrInvalidMIDI) {
				t.Errorf("expected ErrInvalidMIDI, got %v", err)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Errorf("expected *ParseError, got %T", err)
			}
			if tt.unsupported && !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("expected ErrUnsupportedFormat, got %v", err)
			}
		})
	}
}

func TestScore_Describe(t *testing.T) {
	data := buildSMF(0, 480, []rawEvent{
		{0, trackName("Etude")},
		{0, noteOn(0, 60, 100)},
		{480, noteOff(0, 60)},
		{0, noteOn(9, 36, 100)},
		{480, noteOff(9, 36)},
	})
	s := mustLoad(t, data)

	var buf bytes.Buffer
	s.Describe(&buf)
	out := buf.String()
	for _, want := range []string{"Title: Etude", "Notes: 2", "120.00 BPM", "Pitch range: 36-60", "9: 1 notes"} {
		if !strings.Contains(out, want) {
			t.Errorf("Describe output missing %q:\n%s", want, out)
		}
	}
}

func TestScore_Channel(t *testing.T) {
	data := buildSMF(0, 480, []rawEvent{
		{0, noteOn(0, 60, 100)},
		{480, noteOff(0, 60)},
		{0, noteOn(9, 36, 100)},
		{480, noteOff(9, 36)},
	})
	s := mustLoad(t, data)

	drums := s.Channel(9)
	if len(drums.Events) != 1 || drums.Events[0].Pitch != 36 {
		t.Errorf("unexpected filtered events: %+v", drums.Events)
	}
	if !approx(drums.Duration, 1.0) {
		t.Errorf("expected filtered duration 1.0, got %v", drums.Duration)
	}
	if len(s.Events) != 2 {
		t.Error("filter must not modify the source score")
	}
	if s.Channel() != s {
		t.Error("empty channel list should return the score itself")
	}
}
