package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zurustar/keyfall/pkg/clock"
	"github.com/zurustar/keyfall/pkg/highscore"
	"github.com/zurustar/keyfall/pkg/input"
	"github.com/zurustar/keyfall/pkg/logger"
	"github.com/zurustar/keyfall/pkg/matcher"
	"github.com/zurustar/keyfall/pkg/score"
	"github.com/zurustar/keyfall/pkg/scoring"
	"github.com/zurustar/keyfall/pkg/synth"
)

// fakeTime is a manually advanced wall clock.
type fakeTime struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

// Set moves the clock to secs seconds after the session started.
func (f *fakeTime) Set(start time.Time, secs float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = start.Add(time.Duration(secs * float64(time.Second)))
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	s     *Session
	ft    *fakeTime
	rec   *synth.Recorder
	store *highscore.MemoryStore
}

// at moves playback to secs (no pauses involved).
func (f *fixture) at(secs float64) {
	f.ft.Set(epoch, secs)
}

func note(pitch int, start, end float64) score.Event {
	return score.Event{Pitch: pitch, Velocity: 100, StartTime: start, EndTime: end}
}

func newFixture(t *testing.T, events []score.Event, mutate func(*Config), opts ...Option) *fixture {
	t.Helper()

	cfg := DefaultConfig()
	cfg.SongID = "test-song"
	if mutate != nil {
		mutate(&cfg)
	}

	f := &fixture{
		ft:    &fakeTime{t: epoch},
		rec:   synth.NewRecorder(),
		store: highscore.NewMemoryStore(nil),
	}
	sc := &score.Score{Events: events, Title: "Title"}
	base := []Option{
		WithLogger(logger.Discard()),
		WithClockOptions(clock.WithNow(f.ft.Now)),
		WithScoringOptions(scoring.WithStore(f.store), scoring.WithNow(f.ft.Now)),
		WithMonitor(f.rec),
	}
	s, err := New(sc, cfg, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start()
	f.s = s
	return f
}

func TestSession_PressBeforeExpiryInSameTickIsHit(t *testing.T) {
	// Lead time 3s: the note at 3.0 spawns at 0.
	f := newFixture(t, []score.Event{note(60, 3.0, 3.5)}, nil)

	f.at(0)
	if r := f.s.Tick(); len(r.Activated) != 1 {
		t.Fatalf("expected 1 activated note, got %d", len(r.Activated))
	}

	f.at(3.14)
	if err := f.s.Press(60, 100, input.SourceKeyboard); err != nil {
		t.Fatalf("Press: %v", err)
	}

	// The tick runs after the good window closed.
	f.at(3.2)
	r := f.s.Tick()
	if len(r.Missed) != 0 {
		t.Errorf("expected no misses, got %d", len(r.Missed))
	}
	if len(r.Matches) != 1 || r.Matches[0].Result != matcher.Good {
		t.Fatalf("expected one good match, got %+v", r.Matches)
	}

	st := f.s.State()
	if st.Good != 1 || st.Missed != 0 || st.Combo != 1 {
		t.Errorf("unexpected state %+v", st)
	}
}

func TestSession_MissWithoutInput(t *testing.T) {
	f := newFixture(t, []score.Event{note(60, 3.0, 3.5), note(62, 5.0, 5.5)}, nil)

	f.at(0)
	f.s.Tick()
	f.at(3.2)
	r := f.s.Tick()
	if len(r.Missed) != 1 || r.Missed[0].Pitch != 60 {
		t.Fatalf("expected pitch 60 missed, got %+v", r.Missed)
	}
	if st := f.s.State(); st.Missed != 1 || st.Combo != 0 {
		t.Errorf("unexpected state %+v", st)
	}
}

func TestSession_NoMatchLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, []score.Event{note(60, 3.0, 3.5)}, nil)

	f.at(1)
	f.s.Press(64, 100, input.SourceKeyboard)
	r := f.s.Tick()
	if len(r.Matches) != 1 || r.Matches[0].Result != matcher.NoMatch {
		t.Fatalf("expected no-match, got %+v", r.Matches)
	}
	if st := f.s.State(); st != (scoring.State{DifficultyMultiplier: 1.0}) {
		t.Errorf("expected untouched state, got %+v", st)
	}
}

func TestSession_NearestActivePolicy(t *testing.T) {
	f := newFixture(t, []score.Event{note(60, 3.0, 3.5)}, func(c *Config) {
		c.Policy = matcher.PolicyNearestActive
	})

	f.at(3.0)
	f.s.Press(64, 100, input.SourceKeyboard)
	r := f.s.Tick()
	if len(r.Matches) != 1 || r.Matches[0].Result != matcher.Wrong {
		t.Fatalf("expected wrong, got %+v", r.Matches)
	}
	if st := f.s.State(); st.Wrong != 1 || st.Score != 0 {
		t.Errorf("unexpected state %+v", st)
	}
}

func TestSession_Monitor(t *testing.T) {
	f := newFixture(t, []score.Event{note(60, 3.0, 3.5)}, func(c *Config) {
		c.MonitorChannel = 3
	})

	f.at(1)
	f.s.Press(67, 90, input.SourceMIDI)
	f.s.Release(67, input.SourceMIDI)
	f.s.Tick()

	got := f.rec.Decisions()
	if len(got) != 2 {
		t.Fatalf("expected 2 monitor decisions, got %v", got)
	}
	if got[0] != (synth.Decision{Kind: synth.KindNoteOn, Channel: 3, Key: 67, Velocity: 90}) {
		t.Errorf("unexpected note-on %+v", got[0])
	}
	if got[1] != (synth.Decision{Kind: synth.KindNoteOff, Channel: 3, Key: 67}) {
		t.Errorf("unexpected note-off %+v", got[1])
	}
}

func TestSession_Stop(t *testing.T) {
	t.Run("persists exactly once", func(t *testing.T) {
		f := newFixture(t, []score.Event{note(60, 3.0, 3.5)}, nil)

		f.at(3.0)
		f.s.Press(60, 100, input.SourceKeyboard)
		f.s.Tick()

		first := f.s.Stop()
		second := f.s.Stop()
		if f.store.Saves() != 1 {
			t.Errorf("expected 1 save, got %d", f.store.Saves())
		}
		if first.SessionID != second.SessionID || first.Score != second.Score {
			t.Errorf("expected identical summaries, got %+v and %+v", first, second)
		}
		if first.SongID != "test-song" || first.Perfect != 1 {
			t.Errorf("unexpected summary %+v", first)
		}
		if !f.s.Done() {
			t.Error("expected session to be done")
		}
	})

	t.Run("refuses input afterwards", func(t *testing.T) {
		f := newFixture(t, []score.Event{note(60, 3.0, 3.5)}, nil)
		f.s.Stop()
		if err := f.s.Press(60, 100, input.SourceKeyboard); !errors.Is(err, ErrStopped) {
			t.Errorf("expected ErrStopped, got %v", err)
		}
		if r := f.s.Tick(); !r.Completed {
			t.Error("expected completed report after stop")
		}
	})

	t.Run("flushes expired notes", func(t *testing.T) {
		f := newFixture(t, []score.Event{note(60, 1.0, 1.5), note(62, 2.0, 2.5), note(64, 9.0, 9.5)}, nil)

		// No tick ran since start; both expired notes still count.
		f.at(4.0)
		sum := f.s.Stop()
		if sum.Missed != 2 {
			t.Errorf("expected 2 misses, got %d", sum.Missed)
		}
		if sum.SessionTime != 4.0 {
			t.Errorf("expected session time 4.0, got %v", sum.SessionTime)
		}
	})

	t.Run("matches input queued before stop", func(t *testing.T) {
		f := newFixture(t, []score.Event{note(60, 3.0, 3.5)}, nil)
		f.at(3.0)
		f.s.Press(60, 100, input.SourceKeyboard)
		sum := f.s.Stop()
		if sum.Perfect != 1 || sum.Missed != 0 {
			t.Errorf("unexpected summary %+v", sum)
		}
	})

	t.Run("stop before start records nothing", func(t *testing.T) {
		f := newFixture(t, []score.Event{note(60, 3.0, 3.5)}, nil)
		s, err := New(&score.Score{Events: []score.Event{note(60, 3.0, 3.5)}}, f.s.Config(),
			WithLogger(logger.Discard()),
			WithClockOptions(clock.WithNow(f.ft.Now)),
			WithScoringOptions(scoring.WithStore(f.store), scoring.WithNow(f.ft.Now)),
		)
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		sum := s.Stop()
		if f.store.Saves() != 0 {
			t.Errorf("expected no save, got %d", f.store.Saves())
		}
		if sum.Rank != 0 || sum.Score != 0 || sum.SongID != "test-song" {
			t.Errorf("unexpected summary %+v", sum)
		}
		if len(s.HighScores()) != 0 {
			t.Errorf("expected no records, got %+v", s.HighScores())
		}
		if !s.Done() {
			t.Error("expected session to be done")
		}
		s.Start()
		if s.Clock().IsStarted() {
			t.Error("Start after Stop should do nothing")
		}
	})

	t.Run("persistence failure keeps the result", func(t *testing.T) {
		f := newFixture(t, []score.Event{note(60, 3.0, 3.5)}, nil)
		f.store.SaveErr = errors.New("disk full")

		f.at(3.0)
		f.s.Press(60, 100, input.SourceKeyboard)
		sum := f.s.Stop()
		if sum.PersistErr == nil {
			t.Error("expected PersistErr")
		}
		if sum.Score == 0 || sum.MaxCombo != 1 {
			t.Errorf("expected valid score, got %+v", sum)
		}
	})
}

func TestSession_CompletesAutomatically(t *testing.T) {
	f := newFixture(t, []score.Event{note(60, 3.0, 3.5)}, nil)

	f.at(3.0)
	f.s.Press(60, 100, input.SourceKeyboard)
	if r := f.s.Tick(); r.Completed {
		t.Fatal("expected session still running during retire grace")
	}

	f.at(4.0)
	if r := f.s.Tick(); !r.Completed {
		t.Fatal("expected session to complete")
	}
	sum, ok := f.s.Summary()
	if !ok || sum.Perfect != 1 {
		t.Errorf("unexpected summary %+v (ok=%v)", sum, ok)
	}
	if got := f.s.HighScores(); len(got) != 1 || got[0].Score != sum.Score {
		t.Errorf("expected the session in the high-score table, got %+v", got)
	}
}

func TestSession_Pause(t *testing.T) {
	f := newFixture(t, []score.Event{note(60, 3.0, 3.5)}, nil)

	f.at(1.0)
	f.s.Pause()
	f.s.Pause()

	f.at(10.0)
	if got := f.s.Time(); got != 1.0 {
		t.Errorf("expected frozen time 1.0, got %v", got)
	}
	f.s.Press(60, 100, input.SourceKeyboard)
	if f.s.Queue().Len() != 0 {
		t.Error("expected presses while paused to be ignored")
	}
	if r := f.s.Tick(); len(r.Missed) != 0 {
		t.Error("expected no misses while paused")
	}

	f.s.Resume()
	f.s.Resume()
	f.at(11.0)
	if got := f.s.Time(); got < 1.99 || got > 2.01 {
		t.Errorf("expected time 2.0 after resume, got %v", got)
	}

	offs := 0
	for _, d := range f.rec.Decisions() {
		if d.Kind == synth.KindAllNotesOff {
			offs++
		}
	}
	if offs != 1 {
		t.Errorf("expected one all-notes-off for one pause, got %d", offs)
	}
}

func TestSession_Accompaniment(t *testing.T) {
	events := []score.Event{
		{Pitch: 60, Velocity: 100, StartTime: 3.0, EndTime: 3.5, Channel: 0},
		{Pitch: 36, Velocity: 80, StartTime: 3.0, EndTime: 3.5, Channel: 1},
	}
	accomp := synth.NewRecorder()
	f := newFixture(t, events, func(c *Config) {
		c.Parts = []int{0}
		c.Accompaniment = true
		c.MuteParts = true
	}, WithAccompanimentSink(accomp))

	f.at(0)
	if r := f.s.Tick(); len(r.Activated) != 1 {
		t.Fatalf("expected only the practiced part to fall, got %d notes", len(r.Activated))
	}
	f.at(3.1)
	f.s.Tick()

	got := accomp.Decisions()
	if len(got) != 1 || got[0].Kind != synth.KindNoteOn || got[0].Channel != 1 {
		t.Fatalf("expected channel 1 note-on only, got %v", got)
	}

	f.s.Pause()
	got = accomp.Decisions()
	if got[len(got)-1].Kind != synth.KindNoteOff {
		t.Errorf("expected pause to release the held note, got %v", got[len(got)-1])
	}
}

func TestNew_Errors(t *testing.T) {
	t.Run("empty part", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Parts = []int{5}
		sc := &score.Score{Events: []score.Event{note(60, 1, 2)}}
		if _, err := New(sc, cfg, WithLogger(logger.Discard())); !errors.Is(err, ErrEmptyScore) {
			t.Errorf("expected ErrEmptyScore, got %v", err)
		}
	})

	t.Run("song id falls back to title", func(t *testing.T) {
		sc := &score.Score{Events: []score.Event{note(60, 1, 2)}, Title: "Etude"}
		s, err := New(sc, DefaultConfig(), WithLogger(logger.Discard()))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if s.SongID() != "Etude" {
			t.Errorf("expected song id Etude, got %q", s.SongID())
		}
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"default", func(c *Config) {}, true},
		{"zero fall speed", func(c *Config) { c.FallSpeed = 0 }, false},
		{"negative distance", func(c *Config) { c.FallDistance = -1 }, false},
		{"perfect wider than good", func(c *Config) { c.PerfectWindow = 0.2 }, false},
		{"negative grace", func(c *Config) { c.RetireGrace = -0.1 }, false},
		{"unknown difficulty", func(c *Config) { c.Difficulty = "insane" }, false},
		{"speed too high", func(c *Config) { c.Speed = 3 }, false},
		{"monitor channel", func(c *Config) { c.MonitorChannel = 16 }, false},
		{"part channel", func(c *Config) { c.Parts = []int{-1} }, false},
		{"expert", func(c *Config) { c.Difficulty = scoring.Expert }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.valid && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
