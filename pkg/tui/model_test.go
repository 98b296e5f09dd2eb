package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/zurustar/keyfall/pkg/input"
	"github.com/zurustar/keyfall/pkg/matcher"
	"github.com/zurustar/keyfall/pkg/scheduler"
	"github.com/zurustar/keyfall/pkg/score"
	"github.com/zurustar/keyfall/pkg/scoring"
	"github.com/zurustar/keyfall/pkg/session"
)

type fakePlayer struct {
	started  int
	ticks    int
	stops    int
	report   session.Report
	paused   bool
	speed    float64
	presses  []int
	releases []int
	notes    []*scheduler.FallingNote
}

func (f *fakePlayer) Start()               { f.started++ }
func (f *fakePlayer) Tick() session.Report { f.ticks++; return f.report }
func (f *fakePlayer) Press(pitch, velocity int, source input.Source) error {
	f.presses = append(f.presses, pitch)
	return nil
}
func (f *fakePlayer) Release(pitch int, source input.Source) error {
	f.releases = append(f.releases, pitch)
	return nil
}
func (f *fakePlayer) TogglePause()                          { f.paused = !f.paused }
func (f *fakePlayer) Paused() bool                          { return f.paused }
func (f *fakePlayer) SetSpeed(speed float64)                { f.speed = speed }
func (f *fakePlayer) Speed() float64                        { return f.speed }
func (f *fakePlayer) ActiveNotes() []*scheduler.FallingNote { return f.notes }
func (f *fakePlayer) State() scoring.State                  { return scoring.State{Score: 42} }
func (f *fakePlayer) Time() float64                         { return 0 }
func (f *fakePlayer) SongID() string                        { return "etude" }
func (f *fakePlayer) Score() *score.Score {
	return &score.Score{Events: []score.Event{{Pitch: 60}, {Pitch: 67}}}
}
func (f *fakePlayer) Stop() scoring.Summary {
	f.stops++
	return scoring.Summary{SongID: "etude", Score: 42}
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func key(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestModel_KeyPressAndRelease(t *testing.T) {
	p := &fakePlayer{speed: 1}
	m := NewModel(p, nil, 0)

	next, _ := m.Update(key('q'))
	m = next.(Model)
	if len(p.presses) != 1 || p.presses[0] != 60 {
		t.Fatalf("expected press of 60, got %v", p.presses)
	}

	// Unmapped keys are ignored.
	next, _ = m.Update(key('p'))
	m = next.(Model)
	if len(p.presses) != 1 {
		t.Errorf("expected unmapped key to be ignored, got %v", p.presses)
	}

	start := time.Now()
	next, _ = m.Update(frameMsg(start))
	m = next.(Model)
	if len(p.releases) != 0 {
		t.Errorf("expected key still held, got releases %v", p.releases)
	}

	next, _ = m.Update(frameMsg(start.Add(time.Second)))
	m = next.(Model)
	if len(p.releases) != 1 || p.releases[0] != 60 {
		t.Errorf("expected release of 60, got %v", p.releases)
	}
	if p.ticks != 2 {
		t.Errorf("expected 2 ticks, got %d", p.ticks)
	}
}

func TestModel_Controls(t *testing.T) {
	p := &fakePlayer{speed: 1}
	m := NewModel(p, nil, 0)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	m = next.(Model)
	if !p.paused {
		t.Error("expected space to pause")
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRight})
	m = next.(Model)
	if p.speed < 1.09 || p.speed > 1.11 {
		t.Errorf("expected speed 1.1, got %v", p.speed)
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m = next.(Model)
	if m.keymap.Octave() != 1 {
		t.Errorf("expected octave 1, got %d", m.keymap.Octave())
	}
	m.Update(key('q'))
	if p.presses[len(p.presses)-1] != 72 {
		t.Errorf("expected shifted pitch 72, got %d", p.presses[len(p.presses)-1])
	}
}

func TestModel_Finish(t *testing.T) {
	t.Run("escape stops the session", func(t *testing.T) {
		p := &fakePlayer{speed: 1}
		m := NewModel(p, nil, 0)
		m.Update(key('z'))

		next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
		m = next.(Model)
		if !isQuit(cmd) {
			t.Error("expected quit command")
		}
		if p.stops != 1 || m.Summary() == nil || m.Summary().Score != 42 {
			t.Errorf("expected summary after stop, got %+v (stops %d)", m.Summary(), p.stops)
		}
		if len(p.releases) != 1 {
			t.Errorf("expected held key released, got %v", p.releases)
		}
		if m.View() != "" {
			t.Error("expected empty view after quitting")
		}
	})

	t.Run("completed session quits", func(t *testing.T) {
		p := &fakePlayer{speed: 1, report: session.Report{Completed: true}}
		m := NewModel(p, nil, 0)
		next, cmd := m.Update(frameMsg(time.Now()))
		if !isQuit(cmd) {
			t.Error("expected quit command")
		}
		if next.(Model).Summary() == nil {
			t.Error("expected summary")
		}
	})

	t.Run("timeout quits", func(t *testing.T) {
		p := &fakePlayer{speed: 1}
		m := NewModel(p, nil, time.Second)
		start := time.Now()
		next, cmd := m.Update(frameMsg(start))
		if isQuit(cmd) {
			t.Fatal("did not expect quit before timeout")
		}
		_, cmd = next.(Model).Update(frameMsg(start.Add(2 * time.Second)))
		if !isQuit(cmd) {
			t.Error("expected quit after timeout")
		}
	})
}

func TestModel_View(t *testing.T) {
	p := &fakePlayer{speed: 1}
	m := NewModel(p, nil, 0)
	m.applyReport(session.Report{Matches: []matcher.Match{{Result: matcher.Perfect}}}, time.Now())
	m.lastAt = time.Now()

	view := m.View()
	for _, want := range []string{"etude", "score 42", "PERFECT"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q", want)
		}
	}
}

func TestPitchSpan(t *testing.T) {
	tests := []struct {
		name      string
		events    []score.Event
		low, high int
	}{
		{"empty", nil, 48, 72},
		{"narrow", []score.Event{{Pitch: 61}}, 60, 84},
		{"wide", []score.Event{{Pitch: 40}, {Pitch: 90}}, 36, 95},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			low, high := pitchSpan(tt.events)
			if low != tt.low || high != tt.high {
				t.Errorf("expected %d..%d, got %d..%d", tt.low, tt.high, low, high)
			}
		})
	}
}

func TestRenderLanes(t *testing.T) {
	n := &scheduler.FallingNote{Pitch: 62, SpawnTime: 0, TargetTime: 2, EndTime: 2.5, Status: scheduler.Active}

	lines := renderLanes([]*scheduler.FallingNote{n}, 2, 60, 64, 8)
	if len(lines) != 8 {
		t.Fatalf("expected 8 rows, got %d", len(lines))
	}
	// At the target the note sits on the bottom rows: length 0.5/2*8 = 2 rows.
	if lines[7] != "  #  " || lines[6] != "  #  " || lines[5] != "     " {
		t.Errorf("unexpected grid:\n%s", strings.Join(lines, "\n"))
	}

	n.Status = scheduler.Hit
	lines = renderLanes([]*scheduler.FallingNote{n}, 1, 60, 64, 8)
	// Halfway: bottom at row 4.
	if lines[3] != "  +  " || lines[4] != "     " {
		t.Errorf("unexpected grid:\n%s", strings.Join(lines, "\n"))
	}

	out := renderLanes([]*scheduler.FallingNote{{Pitch: 90, TargetTime: 1}}, 1, 60, 64, 4)
	for _, l := range out {
		if strings.TrimSpace(l) != "" {
			t.Errorf("expected out-of-range note to be skipped, got %q", l)
		}
	}
}

func TestRenderKeys(t *testing.T) {
	got := renderKeys(60, 64, map[int]time.Time{64: time.Now()})
	if got != "_^_^*" {
		t.Errorf("expected _^_^*, got %q", got)
	}
}
