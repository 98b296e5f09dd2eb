// Package tui is a terminal front end for a practice session. Terminals
// report key presses but not releases, so a held key is released after a
// short fixed time.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/zurustar/keyfall/pkg/input"
	"github.com/zurustar/keyfall/pkg/matcher"
	"github.com/zurustar/keyfall/pkg/scheduler"
	"github.com/zurustar/keyfall/pkg/score"
	"github.com/zurustar/keyfall/pkg/scoring"
	"github.com/zurustar/keyfall/pkg/session"
)

const (
	// FrameInterval is the tick rate of the terminal loop.
	FrameInterval = time.Second / 60

	// releaseAfter is how long a terminal key press is held.
	releaseAfter = 250 * time.Millisecond

	defaultRows = 20
	speedStep   = 0.1
)

// Player is the session surface the terminal front end drives.
type Player interface {
	Start()
	Tick() session.Report
	Press(pitch, velocity int, source input.Source) error
	Release(pitch int, source input.Source) error
	TogglePause()
	Paused() bool
	SetSpeed(speed float64)
	Speed() float64
	Stop() scoring.Summary
	ActiveNotes() []*scheduler.FallingNote
	State() scoring.State
	Time() float64
	SongID() string
	Score() *score.Score
}

type frameMsg time.Time

func frame() tea.Cmd {
	return tea.Tick(FrameInterval, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

type Model struct {
	player  Player
	keymap  *input.KeyMap
	low     int
	high    int
	rows    int
	held    map[int]time.Time
	last    string
	lastAt  time.Time
	timeout time.Duration
	started time.Time

	summary  *scoring.Summary
	quitting bool
}

func NewModel(p Player, keymap *input.KeyMap, timeout time.Duration) Model {
	if keymap == nil {
		keymap = input.DefaultKeyMap()
	}
	var events []score.Event
	if sc := p.Score(); sc != nil {
		events = sc.Events
	}
	low, high := pitchSpan(events)
	return Model{
		player:  p,
		keymap:  keymap,
		low:     low,
		high:    high,
		rows:    defaultRows,
		held:    make(map[int]time.Time),
		timeout: timeout,
	}
}

// Summary returns the result once the session has ended.
func (m Model) Summary() *scoring.Summary {
	return m.summary
}

func (m Model) Init() tea.Cmd {
	m.player.Start()
	return frame()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.finish()
			return m, tea.Quit
		case " ", "space":
			m.player.TogglePause()
		case "up":
			m.keymap.ShiftOctave(1)
		case "down":
			m.keymap.ShiftOctave(-1)
		case "right":
			m.player.SetSpeed(m.player.Speed() + speedStep)
		case "left":
			m.player.SetSpeed(m.player.Speed() - speedStep)
		default:
			if msg.Type == tea.KeyRunes && len(msg.Runes) == 1 {
				m.press(msg.Runes[0], time.Now())
			}
		}

	case tea.WindowSizeMsg:
		m.rows = max(5, msg.Height-10)

	case frameMsg:
		now := time.Time(msg)
		if m.started.IsZero() {
			m.started = now
		}
		m.releaseExpired(now)

		report := m.player.Tick()
		m.applyReport(report, now)
		if report.Completed || (m.timeout > 0 && now.Sub(m.started) >= m.timeout) {
			m.finish()
			return m, tea.Quit
		}
		return m, frame()
	}

	return m, nil
}

func (m *Model) press(r rune, now time.Time) {
	pitch, ok := m.keymap.Pitch(r)
	if !ok {
		return
	}
	if _, down := m.held[pitch]; down {
		_ = m.player.Release(pitch, input.SourceKeyboard)
	}
	if err := m.player.Press(pitch, input.KeyboardVelocity, input.SourceKeyboard); err != nil {
		return
	}
	m.held[pitch] = now
}

func (m *Model) releaseExpired(now time.Time) {
	for pitch, at := range m.held {
		if now.Sub(at) >= releaseAfter {
			delete(m.held, pitch)
			_ = m.player.Release(pitch, input.SourceKeyboard)
		}
	}
}

func (m *Model) applyReport(r session.Report, now time.Time) {
	for _, match := range r.Matches {
		if match.Result != matcher.NoMatch {
			m.last = strings.ToUpper(match.Result.String())
			m.lastAt = now
		}
	}
	if len(r.Missed) > 0 {
		m.last = "MISS"
		m.lastAt = now
	}
}

func (m *Model) finish() {
	if m.summary != nil {
		return
	}
	for pitch := range m.held {
		_ = m.player.Release(pitch, input.SourceKeyboard)
	}
	clear(m.held)
	sum := m.player.Stop()
	m.summary = &sum
	m.quitting = true
}

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	feedbackStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("226"))
	laneStyle     = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, true)
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	st := m.player.State()
	state := "PLAY"
	if m.player.Paused() {
		state = "PAUSE"
	}
	header := headerStyle.Render(fmt.Sprintf("%s  %s  score %d  combo %d  acc %.1f%%  x%.1f  oct %+d",
		m.player.SongID(), state, st.Score, st.Combo, st.Accuracy()*100, m.player.Speed(), m.keymap.Octave()))

	t := m.player.Time()
	grid := renderLanes(m.player.ActiveNotes(), t, m.low, m.high, m.rows)
	grid = append(grid, strings.Repeat("=", m.high-m.low+1), renderKeys(m.low, m.high, m.held))

	label := ""
	if m.last != "" && time.Since(m.lastAt) < 600*time.Millisecond {
		label = feedbackStyle.Render(m.last)
	}
	help := dimStyle.Render("keys: z s x d c v ... / q 2 w 3 e ...  space:pause  up/down:octave  left/right:speed  esc:quit")

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")
	out.WriteString(laneStyle.Render(strings.Join(grid, "\n")))
	out.WriteString("\n")
	out.WriteString(label)
	out.WriteString("\n")
	out.WriteString(help)
	return out.String()
}

// Run runs the terminal front end until the session ends and returns its
// summary.
func Run(p Player, keymap *input.KeyMap, timeout time.Duration) (*scoring.Summary, error) {
	prog := tea.NewProgram(NewModel(p, keymap, timeout), tea.WithAltScreen())
	final, err := prog.Run()
	if err != nil {
		return nil, fmt.Errorf("terminal UI failed: %w", err)
	}
	m, ok := final.(Model)
	if !ok || m.summary == nil {
		sum := p.Stop()
		return &sum, nil
	}
	return m.summary, nil
}
