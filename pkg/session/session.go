// Package session runs one practice session: it owns the playback clock and
// wires the scheduler, matcher, scoring engine, input queue and sound sinks
// together in a fixed per-tick order.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zurustar/keyfall/pkg/clock"
	"github.com/zurustar/keyfall/pkg/input"
	"github.com/zurustar/keyfall/pkg/logger"
	"github.com/zurustar/keyfall/pkg/matcher"
	"github.com/zurustar/keyfall/pkg/scheduler"
	"github.com/zurustar/keyfall/pkg/score"
	"github.com/zurustar/keyfall/pkg/scoring"
	"github.com/zurustar/keyfall/pkg/synth"
)

// ErrStopped is returned for input pushed after Stop.
var ErrStopped = errors.New("session stopped")

// ErrEmptyScore is returned when the practiced part has no notes.
var ErrEmptyScore = errors.New("score has no notes to practice")

// Report describes what happened during one Tick.
type Report struct {
	Time      float64
	Activated []*scheduler.FallingNote
	Matches   []matcher.Match
	Missed    []*scheduler.FallingNote
	Completed bool
}

// Session is a single run through a score. Tick, Pause, Resume and Stop may
// be called from different goroutines; input producers only touch the queue.
type Session struct {
	mu sync.Mutex

	cfg    Config
	songID string
	score  *score.Score

	clock  *clock.Clock
	sched  *scheduler.Scheduler
	match  *matcher.Matcher
	engine *scoring.Engine
	queue  *input.Queue

	monitor synth.Sink
	accomp  synth.Sink
	seq     *synth.Sequencer

	log *slog.Logger

	started  bool
	stopped  bool
	stopOnce sync.Once
	summary  scoring.Summary

	clockOpts  []clock.Option
	engineOpts []scoring.Option
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger for the session and its components.
func WithLogger(log *slog.Logger) Option {
	return func(s *Session) {
		s.log = log
	}
}

// WithClockOptions passes options to the playback clock.
func WithClockOptions(opts ...clock.Option) Option {
	return func(s *Session) {
		s.clockOpts = append(s.clockOpts, opts...)
	}
}

// WithScoringOptions passes options to the scoring engine, typically
// scoring.WithStore.
func WithScoringOptions(opts ...scoring.Option) Option {
	return func(s *Session) {
		s.engineOpts = append(s.engineOpts, opts...)
	}
}

// WithMonitor sets the sink that sounds live presses.
func WithMonitor(sink synth.Sink) Option {
	return func(s *Session) {
		s.monitor = sink
	}
}

// WithAccompanimentSink sets the sink used when Config.Accompaniment is on.
// It defaults to the monitor sink.
func WithAccompanimentSink(sink synth.Sink) Option {
	return func(s *Session) {
		s.accomp = sink
	}
}

// New builds a session over sc. The clock does not run until Start.
func New(sc *score.Score, cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		cfg:     cfg,
		score:   sc,
		monitor: synth.Null{},
		log:     logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	practice := sc.Channel(cfg.Parts...)
	if len(practice.Events) == 0 {
		return nil, ErrEmptyScore
	}

	s.songID = cfg.SongID
	if s.songID == "" {
		s.songID = sc.Title
	}

	s.clock = clock.New(append([]clock.Option{clock.WithSpeed(cfg.Speed)}, s.clockOpts...)...)

	lead, _ := cfg.LeadTime()
	sched, err := scheduler.New(practice.Events, scheduler.Config{
		LeadTime:    lead,
		GoodWindow:  cfg.GoodWindow,
		RetireGrace: cfg.RetireGrace,
	})
	if err != nil {
		return nil, err
	}
	s.sched = sched

	s.match, err = matcher.New(sched,
		matcher.WithWindows(cfg.Windows()),
		matcher.WithPolicy(cfg.Policy),
		matcher.WithLogger(s.log))
	if err != nil {
		return nil, err
	}

	multipliers := cfg.Multipliers
	if multipliers == nil {
		multipliers = scoring.DefaultMultipliers()
	}
	engineOpts := append([]scoring.Option{
		scoring.WithDifficulty(cfg.Difficulty),
		scoring.WithMultipliers(multipliers),
		scoring.WithLogger(s.log),
	}, s.engineOpts...)
	s.engine, err = scoring.New(engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	s.queue = input.NewQueue(cfg.InputQueueSize, s.log)

	if cfg.Accompaniment {
		sink := s.accomp
		if sink == nil {
			sink = s.monitor
		}
		var seqOpts []synth.SequencerOption
		if cfg.MuteParts {
			seqOpts = append(seqOpts, synth.WithMutedChannels(cfg.Parts...))
		}
		seqOpts = append(seqOpts, synth.WithSequencerLogger(s.log))
		s.seq = synth.NewSequencer(sc.Events, sink, seqOpts...)
	}

	return s, nil
}

// Start starts the playback clock. Later calls do nothing.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.stopped {
		return
	}
	s.started = true
	s.clock.Start()
	s.log.Info("Session started",
		"song", s.songID, "notes", s.sched.Total(), "lead_time", s.sched.LeadTime(),
		"difficulty", string(s.cfg.Difficulty), "policy", s.cfg.Policy.String())
}

// Tick advances the session to the clock's current time. Queued input is
// matched before miss detection, so a press in the same tick as a note's
// expiry counts as a hit.
func (s *Session) Tick() Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return Report{Time: s.summary.SessionTime, Completed: true}
	}
	if !s.started {
		return Report{}
	}

	t := s.clock.EffectiveTime()
	report := Report{Time: t}

	report.Activated = s.sched.Activate(t)
	report.Matches = s.processInput(s.queue.Drain())
	report.Missed = s.expire(t)
	s.sched.Retire(t)

	if s.seq != nil {
		s.seq.Update(t)
	}

	if s.sched.IsComplete() && (s.seq == nil || s.seq.Done()) {
		s.finish(t)
		report.Completed = true
	}
	return report
}

func (s *Session) processInput(events []input.Event) []matcher.Match {
	var matches []matcher.Match
	for _, ev := range events {
		if ev.IsNoteOff() {
			s.sound(s.monitor.NoteOff(s.cfg.MonitorChannel, ev.Pitch))
			continue
		}
		s.sound(s.monitor.NoteOn(s.cfg.MonitorChannel, ev.Pitch, ev.Velocity))

		m := s.match.OnInput(ev.Pitch, ev.Time)
		if m.Result != matcher.NoMatch {
			s.engine.OnMatch(m.Result)
		}
		matches = append(matches, m)
	}
	return matches
}

func (s *Session) expire(t float64) []*scheduler.FallingNote {
	missed := s.sched.Expire(t)
	for range missed {
		s.engine.OnMiss()
	}
	return missed
}

func (s *Session) sound(err error) {
	if err != nil {
		s.log.Warn("Monitor sink failed", "error", err)
	}
}

// Press queues a key press stamped with the current playback time. Presses
// before Start or while paused are ignored.
func (s *Session) Press(pitch, velocity int, source input.Source) error {
	return s.push(pitch, velocity, source)
}

// Release queues a key release.
func (s *Session) Release(pitch int, source input.Source) error {
	return s.push(pitch, 0, source)
}

func (s *Session) push(pitch, velocity int, source input.Source) error {
	if s.queue.IsClosed() {
		return ErrStopped
	}
	if !s.clock.IsStarted() || (s.clock.IsPaused() && velocity > 0) {
		return nil
	}
	err := s.queue.Push(input.Event{
		Pitch:    pitch,
		Velocity: velocity,
		Channel:  s.cfg.MonitorChannel,
		Time:     s.clock.EffectiveTime(),
		Source:   source,
	})
	if errors.Is(err, input.ErrQueueClosed) {
		return ErrStopped
	}
	return err
}

// Pause freezes playback and silences held notes. Repeated calls do nothing.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped || s.clock.IsPaused() {
		return
	}
	s.clock.Pause()
	if s.seq != nil {
		s.seq.Silence()
	}
	s.sound(s.monitor.AllNotesOff())
	s.log.Info("Session paused", "time", s.clock.EffectiveTime())
}

// Resume continues playback. Repeated calls do nothing.
func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped || !s.clock.IsPaused() {
		return
	}
	s.clock.Resume()
	s.log.Info("Session resumed", "time", s.clock.EffectiveTime())
}

// TogglePause pauses a running session or resumes a paused one.
func (s *Session) TogglePause() {
	if s.clock.IsPaused() {
		s.Resume()
		return
	}
	s.Pause()
}

// SetSpeed changes the playback speed; see clock.Clock.SetSpeed.
func (s *Session) SetSpeed(speed float64) {
	s.clock.SetSpeed(speed)
}

// Stop ends the session: new input is refused, input already queued is
// matched, expired notes are counted as misses, and the result is persisted.
// A session stopped before Start records nothing. Later calls return the
// same summary without persisting again.
func (s *Session) Stop() scoring.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.clock.EffectiveTime()
	s.finish(t)
	return s.summary
}

// finish must be called with mu held.
func (s *Session) finish(t float64) {
	s.stopOnce.Do(func() {
		s.queue.Close()
		if s.started {
			s.sched.Activate(t)
		}
		s.processInput(s.queue.Drain())
		s.expire(t)

		if s.seq != nil {
			s.seq.Stop()
		}
		s.sound(s.monitor.AllNotesOff())
		s.clock.Pause()

		s.stopped = true
		if s.started {
			s.summary = s.engine.CompleteSession(s.songID)
		} else {
			s.summary = s.engine.Abandon(s.songID)
		}
		s.summary.SessionTime = t
		s.log.Info("Session stopped", "song", s.songID, "time", t, "score", s.summary.Score)
	})
}

// Clock returns the shared playback clock.
func (s *Session) Clock() *clock.Clock {
	return s.clock
}

// Queue returns the input queue so that devices can feed it directly.
func (s *Session) Queue() *input.Queue {
	return s.queue
}

// Time returns the current effective playback time.
func (s *Session) Time() float64 {
	return s.clock.EffectiveTime()
}

// ActiveNotes returns the notes to draw.
func (s *Session) ActiveNotes() []*scheduler.FallingNote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched.ActiveNotes()
}

// Upcoming returns up to n events that have not spawned yet.
func (s *Session) Upcoming(n int) []score.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched.Upcoming(n)
}

// State returns the running score state.
func (s *Session) State() scoring.State {
	return s.engine.State()
}

// HighScores returns the song's high-score table.
func (s *Session) HighScores() []scoring.HighScoreRecord {
	return s.engine.HighScores(s.songID)
}

// SongID returns the high-score key of the session.
func (s *Session) SongID() string {
	return s.songID
}

// Score returns the loaded score.
func (s *Session) Score() *score.Score {
	return s.score
}

// Config returns the session configuration.
func (s *Session) Config() Config {
	return s.cfg
}

// LeadTime returns the seconds between a note's spawn and its target.
func (s *Session) LeadTime() float64 {
	return s.sched.LeadTime()
}

// Done reports whether the session has stopped.
func (s *Session) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Summary returns the final summary once the session has stopped.
func (s *Session) Summary() (scoring.Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary, s.stopped
}

// PausedFor returns the total wall time spent paused.
func (s *Session) PausedFor() time.Duration {
	return s.clock.PausedFor()
}

// Paused reports whether playback is paused.
func (s *Session) Paused() bool {
	return s.clock.IsPaused()
}

// Speed returns the playback speed.
func (s *Session) Speed() float64 {
	return s.clock.Speed()
}
