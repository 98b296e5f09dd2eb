// Package scoring keeps the score, combo and accuracy of a practice session
// and maintains the per-song high-score table.
package scoring

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zurustar/keyfall/pkg/logger"
	"github.com/zurustar/keyfall/pkg/matcher"
)

// Summary is the result of a completed session.
type Summary struct {
	SongID      string
	SessionID   string
	Difficulty  Difficulty
	Multiplier  float64
	Score       int
	Accuracy    float64
	Perfect     int
	Good        int
	Hit         int
	Missed      int
	Wrong       int
	MaxCombo    int
	CompletedAt time.Time
	SessionTime float64 // effective seconds played, filled in by the caller
	Rank        int     // 1-based position in the song's table, 0 if it did not place
	PersistErr  error   // non-nil when the table could not be saved
}

// Engine applies match results to the session state. The high-score table is
// loaded once at construction; storage failures are logged, never returned.
type Engine struct {
	mu sync.Mutex

	state       State
	difficulty  Difficulty
	multipliers Multipliers

	store Store
	table Table

	log   *slog.Logger
	now   func() time.Time
	newID func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithDifficulty selects the difficulty row for the session.
func WithDifficulty(d Difficulty) Option {
	return func(e *Engine) {
		e.difficulty = d
	}
}

// WithMultipliers replaces the multiplier table.
func WithMultipliers(m Multipliers) Option {
	return func(e *Engine) {
		e.multipliers = m
	}
}

// WithStore sets the durable high-score store. Without one the table lives
// in memory only.
func WithStore(s Store) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// WithNow replaces the timestamp source.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithSessionIDs replaces the session identifier generator.
func WithSessionIDs(gen func() string) Option {
	return func(e *Engine) {
		e.newID = gen
	}
}

// New creates an Engine. It fails only for a difficulty the multiplier table
// does not know.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		difficulty:  Medium,
		multipliers: DefaultMultipliers(),
		log:         logger.GetLogger(),
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}

	mult, err := e.multipliers.Lookup(e.difficulty)
	if err != nil {
		return nil, err
	}
	e.state.DifficultyMultiplier = mult
	e.table = e.loadTable()
	return e, nil
}

func (e *Engine) loadTable() Table {
	if e.store == nil {
		return Table{}
	}
	table, err := e.store.Load()
	if err != nil {
		e.log.Warn("Failed to load high scores, starting empty", "error", err)
		return Table{}
	}
	if table == nil {
		return Table{}
	}
	table.Normalize()
	return table
}

// OnMatch applies a classification and returns the points awarded.
// NoMatch leaves the state untouched.
func (e *Engine) OnMatch(r matcher.Result) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch r {
	case matcher.Perfect:
		e.state.Perfect++
	case matcher.Good:
		e.state.Good++
	case matcher.Hit:
		e.state.Hit++
	case matcher.Wrong:
		e.state.Wrong++
		e.state.Combo = 0
		return 0
	default:
		return 0
	}

	e.state.Combo++
	e.state.MaxCombo = max(e.state.MaxCombo, e.state.Combo)
	points := Points(r, e.state.Combo, e.state.DifficultyMultiplier)
	e.state.Score += points
	return points
}

// OnMiss records a note that expired unplayed.
func (e *Engine) OnMiss() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.Missed++
	e.state.Combo = 0
}

// State returns a snapshot of the running state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Difficulty returns the session difficulty.
func (e *Engine) Difficulty() Difficulty {
	return e.difficulty
}

// Reset clears the running state for a new session. The table is kept.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	mult := e.state.DifficultyMultiplier
	e.state = State{DifficultyMultiplier: mult}
}

// CompleteSession appends the session to the song's table and persists it
// immediately. A save failure is logged and reported in Summary.PersistErr;
// the in-memory table and state stay valid.
func (e *Engine) CompleteSession(songID string) Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	summary := e.summarize(songID)
	summary.Rank = e.table.Insert(songID, HighScoreRecord{
		Score:      summary.Score,
		Accuracy:   summary.Accuracy,
		MaxCombo:   summary.MaxCombo,
		Timestamp:  summary.CompletedAt,
		SessionID:  summary.SessionID,
		Difficulty: summary.Difficulty,
	})

	if e.store != nil {
		if err := e.store.Save(e.table.Clone()); err != nil {
			e.log.Error("Failed to save high scores", "song", songID, "error", err)
			summary.PersistErr = err
		}
	}

	e.log.Info("Session completed",
		"song", songID, "score", summary.Score, "accuracy", summary.Accuracy,
		"max_combo", summary.MaxCombo, "rank", summary.Rank)
	return summary
}

// Abandon summarizes a session that never started. Nothing is recorded and
// the summary has rank 0.
func (e *Engine) Abandon(songID string) Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.log.Info("Session abandoned", "song", songID)
	return e.summarize(songID)
}

// summarize must be called with mu held.
func (e *Engine) summarize(songID string) Summary {
	st := e.state
	return Summary{
		SongID:      songID,
		SessionID:   e.newID(),
		Difficulty:  e.difficulty,
		Multiplier:  st.DifficultyMultiplier,
		Score:       st.Score,
		Accuracy:    st.Accuracy(),
		Perfect:     st.Perfect,
		Good:        st.Good,
		Hit:         st.Hit,
		Missed:      st.Missed,
		Wrong:       st.Wrong,
		MaxCombo:    st.MaxCombo,
		CompletedAt: e.now(),
	}
}

// HighScores returns a copy of the song's records, highest first.
func (e *Engine) HighScores(songID string) []HighScoreRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]HighScoreRecord(nil), e.table[songID]...)
}

// Songs lists every song with at least one record.
func (e *Engine) Songs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.table.Songs()
}
