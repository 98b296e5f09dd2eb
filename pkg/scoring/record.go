package scoring

import (
	"sort"
	"time"
)

// MaxHighScores is the number of records kept per song.
const MaxHighScores = 10

// HighScoreRecord is one completed session in the per-song table.
type HighScoreRecord struct {
	Score      int        `json:"score"`
	Accuracy   float64    `json:"accuracy"`
	MaxCombo   int        `json:"max_combo"`
	Timestamp  time.Time  `json:"timestamp"`
	SessionID  string     `json:"session_id,omitempty"`
	Difficulty Difficulty `json:"difficulty,omitempty"`
}

// Table maps a song identifier to its records, highest score first.
type Table map[string][]HighScoreRecord

// Store is the durable home of the high-score table.
type Store interface {
	Load() (Table, error)
	Save(Table) error
}

// Insert adds rec to the song's list, keeps it sorted descending by score
// (earlier records first among equal scores) and truncates it to MaxHighScores.
// It returns the 1-based rank of rec, or 0 when it did not place.
func (t Table) Insert(songID string, rec HighScoreRecord) int {
	list := append(t[songID], rec)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Score > list[j].Score
	})

	rank := 0
	for i := range list {
		if list[i] == rec {
			rank = i + 1
			break
		}
	}
	if len(list) > MaxHighScores {
		list = list[:MaxHighScores]
		if rank > MaxHighScores {
			rank = 0
		}
	}
	t[songID] = list
	return rank
}

// Normalize sorts and truncates every list. Tables read from disk may have
// been edited by hand.
func (t Table) Normalize() {
	for song, list := range t {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Score > list[j].Score
		})
		if len(list) > MaxHighScores {
			list = list[:MaxHighScores]
		}
		t[song] = list
	}
}

// Clone returns a deep copy.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for song, list := range t {
		out[song] = append([]HighScoreRecord(nil), list...)
	}
	return out
}

// Songs returns the song identifiers in sorted order.
func (t Table) Songs() []string {
	songs := make([]string, 0, len(t))
	for song := range t {
		songs = append(songs, song)
	}
	sort.Strings(songs)
	return songs
}
