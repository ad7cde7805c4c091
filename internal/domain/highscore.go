package domain

import (
	"sort"
	"strings"
)

const (
	// BoardSize is the maximum number of entries kept per activity board.
	BoardSize = 10

	// AnonymousName replaces a blank display name on submission.
	AnonymousName = "Anonymous"

	// PlaceholderName is the display name of the sentinel entry returned for
	// an empty board. Callers treat a single {PlaceholderName, 0} entry as
	// "no data", not as a real score.
	PlaceholderName = "Default"
)

// HighscoreEntry is one row on an activity's bounded board.
type HighscoreEntry struct {
	ID    int64  `json:"id,omitempty"`
	Name  string `json:"name"`
	Score int64  `json:"score"`
}

// PlaceholderBoard is the sentinel returned when an activity has no entries.
func PlaceholderBoard() []HighscoreEntry {
	return []HighscoreEntry{{Name: PlaceholderName, Score: 0}}
}

// Qualifies reports whether a score would enter a board with the given
// entries. A zero or negative score never qualifies; otherwise the board must
// have room or the score must beat the current minimum.
func Qualifies(entries []HighscoreEntry, score int64, max int) bool {
	if score <= 0 {
		return false
	}
	if len(entries) < max {
		return true
	}
	min := entries[0].Score
	for _, e := range entries[1:] {
		if e.Score < min {
			min = e.Score
		}
	}
	return score > min
}

// InsertEntry appends an entry, re-sorts descending by score, and truncates
// to max. The input slice is not modified.
func InsertEntry(entries []HighscoreEntry, entry HighscoreEntry, max int) []HighscoreEntry {
	board := make([]HighscoreEntry, 0, len(entries)+1)
	board = append(board, entries...)
	board = append(board, entry)
	sort.SliceStable(board, func(i, j int) bool {
		return board[i].Score > board[j].Score
	})
	if len(board) > max {
		board = board[:max]
	}
	return board
}

// NormalizeName trims a submitted display name, substituting AnonymousName
// when nothing remains.
func NormalizeName(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return AnonymousName
	}
	return trimmed
}
