package domain

import "time"

// ScoreEvent is a scoring event emitted by a running game, either over HTTP
// or through the Kafka topic. Points feed the leveling curve; they are a
// delta, not an absolute score.
type ScoreEvent struct {
	PlayerID    int64     `json:"player_id"`
	ActivityKey string    `json:"activity_key"`
	Points      int       `json:"points"`
	SessionID   int64     `json:"session_id,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
}

// ActivityEvent is one row in the fire-and-forget activity log: session
// starts, score increments, session ends, logins. Failures recording these
// must never abort gameplay.
type ActivityEvent struct {
	PlayerID  int64     `json:"player_id"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Well-known activity log actions.
const (
	ActionLogin     = "login"
	ActionLogout    = "logout"
	ActionGameStart = "game_start"
	ActionGameOver  = "game_over"
	ActionScoreGain = "score_gain"
	ActionLevelUp   = "level_up"
	ActionHighscore = "highscore_entry"
)
