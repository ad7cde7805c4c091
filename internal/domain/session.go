package domain

import "time"

// GameSession is one play session for a player and activity. It is created
// open and closed exactly once; closing an unknown or already-closed session
// is a no-op. The struct doubles as the session handle returned by
// StartGameSession and threaded through subsequent calls.
type GameSession struct {
	ID          int64      `json:"session_id"`
	PlayerID    int64      `json:"player_id"`
	ActivityKey string     `json:"activity_key"`
	SessionType string     `json:"session_type"`
	Level       int        `json:"level"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

// Open reports whether the session has not been closed yet.
func (s *GameSession) Open() bool {
	return s.EndedAt == nil
}

// UserSession is a login session, with a lifecycle independent from game
// sessions. LastActive is bumped by touch calls while the launcher is in use.
type UserSession struct {
	ID          int64      `json:"session_id"`
	PlayerID    int64      `json:"player_id"`
	SessionType string     `json:"session_type"`
	LoginAt     time.Time  `json:"login_at"`
	LastActive  time.Time  `json:"last_active"`
	LogoutAt    *time.Time `json:"logout_at,omitempty"`
}
