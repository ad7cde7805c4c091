package service

import (
	"context"

	"github.com/playful-minds/progression/internal/domain"
)

// Narrow store interfaces consumed by the services. The PostgreSQL
// repository implements all of them; tests substitute in-memory fakes.

// ProgressStore persists per-player-per-activity leveling state.
type ProgressStore interface {
	EnsureProgress(ctx context.Context, playerID int64, activityKey string) error
	GetProgress(ctx context.Context, playerID int64, activityKey string) (*domain.Progress, error)
	ApplyPoints(ctx context.Context, playerID int64, activityKey string, points int) (*domain.Progress, error)
	GetLevelCount(ctx context.Context, playerID int64, activityKey string) (int, error)
}

// SessionStore persists game and login session rows.
type SessionStore interface {
	StartGameSession(ctx context.Context, playerID int64, activityKey, sessionType string, level int) (*domain.GameSession, error)
	CloseGameSession(ctx context.Context, sessionID int64) (bool, error)
	AddLevelCount(ctx context.Context, playerID int64, activityKey string, delta int) error
	StartUserSession(ctx context.Context, playerID int64, sessionType string) (*domain.UserSession, error)
	TouchUserSession(ctx context.Context, sessionID int64) (bool, error)
	CloseUserSession(ctx context.Context, sessionID int64) (bool, error)
}

// BoardStore is the durable highscore board storage.
type BoardStore interface {
	LoadBoard(ctx context.Context, activityKey string) ([]domain.HighscoreEntry, error)
	RecordScore(ctx context.Context, activityKey, name string, score int64, max int) (bool, []domain.HighscoreEntry, error)
}

// BoardCache is the realtime board copy serving reads and qualification
// checks. Implementations may be absent; services treat a nil cache as a
// permanent miss.
type BoardCache interface {
	LoadBoard(ctx context.Context, activityKey string) ([]domain.HighscoreEntry, error)
	ReplaceBoard(ctx context.Context, activityKey string, entries []domain.HighscoreEntry) error
	Count(ctx context.Context, activityKey string) (int64, error)
	MinScore(ctx context.Context, activityKey string) (int64, bool, error)
}

// EventSink accepts fire-and-forget activity log events. Implementations
// must never block gameplay; failures are logged, not returned.
type EventSink interface {
	Record(event domain.ActivityEvent)
}

// BoardBroadcaster pushes board updates to live subscribers.
type BoardBroadcaster interface {
	BroadcastBoardUpdate(activityKey string, entries []domain.HighscoreEntry)
}

// ProgressBroadcaster pushes progress changes to live subscribers.
type ProgressBroadcaster interface {
	BroadcastProgressUpdate(activityKey string, progress domain.Progress)
}
