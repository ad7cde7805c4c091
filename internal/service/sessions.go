package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/playful-minds/progression/internal/domain"
)

// SessionService records game and login sessions. Game sessions are handed
// back as explicit handles instead of ambient process state.
type SessionService struct {
	store  SessionStore
	events EventSink
	logger *slog.Logger
}

// NewSessionService creates a new session service
func NewSessionService(store SessionStore, events EventSink, logger *slog.Logger) *SessionService {
	return &SessionService{
		store:  store,
		events: events,
		logger: logger,
	}
}

// StartGameSession opens a play session and returns its handle. Guests open
// sessions like any other player; only progress persistence treats them
// specially.
func (s *SessionService) StartGameSession(ctx context.Context, playerID int64, activityKey, sessionType string, level int) (*domain.GameSession, error) {
	if activityKey == "" {
		return nil, domain.ErrInvalidRequest
	}
	if level <= 0 {
		level = 1
	}

	session, err := s.store.StartGameSession(ctx, playerID, activityKey, sessionType, level)
	if err != nil {
		return nil, fmt.Errorf("starting game session: %w", err)
	}

	if s.events != nil {
		s.events.Record(domain.ActivityEvent{
			PlayerID: playerID,
			Action:   domain.ActionGameStart,
			Details:  fmt.Sprintf("session %d started for %s", session.ID, activityKey),
		})
	}

	return session, nil
}

// EndGameSession closes the session behind the handle. Closing a missing or
// already-closed session is a no-op, so crash-recovery and double-close
// paths are harmless. A positive levelIncrement merges into the cumulative
// level counter, a ledger separate from the leveling-curve progress record.
func (s *SessionService) EndGameSession(ctx context.Context, session *domain.GameSession, levelIncrement int) error {
	if session == nil {
		return domain.ErrInvalidRequest
	}

	closed, err := s.store.CloseGameSession(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("ending game session: %w", err)
	}
	if !closed {
		s.logger.Debug("game session already closed or unknown", "session_id", session.ID)
		return nil
	}

	if levelIncrement > 0 {
		if err := s.store.AddLevelCount(ctx, session.PlayerID, session.ActivityKey, levelIncrement); err != nil {
			return fmt.Errorf("merging level increment: %w", err)
		}
	}

	if s.events != nil {
		s.events.Record(domain.ActivityEvent{
			PlayerID: session.PlayerID,
			Action:   domain.ActionGameOver,
			Details:  fmt.Sprintf("session %d ended for %s", session.ID, session.ActivityKey),
		})
	}

	return nil
}

// StartUserSession opens a login session, independent from game sessions.
func (s *SessionService) StartUserSession(ctx context.Context, playerID int64, sessionType string) (*domain.UserSession, error) {
	session, err := s.store.StartUserSession(ctx, playerID, sessionType)
	if err != nil {
		return nil, fmt.Errorf("starting user session: %w", err)
	}

	if s.events != nil {
		s.events.Record(domain.ActivityEvent{
			PlayerID: playerID,
			Action:   domain.ActionLogin,
			Details:  fmt.Sprintf("session %d (%s)", session.ID, sessionType),
		})
	}

	return session, nil
}

// TouchUserSession bumps the last-active timestamp on an open login session.
// Unknown or closed sessions are a no-op.
func (s *SessionService) TouchUserSession(ctx context.Context, sessionID int64) error {
	if _, err := s.store.TouchUserSession(ctx, sessionID); err != nil {
		return fmt.Errorf("touching user session: %w", err)
	}
	return nil
}

// EndUserSession records the logout time. Unknown or closed sessions are a
// no-op, mirroring game session closes.
func (s *SessionService) EndUserSession(ctx context.Context, playerID, sessionID int64) error {
	closed, err := s.store.CloseUserSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("ending user session: %w", err)
	}
	if !closed {
		s.logger.Debug("user session already closed or unknown", "session_id", sessionID)
		return nil
	}

	if s.events != nil {
		s.events.Record(domain.ActivityEvent{
			PlayerID: playerID,
			Action:   domain.ActionLogout,
			Details:  fmt.Sprintf("session %d", sessionID),
		})
	}

	return nil
}
