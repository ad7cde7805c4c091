package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/playful-minds/progression/internal/domain"
)

type fakeSessionStore struct {
	nextID       int64
	gameSessions map[int64]*domain.GameSession
	userSessions map[int64]*domain.UserSession
	levelCounts  map[progressKey]int
	failWith     error
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		gameSessions: make(map[int64]*domain.GameSession),
		userSessions: make(map[int64]*domain.UserSession),
		levelCounts:  make(map[progressKey]int),
	}
}

func (f *fakeSessionStore) StartGameSession(ctx context.Context, playerID int64, activityKey, sessionType string, level int) (*domain.GameSession, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.nextID++
	session := &domain.GameSession{
		ID:          f.nextID,
		PlayerID:    playerID,
		ActivityKey: activityKey,
		SessionType: sessionType,
		Level:       level,
		StartedAt:   time.Now(),
	}
	f.gameSessions[session.ID] = session
	copied := *session
	return &copied, nil
}

func (f *fakeSessionStore) CloseGameSession(ctx context.Context, sessionID int64) (bool, error) {
	if f.failWith != nil {
		return false, f.failWith
	}
	session, ok := f.gameSessions[sessionID]
	if !ok || session.EndedAt != nil {
		return false, nil
	}
	now := time.Now()
	session.EndedAt = &now
	return true, nil
}

func (f *fakeSessionStore) AddLevelCount(ctx context.Context, playerID int64, activityKey string, delta int) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.levelCounts[progressKey{playerID, activityKey}] += delta
	return nil
}

func (f *fakeSessionStore) StartUserSession(ctx context.Context, playerID int64, sessionType string) (*domain.UserSession, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.nextID++
	now := time.Now()
	session := &domain.UserSession{
		ID:          f.nextID,
		PlayerID:    playerID,
		SessionType: sessionType,
		LoginAt:     now,
		LastActive:  now,
	}
	f.userSessions[session.ID] = session
	copied := *session
	return &copied, nil
}

func (f *fakeSessionStore) TouchUserSession(ctx context.Context, sessionID int64) (bool, error) {
	if f.failWith != nil {
		return false, f.failWith
	}
	session, ok := f.userSessions[sessionID]
	if !ok || session.LogoutAt != nil {
		return false, nil
	}
	session.LastActive = time.Now()
	return true, nil
}

func (f *fakeSessionStore) CloseUserSession(ctx context.Context, sessionID int64) (bool, error) {
	if f.failWith != nil {
		return false, f.failWith
	}
	session, ok := f.userSessions[sessionID]
	if !ok || session.LogoutAt != nil {
		return false, nil
	}
	now := time.Now()
	session.LogoutAt = &now
	return true, nil
}

func TestStartGameSessionReturnsOpenHandle(t *testing.T) {
	store := newFakeSessionStore()
	events := &capturedEvents{}
	svc := NewSessionService(store, events, testLogger())

	session, err := svc.StartGameSession(context.Background(), 7, "color_smash", "game", 3)
	if err != nil {
		t.Fatalf("StartGameSession: %v", err)
	}
	if session.ID == 0 {
		t.Error("session handle has no id")
	}
	if !session.Open() {
		t.Error("fresh session is not open")
	}
	if session.Level != 3 {
		t.Errorf("session level = %d, want 3", session.Level)
	}
	if len(events.events) != 1 || events.events[0].Action != domain.ActionGameStart {
		t.Errorf("expected one game_start event, got %+v", events.events)
	}
}

func TestStartGameSessionDefaultsLevel(t *testing.T) {
	svc := NewSessionService(newFakeSessionStore(), nil, testLogger())

	session, err := svc.StartGameSession(context.Background(), 7, "color_smash", "game", 0)
	if err != nil {
		t.Fatalf("StartGameSession: %v", err)
	}
	if session.Level != 1 {
		t.Errorf("session level = %d, want default 1", session.Level)
	}
}

func TestStartGameSessionRequiresActivity(t *testing.T) {
	svc := NewSessionService(newFakeSessionStore(), nil, testLogger())

	_, err := svc.StartGameSession(context.Background(), 7, "", "game", 1)
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("StartGameSession with empty activity = %v, want ErrInvalidRequest", err)
	}
}

func TestEndGameSessionDoubleCloseIsNoOp(t *testing.T) {
	store := newFakeSessionStore()
	svc := NewSessionService(store, nil, testLogger())
	ctx := context.Background()

	session, err := svc.StartGameSession(ctx, 7, "color_smash", "game", 1)
	if err != nil {
		t.Fatalf("StartGameSession: %v", err)
	}

	if err := svc.EndGameSession(ctx, session, 2); err != nil {
		t.Fatalf("first EndGameSession: %v", err)
	}
	if err := svc.EndGameSession(ctx, session, 2); err != nil {
		t.Fatalf("second EndGameSession: %v", err)
	}

	// The increment merges exactly once.
	if got := store.levelCounts[progressKey{7, "color_smash"}]; got != 2 {
		t.Errorf("level count = %d, want 2", got)
	}
}

func TestEndGameSessionUnknownIsNoOp(t *testing.T) {
	svc := NewSessionService(newFakeSessionStore(), nil, testLogger())

	err := svc.EndGameSession(context.Background(), &domain.GameSession{ID: 999, PlayerID: 7, ActivityKey: "color_smash"}, 1)
	if err != nil {
		t.Errorf("EndGameSession on unknown session = %v, want nil", err)
	}
}

func TestEndGameSessionNilHandle(t *testing.T) {
	svc := NewSessionService(newFakeSessionStore(), nil, testLogger())

	err := svc.EndGameSession(context.Background(), nil, 0)
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("EndGameSession(nil) = %v, want ErrInvalidRequest", err)
	}
}

func TestEndGameSessionMergesLevelIncrements(t *testing.T) {
	store := newFakeSessionStore()
	svc := NewSessionService(store, nil, testLogger())
	ctx := context.Background()

	for _, increment := range []int{2, 3, 0} {
		session, err := svc.StartGameSession(ctx, 7, "color_smash", "game", 1)
		if err != nil {
			t.Fatalf("StartGameSession: %v", err)
		}
		if err := svc.EndGameSession(ctx, session, increment); err != nil {
			t.Fatalf("EndGameSession(%d): %v", increment, err)
		}
	}

	if got := store.levelCounts[progressKey{7, "color_smash"}]; got != 5 {
		t.Errorf("cumulative level count = %d, want 5", got)
	}
}

func TestGuestGameSessionsWork(t *testing.T) {
	store := newFakeSessionStore()
	svc := NewSessionService(store, nil, testLogger())
	ctx := context.Background()

	session, err := svc.StartGameSession(ctx, domain.GuestPlayerID, "color_smash", "game", 1)
	if err != nil {
		t.Fatalf("StartGameSession for guest: %v", err)
	}
	if err := svc.EndGameSession(ctx, session, 1); err != nil {
		t.Fatalf("EndGameSession for guest: %v", err)
	}
	if len(store.gameSessions) != 1 {
		t.Error("guest session was not persisted")
	}
}

func TestUserSessionLifecycle(t *testing.T) {
	store := newFakeSessionStore()
	events := &capturedEvents{}
	svc := NewSessionService(store, events, testLogger())
	ctx := context.Background()

	session, err := svc.StartUserSession(ctx, 7, "login")
	if err != nil {
		t.Fatalf("StartUserSession: %v", err)
	}

	if err := svc.TouchUserSession(ctx, session.ID); err != nil {
		t.Fatalf("TouchUserSession: %v", err)
	}

	if err := svc.EndUserSession(ctx, 7, session.ID); err != nil {
		t.Fatalf("EndUserSession: %v", err)
	}
	if err := svc.EndUserSession(ctx, 7, session.ID); err != nil {
		t.Fatalf("repeat EndUserSession: %v", err)
	}

	stored := store.userSessions[session.ID]
	if stored.LogoutAt == nil {
		t.Error("logout time was not recorded")
	}

	// Login once, logout once; the repeat close records nothing.
	var logins, logouts int
	for _, event := range events.events {
		switch event.Action {
		case domain.ActionLogin:
			logins++
		case domain.ActionLogout:
			logouts++
		}
	}
	if logins != 1 || logouts != 1 {
		t.Errorf("got %d logins and %d logouts, want 1 and 1", logins, logouts)
	}
}

func TestTouchUnknownUserSessionIsNoOp(t *testing.T) {
	svc := NewSessionService(newFakeSessionStore(), nil, testLogger())

	if err := svc.TouchUserSession(context.Background(), 999); err != nil {
		t.Errorf("TouchUserSession on unknown session = %v, want nil", err)
	}
}
