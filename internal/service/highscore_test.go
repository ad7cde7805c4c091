package service

import (
	"context"
	"errors"
	"testing"

	"github.com/playful-minds/progression/internal/domain"
)

type fakeBoardStore struct {
	boards   map[string][]domain.HighscoreEntry
	lastName string
	failWith error
}

func newFakeBoardStore() *fakeBoardStore {
	return &fakeBoardStore{boards: make(map[string][]domain.HighscoreEntry)}
}

func (f *fakeBoardStore) LoadBoard(ctx context.Context, activityKey string) ([]domain.HighscoreEntry, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.boards[activityKey], nil
}

func (f *fakeBoardStore) RecordScore(ctx context.Context, activityKey, name string, score int64, max int) (bool, []domain.HighscoreEntry, error) {
	if f.failWith != nil {
		return false, nil, f.failWith
	}
	f.lastName = name
	board := f.boards[activityKey]
	if !domain.Qualifies(board, score, max) {
		return false, board, nil
	}
	board = domain.InsertEntry(board, domain.HighscoreEntry{Name: name, Score: score}, max)
	f.boards[activityKey] = board
	return true, board, nil
}

type fakeBoardCache struct {
	boards       map[string][]domain.HighscoreEntry
	replaceCalls int
	failWith     error
}

func newFakeBoardCache() *fakeBoardCache {
	return &fakeBoardCache{boards: make(map[string][]domain.HighscoreEntry)}
}

func (f *fakeBoardCache) LoadBoard(ctx context.Context, activityKey string) ([]domain.HighscoreEntry, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.boards[activityKey], nil
}

func (f *fakeBoardCache) ReplaceBoard(ctx context.Context, activityKey string, entries []domain.HighscoreEntry) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.replaceCalls++
	f.boards[activityKey] = entries
	return nil
}

func (f *fakeBoardCache) Count(ctx context.Context, activityKey string) (int64, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}
	return int64(len(f.boards[activityKey])), nil
}

func (f *fakeBoardCache) MinScore(ctx context.Context, activityKey string) (int64, bool, error) {
	if f.failWith != nil {
		return 0, false, f.failWith
	}
	board := f.boards[activityKey]
	if len(board) == 0 {
		return 0, false, nil
	}
	min := board[0].Score
	for _, e := range board[1:] {
		if e.Score < min {
			min = e.Score
		}
	}
	return min, true, nil
}

type capturedBroadcasts struct {
	boards []string
}

func (c *capturedBroadcasts) BroadcastBoardUpdate(activityKey string, entries []domain.HighscoreEntry) {
	c.boards = append(c.boards, activityKey)
}

func fullBoard(base int64) []domain.HighscoreEntry {
	board := make([]domain.HighscoreEntry, 0, domain.BoardSize)
	for i := 0; i < domain.BoardSize; i++ {
		board = append(board, domain.HighscoreEntry{
			ID:    int64(i + 1),
			Name:  "Player",
			Score: base + int64(domain.BoardSize-i),
		})
	}
	return board
}

func TestRecordAcceptsAndRefreshesCache(t *testing.T) {
	store := newFakeBoardStore()
	cache := newFakeBoardCache()
	events := &capturedEvents{}
	hub := &capturedBroadcasts{}
	svc := NewHighscoreService(store, cache, events, testLogger())
	svc.SetHub(hub)

	accepted, message, err := svc.Record(context.Background(), "color_smash", 7, "Mia", 40)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !accepted {
		t.Fatal("score on an empty board was rejected")
	}
	if message != "Highscore updated!" {
		t.Errorf("message = %q", message)
	}
	if cache.replaceCalls != 1 {
		t.Errorf("cache refreshed %d times, want 1", cache.replaceCalls)
	}
	if len(hub.boards) != 1 || hub.boards[0] != "color_smash" {
		t.Errorf("broadcasts = %v, want one for color_smash", hub.boards)
	}
	if len(events.events) != 1 || events.events[0].Action != domain.ActionHighscore {
		t.Errorf("activity events = %+v, want one highscore entry", events.events)
	}
}

func TestRecordNormalizesBlankName(t *testing.T) {
	store := newFakeBoardStore()
	svc := NewHighscoreService(store, nil, nil, testLogger())

	if _, _, err := svc.Record(context.Background(), "color_smash", 7, "   ", 10); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if store.lastName != domain.AnonymousName {
		t.Errorf("stored name = %q, want %q", store.lastName, domain.AnonymousName)
	}
}

func TestRecordRejectsNonQualifyingScore(t *testing.T) {
	store := newFakeBoardStore()
	store.boards["color_smash"] = fullBoard(100)
	cache := newFakeBoardCache()
	hub := &capturedBroadcasts{}
	svc := NewHighscoreService(store, cache, nil, testLogger())
	svc.SetHub(hub)

	accepted, message, err := svc.Record(context.Background(), "color_smash", 7, "Mia", 5)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if accepted {
		t.Fatal("score below a full board's minimum was accepted")
	}
	if message != "Score did not qualify for highscore entry." {
		t.Errorf("message = %q", message)
	}
	if cache.replaceCalls != 0 || len(hub.boards) != 0 {
		t.Error("rejected score touched the cache or broadcast")
	}
}

func TestRecordSurfacesStorageErrors(t *testing.T) {
	store := newFakeBoardStore()
	store.failWith = domain.ErrStorageUnavailable
	svc := NewHighscoreService(store, nil, nil, testLogger())

	_, _, err := svc.Record(context.Background(), "color_smash", 7, "Mia", 10)
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Errorf("Record with failing store = %v, want ErrStorageUnavailable", err)
	}
}

func TestQualifies(t *testing.T) {
	tests := []struct {
		name  string
		board []domain.HighscoreEntry
		score int64
		want  bool
	}{
		{"zero score never qualifies", nil, 0, false},
		{"negative score never qualifies", nil, -3, false},
		{"empty board has room", nil, 1, true},
		{"full board beaten minimum", fullBoard(100), 200, true},
		{"full board equal to minimum", fullBoard(100), 101, false},
		{"full board below minimum", fullBoard(100), 50, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeBoardStore()
			if tt.board != nil {
				store.boards["color_smash"] = tt.board
			}
			svc := NewHighscoreService(store, nil, nil, testLogger())

			got, err := svc.Qualifies(context.Background(), "color_smash", tt.score)
			if err != nil {
				t.Fatalf("Qualifies: %v", err)
			}
			if got != tt.want {
				t.Errorf("Qualifies(%d) = %v, want %v", tt.score, got, tt.want)
			}
		})
	}
}

func TestQualifiesUsesCacheForFullBoard(t *testing.T) {
	store := newFakeBoardStore()
	store.failWith = domain.ErrStorageUnavailable // cache must answer alone
	cache := newFakeBoardCache()
	cache.boards["color_smash"] = fullBoard(100)
	svc := NewHighscoreService(store, cache, nil, testLogger())

	qualifies, err := svc.Qualifies(context.Background(), "color_smash", 200)
	if err != nil {
		t.Fatalf("Qualifies: %v", err)
	}
	if !qualifies {
		t.Error("score beating the cached minimum did not qualify")
	}
}

func TestQualifiesColdCacheFallsBackToStore(t *testing.T) {
	store := newFakeBoardStore()
	store.boards["color_smash"] = fullBoard(100)
	cache := newFakeBoardCache() // empty: looks cold
	svc := NewHighscoreService(store, cache, nil, testLogger())

	qualifies, err := svc.Qualifies(context.Background(), "color_smash", 50)
	if err != nil {
		t.Fatalf("Qualifies: %v", err)
	}
	if qualifies {
		t.Error("cold cache made a non-qualifying score qualify")
	}
}

func TestQualifiesCacheFailureFallsBackToStore(t *testing.T) {
	store := newFakeBoardStore()
	cache := newFakeBoardCache()
	cache.failWith = errors.New("connection refused")
	svc := NewHighscoreService(store, cache, nil, testLogger())

	qualifies, err := svc.Qualifies(context.Background(), "color_smash", 10)
	if err != nil {
		t.Fatalf("Qualifies: %v", err)
	}
	if !qualifies {
		t.Error("empty durable board should accept any positive score")
	}
}

func TestLoadPrefersCache(t *testing.T) {
	store := newFakeBoardStore()
	store.failWith = domain.ErrStorageUnavailable
	cache := newFakeBoardCache()
	cache.boards["color_smash"] = []domain.HighscoreEntry{{Name: "Mia", Score: 40}}
	svc := NewHighscoreService(store, cache, nil, testLogger())

	entries, err := svc.Load(context.Background(), "color_smash")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "Mia" {
		t.Errorf("Load = %v, want cached entry", entries)
	}
}

func TestLoadEmptyBoardReturnsPlaceholder(t *testing.T) {
	svc := NewHighscoreService(newFakeBoardStore(), newFakeBoardCache(), nil, testLogger())

	entries, err := svc.Load(context.Background(), "color_smash")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != domain.PlaceholderName || entries[0].Score != 0 {
		t.Errorf("empty board = %v, want single placeholder", entries)
	}
}

func TestLoadSurfacesStorageErrors(t *testing.T) {
	store := newFakeBoardStore()
	store.failWith = domain.ErrStorageUnavailable
	svc := NewHighscoreService(store, nil, nil, testLogger())

	_, err := svc.Load(context.Background(), "color_smash")
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Errorf("Load with failing store = %v, want ErrStorageUnavailable", err)
	}
}
