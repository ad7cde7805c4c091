package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/playful-minds/progression/internal/domain"
)

// HighscoreService decides whether a final
// score enters an activity's bounded board and records accepted entries.
// Qualification checks prefer the realtime cache; recording always goes
// through the durable store, which re-checks inside its own transaction.
type HighscoreService struct {
	store  BoardStore
	cache  BoardCache
	events EventSink
	hub    BoardBroadcaster
	logger *slog.Logger
}

// NewHighscoreService creates a new highscore service
func NewHighscoreService(store BoardStore, cache BoardCache, events EventSink, logger *slog.Logger) *HighscoreService {
	return &HighscoreService{
		store:  store,
		cache:  cache,
		events: events,
		logger: logger,
	}
}

// SetHub sets the broadcaster used to push board updates to subscribers
func (s *HighscoreService) SetHub(hub BoardBroadcaster) {
	s.hub = hub
}

// Qualifies reports whether the score would enter the activity's board.
// Zero never qualifies. The answer is advisory: games use it to decide
// whether to prompt for a name, and Record re-validates atomically.
func (s *HighscoreService) Qualifies(ctx context.Context, activityKey string, score int64) (bool, error) {
	if score <= 0 {
		return false, nil
	}

	if s.cache != nil {
		count, err := s.cache.Count(ctx, activityKey)
		if err != nil {
			s.logger.Warn("board cache unavailable for qualification", "activity_key", activityKey, "error", err)
		} else if count > 0 {
			if count < domain.BoardSize {
				return true, nil
			}
			min, ok, err := s.cache.MinScore(ctx, activityKey)
			if err == nil && ok {
				return score > min, nil
			}
			if err != nil {
				s.logger.Warn("board cache minimum read failed", "activity_key", activityKey, "error", err)
			}
		}
		// A count of zero may just be a cold cache; fall through.
	}

	entries, err := s.store.LoadBoard(ctx, activityKey)
	if err != nil {
		return false, fmt.Errorf("checking qualification: %w", err)
	}
	return domain.Qualifies(entries, score, domain.BoardSize), nil
}

// Record attempts to place a score on the board. The display name is
// normalized (blank becomes the anonymous placeholder), the insert and trim
// happen in one durable-store transaction, and on acceptance the cache is
// refreshed and the new board broadcast. The message mirrors what games show
// on their post-highscore screen. The submitting player only reaches the
// activity log; boards store display names, not identities.
func (s *HighscoreService) Record(ctx context.Context, activityKey string, playerID int64, name string, score int64) (bool, string, error) {
	name = domain.NormalizeName(name)

	accepted, board, err := s.store.RecordScore(ctx, activityKey, name, score, domain.BoardSize)
	if err != nil {
		return false, "", fmt.Errorf("recording highscore: %w", err)
	}
	if !accepted {
		return false, "Score did not qualify for highscore entry.", nil
	}

	if s.events != nil {
		s.events.Record(domain.ActivityEvent{
			PlayerID: playerID,
			Action:   domain.ActionHighscore,
			Details:  fmt.Sprintf("%s scored %d on %s", name, score, activityKey),
		})
	}

	if s.cache != nil {
		if err := s.cache.ReplaceBoard(ctx, activityKey, board); err != nil {
			s.logger.Warn("failed to refresh board cache", "activity_key", activityKey, "error", err)
		}
	}

	if s.hub != nil {
		s.hub.BroadcastBoardUpdate(activityKey, board)
	}

	return true, "Highscore updated!", nil
}

// Load returns the activity's board, highest score first. An activity with
// no entries yields the single placeholder sentinel, which callers render as
// "no data" rather than a real score.
func (s *HighscoreService) Load(ctx context.Context, activityKey string) ([]domain.HighscoreEntry, error) {
	if s.cache != nil {
		entries, err := s.cache.LoadBoard(ctx, activityKey)
		if err != nil {
			s.logger.Warn("board cache unavailable for load", "activity_key", activityKey, "error", err)
		} else if len(entries) > 0 {
			return entries, nil
		}
	}

	entries, err := s.store.LoadBoard(ctx, activityKey)
	if err != nil {
		return nil, fmt.Errorf("loading board: %w", err)
	}
	if len(entries) == 0 {
		return domain.PlaceholderBoard(), nil
	}
	return entries, nil
}
