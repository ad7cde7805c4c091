package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/playful-minds/progression/internal/domain"
	"github.com/playful-minds/progression/internal/leveling"
)

// ProgressionService manages per-player-per-activity progress: idempotent
// initialization, lookups, and point deposits that feed the leveling curve.
type ProgressionService struct {
	store  ProgressStore
	events EventSink
	hub    ProgressBroadcaster
	logger *slog.Logger
}

// NewProgressionService creates a new progression service
func NewProgressionService(store ProgressStore, events EventSink, logger *slog.Logger) *ProgressionService {
	return &ProgressionService{
		store:  store,
		events: events,
		logger: logger,
	}
}

// SetHub sets the broadcaster used to push progress updates to subscribers
func (s *ProgressionService) SetHub(hub ProgressBroadcaster) {
	s.hub = hub
}

// InitProgress ensures a level 0 / 0 points record exists for the pair.
// Calling it again is a no-op. Guest progress is never persisted, so the
// guest identity is a no-op too.
func (s *ProgressionService) InitProgress(ctx context.Context, playerID int64, activityKey string) error {
	if domain.IsGuest(playerID) {
		return nil
	}
	if err := s.store.EnsureProgress(ctx, playerID, activityKey); err != nil {
		return fmt.Errorf("initializing progress: %w", err)
	}
	return nil
}

// GetProgress returns the stored record for the pair. Absence is reported as
// domain.ErrProgressNotFound, which is a valid result distinct from a zeroed
// record and from storage failure. The guest identity is always absent.
func (s *ProgressionService) GetProgress(ctx context.Context, playerID int64, activityKey string) (*domain.Progress, error) {
	if domain.IsGuest(playerID) {
		return nil, domain.ErrProgressNotFound
	}
	return s.store.GetProgress(ctx, playerID, activityKey)
}

// ApplyPoints deposits points for the pair, initializing the record if
// absent and promoting the level through the policy thresholds. For guests
// the result is computed from a zero record and returned without persisting
// anything.
func (s *ProgressionService) ApplyPoints(ctx context.Context, playerID int64, activityKey string, points int) (*domain.Progress, error) {
	if points < 0 {
		return nil, domain.ErrInvalidRequest
	}

	if domain.IsGuest(playerID) {
		level, remaining := leveling.Apply(0, 0, points)
		return &domain.Progress{
			PlayerID:    playerID,
			ActivityKey: activityKey,
			Level:       level,
			Points:      remaining,
		}, nil
	}

	progress, err := s.store.ApplyPoints(ctx, playerID, activityKey, points)
	if err != nil {
		return nil, fmt.Errorf("applying points: %w", err)
	}

	if s.events != nil {
		s.events.Record(domain.ActivityEvent{
			PlayerID: playerID,
			Action:   domain.ActionScoreGain,
			Details:  fmt.Sprintf("%d points on %s, now level %d", points, activityKey, progress.Level),
		})
		// A promotion consumed part of the deposit, so the leftover is
		// strictly below it; without a promotion the leftover includes the
		// whole deposit.
		if points > 0 && progress.Points < points {
			s.events.Record(domain.ActivityEvent{
				PlayerID: playerID,
				Action:   domain.ActionLevelUp,
				Details:  fmt.Sprintf("reached level %d on %s", progress.Level, activityKey),
			})
		}
	}

	if s.hub != nil {
		s.hub.BroadcastProgressUpdate(activityKey, *progress)
	}

	return progress, nil
}

// ApplyScoreEvent validates and applies one score event from the ingestion
// path.
func (s *ProgressionService) ApplyScoreEvent(ctx context.Context, event domain.ScoreEvent) error {
	if event.ActivityKey == "" || event.Points < 0 {
		return domain.ErrInvalidRequest
	}
	_, err := s.ApplyPoints(ctx, event.PlayerID, event.ActivityKey, event.Points)
	return err
}

// ApplyScoreEventBatch applies a batch of score events, continuing past
// per-event failures so one bad event cannot stall the stream.
func (s *ProgressionService) ApplyScoreEventBatch(ctx context.Context, events []domain.ScoreEvent) error {
	for _, event := range events {
		if err := s.ApplyScoreEvent(ctx, event); err != nil {
			s.logger.Error("failed to apply score event",
				"player_id", event.PlayerID,
				"activity_key", event.ActivityKey,
				"error", err,
			)
		}
	}
	return nil
}

// LevelCount returns the cumulative session-close level counter for the
// pair. This is the secondary ledger merged by EndGameSession, not the
// leveling-curve level.
func (s *ProgressionService) LevelCount(ctx context.Context, playerID int64, activityKey string) (int, error) {
	if domain.IsGuest(playerID) {
		return 0, nil
	}
	return s.store.GetLevelCount(ctx, playerID, activityKey)
}
