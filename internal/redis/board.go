package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/playful-minds/progression/internal/config"
	"github.com/playful-minds/progression/internal/domain"
	"github.com/redis/go-redis/v9"
)

// BoardCache keeps the realtime copy of each activity's highscore board in a
// sorted set, with display names in a companion hash. PostgreSQL stays the
// durable truth; the cache serves qualification checks and board reads
// without hitting the database and is rebuilt by the sync worker.
type BoardCache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewBoardCache creates a new Redis board cache
func NewBoardCache(cfg *config.RedisConfig, logger *slog.Logger) (*BoardCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &BoardCache{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (c *BoardCache) Close() error {
	return c.client.Close()
}

// Client returns the underlying Redis client
func (c *BoardCache) Client() *redis.Client {
	return c.client
}

// boardKey returns the Redis key for an activity's board sorted set
func (c *BoardCache) boardKey(activityKey string) string {
	return fmt.Sprintf("board:%s:realtime", activityKey)
}

// namesKey returns the Redis key for an activity's entry-name hash
func (c *BoardCache) namesKey(activityKey string) string {
	return fmt.Sprintf("board:%s:names", activityKey)
}

// ReplaceBoard overwrites the cached board for an activity with the given
// entries, pipelined so readers never see a half-written board key.
func (c *BoardCache) ReplaceBoard(ctx context.Context, activityKey string, entries []domain.HighscoreEntry) error {
	key := c.boardKey(activityKey)
	names := c.namesKey(activityKey)

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.Del(ctx, names)
	for _, e := range entries {
		member := strconv.FormatInt(e.ID, 10)
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(e.Score),
			Member: member,
		})
		pipe.HSet(ctx, names, member, e.Name)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replacing board: %w", err)
	}
	return nil
}

// LoadBoard returns the cached entries for an activity, highest score first.
// A cold or empty cache returns no entries and no error; callers fall back
// to the durable store.
func (c *BoardCache) LoadBoard(ctx context.Context, activityKey string) ([]domain.HighscoreEntry, error) {
	key := c.boardKey(activityKey)
	results, err := c.client.ZRevRangeWithScores(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("loading board: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	names, err := c.client.HGetAll(ctx, c.namesKey(activityKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("loading board names: %w", err)
	}

	entries := make([]domain.HighscoreEntry, len(results))
	for i, result := range results {
		member := result.Member.(string)
		id, _ := strconv.ParseInt(member, 10, 64)
		entries[i] = domain.HighscoreEntry{
			ID:    id,
			Name:  names[member],
			Score: int64(result.Score),
		}
	}
	return entries, nil
}

// Count returns the number of cached entries for an activity.
func (c *BoardCache) Count(ctx context.Context, activityKey string) (int64, error) {
	count, err := c.client.ZCard(ctx, c.boardKey(activityKey)).Result()
	if err != nil {
		return 0, fmt.Errorf("counting board entries: %w", err)
	}
	return count, nil
}

// MinScore returns the lowest cached score for an activity. The second
// return value reports whether the board had any entries.
func (c *BoardCache) MinScore(ctx context.Context, activityKey string) (int64, bool, error) {
	results, err := c.client.ZRangeWithScores(ctx, c.boardKey(activityKey), 0, 0).Result()
	if err != nil {
		return 0, false, fmt.Errorf("getting minimum score: %w", err)
	}
	if len(results) == 0 {
		return 0, false, nil
	}
	return int64(results[0].Score), true, nil
}

// DropBoard removes an activity's cached board entirely.
func (c *BoardCache) DropBoard(ctx context.Context, activityKey string) error {
	pipe := c.client.Pipeline()
	pipe.Del(ctx, c.boardKey(activityKey))
	pipe.Del(ctx, c.namesKey(activityKey))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dropping board: %w", err)
	}
	return nil
}
