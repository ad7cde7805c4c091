package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/playful-minds/progression/internal/config"
	"github.com/playful-minds/progression/internal/domain"
	"github.com/playful-minds/progression/internal/leveling"
)

// Repository provides PostgreSQL-based data access for progress records,
// session ledgers, highscore boards, and the activity log.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// storageError tags a failed statement so callers can tell "store down" from
// "record absent" with errors.Is.
func storageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, domain.ErrStorageUnavailable, err)
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS player_progress (
			id BIGSERIAL PRIMARY KEY,
			player_id BIGINT NOT NULL,
			activity_key VARCHAR(64) NOT NULL,
			level INT NOT NULL DEFAULT 0,
			points INT NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(player_id, activity_key)
		)`,
		`CREATE TABLE IF NOT EXISTS player_levels (
			id BIGSERIAL PRIMARY KEY,
			player_id BIGINT NOT NULL,
			activity_key VARCHAR(64) NOT NULL,
			level_count INT NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(player_id, activity_key)
		)`,
		`CREATE TABLE IF NOT EXISTS game_sessions (
			session_id BIGSERIAL PRIMARY KEY,
			player_id BIGINT NOT NULL,
			activity_key VARCHAR(64) NOT NULL,
			session_type VARCHAR(32),
			level INT NOT NULL DEFAULT 1,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS user_sessions (
			session_id BIGSERIAL PRIMARY KEY,
			player_id BIGINT NOT NULL,
			session_type VARCHAR(32),
			login_at TIMESTAMP NOT NULL,
			last_active TIMESTAMP NOT NULL,
			logout_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS highscores (
			id BIGSERIAL PRIMARY KEY,
			activity_key VARCHAR(64) NOT NULL,
			name VARCHAR(64) NOT NULL,
			score BIGINT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS activity_logs (
			log_id BIGSERIAL PRIMARY KEY,
			player_id BIGINT,
			action VARCHAR(64) NOT NULL,
			details TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_game_sessions_player ON game_sessions(player_id, activity_key)`,
		`CREATE INDEX IF NOT EXISTS idx_user_sessions_player ON user_sessions(player_id)`,
		`CREATE INDEX IF NOT EXISTS idx_highscores_board ON highscores(activity_key, score DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_logs_player ON activity_logs(player_id, created_at DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// EnsureProgress creates a level 0 / 0 points record for the pair if none
// exists. Calling it again for the same pair changes nothing.
func (r *Repository) EnsureProgress(ctx context.Context, playerID int64, activityKey string) error {
	query := `
		INSERT INTO player_progress (player_id, activity_key, level, points, updated_at)
		VALUES ($1, $2, 0, 0, $3)
		ON CONFLICT (player_id, activity_key) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, playerID, activityKey, time.Now())
	if err != nil {
		return storageError("ensuring progress record", err)
	}
	return nil
}

// GetProgress retrieves the progress record for a (player, activity) pair.
// An absent record is domain.ErrProgressNotFound, not a storage failure.
func (r *Repository) GetProgress(ctx context.Context, playerID int64, activityKey string) (*domain.Progress, error) {
	query := `
		SELECT player_id, activity_key, level, points, updated_at
		FROM player_progress
		WHERE player_id = $1 AND activity_key = $2
	`
	var p domain.Progress
	err := r.pool.QueryRow(ctx, query, playerID, activityKey).Scan(
		&p.PlayerID,
		&p.ActivityKey,
		&p.Level,
		&p.Points,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProgressNotFound
		}
		return nil, storageError("getting progress", err)
	}
	return &p, nil
}

// ApplyPoints deposits points onto a progress record and promotes the level
// as far as the thresholds allow, all inside one transaction: the row is
// created if absent, locked, recomputed through the leveling policy, and
// written back. Concurrent writers serialize on the row lock instead of
// losing updates.
func (r *Repository) ApplyPoints(ctx context.Context, playerID int64, activityKey string, points int) (*domain.Progress, error) {
	var result domain.Progress

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		now := time.Now()

		_, err := tx.Exec(ctx, `
			INSERT INTO player_progress (player_id, activity_key, level, points, updated_at)
			VALUES ($1, $2, 0, 0, $3)
			ON CONFLICT (player_id, activity_key) DO NOTHING
		`, playerID, activityKey, now)
		if err != nil {
			return err
		}

		var level, current int
		err = tx.QueryRow(ctx, `
			SELECT level, points FROM player_progress
			WHERE player_id = $1 AND activity_key = $2
			FOR UPDATE
		`, playerID, activityKey).Scan(&level, &current)
		if err != nil {
			return err
		}

		newLevel, newPoints := leveling.Apply(level, current, points)

		_, err = tx.Exec(ctx, `
			UPDATE player_progress
			SET level = $3, points = $4, updated_at = $5
			WHERE player_id = $1 AND activity_key = $2
		`, playerID, activityKey, newLevel, newPoints, now)
		if err != nil {
			return err
		}

		result = domain.Progress{
			PlayerID:    playerID,
			ActivityKey: activityKey,
			Level:       newLevel,
			Points:      newPoints,
			UpdatedAt:   now,
		}
		return nil
	})
	if err != nil {
		return nil, storageError("applying points", err)
	}
	return &result, nil
}

// GetLevelCount returns the cumulative session-close level counter for a
// pair, 0 when no row exists.
func (r *Repository) GetLevelCount(ctx context.Context, playerID int64, activityKey string) (int, error) {
	query := `
		SELECT level_count FROM player_levels
		WHERE player_id = $1 AND activity_key = $2
	`
	var count int
	err := r.pool.QueryRow(ctx, query, playerID, activityKey).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, storageError("getting level count", err)
	}
	return count, nil
}

// AddLevelCount merges a delta into the cumulative level counter, creating
// the row when absent.
func (r *Repository) AddLevelCount(ctx context.Context, playerID int64, activityKey string, delta int) error {
	query := `
		INSERT INTO player_levels (player_id, activity_key, level_count, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (player_id, activity_key)
		DO UPDATE SET level_count = player_levels.level_count + $3, updated_at = $4
	`
	_, err := r.pool.Exec(ctx, query, playerID, activityKey, delta, time.Now())
	if err != nil {
		return storageError("adding level count", err)
	}
	return nil
}

// StartGameSession inserts an open game session row and returns the handle.
func (r *Repository) StartGameSession(ctx context.Context, playerID int64, activityKey, sessionType string, level int) (*domain.GameSession, error) {
	query := `
		INSERT INTO game_sessions (player_id, activity_key, session_type, level, started_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING session_id
	`
	s := domain.GameSession{
		PlayerID:    playerID,
		ActivityKey: activityKey,
		SessionType: sessionType,
		Level:       level,
		StartedAt:   time.Now(),
	}
	err := r.pool.QueryRow(ctx, query, playerID, activityKey, sessionType, level, s.StartedAt).Scan(&s.ID)
	if err != nil {
		return nil, storageError("starting game session", err)
	}
	return &s, nil
}

// CloseGameSession sets the end timestamp on an open session. It reports
// false without error for a missing or already-closed session, so double
// closes and crash-recovery paths stay harmless.
func (r *Repository) CloseGameSession(ctx context.Context, sessionID int64) (bool, error) {
	query := `
		UPDATE game_sessions SET ended_at = $2
		WHERE session_id = $1 AND ended_at IS NULL
	`
	result, err := r.pool.Exec(ctx, query, sessionID, time.Now())
	if err != nil {
		return false, storageError("closing game session", err)
	}
	return result.RowsAffected() > 0, nil
}

// StartUserSession inserts an open login session row.
func (r *Repository) StartUserSession(ctx context.Context, playerID int64, sessionType string) (*domain.UserSession, error) {
	query := `
		INSERT INTO user_sessions (player_id, session_type, login_at, last_active)
		VALUES ($1, $2, $3, $3)
		RETURNING session_id
	`
	now := time.Now()
	s := domain.UserSession{
		PlayerID:    playerID,
		SessionType: sessionType,
		LoginAt:     now,
		LastActive:  now,
	}
	err := r.pool.QueryRow(ctx, query, playerID, sessionType, now).Scan(&s.ID)
	if err != nil {
		return nil, storageError("starting user session", err)
	}
	return &s, nil
}

// TouchUserSession bumps last_active on an open login session.
func (r *Repository) TouchUserSession(ctx context.Context, sessionID int64) (bool, error) {
	query := `
		UPDATE user_sessions SET last_active = $2
		WHERE session_id = $1 AND logout_at IS NULL
	`
	result, err := r.pool.Exec(ctx, query, sessionID, time.Now())
	if err != nil {
		return false, storageError("touching user session", err)
	}
	return result.RowsAffected() > 0, nil
}

// CloseUserSession sets the logout timestamp. No-op for missing or
// already-closed sessions, like CloseGameSession.
func (r *Repository) CloseUserSession(ctx context.Context, sessionID int64) (bool, error) {
	query := `
		UPDATE user_sessions SET logout_at = $2, last_active = $2
		WHERE session_id = $1 AND logout_at IS NULL
	`
	result, err := r.pool.Exec(ctx, query, sessionID, time.Now())
	if err != nil {
		return false, storageError("closing user session", err)
	}
	return result.RowsAffected() > 0, nil
}

// LoadBoard returns an activity's highscore entries ordered by score
// descending. An empty board is a valid, empty result.
func (r *Repository) LoadBoard(ctx context.Context, activityKey string) ([]domain.HighscoreEntry, error) {
	query := `
		SELECT id, name, score FROM highscores
		WHERE activity_key = $1
		ORDER BY score DESC, id ASC
	`
	rows, err := r.pool.Query(ctx, query, activityKey)
	if err != nil {
		return nil, storageError("loading board", err)
	}
	defer rows.Close()

	var entries []domain.HighscoreEntry
	for rows.Next() {
		var e domain.HighscoreEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.Score); err != nil {
			return nil, storageError("scanning board entry", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("loading board", err)
	}
	return entries, nil
}

// RecordScore inserts a candidate entry and trims the board to max entries
// in a single transaction. Qualification is re-checked against the locked
// board, so a stale Qualifies answer from the caller cannot oversize the
// board or displace a better score.
func (r *Repository) RecordScore(ctx context.Context, activityKey, name string, score int64, max int) (bool, []domain.HighscoreEntry, error) {
	var (
		accepted bool
		board    []domain.HighscoreEntry
	)

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, name, score FROM highscores
			WHERE activity_key = $1
			ORDER BY score DESC, id ASC
			FOR UPDATE
		`, activityKey)
		if err != nil {
			return err
		}
		var existing []domain.HighscoreEntry
		for rows.Next() {
			var e domain.HighscoreEntry
			if err := rows.Scan(&e.ID, &e.Name, &e.Score); err != nil {
				rows.Close()
				return err
			}
			existing = append(existing, e)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		if !domain.Qualifies(existing, score, max) {
			accepted = false
			board = existing
			return nil
		}

		var entry domain.HighscoreEntry
		entry.Name = name
		entry.Score = score
		err = tx.QueryRow(ctx, `
			INSERT INTO highscores (activity_key, name, score, created_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, activityKey, name, score, time.Now()).Scan(&entry.ID)
		if err != nil {
			return err
		}

		// Drop whatever fell off the truncation boundary.
		_, err = tx.Exec(ctx, `
			DELETE FROM highscores
			WHERE activity_key = $1 AND id IN (
				SELECT id FROM highscores
				WHERE activity_key = $1
				ORDER BY score DESC, id ASC
				OFFSET $2
			)
		`, activityKey, max)
		if err != nil {
			return err
		}

		accepted = true
		board = domain.InsertEntry(existing, entry, max)
		return nil
	})
	if err != nil {
		return false, nil, storageError("recording score", err)
	}
	return accepted, board, nil
}

// ListBoardActivities returns the activity keys that have at least one
// highscore entry, for cache reconciliation.
func (r *Repository) ListBoardActivities(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT activity_key FROM highscores`)
	if err != nil {
		return nil, storageError("listing board activities", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, storageError("scanning activity key", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("listing board activities", err)
	}
	return keys, nil
}

// InsertActivityEvent records one activity log row.
func (r *Repository) InsertActivityEvent(ctx context.Context, event domain.ActivityEvent) error {
	query := `
		INSERT INTO activity_logs (player_id, action, details, created_at)
		VALUES ($1, $2, $3, $4)
	`
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := r.pool.Exec(ctx, query, event.PlayerID, event.Action, event.Details, ts)
	if err != nil {
		return storageError("inserting activity event", err)
	}
	return nil
}
