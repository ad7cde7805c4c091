package domain

import "time"

// Progress is the persisted level/points state for one (player, activity)
// pair. Points are always strictly below the threshold for the next level;
// the repository enforces this by applying the leveling policy inside the
// same transaction that writes the row.
type Progress struct {
	PlayerID    int64     `json:"player_id"`
	ActivityKey string    `json:"activity_key"`
	Level       int       `json:"level"`
	Points      int       `json:"points"`
	UpdatedAt   time.Time `json:"updated_at"`
}
