// Package leveling implements the points-per-level curve and the promotion
// rule shared by every activity.
package leveling

// RequiredPoints returns how many points a player must accumulate to advance
// from the given level. Level 0 costs 10; from level 1 on, the cost rises by
// 10 for every ten levels: levels 1-10 cost 20 each, 11-20 cost 30, and so
// on. The cheap first level-up is intentional, so new players see progress
// quickly.
func RequiredPoints(level int) int {
	if level <= 0 {
		return 10
	}
	group := ((level - 1) / 10) + 1
	return 10 + group*10
}

// Apply deposits points onto a (level, points) state and performs repeated
// promotions: while the accumulated points meet or exceed the threshold for
// the current level, the threshold is spent and the level rises. The
// threshold is recomputed after every promotion since it depends on the new
// level. Always terminates because RequiredPoints is positive.
func Apply(level, points, deposit int) (newLevel, newPoints int) {
	newLevel = level
	newPoints = points + deposit
	for newPoints >= RequiredPoints(newLevel) {
		newPoints -= RequiredPoints(newLevel)
		newLevel++
	}
	return newLevel, newPoints
}
