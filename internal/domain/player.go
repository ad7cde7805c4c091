package domain

// GuestPlayerID is the reserved identity for unauthenticated play. Guests can
// open sessions but their progress is never persisted. The service does not
// own player lifecycle; it only references the ids the launcher supplies.
const GuestPlayerID int64 = 0

// IsGuest reports whether a player id denotes the guest identity.
func IsGuest(playerID int64) bool {
	return playerID == GuestPlayerID
}
