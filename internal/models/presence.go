package models

import "time"

// Presence is the persisted online state of a user.
// LastSeen is nil while the user is online.
type Presence struct {
	IsOnline bool       `json:"is_online" db:"is_online"`
	LastSeen *time.Time `json:"last_seen" db:"last_seen"`
}

// OfflinePresence is reported for users with no presence row.
func OfflinePresence() Presence {
	return Presence{IsOnline: false, LastSeen: nil}
}
