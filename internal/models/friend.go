package models

import "time"

// Friend request states.
const (
	FriendPending  = "pending"
	FriendAccepted = "accepted"
	FriendRejected = "rejected"
)

// FriendEdge represents a friendship relation between two users. A relation
// may be stored in one direction only.
type FriendEdge struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	FriendID  int64     `json:"friend_id" db:"friend_id"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Other returns the id on the opposite side of the edge from userID.
func (e FriendEdge) Other(userID int64) int64 {
	if e.UserID == userID {
		return e.FriendID
	}
	return e.UserID
}
