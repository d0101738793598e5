package models

import (
	"time"

	"github.com/google/uuid"
)

type FriendRequestStatus string

const (
	FriendRequestStatusPending  FriendRequestStatus = "pending"
	FriendRequestStatusAccepted FriendRequestStatus = "accepted"
	FriendRequestStatusRejected FriendRequestStatus = "rejected"
)

// FriendRequest is the pending→accepted|rejected record between two users.
// Terminal states are immutable.
type FriendRequest struct {
	ID           uuid.UUID           `json:"id"`
	FromUserID   uuid.UUID           `json:"from_user_id"`
	ToUserID     uuid.UUID           `json:"to_user_id"`
	FromUserName string              `json:"from_user_name"`
	ToUserName   string              `json:"to_user_name"`
	Status       FriendRequestStatus `json:"status"`
	CreatedAt    time.Time           `json:"created_at"`
}

// Friend is one direction of an accepted friendship. Rows always exist in
// pairs: accepting a request inserts (A→B) and (B→A) in the same
// transaction, and removal deletes both.
type Friend struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	FriendID    uuid.UUID `json:"friend_id"`
	FriendName  string    `json:"friend_name"`
	FriendEmail string    `json:"friend_email"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

const FriendStatusActive = "active"
