package model

import (
	"encoding/json"
	"time"
)

// Follower is a remote actor following a local user. UnfollowAt is set once
// the follow has been undone.
type Follower struct {
	ID           string          `json:"id"`
	UserID       UserID          `json:"userId"`
	FederationID string          `json:"federationId"`
	Inbox        string          `json:"inbox"`
	Object       json.RawMessage `json:"object"`
	FollowAt     time.Time       `json:"followAt"`
	UnfollowAt   *time.Time      `json:"unfollowAt,omitempty"`
}
