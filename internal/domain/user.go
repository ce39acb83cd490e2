// Package domain contains the core types shared by the feed engine, the store and the API.
package domain

import (
	"time"
)

// User is an anonymous or externally identified shopper. Sessions reference it optionally.
type User struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IdleFor returns how long the user has been inactive at the given instant.
// Returns 0 if LastSeenAt is in the future.
func (u *User) IdleFor(now time.Time) time.Duration {
	idle := now.Sub(u.LastSeenAt)
	if idle < 0 {
		return 0
	}
	return idle
}
