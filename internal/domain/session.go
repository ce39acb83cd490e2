package domain

import (
	"time"
)

// SessionStatus is the lifecycle state of a quiz-to-cart session.
type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
)

// Session holds one user's quiz-to-cart interaction lifecycle.
type Session struct {
	ID        string        `json:"session_id"`
	UserID    string        `json:"user_id,omitempty"`
	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// IsCompleted reports whether the session reached its terminal state.
func (s *Session) IsCompleted() bool {
	return s.Status == SessionCompleted
}

// CheckMutable returns ErrInvalidState when the session no longer accepts changes.
func (s *Session) CheckMutable() error {
	if s.IsCompleted() {
		return ErrInvalidState
	}
	return nil
}
