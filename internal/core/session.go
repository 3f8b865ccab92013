package core

import (
	"fmt"
	"strings"
	"time"
)

type SessionStatus string

const (
	SessionPending SessionStatus = "pending"
	SessionStarted SessionStatus = "started"
	SessionStopped SessionStatus = "stopped"
)

// Bounds of the session options accepted by the dashboard.
const (
	MinSessionParticipants = 1
	MaxSessionParticipants = 200
	MinEmptyTimeout        = 60
	MaxEmptyTimeout        = 3600
)

// CanTransition reports whether a session may move from s to next.
// Pending -> Started -> Stopped; Stopped is terminal.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	switch s {
	case SessionPending:
		return next == SessionStarted || next == SessionStopped
	case SessionStarted:
		return next == SessionStopped
	default:
		return false
	}
}

func (s SessionStatus) IsTerminal() bool {
	return s == SessionStopped
}

// SessionOptions are supplied by the user when a session is started.
type SessionOptions struct {
	Name            string `json:"name"`
	MaxParticipants int    `json:"max_participants"`
	// EmptyTimeout is in seconds.
	EmptyTimeout  int  `json:"empty_timeout"`
	AutoRecording bool `json:"auto_recording"`
}

func (o SessionOptions) Validate() error {
	if o.MaxParticipants < MinSessionParticipants || o.MaxParticipants > MaxSessionParticipants {
		return ErrInvalidSessionOptions.With("validate", "max_participants",
			fmt.Errorf("must be in [%d, %d], got %d", MinSessionParticipants, MaxSessionParticipants, o.MaxParticipants))
	}
	if o.EmptyTimeout < MinEmptyTimeout || o.EmptyTimeout > MaxEmptyTimeout {
		return ErrInvalidSessionOptions.With("validate", "empty_timeout",
			fmt.Errorf("must be in [%d, %d] seconds, got %d", MinEmptyTimeout, MaxEmptyTimeout, o.EmptyTimeout))
	}
	if len(strings.TrimSpace(o.Name)) > 200 {
		return ErrInvalidSessionOptions.With("validate", "name", fmt.Errorf("longer than 200 characters"))
	}
	return nil
}

// Session is a project-scoped wrapper around the lifecycle of one media room.
type Session struct {
	ID              string        `json:"id" db:"id"`
	ProjectID       string        `json:"project_id" db:"project_id"`
	Name            string        `json:"name" db:"name"`
	LivekitRoomName string        `json:"livekit_room_name" db:"livekit_room_name"`
	Status          SessionStatus `json:"status" db:"status"`
	MaxParticipants int           `json:"max_participants" db:"max_participants"`
	EmptyTimeout    int           `json:"empty_timeout" db:"empty_timeout"`
	AutoRecording   bool          `json:"auto_recording" db:"auto_recording"`
	StartedAt       *time.Time    `json:"started_at,omitempty" db:"started_at"`
	StoppedAt       *time.Time    `json:"stopped_at,omitempty" db:"stopped_at"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
}

func (s *Session) IsActive() bool {
	return s.Status == SessionStarted
}
