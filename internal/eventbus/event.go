package eventbus

import (
	"encoding/json"
	"errors"
	"time"
)

type EventType string

const (
	SessionStarted      EventType = "session.started"
	SessionStopped      EventType = "session.stopped"
	SessionDeleted      EventType = "session.deleted"
	EgressStarted       EventType = "egress.started"
	EgressUpdated       EventType = "egress.updated"
	EgressCleanupFailed EventType = "egress.cleanup_failed"
)

var errEmptyProject = errors.New("event has no project id")

// Event is a lifecycle notification for one project.
type Event struct {
	Type      EventType `json:"type"`
	ProjectID string    `json:"project_id"`
	SessionID string    `json:"session_id,omitempty"`
	RoomName  string    `json:"room_name,omitempty"`
	EgressID  string    `json:"egress_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *Event) ToJSON() ([]byte, error) {
	if e.ProjectID == "" {
		return nil, errEmptyProject
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return json.Marshal(e)
}

func ParseEvent(payload []byte) (*Event, error) {
	e := &Event{}
	if err := json.Unmarshal(payload, e); err != nil {
		return nil, err
	}
	if e.ProjectID == "" {
		return nil, errEmptyProject
	}
	return e, nil
}
