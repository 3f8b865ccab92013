package cleanup

import (
	"encoding/json"
	"errors"
)

const (
	// QueueName spreads cleanup work across daemon instances.
	QueueName = "egress-cleanup"
	// MaxAttempts bounds how many times one room is retried.
	MaxAttempts = 5
)

var errEmptyRoom = errors.New("cleanup message without room")

// Message asks a daemon to stop the remaining egress jobs of a room.
type Message struct {
	ProjectID string `json:"project_id"`
	RoomName  string `json:"room_name"`
	// Attempt starts at 1 and grows on every retry
	Attempt int `json:"attempt"`
}

func (m *Message) ToJSON() ([]byte, error) {
	if m.RoomName == "" {
		return nil, errEmptyRoom
	}
	return json.Marshal(m)
}

func ParseMessage(data []byte) (*Message, error) {
	m := &Message{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, err
	}
	if m.RoomName == "" {
		return nil, errEmptyRoom
	}
	if m.Attempt < 1 {
		m.Attempt = 1
	}
	return m, nil
}
