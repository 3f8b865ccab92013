// Package access maps a user's role and intent onto the capabilities of a
// media room token.
package access

import (
	"fmt"
	"strings"

	"github.com/isqad/syncflow/internal/core"
)

type Intent string

const (
	JoinAsViewer    Intent = "join-as-viewer"
	JoinAsPublisher Intent = "join-as-publisher"
	Moderate        Intent = "moderate"
)

func (i Intent) IsValid() bool {
	switch i {
	case JoinAsViewer, JoinAsPublisher, Moderate:
		return true
	}
	return false
}

type Capabilities struct {
	CanPublish           bool `json:"can_publish"`
	CanSubscribe         bool `json:"can_subscribe"`
	CanPublishData       bool `json:"can_publish_data"`
	CanUpdateOwnMetadata bool `json:"can_update_own_metadata"`
	RoomCreate           bool `json:"room_create"`
	RoomJoin             bool `json:"room_join"`
	RoomAdmin            bool `json:"room_admin"`
	RoomRecord           bool `json:"room_record"`
}

// AccessGrant is computed per request and never persisted.
type AccessGrant struct {
	Identity     string       `json:"identity"`
	Name         string       `json:"name,omitempty"`
	RoomName     string       `json:"room_name"`
	Capabilities Capabilities `json:"capabilities"`
}

// BuildGrant derives the capabilities of identity in room from the fixed
// intent policy. Only admins may moderate.
func BuildGrant(user *core.User, role core.UserRoleName, room string, intent Intent) (*AccessGrant, error) {
	if user == nil || user.Identity() == "" {
		return nil, core.ErrUnauthorized.With("build grant", room, fmt.Errorf("no identity"))
	}
	if strings.TrimSpace(room) == "" {
		return nil, core.ErrInvalidRoomName.With("build grant", "", fmt.Errorf("room name is empty"))
	}
	if !role.IsValid() {
		return nil, core.ErrInvalidRole.With("build grant", string(role), nil)
	}
	if !intent.IsValid() {
		return nil, core.ErrInvalidIntent.With("build grant", string(intent), nil)
	}

	var caps Capabilities
	switch intent {
	case JoinAsViewer:
		caps = Capabilities{
			CanSubscribe: true,
		}
	case JoinAsPublisher:
		caps = Capabilities{
			CanPublish:           true,
			CanSubscribe:         true,
			CanPublishData:       true,
			CanUpdateOwnMetadata: true,
			RoomCreate:           role == core.RoleAdmin,
		}
	case Moderate:
		if role != core.RoleAdmin {
			return nil, core.ErrUnauthorized.With("build grant", string(intent),
				fmt.Errorf("role %q can't moderate", role))
		}
		caps = Capabilities{
			CanPublish:           true,
			CanSubscribe:         true,
			CanPublishData:       true,
			CanUpdateOwnMetadata: true,
			RoomCreate:           true,
			RoomAdmin:            true,
			RoomRecord:           true,
		}
	}
	caps.RoomJoin = true

	return &AccessGrant{
		Identity:     user.Identity(),
		Name:         user.Name,
		RoomName:     room,
		Capabilities: caps,
	}, nil
}
