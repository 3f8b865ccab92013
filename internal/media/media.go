// Package media isolates the rest of the service from the media server's
// management API. Implementations hold connection credentials only and never
// retry; retry policy belongs to callers.
package media

import (
	"context"
	"time"

	"github.com/isqad/syncflow/internal/access"
	"github.com/isqad/syncflow/internal/core"
)

type TrackKind string

const (
	TrackAudio            TrackKind = "audio"
	TrackVideo            TrackKind = "video"
	TrackScreenShare      TrackKind = "screen-share"
	TrackScreenShareAudio TrackKind = "screen-share-audio"
	TrackData             TrackKind = "data"
)

type RoomOptions struct {
	Name            string
	MaxParticipants uint32
	// EmptyTimeout is in seconds.
	EmptyTimeout uint32
	Metadata     string
}

type Room struct {
	Sid             string    `json:"sid"`
	Name            string    `json:"name"`
	NumParticipants int       `json:"num_participants"`
	ActiveRecording bool      `json:"active_recording"`
	CreatedAt       time.Time `json:"created_at"`
}

type Track struct {
	Sid    string    `json:"sid"`
	Name   string    `json:"name,omitempty"`
	Kind   TrackKind `json:"kind"`
	Source string    `json:"source"`
	Muted  bool      `json:"muted"`
}

type Participant struct {
	Sid      string    `json:"sid"`
	Identity string    `json:"identity"`
	Name     string    `json:"name,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
	Tracks   []Track   `json:"tracks"`
}

// Destination is where an egress job writes its file.
type Destination struct {
	Filepath string
	// S3 is nil for local files on the egress worker.
	S3 *core.StorageConfig
}

// JobHandle is the media server's view of one egress job.
type JobHandle struct {
	EgressID        string
	RoomName        string
	TrackID         string
	Status          core.EgressStatus
	StartedAt       time.Time
	EndedAt         *time.Time
	Error           string
	DestinationPath string
}

// Service is the narrow surface of the media server used by the registry,
// the coordinator and the summary.
type Service interface {
	CreateRoom(ctx context.Context, opts RoomOptions) (*Room, error)
	DeleteRoom(ctx context.Context, name string) error
	// ListRooms returns all rooms, or only the named ones when names are given.
	ListRooms(ctx context.Context, names ...string) ([]*Room, error)
	ListParticipants(ctx context.Context, room string) ([]*Participant, error)
	IssueToken(ctx context.Context, identity string, grant *access.AccessGrant) (string, error)
	StartTrackEgress(ctx context.Context, room, trackID string, dest Destination) (*JobHandle, error)
	StartRoomEgress(ctx context.Context, room string, dest Destination) (*JobHandle, error)
	StopEgress(ctx context.Context, egressID string) (*JobHandle, error)
	ListEgress(ctx context.Context, room string) ([]*JobHandle, error)
}
