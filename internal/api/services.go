package api

import (
	"context"

	"github.com/isqad/syncflow/internal/core"
	"github.com/isqad/syncflow/internal/media"
	"github.com/isqad/syncflow/internal/service"
)

// ProjectService is implemented by *service.Projects.
type ProjectService interface {
	CreateProject(ctx context.Context, owner *core.User, project *core.Project) (*core.Project, error)
	GetProject(ctx context.Context, user *core.User, id string) (*core.Project, error)
	ListProjects(ctx context.Context, user *core.User) ([]*core.Project, error)
	DeleteProject(ctx context.Context, id string, force bool) error
	CreateAPIKey(ctx context.Context, projectID, comment string) (*core.APIKey, error)
	ListAPIKeys(ctx context.Context, projectID string) ([]*core.APIKey, error)
	DeleteAPIKey(ctx context.Context, projectID, key string) error
	CreateDevice(ctx context.Context, projectID string, device *core.ProjectDevice) (*core.ProjectDevice, error)
	ListDevices(ctx context.Context, projectID string) ([]*core.ProjectDevice, error)
	DeleteDevice(ctx context.Context, projectID, id string) error
}

// SessionService is implemented by *service.Registry.
type SessionService interface {
	CreateSession(ctx context.Context, projectID string, options core.SessionOptions) (*core.Session, error)
	StopSession(ctx context.Context, id string) (*core.Session, error)
	GetSession(ctx context.Context, id string) (*core.Session, error)
	ReconcileSession(ctx context.Context, id string) (*core.Session, error)
	ListSessions(ctx context.Context, projectID string) ([]*core.Session, error)
	DeleteSession(ctx context.Context, id string) error
	SessionForRoom(ctx context.Context, roomName string) (*core.Session, error)
	RoomFinished(ctx context.Context, roomName string) (*core.Session, error)
}

// EgressService is implemented by *service.Coordinator.
type EgressService interface {
	StartTrackEgress(ctx context.Context, roomName, trackID string) (*core.EgressJob, error)
	StartRoomCompositeEgress(ctx context.Context, roomName string) (*core.EgressJob, error)
	StopEgress(ctx context.Context, egressID string) (*core.EgressJob, error)
	StopAllActive(ctx context.Context, roomName string) (*service.StopAllResult, error)
	ListJobsForRoom(ctx context.Context, roomName string) ([]*core.EgressJob, error)
	GetJob(ctx context.Context, egressID string) (*core.EgressJob, error)
	ObserveEgress(ctx context.Context, handle *media.JobHandle) error
}

// Summarizer is implemented by *service.Summary.
type Summarizer interface {
	SummarizeProject(ctx context.Context, projectID string) (*service.ProjectSummary, error)
}

var (
	_ ProjectService = (*service.Projects)(nil)
	_ SessionService = (*service.Registry)(nil)
	_ EgressService  = (*service.Coordinator)(nil)
	_ Summarizer     = (*service.Summary)(nil)
)
