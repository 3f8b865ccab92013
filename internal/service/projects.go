package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/livekit/protocol/utils"
	"github.com/rs/zerolog/log"

	"github.com/isqad/syncflow/internal/core"
)

type ProjectsOptions struct {
	Projects core.ProjectsDBStorer
	Sessions core.SessionsDBStorer
	APIKeys  core.APIKeysDBStorer
	Devices  core.DevicesDBStorer
	Registry *Registry
}

// Projects manages projects and the resources they own.
type Projects struct {
	projects core.ProjectsDBStorer
	sessions core.SessionsDBStorer
	apiKeys  core.APIKeysDBStorer
	devices  core.DevicesDBStorer
	registry *Registry

	now func() time.Time
}

func NewProjects(options ProjectsOptions) *Projects {
	return &Projects{
		projects: options.Projects,
		sessions: options.Sessions,
		apiKeys:  options.APIKeys,
		devices:  options.Devices,
		registry: options.Registry,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (p *Projects) CreateProject(ctx context.Context, owner *core.User, project *core.Project) (*core.Project, error) {
	if owner == nil {
		return nil, core.ErrUnauthorized.With("create project", "", errors.New("no owner"))
	}
	if err := project.Validate(); err != nil {
		return nil, err
	}

	project.ID = uuid.NewString()
	project.OwnerID = owner.ID
	project.Name = strings.TrimSpace(project.Name)
	project.CreatedAt = p.now()

	if err := p.projects.Create(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// GetProject returns the project when user may manage it.
func (p *Projects) GetProject(ctx context.Context, user *core.User, id string) (*core.Project, error) {
	const op = "get project"

	project, err := p.projects.Find(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrRecordNotFound) {
			return nil, core.ErrProjectNotFound.With(op, id, nil)
		}
		return nil, err
	}
	if !project.CanBeManagedBy(user) {
		return nil, core.ErrUnauthorized.With(op, id, nil)
	}
	return project, nil
}

// ListProjects returns every project for admins and owned ones otherwise.
func (p *Projects) ListProjects(ctx context.Context, user *core.User) ([]*core.Project, error) {
	if user == nil {
		return nil, core.ErrUnauthorized.With("list projects", "", nil)
	}
	if user.IsAdmin {
		return p.projects.ListAll(ctx)
	}
	return p.projects.ListByOwner(ctx, user.ID)
}

// DeleteProject refuses while sessions are not stopped unless force is set,
// in which case they are stopped first.
func (p *Projects) DeleteProject(ctx context.Context, id string, force bool) error {
	const op = "delete project"

	sessions, err := p.sessions.ListByProject(ctx, id)
	if err != nil {
		return err
	}

	var live []*core.Session
	for _, s := range sessions {
		if !s.Status.IsTerminal() {
			live = append(live, s)
		}
	}

	if len(live) > 0 && !force {
		return core.ErrProjectHasSessions.With(op, id, fmt.Errorf("%d sessions are not stopped", len(live)))
	}

	for _, s := range live {
		if _, err := p.registry.StopSession(ctx, s.ID); err != nil {
			return err
		}
		log.Info().Str("service", "projects").Str("project", id).Str("session", s.ID).Msg("force stopped session")
	}

	if err := p.projects.Delete(ctx, id); err != nil {
		if errors.Is(err, core.ErrRecordNotFound) {
			return core.ErrProjectNotFound.With(op, id, nil)
		}
		return err
	}
	return nil
}

// CreateAPIKey returns the only copy of the secret.
func (p *Projects) CreateAPIKey(ctx context.Context, projectID, comment string) (*core.APIKey, error) {
	key := &core.APIKey{
		Key:       utils.NewGuid(utils.APIKeyPrefix),
		Secret:    utils.RandomSecret(),
		Comment:   strings.TrimSpace(comment),
		ProjectID: projectID,
		CreatedAt: p.now(),
	}
	if err := p.apiKeys.Create(ctx, key); err != nil {
		return nil, err
	}
	return key, nil
}

func (p *Projects) ListAPIKeys(ctx context.Context, projectID string) ([]*core.APIKey, error) {
	return p.apiKeys.ListByProject(ctx, projectID)
}

func (p *Projects) DeleteAPIKey(ctx context.Context, projectID, key string) error {
	if err := p.apiKeys.Delete(ctx, projectID, key); err != nil {
		if errors.Is(err, core.ErrRecordNotFound) {
			return core.ErrAPIKeyNotFound.With("delete api key", key, nil)
		}
		return err
	}
	return nil
}

func (p *Projects) CreateDevice(ctx context.Context, projectID string, device *core.ProjectDevice) (*core.ProjectDevice, error) {
	const op = "create device"

	device.Name = strings.TrimSpace(device.Name)
	device.Kind = strings.TrimSpace(device.Kind)
	if device.Name == "" {
		return nil, core.ErrInvalidDevice.With(op, "name", errors.New("name is required"))
	}
	if device.Kind == "" {
		return nil, core.ErrInvalidDevice.With(op, "kind", errors.New("kind is required"))
	}

	device.ID = uuid.NewString()
	device.ProjectID = projectID
	device.CreatedAt = p.now()

	if err := p.devices.Create(ctx, device); err != nil {
		return nil, err
	}
	return device, nil
}

func (p *Projects) ListDevices(ctx context.Context, projectID string) ([]*core.ProjectDevice, error) {
	return p.devices.ListByProject(ctx, projectID)
}

func (p *Projects) DeleteDevice(ctx context.Context, projectID, id string) error {
	if err := p.devices.Delete(ctx, projectID, id); err != nil {
		if errors.Is(err, core.ErrRecordNotFound) {
			return core.ErrDeviceNotFound.With("delete device", id, nil)
		}
		return err
	}
	return nil
}
