package service

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/isqad/syncflow/internal/core"
	"github.com/isqad/syncflow/internal/media"
)

// DestinationResolver finds the session behind a room and where its
// recordings go.
type DestinationResolver interface {
	Resolve(ctx context.Context, roomName, trackID string) (*core.Session, *media.Destination, error)
}

// Destinations writes into the project's bucket, or under localRoot on the
// egress worker when the project has no bucket.
type Destinations struct {
	projects  core.ProjectsDBStorer
	sessions  core.SessionsDBStorer
	localRoot string
}

func NewDestinations(projects core.ProjectsDBStorer, sessions core.SessionsDBStorer, localRoot string) *Destinations {
	return &Destinations{projects: projects, sessions: sessions, localRoot: localRoot}
}

func (d *Destinations) Resolve(ctx context.Context, roomName, trackID string) (*core.Session, *media.Destination, error) {
	const op = "resolve destination"

	session, err := d.sessions.FindByRoomName(ctx, roomName)
	if err != nil {
		if errors.Is(err, core.ErrRecordNotFound) {
			return nil, nil, core.ErrSessionNotFound.With(op, roomName, nil)
		}
		return nil, nil, err
	}
	if !session.IsActive() {
		return nil, nil, core.ErrSessionNotStarted.With(op, roomName,
			fmt.Errorf("session is %s", session.Status))
	}

	project, err := d.projects.Find(ctx, session.ProjectID)
	if err != nil {
		if errors.Is(err, core.ErrRecordNotFound) {
			return nil, nil, core.ErrProjectNotFound.With(op, session.ProjectID, nil)
		}
		return nil, nil, err
	}

	// {time} is expanded by the egress worker
	file := "composite-{time}.mp4"
	if trackID != "" {
		file = trackID + "-{time}"
	}

	dest := &media.Destination{}
	if project.Storage.IsS3() {
		storage := project.Storage
		dest.S3 = &storage
		dest.Filepath = path.Join(storage.PathPrefix, project.ID, roomName, file)
	} else {
		dest.Filepath = path.Join(d.localRoot, project.ID, roomName, file)
	}

	return session, dest, nil
}
