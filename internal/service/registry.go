package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/livekit/protocol/utils"
	"github.com/rs/zerolog/log"

	"github.com/isqad/syncflow/internal/core"
	"github.com/isqad/syncflow/internal/eventbus"
	"github.com/isqad/syncflow/internal/media"
	"github.com/isqad/syncflow/internal/telemetry"
)

// EgressController is the part of the Coordinator the Registry drives.
type EgressController interface {
	StartRoomCompositeEgress(ctx context.Context, roomName string) (*core.EgressJob, error)
	StopAllActive(ctx context.Context, roomName string) (*StopAllResult, error)
}

// CleanupScheduler retries egress cleanup out of band.
type CleanupScheduler interface {
	ScheduleCleanup(ctx context.Context, projectID, roomName string) error
}

type RegistryOptions struct {
	Projects core.ProjectsDBStorer
	Sessions core.SessionsDBStorer
	Media    media.Service
	Egress   EgressController
	Events   eventbus.Publisher
	Cleanup  CleanupScheduler
}

// Registry owns sessions and the media rooms behind them.
type Registry struct {
	projects core.ProjectsDBStorer
	sessions core.SessionsDBStorer
	media    media.Service
	egress   EgressController
	events   eventbus.Publisher
	cleanup  CleanupScheduler

	now func() time.Time
}

func NewRegistry(options RegistryOptions) *Registry {
	return &Registry{
		projects: options.Projects,
		sessions: options.Sessions,
		media:    options.Media,
		egress:   options.Egress,
		events:   options.Events,
		cleanup:  options.Cleanup,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// roomName is unique per session; rooms are never reused.
func roomName(projectID string) string {
	return utils.NewGuid(projectID + "_")
}

func (r *Registry) CreateSession(ctx context.Context, projectID string, options core.SessionOptions) (*core.Session, error) {
	const op = "create session"

	if err := options.Validate(); err != nil {
		return nil, err
	}

	if _, err := r.project(ctx, op, projectID); err != nil {
		return nil, err
	}

	now := r.now()
	session := &core.Session{
		ID:              uuid.NewString(),
		ProjectID:       projectID,
		Name:            options.Name,
		LivekitRoomName: roomName(projectID),
		Status:          core.SessionPending,
		MaxParticipants: options.MaxParticipants,
		EmptyTimeout:    options.EmptyTimeout,
		AutoRecording:   options.AutoRecording,
		CreatedAt:       now,
	}

	_, err := r.media.CreateRoom(ctx, media.RoomOptions{
		Name:            session.LivekitRoomName,
		MaxParticipants: uint32(options.MaxParticipants),
		EmptyTimeout:    uint32(options.EmptyTimeout),
	})
	if err != nil {
		return nil, core.ErrRoomCreationFailed.With(op, session.LivekitRoomName, err)
	}

	persistCtx := context.WithoutCancel(ctx)
	if err := r.persistStarted(persistCtx, session); err != nil {
		// no session record means nobody would ever close the room
		if delErr := r.media.DeleteRoom(persistCtx, session.LivekitRoomName); delErr != nil {
			log.Error().Err(delErr).Str("service", "registry").Str("room", session.LivekitRoomName).
				Msg("can't delete room of unsaved session")
		}
		return nil, err
	}

	telemetry.SessionStarted()
	r.publish(ctx, eventbus.SessionStarted, session)

	log.Info().Str("service", "registry").Str("session", session.ID).Str("room", session.LivekitRoomName).
		Msg("session started")

	if session.AutoRecording && r.egress != nil {
		if _, err := r.egress.StartRoomCompositeEgress(ctx, session.LivekitRoomName); err != nil {
			log.Error().Err(err).Str("service", "registry").Str("session", session.ID).
				Msg("can't start automatic recording")
		}
	}

	return session, nil
}

// persistStarted stores the session as started in one insert, so a failed
// write leaves no record behind.
func (r *Registry) persistStarted(ctx context.Context, session *core.Session) error {
	startedAt := r.now()

	started := *session
	started.Status = core.SessionStarted
	started.StartedAt = &startedAt

	if err := r.sessions.Create(ctx, &started); err != nil {
		return core.ErrSessionPersistFailed.With("create session", session.LivekitRoomName, err)
	}

	*session = started
	return nil
}

// StopSession deletes the room, marks the session stopped and then cleans up
// its recordings. Cleanup failures don't undo the stop.
func (r *Registry) StopSession(ctx context.Context, id string) (*core.Session, error) {
	const op = "stop session"

	session, err := r.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return session, nil
	}

	if err := r.media.DeleteRoom(ctx, session.LivekitRoomName); err != nil && !media.IsNotFound(err) {
		return nil, core.ErrRoomDeletionFailed.With(op, session.LivekitRoomName, err)
	}

	return r.finish(context.WithoutCancel(ctx), session)
}

// RoomFinished handles the media server closing a room on its own, after
// emptyTimeout expired.
func (r *Registry) RoomFinished(ctx context.Context, roomName string) (*core.Session, error) {
	session, err := r.sessions.FindByRoomName(ctx, roomName)
	if err != nil {
		if errors.Is(err, core.ErrRecordNotFound) {
			return nil, core.ErrSessionNotFound.With("room finished", roomName, nil)
		}
		return nil, err
	}
	if session.Status.IsTerminal() {
		return session, nil
	}

	return r.finish(ctx, session)
}

// ReconcileSession checks a started session against the media server and
// stops it when its room is gone.
func (r *Registry) ReconcileSession(ctx context.Context, id string) (*core.Session, error) {
	session, err := r.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !session.IsActive() {
		return session, nil
	}

	rooms, err := r.media.ListRooms(ctx, session.LivekitRoomName)
	if err != nil {
		return nil, core.ErrMediaService.With("reconcile session", session.LivekitRoomName, err)
	}
	for _, room := range rooms {
		if room.Name == session.LivekitRoomName {
			return session, nil
		}
	}

	log.Info().Str("service", "registry").Str("session", session.ID).Msg("room expired, stopping session")
	return r.finish(ctx, session)
}

func (r *Registry) finish(ctx context.Context, session *core.Session) (*core.Session, error) {
	from := session.Status
	stoppedAt := r.now()

	ok, err := r.sessions.Transition(ctx, session.ID, from, core.SessionStopped, stoppedAt)
	if err != nil {
		return nil, err
	}
	if !ok {
		// someone else moved it first; report what is stored now
		current, err := r.GetSession(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		if current.Status.IsTerminal() {
			return current, nil
		}
		return r.finish(ctx, current)
	}

	session.Status = core.SessionStopped
	session.StoppedAt = &stoppedAt
	if from == core.SessionStarted {
		telemetry.SessionStopped()
	}
	r.publish(ctx, eventbus.SessionStopped, session)

	r.cleanupEgress(ctx, session)

	return session, nil
}

func (r *Registry) cleanupEgress(ctx context.Context, session *core.Session) {
	if r.egress == nil {
		return
	}

	result, err := r.egress.StopAllActive(ctx, session.LivekitRoomName)
	if err == nil && !result.HasFailures() {
		return
	}

	var reason string
	if err != nil {
		reason = err.Error()
	} else {
		reason = fmt.Sprintf("%d egress jobs failed to stop", len(result.Failed))
	}
	log.Warn().Str("service", "registry").Str("session", session.ID).Str("reason", reason).
		Msg("egress cleanup incomplete")

	ev := eventbus.Event{
		Type:      eventbus.EgressCleanupFailed,
		ProjectID: session.ProjectID,
		SessionID: session.ID,
		RoomName:  session.LivekitRoomName,
		Reason:    reason,
	}
	publish(ctx, r.events, ev)

	if r.cleanup != nil {
		if err := r.cleanup.ScheduleCleanup(ctx, session.ProjectID, session.LivekitRoomName); err != nil {
			log.Error().Err(err).Str("service", "registry").Str("room", session.LivekitRoomName).
				Msg("can't schedule egress cleanup")
		}
	}
}

func (r *Registry) GetSession(ctx context.Context, id string) (*core.Session, error) {
	session, err := r.sessions.Find(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrRecordNotFound) {
			return nil, core.ErrSessionNotFound.With("get session", id, nil)
		}
		return nil, err
	}
	return session, nil
}

// SessionForRoom finds the session that owns a media room.
func (r *Registry) SessionForRoom(ctx context.Context, roomName string) (*core.Session, error) {
	session, err := r.sessions.FindByRoomName(ctx, roomName)
	if err != nil {
		if errors.Is(err, core.ErrRecordNotFound) {
			return nil, core.ErrSessionNotFound.With("session for room", roomName, nil)
		}
		return nil, err
	}
	return session, nil
}

func (r *Registry) ListSessions(ctx context.Context, projectID string) ([]*core.Session, error) {
	if _, err := r.project(ctx, "list sessions", projectID); err != nil {
		return nil, err
	}
	return r.sessions.ListByProject(ctx, projectID)
}

// DeleteSession only removes stopped sessions.
func (r *Registry) DeleteSession(ctx context.Context, id string) error {
	const op = "delete session"

	session, err := r.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if session.Status != core.SessionStopped {
		return core.ErrSessionStillActive.With(op, id, fmt.Errorf("session is %s", session.Status))
	}

	if err := r.sessions.Delete(ctx, id); err != nil {
		if errors.Is(err, core.ErrRecordNotFound) {
			return core.ErrSessionNotFound.With(op, id, nil)
		}
		return err
	}

	r.publish(ctx, eventbus.SessionDeleted, session)
	return nil
}

func (r *Registry) project(ctx context.Context, op, id string) (*core.Project, error) {
	project, err := r.projects.Find(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrRecordNotFound) {
			return nil, core.ErrProjectNotFound.With(op, id, nil)
		}
		return nil, err
	}
	return project, nil
}

func (r *Registry) publish(ctx context.Context, t eventbus.EventType, session *core.Session) {
	publish(ctx, r.events, eventbus.Event{
		Type:      t,
		ProjectID: session.ProjectID,
		SessionID: session.ID,
		RoomName:  session.LivekitRoomName,
		Status:    string(session.Status),
	})
}
