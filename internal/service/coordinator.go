package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/isqad/syncflow/internal/core"
	"github.com/isqad/syncflow/internal/eventbus"
	"github.com/isqad/syncflow/internal/media"
	"github.com/isqad/syncflow/internal/telemetry"
)

// stopConcurrency bounds parallel stop calls in StopAllActive.
const stopConcurrency = 4

// EgressFailure is one job StopAllActive could not stop.
type EgressFailure struct {
	EgressID string `json:"egress_id"`
	TrackID  string `json:"track_id,omitempty"`
	Err      error  `json:"-"`
	Message  string `json:"error"`
}

// StopAllResult never collapses failures into a single error.
type StopAllResult struct {
	Stopped []*core.EgressJob `json:"stopped"`
	Failed  []EgressFailure   `json:"failed"`
}

func (r *StopAllResult) HasFailures() bool {
	return len(r.Failed) > 0
}

type CoordinatorOptions struct {
	Jobs         core.EgressDBStorer
	Sessions     core.SessionsDBStorer
	Media        media.Service
	Locker       Locker
	Destinations DestinationResolver
	Events       eventbus.Publisher
}

// Coordinator keeps at most one non-terminal egress job per (room, track).
type Coordinator struct {
	jobs         core.EgressDBStorer
	sessions     core.SessionsDBStorer
	media        media.Service
	locker       Locker
	destinations DestinationResolver
	events       eventbus.Publisher

	now func() time.Time
}

func NewCoordinator(options CoordinatorOptions) *Coordinator {
	locker := options.Locker
	if locker == nil {
		locker = NewMemoryLocker()
	}

	return &Coordinator{
		jobs:         options.Jobs,
		sessions:     options.Sessions,
		media:        options.Media,
		locker:       locker,
		destinations: options.Destinations,
		events:       options.Events,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (c *Coordinator) StartTrackEgress(ctx context.Context, roomName, trackID string) (*core.EgressJob, error) {
	if strings.TrimSpace(trackID) == "" {
		return nil, core.ErrInvalidTrackID.With("start track egress", roomName, errors.New("track id is empty"))
	}
	return c.start(ctx, roomName, trackID)
}

func (c *Coordinator) StartRoomCompositeEgress(ctx context.Context, roomName string) (*core.EgressJob, error) {
	return c.start(ctx, roomName, "")
}

func lockKey(roomName, trackID string) string {
	return roomName + "/" + trackID
}

func stopLockKey(egressID string) string {
	return "stop:" + egressID
}

func (c *Coordinator) start(ctx context.Context, roomName, trackID string) (*core.EgressJob, error) {
	const op = "start egress"
	target := lockKey(roomName, trackID)

	if strings.TrimSpace(roomName) == "" {
		return nil, core.ErrInvalidRoomName.With(op, "", errors.New("room name is empty"))
	}

	if job, err := c.findActive(ctx, roomName, trackID); job != nil || err != nil {
		return job, err
	}

	unlock, err := c.locker.Lock(ctx, target)
	if err != nil {
		return nil, core.ErrEgressStartFailed.With(op, target, fmt.Errorf("acquire lock: %w", err))
	}
	defer unlock()

	// a concurrent caller may have started the job while we waited
	if job, err := c.findActive(ctx, roomName, trackID); job != nil || err != nil {
		return job, err
	}

	session, dest, err := c.destinations.Resolve(ctx, roomName, trackID)
	if err != nil {
		return nil, err
	}

	var handle *media.JobHandle
	if trackID == "" {
		handle, err = c.media.StartRoomEgress(ctx, roomName, *dest)
	} else {
		handle, err = c.media.StartTrackEgress(ctx, roomName, trackID, *dest)
	}
	if err != nil {
		return nil, core.ErrEgressStartFailed.With(op, target, err)
	}

	now := c.now()
	job := &core.EgressJob{
		EgressID:        handle.EgressID,
		RoomName:        roomName,
		TrackID:         trackID,
		Status:          handle.Status,
		StartedAt:       handle.StartedAt,
		EndedAt:         handle.EndedAt,
		DestinationPath: handle.DestinationPath,
		Error:           handle.Error,
		UpdatedAt:       now,
	}
	if job.Status == "" {
		job.Status = core.EgressStarting
	}
	if job.StartedAt.IsZero() {
		job.StartedAt = now
	}
	if job.DestinationPath == "" {
		job.DestinationPath = dest.Filepath
	}

	// the media server already runs the job, so the record must survive
	// a cancelled request
	persistCtx := context.WithoutCancel(ctx)
	if err := c.jobs.Create(persistCtx, job); err != nil {
		if _, stopErr := c.media.StopEgress(persistCtx, job.EgressID); stopErr != nil {
			log.Error().Err(stopErr).Str("service", "egress").Str("egressID", job.EgressID).
				Msg("can't stop unrecorded egress")
		}
		return nil, fmt.Errorf("%s %s: persist job: %w", op, target, err)
	}

	if !job.Status.IsTerminal() {
		telemetry.EgressStarted()
	}
	publish(ctx, c.events, eventbus.Event{
		Type:      eventbus.EgressStarted,
		ProjectID: session.ProjectID,
		SessionID: session.ID,
		RoomName:  roomName,
		EgressID:  job.EgressID,
		Status:    string(job.Status),
	})

	log.Info().Str("service", "egress").Str("egressID", job.EgressID).Str("room", roomName).
		Str("track", trackID).Msg("egress started")

	return job, nil
}

func (c *Coordinator) findActive(ctx context.Context, roomName, trackID string) (*core.EgressJob, error) {
	job, err := c.jobs.FindActive(ctx, roomName, trackID)
	if err != nil {
		if errors.Is(err, core.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

func (c *Coordinator) GetJob(ctx context.Context, egressID string) (*core.EgressJob, error) {
	job, err := c.jobs.Find(ctx, egressID)
	if err != nil {
		if errors.Is(err, core.ErrRecordNotFound) {
			return nil, core.ErrEgressNotFound.With("get egress", egressID, nil)
		}
		return nil, err
	}
	return job, nil
}

// StopEgress is a no-op for jobs already in a terminal state. Stops of one
// job are serialized, so the media server sees a single stop call.
func (c *Coordinator) StopEgress(ctx context.Context, egressID string) (*core.EgressJob, error) {
	const op = "stop egress"

	unlock, err := c.locker.Lock(ctx, stopLockKey(egressID))
	if err != nil {
		return nil, core.ErrEgressStopFailed.With(op, egressID, fmt.Errorf("acquire lock: %w", err))
	}
	defer unlock()

	job, err := c.jobs.Find(ctx, egressID)
	if err != nil {
		if errors.Is(err, core.ErrRecordNotFound) {
			return nil, core.ErrEgressNotFound.With(op, egressID, nil)
		}
		return nil, err
	}
	if job.Status.IsTerminal() {
		return job, nil
	}

	handle, err := c.media.StopEgress(ctx, egressID)
	switch {
	case media.IsNotFound(err):
		// the media server forgot the job, nothing is recording any more
		handle = &media.JobHandle{EgressID: egressID, Status: core.EgressAborted, Error: "egress not found on media server"}
	case err != nil:
		return nil, core.ErrEgressStopFailed.With(op, egressID, err)
	}

	status := handle.Status
	if !status.IsTerminal() {
		status = core.EgressComplete
	}
	handle.Status = status

	if err := c.apply(context.WithoutCancel(ctx), job, handle); err != nil {
		return nil, err
	}
	return job, nil
}

// StopAllActive stops every non-terminal job of the room. Failures are
// reported per job; the error is only set when the jobs can't be listed.
func (c *Coordinator) StopAllActive(ctx context.Context, roomName string) (*StopAllResult, error) {
	jobs, err := c.jobs.ListByRoom(ctx, roomName)
	if err != nil {
		return nil, err
	}

	result := &StopAllResult{
		Stopped: []*core.EgressJob{},
		Failed:  []EgressFailure{},
	}
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(stopConcurrency)

	for _, job := range jobs {
		if job.Status.IsTerminal() {
			continue
		}

		job := job
		g.Go(func() error {
			stopped, err := c.StopEgress(ctx, job.EgressID)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				telemetry.EgressStopFailed()
				result.Failed = append(result.Failed, EgressFailure{
					EgressID: job.EgressID,
					TrackID:  job.TrackID,
					Err:      err,
					Message:  err.Error(),
				})
				return nil
			}
			result.Stopped = append(result.Stopped, stopped)
			return nil
		})
	}
	_ = g.Wait()

	return result, nil
}

// ListJobsForRoom merges local jobs with the media server's view. The media
// server is authoritative for status; jobs it doesn't report yet are kept
// as recorded locally. Status changes are persisted.
func (c *Coordinator) ListJobsForRoom(ctx context.Context, roomName string) ([]*core.EgressJob, error) {
	return c.jobsForRoom(ctx, roomName, true)
}

// PeekJobsForRoom returns the same merged view as ListJobsForRoom without
// writing to the store or publishing updates.
func (c *Coordinator) PeekJobsForRoom(ctx context.Context, roomName string) ([]*core.EgressJob, error) {
	return c.jobsForRoom(ctx, roomName, false)
}

func (c *Coordinator) jobsForRoom(ctx context.Context, roomName string, persist bool) ([]*core.EgressJob, error) {
	const op = "list egress"

	jobs, err := c.jobs.ListByRoom(ctx, roomName)
	if err != nil {
		return nil, err
	}

	handles, err := c.media.ListEgress(ctx, roomName)
	if err != nil {
		return nil, core.ErrMediaService.With(op, roomName, err)
	}

	remote := make(map[string]*media.JobHandle, len(handles))
	for _, h := range handles {
		remote[h.EgressID] = h
	}

	for _, job := range jobs {
		h, ok := remote[job.EgressID]
		if !ok {
			continue
		}
		delete(remote, job.EgressID)

		if !persist {
			c.merge(job, h)
			continue
		}
		if err := c.apply(ctx, job, h); err != nil {
			log.Error().Err(err).Str("service", "egress").Str("egressID", job.EgressID).Msg("can't reconcile job status")
		}
	}

	// started outside of this service
	for _, h := range handles {
		if _, ok := remote[h.EgressID]; !ok {
			continue
		}
		jobs = append(jobs, &core.EgressJob{
			EgressID:        h.EgressID,
			RoomName:        roomName,
			TrackID:         h.TrackID,
			Status:          h.Status,
			StartedAt:       h.StartedAt,
			EndedAt:         h.EndedAt,
			DestinationPath: h.DestinationPath,
			Error:           h.Error,
		})
	}

	return jobs, nil
}

// ObserveEgress applies a status reported by the media server webhook.
// Unknown jobs are ignored.
func (c *Coordinator) ObserveEgress(ctx context.Context, handle *media.JobHandle) error {
	job, err := c.jobs.Find(ctx, handle.EgressID)
	if err != nil {
		if errors.Is(err, core.ErrRecordNotFound) {
			log.Debug().Str("service", "egress").Str("egressID", handle.EgressID).Msg("ignore unknown egress")
			return nil
		}
		return err
	}
	return c.apply(ctx, job, handle)
}

// merge moves job to the status of handle when the transition is allowed.
// Job is updated in place; it reports whether anything changed.
func (c *Coordinator) merge(job *core.EgressJob, handle *media.JobHandle) bool {
	if job.Status == handle.Status || !job.Status.CanTransition(handle.Status) {
		return false
	}

	job.Status = handle.Status
	job.UpdatedAt = c.now()
	if handle.Error != "" {
		job.Error = handle.Error
	}
	if job.Status.IsTerminal() {
		job.EndedAt = handle.EndedAt
		if job.EndedAt == nil {
			endedAt := job.UpdatedAt
			job.EndedAt = &endedAt
		}
	}
	return true
}

// apply merges handle into job and persists the change.
func (c *Coordinator) apply(ctx context.Context, job *core.EgressJob, handle *media.JobHandle) error {
	if !c.merge(job, handle) {
		return nil
	}

	if err := c.jobs.UpdateStatus(ctx, job); err != nil {
		return err
	}

	if job.Status.IsTerminal() {
		telemetry.EgressEnded()
	}
	c.publishUpdate(ctx, job)

	return nil
}

func (c *Coordinator) publishUpdate(ctx context.Context, job *core.EgressJob) {
	if c.sessions == nil {
		return
	}
	session, err := c.sessions.FindByRoomName(ctx, job.RoomName)
	if err != nil {
		log.Debug().Err(err).Str("service", "egress").Str("room", job.RoomName).Msg("no session for egress update")
		return
	}

	publish(ctx, c.events, eventbus.Event{
		Type:      eventbus.EgressUpdated,
		ProjectID: session.ProjectID,
		SessionID: session.ID,
		RoomName:  job.RoomName,
		EgressID:  job.EgressID,
		Status:    string(job.Status),
		Reason:    job.Error,
	})
}
