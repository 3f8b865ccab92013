package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/isqad/syncflow/internal/access"
	"github.com/isqad/syncflow/internal/core"
	"github.com/isqad/syncflow/internal/eventbus"
	"github.com/isqad/syncflow/internal/media"
)

type fakeMedia struct {
	mu     sync.Mutex
	rooms  map[string]media.RoomOptions
	egress map[string]*media.JobHandle
	seq    int

	startCalls int32
	stopCalls  int32
	startDelay time.Duration
	stopDelay  time.Duration

	createRoomErr error
	deleteRoomErr error
	listEgressErr error
	startErr      error
	stopErr       map[string]error
	stopStatus    core.EgressStatus

	participants    map[string]int
	participantsErr map[string]error
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{
		rooms:           make(map[string]media.RoomOptions),
		egress:          make(map[string]*media.JobHandle),
		stopErr:         make(map[string]error),
		stopStatus:      core.EgressComplete,
		participants:    make(map[string]int),
		participantsErr: make(map[string]error),
	}
}

func (m *fakeMedia) CreateRoom(_ context.Context, opts media.RoomOptions) (*media.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createRoomErr != nil {
		return nil, m.createRoomErr
	}
	m.rooms[opts.Name] = opts
	return &media.Room{Name: opts.Name, Sid: "RM_" + opts.Name}, nil
}

func (m *fakeMedia) DeleteRoom(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deleteRoomErr != nil {
		return m.deleteRoomErr
	}
	if _, ok := m.rooms[name]; !ok {
		return &media.Error{Reason: media.NotFound, Op: "delete room", Err: fmt.Errorf("room %s", name)}
	}
	delete(m.rooms, name)
	return nil
}

func (m *fakeMedia) ListRooms(_ context.Context, names ...string) ([]*media.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rooms := []*media.Room{}
	for _, name := range names {
		if _, ok := m.rooms[name]; ok {
			rooms = append(rooms, &media.Room{Name: name})
		}
	}
	return rooms, nil
}

func (m *fakeMedia) ListParticipants(_ context.Context, room string) ([]*media.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.participantsErr[room]; err != nil {
		return nil, err
	}
	list := make([]*media.Participant, m.participants[room])
	for i := range list {
		list[i] = &media.Participant{Identity: fmt.Sprintf("user-%d", i)}
	}
	return list, nil
}

func (m *fakeMedia) IssueToken(_ context.Context, identity string, grant *access.AccessGrant) (string, error) {
	return "token:" + identity + ":" + grant.RoomName, nil
}

func (m *fakeMedia) StartTrackEgress(ctx context.Context, room, trackID string, dest media.Destination) (*media.JobHandle, error) {
	return m.start(ctx, room, trackID, dest)
}

func (m *fakeMedia) StartRoomEgress(ctx context.Context, room string, dest media.Destination) (*media.JobHandle, error) {
	return m.start(ctx, room, "", dest)
}

func (m *fakeMedia) start(ctx context.Context, room, trackID string, dest media.Destination) (*media.JobHandle, error) {
	atomic.AddInt32(&m.startCalls, 1)

	if m.startDelay > 0 {
		select {
		case <-time.After(m.startDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startErr != nil {
		return nil, m.startErr
	}

	m.seq++
	h := &media.JobHandle{
		EgressID:        fmt.Sprintf("EG_%d", m.seq),
		RoomName:        room,
		TrackID:         trackID,
		Status:          core.EgressStarting,
		StartedAt:       time.Now().UTC(),
		DestinationPath: dest.Filepath,
	}
	m.egress[h.EgressID] = h

	copied := *h
	return &copied, nil
}

func (m *fakeMedia) StopEgress(_ context.Context, egressID string) (*media.JobHandle, error) {
	atomic.AddInt32(&m.stopCalls, 1)
	time.Sleep(m.stopDelay)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.stopErr[egressID]; err != nil {
		return nil, err
	}
	h, ok := m.egress[egressID]
	if !ok {
		return nil, &media.Error{Reason: media.NotFound, Op: "stop egress", Err: fmt.Errorf("egress %s", egressID)}
	}
	h.Status = m.stopStatus

	copied := *h
	return &copied, nil
}

func (m *fakeMedia) ListEgress(_ context.Context, room string) ([]*media.JobHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listEgressErr != nil {
		return nil, m.listEgressErr
	}
	handles := []*media.JobHandle{}
	for _, h := range m.egress {
		if h.RoomName == room {
			copied := *h
			handles = append(handles, &copied)
		}
	}
	return handles, nil
}

func (m *fakeMedia) setStatus(egressID string, status core.EgressStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.egress[egressID].Status = status
}

type memProjects struct {
	mu       sync.Mutex
	projects map[string]*core.Project
}

func newMemProjects(projects ...*core.Project) *memProjects {
	m := &memProjects{projects: make(map[string]*core.Project)}
	for _, p := range projects {
		m.projects[p.ID] = p
	}
	return m
}

func (m *memProjects) Create(_ context.Context, p *core.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *p
	m.projects[p.ID] = &copied
	return nil
}

func (m *memProjects) Find(_ context.Context, id string) (*core.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, core.ErrRecordNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *memProjects) ListByOwner(_ context.Context, ownerID string) ([]*core.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := []*core.Project{}
	for _, p := range m.projects {
		if p.OwnerID == ownerID {
			list = append(list, p)
		}
	}
	return list, nil
}

func (m *memProjects) ListAll(_ context.Context) ([]*core.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := []*core.Project{}
	for _, p := range m.projects {
		list = append(list, p)
	}
	return list, nil
}

func (m *memProjects) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return core.ErrRecordNotFound
	}
	delete(m.projects, id)
	return nil
}

type memSessions struct {
	mu       sync.Mutex
	sessions map[string]*core.Session
	// history records every stored status per session id
	history   map[string][]core.SessionStatus
	createErr error
}

func newMemSessions() *memSessions {
	return &memSessions{
		sessions: make(map[string]*core.Session),
		history:  make(map[string][]core.SessionStatus),
	}
}

func (m *memSessions) Create(_ context.Context, s *core.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	copied := *s
	m.sessions[s.ID] = &copied
	m.history[s.ID] = append(m.history[s.ID], s.Status)
	return nil
}

func (m *memSessions) Find(_ context.Context, id string) (*core.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, core.ErrRecordNotFound
	}
	copied := *s
	return &copied, nil
}

func (m *memSessions) FindByRoomName(_ context.Context, roomName string) (*core.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.LivekitRoomName == roomName {
			copied := *s
			return &copied, nil
		}
	}
	return nil, core.ErrRecordNotFound
}

func (m *memSessions) ListByProject(_ context.Context, projectID string) ([]*core.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := []*core.Session{}
	for _, s := range m.sessions {
		if s.ProjectID == projectID {
			copied := *s
			list = append(list, &copied)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (m *memSessions) Transition(_ context.Context, id string, from, to core.SessionStatus, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = to
	if to == core.SessionStopped {
		s.StoppedAt = &at
	} else {
		s.StartedAt = &at
	}
	m.history[id] = append(m.history[id], to)
	return true, nil
}

func (m *memSessions) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return core.ErrRecordNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *memSessions) statusHistory(id string) []core.SessionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.SessionStatus(nil), m.history[id]...)
}

type memEgress struct {
	mu   sync.Mutex
	jobs map[string]*core.EgressJob
}

func newMemEgress() *memEgress {
	return &memEgress{jobs: make(map[string]*core.EgressJob)}
}

func (m *memEgress) Create(_ context.Context, job *core.EgressJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.RoomName == job.RoomName && j.TrackID == job.TrackID && !j.Status.IsTerminal() {
			return fmt.Errorf("duplicate active job for %s/%s", job.RoomName, job.TrackID)
		}
	}
	copied := *job
	m.jobs[job.EgressID] = &copied
	return nil
}

func (m *memEgress) Find(_ context.Context, egressID string) (*core.EgressJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[egressID]
	if !ok {
		return nil, core.ErrRecordNotFound
	}
	copied := *j
	return &copied, nil
}

func (m *memEgress) FindActive(_ context.Context, roomName, trackID string) (*core.EgressJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.RoomName == roomName && j.TrackID == trackID && !j.Status.IsTerminal() {
			copied := *j
			return &copied, nil
		}
	}
	return nil, core.ErrRecordNotFound
}

func (m *memEgress) ListByRoom(_ context.Context, roomName string) ([]*core.EgressJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := []*core.EgressJob{}
	for _, j := range m.jobs {
		if j.RoomName == roomName {
			copied := *j
			list = append(list, &copied)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].EgressID < list[j].EgressID })
	return list, nil
}

func (m *memEgress) UpdateStatus(_ context.Context, job *core.EgressJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[job.EgressID]
	if !ok {
		return core.ErrRecordNotFound
	}
	j.Status = job.Status
	j.EndedAt = job.EndedAt
	j.Error = job.Error
	j.UpdatedAt = job.UpdatedAt
	return nil
}

type fakeCleanup struct {
	mu    sync.Mutex
	rooms []string
}

func (c *fakeCleanup) ScheduleCleanup(_ context.Context, _, roomName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms = append(c.rooms, roomName)
	return nil
}

// testEnv wires the services over in-memory stores.
type testEnv struct {
	media       *fakeMedia
	projects    *memProjects
	sessions    *memSessions
	jobs        *memEgress
	events      *eventbus.Memory
	cleanup     *fakeCleanup
	registry    *Registry
	coordinator *Coordinator
	summary     *Summary
	project     *core.Project
}

func newTestEnv() *testEnv {
	project := &core.Project{ID: "P", OwnerID: "owner-1", Name: "Demo"}

	env := &testEnv{
		media:    newFakeMedia(),
		projects: newMemProjects(project),
		sessions: newMemSessions(),
		jobs:     newMemEgress(),
		events:   eventbus.NewMemory(),
		cleanup:  &fakeCleanup{},
		project:  project,
	}

	env.coordinator = NewCoordinator(CoordinatorOptions{
		Jobs:         env.jobs,
		Sessions:     env.sessions,
		Media:        env.media,
		Destinations: NewDestinations(env.projects, env.sessions, "/out"),
		Events:       env.events,
	})
	env.registry = NewRegistry(RegistryOptions{
		Projects: env.projects,
		Sessions: env.sessions,
		Media:    env.media,
		Egress:   env.coordinator,
		Events:   env.events,
		Cleanup:  env.cleanup,
	})
	env.summary = NewSummary(env.registry, env.coordinator, env.media)

	return env
}

func defaultOptions() core.SessionOptions {
	return core.SessionOptions{Name: "standup", MaxParticipants: 10, EmptyTimeout: 600}
}
