package eventbus

import (
	"context"
	"sync"
)

// Memory is an in-process bus for single node deployments and tests.
type Memory struct {
	mu   sync.Mutex
	subs map[string]map[*memorySubscription]struct{}
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[string]map[*memorySubscription]struct{})}
}

func (m *Memory) Publish(_ context.Context, event Event) error {
	if _, err := event.ToJSON(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for sub := range m.subs[event.ProjectID] {
		e := event
		select {
		case sub.events <- &e:
		default:
		}
	}
	return nil
}

func (m *Memory) Subscribe(_ context.Context, projectID string) (Subscription, error) {
	sub := &memorySubscription{
		bus:       m,
		projectID: projectID,
		events:    make(chan *Event, 64),
	}

	m.mu.Lock()
	if m.subs[projectID] == nil {
		m.subs[projectID] = make(map[*memorySubscription]struct{})
	}
	m.subs[projectID][sub] = struct{}{}
	m.mu.Unlock()

	return sub, nil
}

type memorySubscription struct {
	bus       *Memory
	projectID string
	events    chan *Event
	once      sync.Once
}

func (s *memorySubscription) Events() <-chan *Event {
	return s.events
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs[s.projectID], s)
		s.bus.mu.Unlock()
		close(s.events)
	})
	return nil
}
