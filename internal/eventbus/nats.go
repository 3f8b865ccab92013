package eventbus

import (
	"context"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const natsSubjectPrefix = "syncflow.events."

// NATSBus delivers project events over plain NATS subjects.
type NATSBus struct {
	nc *nats.Conn
}

func NewNATSBus(nc *nats.Conn) *NATSBus {
	return &NATSBus{nc: nc}
}

func natsSubject(projectID string) string {
	return natsSubjectPrefix + projectID
}

func (b *NATSBus) Publish(_ context.Context, event Event) error {
	msg, err := event.ToJSON()
	if err != nil {
		return err
	}
	return b.nc.Publish(natsSubject(event.ProjectID), msg)
}

func (b *NATSBus) Subscribe(_ context.Context, projectID string) (Subscription, error) {
	sub := &natsSubscription{events: make(chan *Event, 64)}

	var err error
	sub.sub, err = b.nc.Subscribe(natsSubject(projectID), func(msg *nats.Msg) {
		event, err := ParseEvent(msg.Data)
		if err != nil {
			log.Error().Err(err).Str("service", "eventbus").Str("subject", msg.Subject).Msg("drop malformed event")
			return
		}
		sub.deliver(event, msg.Subject)
	})
	if err != nil {
		return nil, err
	}

	return sub, nil
}

type natsSubscription struct {
	sub    *nats.Subscription
	events chan *Event

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

// deliver never blocks the nats dispatcher and never sends after Close.
func (s *natsSubscription) deliver(event *Event, subject string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	select {
	case s.events <- event:
	default:
		log.Warn().Str("service", "eventbus").Str("subject", subject).Msg("subscriber is slow, event dropped")
	}
}

func (s *natsSubscription) Events() <-chan *Event {
	return s.events
}

// Close stops delivery and closes the events channel.
func (s *natsSubscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.sub.Unsubscribe()

		s.mu.Lock()
		s.closed = true
		close(s.events)
		s.mu.Unlock()
	})
	return err
}
