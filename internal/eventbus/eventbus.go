package eventbus

import (
	"context"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

type Channel string

const (
	ProjectEvents Channel = "events"
)

func (c Channel) buildChannel(projectID string) string {
	return string(c) + ":" + projectID
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, projectID string) (Subscription, error)
}

type Subscription interface {
	Events() <-chan *Event
	Close() error
}

// Eventbus delivers project events over redis pubsub.
type Eventbus struct {
	rdb *redis.Client
}

// RedisPubSub is factory for building Eventbus based on redis pubsub
func RedisPubSub(rdb *redis.Client) *Eventbus {
	return &Eventbus{rdb: rdb}
}

func (e *Eventbus) Publish(ctx context.Context, event Event) error {
	msg, err := event.ToJSON()
	if err != nil {
		return err
	}
	return e.rdb.Publish(ctx, ProjectEvents.buildChannel(event.ProjectID), msg).Err()
}

func (e *Eventbus) Subscribe(ctx context.Context, projectID string) (Subscription, error) {
	pubsub := e.rdb.Subscribe(ctx, ProjectEvents.buildChannel(projectID))
	// Wait until subscription is created
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		events: make(chan *Event, 64),
		done:   make(chan struct{}),
	}
	go sub.run()

	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	events chan *Event
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) run() {
	defer close(s.events)

	messages := s.pubsub.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			event, err := ParseEvent([]byte(msg.Payload))
			if err != nil {
				log.Error().Err(err).Str("service", "eventbus").Str("channel", msg.Channel).Msg("drop malformed event")
				continue
			}

			select {
			case s.events <- event:
			case <-s.done:
				return
			default:
				log.Warn().Str("service", "eventbus").Str("channel", msg.Channel).Msg("subscriber is slow, event dropped")
			}
		}
	}
}

func (s *redisSubscription) Events() <-chan *Event {
	return s.events
}

// Close stops the reader; the events channel is closed once it exits.
func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}
