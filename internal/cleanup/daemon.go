package cleanup

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/isqad/syncflow/internal/eventbus"
	"github.com/isqad/syncflow/internal/service"
)

// Stopper stops every non-terminal egress job of a room.
type Stopper interface {
	StopAllActive(ctx context.Context, roomName string) (*service.StopAllResult, error)
}

type Options struct {
	Subject string
	Stopper Stopper
	Events  eventbus.Publisher
	// Backoff is multiplied by the attempt number before a retry
	Backoff time.Duration
	Timeout time.Duration
}

// Daemon consumes cleanup messages from a NATS queue group.
type Daemon struct {
	nc        *nats.Conn
	sub       *nats.Subscription
	scheduler *Scheduler

	stopper Stopper
	events  eventbus.Publisher
	subject string
	backoff time.Duration
	timeout time.Duration

	// after schedules a retry, replaced in tests
	after func(d time.Duration, f func())

	errors chan error
}

func New(nc *nats.Conn, options Options) *Daemon {
	d := newDaemon(NewScheduler(nc, options.Subject), options)
	d.nc = nc
	return d
}

func newDaemon(scheduler *Scheduler, options Options) *Daemon {
	d := &Daemon{
		scheduler: scheduler,
		stopper:   options.Stopper,
		events:    options.Events,
		subject:   options.Subject,
		backoff:   options.Backoff,
		timeout:   options.Timeout,
		errors:    make(chan error, 16),
	}
	if d.backoff == 0 {
		d.backoff = 5 * time.Second
	}
	if d.timeout == 0 {
		d.timeout = 30 * time.Second
	}
	d.after = func(wait time.Duration, f func()) { time.AfterFunc(wait, f) }
	return d
}

// Run blocks until ctx is done, then drains the connection.
func (d *Daemon) Run(ctx context.Context) error {
	log.Info().Str("service", "cleanup").Str("subject", d.subject).Msg("start cleanup daemon")

	var err error
	d.sub, err = d.nc.QueueSubscribe(d.subject, QueueName, func(msg *nats.Msg) {
		if err := d.handle(ctx, msg.Data); err != nil {
			select {
			case d.errors <- err:
			default:
			}
		}
	})
	if err != nil {
		return err
	}

	for {
		select {
		case err := <-d.errors:
			log.Error().Err(err).Str("service", "cleanup").Msg("")
		case <-ctx.Done():
			return d.Stop()
		}
	}
}

func (d *Daemon) Stop() error {
	log.Info().Str("service", "cleanup").Msg("stop cleanup daemon")

	if d.sub != nil {
		if err := d.sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Str("service", "cleanup").Msg("unsubscribe")
		}
	}
	return d.nc.Drain()
}

func (d *Daemon) handle(ctx context.Context, data []byte) error {
	m, err := ParseMessage(data)
	if err != nil {
		return fmt.Errorf("cleanup error: %v, payload: %s", err, string(data))
	}

	stopCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	result, err := d.stopper.StopAllActive(stopCtx, m.RoomName)
	if err == nil && !result.HasFailures() {
		log.Info().Str("service", "cleanup").Str("room", m.RoomName).Int("stopped", len(result.Stopped)).Msg("room egress cleaned up")
		return nil
	}

	reason := describe(result, err)
	if m.Attempt >= MaxAttempts {
		d.giveUp(ctx, m, reason)
		return nil
	}

	next := &Message{ProjectID: m.ProjectID, RoomName: m.RoomName, Attempt: m.Attempt + 1}
	d.after(d.backoff*time.Duration(m.Attempt), func() {
		if err := d.scheduler.enqueue(next); err != nil {
			d.giveUp(context.Background(), next, err.Error())
		}
	})

	log.Warn().Str("service", "cleanup").Str("room", m.RoomName).Int("attempt", m.Attempt).Str("reason", reason).Msg("cleanup retry scheduled")
	return nil
}

func (d *Daemon) giveUp(ctx context.Context, m *Message, reason string) {
	log.Error().Str("service", "cleanup").Str("room", m.RoomName).Int("attempt", m.Attempt).Str("reason", reason).Msg("giving up on egress cleanup")

	if d.events == nil {
		return
	}
	event := eventbus.Event{
		Type:      eventbus.EgressCleanupFailed,
		ProjectID: m.ProjectID,
		RoomName:  m.RoomName,
		Reason:    reason,
	}
	if err := d.events.Publish(context.WithoutCancel(ctx), event); err != nil {
		log.Error().Err(err).Str("service", "cleanup").Msg("publish cleanup failure")
	}
}

func describe(result *service.StopAllResult, err error) string {
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("%d egress jobs failed to stop", len(result.Failed))
}
