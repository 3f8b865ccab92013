package cleanup

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Publisher is the part of *nats.Conn used to enqueue work.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Scheduler hands failed egress cleanups over to the daemon.
type Scheduler struct {
	nc      Publisher
	subject string
}

func NewScheduler(nc Publisher, subject string) *Scheduler {
	return &Scheduler{nc: nc, subject: subject}
}

func (s *Scheduler) ScheduleCleanup(_ context.Context, projectID, roomName string) error {
	return s.enqueue(&Message{ProjectID: projectID, RoomName: roomName, Attempt: 1})
}

func (s *Scheduler) enqueue(m *Message) error {
	data, err := m.ToJSON()
	if err != nil {
		return err
	}
	if err := s.nc.Publish(s.subject, data); err != nil {
		return errors.Wrapf(err, "enqueue cleanup of %s", m.RoomName)
	}

	log.Debug().Str("service", "cleanup").Str("room", m.RoomName).Int("attempt", m.Attempt).Msg("cleanup scheduled")
	return nil
}
