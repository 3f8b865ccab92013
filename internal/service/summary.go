package service

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/isqad/syncflow/internal/core"
	"github.com/isqad/syncflow/internal/media"
)

type ProjectSummary struct {
	NumSessions       int `json:"num_sessions"`
	NumActiveSessions int `json:"num_active_sessions"`
	NumParticipants   int `json:"num_participants"`
	// NumRecordings counts the non-terminal egress jobs of active sessions.
	NumRecordings int `json:"num_recordings"`
}

// JobLister is the read-only side of the Coordinator.
type JobLister interface {
	PeekJobsForRoom(ctx context.Context, roomName string) ([]*core.EgressJob, error)
}

// Summary derives dashboard counters. It never mutates state, and a media
// server failure for one session only zeroes that session's numbers.
type Summary struct {
	registry *Registry
	jobs     JobLister
	media    media.Service
}

func NewSummary(registry *Registry, jobs JobLister, mediaService media.Service) *Summary {
	return &Summary{registry: registry, jobs: jobs, media: mediaService}
}

func (s *Summary) SummarizeProject(ctx context.Context, projectID string) (*ProjectSummary, error) {
	sessions, err := s.registry.ListSessions(ctx, projectID)
	if err != nil {
		return nil, err
	}

	summary := &ProjectSummary{NumSessions: len(sessions)}
	var participants, recordings int64

	g, gctx := errgroup.WithContext(ctx)
	for _, session := range sessions {
		if !session.IsActive() {
			continue
		}
		summary.NumActiveSessions++

		room := session.LivekitRoomName
		g.Go(func() error {
			list, err := s.media.ListParticipants(gctx, room)
			if err != nil {
				log.Warn().Err(err).Str("service", "summary").Str("room", room).Msg("participants unavailable")
				return nil
			}
			atomic.AddInt64(&participants, int64(len(list)))
			return nil
		})
		g.Go(func() error {
			jobs, err := s.jobs.PeekJobsForRoom(gctx, room)
			if err != nil {
				log.Warn().Err(err).Str("service", "summary").Str("room", room).Msg("egress jobs unavailable")
				return nil
			}
			var n int64
			for _, job := range jobs {
				if !job.Status.IsTerminal() {
					n++
				}
			}
			atomic.AddInt64(&recordings, n)
			return nil
		})
	}
	_ = g.Wait()

	summary.NumParticipants = int(participants)
	summary.NumRecordings = int(recordings)

	return summary, nil
}
