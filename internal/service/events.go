package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/isqad/syncflow/internal/eventbus"
)

const publishTimeout = 2 * time.Second

// publish is best-effort: a lost notification never fails the operation.
func publish(ctx context.Context, events eventbus.Publisher, event eventbus.Event) {
	if events == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := events.Publish(ctx, event); err != nil {
		log.Error().Err(err).
			Str("service", "events").
			Str("type", string(event.Type)).
			Str("project", event.ProjectID).
			Msg("can't publish event")
	}
}
