package api

import (
	"errors"
	"net/http"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	"github.com/livekit/protocol/webhook"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/isqad/syncflow/internal/core"
	"github.com/isqad/syncflow/internal/media"
)

const (
	webhookRoomFinished  = "room_finished"
	webhookEgressStarted = "egress_started"
	webhookEgressUpdated = "egress_updated"
	webhookEgressEnded   = "egress_ended"
)

// WebhookHandler receives signed notifications from the media server. Events
// for rooms and egress jobs this service doesn't know are acknowledged and
// dropped.
func WebhookHandler(provider auth.KeyProvider, sessions SessionService, egress EgressService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := webhook.Receive(r, provider)
		if err != nil {
			log.Warn().Err(err).Str("service", "webhook").Msg("can't verify webhook")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		event := &livekit.WebhookEvent{}
		if err := protojson.Unmarshal(data, event); err != nil {
			log.Warn().Err(err).Str("service", "webhook").Msg("can't decode webhook")
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		log.Debug().Str("service", "webhook").Str("event", event.Event).Str("id", event.Id).Msg("received webhook")

		switch event.Event {
		case webhookRoomFinished:
			if event.Room == nil {
				break
			}
			_, err = sessions.RoomFinished(r.Context(), event.Room.Name)
			if errors.Is(err, core.ErrSessionNotFound) {
				err = nil
			}
		case webhookEgressStarted, webhookEgressUpdated, webhookEgressEnded:
			if event.EgressInfo == nil {
				break
			}
			err = egress.ObserveEgress(r.Context(), media.JobFromInfo(event.EgressInfo))
		}

		if err != nil {
			log.Error().Err(err).Str("service", "webhook").Str("event", event.Event).Msg("can't apply webhook")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
