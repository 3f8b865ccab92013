package ws

import (
	"context"
	"errors"
	"net/http"

	"github.com/isqad/melody"
	"github.com/rs/zerolog/log"

	"github.com/isqad/syncflow/internal/api"
	"github.com/isqad/syncflow/internal/core"
	"github.com/isqad/syncflow/internal/eventbus"
)

const (
	subscriptionKey = "subscription"
	projectKey      = "project"
)

// WsHandler upgrades an authenticated request into a feed of the lifecycle
// events of ?project=.
func WsHandler(projects api.ProjectService, events eventbus.Subscriber, websocket *melody.Melody) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := api.UserFromContext(r.Context())
		if err != nil {
			log.Error().Err(err).Str("service", "ws").Msg("can't get the user from request context")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		project, err := projects.GetProject(r.Context(), user, r.URL.Query().Get("project"))
		if err != nil {
			switch core.KindOf(err) {
			case core.KindNotFound:
				w.WriteHeader(http.StatusNotFound)
			case core.KindUnauthorized:
				w.WriteHeader(http.StatusForbidden)
			default:
				log.Error().Err(err).Str("service", "ws").Msg("can't load project")
				w.WriteHeader(http.StatusInternalServerError)
			}
			return
		}

		// the subscription outlives the upgrade request
		subscription, err := events.Subscribe(context.WithoutCancel(r.Context()), project.ID)
		if err != nil {
			log.Error().Err(err).Str("service", "ws").Str("project", project.ID).Msg("can't subscribe to project events")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		keys := map[string]interface{}{
			subscriptionKey: subscription,
			projectKey:      project.ID,
		}

		if err := websocket.HandleRequestWithKeys(w, r, keys); err != nil {
			log.Error().Err(err).Str("service", "ws").Msg("can't handle request")
			subscription.Close()
		}
	}
}

// ConnectHandler forwards events until the subscription is closed.
func ConnectHandler() func(session *melody.Session) {
	return func(session *melody.Session) {
		subscription, err := getSubscription(session)
		if err != nil {
			log.Error().Err(err).Str("service", "ws").Msg("extract subscription")
			session.Close()
			return
		}

		log.Debug().Str("service", "ws").Interface("project", session.Keys[projectKey]).Msg("feed connected")

		go func() {
			for event := range subscription.Events() {
				payload, err := event.ToJSON()
				if err != nil {
					log.Error().Err(err).Str("service", "ws").Msg("encode event")
					continue
				}
				if err := session.Write(payload); err != nil {
					// there's only session closed error can be
					return
				}
			}
		}()
	}
}

func DisconnectHandler() func(session *melody.Session) {
	return func(session *melody.Session) {
		subscription, err := getSubscription(session)
		if err != nil {
			log.Error().Err(err).Str("service", "ws").Msg("extract subscription")
			return
		}
		if err := subscription.Close(); err != nil {
			log.Error().Err(err).Str("service", "ws").Msg("close subscription")
		}
		log.Debug().Str("service", "ws").Interface("project", session.Keys[projectKey]).Msg("feed disconnected")
	}
}

// HandleMessage ignores client messages, the feed is one way.
func HandleMessage() func(s *melody.Session, msg []byte) {
	return func(s *melody.Session, msg []byte) {
		log.Debug().Str("service", "ws").Int("size", len(msg)).Msg("ignore client message")
	}
}

func getSubscription(session *melody.Session) (eventbus.Subscription, error) {
	value, ok := session.Keys[subscriptionKey]
	if !ok {
		return nil, errors.New("no subscription for given session")
	}
	subscription, ok := value.(eventbus.Subscription)
	if !ok {
		return nil, errors.New("can't convert subscription")
	}
	return subscription, nil
}
