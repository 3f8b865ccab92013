package ws

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/isqad/melody"
	"github.com/rs/zerolog/log"

	"github.com/isqad/syncflow/internal/api"
	"github.com/isqad/syncflow/internal/eventbus"
)

// WsAppOptions is options of the application
type WsAppOptions struct {
	Address  string
	Auth     *api.FirebaseAuth
	Projects api.ProjectService
	Events   eventbus.Subscriber

	websocket *melody.Melody
}

// WsApp serves the live project feed
type WsApp struct {
	WsAppOptions
}

func New(options WsAppOptions) *WsApp {
	options.websocket = melody.New()
	options.websocket.Config.MaxMessageSize = 1024

	app := &WsApp{
		options,
	}
	return app
}

func (app *WsApp) Start() error {
	server := &http.Server{
		Addr:              app.Address,
		Handler:           app.Router(),
		ReadHeaderTimeout: 1 * time.Second,
	}

	return api.ListenAndServe("ws", server, func() {
		if err := app.websocket.Close(); err != nil {
			log.Error().Err(err).Str("service", "ws").Msg("can't close websocket sessions")
			return
		}
		log.Info().Str("service", "ws").Msg("all sessions are closed")
	})
}

// Router is function for construct http router
func (app *WsApp) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	app.websocket.HandleConnect(ConnectHandler())
	app.websocket.HandleDisconnect(DisconnectHandler())
	app.websocket.HandleMessage(HandleMessage())
	app.websocket.HandleError(func(s *melody.Session, err error) {
		log.Error().Err(err).Str("service", "ws").Msg("error in websocket session")
	})

	r.With(app.Auth.Middleware()).Get("/ws", WsHandler(app.Projects, app.Events, app.websocket))

	return r
}
