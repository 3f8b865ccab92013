package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/livekit/protocol/auth"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/isqad/syncflow/internal/media"
)

// AppOptions is options of the application
type AppOptions struct {
	Address string
	// MediaURL is handed to clients when the project has no own url
	MediaURL string

	Projects ProjectService
	Sessions SessionService
	Egress   EgressService
	Summary  Summarizer
	Media    media.Service

	Auth        *FirebaseAuth
	Admin       http.Handler
	WebhookKeys auth.KeyProvider
}

// App is application for API
type App struct {
	AppOptions
}

// NewApp creates a new API application
func NewApp(options AppOptions) *App {
	if options.Auth.AuthFailFunc == nil {
		options.Auth.AuthFailFunc = authFailedFunc
	}
	return &App{options}
}

// Router is function for construct http router
func (app *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/webhook/livekit", WebhookHandler(app.WebhookKeys, app.Sessions, app.Egress))

	if app.Admin != nil {
		r.Mount("/admin", app.Admin)
	}

	r.With(app.Auth.Middleware()).Route("/api/v1", func(r chi.Router) {
		r.Get("/current_user", CurrentUserHandler())

		r.Get("/projects", ProjectsListHandler(app.Projects))
		r.Post("/projects", ProjectCreateHandler(app.Projects))
		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Get("/", ProjectShowHandler(app.Projects))
			r.Delete("/", ProjectDeleteHandler(app.Projects))
			r.Get("/summary", ProjectSummaryHandler(app.Projects, app.Summary))

			r.Get("/sessions", SessionsListHandler(app.Projects, app.Sessions))
			r.Post("/sessions", SessionCreateHandler(app.Projects, app.Sessions))

			r.Get("/api-keys", APIKeysListHandler(app.Projects))
			r.Post("/api-keys", APIKeyCreateHandler(app.Projects))
			r.Delete("/api-keys/{key}", APIKeyDeleteHandler(app.Projects))

			r.Get("/devices", DevicesListHandler(app.Projects))
			r.Post("/devices", DeviceCreateHandler(app.Projects))
			r.Delete("/devices/{deviceID}", DeviceDeleteHandler(app.Projects))
		})

		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", SessionShowHandler(app.Projects, app.Sessions))
			r.Delete("/", SessionDeleteHandler(app.Projects, app.Sessions))
			r.Post("/stop", SessionStopHandler(app.Projects, app.Sessions))
			r.Post("/token", SessionTokenHandler(app.Projects, app.Sessions, app.Media, app.MediaURL))
			r.Get("/participants", SessionParticipantsHandler(app.Projects, app.Sessions, app.Media))

			r.Get("/egress", EgressListHandler(app.Projects, app.Sessions, app.Egress))
			r.Post("/egress", EgressStartHandler(app.Projects, app.Sessions, app.Egress))
			r.Post("/egress/stop-all", EgressStopAllHandler(app.Projects, app.Sessions, app.Egress))
		})

		r.Post("/egress/{egressID}/stop", EgressStopHandler(app.Projects, app.Sessions, app.Egress))
	})

	return r
}

// Start serves the API until the process is signalled to stop.
func (app *App) Start() error {
	return ListenAndServe("api", &http.Server{
		Addr:              app.Address,
		Handler:           app.Router(),
		ReadHeaderTimeout: 1 * time.Second,
		WriteTimeout:      30 * time.Second,
	}, nil)
}

func authFailedFunc(w http.ResponseWriter, r *http.Request, err error) {
	writeJSON(w, http.StatusUnauthorized, ErrorResponse{
		Kind:    "unauthenticated",
		Code:    "Unauthenticated",
		Message: err.Error(),
	})
}
