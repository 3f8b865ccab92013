package admin

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"github.com/rs/zerolog/log"

	"github.com/isqad/syncflow/internal/core"
)

// SessionName must match the cookie the API auth middleware reads.
const SessionName = "_syncflow_session"

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// App is admin application struct
type App struct {
	router       *chi.Mux
	users        core.UserStorer
	sessionStore sessions.Store
}

// NewApp creates new instance of admin application
func NewApp(users core.UserStorer, sessionStore sessions.Store) *App {
	return &App{
		router:       chi.NewRouter(),
		users:        users,
		sessionStore: sessionStore,
	}
}

// NewCookieStore keeps the admin cookie scoped to the API.
func NewCookieStore(secret string, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// Router return admin router
func (app *App) Router() http.Handler {
	app.router.Post("/login", app.login)
	app.router.Delete("/login", app.logout)

	return app.router
}

func (app *App) login(w http.ResponseWriter, r *http.Request) {
	req := &loginRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	user, err := app.users.AuthAdminUser(r.Context(), req.Email, req.Password)
	if err != nil {
		log.Error().Err(err).Str("service", "admin").Msg("can't authenticate admin")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if user == nil {
		log.Warn().Str("service", "admin").Str("email", req.Email).Msg("admin login failed")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	session, _ := app.sessionStore.Get(r, SessionName)
	session.Values["id"] = user.ID
	if err := session.Save(r, w); err != nil {
		log.Error().Err(err).Str("service", "admin").Msg("can't save admin session")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(user); err != nil {
		log.Error().Err(err).Str("service", "admin").Msg("can't encode admin")
	}
}

func (app *App) logout(w http.ResponseWriter, r *http.Request) {
	session, _ := app.sessionStore.Get(r, SessionName)
	delete(session.Values, "id")
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		log.Error().Err(err).Str("service", "admin").Msg("can't clear admin session")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
