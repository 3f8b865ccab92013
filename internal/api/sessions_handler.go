package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/isqad/syncflow/internal/access"
	"github.com/isqad/syncflow/internal/core"
	"github.com/isqad/syncflow/internal/media"
)

// sessionFromRequest loads {sessionID} and checks the user may manage its
// project.
func sessionFromRequest(projects ProjectService, sessions SessionService, r *http.Request) (*core.User, *core.Project, *core.Session, error) {
	user, err := userFromRequest(r)
	if err != nil {
		return nil, nil, nil, core.ErrUnauthorized.With("session", "", err)
	}
	session, err := sessions.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		return nil, nil, nil, err
	}
	project, err := projects.GetProject(r.Context(), user, session.ProjectID)
	if err != nil {
		return nil, nil, nil, err
	}
	return user, project, session, nil
}

func SessionsListHandler(projects ProjectService, sessions SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, project, err := projectFromRequest(projects, r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		list, err := sessions.ListSessions(r.Context(), project.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func SessionCreateHandler(projects ProjectService, sessions SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, project, err := projectFromRequest(projects, r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		options := core.SessionOptions{}
		if err := decodeJSON(r, &options); err != nil {
			writeError(w, r, err)
			return
		}

		session, err := sessions.CreateSession(r.Context(), project.ID, options)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, session)
	}
}

// SessionShowHandler reconciles with the media server when asked to.
func SessionShowHandler(projects ProjectService, sessions SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _, session, err := sessionFromRequest(projects, sessions, r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		if r.URL.Query().Get("reconcile") == "true" {
			session, err = sessions.ReconcileSession(r.Context(), session.ID)
			if err != nil {
				writeError(w, r, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, session)
	}
}

func SessionStopHandler(projects ProjectService, sessions SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _, session, err := sessionFromRequest(projects, sessions, r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		session, err = sessions.StopSession(r.Context(), session.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

func SessionDeleteHandler(projects ProjectService, sessions SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _, session, err := sessionFromRequest(projects, sessions, r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := sessions.DeleteSession(r.Context(), session.ID); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type tokenRequest struct {
	Intent access.Intent `json:"intent"`
}

type TokenResponse struct {
	Token string              `json:"token"`
	URL   string              `json:"url"`
	Grant *access.AccessGrant `json:"grant"`
}

// SessionTokenHandler mints a join token for the calling user. The media url
// of the project wins over the default one.
func SessionTokenHandler(projects ProjectService, sessions SessionService, mediaService media.Service, defaultURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, project, session, err := sessionFromRequest(projects, sessions, r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !session.IsActive() {
			writeError(w, r, core.ErrSessionNotStarted.With("issue token", session.ID, nil))
			return
		}

		req := &tokenRequest{}
		if err := decodeJSON(r, req); err != nil {
			writeError(w, r, err)
			return
		}

		grant, err := access.BuildGrant(user, user.Role(), session.LivekitRoomName, req.Intent)
		if err != nil {
			writeError(w, r, err)
			return
		}

		token, err := mediaService.IssueToken(r.Context(), grant.Identity, grant)
		if err != nil {
			writeError(w, r, core.ErrMediaService.With("issue token", session.LivekitRoomName, err))
			return
		}

		url := project.MediaURL
		if url == "" {
			url = defaultURL
		}
		writeJSON(w, http.StatusOK, &TokenResponse{Token: token, URL: url, Grant: grant})
	}
}

func SessionParticipantsHandler(projects ProjectService, sessions SessionService, mediaService media.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _, session, err := sessionFromRequest(projects, sessions, r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !session.IsActive() {
			writeJSON(w, http.StatusOK, []*media.Participant{})
			return
		}

		participants, err := mediaService.ListParticipants(r.Context(), session.LivekitRoomName)
		if err != nil {
			writeError(w, r, core.ErrMediaService.With("list participants", session.LivekitRoomName, err))
			return
		}
		writeJSON(w, http.StatusOK, participants)
	}
}
