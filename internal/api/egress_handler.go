package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/isqad/syncflow/internal/core"
)

type egressRequest struct {
	// TrackID is empty for a room composite recording
	TrackID string `json:"track_id"`
}

func EgressListHandler(projects ProjectService, sessions SessionService, egress EgressService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _, session, err := sessionFromRequest(projects, sessions, r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		jobs, err := egress.ListJobsForRoom(r.Context(), session.LivekitRoomName)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, jobs)
	}
}

func EgressStartHandler(projects ProjectService, sessions SessionService, egress EgressService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _, session, err := sessionFromRequest(projects, sessions, r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		req := &egressRequest{}
		if err := decodeJSON(r, req); err != nil {
			writeError(w, r, err)
			return
		}

		var job *core.EgressJob
		if req.TrackID == "" {
			job, err = egress.StartRoomCompositeEgress(r.Context(), session.LivekitRoomName)
		} else {
			job, err = egress.StartTrackEgress(r.Context(), session.LivekitRoomName, req.TrackID)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

// EgressStopAllHandler answers 200 even when some jobs failed to stop; the
// failures are listed in the body.
func EgressStopAllHandler(projects ProjectService, sessions SessionService, egress EgressService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _, session, err := sessionFromRequest(projects, sessions, r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		result, err := egress.StopAllActive(r.Context(), session.LivekitRoomName)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func EgressStopHandler(projects ProjectService, sessions SessionService, egress EgressService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := userFromRequest(r)
		if err != nil {
			writeError(w, r, core.ErrUnauthorized.With("stop egress", "", err))
			return
		}

		job, err := egress.GetJob(r.Context(), chi.URLParam(r, "egressID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		session, err := sessions.SessionForRoom(r.Context(), job.RoomName)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if _, err := projects.GetProject(r.Context(), user, session.ProjectID); err != nil {
			writeError(w, r, err)
			return
		}

		job, err = egress.StopEgress(r.Context(), job.EgressID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}
