package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/isqad/syncflow/internal/core"
)

// projectFromRequest loads {projectID} and checks the user may manage it.
func projectFromRequest(projects ProjectService, r *http.Request) (*core.User, *core.Project, error) {
	user, err := userFromRequest(r)
	if err != nil {
		return nil, nil, core.ErrUnauthorized.With("project", "", err)
	}
	project, err := projects.GetProject(r.Context(), user, chi.URLParam(r, "projectID"))
	if err != nil {
		return nil, nil, err
	}
	return user, project, nil
}

func ProjectsListHandler(projects ProjectService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := userFromRequest(r)
		if err != nil {
			writeError(w, r, core.ErrUnauthorized.With("list projects", "", err))
			return
		}
		list, err := projects.ListProjects(r.Context(), user)
		if err != nil {
			writeError(w, r, err)
			return
		}
		for _, p := range list {
			p.Storage = p.Storage.Redacted()
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func ProjectCreateHandler(projects ProjectService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := userFromRequest(r)
		if err != nil {
			writeError(w, r, core.ErrUnauthorized.With("create project", "", err))
			return
		}

		project := &core.Project{}
		if err := decodeJSON(r, project); err != nil {
			writeError(w, r, err)
			return
		}

		project, err = projects.CreateProject(r.Context(), user, project)
		if err != nil {
			writeError(w, r, err)
			return
		}
		project.Storage = project.Storage.Redacted()
		writeJSON(w, http.StatusCreated, project)
	}
}

func ProjectShowHandler(projects ProjectService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, project, err := projectFromRequest(projects, r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		project.Storage = project.Storage.Redacted()
		writeJSON(w, http.StatusOK, project)
	}
}

func ProjectDeleteHandler(projects ProjectService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, project, err := projectFromRequest(projects, r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		force := r.URL.Query().Get("force") == "true"
		if err := projects.DeleteProject(r.Context(), project.ID, force); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func ProjectSummaryHandler(projects ProjectService, summary Summarizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, project, err := projectFromRequest(projects, r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		s, err := summary.SummarizeProject(r.Context(), project.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

type apiKeyRequest struct {
	Comment string `json:"comment"`
}

func APIKeysListHandler(projects ProjectService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, project, err := projectFromRequest(projects, r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		keys, err := projects.ListAPIKeys(r.Context(), project.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, keys)
	}
}

func APIKeyCreateHandler(projects ProjectService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, project, err := projectFromRequest(projects, r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		req := &apiKeyRequest{}
		if err := decodeJSON(r, req); err != nil {
			writeError(w, r, err)
			return
		}
		key, err := projects.CreateAPIKey(r.Context(), project.ID, req.Comment)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, key)
	}
}

func APIKeyDeleteHandler(projects ProjectService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, project, err := projectFromRequest(projects, r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := projects.DeleteAPIKey(r.Context(), project.ID, chi.URLParam(r, "key")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func DevicesListHandler(projects ProjectService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, project, err := projectFromRequest(projects, r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		devices, err := projects.ListDevices(r.Context(), project.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, devices)
	}
}

func DeviceCreateHandler(projects ProjectService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, project, err := projectFromRequest(projects, r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		device := &core.ProjectDevice{}
		if err := decodeJSON(r, device); err != nil {
			writeError(w, r, err)
			return
		}
		device, err = projects.CreateDevice(r.Context(), project.ID, device)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, device)
	}
}

func DeviceDeleteHandler(projects ProjectService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, project, err := projectFromRequest(projects, r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := projects.DeleteDevice(r.Context(), project.ID, chi.URLParam(r, "deviceID")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func CurrentUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := userFromRequest(r)
		if err != nil {
			writeError(w, r, core.ErrUnauthorized.With("current user", "", err))
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}
