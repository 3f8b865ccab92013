package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/isqad/syncflow/internal/core"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Kind      core.ErrorKind `json:"kind"`
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
}

var errBadRequest = errors.New("malformed request body")

func statusOf(kind core.ErrorKind) int {
	switch kind {
	case core.KindValidation:
		return http.StatusUnprocessableEntity
	case core.KindUnauthorized:
		return http.StatusForbidden
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindConflict:
		return http.StatusConflict
	case core.KindExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errBadRequest) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Kind:    core.KindValidation,
			Code:    "BadRequest",
			Message: err.Error(),
		})
		return
	}

	kind := core.KindOf(err)
	status := statusOf(kind)

	resp := ErrorResponse{
		Kind:      kind,
		Code:      core.CodeOf(err),
		Message:   err.Error(),
		Retryable: core.IsRetryable(err),
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("service", "api").Str("path", r.URL.Path).Msg("request failed")
		resp.Message = http.StatusText(status)
	} else {
		log.Debug().Err(err).Str("service", "api").Str("path", r.URL.Path).Msg("request rejected")
	}

	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Str("service", "api").Msg("can't encode response")
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}
