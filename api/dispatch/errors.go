package dispatch

import (
	"errors"
	"net/http"

	"github.com/kilianp07/fleetdispatch/core/dispatcherr"
	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/status"
)

// statusFor maps a core failure to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidRef), errors.Is(err, status.ErrUnknownStatus):
		return http.StatusBadRequest
	case errors.Is(err, dispatcherr.Precondition):
		return http.StatusConflict
	case errors.Is(err, dispatcherr.Assignment):
		return http.StatusBadGateway
	case errors.Is(err, dispatcherr.Reconciliation):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	body := errorBody{Error: err.Error()}
	if k := dispatcherr.KindOf(err); k != nil {
		body.Kind = k.Error()
	}
	if code >= http.StatusInternalServerError {
		h.Log.Errorw("request failed", err, map[string]any{"path": r.URL.Path, "op": dispatcherr.OpOf(err)})
	}
	writeJSON(w, code, body)
}
