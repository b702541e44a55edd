package dispatch

import (
	"net/http"
	"strconv"

	"github.com/kilianp07/fleetdispatch/core/persistence"
)

func resourceQuery(r *http.Request) (persistence.ResourceQuery, error) {
	var q persistence.ResourceQuery
	if s := r.URL.Query().Get("available"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return q, err
		}
		q.Available = &b
	}
	return q, nil
}

func (h *handlers) listDrivers(w http.ResponseWriter, r *http.Request) {
	if h.Resources == nil {
		writeError(w, http.StatusNotFound, "resources unavailable")
		return
	}
	q, err := resourceQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid available flag")
		return
	}
	drivers, err := h.Resources.ListDrivers(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, drivers)
}

func (h *handlers) listVehicles(w http.ResponseWriter, r *http.Request) {
	if h.Resources == nil {
		writeError(w, http.StatusNotFound, "resources unavailable")
		return
	}
	q, err := resourceQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid available flag")
		return
	}
	vehicles, err := h.Resources.ListVehicles(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vehicles)
}
