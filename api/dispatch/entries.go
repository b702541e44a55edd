package dispatch

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/status"
	"github.com/kilianp07/fleetdispatch/core/workingset"
)

type entriesResponse struct {
	Entries     []model.DispatchEntry `json:"entries"`
	Total       int                   `json:"total"`
	Version     uint64                `json:"version"`
	RefreshedAt *time.Time            `json:"refreshed_at,omitempty"`
}

type column struct {
	Status  status.Status         `json:"status"`
	Entries []model.DispatchEntry `json:"entries"`
}

type boardResponse struct {
	Columns     []column         `json:"columns"`
	Hidden      []status.Status  `json:"hidden"`
	Stats       workingset.Stats `json:"stats"`
	Version     uint64           `json:"version"`
	RefreshedAt *time.Time       `json:"refreshed_at,omitempty"`
}

// parseFilter reads status, driver_id, vehicle_id, date_from and date_to.
// status accepts a comma separated list or repeated parameters.
func parseFilter(r *http.Request) (workingset.Filter, error) {
	q := r.URL.Query()
	f := workingset.Filter{
		DriverID:  q.Get("driver_id"),
		VehicleID: q.Get("vehicle_id"),
		DateFrom:  q.Get("date_from"),
		DateTo:    q.Get("date_to"),
	}
	for _, raw := range q["status"] {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v == "" {
				continue
			}
			st, err := status.Parse(v)
			if err != nil {
				return f, err
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	for _, d := range []string{f.DateFrom, f.DateTo} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(model.DateLayout, d); err != nil {
			return f, fmt.Errorf("date %q: want YYYY-MM-DD", d)
		}
	}
	return f, nil
}

func (h *handlers) refreshedAt() *time.Time {
	t := h.Store.RefreshedAt()
	if t.IsZero() {
		return nil
	}
	return &t
}

func (h *handlers) listEntries(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid filter: "+err.Error())
		return
	}
	entries := f.Apply(h.Store.Snapshot())
	writeJSON(w, http.StatusOK, entriesResponse{
		Entries:     entries,
		Total:       len(entries),
		Version:     h.Store.Version(),
		RefreshedAt: h.refreshedAt(),
	})
}

// board groups the filtered working set into the visible columns of the
// stored layout.
func (h *handlers) board(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid filter: "+err.Error())
		return
	}
	entries := f.Apply(h.Store.Snapshot())
	l := h.Layout.Load(r.Context())
	byStatus := map[status.Status][]model.DispatchEntry{}
	for _, e := range entries {
		byStatus[e.Status] = append(byStatus[e.Status], e)
	}
	visible := l.Visible()
	cols := make([]column, 0, len(visible))
	for _, st := range visible {
		es := byStatus[st]
		if es == nil {
			es = []model.DispatchEntry{}
		}
		cols = append(cols, column{Status: st, Entries: es})
	}
	writeJSON(w, http.StatusOK, boardResponse{
		Columns:     cols,
		Hidden:      l.Hidden,
		Stats:       workingset.ComputeStats(entries, h.now(), h.Location),
		Version:     h.Store.Version(),
		RefreshedAt: h.refreshedAt(),
	})
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid filter: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, workingset.ComputeStats(f.Apply(h.Store.Snapshot()), h.now(), h.Location))
}

type refreshResponse struct {
	Token       uint64 `json:"token"`
	Applied     bool   `json:"applied"`
	Persisted   int    `json:"persisted"`
	Synthesized int    `json:"synthesized"`
	Visible     int    `json:"visible"`
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	res, err := h.Refresher.Refresh(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{
		Token:       uint64(res.Token),
		Applied:     res.Applied,
		Persisted:   res.Persisted,
		Synthesized: res.Synthesized,
		Visible:     len(res.Entries),
	})
}
