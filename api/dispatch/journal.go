package dispatch

import (
	"net/http"
	"strconv"
	"time"

	"github.com/kilianp07/fleetdispatch/core/journal"
)

const defaultJournalLimit = 200

// listJournal answers GET /api/dispatch/journal. start and end are RFC3339;
// invalid values are ignored.
func (h *handlers) listJournal(w http.ResponseWriter, r *http.Request) {
	if h.Journal == nil {
		writeError(w, http.StatusNotFound, "journal disabled")
		return
	}
	v := r.URL.Query()
	q := journal.Query{
		Kind:      v.Get("kind"),
		Op:        v.Get("op"),
		BookingID: v.Get("booking_id"),
		Outcome:   v.Get("outcome"),
		Limit:     defaultJournalLimit,
	}
	if s := v.Get("start"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			q.Start = t
		}
	}
	if s := v.Get("end"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			q.End = t
		}
	}
	if s := v.Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			q.Limit = n
		}
	}
	records, err := h.Journal.Query(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if records == nil {
		records = []journal.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}
