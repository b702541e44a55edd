package dispatch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kilianp07/fleetdispatch/core/sharedstate"
)

// events streams every bus notification as a server-sent event named
// dispatch-state-update. The last notification is sent first so a client
// can tell whether it missed an update while reconnecting.
func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := h.Bus.Subscribe()
	defer cancel()
	w.WriteHeader(http.StatusOK)

	if last := h.Bus.LastUpdate(); last.Token != 0 {
		if err := writeEvent(w, last); err != nil {
			return
		}
	}
	flusher.Flush()

	keepalive := time.NewTicker(h.KeepAlive)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(w, n); err != nil {
				h.Log.Debugf("sse: write error: %v", err)
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, n sharedstate.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", n.Token, sharedstate.EventName, data)
	return err
}
