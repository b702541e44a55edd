// Package dispatch exposes the dispatch board over HTTP: the working set,
// the guarded mutations, the column layout, the journal and a server-sent
// event stream of shared state notifications.
package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kilianp07/fleetdispatch/core/journal"
	"github.com/kilianp07/fleetdispatch/core/layout"
	"github.com/kilianp07/fleetdispatch/core/logger"
	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/persistence"
	"github.com/kilianp07/fleetdispatch/core/reconcile"
	"github.com/kilianp07/fleetdispatch/core/sharedstate"
	"github.com/kilianp07/fleetdispatch/core/status"
	"github.com/kilianp07/fleetdispatch/core/workingset"
)

// Mutator performs the operator mutations.
type Mutator interface {
	Assign(ctx context.Context, bookingID, driverID, vehicleID string) (model.DispatchEntry, error)
	Unassign(ctx context.Context, dispatchRef, bookingID string) (model.DispatchEntry, error)
	SetStatus(ctx context.Context, dispatchRef, bookingID string, to status.Status) (model.DispatchEntry, error)
}

// Refresher runs a reconciliation pass into the working set.
type Refresher interface {
	Refresh(ctx context.Context) (reconcile.Result, error)
}

// RefreshFunc adapts a function to Refresher.
type RefreshFunc func(ctx context.Context) (reconcile.Result, error)

func (f RefreshFunc) Refresh(ctx context.Context) (reconcile.Result, error) { return f(ctx) }

// Deps are the collaborators of the handlers. Journal and Resources may be
// nil; their routes then answer 404.
type Deps struct {
	Store     *workingset.Store
	Mutator   Mutator
	Refresher Refresher
	Bus       *sharedstate.Bus
	Layout    *layout.Store
	Journal   journal.Store
	Resources persistence.Reader
	Location  *time.Location
	Log       logger.Logger

	// Token enables bearer authentication when non-empty.
	Token string
	// CORSOrigin is echoed in Access-Control-Allow-Origin when set.
	CORSOrigin string
	// KeepAlive is the SSE comment interval. Defaults to 30s.
	KeepAlive time.Duration
}

type handlers struct {
	Deps
	now func() time.Time
}

// NewRouter mounts every route under /api/dispatch.
func NewRouter(d Deps) http.Handler {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.KeepAlive <= 0 {
		d.KeepAlive = 30 * time.Second
	}
	d.Log = logger.OrNop(d.Log)
	h := &handlers{Deps: d, now: time.Now}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.cors)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api/dispatch", func(r chi.Router) {
		r.Use(h.auth)
		r.Get("/entries", h.listEntries)
		r.Get("/board", h.board)
		r.Get("/stats", h.stats)
		r.Post("/assign", h.assign)
		r.Post("/unassign", h.unassign)
		r.Post("/status", h.setStatus)
		r.Post("/refresh", h.refresh)
		r.Get("/events", h.events)

		r.Get("/columns", h.getColumns)
		r.Put("/columns", h.putColumns)
		r.Delete("/columns", h.resetColumns)
		r.Post("/columns/hide", h.hideColumn)
		r.Post("/columns/show", h.showColumn)
		r.Post("/columns/move", h.moveColumn)

		r.Get("/journal", h.listJournal)
		r.Get("/drivers", h.listDrivers)
		r.Get("/vehicles", h.listVehicles)
	})
	return r
}

func (h *handlers) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Token != "" && r.Header.Get("Authorization") != "Bearer "+h.Token {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *handlers) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.CORSOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", h.CORSOrigin)
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error  string            `json:"error"`
	Kind   string            `json:"kind,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}
