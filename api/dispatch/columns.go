package dispatch

import (
	"net/http"

	"github.com/kilianp07/fleetdispatch/core/layout"
	"github.com/kilianp07/fleetdispatch/core/status"
)

type layoutResponse struct {
	layout.Layout
	Visible []status.Status `json:"visible"`
}

func respondLayout(l layout.Layout) layoutResponse {
	return layoutResponse{Layout: l, Visible: l.Visible()}
}

type putColumnsRequest struct {
	Order  []string `json:"order" validate:"omitempty,dive,dispatch_status"`
	Hidden []string `json:"hidden" validate:"omitempty,dive,dispatch_status"`
}

type columnRequest struct {
	Status string `json:"status" validate:"required,dispatch_status"`
	Index  *int   `json:"index,omitempty" validate:"omitempty,min=0"`
}

func parseAll(vs []string) []status.Status {
	out := make([]status.Status, 0, len(vs))
	for _, v := range vs {
		out = append(out, status.MustParse(v))
	}
	return out
}

func (h *handlers) writeLayout(w http.ResponseWriter, r *http.Request, l layout.Layout, err error) {
	if err != nil {
		h.Log.Errorw("layout write failed", err, map[string]any{"path": r.URL.Path})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, respondLayout(l))
}

func (h *handlers) getColumns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, respondLayout(h.Layout.Load(r.Context())))
}

// putColumns replaces the fields present in the body. Omitted fields are
// kept.
func (h *handlers) putColumns(w http.ResponseWriter, r *http.Request) {
	var req putColumnsRequest
	if !decode(w, r, &req) {
		return
	}
	l := h.Layout.Load(r.Context())
	var err error
	if req.Order != nil {
		if l, err = h.Layout.SaveOrder(r.Context(), parseAll(req.Order)); err != nil {
			h.writeLayout(w, r, l, err)
			return
		}
	}
	if req.Hidden != nil {
		l, err = h.Layout.SetHidden(r.Context(), parseAll(req.Hidden))
	}
	h.writeLayout(w, r, l, err)
}

func (h *handlers) resetColumns(w http.ResponseWriter, r *http.Request) {
	l, err := h.Layout.Reset(r.Context())
	h.writeLayout(w, r, l, err)
}

func (h *handlers) hideColumn(w http.ResponseWriter, r *http.Request) {
	var req columnRequest
	if !decode(w, r, &req) {
		return
	}
	l, err := h.Layout.Hide(r.Context(), status.MustParse(req.Status))
	h.writeLayout(w, r, l, err)
}

func (h *handlers) showColumn(w http.ResponseWriter, r *http.Request) {
	var req columnRequest
	if !decode(w, r, &req) {
		return
	}
	l, err := h.Layout.Show(r.Context(), status.MustParse(req.Status))
	h.writeLayout(w, r, l, err)
}

func (h *handlers) moveColumn(w http.ResponseWriter, r *http.Request) {
	var req columnRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Index == nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "validation failed", Fields: map[string]string{"index": "This field is required"}})
		return
	}
	l, err := h.Layout.Move(r.Context(), status.MustParse(req.Status), *req.Index)
	h.writeLayout(w, r, l, err)
}
