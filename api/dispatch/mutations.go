package dispatch

import (
	"net/http"

	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/status"
)

type assignRequest struct {
	BookingID string `json:"booking_id" validate:"required"`
	DriverID  string `json:"driver_id" validate:"required"`
	VehicleID string `json:"vehicle_id" validate:"required"`
}

type unassignRequest struct {
	DispatchID string `json:"dispatch_id" validate:"required_without=BookingID"`
	BookingID  string `json:"booking_id" validate:"required_without=DispatchID"`
}

type statusRequest struct {
	DispatchID string `json:"dispatch_id" validate:"required_without=BookingID"`
	BookingID  string `json:"booking_id" validate:"required_without=DispatchID"`
	Status     string `json:"status" validate:"required,dispatch_status"`
}

type entryResponse struct {
	Entry model.DispatchEntry `json:"entry"`
}

func (h *handlers) assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !decode(w, r, &req) {
		return
	}
	e, err := h.Mutator.Assign(r.Context(), req.BookingID, req.DriverID, req.VehicleID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entryResponse{Entry: e})
}

func (h *handlers) unassign(w http.ResponseWriter, r *http.Request) {
	var req unassignRequest
	if !decode(w, r, &req) {
		return
	}
	e, err := h.Mutator.Unassign(r.Context(), req.DispatchID, req.BookingID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entryResponse{Entry: e})
}

func (h *handlers) setStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decode(w, r, &req) {
		return
	}
	st, err := status.Parse(req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	e, err := h.Mutator.SetStatus(r.Context(), req.DispatchID, req.BookingID, st)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entryResponse{Entry: e})
}
