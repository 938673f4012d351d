package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fuelsync/fuelsync/internal/handler/dto"
)

// ListVehicles handles GET /api/v1/vehicles.
func (h *Handler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	token, limit := listParams(r)
	page, err := h.svc.ListVehicles(r.Context(), identity(r).OwnerID, token, limit)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewListResponse(page.Items, page.NextToken))
}

// CreateVehicle handles POST /api/v1/vehicles.
func (h *Handler) CreateVehicle(w http.ResponseWriter, r *http.Request) {
	var req dto.VehicleRequest
	if !decode(w, r, &req) {
		return
	}
	v, err := h.svc.CreateVehicle(r.Context(), identity(r).OwnerID, req.ToInput())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// GetVehicle handles GET /api/v1/vehicles/{vehicleID}.
func (h *Handler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.GetVehicle(r.Context(), identity(r).OwnerID, chi.URLParam(r, "vehicleID"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// UpdateVehicle handles PATCH /api/v1/vehicles/{vehicleID}.
func (h *Handler) UpdateVehicle(w http.ResponseWriter, r *http.Request) {
	var req dto.VehicleRequest
	if !decode(w, r, &req) {
		return
	}
	v, err := h.svc.UpdateVehicle(r.Context(), identity(r).OwnerID, chi.URLParam(r, "vehicleID"), req.ToInput())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// DeleteVehicle handles DELETE /api/v1/vehicles/{vehicleID}.
// Refills and expenses of the vehicle are deleted with it.
func (h *Handler) DeleteVehicle(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteVehicle(r.Context(), identity(r).OwnerID, chi.URLParam(r, "vehicleID")); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Statistics handles GET /api/v1/vehicles/{vehicleID}/statistics.
func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Statistics(r.Context(), identity(r).OwnerID, chi.URLParam(r, "vehicleID"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Charts handles GET /api/v1/vehicles/{vehicleID}/charts.
func (h *Handler) Charts(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Charts(r.Context(), identity(r).OwnerID, chi.URLParam(r, "vehicleID"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
