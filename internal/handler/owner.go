package handler

import (
	"net/http"

	"github.com/fuelsync/fuelsync/internal/handler/dto"
)

// GetProfile handles GET /api/v1/profile.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	p, err := h.svc.GetProfile(r.Context(), id.OwnerID, id.Email)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdateProfile handles PUT /api/v1/profile.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateProfileRequest
	if !decode(w, r, &req) {
		return
	}
	id := identity(r)
	p, err := h.svc.UpdateProfile(r.Context(), id.OwnerID, id.Email, req.ToUpdate())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetSettings handles GET /api/v1/settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.GetSettings(r.Context(), identity(r).OwnerID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// UpdateSettings handles PUT /api/v1/settings.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateSettingsRequest
	if !decode(w, r, &req) {
		return
	}
	s, err := h.svc.UpdateSettings(r.Context(), identity(r).OwnerID, req.ToUpdate())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
