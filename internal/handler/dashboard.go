package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Dashboard handles GET /api/v1/dashboard.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Dashboard(r.Context(), identity(r).OwnerID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Rate handles GET /api/v1/rates/{date}?currency=XXX.
// Rates never fail; unknown currencies resolve to the fallback rate.
func (h *Handler) Rate(w http.ResponseWriter, r *http.Request) {
	q, err := h.svc.Quote(r.Context(), r.URL.Query().Get("currency"), chi.URLParam(r, "date"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}
