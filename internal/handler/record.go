package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fuelsync/fuelsync/internal/handler/dto"
	"github.com/fuelsync/fuelsync/internal/service"
)

// ListRefills handles GET /api/v1/vehicles/{vehicleID}/refills.
func (h *Handler) ListRefills(w http.ResponseWriter, r *http.Request) {
	token, limit := listParams(r)
	page, err := h.svc.ListRefills(r.Context(), identity(r).OwnerID, chi.URLParam(r, "vehicleID"),
		service.ListQuery{Token: token, Limit: limit})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewListResponse(page.Items, page.NextToken))
}

// CreateRefill handles POST /api/v1/vehicles/{vehicleID}/refills.
func (h *Handler) CreateRefill(w http.ResponseWriter, r *http.Request) {
	var req dto.RefillRequest
	if !decode(w, r, &req) {
		return
	}
	f, err := h.svc.CreateRefill(r.Context(), identity(r).OwnerID, chi.URLParam(r, "vehicleID"), req.ToInput())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// GetRefill handles GET /api/v1/vehicles/{vehicleID}/refills/{refillID}.
func (h *Handler) GetRefill(w http.ResponseWriter, r *http.Request) {
	f, err := h.svc.GetRefill(r.Context(), identity(r).OwnerID, chi.URLParam(r, "vehicleID"), chi.URLParam(r, "refillID"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// UpdateRefill handles PUT /api/v1/vehicles/{vehicleID}/refills/{refillID}.
func (h *Handler) UpdateRefill(w http.ResponseWriter, r *http.Request) {
	var req dto.RefillRequest
	if !decode(w, r, &req) {
		return
	}
	f, err := h.svc.UpdateRefill(r.Context(), identity(r).OwnerID,
		chi.URLParam(r, "vehicleID"), chi.URLParam(r, "refillID"), req.ToInput())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// DeleteRefill handles DELETE /api/v1/vehicles/{vehicleID}/refills/{refillID}.
func (h *Handler) DeleteRefill(w http.ResponseWriter, r *http.Request) {
	err := h.svc.DeleteRefill(r.Context(), identity(r).OwnerID, chi.URLParam(r, "vehicleID"), chi.URLParam(r, "refillID"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListExpenses handles GET /api/v1/vehicles/{vehicleID}/expenses.
func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	token, limit := listParams(r)
	page, err := h.svc.ListExpenses(r.Context(), identity(r).OwnerID, chi.URLParam(r, "vehicleID"),
		service.ListQuery{Token: token, Limit: limit})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewListResponse(page.Items, page.NextToken))
}

// CreateExpense handles POST /api/v1/vehicles/{vehicleID}/expenses.
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var req dto.ExpenseRequest
	if !decode(w, r, &req) {
		return
	}
	e, err := h.svc.CreateExpense(r.Context(), identity(r).OwnerID, chi.URLParam(r, "vehicleID"), req.ToInput())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// GetExpense handles GET /api/v1/vehicles/{vehicleID}/expenses/{expenseID}.
func (h *Handler) GetExpense(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.GetExpense(r.Context(), identity(r).OwnerID, chi.URLParam(r, "vehicleID"), chi.URLParam(r, "expenseID"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// UpdateExpense handles PUT /api/v1/vehicles/{vehicleID}/expenses/{expenseID}.
func (h *Handler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	var req dto.ExpenseRequest
	if !decode(w, r, &req) {
		return
	}
	e, err := h.svc.UpdateExpense(r.Context(), identity(r).OwnerID,
		chi.URLParam(r, "vehicleID"), chi.URLParam(r, "expenseID"), req.ToInput())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// DeleteExpense handles DELETE /api/v1/vehicles/{vehicleID}/expenses/{expenseID}.
func (h *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	err := h.svc.DeleteExpense(r.Context(), identity(r).OwnerID, chi.URLParam(r, "vehicleID"), chi.URLParam(r, "expenseID"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
