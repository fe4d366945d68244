package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
)

type menuCreatedRequest struct {
	MenuType catalog.MenuType `json:"menuType"`
}

type taxRateChangedRequest struct {
	IsNew bool `json:"isNew"`
}

// handleMenuCreated queues propagation of a new menu's type to every item.
func (s *Server) handleMenuCreated(w http.ResponseWriter, r *http.Request) {
	var req menuCreatedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	jobID, err := s.service.OnMenuCreated(r.Context(),
		chi.URLParam(r, "restaurantID"), req.MenuType, chi.URLParam(r, "menuID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{JobID: jobID})
}

// handleTaxRateChanged queues propagation of a tax rate to the menus.
func (s *Server) handleTaxRateChanged(w http.ResponseWriter, r *http.Request) {
	var req taxRateChangedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	jobID, err := s.service.OnTaxRateChanged(r.Context(),
		chi.URLParam(r, "restaurantID"), chi.URLParam(r, "taxRateID"), req.IsNew)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{JobID: jobID})
}
