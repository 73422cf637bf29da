package refdata

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"accredo/pkg/platform/httputil"
)

// Handler serves the reference data endpoints.
type Handler struct {
	catalog *Catalog
}

func NewHandler(catalog *Catalog) *Handler {
	return &Handler{catalog: catalog}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/general/political-parties", h.HandlePoliticalParties)
	r.Get("/general/polling-units", h.HandlePollingUnits)
}

type partiesResponse struct {
	PoliticalParties []PoliticalParty `json:"political_parties"`
}

type unitsResponse struct {
	PollingUnits []PollingUnit `json:"polling_units"`
}

func (h *Handler) HandlePoliticalParties(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, partiesResponse{PoliticalParties: h.catalog.Parties()})
}

func (h *Handler) HandlePollingUnits(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, unitsResponse{PollingUnits: h.catalog.PollingUnits()})
}
