package handlers

import (
	"net/http"

	"github.com/diewo77/go-btp/httpx"
	"github.com/diewo77/go-btp/internal/models"
	"github.com/diewo77/go-btp/internal/services"
	"github.com/diewo77/go-btp/validation"
	"github.com/shopspring/decimal"
)

const maxLignes = 500

type CommandeHandler struct {
	svc *services.CommandeService
}

func NewCommandeHandler(svc *services.CommandeService) *CommandeHandler {
	return &CommandeHandler{svc: svc}
}

// Save: POST /api/commandes creates the order, or updates it when the body carries an id.
func (h *CommandeHandler) Save(w http.ResponseWriter, r *http.Request) {
	var in services.SaveCommandeInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	v := validation.Violations{}
	validation.RequiredID("chantier_id", in.ChantierID, v)
	if in.Statut != "" {
		validation.OneOf("statut", string(in.Statut), models.CommandeStatuts, v)
	}
	if in.TauxTVA.Set() && in.TauxTVA.String() != "" {
		// unreadable rates fall back to zero, like every other number of the form
		validation.Range("taux_tva", in.TauxTVA.OrZero(), decimal.Zero, decimal.NewFromInt(100), v)
	}
	validation.MaxLen("reference", in.Reference, 100, v)
	if len(in.Lignes) > maxLignes {
		v["lignes"] = "too_long"
	}
	if !v.Empty() {
		invalid(w, r, v)
		return
	}

	status := http.StatusOK
	if in.ID == 0 {
		status = http.StatusCreated
	}
	cmd, err := h.svc.Save(r.Context(), in, currentUser(r))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, status, cmd)
}

// Get: GET /api/commandes/{id}
func (h *CommandeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	cmd, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cmd)
}

// ListByChantier: GET /api/chantiers/{chantierId}/commandes
func (h *CommandeHandler) ListByChantier(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListByChantier(r.Context(), r.PathValue("chantierId"))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}
