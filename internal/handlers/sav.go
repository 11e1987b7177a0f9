package handlers

import (
	"net/http"

	"github.com/diewo77/go-btp/httpx"
	"github.com/diewo77/go-btp/internal/models"
	"github.com/diewo77/go-btp/internal/services"
	"github.com/diewo77/go-btp/validation"
)

type SAVHandler struct {
	svc *services.SAVService
}

func NewSAVHandler(svc *services.SAVService) *SAVHandler {
	return &SAVHandler{svc: svc}
}

// List: GET /api/chantiers/{chantierId}/sav
func (h *SAVHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListByChantier(r.Context(), r.PathValue("chantierId"))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

// Create: POST /api/chantiers/{chantierId}/sav
func (h *SAVHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in services.CreateTicketInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	v := validation.Violations{}
	validation.Required("titre", in.Titre, v)
	validation.MaxLen("titre", in.Titre, 255, v)
	if in.Priorite != "" {
		validation.OneOf("priorite", in.Priorite, models.SAVPriorites, v)
	}
	if !v.Empty() {
		invalid(w, r, v)
		return
	}
	t, err := h.svc.Create(r.Context(), r.PathValue("chantierId"), in, currentUser(r))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, t)
}

// Update: PATCH /api/sav/{id}
func (h *SAVHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var in services.UpdateTicketInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	v := validation.Violations{}
	if in.Statut != nil {
		validation.OneOf("statut", string(*in.Statut), models.SAVStatuts, v)
	}
	if in.Priorite != nil {
		validation.OneOf("priorite", *in.Priorite, models.SAVPriorites, v)
	}
	if !v.Empty() {
		invalid(w, r, v)
		return
	}
	t, err := h.svc.Update(r.Context(), id, in, currentUser(r))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}
