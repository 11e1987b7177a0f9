package handlers

import (
	"net/http"

	"github.com/diewo77/go-btp/gate"
	"github.com/diewo77/go-btp/httpx"
	"github.com/diewo77/go-btp/internal/models"
	"github.com/diewo77/go-btp/internal/policy"
	"github.com/diewo77/go-btp/internal/services"
	"github.com/diewo77/go-btp/validation"
)

type ChantierHandler struct {
	svc  *services.ChantierService
	gate *policy.AuthGate
}

func NewChantierHandler(svc *services.ChantierService, g *policy.AuthGate) *ChantierHandler {
	return &ChantierHandler{svc: svc, gate: g}
}

// List: GET /api/chantiers?statut=
func (h *ChantierHandler) List(w http.ResponseWriter, r *http.Request) {
	statut := r.URL.Query().Get("statut")
	if statut != "" {
		v := validation.Violations{}
		validation.OneOf("statut", statut, models.ChantierStatuts, v)
		if !v.Empty() {
			invalid(w, r, v)
			return
		}
	}
	list, err := h.svc.List(r.Context(), statut)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

// Create: POST /api/chantiers
func (h *ChantierHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in services.CreateChantierInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	v := validation.Violations{}
	validation.Required("nom", in.Nom, v)
	validation.MaxLen("nom", in.Nom, 255, v)
	if in.ClientEmail != "" {
		validation.Email("client_email", in.ClientEmail, v)
	}
	if in.DateDebut != nil && in.DateFin != nil && in.DateFin.Before(*in.DateDebut) {
		v["date_fin"] = "out_of_range"
	}
	if !v.Empty() {
		invalid(w, r, v)
		return
	}
	c, err := h.svc.Create(r.Context(), in, currentUser(r))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

// Get: GET /api/chantiers/{chantierId}
func (h *ChantierHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Get(r.Context(), r.PathValue("chantierId"))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

// UpdateStatut: PATCH /api/chantiers/{chantierId}/statut
func (h *ChantierHandler) UpdateStatut(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Statut string `json:"statut"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	v := validation.Violations{}
	validation.OneOf("statut", req.Statut, models.ChantierStatuts, v)
	if !v.Empty() {
		invalid(w, r, v)
		return
	}
	c, err := h.svc.Get(r.Context(), r.PathValue("chantierId"))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if err := h.gate.Authorize(r.Context(), gate.ActionUpdate, gate.ResourceChantier, c); err != nil {
		httpx.Error(w, r, err)
		return
	}
	c, err = h.svc.UpdateStatut(r.Context(), c.Code, models.ChantierStatut(req.Statut), currentUser(r))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}
