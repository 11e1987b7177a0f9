package handlers

import (
	"net/http"
	"unicode"

	"github.com/diewo77/go-btp/httpx"
	"github.com/diewo77/go-btp/internal/services"
	"github.com/diewo77/go-btp/validation"
)

type SousTraitantHandler struct {
	svc *services.SousTraitantService
}

func NewSousTraitantHandler(svc *services.SousTraitantService) *SousTraitantHandler {
	return &SousTraitantHandler{svc: svc}
}

func (h *SousTraitantHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context())
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *SousTraitantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in services.CreateSousTraitantInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	v := validation.Violations{}
	validation.Required("nom", in.Nom, v)
	if in.Email != "" {
		validation.Email("email", in.Email, v)
	}
	if in.SIRET != "" && (len(in.SIRET) != 14 || !digits(in.SIRET)) {
		v["siret"] = "invalid_choice"
	}
	if !v.Empty() {
		invalid(w, r, v)
		return
	}
	st, err := h.svc.Create(r.Context(), in, currentUser(r))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, st)
}

// SetPIN: PUT /api/soustraitants/{id}/pin {"pin":"1234"}. An empty pin revokes portal access.
func (h *SousTraitantHandler) SetPIN(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var req struct {
		PIN string `json:"pin"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	if req.PIN != "" && (len(req.PIN) < 4 || len(req.PIN) > 8 || !digits(req.PIN)) {
		invalid(w, r, validation.Violations{"pin": "invalid_choice"})
		return
	}
	if err := h.svc.SetPIN(r.Context(), id, req.PIN, currentUser(r)); err != nil {
		httpx.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func digits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
