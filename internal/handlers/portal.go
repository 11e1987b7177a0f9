package handlers

import (
	"net/http"

	"github.com/diewo77/go-btp/auth"
	"github.com/diewo77/go-btp/httpx"
	"github.com/diewo77/go-btp/internal/logger"
	"github.com/diewo77/go-btp/internal/services"
	"github.com/diewo77/go-btp/validation"
)

// PortalHandler is the read-only access of a sous-traitant to its statements.
type PortalHandler struct {
	soustraitants *services.SousTraitantService
	etats         *services.EtatService
	signer        *auth.Signer
	log           *logger.Logger
}

func NewPortalHandler(st *services.SousTraitantService, etats *services.EtatService, signer *auth.Signer, log *logger.Logger) *PortalHandler {
	return &PortalHandler{soustraitants: st, etats: etats, signer: signer, log: log.With("handler", "portal")}
}

// Login: POST /api/portail/{soustraitantId}/login {"pin":"..."}
func (h *PortalHandler) Login(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "soustraitantId")
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
	v := validation.Violations{}
	validation.Required("pin", req.PIN, v)
	if !v.Empty() {
		invalid(w, r, v)
		return
	}
	st, err := h.soustraitants.VerifyPIN(r.Context(), id, req.PIN)
	if err != nil {
		h.log.Warn("portal login failed", "soustraitant", id)
		httpx.Error(w, r, err)
		return
	}
	h.signer.CreatePortalSession(w, st.ID)
	httpx.JSON(w, http.StatusOK, st)
}

// Etats: GET /api/portail/{soustraitantId}/etats-avancement
func (h *PortalHandler) Etats(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "soustraitantId")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	list, err := h.etats.ListBySousTraitant(r.Context(), id)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}
