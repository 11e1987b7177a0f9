package handlers

import (
	"net/http"
	"strconv"

	"github.com/diewo77/go-btp/gate"
	"github.com/diewo77/go-btp/httpx"
	"github.com/diewo77/go-btp/internal/logger"
	"github.com/diewo77/go-btp/internal/policy"
	"github.com/diewo77/go-btp/internal/services"
)

// EtatHandler serves both the client scope (/chantiers/{chantierId}/etats-avancement) and the
// subcontractor scope (/chantiers/{chantierId}/soustraitants/{soustraitantId}/etats-avancement).
type EtatHandler struct {
	svc  *services.EtatService
	docs *services.DocumentService
	gate *policy.AuthGate
	log  *logger.Logger
}

func NewEtatHandler(svc *services.EtatService, docs *services.DocumentService, g *policy.AuthGate, log *logger.Logger) *EtatHandler {
	return &EtatHandler{svc: svc, docs: docs, gate: g, log: log.With("handler", "etats")}
}

func (h *EtatHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeOf(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	list, err := h.svc.List(r.Context(), scope)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

// Create takes no body: the next statement is derived from the scope's history.
func (h *EtatHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeOf(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	etat, err := h.svc.Create(r.Context(), scope, currentUser(r))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, etat)
}

func (h *EtatHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, id, err := h.target(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	etat, err := h.svc.Get(r.Context(), scope, id)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, etat)
}

// Update also finalizes when est_finalise is true, which needs etat:finalize.
func (h *EtatHandler) Update(w http.ResponseWriter, r *http.Request) {
	scope, id, err := h.target(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var in services.UpdateEtatInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	if in.EstFinalise != nil && *in.EstFinalise {
		if err := h.gate.Authorize(r.Context(), gate.ActionFinalize, gate.ResourceEtat, nil); err != nil {
			httpx.Error(w, r, err)
			return
		}
	}
	etat, err := h.svc.Update(r.Context(), scope, id, in, currentUser(r))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, etat)
}

func (h *EtatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	scope, id, err := h.target(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if err := h.svc.Delete(r.Context(), scope, id, currentUser(r)); err != nil {
		httpx.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PDF: GET .../etats-avancement/{etatId}/pdf
func (h *EtatHandler) PDF(w http.ResponseWriter, r *http.Request) {
	scope, id, err := h.target(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	// scope check before rendering
	if _, err := h.svc.Get(r.Context(), scope, id); err != nil {
		httpx.Error(w, r, err)
		return
	}
	out, err := h.docs.EtatPDF(r.Context(), id)
	if err != nil {
		h.log.Error("etat pdf failed", "etat", id, "error", err)
		httpx.Error(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="`+out.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Content)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Content)
}

func (h *EtatHandler) target(r *http.Request) (services.Scope, uint, error) {
	scope, err := scopeOf(r)
	if err != nil {
		return scope, 0, err
	}
	id, err := pathID(r, "etatId")
	return scope, id, err
}
