package handlers

import (
	"fmt"
	"net/http"

	"github.com/diewo77/go-btp/httpx"
	"github.com/diewo77/go-btp/internal/services"
	"github.com/diewo77/go-btp/validation"
)

const maxRecipients = 50

type EnvoiHandler struct {
	svc *services.EnvoiService
}

func NewEnvoiHandler(svc *services.EnvoiService) *EnvoiHandler {
	return &EnvoiHandler{svc: svc}
}

// SendEtat: POST /api/email/send-etat
func (h *EnvoiHandler) SendEtat(w http.ResponseWriter, r *http.Request) {
	var in services.SendEtatInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	v := validation.Violations{}
	validation.RequiredID("etat_id", in.EtatID, v)
	if len(in.To) == 0 {
		v["to"] = "required"
	}
	if len(in.To)+len(in.Cc)+len(in.Bcc) > maxRecipients {
		v["to"] = "too_long"
	}
	for field, list := range map[string][]string{"to": in.To, "cc": in.Cc, "bcc": in.Bcc} {
		for i, addr := range list {
			validation.Email(fmt.Sprintf("%s[%d]", field, i), addr, v)
		}
	}
	validation.MaxLen("subject", in.Subject, 255, v)
	if !v.Empty() {
		invalid(w, r, v)
		return
	}
	if err := h.svc.SendEtat(r.Context(), in, currentUser(r)); err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"sent": true})
}
