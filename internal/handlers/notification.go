package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/diewo77/go-btp/httpx"
	"github.com/diewo77/go-btp/internal/logger"
	"github.com/diewo77/go-btp/internal/notify"
	"github.com/diewo77/go-btp/validation"
)

type NotificationHandler struct {
	svc *notify.Service
	log *logger.Logger
}

func NewNotificationHandler(svc *notify.Service, log *logger.Logger) *NotificationHandler {
	return &NotificationHandler{svc: svc, log: log.With("handler", "notifications")}
}

// List: GET /api/notifications?page=&limit=
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.List(r.Context(), currentUser(r), queryInt(r, "page", 1), queryInt(r, "limit", notify.DefaultLimit))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

// MarkRead: POST /api/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if err := h.svc.MarkRead(r.Context(), currentUser(r), id); err != nil {
		httpx.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead: POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.MarkAllRead(r.Context(), currentUser(r))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (h *NotificationHandler) Preferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.svc.Preferences(r.Context(), currentUser(r))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, prefs)
}

type preferenceRequest struct {
	Code  string `json:"code"`
	Email bool   `json:"email"`
	InApp bool   `json:"in_app"`
}

// SetPreferences: PUT /api/notifications/preferences with one or several entries.
func (h *NotificationHandler) SetPreferences(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Preferences []preferenceRequest `json:"preferences"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	v := validation.Violations{}
	for _, p := range req.Preferences {
		if !notify.KnownKind(p.Code) {
			v[p.Code] = "invalid_choice"
		}
	}
	if len(req.Preferences) == 0 {
		v["preferences"] = "required"
	}
	if !v.Empty() {
		invalid(w, r, v)
		return
	}
	uid := currentUser(r)
	for _, p := range req.Preferences {
		if err := h.svc.SetPreference(r.Context(), uid, p.Code, p.Email, p.InApp); err != nil {
			httpx.Error(w, r, err)
			return
		}
	}
	h.Preferences(w, r)
}

// Seed: POST /api/notifications/seed (admin). Without a body the embedded catalog is used.
func (h *NotificationHandler) Seed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Types []notify.TypeSpec `json:"types"`
	}
	if err := httpx.Decode(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Error(w, r, err)
		return
	}
	specs := req.Types
	if len(specs) == 0 {
		var err error
		if specs, err = notify.DefaultCatalog(); err != nil {
			httpx.Error(w, r, err)
			return
		}
	}
	if problems := notify.Validate(specs); len(problems) > 0 {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", problems)
		return
	}
	n, err := h.svc.SeedTypes(r.Context(), specs)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	h.log.Info("notification types seeded", "count", n, "user", currentUser(r))
	httpx.JSON(w, http.StatusOK, map[string]int{"upserted": n})
}
