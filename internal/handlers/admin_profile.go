package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/diewo77/go-btp/gate"
	"github.com/diewo77/go-btp/httpx"
	"github.com/diewo77/go-btp/internal/apierr"
	"github.com/diewo77/go-btp/internal/models"
	"github.com/diewo77/go-btp/internal/policy"
	"github.com/diewo77/go-btp/validation"
	"gorm.io/gorm"
)

// AdminProfileHandler manages authorization profiles. Any change flushes the profile cache.
type AdminProfileHandler struct {
	db   *gorm.DB
	gate *policy.AuthGate
}

func NewAdminProfileHandler(d *gorm.DB, g *policy.AuthGate) *AdminProfileHandler {
	return &AdminProfileHandler{db: d, gate: g}
}

type profileRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// List: GET /api/admin/profiles
func (h *AdminProfileHandler) List(w http.ResponseWriter, r *http.Request) {
	var profiles []models.Profile
	if err := h.db.WithContext(r.Context()).Preload("Permissions").Order("name").Find(&profiles).Error; err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, profiles)
}

// ListPermissions: GET /api/admin/permissions
func (h *AdminProfileHandler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	var perms []models.Permission
	if err := h.db.WithContext(r.Context()).Order("resource_type, action").Find(&perms).Error; err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

// Create: POST /api/admin/profiles
func (h *AdminProfileHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	v := validation.Violations{}
	validation.Required("name", req.Name, v)
	validation.MaxLen("name", req.Name, 100, v)
	perms, err := h.permissions(r, req.Permissions, v)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if !v.Empty() {
		invalid(w, r, v)
		return
	}
	p := models.Profile{Name: strings.TrimSpace(req.Name), Description: req.Description, Permissions: perms}
	if err := h.db.WithContext(r.Context()).Create(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			invalid(w, r, validation.Violations{"name": "invalid_choice"})
			return
		}
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

// SavePermissions: PUT /api/admin/profiles/{id}/permissions. System profiles are reset by the
// seeder on every start and cannot be edited here.
func (h *AdminProfileHandler) SavePermissions(w http.ResponseWriter, r *http.Request) {
	p, err := h.load(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if p.IsSystem {
		httpx.Error(w, r, apierr.Forbidden("system_profile"))
		return
	}
	var req profileRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	v := validation.Violations{}
	perms, err := h.permissions(r, req.Permissions, v)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if !v.Empty() {
		invalid(w, r, v)
		return
	}
	if err := h.db.WithContext(r.Context()).Model(p).Association("Permissions").Replace(perms); err != nil {
		httpx.Error(w, r, err)
		return
	}
	h.gate.InvalidateAll()
	p.Permissions = perms
	httpx.JSON(w, http.StatusOK, p)
}

// Delete: DELETE /api/admin/profiles/{id}
func (h *AdminProfileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, err := h.load(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if p.IsSystem {
		httpx.Error(w, r, apierr.Forbidden("system_profile"))
		return
	}
	var users int64
	if err := h.db.WithContext(r.Context()).Model(&models.User{}).Where("profile_id = ?", p.ID).Count(&users).Error; err != nil {
		httpx.Error(w, r, err)
		return
	}
	if users > 0 {
		httpx.Error(w, r, apierr.Conflict("profile_has_users"))
		return
	}
	if err := h.db.WithContext(r.Context()).Delete(p).Error; err != nil {
		httpx.Error(w, r, err)
		return
	}
	h.gate.InvalidateAll()
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminProfileHandler) load(r *http.Request) (*models.Profile, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	var p models.Profile
	err = h.db.WithContext(r.Context()).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound("profile_not_found")
	}
	return &p, err
}

// permissions maps "resource:action" codes to the stored rows. Unknown codes are reported in v.
func (h *AdminProfileHandler) permissions(r *http.Request, codes []string, v validation.Violations) ([]models.Permission, error) {
	out := make([]models.Permission, 0, len(codes))
	for _, code := range codes {
		res, act := gate.Permission(strings.TrimSpace(code)).Parse()
		if res == "" {
			v[code] = "invalid_choice"
			continue
		}
		var perm models.Permission
		err := h.db.WithContext(r.Context()).Where("resource_type = ? AND action = ?", res, string(act)).First(&perm).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			v[code] = "invalid_choice"
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, perm)
	}
	return out, nil
}
