package handlers

import (
	"errors"
	"net/http"

	"github.com/diewo77/go-btp/httpx"
	"github.com/diewo77/go-btp/internal/apierr"
	"github.com/diewo77/go-btp/internal/models"
	"github.com/diewo77/go-btp/internal/policy"
	"gorm.io/gorm"
)

// AdminUserProfileHandler assigns profiles to users.
type AdminUserProfileHandler struct {
	db   *gorm.DB
	gate *policy.AuthGate
}

func NewAdminUserProfileHandler(d *gorm.DB, g *policy.AuthGate) *AdminUserProfileHandler {
	return &AdminUserProfileHandler{db: d, gate: g}
}

// List: GET /api/admin/users
func (h *AdminUserProfileHandler) List(w http.ResponseWriter, r *http.Request) {
	var users []models.User
	if err := h.db.WithContext(r.Context()).Preload("Profile").Order("email").Find(&users).Error; err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, users)
}

// AssignProfile: PUT /api/admin/users/{id}/profile {"profile_id": 3}. A null or zero
// profile_id removes every permission from the user.
func (h *AdminUserProfileHandler) AssignProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var req struct {
		ProfileID *uint `json:"profile_id"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	if req.ProfileID != nil && *req.ProfileID == 0 {
		req.ProfileID = nil
	}

	tx := h.db.WithContext(r.Context())
	if req.ProfileID != nil {
		var p models.Profile
		if err := tx.First(&p, *req.ProfileID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				err = apierr.NotFound("profile_not_found")
			}
			httpx.Error(w, r, err)
			return
		}
	}
	res := tx.Model(&models.User{}).Where("id = ?", userID).Update("profile_id", req.ProfileID)
	if res.Error != nil {
		httpx.Error(w, r, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		httpx.Error(w, r, apierr.NotFound("user_not_found"))
		return
	}
	h.gate.InvalidateUser(userID)
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": userID, "profile_id": req.ProfileID})
}
