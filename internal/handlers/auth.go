package handlers

import (
	"net/http"

	"github.com/diewo77/go-btp/auth"
	"github.com/diewo77/go-btp/httpx"
	"github.com/diewo77/go-btp/internal/logger"
	"github.com/diewo77/go-btp/internal/services"
	"github.com/diewo77/go-btp/validation"
)

type AuthHandler struct {
	users  *services.UserService
	signer *auth.Signer
	log    *logger.Logger
}

func NewAuthHandler(users *services.UserService, signer *auth.Signer, log *logger.Logger) *AuthHandler {
	return &AuthHandler{users: users, signer: signer, log: log.With("handler", "auth")}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login: POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	v := validation.Violations{}
	validation.Required("email", req.Email, v)
	validation.Required("password", req.Password, v)
	if !v.Empty() {
		invalid(w, r, v)
		return
	}
	u, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.log.Warn("login failed", "email", req.Email)
		httpx.Error(w, r, err)
		return
	}
	h.signer.CreateSession(w, u.ID)
	httpx.JSON(w, http.StatusOK, u)
}

// Logout: POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	auth.ClearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me: GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Get(r.Context(), currentUser(r))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}
