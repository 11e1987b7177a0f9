// Package policy wires the gate to the database and to HTTP: profile resolution, ownership
// rules and the permission middlewares used by the router.
package policy

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/diewo77/go-btp/auth"
	"github.com/diewo77/go-btp/gate"
	"github.com/diewo77/go-btp/httpx"
	"github.com/diewo77/go-btp/i18n"
	"github.com/diewo77/go-btp/internal/apierr"
	"gorm.io/gorm"
)

// AuthGate is the single authorization point of the API: the gate plus its profile cache.
type AuthGate struct {
	gate  *gate.Gate
	cache *gate.CachedResolver
}

// NewAuthGate resolves profiles from d, cached for cacheTTL, and registers the chantier
// ownership policy.
func NewAuthGate(d *gorm.DB, cacheTTL time.Duration) *AuthGate {
	return NewAuthGateWithResolver(NewDBProfileResolver(d), cacheTTL)
}

func NewAuthGateWithResolver(r gate.ProfileResolver, cacheTTL time.Duration) *AuthGate {
	cached := gate.NewCachedResolver(r, cacheTTL)
	ag := &AuthGate{gate: gate.New(cached), cache: cached}
	ag.RegisterPolicy(gate.ResourceChantier, NewChantierPolicy(ag.gate))
	return ag
}

func (ag *AuthGate) RegisterPolicy(resourceType string, p gate.Policy) {
	ag.gate.Register(resourceType, p)
}

// Authorize checks the session user against action on resourceType. The result is an
// *apierr.Error (401 or 403) ready for httpx.Error.
func (ag *AuthGate) Authorize(ctx context.Context, action gate.Action, resourceType string, resource any) error {
	userID, _ := auth.UserIDFromContext(ctx)
	err := ag.gate.Authorize(ctx, userID, action, resourceType, resource)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gate.ErrUnauthorized):
		return apierr.New(http.StatusUnauthorized, "unauthorized", err)
	default:
		return apierr.New(http.StatusForbidden, "forbidden", err)
	}
}

func (ag *AuthGate) Can(ctx context.Context, action gate.Action, resourceType string, resource any) bool {
	return ag.Authorize(ctx, action, resourceType, resource) == nil
}

// CanProfile ignores resource policies.
func (ag *AuthGate) CanProfile(ctx context.Context, action gate.Action, resourceType string) bool {
	userID, ok := auth.UserIDFromContext(ctx)
	return ok && ag.gate.CanProfile(ctx, userID, action, resourceType)
}

func (ag *AuthGate) IsAdmin(ctx context.Context) bool {
	userID, ok := auth.UserIDFromContext(ctx)
	return ok && ag.gate.IsSuperAdmin(ctx, userID)
}

// InvalidateUser must be called when a user's profile assignment changes.
func (ag *AuthGate) InvalidateUser(userID uint) {
	ag.cache.Invalidate(userID)
}

// InvalidateAll must be called when a profile's permissions change.
func (ag *AuthGate) InvalidateAll() {
	ag.cache.InvalidateAll()
}

// RequirePermission rejects requests whose profile lacks resourceType:action.
func (ag *AuthGate) RequirePermission(resourceType string, action gate.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := ag.Authorize(r.Context(), action, resourceType, nil); err != nil {
				httpx.Error(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin only lets "*:*" profiles through.
func (ag *AuthGate) RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lang := i18n.LangFromContext(r.Context())
			if _, ok := auth.UserIDFromContext(r.Context()); !ok {
				httpx.JSONError(w, http.StatusUnauthorized, "unauthorized", i18n.T(lang, "unauthorized"))
				return
			}
			if !ag.IsAdmin(r.Context()) {
				httpx.JSONError(w, http.StatusForbidden, "forbidden", i18n.T(lang, "forbidden"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePortal serves the sous-traitant portal: the portal cookie must name the sous-traitant
// in the {param} path value. Staff sessions allowed to list états are let through too.
func (ag *AuthGate) RequirePortal(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sid, ok := auth.SousTraitantIDFromContext(r.Context()); ok && r.PathValue(param) == uintString(sid) {
				next.ServeHTTP(w, r)
				return
			}
			if ag.CanProfile(r.Context(), gate.ActionList, gate.ResourceEtat) {
				next.ServeHTTP(w, r)
				return
			}
			lang := i18n.LangFromContext(r.Context())
			httpx.JSONError(w, http.StatusUnauthorized, "unauthorized", i18n.T(lang, "unauthorized"))
		})
	}
}
