package policy_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/diewo77/go-btp/auth"
	"github.com/diewo77/go-btp/gate"
	"github.com/diewo77/go-btp/internal/apierr"
	"github.com/diewo77/go-btp/internal/config"
	"github.com/diewo77/go-btp/internal/db"
	"github.com/diewo77/go-btp/internal/logger"
	"github.com/diewo77/go-btp/internal/models"
	"github.com/diewo77/go-btp/internal/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type owned struct{ userID uint }

func (o owned) GetUserID() uint { return o.userID }

func TestOwnershipPolicy(t *testing.T) {
	p := policy.NewOwnershipPolicy()
	ctx := context.Background()

	assert.True(t, p.Can(ctx, 1, gate.ActionCreate, nil), "nil resource is left to the profile")
	assert.True(t, p.Can(ctx, 42, gate.ActionUpdate, owned{42}))
	assert.False(t, p.Can(ctx, 99, gate.ActionUpdate, owned{42}))
	assert.False(t, p.Can(ctx, 42, gate.ActionUpdate, struct{ ID uint }{42}), "non-ownable resources are denied")
}

func TestBypassPolicy(t *testing.T) {
	p := policy.NewBypassPolicy(policy.NewOwnershipPolicy(), func(_ context.Context, uid uint) bool { return uid == 7 })
	assert.True(t, p.Can(context.Background(), 7, gate.ActionDelete, owned{42}))
	assert.False(t, p.Can(context.Background(), 8, gate.ActionDelete, owned{42}))
}

func staticGate() *policy.AuthGate {
	r := gate.NewStaticResolver()
	r.Set(1, gate.NewStaticProfile("admin", gate.PermissionSuperAdmin))
	r.Set(2, gate.NewStaticProfile("manager", "chantier:*", "etat:*"))
	r.Set(3, gate.NewStaticProfile("custom", "chantier:view", "chantier:update"))
	r.Set(4, gate.NewStaticProfile("user", "chantier:view", "etat:list"))
	return policy.NewAuthGateWithResolver(r, time.Minute)
}

func asUser(uid uint) context.Context {
	return auth.WithUserID(context.Background(), uid)
}

func TestChantierPolicy(t *testing.T) {
	ag := staticGate()
	mine := &models.Chantier{UserID: 3}
	theirs := &models.Chantier{UserID: 99}

	assert.True(t, ag.Can(asUser(3), gate.ActionUpdate, gate.ResourceChantier, mine))
	assert.False(t, ag.Can(asUser(3), gate.ActionUpdate, gate.ResourceChantier, theirs))
	assert.True(t, ag.Can(asUser(3), gate.ActionView, gate.ResourceChantier, theirs))
	assert.True(t, ag.Can(asUser(2), gate.ActionUpdate, gate.ResourceChantier, theirs), "managers bypass ownership")
	assert.True(t, ag.Can(asUser(1), gate.ActionDelete, gate.ResourceChantier, theirs))
	assert.False(t, ag.Can(asUser(4), gate.ActionUpdate, gate.ResourceChantier, &models.Chantier{UserID: 4}), "profile check comes first")
}

func TestAuthorizeErrors(t *testing.T) {
	ag := staticGate()
	status := func(err error) int {
		e, ok := apierr.As(err)
		require.True(t, ok, "got %v", err)
		return e.Status
	}

	assert.Equal(t, http.StatusUnauthorized, status(ag.Authorize(context.Background(), gate.ActionList, gate.ResourceEtat, nil)))
	assert.Equal(t, http.StatusForbidden, status(ag.Authorize(asUser(4), gate.ActionDelete, gate.ResourceEtat, nil)))
	assert.Equal(t, http.StatusForbidden, status(ag.Authorize(asUser(77), gate.ActionList, gate.ResourceEtat, nil)), "unknown user has no profile")
	assert.NoError(t, ag.Authorize(asUser(4), gate.ActionList, gate.ResourceEtat, nil))
}

func TestRequireMiddlewares(t *testing.T) {
	ag := staticGate()
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	cases := []struct {
		name string
		h    http.Handler
		uid  uint
		want int
	}{
		{"permission granted", ag.RequirePermission(gate.ResourceEtat, gate.ActionList)(ok), 4, http.StatusNoContent},
		{"permission denied", ag.RequirePermission(gate.ResourceEtat, gate.ActionFinalize)(ok), 4, http.StatusForbidden},
		{"permission anonymous", ag.RequirePermission(gate.ResourceEtat, gate.ActionList)(ok), 0, http.StatusUnauthorized},
		{"admin granted", ag.RequireAdmin()(ok), 1, http.StatusNoContent},
		{"admin denied", ag.RequireAdmin()(ok), 2, http.StatusForbidden},
		{"admin anonymous", ag.RequireAdmin()(ok), 0, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.uid != 0 {
				req = req.WithContext(asUser(tc.uid))
			}
			rec := httptest.NewRecorder()
			tc.h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
			if tc.want != http.StatusNoContent {
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestRequirePortal(t *testing.T) {
	ag := staticGate()
	mux := http.NewServeMux()
	mux.Handle("GET /portail/{soustraitantId}", ag.RequirePortal("soustraitantId")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	do := func(path string, ctx context.Context) int {
		req := httptest.NewRequest(http.MethodGet, path, nil).WithContext(ctx)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec.Code
	}
	portal := auth.WithSousTraitantID(context.Background(), 5)
	assert.Equal(t, http.StatusNoContent, do("/portail/5", portal))
	assert.Equal(t, http.StatusUnauthorized, do("/portail/6", portal))
	assert.Equal(t, http.StatusNoContent, do("/portail/6", asUser(4)), "staff with etat:list")
	assert.Equal(t, http.StatusUnauthorized, do("/portail/6", context.Background()))
}

func TestDBProfileResolver(t *testing.T) {
	d, err := db.Open(config.DatabaseConfig{Driver: "sqlite", DSNRaw: "file:" + t.Name() + "?mode=memory&cache=shared"}, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, db.Migrate(d, false, "", logger.Nop()))
	require.NoError(t, db.Seed(d, "admin@example.com", "secret123"))

	var admin models.User
	require.NoError(t, d.Where("email = ?", "admin@example.com").First(&admin).Error)
	bare := models.User{Email: "bare@example.com", Password: "x", Role: models.RoleUser, Active: true}
	require.NoError(t, d.Create(&bare).Error)

	r := policy.NewDBProfileResolver(d)
	ctx := context.Background()

	p, err := r.Resolve(ctx, admin.ID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "admin", p.Name())
	assert.True(t, p.HasPermission("etat:finalize"))

	p, err = r.Resolve(ctx, bare.ID)
	require.NoError(t, err)
	assert.Nil(t, p, "no profile means no permissions")

	p, err = r.Resolve(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, p)

	require.NoError(t, d.Model(&admin).Update("active", false).Error)
	p, err = r.Resolve(ctx, admin.ID)
	require.NoError(t, err)
	assert.Nil(t, p)
}
