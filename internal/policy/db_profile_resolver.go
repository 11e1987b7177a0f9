package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/diewo77/go-btp/gate"
	"github.com/diewo77/go-btp/internal/models"
	"gorm.io/gorm"
)

// DBProfileResolver loads a user's profile and its permissions from the database.
type DBProfileResolver struct {
	db *gorm.DB
}

func NewDBProfileResolver(d *gorm.DB) *DBProfileResolver {
	return &DBProfileResolver{db: d}
}

// Resolve returns nil without error for unknown, inactive or profile-less users: they are
// denied everything rather than failing the request.
func (r *DBProfileResolver) Resolve(ctx context.Context, userID uint) (gate.Profile, error) {
	var u models.User
	err := r.db.WithContext(ctx).Preload("Profile.Permissions").First(&u, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve profile for user %d: %w", userID, err)
	}
	if !u.Active || u.Profile == nil {
		return nil, nil
	}
	return newProfile(u.Profile), nil
}

// profile is the gate view of a models.Profile. Codes are copied so the cached value does not
// keep the gorm row alive.
type profile struct {
	name  string
	perms []gate.Permission
}

func newProfile(p *models.Profile) *profile {
	out := &profile{name: p.Name, perms: make([]gate.Permission, 0, len(p.Permissions))}
	for _, perm := range p.Permissions {
		out.perms = append(out.perms, gate.Permission(perm.Code()))
	}
	return out
}

func (p *profile) Name() string { return p.name }

func (p *profile) HasPermission(requested gate.Permission) bool {
	for _, have := range p.perms {
		if have.Matches(requested) {
			return true
		}
	}
	return false
}
