// Package gate decides whether a user may perform an action on a resource type.
//
// A decision has two steps: the user's profile must grant "resource:action", then, when a
// concrete resource is supplied and a Policy is registered for its type, the policy must agree
// (ownership, scope on a chantier, ...).
package gate

import (
	"context"
	"errors"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Policy is the resource-level half of a decision. resource is nil for list/create checks.
type Policy interface {
	Can(ctx context.Context, userID uint, action Action, resource any) bool
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(ctx context.Context, userID uint, action Action, resource any) bool

func (f PolicyFunc) Can(ctx context.Context, userID uint, action Action, resource any) bool {
	return f(ctx, userID, action, resource)
}

type Gate struct {
	resolver ProfileResolver
	policies map[string]Policy
}

func New(resolver ProfileResolver) *Gate {
	return &Gate{resolver: resolver, policies: map[string]Policy{}}
}

// Register sets the policy for a resource type, replacing any previous one.
func (g *Gate) Register(resourceType string, p Policy) {
	g.policies[resourceType] = p
}

// Authorize returns ErrUnauthorized for an anonymous user and ErrForbidden when denied.
func (g *Gate) Authorize(ctx context.Context, userID uint, action Action, resourceType string, resource any) error {
	if userID == 0 {
		return ErrUnauthorized
	}
	if !g.CanProfile(ctx, userID, action, resourceType) {
		return ErrForbidden
	}
	if resource != nil {
		if p, ok := g.policies[resourceType]; ok && !p.Can(ctx, userID, action, resource) {
			return ErrForbidden
		}
	}
	return nil
}

func (g *Gate) Can(ctx context.Context, userID uint, action Action, resourceType string, resource any) bool {
	return g.Authorize(ctx, userID, action, resourceType, resource) == nil
}

// CanProfile checks the profile permission only.
func (g *Gate) CanProfile(ctx context.Context, userID uint, action Action, resourceType string) bool {
	if userID == 0 {
		return false
	}
	p, err := g.resolver.Resolve(ctx, userID)
	if err != nil || p == nil {
		return false
	}
	return p.HasPermission(NewPermission(resourceType, action))
}

// IsSuperAdmin reports whether the user's profile carries "*:*".
func (g *Gate) IsSuperAdmin(ctx context.Context, userID uint) bool {
	if userID == 0 {
		return false
	}
	p, err := g.resolver.Resolve(ctx, userID)
	if err != nil || p == nil {
		return false
	}
	return p.HasPermission(PermissionSuperAdmin)
}
