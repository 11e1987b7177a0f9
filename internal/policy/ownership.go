package policy

import (
	"context"
	"strconv"

	"github.com/diewo77/go-btp/gate"
)

// Ownable is implemented by models that record the user who created them.
type Ownable interface {
	GetUserID() uint
}

// OwnershipPolicy only lets the owner act on a resource. Resources that are not Ownable are
// denied; a nil resource (list, create) is left to the profile check.
type OwnershipPolicy struct{}

func NewOwnershipPolicy() *OwnershipPolicy {
	return &OwnershipPolicy{}
}

func (p *OwnershipPolicy) Can(_ context.Context, userID uint, _ gate.Action, resource any) bool {
	if resource == nil {
		return true
	}
	o, ok := resource.(Ownable)
	if !ok {
		return false
	}
	return o.GetUserID() == userID
}

// BypassPolicy allows everything when bypass says so and defers to inner otherwise.
type BypassPolicy struct {
	inner  gate.Policy
	bypass func(ctx context.Context, userID uint) bool
}

func NewBypassPolicy(inner gate.Policy, bypass func(ctx context.Context, userID uint) bool) *BypassPolicy {
	return &BypassPolicy{inner: inner, bypass: bypass}
}

func (p *BypassPolicy) Can(ctx context.Context, userID uint, action gate.Action, resource any) bool {
	if p.bypass(ctx, userID) {
		return true
	}
	return p.inner.Can(ctx, userID, action, resource)
}

// NewChantierPolicy: chantiers are shared for reading, but only their creator changes them
// unless the profile holds every chantier permission (managers, admins).
func NewChantierPolicy(g *gate.Gate) gate.Policy {
	owner := NewBypassPolicy(NewOwnershipPolicy(), func(ctx context.Context, userID uint) bool {
		return g.CanProfile(ctx, userID, gate.Wildcard, gate.ResourceChantier)
	})
	return gate.PolicyFunc(func(ctx context.Context, userID uint, action gate.Action, resource any) bool {
		switch action {
		case gate.ActionList, gate.ActionView:
			return true
		}
		return owner.Can(ctx, userID, action, resource)
	})
}

func uintString(v uint) string { return strconv.FormatUint(uint64(v), 10) }
