package gate

import (
	"context"
	"sync"
	"time"
)

// Profile is a named set of permissions assigned to a user.
type Profile interface {
	Name() string
	HasPermission(Permission) bool
}

// ProfileResolver finds the profile of a user id. A nil profile with a nil error means
// "no profile assigned".
type ProfileResolver interface {
	Resolve(ctx context.Context, userID uint) (Profile, error)
}

// StaticProfile is an in-memory profile, used for role defaults and tests.
type StaticProfile struct {
	name  string
	perms []Permission
}

func NewStaticProfile(name string, perms ...Permission) *StaticProfile {
	return &StaticProfile{name: name, perms: perms}
}

func (p *StaticProfile) Name() string { return p.name }

func (p *StaticProfile) HasPermission(requested Permission) bool {
	for _, perm := range p.perms {
		if perm.Matches(requested) {
			return true
		}
	}
	return false
}

// StaticResolver maps user ids to profiles in memory.
type StaticResolver struct {
	mu       sync.RWMutex
	profiles map[uint]Profile
}

func NewStaticResolver() *StaticResolver {
	return &StaticResolver{profiles: map[uint]Profile{}}
}

func (r *StaticResolver) Set(userID uint, p Profile) {
	r.mu.Lock()
	r.profiles[userID] = p
	r.mu.Unlock()
}

func (r *StaticResolver) Resolve(_ context.Context, userID uint) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.profiles[userID], nil
}

// CachedResolver memoizes another resolver for ttl.
type CachedResolver struct {
	inner ProfileResolver
	ttl   time.Duration
	now   func() time.Time

	mu    sync.RWMutex
	cache map[uint]cachedProfile
}

type cachedProfile struct {
	profile   Profile
	expiresAt time.Time
}

func NewCachedResolver(inner ProfileResolver, ttl time.Duration) *CachedResolver {
	return &CachedResolver{inner: inner, ttl: ttl, now: time.Now, cache: map[uint]cachedProfile{}}
}

func (r *CachedResolver) Resolve(ctx context.Context, userID uint) (Profile, error) {
	r.mu.RLock()
	entry, ok := r.cache[userID]
	r.mu.RUnlock()
	if ok && r.now().Before(entry.expiresAt) {
		return entry.profile, nil
	}

	p, err := r.inner.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.cache[userID] = cachedProfile{profile: p, expiresAt: r.now().Add(r.ttl)}
	r.mu.Unlock()
	return p, nil
}

// Invalidate drops one user, after a profile reassignment.
func (r *CachedResolver) Invalidate(userID uint) {
	r.mu.Lock()
	delete(r.cache, userID)
	r.mu.Unlock()
}

// InvalidateAll drops every entry, after profile permissions change.
func (r *CachedResolver) InvalidateAll() {
	r.mu.Lock()
	r.cache = map[uint]cachedProfile{}
	r.mu.Unlock()
}
