package roles

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"cadence/api/internal/rbac"
)

type sourceFunc func(ctx context.Context, userID string) (string, error)

func (f sourceFunc) GetRole(ctx context.Context, userID string) (string, error) {
	return f(ctx, userID)
}

type memCache struct {
	roles map[string]string
}

func newMemCache() *memCache {
	return &memCache{roles: map[string]string{}}
}

func (c *memCache) CachedRole(_ context.Context, userID string) (string, error) {
	return c.roles[userID], nil
}

func (c *memCache) CacheRole(_ context.Context, userID, role string) error {
	c.roles[userID] = role
	return nil
}

func (c *memCache) InvalidateRole(_ context.Context, userID string) error {
	delete(c.roles, userID)
	return nil
}

func TestResolveFastLookupWins(t *testing.T) {
	r := NewResolver(sourceFunc(func(context.Context, string) (string, error) {
		return "admin", nil
	}), nil, time.Second)

	role := r.Resolve(context.Background(), "usr_1")
	if role != rbac.RoleAdmin {
		t.Fatalf("role = %q, want admin", role)
	}
	snap := r.Current()
	if snap.State != StateReady || snap.Role != rbac.RoleAdmin {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestResolveSlowLookupLosesToTimer(t *testing.T) {
	release := make(chan struct{})
	r := NewResolver(sourceFunc(func(context.Context, string) (string, error) {
		<-release
		return "admin", nil
	}), nil, 20*time.Millisecond)

	role := r.Resolve(context.Background(), "usr_1")
	if role != rbac.RoleStaff {
		t.Fatalf("role = %q, want staff after timeout", role)
	}

	// Let the lookup finish late; its result must not take effect.
	close(release)
	time.Sleep(20 * time.Millisecond)
	if snap := r.Current(); snap.Role != rbac.RoleStaff {
		t.Fatalf("late lookup applied: %+v", snap)
	}
}

func TestResolveErrorDefaultsToStaff(t *testing.T) {
	r := NewResolver(sourceFunc(func(context.Context, string) (string, error) {
		return "", errors.New("connection refused")
	}), nil, time.Second)

	if role := r.Resolve(context.Background(), "usr_1"); role != rbac.RoleStaff {
		t.Fatalf("role = %q, want staff on error", role)
	}
}

func TestResolveUnknownRoleNormalizedToStaff(t *testing.T) {
	r := NewResolver(sourceFunc(func(context.Context, string) (string, error) {
		return "superuser", nil
	}), nil, time.Second)

	if role := r.Resolve(context.Background(), "usr_1"); role != rbac.RoleStaff {
		t.Fatalf("role = %q, want staff for unknown role string", role)
	}
}

func TestResolveCacheHitSkipsLookup(t *testing.T) {
	var calls atomic.Int32
	cache := newMemCache()
	cache.roles["usr_1"] = "admin"

	r := NewResolver(sourceFunc(func(context.Context, string) (string, error) {
		calls.Add(1)
		return "staff", nil
	}), cache, time.Second)

	if role := r.Resolve(context.Background(), "usr_1"); role != rbac.RoleAdmin {
		t.Fatalf("role = %q, want cached admin", role)
	}
	if calls.Load() != 0 {
		t.Fatalf("source called %d times despite cache hit", calls.Load())
	}
}

func TestResolvePopulatesCache(t *testing.T) {
	cache := newMemCache()
	r := NewResolver(sourceFunc(func(context.Context, string) (string, error) {
		return "admin", nil
	}), cache, time.Second)

	r.Resolve(context.Background(), "usr_1")
	if cache.roles["usr_1"] != "admin" {
		t.Fatalf("cache = %q, want admin", cache.roles["usr_1"])
	}
}

func TestOnSessionChange(t *testing.T) {
	r := NewResolver(sourceFunc(func(context.Context, string) (string, error) {
		return "admin", nil
	}), nil, time.Second)

	if role := r.OnSessionChange(context.Background(), "usr_1"); role != rbac.RoleAdmin {
		t.Fatalf("sign-in role = %q, want admin", role)
	}

	// Sign-out clears immediately without a lookup.
	if role := r.OnSessionChange(context.Background(), ""); role != rbac.RoleStaff {
		t.Fatalf("sign-out role = %q, want staff", role)
	}
	if snap := r.Current(); snap.Role != rbac.RoleStaff {
		t.Fatalf("snapshot after sign-out = %+v", snap)
	}
}

func TestInvalidateForcesNextLookup(t *testing.T) {
	var calls atomic.Int32
	cache := newMemCache()
	r := NewResolver(sourceFunc(func(context.Context, string) (string, error) {
		calls.Add(1)
		return "admin", nil
	}), cache, time.Second)

	ctx := context.Background()
	r.Resolve(ctx, "usr_1")
	r.Resolve(ctx, "usr_1")
	if calls.Load() != 1 {
		t.Fatalf("source calls = %d, want 1 before invalidation", calls.Load())
	}

	r.Invalidate(ctx, "usr_1")
	r.Resolve(ctx, "usr_1")
	if calls.Load() != 2 {
		t.Fatalf("source calls = %d, want 2 after invalidation", calls.Load())
	}
}
