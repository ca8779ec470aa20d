// Package roles resolves the acting user's role without letting a slow
// profile lookup block the UI-facing surfaces. A lookup that loses the race
// against the timeout is discarded; the session falls back to staff, the
// least privileged role.
package roles

import (
	"context"
	"log"
	"sync"
	"time"

	"cadence/api/internal/rbac"
)

// State describes where the resolver is in its lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateResolving
	StateReady
)

func (s State) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

const DefaultTimeout = 2500 * time.Millisecond

// Source is the authoritative role lookup, usually backed by Postgres.
type Source interface {
	GetRole(ctx context.Context, userID string) (string, error)
}

// Cache is an optional fast path. A hit skips the lookup race entirely.
// Both methods are best effort; cache failures never fail resolution.
type Cache interface {
	CachedRole(ctx context.Context, userID string) (string, error)
	CacheRole(ctx context.Context, userID, role string) error
	InvalidateRole(ctx context.Context, userID string) error
}

type Snapshot struct {
	State State
	Role  rbac.Role
}

type Resolver struct {
	source  Source
	cache   Cache
	timeout time.Duration

	mu    sync.Mutex
	state State
	role  rbac.Role
}

func NewResolver(source Source, cache Cache, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resolver{
		source:  source,
		cache:   cache,
		timeout: timeout,
		state:   StateUninitialized,
		role:    rbac.RoleStaff,
	}
}

// Current returns the resolver's state and the role in effect. Before the
// first resolution completes the role is staff.
func (r *Resolver) Current() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{State: r.state, Role: r.role}
}

// Resolve races the role lookup against the timeout and returns the role in
// effect afterwards. Exactly one of the two outcomes is applied; the losing
// lookup's result is dropped without side effects.
func (r *Resolver) Resolve(ctx context.Context, userID string) rbac.Role {
	r.mu.Lock()
	r.state = StateResolving
	r.mu.Unlock()

	if r.cache != nil {
		if cached, err := r.cache.CachedRole(ctx, userID); err == nil && cached != "" {
			return r.adopt(rbac.Normalize(cached))
		}
	}

	type lookup struct {
		role string
		err  error
	}
	// Buffered so a lookup that finishes after losing the race has
	// somewhere to go and its goroutine exits.
	done := make(chan lookup, 1)
	go func() {
		role, err := r.source.GetRole(ctx, userID)
		done <- lookup{role: role, err: err}
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case result := <-done:
		if result.err != nil {
			log.Printf("role lookup for %s failed, defaulting to staff: %v", userID, result.err)
			return r.adopt(rbac.RoleStaff)
		}
		role := rbac.Normalize(result.role)
		if r.cache != nil {
			if err := r.cache.CacheRole(ctx, userID, string(role)); err != nil {
				log.Printf("cache role for %s: %v", userID, err)
			}
		}
		return r.adopt(role)
	case <-timer.C:
		log.Printf("role lookup for %s timed out after %s, defaulting to staff", userID, r.timeout)
		return r.adopt(rbac.RoleStaff)
	case <-ctx.Done():
		return r.adopt(rbac.RoleStaff)
	}
}

// OnSessionChange re-resolves for the new user, or clears to staff
// immediately on sign-out (empty userID).
func (r *Resolver) OnSessionChange(ctx context.Context, userID string) rbac.Role {
	if userID == "" {
		return r.adopt(rbac.RoleStaff)
	}
	return r.Resolve(ctx, userID)
}

// Invalidate drops any cached role so the next resolution hits the source.
func (r *Resolver) Invalidate(ctx context.Context, userID string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.InvalidateRole(ctx, userID); err != nil {
		log.Printf("invalidate role for %s: %v", userID, err)
	}
}

func (r *Resolver) adopt(role rbac.Role) rbac.Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateReady
	r.role = role
	return role
}
