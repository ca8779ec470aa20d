package app

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"cadence/api/internal/session"
	"cadence/api/internal/store"
)

func newRedisBackedService(t *testing.T, fs *fakeStore) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rs, err := session.NewRedisStore("redis://"+mr.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("create redis store: %v", err)
	}
	t.Cleanup(func() { rs.Close() })
	return New(testConfig(), fs, Options{Sessions: rs}), mr
}

func TestSessionsUseRedisWhenConfigured(t *testing.T) {
	fs := newFakeStore()
	user := addVerifiedUser(t, fs, "usr_1", "rina@example.com", "Rina", "hunter2hunter2", "staff")
	svc, _ := newRedisBackedService(t, fs)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, user)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if sess.RefreshToken == "" {
		t.Fatal("expected refresh token")
	}

	// The refresh session lives in Redis, not in Postgres.
	fs.mu.Lock()
	pgSessions := len(fs.refresh)
	fs.mu.Unlock()
	if pgSessions != 0 {
		t.Fatalf("expected no Postgres refresh rows, got %d", pgSessions)
	}

	rotated, err := svc.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.UserID != "usr_1" || rotated.Token == "" {
		t.Fatalf("unexpected rotated session %+v", rotated)
	}

	// Rotation revoked the old token.
	if _, err := svc.Refresh(ctx, sess.RefreshToken); err == nil {
		t.Fatal("expected reused refresh token to fail")
	}
}

func TestRoleCacheAvoidsRepeatLookups(t *testing.T) {
	fs := newFakeStore()
	user := addVerifiedUser(t, fs, "usr_1", "rina@example.com", "Rina", "hunter2hunter2", "admin")
	var lookups atomic.Int32
	fs.getRoleFn = func(ctx context.Context, userID string) (string, error) {
		lookups.Add(1)
		return "admin", nil
	}
	svc, _ := newRedisBackedService(t, fs)
	ctx := context.Background()

	first, err := svc.CreateSession(ctx, user)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if first.Role != "admin" {
		t.Fatalf("expected admin, got %q", first.Role)
	}

	second, err := svc.CreateSession(ctx, user)
	if err != nil {
		t.Fatalf("second session: %v", err)
	}
	if second.Role != "admin" {
		t.Fatalf("expected cached admin, got %q", second.Role)
	}
	if got := lookups.Load(); got != 1 {
		t.Fatalf("expected a single role lookup thanks to the cache, got %d", got)
	}
}

func TestLogoutFallsBackToStaffState(t *testing.T) {
	fs := newFakeStore()
	user := addVerifiedUser(t, fs, "usr_1", "rina@example.com", "Rina", "hunter2hunter2", "admin")
	svc := newTestService(t, fs)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, user)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := svc.Logout(ctx, sess, sess.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}

	// The resolver snaps back to the least privileged role on sign-out.
	if current := svc.roles.Current(); current.Role != "staff" {
		t.Fatalf("expected staff after sign-out, got %q", current.Role)
	}
}

func TestBootstrapSeedsEmptyDatabase(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(t, fs)

	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	items, err := fs.ListContents(context.Background(), store.ContentFilter{}, "", true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) == 0 {
		t.Fatal("expected demo content on an empty database")
	}
	for _, item := range items {
		if item.Status == store.StatusComplete {
			t.Fatalf("seeds must not start complete: %+v", item)
		}
	}

	// A second bootstrap leaves the data alone.
	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	again, _ := fs.ListContents(context.Background(), store.ContentFilter{}, "", true)
	if len(again) != len(items) {
		t.Fatalf("bootstrap reseeded: %d -> %d items", len(items), len(again))
	}
}
