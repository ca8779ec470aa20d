package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"cadence/api/internal/config"
	"cadence/api/internal/store"
)

// fakeStore is an in-memory dataStore. Function fields override individual
// methods for failure injection; everything else works against the maps.
type fakeStore struct {
	mu sync.Mutex

	items  []store.ContentItem
	audit  []store.AuditLogEntry
	users  map[string]store.User // by ID
	resets map[string]string     // reset token -> user ID

	refresh map[string]string // refresh token hash -> user ID
	revoked map[string]bool   // revoked access token JTIs

	listContentsFn  func(ctx context.Context, filter store.ContentFilter, sortKey string, ascending bool) ([]store.ContentItem, error)
	updateContentFn func(ctx context.Context, contentID string, patch store.ContentPatch, actorEmail string) (store.ContentItem, error)
	getRoleFn       func(ctx context.Context, userID string) (string, error)
	pingFn          func(ctx context.Context) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   map[string]store.User{},
		resets:  map[string]string{},
		refresh: map[string]string{},
		revoked: map[string]bool{},
	}
}

func (f *fakeStore) ListContents(ctx context.Context, filter store.ContentFilter, sortKey string, ascending bool) ([]store.ContentItem, error) {
	if f.listContentsFn != nil {
		return f.listContentsFn(ctx, filter, sortKey, ascending)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.ContentItem, 0, len(f.items))
	for _, item := range f.items {
		if filter.Status == "" || item.Status == filter.Status {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeStore) GetContent(ctx context.Context, contentID string) (store.ContentItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.items {
		if item.ID == contentID {
			return item, nil
		}
	}
	return store.ContentItem{}, store.ErrNotFound
}

func (f *fakeStore) InsertContent(ctx context.Context, item store.ContentItem) (store.ContentItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.CreatedAt = time.Now()
	item.UpdatedAt = item.CreatedAt
	f.items = append(f.items, item)
	return item, nil
}

func (f *fakeStore) UpdateContent(ctx context.Context, contentID string, patch store.ContentPatch, actorEmail string) (store.ContentItem, error) {
	if f.updateContentFn != nil {
		return f.updateContentFn(ctx, contentID, patch, actorEmail)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].ID != contentID {
			continue
		}
		applyFakePatch(&f.items[i], patch)
		f.items[i].UpdatedAt = time.Now()
		return f.items[i], nil
	}
	return store.ContentItem{}, store.ErrNotFound
}

func applyFakePatch(item *store.ContentItem, patch store.ContentPatch) {
	if patch.Title != nil {
		item.Title = *patch.Title
	}
	if patch.Platform != nil {
		item.Platform = *patch.Platform
	}
	if patch.Status != nil {
		item.Status = *patch.Status
	}
	if patch.PICEmail != nil {
		item.PICEmail = *patch.PICEmail
	}
	if patch.Deadline != nil {
		item.Deadline = *patch.Deadline
	}
	if patch.Brief != nil {
		item.Brief = *patch.Brief
	}
	if patch.LinkAsset != nil {
		item.LinkAsset = *patch.LinkAsset
	}
	if patch.LinkDraft != nil {
		item.LinkDraft = *patch.LinkDraft
	}
	if patch.FinalDriveLink != nil {
		item.FinalDriveLink = *patch.FinalDriveLink
	}
}

func (f *fakeStore) ListAudit(ctx context.Context, contentID string, limit int) ([]store.AuditLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.AuditLogEntry{}
	for _, entry := range f.audit {
		if entry.ContentID == contentID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (f *fakeStore) SummaryCounts(ctx context.Context) (store.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	summary := store.Summary{Total: len(f.items)}
	for _, item := range f.items {
		switch item.Status {
		case store.StatusNotStarted:
			summary.NotStarted++
		case store.StatusInProgress:
			summary.InProgress++
		case store.StatusComplete:
			summary.Complete++
		}
	}
	return summary, nil
}

func (f *fakeStore) GetRole(ctx context.Context, userID string) (string, error) {
	if f.getRoleFn != nil {
		return f.getRoleFn(ctx, userID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.users[userID]; ok {
		return user.Role, nil
	}
	return "staff", nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (f *fakeStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.users[userID]; ok {
		return user, nil
	}
	return store.User{}, store.ErrNotFound
}

func (f *fakeStore) CreateUser(ctx context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	user.VerificationToken = token
	user.VerificationExpiresAt = &expiresAt
	f.users[userID] = user
	return nil
}

func (f *fakeStore) VerifyUserEmail(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, user := range f.users {
		if user.VerificationToken == token && token != "" {
			user.IsEmailVerified = true
			user.VerificationToken = ""
			f.users[id] = user
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	user.PasswordHash = passwordHash
	f.users[userID] = user
	return nil
}

func (f *fakeStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets[token] = userID
	return nil
}

func (f *fakeStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.resets[token]
	if !ok {
		return "", store.ErrNotFound
	}
	return userID, nil
}

func (f *fakeStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.resets, token)
	return nil
}

func (f *fakeStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[tokenHash] = userID
	return nil
}

func (f *fakeStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	f.mu.Lock()
	userID, ok := f.refresh[tokenHash]
	f.mu.Unlock()
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return f.GetUserByID(ctx, userID)
}

func (f *fakeStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, tokenHash)
	return nil
}

func (f *fakeStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[jti], nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:   "test-secret",
		AccessTTL:   time.Hour,
		RefreshTTL:  24 * time.Hour,
		RoleTimeout: 500 * time.Millisecond,
		AppBaseURL:  "http://localhost:5173",
	}
}

func newTestService(t *testing.T, fs *fakeStore) *Service {
	t.Helper()
	return New(testConfig(), fs, Options{})
}

// addVerifiedUser seeds a ready-to-sign-in account and returns it.
func addVerifiedUser(t *testing.T, fs *fakeStore, id, email, name, password, role string) store.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := store.User{
		ID:              id,
		Email:           email,
		DisplayName:     name,
		PasswordHash:    string(hash),
		Role:            role,
		IsEmailVerified: true,
	}
	fs.mu.Lock()
	fs.users[id] = user
	fs.mu.Unlock()
	return user
}

func seedBoardItems(fs *fakeStore) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.items = []store.ContentItem{
		{ID: "cnt_1", Title: "Festival teaser", Platform: store.PlatformReels, Status: store.StatusNotStarted, PICEmail: "rina@example.com", Deadline: "2026-09-05"},
		{ID: "cnt_2", Title: "Venue walkthrough", Platform: store.PlatformTikTok, Status: store.StatusInProgress, PICEmail: "dimas@example.com", Deadline: "2026-09-10"},
		{ID: "cnt_3", Title: "Lineup recap", Platform: store.PlatformYTShorts, Status: store.StatusInProgress, PICEmail: "rina@example.com", Deadline: "2026-09-12",
			FinalDriveLink: "https://drive.google.com/file/d/abc/view"},
	}
}

var errForced = fmt.Errorf("forced failure")
