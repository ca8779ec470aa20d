package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"cadence/api/internal/archive"
	"cadence/api/internal/assets"
	"cadence/api/internal/auth"
	"cadence/api/internal/authpw"
	"cadence/api/internal/board"
	"cadence/api/internal/calendar"
	"cadence/api/internal/config"
	"cadence/api/internal/email"
	"cadence/api/internal/export"
	"cadence/api/internal/rbac"
	"cadence/api/internal/roles"
	"cadence/api/internal/search"
	"cadence/api/internal/session"
	"cadence/api/internal/store"
	"cadence/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

// dataStore is the slice of the Postgres store the service needs.
type dataStore interface {
	ListContents(ctx context.Context, filter store.ContentFilter, sortKey string, ascending bool) ([]store.ContentItem, error)
	GetContent(ctx context.Context, contentID string) (store.ContentItem, error)
	InsertContent(ctx context.Context, item store.ContentItem) (store.ContentItem, error)
	UpdateContent(ctx context.Context, contentID string, patch store.ContentPatch, actorEmail string) (store.ContentItem, error)
	ListAudit(ctx context.Context, contentID string, limit int) ([]store.AuditLogEntry, error)
	SummaryCounts(ctx context.Context) (store.Summary, error)

	GetRole(ctx context.Context, userID string) (string, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
	UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	VerifyUserEmail(ctx context.Context, token string) error
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error
	GetPasswordReset(ctx context.Context, token string) (string, error)
	MarkPasswordResetUsed(ctx context.Context, token string) error

	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)

	Ping(ctx context.Context) error
}

// refreshSessions is the Redis-backed refresh token store. The Postgres
// store remains the fallback when Redis is not configured.
type refreshSessions interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// snapshotArchive records per-item git snapshots.
type snapshotArchive interface {
	CommitSnapshot(item store.ContentItem, author, message string) (archive.CommitInfo, error)
	History(itemID string, limit int) ([]archive.CommitInfo, error)
	SnapshotAt(itemID, hash string) (store.ContentItem, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions refreshSessions
	board    *board.Controller
	roles    *roles.Resolver
	search   *search.Service
	archive  snapshotArchive
	assets   *assets.Service
	export   *export.Service
	mail     *email.Service
	auth     *authpw.Service
}

// Options carries the optional backends. Everything here may be nil; the
// service degrades to Postgres-only behavior.
type Options struct {
	Sessions *session.RedisStore
	Search   *search.Service
	Archive  *archive.Service
	Assets   *assets.Service
	Mail     *email.Service
}

func New(cfg config.Config, dataStore dataStore, opts Options) *Service {
	s := &Service{
		cfg:    cfg,
		store:  dataStore,
		board:  board.NewController(dataStore),
		search: opts.Search,
		assets: opts.Assets,
		mail:   opts.Mail,
		auth:   authpw.NewService(dataStore),
	}

	var roleCache roles.Cache
	if opts.Sessions != nil {
		s.sessions = opts.Sessions
		roleCache = opts.Sessions
	}
	s.roles = roles.NewResolver(dataStore, roleCache, cfg.RoleTimeout)

	if opts.Archive != nil {
		s.archive = opts.Archive
	}

	s.export = export.NewService(s.board)
	s.board.SetOnSaved(func(item store.ContentItem) {
		s.indexContent(item)
	})

	return s
}

// Bootstrap seeds demo content on an empty database, loads the board, and
// kicks off a full search reindex.
func (s *Service) Bootstrap(ctx context.Context) error {
	if err := s.seedDemoContent(ctx); err != nil {
		return fmt.Errorf("seed demo content: %w", err)
	}
	if err := s.board.Reload(ctx); err != nil {
		return fmt.Errorf("load board: %w", err)
	}
	if s.search != nil {
		go s.search.ReindexAllFromPG(context.Background())
	}
	return nil
}

func (s *Service) seedDemoContent(ctx context.Context) error {
	existing, err := s.store.ListContents(ctx, store.ContentFilter{}, "", true)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	today := time.Now()
	seeds := []store.ContentItem{
		{
			Title:    "Festival teaser",
			Platform: store.PlatformReels,
			Status:   store.StatusNotStarted,
			PICEmail: "rina@example.com",
			Deadline: today.AddDate(0, 0, 4).Format("2006-01-02"),
			Brief:    "15s teaser cut from last year's aftermovie.",
		},
		{
			Title:    "Venue walkthrough",
			Platform: store.PlatformTikTok,
			Status:   store.StatusInProgress,
			PICEmail: "dimas@example.com",
			Deadline: today.AddDate(0, 0, 9).Format("2006-01-02"),
			Brief:    "Handheld walkthrough of the main stage build.",
		},
		{
			Title:    "Lineup announcement",
			Platform: store.PlatformYTShorts,
			Status:   store.StatusNotStarted,
			PICEmail: "rina@example.com",
			Deadline: today.AddDate(0, 0, 14).Format("2006-01-02"),
		},
	}

	for _, seed := range seeds {
		seed.ID = util.NewID("cnt")
		created, err := s.store.InsertContent(ctx, seed)
		if err != nil {
			return err
		}
		s.recordSnapshot(created, "system", "seed")
	}
	return nil
}

// AuthPasswordService exposes the signup and password flows to the HTTP
// layer.
func (s *Service) AuthPasswordService() *authpw.Service {
	return s.auth
}

func (s *Service) SMTPConfigured() bool {
	return s.mail != nil && s.mail.IsConfigured()
}

// SendVerificationMail delivers the signup verification link in the
// background. Failures are logged, never surfaced to the caller.
func (s *Service) SendVerificationMail(to, userName, token string) {
	if !s.SMTPConfigured() {
		return
	}
	url := s.cfg.AppBaseURL + "/verify-email?token=" + token
	go func() {
		if err := s.mail.SendVerificationEmail(to, userName, url); err != nil {
			log.Printf("send verification email to %s: %v", to, err)
		}
	}()
}

func (s *Service) SendPasswordResetMail(to, userName, token string) {
	if !s.SMTPConfigured() {
		return
	}
	url := s.cfg.AppBaseURL + "/reset-password?token=" + token
	go func() {
		if err := s.mail.SendPasswordResetEmail(to, userName, url); err != nil {
			log.Printf("send password reset email to %s: %v", to, err)
		}
	}()
}

// SendDeadlineReminders mails each PIC their incomplete items due within the
// next three days or overdue. Per-recipient failures are logged and the sweep
// continues.
func (s *Service) SendDeadlineReminders(ctx context.Context) error {
	if !s.SMTPConfigured() {
		return nil
	}
	items, err := s.store.ListContents(ctx, store.ContentFilter{}, "deadline", true)
	if err != nil {
		return fmt.Errorf("list contents for reminders: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, 3).Format("2006-01-02")
	due := make(map[string][]store.ContentItem)
	for _, item := range items {
		if item.Status == store.StatusComplete {
			continue
		}
		if item.Deadline > cutoff {
			continue
		}
		due[item.PICEmail] = append(due[item.PICEmail], item)
	}

	for picEmail, picItems := range due {
		name := picEmail
		if user, err := s.store.GetUserByEmail(ctx, picEmail); err == nil {
			name = user.DisplayName
		}
		if err := s.mail.SendDeadlineReminder(picEmail, name, picItems); err != nil {
			log.Printf("send deadline reminder to %s: %v", picEmail, err)
		}
	}
	return nil
}

// CreateSession resolves the user's role and issues a token pair. Role
// resolution is capped by the configured timeout and falls back to staff.
func (s *Service) CreateSession(ctx context.Context, user store.User) (Session, error) {
	role := s.roles.OnSessionChange(ctx, user.ID)
	return s.issueSession(ctx, user, role)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.lookupRefresh(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	s.revokeRefresh(ctx, tokenHash)

	role := s.roles.Resolve(ctx, user.ID)
	return s.issueSession(ctx, user, role)
}

func (s *Service) lookupRefresh(ctx context.Context, tokenHash string) (store.User, error) {
	if s.sessions != nil {
		user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
		if err == nil {
			return user, nil
		}
	}
	return s.store.LookupRefreshSession(ctx, tokenHash)
}

func (s *Service) revokeRefresh(ctx context.Context, tokenHash string) {
	if s.sessions != nil {
		_ = s.sessions.RevokeRefreshSession(ctx, tokenHash)
	}
	_ = s.store.RevokeRefreshSession(ctx, tokenHash)
}

func (s *Service) issueSession(ctx context.Context, user store.User, role rbac.Role) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Email: user.Email,
		Name:  user.DisplayName,
		Role:  string(role),
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	tokenHash := auth.HashToken(refresh)
	if s.sessions != nil {
		sessionUser := user
		sessionUser.Role = string(role)
		if err := s.sessions.SaveRefreshSession(ctx, tokenHash, sessionUser, refreshExpires); err != nil {
			return Session{}, err
		}
	} else if err := s.store.SaveRefreshSession(ctx, tokenHash, user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		Role:         string(role),
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		Role:      string(rbac.Normalize(user.Role)),
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, sess Session, refreshToken string) error {
	if sess.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, sess.JTI, sess.ExpiresAt)
	}
	if refreshToken != "" {
		s.revokeRefresh(ctx, auth.HashToken(refreshToken))
	}
	s.roles.OnSessionChange(ctx, "")
	return nil
}

type CreateContentInput struct {
	Title     string
	Platform  string
	PICEmail  string
	Deadline  string
	Brief     string
	LinkAsset string
	LinkDraft string
}

// CreateContent inserts a new item in Not Started. Staff always become the
// PIC of items they create; admins may assign anyone.
func (s *Service) CreateContent(ctx context.Context, sess Session, in CreateContentInput) (store.ContentItem, error) {
	if in.Title == "" {
		return store.ContentItem{}, validationError("title is required", map[string]any{"field": "title"})
	}
	if !validPlatform(in.Platform) {
		return store.ContentItem{}, validationError("platform must be Reels, TikTok, or YT Shorts", map[string]any{"field": "platform"})
	}
	if _, err := time.Parse("2006-01-02", in.Deadline); err != nil {
		return store.ContentItem{}, validationError("deadline must be YYYY-MM-DD", map[string]any{"field": "deadline"})
	}

	pic := in.PICEmail
	if pic == "" || !rbac.CanAssignPIC(rbac.Normalize(sess.Role)) {
		pic = sess.Email
	}

	created, err := s.store.InsertContent(ctx, store.ContentItem{
		ID:        util.NewID("cnt"),
		Title:     in.Title,
		Platform:  in.Platform,
		Status:    store.StatusNotStarted,
		PICEmail:  pic,
		Deadline:  in.Deadline,
		Brief:     in.Brief,
		LinkAsset: in.LinkAsset,
		LinkDraft: in.LinkDraft,
	})
	if err != nil {
		return store.ContentItem{}, fmt.Errorf("insert content: %w", err)
	}

	s.board.Adopt(created)
	s.recordSnapshot(created, sess.Email, "create")
	s.indexContent(created)
	return created, nil
}

func (s *Service) ListContents(ctx context.Context, status, sortKey string, ascending bool) ([]store.ContentItem, error) {
	if status != "" && !validStatus(status) {
		return nil, validationError("unknown status filter", map[string]any{"field": "status"})
	}
	return s.store.ListContents(ctx, store.ContentFilter{Status: status}, sortKey, ascending)
}

func (s *Service) GetContent(ctx context.Context, contentID string) (store.ContentItem, error) {
	return s.store.GetContent(ctx, contentID)
}

// BoardColumns returns the kanban grouping from the in-memory collection,
// which includes optimistic statuses of in-flight moves.
func (s *Service) BoardColumns() map[string][]store.ContentItem {
	return s.board.ByStatus()
}

// SaveContent applies a field-level edit. Gating and link validation happen
// in the board layer before any store call.
func (s *Service) SaveContent(ctx context.Context, sess Session, contentID string, patch store.ContentPatch) (store.ContentItem, error) {
	if patch.Status != nil && !validStatus(*patch.Status) {
		return store.ContentItem{}, validationError("unknown status", map[string]any{"field": "status"})
	}
	if patch.Platform != nil && !validPlatform(*patch.Platform) {
		return store.ContentItem{}, validationError("unknown platform", map[string]any{"field": "platform"})
	}

	updated, err := s.board.Save(ctx, contentID, patch, sess.Email, rbac.Normalize(sess.Role))
	if err != nil {
		return store.ContentItem{}, err
	}
	s.recordSnapshot(updated, sess.Email, "edit")
	return updated, nil
}

// TransitionContent moves an item between board columns. The returned bool
// reports whether a store write happened; dropped moves return the current
// item with no error.
func (s *Service) TransitionContent(ctx context.Context, sess Session, contentID, target string) (store.ContentItem, bool, error) {
	if !validStatus(target) {
		return store.ContentItem{}, false, validationError("unknown target status", map[string]any{"field": "status"})
	}

	if item, ok := s.board.Get(contentID); ok {
		if !rbac.CanEditItem(rbac.Normalize(sess.Role), sess.Email, item.PICEmail) {
			return store.ContentItem{}, false, board.ErrForbidden
		}
	}

	updated, applied, err := s.board.Transition(ctx, contentID, target, sess.Email)
	if err != nil {
		return store.ContentItem{}, false, err
	}
	if applied {
		s.recordSnapshot(updated, sess.Email, "transition")
		s.indexContent(updated)
	}
	return updated, applied, nil
}

// Audit returns the change history newest first. A read failure degrades to
// an empty list; the audit pane is never the reason an item page breaks.
func (s *Service) Audit(ctx context.Context, contentID string, limit int) []store.AuditLogEntry {
	entries, err := s.store.ListAudit(ctx, contentID, limit)
	if err != nil {
		log.Printf("list audit for %s: %v", contentID, err)
		return []store.AuditLogEntry{}
	}
	if entries == nil {
		entries = []store.AuditLogEntry{}
	}
	return entries
}

func (s *Service) History(contentID string, limit int) ([]archive.CommitInfo, error) {
	if s.archive == nil {
		return []archive.CommitInfo{}, nil
	}
	return s.archive.History(contentID, limit)
}

func (s *Service) SnapshotAt(contentID, hash string) (store.ContentItem, error) {
	if s.archive == nil {
		return store.ContentItem{}, domainError(404, "NOT_FOUND", "Snapshot archive not configured", nil)
	}
	return s.archive.SnapshotAt(contentID, hash)
}

// CalendarMonth projects deadlines onto a month grid. An empty month means
// the current month.
func (s *Service) CalendarMonth(ctx context.Context, month, status string) (calendar.Month, error) {
	ref := time.Now()
	if month != "" {
		parsed, err := calendar.ParseMonth(month)
		if err != nil {
			return calendar.Month{}, validationError("month must be YYYY-MM", map[string]any{"field": "month"})
		}
		ref = parsed
	}
	if status != "" && !validStatus(status) {
		return calendar.Month{}, validationError("unknown status filter", map[string]any{"field": "status"})
	}

	items, err := s.store.ListContents(ctx, store.ContentFilter{Status: status}, "deadline", true)
	if err != nil {
		return calendar.Month{}, fmt.Errorf("list contents for calendar: %w", err)
	}
	return calendar.Project(items, ref, time.Now()), nil
}

func (s *Service) SearchContents(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}}
	}
	return s.search.Search(q)
}

func (s *Service) ExportReport(ctx context.Context, req export.Request) (*export.Result, error) {
	if err := s.board.Reload(ctx); err != nil {
		return nil, fmt.Errorf("reload board for export: %w", err)
	}
	return s.export.Export(req)
}

func (s *Service) Summary(ctx context.Context) (store.Summary, error) {
	return s.store.SummaryCounts(ctx)
}

// UploadAsset stores a file for an item and returns the object key with a
// presigned download link.
func (s *Service) UploadAsset(ctx context.Context, sess Session, contentID, filename, contentType string, size int64, body io.Reader) (string, string, error) {
	if s.assets == nil {
		return "", "", domainError(503, "ASSETS_UNAVAILABLE", "Object storage not configured", nil)
	}
	item, err := s.store.GetContent(ctx, contentID)
	if err != nil {
		return "", "", err
	}
	if !rbac.CanEditItem(rbac.Normalize(sess.Role), sess.Email, item.PICEmail) {
		return "", "", board.ErrForbidden
	}

	key, err := s.assets.Upload(ctx, contentID, filename, contentType, size, body)
	if err != nil {
		return "", "", fmt.Errorf("upload asset: %w", err)
	}
	link, err := s.assets.PresignedLink(ctx, key, 24*time.Hour)
	if err != nil {
		return "", "", fmt.Errorf("presign asset: %w", err)
	}
	return key, link, nil
}

func (s *Service) ListAssets(ctx context.Context, contentID string) ([]map[string]any, error) {
	if s.assets == nil {
		return []map[string]any{}, nil
	}
	keys, err := s.assets.List(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	out := make([]map[string]any, 0, len(keys))
	for _, key := range keys {
		link, err := s.assets.PresignedLink(ctx, key, 24*time.Hour)
		if err != nil {
			return nil, fmt.Errorf("presign asset: %w", err)
		}
		out = append(out, map[string]any{"key": key, "url": link})
	}
	return out, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) recordSnapshot(item store.ContentItem, actor, action string) {
	if s.archive == nil {
		return
	}
	go func() {
		if _, err := s.archive.CommitSnapshot(item, actor, action+" "+item.ID); err != nil {
			log.Printf("archive snapshot for %s: %v", item.ID, err)
		}
	}()
}

func (s *Service) indexContent(item store.ContentItem) {
	if s.search == nil {
		return
	}
	s.search.IndexContent(search.RecordFor(item))
}

func validStatus(status string) bool {
	switch status {
	case store.StatusNotStarted, store.StatusInProgress, store.StatusComplete:
		return true
	}
	return false
}

func validPlatform(platform string) bool {
	switch platform {
	case store.PlatformReels, store.PlatformTikTok, store.PlatformYTShorts:
		return true
	}
	return false
}
