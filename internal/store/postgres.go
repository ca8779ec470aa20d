package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

const contentColumns = `
	id, judul, platform, status, pic_email, deadline::TEXT,
	COALESCE(brief_request, ''), COALESCE(link_asset, ''),
	COALESCE(link_draft, ''), COALESCE(final_drive_link, ''),
	created_at, updated_at
`

func scanContent(row interface{ Scan(...any) error }) (ContentItem, error) {
	var item ContentItem
	err := row.Scan(
		&item.ID,
		&item.Title,
		&item.Platform,
		&item.Status,
		&item.PICEmail,
		&item.Deadline,
		&item.Brief,
		&item.LinkAsset,
		&item.LinkDraft,
		&item.FinalDriveLink,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

var contentSortColumns = map[string]string{
	"deadline":   "deadline",
	"created_at": "created_at",
	"updated_at": "updated_at",
	"judul":      "judul",
}

// ListContents returns items matching the one-field equality filter, ordered
// by a single whitelisted sort key.
func (s *PostgresStore) ListContents(ctx context.Context, filter ContentFilter, sortKey string, ascending bool) ([]ContentItem, error) {
	column, ok := contentSortColumns[sortKey]
	if !ok {
		column = "deadline"
	}
	direction := "DESC"
	if ascending {
		direction = "ASC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM contents
		WHERE ($1='' OR status=$1)
		ORDER BY %s %s, id ASC
	`, contentColumns, column, direction)

	rows, err := s.db.QueryContext(ctx, query, filter.Status)
	if err != nil {
		return nil, fmt.Errorf("list contents: %w", err)
	}
	defer rows.Close()

	items := make([]ContentItem, 0)
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetContent(ctx context.Context, contentID string) (ContentItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM contents WHERE id=$1`, contentColumns)
	item, err := scanContent(s.db.QueryRowContext(ctx, query, contentID))
	if errors.Is(err, sql.ErrNoRows) {
		return ContentItem{}, ErrNotFound
	}
	if err != nil {
		return ContentItem{}, fmt.Errorf("get content: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) InsertContent(ctx context.Context, item ContentItem) (ContentItem, error) {
	query := fmt.Sprintf(`
		INSERT INTO contents (id, judul, platform, status, pic_email, deadline, brief_request, link_asset, link_draft, final_drive_link)
		VALUES ($1, $2, $3, $4, $5, $6::DATE, NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''))
		RETURNING %s
	`, contentColumns)
	inserted, err := scanContent(s.db.QueryRowContext(ctx, query,
		item.ID, item.Title, item.Platform, item.Status, item.PICEmail,
		item.Deadline, item.Brief, item.LinkAsset, item.LinkDraft, item.FinalDriveLink,
	))
	if err != nil {
		return ContentItem{}, fmt.Errorf("insert content: %w", err)
	}
	return inserted, nil
}

// UpdateContent applies a partial patch and returns the updated row. The
// actor email is surfaced to the audit trigger via a transaction-local
// setting; the trigger appends one audit row per changed field.
func (s *PostgresStore) UpdateContent(ctx context.Context, contentID string, patch ContentPatch, actorEmail string) (ContentItem, error) {
	sets := make([]string, 0, 9)
	args := make([]any, 0, 10)
	args = append(args, contentID)

	add := func(expr string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}

	if patch.Title != nil {
		add("judul=$%d", *patch.Title)
	}
	if patch.Platform != nil {
		add("platform=$%d", *patch.Platform)
	}
	if patch.Status != nil {
		add("status=$%d", *patch.Status)
	}
	if patch.PICEmail != nil {
		add("pic_email=$%d", *patch.PICEmail)
	}
	if patch.Deadline != nil {
		add("deadline=$%d::DATE", *patch.Deadline)
	}
	if patch.Brief != nil {
		add("brief_request=NULLIF($%d, '')", *patch.Brief)
	}
	if patch.LinkAsset != nil {
		add("link_asset=NULLIF($%d, '')", *patch.LinkAsset)
	}
	if patch.LinkDraft != nil {
		add("link_draft=NULLIF($%d, '')", *patch.LinkDraft)
	}
	if patch.FinalDriveLink != nil {
		add("final_drive_link=NULLIF($%d, '')", *patch.FinalDriveLink)
	}

	if len(sets) == 0 {
		return s.GetContent(ctx, contentID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ContentItem{}, fmt.Errorf("begin update tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT set_config('cadence.actor_email', $1, true)`, actorEmail); err != nil {
		return ContentItem{}, fmt.Errorf("set audit actor: %w", err)
	}

	query := fmt.Sprintf(`
		UPDATE contents
		SET %s
		WHERE id=$1
		RETURNING %s
	`, strings.Join(sets, ", "), contentColumns)

	item, err := scanContent(tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return ContentItem{}, ErrNotFound
	}
	if err != nil {
		return ContentItem{}, fmt.Errorf("update content: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ContentItem{}, fmt.Errorf("commit update: %w", err)
	}
	return item, nil
}

// ListAudit returns the newest-first change history for one item, bounded by
// limit. Callers treat failures as non-fatal and degrade to empty.
func (s *PostgresStore) ListAudit(ctx context.Context, contentID string, limit int) ([]AuditLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content_id, changed_at, COALESCE(changed_by, ''), field, COALESCE(old_value, ''), COALESCE(new_value, '')
		FROM audit_logs
		WHERE content_id=$1
		ORDER BY changed_at DESC, id DESC
		LIMIT $2
	`, contentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	entries := make([]AuditLogEntry, 0)
	for rows.Next() {
		var entry AuditLogEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.ContentID,
			&entry.ChangedAt,
			&entry.ChangedBy,
			&entry.Field,
			&entry.OldValue,
			&entry.NewValue,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit: %w", err)
	}
	return entries, nil
}

// GetRole reads the role for a profile. Missing rows resolve to staff, the
// least privileged role.
func (s *PostgresStore) GetRole(ctx context.Context, userID string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM profiles WHERE id=$1`, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "staff", nil
	}
	if err != nil {
		return "", fmt.Errorf("read role: %w", err)
	}
	return role, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, role, is_email_verified,
			COALESCE(verification_token, ''), verification_expires_at, created_at, updated_at
		FROM profiles
		WHERE LOWER(email)=LOWER($1)
	`, email).Scan(
		&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.Role,
		&user.IsEmailVerified, &user.VerificationToken, &user.VerificationExpiresAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, role, is_email_verified,
			COALESCE(verification_token, ''), verification_expires_at, created_at, updated_at
		FROM profiles
		WHERE id=$1
	`, userID).Scan(
		&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.Role,
		&user.IsEmailVerified, &user.VerificationToken, &user.VerificationExpiresAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	role := user.Role
	if role == "" {
		role = "staff"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, email, display_name, password_hash, role, is_email_verified, verification_token, verification_expires_at)
		VALUES ($1, LOWER($2), $3, $4, $5, $6, NULLIF($7, ''), $8)
	`, user.ID, user.Email, user.DisplayName, user.PasswordHash, role,
		user.IsEmailVerified, user.VerificationToken, user.VerificationExpiresAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get password reset: %w", err)
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT p.id, p.email, p.display_name, p.role
		FROM refresh_sessions rs
		JOIN profiles p ON p.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.Email, &user.DisplayName, &user.Role)
	if err != nil {
		return User{}, err
	}
	if user.Role == "" {
		user.Role = "staff"
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

func (s *PostgresStore) SummaryCounts(ctx context.Context) (Summary, error) {
	var summary Summary
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status='Not Started'),
			COUNT(*) FILTER (WHERE status='In Progress'),
			COUNT(*) FILTER (WHERE status='Complete'),
			COUNT(*) FILTER (WHERE status <> 'Complete' AND deadline < CURRENT_DATE)
		FROM contents
	`).Scan(&summary.Total, &summary.NotStarted, &summary.InProgress, &summary.Complete, &summary.Overdue)
	if err != nil {
		return Summary{}, fmt.Errorf("summary counts: %w", err)
	}
	return summary, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
