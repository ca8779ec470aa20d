package store

import "time"

const (
	StatusNotStarted = "Not Started"
	StatusInProgress = "In Progress"
	StatusComplete   = "Complete"
)

const (
	PlatformReels    = "Reels"
	PlatformTikTok   = "TikTok"
	PlatformYTShorts = "YT Shorts"
)

type ContentItem struct {
	ID             string
	Title          string
	Platform       string
	Status         string
	PICEmail       string
	Deadline       string // YYYY-MM-DD, no time component
	Brief          string
	LinkAsset      string
	LinkDraft      string
	FinalDriveLink string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ContentPatch enumerates every mutable field explicitly. Nil means "leave
// unchanged"; a pointer to the zero value clears the field where the column
// is nullable.
type ContentPatch struct {
	Title          *string
	Platform       *string
	Status         *string
	PICEmail       *string
	Deadline       *string
	Brief          *string
	LinkAsset      *string
	LinkDraft      *string
	FinalDriveLink *string
}

// IsZero reports whether the patch changes nothing.
func (p ContentPatch) IsZero() bool {
	return p.Title == nil && p.Platform == nil && p.Status == nil &&
		p.PICEmail == nil && p.Deadline == nil && p.Brief == nil &&
		p.LinkAsset == nil && p.LinkDraft == nil && p.FinalDriveLink == nil
}

type AuditLogEntry struct {
	ID        int64
	ContentID string
	ChangedAt time.Time
	ChangedBy string
	Field     string
	OldValue  string
	NewValue  string
}

type User struct {
	ID                    string
	Email                 string
	DisplayName           string
	PasswordHash          string
	Role                  string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// ContentFilter narrows a list query. One-field equality filter only; the
// empty filter matches everything.
type ContentFilter struct {
	Status string
}

type Summary struct {
	Total      int
	NotStarted int
	InProgress int
	Complete   int
	Overdue    int
}
