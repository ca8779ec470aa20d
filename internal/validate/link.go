// Package validate holds the pure link predicates gating status transitions.
package validate

import "strings"

// Downstream consumers need a dereferenceable single-file link; bare folder
// links are rejected on purpose.
const (
	driveFilePath = "drive.google.com/file/d/"
	docsHost      = "docs.google.com/"
)

// IsDeliverableLink reports whether url, after trimming, points at a single
// Drive file or a Docs document. Empty and whitespace-only input is invalid.
func IsDeliverableLink(url string) bool {
	u := strings.TrimSpace(url)
	if u == "" {
		return false
	}
	return strings.Contains(u, driveFilePath) || strings.Contains(u, docsHost)
}

// NormalizeURL trims surrounding whitespace. Applied before both validation
// and persistence so stored values are canonical.
func NormalizeURL(url string) string {
	return strings.TrimSpace(url)
}
