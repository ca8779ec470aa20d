// Package export builds deadline reports over the content collection, as
// HTML or as PDF rendered through headless Chrome.
package export

import (
	"errors"

	"cadence/api/internal/store"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

// Request contains parameters for an export operation
type Request struct {
	Title        string
	Format       Format
	FilterStatus string // empty = all statuses
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ContentSource supplies the rows a report covers.
type ContentSource interface {
	Items() []store.ContentItem
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrUnsupportedFormat indicates an unknown export format was requested.
	ErrUnsupportedFormat = errors.New("export format not supported")
)
