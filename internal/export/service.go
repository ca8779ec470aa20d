package export

import (
	"fmt"
	"time"

	"cadence/api/internal/store"
)

// Service builds deadline reports from the current collection.
type Service struct {
	source ContentSource
	now    func() time.Time
}

func NewService(source ContentSource) *Service {
	return &Service{source: source, now: time.Now}
}

// Export generates a report in the requested format. The HTML format has no
// external dependencies; PDF needs Chromium on the host.
func (s *Service) Export(req Request) (*Result, error) {
	title := req.Title
	if title == "" {
		title = "Content deadline report"
	}

	items := s.source.Items()
	if req.FilterStatus != "" {
		filtered := make([]store.ContentItem, 0, len(items))
		for _, item := range items {
			if item.Status == req.FilterStatus {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}

	html, err := RenderReportHTML(BuildTemplateData(title, items, s.now()))
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}

	switch req.Format {
	case FormatHTML, "":
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return renderPDF(html, title)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, req.Format)
	}
}
