package export

import (
	"errors"
	"strings"
	"testing"
	"time"

	"cadence/api/internal/store"
)

type sliceSource []store.ContentItem

func (s sliceSource) Items() []store.ContentItem {
	return s
}

func testItems() []store.ContentItem {
	return []store.ContentItem{
		{ID: "cnt_1", Title: "Festival teaser", Platform: store.PlatformReels, Status: store.StatusNotStarted, PICEmail: "rina@example.com", Deadline: "2026-08-20"},
		{ID: "cnt_2", Title: "Venue walkthrough", Platform: store.PlatformTikTok, Status: store.StatusInProgress, PICEmail: "dimas@example.com", Deadline: "2026-09-10"},
		{ID: "cnt_3", Title: "Lineup recap", Platform: store.PlatformYTShorts, Status: store.StatusComplete, PICEmail: "rina@example.com", Deadline: "2026-08-01",
			FinalDriveLink: "https://drive.google.com/file/d/abc/view"},
	}
}

func TestBuildTemplateDataGroupsAndFlagsOverdue(t *testing.T) {
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	data := BuildTemplateData("Report", testItems(), now)

	if data.Total != 3 {
		t.Fatalf("total = %d, want 3", data.Total)
	}
	if len(data.Columns) != 3 {
		t.Fatalf("columns = %d, want 3", len(data.Columns))
	}
	if data.Columns[0].Status != store.StatusNotStarted || len(data.Columns[0].Items) != 1 {
		t.Fatalf("first column = %+v", data.Columns[0])
	}

	// cnt_1 is past its deadline and not complete.
	if !data.Columns[0].Items[0].Overdue {
		t.Fatal("overdue item not flagged")
	}
	// cnt_3 is past its deadline but complete, so not overdue.
	completeItems := data.Columns[2].Items
	if len(completeItems) != 1 || completeItems[0].Overdue {
		t.Fatalf("complete column = %+v", completeItems)
	}
}

func TestRenderReportHTML(t *testing.T) {
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	html, err := RenderReportHTML(BuildTemplateData("September report", testItems(), now))
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{
		"September report",
		"Festival teaser",
		"rina@example.com",
		store.StatusNotStarted,
		store.StatusInProgress,
		store.StatusComplete,
		`class="overdue"`,
		"https://drive.google.com/file/d/abc/view",
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("rendered HTML missing %q", want)
		}
	}
}

func TestExportHTML(t *testing.T) {
	svc := NewService(sliceSource(testItems()))
	svc.now = func() time.Time { return time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC) }

	result, err := svc.Export(Request{Title: "Weekly report", Format: FormatHTML})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if result.Filename != "Weekly-report.html" {
		t.Fatalf("filename = %q", result.Filename)
	}
	if result.MimeType != "text/html; charset=utf-8" {
		t.Fatalf("mime = %q", result.MimeType)
	}
	if !strings.Contains(string(result.Data), "Venue walkthrough") {
		t.Fatal("report body missing item")
	}
}

func TestExportFiltersStatus(t *testing.T) {
	svc := NewService(sliceSource(testItems()))

	result, err := svc.Export(Request{Format: FormatHTML, FilterStatus: store.StatusInProgress})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	html := string(result.Data)
	if !strings.Contains(html, "Venue walkthrough") {
		t.Fatal("filtered report missing In Progress item")
	}
	if strings.Contains(html, "Festival teaser") {
		t.Fatal("filtered report includes excluded item")
	}
}

func TestExportUnknownFormat(t *testing.T) {
	svc := NewService(sliceSource(nil))
	if _, err := svc.Export(Request{Format: Format("docx")}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"Weekly report":           "Weekly-report",
		"Q3 / launch: plan?":      "Q3--launch-plan",
		"":                        "report",
		strings.Repeat("long", 20): strings.Repeat("long", 20)[:50],
	}
	for input, want := range cases {
		if got := sanitizeFilename(input); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	got := percentEncodeForDataURL("a b<c>")
	if got != "a%20b%3Cc%3E" {
		t.Fatalf("encoded = %q", got)
	}
}
