package export

import (
	"bytes"
	"html/template"
	"time"

	"cadence/api/internal/store"
)

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
}).Parse(reportTemplateHTML))

// TemplateData holds data for report rendering.
type TemplateData struct {
	Title       string
	GeneratedAt time.Time
	Columns     []TemplateColumn
	Total       int
}

// TemplateColumn is one status group in the report.
type TemplateColumn struct {
	Status string
	Items  []TemplateItem
}

// TemplateItem is one row in the report.
type TemplateItem struct {
	Title    string
	Platform string
	PICEmail string
	Deadline string
	Overdue  bool
	Link     string
}

// BuildTemplateData groups items into the three status columns, preserving
// their order.
func BuildTemplateData(title string, items []store.ContentItem, now time.Time) TemplateData {
	today := now.Format("2006-01-02")

	byStatus := map[string][]TemplateItem{}
	for _, item := range items {
		row := TemplateItem{
			Title:    item.Title,
			Platform: item.Platform,
			PICEmail: item.PICEmail,
			Deadline: item.Deadline,
			Overdue:  item.Status != store.StatusComplete && item.Deadline != "" && item.Deadline < today,
			Link:     item.FinalDriveLink,
		}
		byStatus[item.Status] = append(byStatus[item.Status], row)
	}

	columns := make([]TemplateColumn, 0, 3)
	for _, status := range []string{store.StatusNotStarted, store.StatusInProgress, store.StatusComplete} {
		columns = append(columns, TemplateColumn{Status: status, Items: byStatus[status]})
	}

	return TemplateData{
		Title:       title,
		GeneratedAt: now,
		Columns:     columns,
		Total:       len(items),
	}
}

// RenderReportHTML renders the deadline report.
func RenderReportHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const reportTemplateHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.5; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    h2 { margin-top: 2rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    table { width: 100%; border-collapse: collapse; }
    th, td { text-align: left; padding: 0.4rem 0.6rem; border-bottom: 1px solid #ddd; }
    .overdue { color: #b00020; font-weight: bold; }
    .empty { color: #999; font-style: italic; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">Generated {{formatDate .GeneratedAt "Jan 2, 2006 15:04"}} | {{.Total}} items</div>
  {{range .Columns}}
  <h2>{{.Status}}</h2>
  {{if .Items}}
  <table>
    <tr><th>Title</th><th>Platform</th><th>PIC</th><th>Deadline</th><th>Link</th></tr>
    {{range .Items}}
    <tr>
      <td>{{.Title}}</td>
      <td>{{.Platform}}</td>
      <td>{{.PICEmail}}</td>
      <td{{if .Overdue}} class="overdue"{{end}}>{{.Deadline}}</td>
      <td>{{if .Link}}<a href="{{.Link}}">final</a>{{end}}</td>
    </tr>
    {{end}}
  </table>
  {{else}}
  <p class="empty">No items.</p>
  {{end}}
  {{end}}
</body>
</html>`
