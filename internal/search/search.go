// Package search finds content items by title, brief, PIC, or platform.
// Meilisearch is the primary backend with Postgres full-text search as the
// fallback when it is down or not configured.
package search

import "cadence/api/internal/store"

// Result is a single search hit returned to the caller.
type Result struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
	Platform string `json:"platform"`
	Status   string `json:"status"`
	PICEmail string `json:"picEmail"`
	Deadline string `json:"deadline"`
}

// Query describes a search request.
type Query struct {
	Text         string
	FilterStatus string // empty = all statuses
	Limit        int
	Offset       int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// ContentRecord is the data indexed per item.
type ContentRecord struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Brief    string `json:"brief"`
	Platform string `json:"platform"`
	Status   string `json:"status"`
	PICEmail string `json:"picEmail"`
	Deadline string `json:"deadline"`
}

// RecordFor converts a store row to its indexed form.
func RecordFor(item store.ContentItem) ContentRecord {
	return ContentRecord{
		ID:       item.ID,
		Title:    item.Title,
		Brief:    item.Brief,
		Platform: item.Platform,
		Status:   item.Status,
		PICEmail: item.PICEmail,
		Deadline: item.Deadline,
	}
}
