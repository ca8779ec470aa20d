package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search over the
// generated search_tsv column on contents.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := "search_tsv @@ plainto_tsquery('simple', $1)"
	args := []any{q.Text}
	if q.FilterStatus != "" {
		where += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, q.FilterStatus)
	}

	var total int
	countSQL := "SELECT count(*) FROM contents WHERE " + where
	if err := p.db.QueryRow(countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT id, judul,
			ts_headline('simple', coalesce(brief_request, ''), plainto_tsquery('simple', $1), 'MaxFragments=1,MaxWords=30'),
			platform, status, pic_email, deadline::TEXT
		FROM contents
		WHERE %s
		ORDER BY ts_rank(search_tsv, plainto_tsquery('simple', $1)) DESC
		LIMIT %d OFFSET %d
	`, where, limit, offset)

	rows, err := p.db.Query(dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.Platform, &r.Status, &r.PICEmail, &r.Deadline); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("pgfts rows: %w", err)
	}
	return results, total, nil
}

// LoadAllRecords reads every content row for a full reindex.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ContentRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, judul, COALESCE(brief_request, ''), platform, status, pic_email, deadline::TEXT
		FROM contents
	`)
	if err != nil {
		return nil, fmt.Errorf("load content records: %w", err)
	}
	defer rows.Close()

	var records []ContentRecord
	for rows.Next() {
		var r ContentRecord
		if err := rows.Scan(&r.ID, &r.Title, &r.Brief, &r.Platform, &r.Status, &r.PICEmail, &r.Deadline); err != nil {
			return nil, fmt.Errorf("scan content record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
