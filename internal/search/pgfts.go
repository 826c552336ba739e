package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// PgFTS searches drafts with PostgreSQL full-text search. It backs draft
// search when Meilisearch is down and feeds full reindexing.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; drafts are unavailable anyway without Postgres.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search ranks drafts with plainto_tsquery and ts_rank, with ts_headline for
// snippets.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if !q.wants(ResultDraft) || strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := "d.fts @@ plainto_tsquery('english', $1)"
	args := []any{q.Text}
	if q.EIP > 0 {
		where += " AND d.eips @> $2::jsonb"
		args = append(args, fmt.Sprintf("[%d]", q.EIP))
	}

	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT count(*) FROM comparison_drafts d WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT d.id, d.title,
			ts_headline('english', coalesce(d.content->'meta'->>'description', d.author), plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			d.eips
		FROM comparison_drafts d
		WHERE %s
		ORDER BY ts_rank(d.fts, plainto_tsquery('english', $1)) DESC, d.updated_at DESC
		LIMIT %d OFFSET %d`, where, q.limit(), offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		r := Result{Type: ResultDraft}
		var eips []byte
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &eips); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		if err := json.Unmarshal(eips, &r.EIPs); err != nil {
			return nil, 0, fmt.Errorf("pgfts decode eips: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllDrafts returns every draft as an index record.
func (p *PgFTS) LoadAllDrafts(ctx context.Context) ([]DraftRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, title, author, coalesce(content->'meta'->>'description', ''), eips
		FROM comparison_drafts
	`)
	if err != nil {
		return nil, fmt.Errorf("load drafts: %w", err)
	}
	defer rows.Close()

	drafts := make([]DraftRecord, 0)
	for rows.Next() {
		var (
			d    DraftRecord
			eips []byte
		)
		if err := rows.Scan(&d.ID, &d.Title, &d.Author, &d.Description, &eips); err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		if err := json.Unmarshal(eips, &d.EIPs); err != nil {
			return nil, fmt.Errorf("decode draft eips: %w", err)
		}
		drafts = append(drafts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drafts: %w", err)
	}
	return drafts, nil
}
