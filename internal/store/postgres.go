package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) InsertDraft(ctx context.Context, d Draft) (Draft, error) {
	eips, err := json.Marshal(nonNilEIPs(d.EIPs))
	if err != nil {
		return Draft{}, fmt.Errorf("marshal eips: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO comparison_drafts (id, title, author, eips, content, head_commit)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6)
		RETURNING created_at, updated_at
	`, d.ID, d.Title, d.Author, string(eips), string(d.Content), d.HeadCommit).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return Draft{}, fmt.Errorf("insert draft: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) GetDraft(ctx context.Context, id string) (Draft, error) {
	var (
		d       Draft
		eips    []byte
		content []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, author, eips, content, head_commit, gist_id, published_at, created_at, updated_at
		FROM comparison_drafts
		WHERE id=$1
	`, id).Scan(&d.ID, &d.Title, &d.Author, &eips, &content, &d.HeadCommit, &d.GistID, &d.PublishedAt, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Draft{}, ErrNotFound
	}
	if err != nil {
		return Draft{}, fmt.Errorf("get draft: %w", err)
	}
	if err := json.Unmarshal(eips, &d.EIPs); err != nil {
		return Draft{}, fmt.Errorf("decode draft eips: %w", err)
	}
	d.Content = content
	return d, nil
}

// UpdateDraft replaces the draft's document and head commit.
func (s *PostgresStore) UpdateDraft(ctx context.Context, d Draft) (Draft, error) {
	eips, err := json.Marshal(nonNilEIPs(d.EIPs))
	if err != nil {
		return Draft{}, fmt.Errorf("marshal eips: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `
		UPDATE comparison_drafts
		SET title=$2, author=$3, eips=$4::jsonb, content=$5::jsonb, head_commit=$6, updated_at=NOW()
		WHERE id=$1
		RETURNING created_at, updated_at, gist_id, published_at
	`, d.ID, d.Title, d.Author, string(eips), string(d.Content), d.HeadCommit).Scan(&d.CreatedAt, &d.UpdatedAt, &d.GistID, &d.PublishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Draft{}, ErrNotFound
	}
	if err != nil {
		return Draft{}, fmt.Errorf("update draft: %w", err)
	}
	return d, nil
}

// MarkPublished records the Gist a draft was exported to.
func (s *PostgresStore) MarkPublished(ctx context.Context, id, gistID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE comparison_drafts SET gist_id=$2, published_at=$3 WHERE id=$1
	`, id, gistID, at)
	if err != nil {
		return fmt.Errorf("mark draft published: %w", err)
	}
	return requireRow(res)
}

// ListDrafts returns summaries, most recently edited first. A non-zero eip
// limits the result to drafts comparing that EIP.
func (s *PostgresStore) ListDrafts(ctx context.Context, eip int, limit int) ([]DraftSummary, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT id, title, author, eips, head_commit, gist_id, updated_at
		FROM comparison_drafts
	`
	args := []any{limit}
	if eip > 0 {
		query += ` WHERE eips @> $2::jsonb`
		args = append(args, fmt.Sprintf("[%d]", eip))
	}
	query += ` ORDER BY updated_at DESC LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	items := make([]DraftSummary, 0)
	for rows.Next() {
		var (
			item DraftSummary
			eips []byte
		)
		if err := rows.Scan(&item.ID, &item.Title, &item.Author, &eips, &item.HeadCommit, &item.GistID, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		if err := json.Unmarshal(eips, &item.EIPs); err != nil {
			return nil, fmt.Errorf("decode draft eips: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drafts: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteDraft(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM comparison_drafts WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nonNilEIPs(eips []int) []int {
	if eips == nil {
		return []int{}
	}
	return eips
}
