package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const recordColumns = `id, url, title, node_json, parsed_text, is_parsed, status,
	page_title, content_hash, created_at, updated_at`

// Get returns the record with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM bookmarks WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get", err)
	}
	return rec, nil
}

// Put inserts or replaces a record. Children of the node are not stored.
// An unparsed record never replaces a parsed one: such a write is a no-op.
func (s *Store) Put(ctx context.Context, rec *Record) error {
	now := time.Now().UnixMilli()
	if rec.CreatedAt == 0 {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = StatusQueued
	}

	node := rec.Node
	node.Children = nil
	nodeJSON, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("put %s: marshal node: %w", rec.ID, err)
	}

	_, err = s.exec(ctx,
		`INSERT INTO bookmarks (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			url=excluded.url, title=excluded.title, node_json=excluded.node_json,
			parsed_text=excluded.parsed_text, is_parsed=excluded.is_parsed,
			status=excluded.status, page_title=excluded.page_title,
			content_hash=excluded.content_hash, updated_at=excluded.updated_at
		WHERE bookmarks.is_parsed = 0 OR excluded.is_parsed = 1`,
		rec.ID, rec.Node.URL, rec.Node.Title, string(nodeJSON), rec.ParsedText,
		rec.IsParsed, rec.Status, rec.PageTitle, rec.ContentHash,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return storageErr("put", err)
	}
	return nil
}

// Delete removes a record. Deleting a missing id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.exec(ctx, `DELETE FROM bookmarks WHERE id = ?`, id); err != nil {
		return storageErr("delete", err)
	}
	return nil
}

// Clear removes every record and the fetch log. The index blob namespace is
// left untouched; see ClearIndexBlob.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.exec(ctx, `DELETE FROM bookmarks`); err != nil {
		return storageErr("clear", err)
	}
	if _, err := s.exec(ctx, `DELETE FROM fetch_log`); err != nil {
		return storageErr("clear fetch log", err)
	}
	return nil
}

// All returns every record in creation order.
func (s *Store) All(ctx context.Context) ([]*Record, error) {
	return s.list(ctx, `SELECT `+recordColumns+` FROM bookmarks ORDER BY created_at, rowid`)
}

// ListParsed returns records with is_parsed = 1 in creation order.
func (s *Store) ListParsed(ctx context.Context) ([]*Record, error) {
	return s.list(ctx, `SELECT `+recordColumns+` FROM bookmarks
		WHERE is_parsed = 1 ORDER BY created_at, rowid`)
}

// Counts returns aggregate counters.
func (s *Store) Counts(ctx context.Context) (*Counts, error) {
	var c Counts
	err := s.DB.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM bookmarks),
			(SELECT COUNT(*) FROM bookmarks WHERE is_parsed = 1),
			(SELECT COUNT(*) FROM fetch_log)`).Scan(&c.Bookmarks, &c.Parsed, &c.FetchLogs)
	if err != nil {
		return nil, storageErr("counts", err)
	}
	return &c, nil
}

func (s *Store) list(ctx context.Context, query string) ([]*Record, error) {
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, storageErr("list", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, storageErr("list", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var url, title, nodeJSON string
	var parsed int
	err := row.Scan(&rec.ID, &url, &title, &nodeJSON, &rec.ParsedText, &parsed,
		&rec.Status, &rec.PageTitle, &rec.ContentHash, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(nodeJSON), &rec.Node); err != nil {
		return nil, fmt.Errorf("decode node %s: %w", rec.ID, err)
	}
	// Columns are authoritative for the fields they duplicate.
	rec.Node.URL = url
	rec.Node.Title = title
	rec.IsParsed = parsed != 0
	return &rec, nil
}
