package store

import (
	"context"
	"fmt"
)

// InsertFetchLog records a fetch attempt.
func (s *Store) InsertFetchLog(ctx context.Context, e *FetchLogEntry) error {
	_, err := s.exec(ctx,
		`INSERT INTO fetch_log (id, bookmark_id, status, status_code, content_hash,
		error_message, duration_ms, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.BookmarkID, e.Status, e.StatusCode, e.ContentHash,
		e.ErrorMessage, e.DurationMs, e.FetchedAt,
	)
	if err != nil {
		return storageErr("insert fetch log", err)
	}
	return nil
}

// ListFetchLog returns recent fetch attempts for a bookmark, newest first.
func (s *Store) ListFetchLog(ctx context.Context, bookmarkID string, limit int) ([]*FetchLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, bookmark_id, status, status_code, content_hash, error_message,
		duration_ms, fetched_at
		FROM fetch_log WHERE bookmark_id = ?
		ORDER BY fetched_at DESC LIMIT ?`, bookmarkID, limit)
	if err != nil {
		return nil, storageErr("list fetch log", err)
	}
	defer rows.Close()

	var entries []*FetchLogEntry
	for rows.Next() {
		var e FetchLogEntry
		if err := rows.Scan(&e.ID, &e.BookmarkID, &e.Status, &e.StatusCode,
			&e.ContentHash, &e.ErrorMessage, &e.DurationMs, &e.FetchedAt); err != nil {
			return nil, fmt.Errorf("scan fetch log: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
