package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const indexBlobKey = "main"

// IndexBlob returns the serialized search index, or ErrNotFound if none was
// ever stored.
func (s *Store) IndexBlob(ctx context.Context) ([]byte, error) {
	var blob []byte
	err := s.DB.QueryRowContext(ctx,
		`SELECT blob FROM index_blob WHERE key = ?`, indexBlobKey).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index blob: %w", ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("index blob", err)
	}
	return blob, nil
}

// SetIndexBlob replaces the serialized search index.
func (s *Store) SetIndexBlob(ctx context.Context, blob []byte) error {
	_, err := s.exec(ctx,
		`INSERT INTO index_blob (key, blob, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET blob=excluded.blob, updated_at=excluded.updated_at`,
		indexBlobKey, blob, time.Now().UnixMilli())
	if err != nil {
		return storageErr("set index blob", err)
	}
	return nil
}

// ClearIndexBlob removes the serialized search index.
func (s *Store) ClearIndexBlob(ctx context.Context) error {
	if _, err := s.exec(ctx, `DELETE FROM index_blob`); err != nil {
		return storageErr("clear index blob", err)
	}
	return nil
}
