package store

import "database/sql"

// Schema is the complete signets schema.
const Schema = `
-- Bookmark records, keyed by sha256(url)
CREATE TABLE IF NOT EXISTS bookmarks (
    id            TEXT PRIMARY KEY,
    url           TEXT NOT NULL,
    title         TEXT NOT NULL DEFAULT '',
    node_json     TEXT NOT NULL DEFAULT '{}',
    parsed_text   TEXT NOT NULL DEFAULT '',
    is_parsed     INTEGER NOT NULL DEFAULT 0,
    status        TEXT NOT NULL DEFAULT 'queued',
    page_title    TEXT NOT NULL DEFAULT '',
    content_hash  TEXT NOT NULL DEFAULT '',
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bookmarks_parsed ON bookmarks(is_parsed, created_at);

-- Serialized search index (single row)
CREATE TABLE IF NOT EXISTS index_blob (
    key         TEXT PRIMARY KEY,
    blob        BLOB NOT NULL,
    updated_at  INTEGER NOT NULL
);

-- Fetch log (observability)
CREATE TABLE IF NOT EXISTS fetch_log (
    id              TEXT PRIMARY KEY,
    bookmark_id     TEXT NOT NULL,
    status          TEXT NOT NULL,
    status_code     INTEGER NOT NULL DEFAULT 0,
    content_hash    TEXT NOT NULL DEFAULT '',
    error_message   TEXT NOT NULL DEFAULT '',
    duration_ms     INTEGER NOT NULL DEFAULT 0,
    fetched_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fetch_log_bookmark ON fetch_log(bookmark_id, fetched_at DESC);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
