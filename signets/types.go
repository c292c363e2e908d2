// Package signets ingests browser bookmark trees, fetches and normalizes the
// pages they point to, and serves full-text search over titles and bodies.
//
// Records and the serialized search index live in one SQLite database. The
// live index is updated on every successful fetch and persisted after each
// update, so searches survive restarts.
package signets

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/hazyhaar/signets/signets/internal/fetch"
	"github.com/hazyhaar/signets/signets/internal/store"
)

// Re-export store types for public API.
type (
	BookmarkNode  = store.BookmarkNode
	Record        = store.Record
	FetchLogEntry = store.FetchLogEntry
	Counts        = store.Counts
	FetchResult   = fetch.Result
)

// Record status labels.
const (
	StatusQueued      = store.StatusQueued
	StatusFetched     = store.StatusFetched
	StatusFetchFailed = store.StatusFetchFailed
)

// SearchResult is a record merged with its relevance score.
type SearchResult struct {
	*Record
	Score float64 `json:"score"`
}

// EventKind labels an ingestion progress event.
type EventKind string

const (
	EventSkipped EventKind = "skipped" // already indexed, no fetch
	EventQueued  EventKind = "queued"
	EventFetched EventKind = "fetched"
	EventFailed  EventKind = "failed"
	EventDrained EventKind = "drained"
)

// Event reports progress of one bookmark during Ingest. Drained events carry
// no ID.
type Event struct {
	Kind EventKind `json:"kind"`
	ID   string    `json:"id,omitempty"`
	URL  string    `json:"url,omitempty"`
	Err  error     `json:"-"`
}

// IngestReport summarizes an ingestion pass.
type IngestReport struct {
	Seen       int `json:"seen"`       // bookmark nodes with a URL
	Duplicates int `json:"duplicates"` // same URL seen earlier in the pass
	Skipped    int `json:"skipped"`    // already parsed
	InFlight   int `json:"in_flight"`  // being fetched by a concurrent pass
	Queued     int `json:"queued"`
	Fetched    int `json:"fetched"`
	Failed     int `json:"failed"`
	Invalid    int `json:"invalid"`
	Errored    int `json:"errored"` // storage errors
}

// Stats are display counters.
type Stats struct {
	Bookmarks int `json:"bookmarks"`
	Parsed    int `json:"parsed"`
	FetchLogs int `json:"fetch_logs"`
	Indexed   int `json:"indexed"` // documents in the live index
}

// ID returns the content id of a bookmark URL: hex SHA-256 of the URL string.
func ID(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}
