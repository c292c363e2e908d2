package store

import "time"

// Record lifecycle labels.
const (
	StatusQueued      = "queued"
	StatusFetched     = "fetched"
	StatusFetchFailed = "fetch_failed"
)

// BookmarkNode is one node of a browser bookmark tree. A node without a URL
// is a folder. A node with a URL is a bookmark, even when it has children.
type BookmarkNode struct {
	Title        string          `json:"title"`
	URL          string          `json:"url,omitempty"`
	DateAdded    time.Time       `json:"date_added,omitzero"`
	DateModified time.Time       `json:"date_modified,omitzero"`
	Children     []*BookmarkNode `json:"children,omitempty"`
}

// IsFolder reports whether n is a folder rather than a bookmark.
func (n *BookmarkNode) IsFolder() bool {
	return n.URL == ""
}

// Record is the stored state of one bookmark.
type Record struct {
	ID          string       `json:"id"`
	Node        BookmarkNode `json:"node"`
	ParsedText  string       `json:"parsed_text"`
	IsParsed    bool         `json:"is_parsed"`
	Status      string       `json:"status"`
	PageTitle   string       `json:"page_title,omitempty"`
	ContentHash string       `json:"content_hash,omitempty"`
	CreatedAt   int64        `json:"created_at"`
	UpdatedAt   int64        `json:"updated_at"`
}

// FetchLogEntry is one fetch attempt.
type FetchLogEntry struct {
	ID           string `json:"id"`
	BookmarkID   string `json:"bookmark_id"`
	Status       string `json:"status"`
	StatusCode   int    `json:"status_code"`
	ContentHash  string `json:"content_hash"`
	ErrorMessage string `json:"error_message"`
	DurationMs   int64  `json:"duration_ms"`
	FetchedAt    int64  `json:"fetched_at"`
}

// Counts holds aggregate counters for display.
type Counts struct {
	Bookmarks int `json:"bookmarks"`
	Parsed    int `json:"parsed"`
	FetchLogs int `json:"fetch_logs"`
}
