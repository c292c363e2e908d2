package signets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/signets/signets/internal/buffer"
	"github.com/hazyhaar/signets/signets/internal/fetch"
	"github.com/hazyhaar/signets/signets/internal/index"
	"github.com/hazyhaar/signets/signets/internal/scheduler"
	"github.com/hazyhaar/signets/signets/internal/store"
)

// Fetcher retrieves the content a bookmark points to.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}

// Service is the bookmark ingestion and search orchestrator.
type Service struct {
	store     *store.Store
	fetcher   Fetcher
	scheduler *scheduler.Scheduler
	archive   *buffer.Writer // nil when archiving is off
	logger    *slog.Logger
	config    *Config
	newID     func() string
	now       func() time.Time

	// mu guards ix and inflight. Index updates and blob writes happen under
	// mu so a blob never lags behind a later write or a clear.
	mu       sync.Mutex
	ix       *index.Index // live index, nil until loaded
	inflight map[string]bool
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*Service)

// WithFetcher replaces the HTTP fetcher.
func WithFetcher(f Fetcher) ServiceOption {
	return func(s *Service) { s.fetcher = f }
}

// WithURLValidator overrides the URL validator of the default HTTP fetcher.
// It has no effect together with WithFetcher.
func WithURLValidator(fn func(string) error) ServiceOption {
	return func(s *Service) { s.config.Fetch.URLValidator = fn }
}

// New creates a Service over db. The schema must already be applied (see
// store.Open). The search index is loaded lazily on first use, or eagerly
// with LoadIndex.
func New(db *sql.DB, cfg *Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if db == nil {
		return nil, errors.New("signets: nil db")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	c := *cfg
	c.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	svc := &Service{
		store:    store.NewStore(db),
		logger:   logger,
		config:   &c,
		newID:    newID,
		now:      time.Now,
		inflight: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.fetcher == nil {
		svc.fetcher = fetch.New(c.Fetch)
	}
	svc.scheduler = scheduler.New(svc.fetcher, c.Scheduler, logger)
	if c.ArchiveDir != "" {
		svc.archive = buffer.NewWriter(c.ArchiveDir)
	}
	return svc, nil
}

// OpenDB opens (or creates) the SQLite database at path with the signets
// schema applied. Use ":memory:" for a throwaway database.
func OpenDB(path string) (*sql.DB, error) {
	return store.Open(path)
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// LoadIndex loads the persisted index into memory. It is called implicitly
// by the first Ingest or Search.
func (s *Service) LoadIndex(ctx context.Context) error {
	_, err := s.liveIndex(ctx)
	return err
}

func (s *Service) liveIndex(ctx context.Context) (*index.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ix != nil {
		return s.ix, nil
	}
	ix, err := s.rehydrate(ctx)
	if err != nil {
		return nil, err
	}
	s.ix = ix
	return ix, nil
}

// rehydrate restores the index from its blob. A missing, corrupt or stale
// blob is replaced by an index rebuilt from the parsed records.
func (s *Service) rehydrate(ctx context.Context) (*index.Index, error) {
	counts, err := s.store.Counts(ctx)
	if err != nil {
		return nil, err
	}

	blob, err := s.store.IndexBlob(ctx)
	switch {
	case err == nil:
		ix, derr := index.Deserialize(blob)
		if derr == nil && ix.Len() == counts.Parsed {
			s.logger.Info("signets: index loaded", "docs", ix.Len())
			return ix, nil
		}
		s.logger.Warn("signets: index blob unusable, rebuilding",
			"error", derr, "parsed", counts.Parsed)
	case errors.Is(err, store.ErrNotFound):
	default:
		return nil, err
	}

	ix, err := s.buildIndex(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.saveIndex(ctx, ix); err != nil {
		return nil, err
	}
	s.logger.Info("signets: index rebuilt", "docs", ix.Len())
	return ix, nil
}

// buildIndex indexes every parsed record, in store order.
func (s *Service) buildIndex(ctx context.Context) (*index.Index, error) {
	recs, err := s.store.ListParsed(ctx)
	if err != nil {
		return nil, err
	}
	docs := make([]index.Document, 0, len(recs))
	for _, rec := range recs {
		docs = append(docs, document(rec))
	}
	return index.Build(docs), nil
}

func (s *Service) saveIndex(ctx context.Context, ix *index.Index) error {
	blob, err := ix.Serialize()
	if err != nil {
		return err
	}
	return s.store.SetIndexBlob(ctx, blob)
}

// document projects a record onto the index fields.
func document(rec *Record) index.Document {
	title := rec.Node.Title
	if title == "" {
		title = rec.PageTitle
	}
	return index.Document{ID: rec.ID, Title: title, Body: rec.ParsedText}
}

// RebuildIndex replaces the live index with one built from the persisted
// parsed records and persists it.
func (s *Service) RebuildIndex(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ix, err := s.buildIndex(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.saveIndex(ctx, ix); err != nil {
		return 0, err
	}
	s.ix = ix
	s.logger.Info("signets: index rebuilt", "docs", ix.Len())
	return ix.Len(), nil
}

// ClearAll empties both the record and index namespaces and resets the live
// index. Fetch history and archived pages are cleared with the records.
func (s *Service) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	if err := s.store.ClearIndexBlob(ctx); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	s.ix = index.New()
	if s.archive != nil {
		if _, err := s.archive.Clear(); err != nil {
			s.logger.Warn("signets: clear archive failed", "error", err)
		}
	}
	s.logger.Info("signets: cleared")
	return nil
}

// Stats returns display counters.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	c, err := s.store.Counts(ctx)
	if err != nil {
		return nil, err
	}
	st := &Stats{Bookmarks: c.Bookmarks, Parsed: c.Parsed, FetchLogs: c.FetchLogs}
	s.mu.Lock()
	if s.ix != nil {
		st.Indexed = s.ix.Len()
	}
	s.mu.Unlock()
	return st, nil
}

// IsIndexed reports whether the bookmark for url has been fetched and
// indexed.
func (s *Service) IsIndexed(ctx context.Context, url string) (bool, error) {
	rec, err := s.store.Get(ctx, ID(url))
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.IsParsed, nil
}

// Bookmark returns the record with the given id.
func (s *Service) Bookmark(ctx context.Context, id string) (*Record, error) {
	return s.store.Get(ctx, id)
}

// FetchHistory returns the most recent fetch attempts for a bookmark.
func (s *Service) FetchHistory(ctx context.Context, id string) ([]*FetchLogEntry, error) {
	return s.store.ListFetchLog(ctx, id, s.config.FetchLogLimit)
}
