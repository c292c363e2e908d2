package signets

import (
	"context"
	"errors"
	"time"

	"github.com/hazyhaar/signets/signets/internal/buffer"
	"github.com/hazyhaar/signets/signets/internal/scheduler"
	"github.com/hazyhaar/signets/signets/internal/store"
)

// Ingest walks the bookmark forest depth-first and fetches every bookmark
// that is not parsed yet. It returns once every fetch has completed.
//
// Bookmarks already parsed are skipped without a fetch. Bookmarks known but
// unparsed (a previous failure) are queued again. progress, when non-nil,
// is called on the calling goroutine for every event, ending with a single
// EventDrained. A failing bookmark never stops the pass.
func (s *Service) Ingest(ctx context.Context, roots []*BookmarkNode, progress func(Event)) (*IngestReport, error) {
	if _, err := s.liveIndex(ctx); err != nil {
		return nil, err
	}
	emit := func(e Event) {
		if progress != nil {
			progress(e)
		}
	}

	report := &IngestReport{}
	seen := make(map[string]bool)
	pending := make(map[string]*Record)
	var tasks []scheduler.Task

	walk(roots, func(n *BookmarkNode) {
		report.Seen++
		id := ID(n.URL)
		if seen[id] {
			report.Duplicates++
			return
		}
		seen[id] = true

		if err := validateNode(n); err != nil {
			report.Invalid++
			emit(Event{Kind: EventFailed, ID: id, URL: n.URL, Err: err})
			return
		}

		existing, err := s.store.Get(ctx, id)
		switch {
		case err == nil && existing.IsParsed:
			report.Skipped++
			emit(Event{Kind: EventSkipped, ID: id, URL: n.URL})
			return
		case err == nil, errors.Is(err, store.ErrNotFound):
		default:
			// Only a definite not-found may lead to a fetch.
			report.Errored++
			s.logger.Warn("signets: dedup check failed", "id", id, "url", n.URL, "error", err)
			emit(Event{Kind: EventFailed, ID: id, URL: n.URL, Err: err})
			return
		}

		if !s.claim(id) {
			report.InFlight++
			emit(Event{Kind: EventSkipped, ID: id, URL: n.URL})
			return
		}

		node := *n
		node.Children = nil
		node.Title = truncateTitle(node.Title)
		rec := &Record{ID: id, Node: node, Status: StatusQueued}
		if err := s.store.Put(ctx, rec); err != nil {
			s.release(id)
			report.Errored++
			s.logger.Warn("signets: queue failed", "id", id, "error", err)
			emit(Event{Kind: EventFailed, ID: id, URL: n.URL, Err: err})
			return
		}
		pending[id] = rec
		tasks = append(tasks, scheduler.Task{ID: id, URL: n.URL})
		report.Queued++
		emit(Event{Kind: EventQueued, ID: id, URL: n.URL})
	})

	defer func() {
		for id := range pending {
			s.release(id)
		}
	}()

	// A page fetched before cancellation is still recorded.
	wctx := context.WithoutCancel(ctx)

	s.scheduler.Run(ctx, tasks, scheduler.Callbacks{
		OnSuccess: func(id string, page *scheduler.Page) {
			rec := pending[id]
			if err := s.applySuccess(wctx, rec, page); err != nil {
				report.Errored++
				emit(Event{Kind: EventFailed, ID: id, URL: rec.Node.URL, Err: err})
				return
			}
			report.Fetched++
			emit(Event{Kind: EventFetched, ID: id, URL: rec.Node.URL})
		},
		OnFailure: func(id string, err error) {
			rec := pending[id]
			s.applyFailure(wctx, rec, err)
			report.Failed++
			emit(Event{Kind: EventFailed, ID: id, URL: rec.Node.URL, Err: err})
		},
		OnDrained: func() {
			emit(Event{Kind: EventDrained})
		},
	})

	s.logger.Info("signets: ingest done",
		"seen", report.Seen, "skipped", report.Skipped, "queued", report.Queued,
		"fetched", report.Fetched, "failed", report.Failed, "errored", report.Errored)
	return report, nil
}

// AddBookmark ingests a single bookmark, ignoring its children, and returns
// its record once the fetch has completed. A failed fetch is not an error:
// the returned record carries StatusFetchFailed.
func (s *Service) AddBookmark(ctx context.Context, n *BookmarkNode) (*Record, error) {
	if err := validateNode(n); err != nil {
		return nil, err
	}
	leaf := *n
	leaf.Children = nil

	var storageErr error
	report, err := s.Ingest(ctx, []*BookmarkNode{&leaf}, func(e Event) {
		if e.Kind == EventFailed && errors.Is(e.Err, ErrStorage) {
			storageErr = e.Err
		}
	})
	if err != nil {
		return nil, err
	}
	if report.Errored > 0 && storageErr != nil {
		return nil, storageErr
	}
	return s.store.Get(ctx, ID(leaf.URL))
}

func (s *Service) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[id] {
		return false
	}
	s.inflight[id] = true
	return true
}

func (s *Service) release(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

// applySuccess moves rec to FETCHED: persist the record, index it, persist
// the index blob.
func (s *Service) applySuccess(ctx context.Context, rec *Record, page *scheduler.Page) error {
	rec.ParsedText = page.Text
	rec.IsParsed = true
	rec.Status = StatusFetched
	rec.PageTitle = page.Title
	rec.ContentHash = page.Hash
	if err := s.store.Put(ctx, rec); err != nil {
		s.logger.Warn("signets: save fetched record failed", "id", rec.ID, "error", err)
		return err
	}
	s.logFetch(ctx, rec.ID, StatusFetched, page.StatusCode, page.Hash, page.Duration, nil)

	s.mu.Lock()
	s.ix.AddDocument(document(rec))
	err := s.saveIndex(ctx, s.ix)
	s.mu.Unlock()
	if err != nil {
		// The next load detects the stale blob and rebuilds.
		s.logger.Warn("signets: persist index failed", "id", rec.ID, "error", err)
	}

	s.archivePage(ctx, rec, page)
	return nil
}

// applyFailure moves rec to FETCH_FAILED. The record stays unparsed and is
// queued again by the next ingestion pass.
func (s *Service) applyFailure(ctx context.Context, rec *Record, ferr error) {
	rec.Status = StatusFetchFailed
	if err := s.store.Put(ctx, rec); err != nil {
		s.logger.Warn("signets: save failed record failed", "id", rec.ID, "error", err)
	}

	var code int
	var d time.Duration
	var te *scheduler.TaskError
	if errors.As(ferr, &te) {
		code, d = te.StatusCode, te.Duration
	}
	s.logFetch(ctx, rec.ID, StatusFetchFailed, code, "", d, ferr)
}

func (s *Service) logFetch(ctx context.Context, id, status string, code int, hash string, d time.Duration, ferr error) {
	e := &FetchLogEntry{
		ID:          s.newID(),
		BookmarkID:  id,
		Status:      status,
		StatusCode:  code,
		ContentHash: hash,
		DurationMs:  d.Milliseconds(),
		FetchedAt:   s.now().UnixMilli(),
	}
	if ferr != nil {
		e.ErrorMessage = ferr.Error()
	}
	if err := s.store.InsertFetchLog(ctx, e); err != nil {
		s.logger.Warn("signets: fetch log failed", "id", id, "error", err)
	}
}

func (s *Service) archivePage(ctx context.Context, rec *Record, page *scheduler.Page) {
	if s.archive == nil {
		return
	}
	meta := buffer.Metadata{
		ID:          rec.ID,
		URL:         rec.Node.URL,
		Title:       rec.Node.Title,
		PageTitle:   page.Title,
		ContentHash: page.Hash,
		FetchedAt:   s.now().UTC(),
	}
	if _, err := s.archive.Write(ctx, meta, page.HTML, page.Text); err != nil {
		s.logger.Warn("signets: archive failed", "id", rec.ID, "error", err)
	}
}
