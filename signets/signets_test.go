package signets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/hazyhaar/signets/signets/internal/store"

	_ "modernc.org/sqlite"
)

// spyFetcher serves canned HTML per URL and counts calls.
type spyFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	fail  map[string]bool
	delay time.Duration
	calls map[string]int
}

func newSpy(pages map[string]string) *spyFetcher {
	return &spyFetcher{pages: pages, fail: map[string]bool{}, calls: map[string]int{}}
}

func (f *spyFetcher) Fetch(ctx context.Context, url string) (*FetchResult, error) {
	f.mu.Lock()
	f.calls[url]++
	html, ok := f.pages[url]
	fail := f.fail[url]
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail || !ok {
		return &FetchResult{StatusCode: 500}, fmt.Errorf("%w: status 500", ErrFetch)
	}
	return &FetchResult{
		Body:        []byte(html),
		StatusCode:  200,
		ContentType: "text/html",
		Hash:        "hash-" + url,
	}, nil
}

func (f *spyFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *spyFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestService(t *testing.T, db *sql.DB, f Fetcher, cfg *Config) *Service {
	t.Helper()
	if db == nil {
		db = openTestDB(t)
	}
	svc, err := New(db, cfg, nil, WithFetcher(f))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func leaf(url string) *BookmarkNode {
	return &BookmarkNode{URL: url}
}

func exampleTree() []*BookmarkNode {
	return []*BookmarkNode{
		{URL: "a.com"},
		{URL: "b.com", Children: []*BookmarkNode{{URL: "c.com"}}},
	}
}

func examplePages() map[string]string {
	return map[string]string{
		"a.com": "<html><body><p>Fresh apples and pears</p></body></html>",
		"b.com": "<html><body><p>The best widget shop in town</p></body></html>",
		"c.com": "<html><body><p>Used cars for sale</p></body></html>",
	}
}

func TestID(t *testing.T) {
	// WHAT: ID is a pure function of the URL string.
	// WHY: It is the dedup key; equal URLs must collapse to one record.
	if ID("https://a.com") != ID("https://a.com") {
		t.Fatal("same url, different ids")
	}
	if ID("https://a.com") == ID("https://a.com/") {
		t.Fatal("different urls, same id")
	}
	// sha256("a.com")
	if got := ID("a.com"); len(got) != 64 {
		t.Fatalf("id length = %d, want 64 hex chars", len(got))
	}
}

func TestIngest_ExampleScenario(t *testing.T) {
	// WHAT: A two-root tree with a nested bookmark yields three records, and
	// only the page mentioning widgets matches "widget".
	ctx := context.Background()
	spy := newSpy(examplePages())
	svc := newTestService(t, nil, spy, nil)

	report, err := svc.Ingest(ctx, exampleTree(), nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if report.Seen != 3 || report.Queued != 3 || report.Fetched != 3 {
		t.Fatalf("report = %+v", report)
	}

	all, err := svc.store.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{ID("a.com"): true, ID("b.com"): true, ID("c.com"): true}
	if len(all) != 3 {
		t.Fatalf("records = %d, want 3", len(all))
	}
	for _, rec := range all {
		if !want[rec.ID] {
			t.Errorf("unexpected record %s (%s)", rec.ID, rec.Node.URL)
		}
		if !rec.IsParsed || rec.Status != StatusFetched {
			t.Errorf("record %s not fetched: %+v", rec.Node.URL, rec)
		}
	}

	results, err := svc.Search(ctx, "widget")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].ID != ID("b.com") {
		t.Fatalf("results = %+v, want only b.com", results)
	}
	if results[0].Score <= 0 {
		t.Errorf("score = %v", results[0].Score)
	}
}

func TestIngest_Dedup(t *testing.T) {
	// WHAT: Ingesting the same tree twice fetches each URL once and keeps
	// the same record set.
	// WHY: The dedup gate is the core invariant of the pipeline.
	ctx := context.Background()
	spy := newSpy(examplePages())
	svc := newTestService(t, nil, spy, nil)

	if _, err := svc.Ingest(ctx, exampleTree(), nil); err != nil {
		t.Fatal(err)
	}
	first, _ := svc.store.All(ctx)

	report, err := svc.Ingest(ctx, exampleTree(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if report.Skipped != 3 || report.Queued != 0 {
		t.Fatalf("second report = %+v", report)
	}
	for _, u := range []string{"a.com", "b.com", "c.com"} {
		if n := spy.count(u); n != 1 {
			t.Errorf("fetches of %s = %d, want 1", u, n)
		}
	}

	second, _ := svc.store.All(ctx)
	if len(first) != len(second) {
		t.Fatalf("records: %d then %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].ParsedText != second[i].ParsedText {
			t.Errorf("record %d changed: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestIngest_DuplicateURLsInOnePass(t *testing.T) {
	ctx := context.Background()
	spy := newSpy(map[string]string{"https://x.com": "<p>x</p>"})
	svc := newTestService(t, nil, spy, nil)

	tree := []*BookmarkNode{
		leaf("https://x.com"),
		{Title: "folder", Children: []*BookmarkNode{leaf("https://x.com")}},
	}
	report, err := svc.Ingest(ctx, tree, nil)
	if err != nil {
		t.Fatal(err)
	}
	if report.Seen != 2 || report.Duplicates != 1 || report.Queued != 1 {
		t.Fatalf("report = %+v", report)
	}
	if spy.total() != 1 {
		t.Fatalf("fetches = %d, want 1", spy.total())
	}
}

func TestIngest_LongTitleIsTruncated(t *testing.T) {
	// WHAT: A bookmark with an over-long multi-byte title is still recorded
	// and fetched; its title is cut at a character boundary.
	// WHY: every bookmark with a URL must become a record.
	ctx := context.Background()
	spy := newSpy(map[string]string{"https://long.com": "<p>long title page</p>"})
	svc := newTestService(t, nil, spy, nil)

	title := strings.Repeat("書", 1100) // 3300 bytes
	report, err := svc.Ingest(ctx, []*BookmarkNode{{Title: title, URL: "https://long.com"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if report.Invalid != 0 || report.Fetched != 1 {
		t.Fatalf("report = %+v", report)
	}
	if spy.total() != 1 {
		t.Fatalf("fetches = %d, want 1", spy.total())
	}

	rec, err := svc.Bookmark(ctx, ID("https://long.com"))
	if err != nil {
		t.Fatal(err)
	}
	if got := utf8.RuneCountInString(rec.Node.Title); got != maxTitleLen {
		t.Errorf("title length = %d runes, want %d", got, maxTitleLen)
	}
	if !utf8.ValidString(rec.Node.Title) || !strings.HasPrefix(title, rec.Node.Title) {
		t.Error("title not cut at a character boundary")
	}
}

func TestIngest_FailureIsolation(t *testing.T) {
	// WHAT: One failing fetch does not stop the others, and drained fires once.
	ctx := context.Background()
	pages := map[string]string{}
	var tree []*BookmarkNode
	for i := range 5 {
		u := fmt.Sprintf("https://site%d.com", i)
		pages[u] = fmt.Sprintf("<p>page %d</p>", i)
		tree = append(tree, leaf(u))
	}
	spy := newSpy(pages)
	spy.fail["https://site2.com"] = true
	svc := newTestService(t, nil, spy, nil)

	var drained, failed int
	report, err := svc.Ingest(ctx, tree, func(e Event) {
		switch e.Kind {
		case EventDrained:
			drained++
		case EventFailed:
			failed++
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if drained != 1 {
		t.Errorf("drained = %d, want 1", drained)
	}
	if failed != 1 || report.Failed != 1 || report.Fetched != 4 {
		t.Errorf("failed events = %d, report = %+v", failed, report)
	}

	rec, err := svc.store.Get(ctx, ID("https://site2.com"))
	if err != nil {
		t.Fatal(err)
	}
	if rec.IsParsed || rec.Status != StatusFetchFailed {
		t.Errorf("failed record = %+v", rec)
	}

	logs, err := svc.FetchHistory(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 || logs[0].Status != StatusFetchFailed || logs[0].StatusCode != 500 {
		t.Errorf("fetch log = %+v", logs)
	}
}

func TestIngest_RequeuesFailed(t *testing.T) {
	// WHAT: A record that failed is fetched again by the next pass.
	// WHY: No automatic retry; the next ingestion is the retry.
	ctx := context.Background()
	spy := newSpy(map[string]string{"https://flaky.com": "<p>finally</p>"})
	spy.fail["https://flaky.com"] = true
	svc := newTestService(t, nil, spy, nil)

	tree := []*BookmarkNode{leaf("https://flaky.com")}
	if _, err := svc.Ingest(ctx, tree, nil); err != nil {
		t.Fatal(err)
	}

	spy.mu.Lock()
	spy.fail["https://flaky.com"] = false
	spy.mu.Unlock()

	report, err := svc.Ingest(ctx, tree, nil)
	if err != nil {
		t.Fatal(err)
	}
	if report.Queued != 1 || report.Fetched != 1 {
		t.Fatalf("report = %+v", report)
	}
	if n := spy.count("https://flaky.com"); n != 2 {
		t.Fatalf("fetches = %d, want 2", n)
	}
	ok, err := svc.IsIndexed(ctx, "https://flaky.com")
	if err != nil || !ok {
		t.Fatalf("IsIndexed = %v, %v", ok, err)
	}
}

func TestIngest_StorageErrorIsNotAbsence(t *testing.T) {
	// WHAT: A storage failure on the dedup check aborts that bookmark
	// without fetching it.
	// WHY: Only a definite not-found authorizes a fetch.
	ctx := context.Background()
	db := openTestDB(t)
	spy := newSpy(examplePages())
	svc := newTestService(t, db, spy, nil)
	if err := svc.LoadIndex(ctx); err != nil {
		t.Fatal(err)
	}
	db.Close()

	var storageEvents int
	report, err := svc.Ingest(ctx, []*BookmarkNode{leaf("a.com")}, func(e Event) {
		if e.Kind == EventFailed && errors.Is(e.Err, ErrStorage) {
			storageEvents++
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.Errored != 1 || report.Queued != 0 {
		t.Fatalf("report = %+v", report)
	}
	if storageEvents != 1 {
		t.Errorf("storage events = %d", storageEvents)
	}
	if spy.total() != 0 {
		t.Fatalf("fetches = %d, want 0", spy.total())
	}
}

func TestIngest_Events(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil, newSpy(examplePages()), nil)
	if _, err := svc.Ingest(ctx, exampleTree()[:1], nil); err != nil {
		t.Fatal(err)
	}

	kinds := map[EventKind]int{}
	var last EventKind
	_, err := svc.Ingest(ctx, exampleTree(), func(e Event) {
		kinds[e.Kind]++
		last = e.Kind
	})
	if err != nil {
		t.Fatal(err)
	}
	if kinds[EventSkipped] != 1 || kinds[EventQueued] != 2 || kinds[EventFetched] != 2 || kinds[EventDrained] != 1 {
		t.Errorf("events = %v", kinds)
	}
	if last != EventDrained {
		t.Errorf("last event = %s, want drained", last)
	}
}

func TestIngest_EmptyTree(t *testing.T) {
	svc := newTestService(t, nil, newSpy(nil), nil)
	var drained int
	report, err := svc.Ingest(context.Background(), []*BookmarkNode{{Title: "empty folder"}}, func(e Event) {
		if e.Kind == EventDrained {
			drained++
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.Seen != 0 || drained != 1 {
		t.Fatalf("report = %+v, drained = %d", report, drained)
	}
}

func TestIngest_ConcurrentPassesFetchOnce(t *testing.T) {
	// WHAT: Two overlapping passes over the same tree fetch each URL once.
	ctx := context.Background()
	spy := newSpy(examplePages())
	spy.delay = 30 * time.Millisecond
	svc := newTestService(t, nil, spy, nil)

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Ingest(ctx, exampleTree(), nil); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	for _, u := range []string{"a.com", "b.com", "c.com"} {
		if n := spy.count(u); n != 1 {
			t.Errorf("fetches of %s = %d, want 1", u, n)
		}
	}
}

func TestIngest_CancelledBeforeStart(t *testing.T) {
	// WHAT: Cancelling the context fails pending fetches but still drains.
	db := openTestDB(t)
	spy := newSpy(examplePages())
	svc := newTestService(t, db, spy, nil)
	if err := svc.LoadIndex(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Cancel as soon as the first bookmark is queued: the rest of the walk
	// and the whole batch see a cancelled context.
	ctx, cancel := context.WithCancel(context.Background())
	var drained int
	report, err := svc.Ingest(ctx, exampleTree(), func(e Event) {
		if e.Kind == EventQueued {
			cancel()
		}
		if e.Kind == EventDrained {
			drained++
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if drained != 1 {
		t.Errorf("drained = %d", drained)
	}
	if report.Queued != 1 || report.Failed != 1 || report.Fetched != 0 {
		t.Errorf("report = %+v", report)
	}
	rec, err := svc.store.Get(context.Background(), ID("a.com"))
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != StatusFetchFailed {
		t.Errorf("status = %q, want %q", rec.Status, StatusFetchFailed)
	}
	if spy.total() != 0 {
		t.Errorf("fetches = %d, want 0", spy.total())
	}
}

func TestAddBookmark(t *testing.T) {
	ctx := context.Background()
	spy := newSpy(map[string]string{"https://one.com": "<title>One</title><p>single page</p>"})
	svc := newTestService(t, nil, spy, nil)

	rec, err := svc.AddBookmark(ctx, &BookmarkNode{
		Title:    "One",
		URL:      "https://one.com",
		Children: []*BookmarkNode{leaf("https://child.com")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !rec.IsParsed || rec.PageTitle != "One" || !strings.Contains(rec.ParsedText, "single page") {
		t.Errorf("record = %+v", rec)
	}
	if spy.count("https://child.com") != 0 {
		t.Error("children of a single bookmark were ingested")
	}

	if _, err := svc.AddBookmark(ctx, &BookmarkNode{Title: "no url"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestAddBookmark_FailedFetch(t *testing.T) {
	svc := newTestService(t, nil, newSpy(nil), nil)
	rec, err := svc.AddBookmark(context.Background(), leaf("https://down.com"))
	if err != nil {
		t.Fatal(err)
	}
	if rec.IsParsed || rec.Status != StatusFetchFailed {
		t.Errorf("record = %+v", rec)
	}
}

func TestClearAll(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil, newSpy(examplePages()), nil)
	if _, err := svc.Ingest(ctx, exampleTree(), nil); err != nil {
		t.Fatal(err)
	}

	if err := svc.ClearAll(ctx); err != nil {
		t.Fatal(err)
	}

	st, err := svc.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Bookmarks != 0 || st.Parsed != 0 || st.Indexed != 0 {
		t.Errorf("stats = %+v", st)
	}
	if _, err := svc.store.IndexBlob(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("index blob err = %v, want ErrNotFound", err)
	}
	results, err := svc.Search(ctx, "widget")
	if err != nil || len(results) != 0 {
		t.Errorf("search after clear = %v, %v", results, err)
	}
	if ok, _ := svc.IsIndexed(ctx, "b.com"); ok {
		t.Error("b.com still indexed")
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	spy := newSpy(examplePages())
	spy.fail["c.com"] = true
	svc := newTestService(t, nil, spy, nil)
	if _, err := svc.Ingest(ctx, exampleTree(), nil); err != nil {
		t.Fatal(err)
	}
	st, err := svc.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Bookmarks != 3 || st.Parsed != 2 || st.Indexed != 2 || st.FetchLogs != 3 {
		t.Errorf("stats = %+v", st)
	}
}

func TestArchive(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	svc := newTestService(t, nil, newSpy(examplePages()), &Config{ArchiveDir: dir})
	if _, err := svc.Ingest(ctx, exampleTree(), nil); err != nil {
		t.Fatal(err)
	}
	for _, u := range []string{"a.com", "b.com", "c.com"} {
		if _, err := os.Stat(filepath.Join(dir, ID(u)+".md")); err != nil {
			t.Errorf("archive for %s: %v", u, err)
		}
	}

	// WHAT: ClearAll also deletes the archived pages.
	// WHY: a cleared service must keep no copy of fetched content.
	if err := svc.ClearAll(ctx); err != nil {
		t.Fatal(err)
	}
	left, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Errorf("archive after ClearAll = %v", left)
	}
}
