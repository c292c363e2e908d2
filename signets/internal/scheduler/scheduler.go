// Package scheduler fetches bookmark pages with bounded concurrency.
//
// Tasks are admitted in submission order, at most Concurrency at a time.
// Results are delivered on a channel as they complete, so completion order
// is not submission order. Nothing is retried.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/signets/signets/internal/fetch"
	"github.com/hazyhaar/signets/signets/internal/normalize"
)

// Task is one page to fetch.
type Task struct {
	ID  string
	URL string
}

// Page is the normalized content of a successfully fetched task.
type Page struct {
	Title      string // <title> of the document, if any
	Text       string // normalized body text
	HTML       string // raw body as fetched
	Hash       string
	StatusCode int
	Duration   time.Duration
}

// Result is the outcome of one task. Exactly one of Page and Err is set.
type Result struct {
	ID   string
	URL  string
	Page *Page
	Err  error
}

// TaskError describes a failed task.
type TaskError struct {
	ID         string
	URL        string
	StatusCode int
	Duration   time.Duration
	Err        error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s (%s): %v", e.ID, e.URL, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// Fetcher retrieves a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Result, error)
}

// Config configures the scheduler.
type Config struct {
	// Concurrency is the maximum number of fetches in flight. Default: 5.
	Concurrency int `yaml:"concurrency"`
}

func (c *Config) defaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
}

// Callbacks receive per-task outcomes. They are invoked sequentially from
// the goroutine calling Run, never concurrently.
type Callbacks struct {
	OnSuccess func(id string, page *Page)
	OnFailure func(id string, err error)
	OnDrained func()
}

// Scheduler runs fetch tasks through a bounded worker pool.
type Scheduler struct {
	fetcher Fetcher
	config  Config
	logger  *slog.Logger
}

// New creates a Scheduler.
func New(f Fetcher, cfg Config, logger *slog.Logger) *Scheduler {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{fetcher: f, config: cfg, logger: logger}
}

// Start submits tasks and returns the result channel. The channel receives
// one Result per task and is closed once every task has completed.
// Tasks not yet started when ctx is cancelled fail with ctx.Err().
// The caller must drain the channel.
func (s *Scheduler) Start(ctx context.Context, tasks []Task) <-chan Result {
	results := make(chan Result, s.config.Concurrency)
	go func() {
		defer close(results)

		// A plain Group: one failing task must not cancel its siblings.
		var g errgroup.Group
		g.SetLimit(s.config.Concurrency)
		for _, task := range tasks {
			g.Go(func() error {
				results <- s.process(ctx, task)
				return nil
			})
		}
		g.Wait()
	}()
	return results
}

// Run executes tasks and invokes the callbacks as results arrive. OnDrained
// is called exactly once, after the last result, even for an empty batch.
// Run blocks until the batch is drained.
func (s *Scheduler) Run(ctx context.Context, tasks []Task, cb Callbacks) {
	for res := range s.Start(ctx, tasks) {
		if res.Err != nil {
			if cb.OnFailure != nil {
				cb.OnFailure(res.ID, res.Err)
			}
			continue
		}
		if cb.OnSuccess != nil {
			cb.OnSuccess(res.ID, res.Page)
		}
	}
	if cb.OnDrained != nil {
		cb.OnDrained()
	}
}

func (s *Scheduler) process(ctx context.Context, task Task) Result {
	if err := ctx.Err(); err != nil {
		return Result{ID: task.ID, URL: task.URL, Err: &TaskError{ID: task.ID, URL: task.URL, Err: err}}
	}

	start := time.Now()
	res, err := s.fetcher.Fetch(ctx, task.URL)
	elapsed := time.Since(start)
	if err != nil {
		te := &TaskError{ID: task.ID, URL: task.URL, Duration: elapsed, Err: err}
		if res != nil {
			te.StatusCode = res.StatusCode
		}
		s.logger.Warn("scheduler: task failed", "id", task.ID, "url", task.URL,
			"error", err, "duration_ms", elapsed.Milliseconds())
		return Result{ID: task.ID, URL: task.URL, Err: te}
	}

	body := string(res.Body)
	page := &Page{
		Title:      normalize.Title(body),
		Text:       normalize.Text(body),
		HTML:       body,
		Hash:       res.Hash,
		StatusCode: res.StatusCode,
		Duration:   elapsed,
	}
	s.logger.Debug("scheduler: task done", "id", task.ID, "url", task.URL,
		"text_len", len(page.Text), "duration_ms", elapsed.Milliseconds())
	return Result{ID: task.ID, URL: task.URL, Page: page}
}
