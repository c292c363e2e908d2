// Package fetch retrieves bookmark pages over HTTP.
//
// Only textual responses are accepted. Every URL, including redirect
// targets, passes through a validator that blocks private addresses.
package fetch

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

// ErrFetch wraps every fetch failure.
var ErrFetch = errors.New("fetch: failed")

// ErrNotText is returned when the response is not textual content.
var ErrNotText = errors.New("fetch: response is not text")

// Result contains the outcome of a fetch.
type Result struct {
	Body        []byte
	StatusCode  int
	ContentType string
	Hash        string // SHA-256 of body
}

// Config configures the fetcher.
type Config struct {
	Timeout   time.Duration `yaml:"timeout"`   // per request. Default: 30s.
	MaxBytes  int64         `yaml:"max_bytes"` // body cap. Default: 10MB.
	UserAgent string        `yaml:"user_agent"`
	// URLValidator vets URLs before the request and on every redirect.
	// Default: ValidateURL.
	URLValidator func(string) error `yaml:"-"`
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "signets/1.0"
	}
	if c.URLValidator == nil {
		c.URLValidator = ValidateURL
	}
}

// Fetcher performs HTTP GET requests.
type Fetcher struct {
	client *http.Client
	config Config
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	validate := cfg.URLValidator
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked: %w", err)
				}
				return nil
			},
		},
		config: cfg,
	}
}

// Fetch retrieves url. A non-nil Result may accompany an error when the
// server answered with a failing status.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Result, error) {
	if err := f.config.URLValidator(url); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: new request: %w", ErrFetch, err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.1")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http get: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Result{StatusCode: resp.StatusCode}, fmt.Errorf("%w: http %d", ErrFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFetch, err)
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(body)
	}
	if !isText(ct) {
		return &Result{StatusCode: resp.StatusCode, ContentType: ct},
			fmt.Errorf("%w: %w: %s", ErrFetch, ErrNotText, ct)
	}

	h := sha256.Sum256(body)
	return &Result{
		Body:        body,
		StatusCode:  resp.StatusCode,
		ContentType: ct,
		Hash:        fmt.Sprintf("%x", h),
	}, nil
}

func isText(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	if strings.HasPrefix(mt, "text/") {
		return true
	}
	switch mt {
	case "application/xhtml+xml", "application/xml":
		return true
	}
	return false
}
