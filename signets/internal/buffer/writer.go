// Package buffer archives fetched pages as markdown files with YAML
// frontmatter, one file per bookmark.
//
// Files are written atomically (write .tmp then rename) so readers never
// see a partial file. Writing the same bookmark again replaces its file.
package buffer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"gopkg.in/yaml.v3"
)

// Metadata is the frontmatter of an archived page.
type Metadata struct {
	ID          string    `yaml:"id"`
	URL         string    `yaml:"url"`
	Title       string    `yaml:"title"`
	PageTitle   string    `yaml:"page_title,omitempty"`
	ContentHash string    `yaml:"content_hash"`
	FetchedAt   time.Time `yaml:"fetched_at"`
}

// Writer deposits .md files into a directory.
type Writer struct {
	dir  string
	conv *converter.Converter
}

// NewWriter creates a Writer targeting dir. The directory is created on
// first write.
func NewWriter(dir string) *Writer {
	return &Writer{
		dir: dir,
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Write converts rawHTML to markdown and writes it under meta.ID.
// If conversion fails, fallback is written as the body instead.
// Returns the path of the written file.
func (w *Writer) Write(ctx context.Context, meta Metadata, rawHTML, fallback string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if meta.ID == "" || strings.ContainsAny(meta.ID, `/\`) || meta.ID == "." || meta.ID == ".." {
		return "", fmt.Errorf("buffer: invalid id %q", meta.ID)
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("buffer: mkdir %s: %w", w.dir, err)
	}

	body, err := w.conv.ConvertString(rawHTML, converter.WithDomain(meta.URL))
	if err != nil || strings.TrimSpace(body) == "" {
		body = fallback
	}

	content, err := render(meta, body)
	if err != nil {
		return "", err
	}

	target := filepath.Join(w.dir, meta.ID+".md")
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return "", fmt.Errorf("buffer: write tmp: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("buffer: rename: %w", err)
	}
	return target, nil
}

// Clear deletes every archived page and returns how many were removed.
// A missing directory is not an error.
func (w *Writer) Clear() (int, error) {
	paths, err := filepath.Glob(filepath.Join(w.dir, "*.md"))
	if err != nil {
		return 0, fmt.Errorf("buffer: glob: %w", err)
	}
	n := 0
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return n, fmt.Errorf("buffer: remove: %w", err)
		}
		n++
	}
	return n, nil
}

func render(meta Metadata, body string) ([]byte, error) {
	fm, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("buffer: frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n\n")
	buf.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// ReadFrontmatter parses the frontmatter of an archived file.
func ReadFrontmatter(path string) (Metadata, error) {
	var meta Metadata
	data, err := os.ReadFile(path)
	if err != nil {
		return meta, fmt.Errorf("buffer: read: %w", err)
	}
	rest, ok := bytes.CutPrefix(data, []byte("---\n"))
	if !ok {
		return meta, fmt.Errorf("buffer: %s: missing frontmatter", path)
	}
	fm, _, ok := bytes.Cut(rest, []byte("\n---\n"))
	if !ok {
		return meta, fmt.Errorf("buffer: %s: unterminated frontmatter", path)
	}
	if err := yaml.Unmarshal(fm, &meta); err != nil {
		return meta, fmt.Errorf("buffer: %s: %w", path, err)
	}
	return meta, nil
}
