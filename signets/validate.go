package signets

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxURLLen   = 4096
	maxTitleLen = 1024
	maxQueryLen = 1024
)

// validateNode checks a bookmark leaf before it becomes a record. An
// over-long title is not an error: it is truncated when the record is built.
func validateNode(n *BookmarkNode) error {
	if n == nil {
		return fmt.Errorf("%w: nil bookmark", ErrInvalidInput)
	}
	if strings.TrimSpace(n.URL) == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	if len(n.URL) > maxURLLen {
		return fmt.Errorf("%w: url exceeds %d bytes", ErrInvalidInput, maxURLLen)
	}
	if !utf8.ValidString(n.URL) {
		return fmt.Errorf("%w: url is not valid UTF-8", ErrInvalidInput)
	}
	return nil
}

// truncateTitle keeps the first maxTitleLen characters of title.
func truncateTitle(title string) string {
	if utf8.RuneCountInString(title) <= maxTitleLen {
		return title
	}
	n := 0
	for i := range title {
		if n == maxTitleLen {
			return title[:i]
		}
		n++
	}
	return title
}

func validateQuery(q string) error {
	if len(q) > maxQueryLen {
		return fmt.Errorf("%w: query exceeds %d bytes", ErrInvalidInput, maxQueryLen)
	}
	return nil
}
