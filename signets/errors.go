package signets

import (
	"errors"

	"github.com/hazyhaar/signets/signets/internal/fetch"
	"github.com/hazyhaar/signets/signets/internal/store"
)

var (
	// ErrNotFound is returned when a bookmark does not exist.
	ErrNotFound = store.ErrNotFound

	// ErrStorage wraps every failure of the underlying database.
	ErrStorage = store.ErrStorage

	// ErrFetch is carried by failed ingestion events when a page could not
	// be retrieved or was not text.
	ErrFetch = fetch.ErrFetch

	// ErrInvalidInput is returned when a bookmark fails validation.
	ErrInvalidInput = errors.New("signets: invalid input")
)
