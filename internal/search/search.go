package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/BRO3886/productsync/internal/types"
)

// Indexer writes index records to a search engine. Implementations must be
// safe for concurrent use.
type Indexer interface {
	// Index creates or replaces the record at rec.ID.
	Index(ctx context.Context, rec types.IndexRecord) error
	// Update merges rec.Data into the existing record at rec.ID. A missing
	// record is reported so that IsNotFound(err) holds.
	Update(ctx context.Context, rec types.IndexRecord) error
	// Delete removes the record; a missing record is not an error.
	Delete(ctx context.Context, index, id string) error
	// Refresh makes previous writes to index visible to searches.
	Refresh(ctx context.Context, index string) error
	// EnsureIndex creates index with the given creation body when it does not exist.
	EnsureIndex(ctx context.Context, index string, body []byte) error
	Close() error
}

// ErrNotFound is returned by indexers that do not speak HTTP when a
// document to update does not exist.
var ErrNotFound = errors.New("document not found")

// ResponseError is a non-2xx answer from the search engine.
type ResponseError struct {
	Op     string
	Index  string
	Status int
	Body   string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("failed to %s on %s: %d %s %s", e.Op, e.Index, e.Status, http.StatusText(e.Status), e.Body)
}

// Temporary reports whether the engine may accept the same request later.
func (e *ResponseError) Temporary() bool {
	switch {
	case e.Status == http.StatusRequestTimeout, e.Status == http.StatusTooManyRequests:
		return true
	// credentials and roles get fixed by operators, the document is fine
	case e.Status == http.StatusUnauthorized, e.Status == http.StatusForbidden:
		return true
	case e.Status >= 500:
		return true
	}
	return false
}

// IsRejected reports whether err is a permanent refusal from the engine.
func IsRejected(err error) bool {
	var re *ResponseError
	return errors.As(err, &re) && !re.Temporary()
}

// IsNotFound reports whether err means the target document does not exist.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var re *ResponseError
	return errors.As(err, &re) && re.Status == http.StatusNotFound
}

// DocumentPath escapes a document identifier for use as a single URL path
// segment. The clients join identifiers into request paths verbatim.
func DocumentPath(id string) string {
	return url.PathEscape(id)
}
