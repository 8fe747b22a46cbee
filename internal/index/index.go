// Package index defines the similarity index consumed by retrieval and its local implementation.
package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hyperjump/wislaw/internal/models"
)

var (
	// ErrIndexUnavailable means the index could not be reached or failed to answer.
	ErrIndexUnavailable = errors.New("similarity index unavailable")
	// ErrMalformedFilter means a metadata filter was rejected.
	ErrMalformedFilter = errors.New("malformed metadata filter")
)

// Hit is a passage returned by a similarity query with its distance from the query.
// Distance is cosine distance: 0 means identical.
type Hit struct {
	Passage  *models.Passage
	Distance float64
}

// SimilarityIndex is the read side of a passage store with semantic search.
type SimilarityIndex interface {
	// Query returns up to k passages nearest to text, restricted by filter.
	Query(ctx context.Context, text string, k int, filter Filter) ([]Hit, error)
	// GetByMetadata returns every passage whose metadata matches filter exactly.
	GetByMetadata(ctx context.Context, filter Filter) ([]*models.Passage, error)
	// Count returns the number of passages held.
	Count(ctx context.Context) (int, error)
}

// Writer is the write side used by the passage loader.
type Writer interface {
	Upsert(ctx context.Context, passages []*models.Passage) error
	DeleteBySource(ctx context.Context, sourceFile string) error
	// Delete removes the passages with the given IDs. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) error
}

// ReadWriter is an index that can be both queried and loaded.
type ReadWriter interface {
	SimilarityIndex
	Writer
	Close() error
}

// Filter is an exact-match conjunction over passage metadata keys.
type Filter map[string]string

var filterKeys = map[string]struct{}{
	models.MetaSourceFile:    {},
	models.MetaDocType:       {},
	models.MetaSectionNumber: {},
	models.MetaChapter:       {},
}

// DocTypeFilter returns a filter on doc_type, or nil for an empty doc type.
func DocTypeFilter(docType string) Filter {
	if docType == "" {
		return nil
	}
	return Filter{models.MetaDocType: docType}
}

// Validate rejects unknown keys, empty values and unknown doc types.
func (f Filter) Validate() error {
	for k, v := range f {
		if _, ok := filterKeys[k]; !ok {
			return fmt.Errorf("unknown key %q: %w", k, ErrMalformedFilter)
		}
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("empty value for key %q: %w", k, ErrMalformedFilter)
		}
		if k == models.MetaDocType && !models.DocType(v).Valid() {
			return fmt.Errorf("unknown doc_type %q: %w", v, ErrMalformedFilter)
		}
	}
	return nil
}

// Matches reports whether p satisfies every entry of f.
func (f Filter) Matches(p *models.Passage) bool {
	for k, v := range f {
		got, ok := p.Metadata.Field(k)
		if !ok || got != v {
			return false
		}
	}
	return true
}

// String renders the filter with sorted keys, for logs.
func (f Filter) String() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + f[k]
	}
	return strings.Join(parts, ",")
}
