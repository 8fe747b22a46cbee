// Package keyword provides the exact-match metadata index over passages.
package keyword

import (
	"context"

	"github.com/hyperjump/wislaw/internal/models"
)

// MetadataIndex answers exact-match metadata lookups over passages.
type MetadataIndex interface {
	IndexPassages(ctx context.Context, passages []*models.Passage) error
	// Match returns the IDs of passages whose metadata equals every key/value in
	// fields, ordered by source file then chunk index. limit <= 0 returns all matches.
	Match(ctx context.Context, fields map[string]string, limit int) ([]string, error)
	Delete(ctx context.Context, ids []string) error
	Close() error
}
