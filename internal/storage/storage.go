// Package storage persists indexed passages and the source files they were loaded from.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hyperjump/wislaw/internal/models"
)

// ErrNotFound is returned when a passage or source does not exist.
var ErrNotFound = errors.New("not found")

// Source records one loaded passage file. Documents lists the distinct
// source_file values of the passages the file contributed; PassageIDs lists
// the passages themselves, so a reload or removal touches only this file's passages.
type Source struct {
	Path       string
	ModTime    time.Time
	Passages   int
	Documents  []string
	PassageIDs []string
	LoadedAt   time.Time
}

// Storage defines passage and source persistence operations.
type Storage interface {
	// Passage operations
	UpsertPassages(ctx context.Context, passages []*models.Passage) error
	GetPassage(ctx context.Context, id string) (*models.Passage, error)
	GetPassages(ctx context.Context, ids []string) ([]*models.Passage, error)
	ListPassages(ctx context.Context, offset, limit int) ([]*models.Passage, error)
	PassageIDsBySource(ctx context.Context, sourceFile string) ([]string, error)
	DeletePassages(ctx context.Context, ids []string) error

	// Source operations
	PutSource(ctx context.Context, src *Source) error
	GetSource(ctx context.Context, path string) (*Source, error)
	ListSources(ctx context.Context) ([]*Source, error)
	DeleteSource(ctx context.Context, path string) error

	// Stats
	CountPassages(ctx context.Context) (int64, error)
	CountSources(ctx context.Context) (int64, error)

	Close() error
}
