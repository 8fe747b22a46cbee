// Package indexer loads pre-chunked passage files (JSONL) into a similarity index.
package indexer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hyperjump/wislaw/internal/index"
	"github.com/hyperjump/wislaw/internal/metrics"
	"github.com/hyperjump/wislaw/internal/models"
	"github.com/hyperjump/wislaw/internal/passageid"
	"github.com/hyperjump/wislaw/internal/storage"
	"go.uber.org/zap"
)

// DefaultBatchSize is the number of passages sent to the index per upsert.
const DefaultBatchSize = 100

// PassageExt is the extension of passage files picked up by IndexDirectory.
const PassageExt = ".jsonl"

// maxLineBytes bounds a single JSONL record.
const maxLineBytes = 16 << 20

// SourceStore keeps track of which passage files have been loaded.
type SourceStore interface {
	PutSource(ctx context.Context, src *storage.Source) error
	GetSource(ctx context.Context, path string) (*storage.Source, error)
	ListSources(ctx context.Context) ([]*storage.Source, error)
	DeleteSource(ctx context.Context, path string) error
}

// Indexer loads passage files into an index.Writer.
type Indexer struct {
	writer    index.Writer
	sources   SourceStore
	batchSize int
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (file loaded, file skipped, source removed).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithMetrics records loaded and failed passage counts.
func WithMetrics(m *metrics.Metrics) IndexerOption {
	return func(idx *Indexer) { idx.metrics = m }
}

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.batchSize = n
		}
	}
}

// NewIndexer creates an indexer writing passages to writer and recording
// loaded files in sources.
func NewIndexer(writer index.Writer, sources SourceStore, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		writer:    writer,
		sources:   sources,
		batchSize: DefaultBatchSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// record is one line of a passage file.
type record struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata recordMetadata `json:"metadata"`
}

type recordMetadata struct {
	SourceFile    string `json:"source_file"`
	DocType       string `json:"doc_type"`
	SectionNumber string `json:"section_number"`
	Chapter       string `json:"chapter"`
	SubChunk      int    `json:"sub_chunk"`
	ChunkIndex    int    `json:"chunk_index"`
}

// ReadPassages parses a JSONL passage stream. path identifies the stream for
// generated IDs and is the fallback source_file (base name without extension).
// Records with blank text are skipped; a malformed line fails the whole read.
func ReadPassages(r io.Reader, path string) ([]*models.Passage, error) {
	fallbackSource := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var passages []*models.Passage
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		text := Preprocess(rec.Text)
		if text == "" {
			continue
		}
		m := rec.Metadata
		if m.SourceFile == "" {
			m.SourceFile = fallbackSource
		}
		docType := models.ClassifyDocument(m.SourceFile)
		if m.DocType != "" {
			docType = models.ParseDocType(m.DocType)
		}
		id := strings.TrimSpace(rec.ID)
		if id == "" {
			id = passageid.New(path, len(passages))
		}
		passages = append(passages, &models.Passage{
			ID:   id,
			Text: text,
			Metadata: models.Metadata{
				SourceFile:    m.SourceFile,
				DocType:       docType,
				SectionNumber: strings.TrimSpace(m.SectionNumber),
				Chapter:       strings.TrimSpace(m.Chapter),
				SubChunk:      m.SubChunk,
				ChunkIndex:    m.ChunkIndex,
			},
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return passages, nil
}

// documents returns the distinct source_file values of passages, sorted.
func documents(passages []*models.Passage) []string {
	set := make(map[string]struct{})
	for _, p := range passages {
		set[p.Metadata.SourceFile] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// IndexFile loads a JSONL passage file. Passages the file previously
// contributed and no longer contains are deleted; passages of other files
// are never touched, even when they share a source_file. Skips loading if
// the file was already loaded with the same mtime. Returns the number of
// passages written.
func (idx *Indexer) IndexFile(ctx context.Context, path string) (int, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	if !strings.EqualFold(filepath.Ext(absPath), PassageExt) {
		return 0, fmt.Errorf("extension %q is not %s", filepath.Ext(absPath), PassageExt)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return 0, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("not a regular file: %s", absPath)
	}

	prev, err := idx.sources.GetSource(ctx, absPath)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return 0, fmt.Errorf("lookup source: %w", err)
	}
	if prev != nil && prev.ModTime.Equal(info.ModTime()) {
		idx.logger.Debug("indexer skipping unchanged file", zap.String("path", absPath))
		return 0, nil
	}

	f, err := os.Open(absPath)
	if err != nil {
		return 0, fmt.Errorf("open file: %w", err)
	}
	passages, err := ReadPassages(f, absPath)
	_ = f.Close()
	if err != nil {
		return 0, err
	}

	ids := passageIDs(passages)
	if prev != nil {
		if stale := missingFrom(prev.PassageIDs, ids); len(stale) > 0 {
			if err := idx.writer.Delete(ctx, stale); err != nil {
				return 0, fmt.Errorf("delete stale passages: %w", err)
			}
		}
	}

	for start := 0; start < len(passages); start += idx.batchSize {
		end := min(start+idx.batchSize, len(passages))
		if err := idx.writer.Upsert(ctx, passages[start:end]); err != nil {
			idx.metrics.RecordPassagesLoaded("failed", len(passages)-start)
			return start, fmt.Errorf("upsert passages %d-%d: %w", start, end-1, err)
		}
		idx.metrics.RecordPassagesLoaded("ok", end-start)
		idx.logger.Debug("indexer batch written",
			zap.String("path", absPath), zap.Int("from", start), zap.Int("to", end))
	}

	docs := documents(passages)
	if err := idx.sources.PutSource(ctx, &storage.Source{
		Path:       absPath,
		ModTime:    info.ModTime(),
		Passages:   len(passages),
		Documents:  docs,
		PassageIDs: ids,
	}); err != nil {
		return len(passages), fmt.Errorf("record source: %w", err)
	}
	idx.logger.Info("passage file indexed",
		zap.String("path", absPath), zap.Int("passages", len(passages)), zap.Int("documents", len(docs)))
	return len(passages), nil
}

func passageIDs(passages []*models.Passage) []string {
	ids := make([]string, len(passages))
	for i, p := range passages {
		ids[i] = p.ID
	}
	return ids
}

// missingFrom returns the entries of prev that are not in cur.
func missingFrom(prev, cur []string) []string {
	keep := make(map[string]struct{}, len(cur))
	for _, id := range cur {
		keep[id] = struct{}{}
	}
	var out []string
	for _, id := range prev {
		if _, ok := keep[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// IndexDirectory walks dir recursively and loads each .jsonl file. Returns the
// number of files walked and the first error encountered, if any.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), PassageExt) {
			return nil
		}
		// Resolve symlinks so we only load regular files
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		if _, indexErr := idx.IndexFile(ctx, path); indexErr != nil {
			return indexErr
		}
		n++
		return nil
	})
	return n, err
}

// RemoveFile deletes the passages the passage file at path contributed and
// forgets the file. Removing a file that was never loaded is a no-op.
func (idx *Indexer) RemoveFile(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	src, err := idx.sources.GetSource(ctx, absPath)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup source: %w", err)
	}
	if err := idx.writer.Delete(ctx, src.PassageIDs); err != nil {
		return fmt.Errorf("delete passages: %w", err)
	}
	if err := idx.sources.DeleteSource(ctx, absPath); err != nil {
		return fmt.Errorf("forget source: %w", err)
	}
	idx.logger.Info("passage file removed", zap.String("path", absPath), zap.Int("passages", len(src.PassageIDs)))
	return nil
}

// Sources lists every loaded passage file.
func (idx *Indexer) Sources(ctx context.Context) ([]*storage.Source, error) {
	return idx.sources.ListSources(ctx)
}
