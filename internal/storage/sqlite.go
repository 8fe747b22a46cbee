package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/wislaw/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS passages (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		source_file TEXT NOT NULL,
		doc_type TEXT NOT NULL,
		section_number TEXT,
		chapter TEXT,
		sub_chunk INTEGER,
		chunk_index INTEGER,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_passages_source ON passages(source_file);
	CREATE INDEX IF NOT EXISTS idx_passages_section ON passages(section_number);

	CREATE TABLE IF NOT EXISTS sources (
		path TEXT PRIMARY KEY,
		mod_time TIMESTAMP,
		passages INTEGER NOT NULL,
		documents TEXT NOT NULL DEFAULT '',
		passage_ids TEXT NOT NULL DEFAULT '',
		loaded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

const passageColumns = `id, text, source_file, doc_type, section_number, chapter, sub_chunk, chunk_index`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPassage(row rowScanner) (*models.Passage, error) {
	var p models.Passage
	var docType string
	var section, chapter sql.NullString
	var subChunk, chunkIndex sql.NullInt64
	if err := row.Scan(&p.ID, &p.Text, &p.Metadata.SourceFile, &docType, &section, &chapter, &subChunk, &chunkIndex); err != nil {
		return nil, err
	}
	p.Metadata.DocType = models.ParseDocType(docType)
	p.Metadata.SectionNumber = section.String
	p.Metadata.Chapter = chapter.String
	p.Metadata.SubChunk = int(subChunk.Int64)
	p.Metadata.ChunkIndex = int(chunkIndex.Int64)
	return &p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}

// UpsertPassages inserts or replaces passages in a transaction.
func (s *SQLiteStorage) UpsertPassages(ctx context.Context, passages []*models.Passage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO passages (`+passageColumns+`, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, p := range passages {
		m := p.Metadata
		if _, err := stmt.ExecContext(ctx,
			p.ID, p.Text, m.SourceFile, string(m.DocType),
			nullString(m.SectionNumber), nullString(m.Chapter), nullInt(m.SubChunk), nullInt(m.ChunkIndex),
			now,
		); err != nil {
			return fmt.Errorf("failed to upsert passage %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// GetPassage returns a passage by ID.
func (s *SQLiteStorage) GetPassage(ctx context.Context, id string) (*models.Passage, error) {
	p, err := scanPassage(s.db.QueryRowContext(ctx,
		`SELECT `+passageColumns+` FROM passages WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("passage %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// maxQueryParams keeps IN lists below SQLite's host parameter limit.
const maxQueryParams = 500

// GetPassages returns the passages with the given IDs in the order of ids.
// Unknown IDs are skipped.
func (s *SQLiteStorage) GetPassages(ctx context.Context, ids []string) ([]*models.Passage, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	byID := make(map[string]*models.Passage, len(ids))
	for start := 0; start < len(ids); start += maxQueryParams {
		end := min(start+maxQueryParams, len(ids))
		if err := s.loadPassages(ctx, ids[start:end], byID); err != nil {
			return nil, err
		}
	}

	out := make([]*models.Passage, 0, len(byID))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *SQLiteStorage) loadPassages(ctx context.Context, ids []string, into map[string]*models.Passage) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+passageColumns+` FROM passages WHERE id IN (`+placeholders+`)`, args...,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPassage(rows)
		if err != nil {
			return err
		}
		into[p.ID] = p
	}
	return rows.Err()
}

// ListPassages returns passages ordered by source file and chunk index.
func (s *SQLiteStorage) ListPassages(ctx context.Context, offset, limit int) ([]*models.Passage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+passageColumns+` FROM passages
		 ORDER BY source_file, chunk_index, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var passages []*models.Passage
	for rows.Next() {
		p, err := scanPassage(rows)
		if err != nil {
			return nil, err
		}
		passages = append(passages, p)
	}
	return passages, rows.Err()
}

// PassageIDsBySource returns the IDs of all passages loaded from sourceFile.
func (s *SQLiteStorage) PassageIDsBySource(ctx context.Context, sourceFile string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM passages WHERE source_file = ?`, sourceFile)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeletePassages removes the passages with the given IDs. Unknown IDs are ignored.
func (s *SQLiteStorage) DeletePassages(ctx context.Context, ids []string) error {
	for start := 0; start < len(ids); start += maxQueryParams {
		chunk := ids[start:min(start+maxQueryParams, len(ids))]
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM passages WHERE id IN (`+placeholders+`)`, args...); err != nil {
			return err
		}
	}
	return nil
}

// PutSource inserts or replaces a source record. LoadedAt is set to now.
func (s *SQLiteStorage) PutSource(ctx context.Context, src *Source) error {
	src.LoadedAt = time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sources (`+sourceColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		src.Path, src.ModTime, src.Passages, joinList(src.Documents), joinList(src.PassageIDs), src.LoadedAt,
	)
	return err
}

const sourceColumns = `path, mod_time, passages, documents, passage_ids, loaded_at`

// Lists are stored newline separated; IDs and file names never contain newlines.
func joinList(items []string) string {
	return strings.Join(items, "\n")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func scanSource(row rowScanner) (*Source, error) {
	var src Source
	var docs, ids string
	if err := row.Scan(&src.Path, &src.ModTime, &src.Passages, &docs, &ids, &src.LoadedAt); err != nil {
		return nil, err
	}
	src.Documents = splitList(docs)
	src.PassageIDs = splitList(ids)
	return &src, nil
}

// GetSource returns the source record for path.
func (s *SQLiteStorage) GetSource(ctx context.Context, path string) (*Source, error) {
	src, err := scanSource(s.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE path = ?`, path,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}

// ListSources returns all source records ordered by path.
func (s *SQLiteStorage) ListSources(ctx context.Context) ([]*Source, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// DeleteSource removes the source record for path.
func (s *SQLiteStorage) DeleteSource(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE path = ?`, path)
	return err
}

// CountPassages returns the total number of passages.
func (s *SQLiteStorage) CountPassages(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM passages`).Scan(&count)
	return count, err
}

// CountSources returns the total number of loaded source files.
func (s *SQLiteStorage) CountSources(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
