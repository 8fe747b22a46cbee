package keyword

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/wislaw/internal/models"
)

const fieldChunkIndex = "chunk_index"

var metadataFields = []string{
	models.MetaSourceFile,
	models.MetaDocType,
	models.MetaSectionNumber,
	models.MetaChapter,
}

// BleveIndex implements MetadataIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path.
// If the path already exists the existing index is reused. Changing the mapping
// requires removing the index directory.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// NewMemoryBleveIndex creates an in-memory Bleve index.
func NewMemoryBleveIndex() (*BleveIndex, error) {
	index, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func newMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	docMapping.Dynamic = false
	// Metadata is matched verbatim, so statute numbers like 346.63 stay intact.
	for _, f := range metadataFields {
		kw := bleve.NewKeywordFieldMapping()
		docMapping.AddFieldMappingsAt(f, kw)
	}
	docMapping.AddFieldMappingsAt(fieldChunkIndex, bleve.NewNumericFieldMapping())

	im.AddDocumentMapping("passage", docMapping)
	im.DefaultType = "passage"
	im.DefaultMapping = docMapping
	return im
}

func passageDocument(p *models.Passage) map[string]interface{} {
	doc := map[string]interface{}{
		fieldChunkIndex: float64(p.Metadata.ChunkIndex),
	}
	for _, f := range metadataFields {
		if v, _ := p.Metadata.Field(f); v != "" {
			doc[f] = v
		}
	}
	return doc
}

// IndexPassages indexes passages by ID in one batch.
func (b *BleveIndex) IndexPassages(ctx context.Context, passages []*models.Passage) error {
	batch := b.index.NewBatch()
	for _, p := range passages {
		if err := batch.Index(p.ID, passageDocument(p)); err != nil {
			return fmt.Errorf("failed to index passage %s: %w", p.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to commit Bleve batch: %w", err)
	}
	return nil
}

// filterQuery builds a conjunction of exact term queries, or match-all when fields is empty.
func filterQuery(fields map[string]string) blevequery.Query {
	if len(fields) == 0 {
		return bleve.NewMatchAllQuery()
	}
	terms := make([]blevequery.Query, 0, len(fields))
	for k, v := range fields {
		tq := bleve.NewTermQuery(v)
		tq.SetField(k)
		terms = append(terms, tq)
	}
	return bleve.NewConjunctionQuery(terms...)
}

func (b *BleveIndex) resultSize(limit int) (int, error) {
	if limit > 0 {
		return limit, nil
	}
	n, err := b.index.DocCount()
	if err != nil {
		return 0, fmt.Errorf("failed to get doc count: %w", err)
	}
	return int(n), nil
}

// Match returns IDs of passages whose metadata matches every entry of fields.
func (b *BleveIndex) Match(ctx context.Context, fields map[string]string, limit int) ([]string, error) {
	size, err := b.resultSize(limit)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequestOptions(filterQuery(fields), size, 0, false)
	req.SortBy([]string{models.MetaSourceFile, fieldChunkIndex, "_id"})
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve metadata match failed: %w", err)
	}
	ids := make([]string, len(results.Hits))
	for i, hit := range results.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// Delete removes passages from the index in one batch.
func (b *BleveIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return b.index.Batch(batch)
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
