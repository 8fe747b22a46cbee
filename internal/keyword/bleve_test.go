package keyword

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hyperjump/wislaw/internal/models"
)

func samplePassages() []*models.Passage {
	return []*models.Passage{
		{ID: "s2", Text: "346.65 Penalty for violating section 346.63.", Metadata: models.Metadata{
			SourceFile: "346.pdf", DocType: models.DocTypeStatute, SectionNumber: "346.65", Chapter: "346", ChunkIndex: 2,
		}},
		{ID: "s1", Text: "346.63 Operating under influence of intoxicant.", Metadata: models.Metadata{
			SourceFile: "346.pdf", DocType: models.DocTypeStatute, SectionNumber: "346.63", Chapter: "346", ChunkIndex: 1,
		}},
		{ID: "s1b", Text: "346.63 continued: prohibited alcohol concentration.", Metadata: models.Metadata{
			SourceFile: "346.pdf", DocType: models.DocTypeStatute, SectionNumber: "346.63", Chapter: "346", SubChunk: 2, ChunkIndex: 3,
		}},
		{ID: "c1", Text: "The officer lacked reasonable suspicion for the traffic stop.", Metadata: models.Metadata{
			SourceFile: "case_state_v_doe.pdf", DocType: models.DocTypeCaseLaw, ChunkIndex: 1,
		}},
	}
}

func newTestIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex(filepath.Join(t.TempDir(), "metadata.bleve"))
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	if err := idx.IndexPassages(context.Background(), samplePassages()); err != nil {
		t.Fatalf("IndexPassages: %v", err)
	}
	return idx
}

func TestBleveIndex_Match(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		fields map[string]string
		limit  int
		want   []string
	}{
		{"by section", map[string]string{models.MetaSectionNumber: "346.63"}, 0, []string{"s1", "s1b"}},
		{"by doc type", map[string]string{models.MetaDocType: "case_law"}, 0, []string{"c1"}},
		{"conjunction", map[string]string{models.MetaChapter: "346", models.MetaSectionNumber: "346.65"}, 0, []string{"s2"}},
		{"limit", map[string]string{models.MetaSourceFile: "346.pdf"}, 2, []string{"s1", "s2"}},
		{"no match", map[string]string{models.MetaSectionNumber: "940.01"}, 0, []string{}},
		{"case sensitive", map[string]string{models.MetaDocType: "Statute"}, 0, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := idx.Match(ctx, tt.fields, tt.limit)
			if err != nil {
				t.Fatalf("Match: %v", err)
			}
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Match = %v, want %v", got, tt.want)
			}
		})
	}

	all, err := idx.Match(ctx, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Errorf("empty filter should match all, got %v", all)
	}
}

func TestBleveIndex_Delete(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	if err := idx.Delete(ctx, []string{"s1", "s1b"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err := idx.Match(ctx, map[string]string{models.MetaSectionNumber: "346.63"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no matches after delete, got %v", got)
	}
	all, err := idx.Match(ctx, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("remaining passages = %v, want 2", all)
	}
}

func TestBleveIndex_ReopenKeepsPassages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "metadata.bleve")
	ctx := context.Background()

	idx1, err := NewBleveIndex(path)
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	if err := idx1.IndexPassages(ctx, samplePassages()[:1]); err != nil {
		t.Fatal(err)
	}
	if err := idx1.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("index path should exist: %v", err)
	}

	idx2, err := NewBleveIndex(path)
	if err != nil {
		t.Fatalf("NewBleveIndex (reopen): %v", err)
	}
	defer func() { _ = idx2.Close() }()
	got, err := idx2.Match(ctx, map[string]string{models.MetaSectionNumber: "346.65"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "s2" {
		t.Errorf("Match after reopen = %v", got)
	}
}

func TestNewMemoryBleveIndex(t *testing.T) {
	idx, err := NewMemoryBleveIndex()
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	got, err := idx.Match(context.Background(), nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("empty index should match nothing, got %v", got)
	}
}
