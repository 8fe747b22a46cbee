package vector

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestMemoryIndex(t *testing.T) *MemoryIndex {
	t.Helper()
	idx, err := NewMemoryIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	if err := idx.Upsert(context.Background(), []string{"a", "b", "c"}, vecs); err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestNewMemoryIndex_invalidDimensions(t *testing.T) {
	if _, err := NewMemoryIndex(0); err == nil {
		t.Error("expected error for zero dimensions")
	}
}

func TestMemoryIndex_UpsertSearch(t *testing.T) {
	idx := newTestMemoryIndex(t)
	defer idx.Close()
	ctx := context.Background()

	if idx.Size() != 3 || idx.Dimensions() != 3 {
		t.Errorf("Size=%d Dimensions=%d", idx.Size(), idx.Dimensions())
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "b" {
		t.Errorf("unexpected order %s, %s", results[0].ID, results[1].ID)
	}
	if results[0].Distance() != 0 {
		t.Errorf("identical vector should have distance 0, got %v", results[0].Distance())
	}

	// Upsert replaces in place.
	if err := idx.Upsert(ctx, []string{"c"}, [][]float32{{1, 0, 0}}); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 3 {
		t.Errorf("upsert of existing id should not grow the index, Size=%d", idx.Size())
	}
	results, _ = idx.Search(ctx, []float32{1, 0, 0}, 3, nil)
	if results[0].ID != "a" || results[1].ID != "c" {
		t.Errorf("ties should keep insertion order, got %s, %s", results[0].ID, results[1].ID)
	}

	if err := idx.Upsert(ctx, []string{"d"}, [][]float32{{1, 0}}); err == nil {
		t.Error("expected dimension mismatch error")
	}
	if _, err := idx.Search(ctx, []float32{1}, 1, nil); err == nil {
		t.Error("expected query dimension mismatch error")
	}
}

func TestMemoryIndex_SearchAllow(t *testing.T) {
	idx := newTestMemoryIndex(t)
	allowed := map[string]bool{"c": true}
	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 5, func(id string) bool { return allowed[id] })
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "c" {
		t.Errorf("allow func should restrict results, got %v", results)
	}
}

func TestMemoryIndex_Remove(t *testing.T) {
	idx := newTestMemoryIndex(t)
	ctx := context.Background()
	if err := idx.Remove(ctx, []string{"a"}); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 2 {
		t.Errorf("Size after remove = %d", idx.Size())
	}
	// Positions are rebuilt: upserting "c" must replace, not append.
	if err := idx.Upsert(ctx, []string{"c"}, [][]float32{{0, 0, 1}}); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 2 {
		t.Errorf("Size after upsert = %d", idx.Size())
	}
}

func TestMemoryIndex_SaveLoad(t *testing.T) {
	idx := newTestMemoryIndex(t)
	path := filepath.Join(t.TempDir(), "vectors", "index.bin")
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := NewMemoryIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 3 {
		t.Fatalf("loaded Size = %d", loaded.Size())
	}
	results, _ := loaded.Search(context.Background(), []float32{0, 1, 0}, 1, nil)
	if results[0].ID != "c" {
		t.Errorf("top result after load = %s", results[0].ID)
	}

	wrongDim, _ := NewMemoryIndex(4)
	if err := wrongDim.Load(path); err == nil {
		t.Error("expected dimension mismatch on load")
	}

	missing, _ := NewMemoryIndex(3)
	if err := missing.Load(filepath.Join(t.TempDir(), "nope.bin")); err != nil {
		t.Errorf("missing file should not be an error: %v", err)
	}
}

func BenchmarkMemoryIndexSearch(b *testing.B) {
	idx, _ := NewMemoryIndex(384)
	ctx := context.Background()
	vecs := make([][]float32, 1000)
	ids := make([]string, 1000)
	for i := 0; i < 1000; i++ {
		vecs[i] = make([]float32, 384)
		vecs[i][0] = float32(i) / 1000
		vecs[i][1] = 1
		ids[i] = "p" + string(rune('a'+i%26)) + string(rune('a'+i/26%26)) + string(rune('a'+i/676))
	}
	_ = idx.Upsert(ctx, ids, vecs)
	query := make([]float32, 384)
	query[0] = 1.0
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.Search(ctx, query, 15, nil)
	}
}
