package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMeasureUsage(t *testing.T) {
	dir := t.TempDir()

	db := filepath.Join(dir, "wislaw.db")
	if err := os.WriteFile(db, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(db+"-wal", []byte("wal"), 0644); err != nil {
		t.Fatal(err)
	}

	bleveDir := filepath.Join(dir, "metadata.bleve")
	if err := os.MkdirAll(filepath.Join(bleveDir, "store"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bleveDir, "index_meta.json"), []byte("ab"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bleveDir, "store", "root.bolt"), []byte("c"), 0644); err != nil {
		t.Fatal(err)
	}

	u, err := MeasureUsage(map[string]string{
		"database": db,
		"metadata": bleveDir,
		"vectors":  filepath.Join(dir, "nonexistent.bin"),
		"unused":   "",
	})
	if err != nil {
		t.Fatal(err)
	}
	if u.Components["database"] != 8 {
		t.Errorf("database: got %d bytes, want 8 (db + wal)", u.Components["database"])
	}
	if u.Components["metadata"] != 3 {
		t.Errorf("metadata: got %d bytes, want 3", u.Components["metadata"])
	}
	if u.Components["vectors"] != 0 {
		t.Errorf("missing path should count as 0, got %d", u.Components["vectors"])
	}
	if _, ok := u.Components["unused"]; ok {
		t.Error("empty path should be skipped")
	}
	if u.Total != 11 {
		t.Errorf("Total = %d, want 11", u.Total)
	}
}
