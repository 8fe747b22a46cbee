package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOllamaEmbedder_EmbedBatch(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"embeddings":[[3,4],[0,2]]}`))
	}))
	defer server.Close()

	e, err := NewOllamaEmbedder(server.URL+"/", "nomic-embed-text", 2)
	if err != nil {
		t.Fatal(err)
	}
	vecs, err := e.EmbedBatch(context.Background(), []string{"owi", "dui"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if captured["model"] != "nomic-embed-text" {
		t.Errorf("model = %v", captured["model"])
	}
	if inputs, _ := captured["input"].([]any); len(inputs) != 2 {
		t.Errorf("input = %v", captured["input"])
	}
	if math.Abs(float64(vecs[0][0])-0.6) > 1e-6 || math.Abs(float64(vecs[0][1])-0.8) > 1e-6 {
		t.Errorf("vectors should be normalized, got %v", vecs[0])
	}
}

func TestOllamaEmbedder_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	e, _ := NewOllamaEmbedder(server.URL, "m", 2)
	_, err := e.Embed(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}

	wrongDim := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[1,2,3]]}`))
	}))
	defer wrongDim.Close()
	e, _ = NewOllamaEmbedder(wrongDim.URL, "m", 2)
	if _, err := e.Embed(context.Background(), "hello"); err == nil {
		t.Error("expected dimension mismatch error")
	}

	if _, err := NewOllamaEmbedder("http://localhost", "", 2); err == nil {
		t.Error("expected error for missing model")
	}
}
