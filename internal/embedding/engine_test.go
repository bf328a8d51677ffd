package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	got, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0})
	if err != nil {
		t.Fatalf("CosineSimilarity: %v", err)
	}
	if math.Abs(got-1) > 1e-9 {
		t.Fatalf("identical vectors: got %v, want 1", got)
	}

	got, err = CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	if err != nil {
		t.Fatalf("CosineSimilarity: %v", err)
	}
	if math.Abs(got) > 1e-9 {
		t.Fatalf("orthogonal vectors: got %v, want 0", got)
	}

	if _, err := CosineSimilarity([]float32{1}, []float32{1, 2}); err == nil {
		t.Fatal("dimension mismatch should error")
	}

	got, err = CosineSimilarity([]float32{0, 0}, []float32{1, 1})
	if err != nil || got != 0 {
		t.Fatalf("zero magnitude: got %v err %v, want 0 nil", got, err)
	}
}

func TestNewEngineRejectsUnknownProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = "word2vec"
	if _, err := NewEngine(cfg); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestOllamaEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Prompt != "The Outlaw Kid" {
			t.Fatalf("unexpected prompt %q", req.Prompt)
		}
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	engine, err := NewOllamaEngine(srv.URL, "all-minilm", 3)
	if err != nil {
		t.Fatalf("NewOllamaEngine: %v", err)
	}
	vec, err := engine.Embed(context.Background(), "The Outlaw Kid")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Fatalf("unexpected vector %v", vec)
	}
	if engine.Dimensions() != 3 {
		t.Fatalf("Dimensions()=%d", engine.Dimensions())
	}
	if engine.Name() != "ollama:all-minilm" {
		t.Fatalf("Name()=%q", engine.Name())
	}
}

func TestOllamaEmbedServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	engine, _ := NewOllamaEngine(srv.URL, "all-minilm", 0)
	if _, err := engine.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected error on non-200 status")
	}
}

func TestOllamaEmbedBatchSequential(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{float32(calls)}})
	}))
	defer srv.Close()

	engine, _ := NewOllamaEngine(srv.URL, "all-minilm", 1)
	vecs, err := engine.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 || calls != 3 {
		t.Fatalf("expected 3 sequential calls, got %d vectors / %d calls", len(vecs), calls)
	}
}
