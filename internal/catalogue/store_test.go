package catalogue

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "index.db"), 3)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreUpsertAndQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	recs := []struct {
		id  string
		rec Record
		vec []float32
	}{
		{"outlaw-kid_9_1955", Record{Series: "The Outlaw Kid", IssueNumber: "9", Price: 55}, []float32{1, 0, 0}},
		{"spawn_1_1992", Record{Series: "Spawn", IssueNumber: "1", Price: 120}, []float32{0, 1, 0}},
		{"batman_27_1939", Record{Series: "Batman", IssueNumber: "27", Price: 900}, []float32{0, 0, 1}},
	}
	for _, r := range recs {
		if err := s.Upsert(ctx, r.id, r.rec, r.vec); err != nil {
			t.Fatalf("Upsert(%s): %v", r.id, err)
		}
	}

	got, err := s.Query(ctx, []float32{0.9, 0.1, 0}, 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	if got[0].Record.Series != "The Outlaw Kid" {
		t.Fatalf("nearest = %q, want The Outlaw Kid", got[0].Record.Series)
	}
	if got[0].Similarity <= got[1].Similarity {
		t.Fatalf("candidates not ordered by similarity: %v vs %v", got[0].Similarity, got[1].Similarity)
	}
}

func TestStoreUpsertIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := Record{Series: "Spawn", IssueNumber: "1", Price: 100}
	for i := 0; i < 3; i++ {
		rec.Price += 5
		if err := s.Upsert(ctx, "spawn_1_1992", rec, []float32{0, 1, 0}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("Count = %d, want 1 after repeated upserts", n)
	}

	got, err := s.Query(ctx, []float32{0, 1, 0}, 1)
	if err != nil || len(got) != 1 {
		t.Fatalf("Query: %v (%d results)", err, len(got))
	}
	if got[0].Record.Price != 115 {
		t.Fatalf("Price = %v, want the last upserted value", got[0].Record.Price)
	}
}

func TestStoreRejectsDimensionMismatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, "x", Record{}, []float32{1, 2}); err == nil {
		t.Fatal("expected dimension mismatch on upsert")
	}
	if _, err := s.Query(ctx, []float32{1, 2, 3, 4}, 5); err == nil {
		t.Fatal("expected dimension mismatch on query")
	}
}

func TestStoreWikiLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries := []WikiEntry{
		{Title: "Spawn", Publisher: "Image", Summary: "Al Simmons returns."},
		{Title: "Spawn: Blood Feud", Publisher: "Image", Summary: "Miniseries."},
		{Title: "Batman", Publisher: "DC", Summary: "The Dark Knight."},
	}
	if err := s.LoadWiki(ctx, entries); err != nil {
		t.Fatalf("LoadWiki: %v", err)
	}

	got, err := s.WikiLookup(ctx, "SPAWN", 3)
	if err != nil {
		t.Fatalf("WikiLookup: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2 spawn entries", len(got))
	}

	got, err = s.WikiLookup(ctx, "spawn", 1)
	if err != nil || len(got) != 1 {
		t.Fatalf("limit not honored: %v (%d entries)", err, len(got))
	}

	got, err = s.WikiLookup(ctx, "", 3)
	if err != nil || got != nil {
		t.Fatalf("empty title should return nothing, got %v / %v", got, err)
	}
}
