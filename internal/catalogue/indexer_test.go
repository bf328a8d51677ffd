package catalogue

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestParseEntry(t *testing.T) {
	rec, ok := ParseEntry("The Outlaw Kid: 9 (1955) By Marvel Volume 1,9 - £55.00 VG")
	if !ok {
		t.Fatal("expected a well-formed entry to parse")
	}
	if rec.Series != "The Outlaw Kid" {
		t.Fatalf("Series = %q", rec.Series)
	}
	if rec.Year != 1955 || rec.Publisher != "Marvel" || rec.Volume != 1 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.IssueNumber != "9" {
		t.Fatalf("IssueNumber = %q, want 9", rec.IssueNumber)
	}
	if rec.Price != 55.00 {
		t.Fatalf("Price = %v, want 55", rec.Price)
	}
	if rec.FullTitle == "" {
		t.Fatal("FullTitle must preserve the raw line")
	}
}

func TestParseEntryFallbackPrice(t *testing.T) {
	rec, ok := ParseEntry("Spawn: 1 (1992) By Image Volume 1,1 sold for 120.00 recently")
	if !ok {
		t.Fatal("expected entry to parse")
	}
	if rec.Price != 120.00 {
		t.Fatalf("Price = %v, want fallback number 120", rec.Price)
	}
}

func TestParseEntryRejectsGarbage(t *testing.T) {
	for _, line := range []string{"", "   ", "not a dump line", "Title without year By Nobody"} {
		if _, ok := ParseEntry(line); ok {
			t.Fatalf("line %q should not parse", line)
		}
	}
}

func TestRecordIDStableAndASCII(t *testing.T) {
	rec := Record{Series: "Détective Comics", IssueNumber: "27", Year: 1939}
	id := RecordID(rec)
	if id != RecordID(rec) {
		t.Fatal("RecordID must be deterministic")
	}
	for _, r := range id {
		if r > 127 {
			t.Fatalf("id %q contains non-ASCII rune %q", id, r)
		}
	}
	if id == "" {
		t.Fatal("id must not be empty")
	}
}

type captureWriter struct {
	upserts map[string]Record
	wiki    []WikiEntry
}

func (c *captureWriter) Upsert(ctx context.Context, id string, rec Record, vector []float32) error {
	if c.upserts == nil {
		c.upserts = make(map[string]Record)
	}
	c.upserts[id] = rec
	return nil
}

func (c *captureWriter) LoadWiki(ctx context.Context, entries []WikiEntry) error {
	c.wiki = entries
	return nil
}

func TestIndexFile(t *testing.T) {
	dump := `The Outlaw Kid: 9 (1955) By Marvel Volume 1,9 - £55.00 VG
garbage line that should be skipped
Spawn: 1 (1992) By Image Volume 1,1 - £120.00 NM
The Outlaw Kid: 9 (1955) By Marvel Volume 1,9 - £60.00 FN
`
	path := filepath.Join(t.TempDir(), "dump.txt")
	if err := os.WriteFile(path, []byte(dump), 0o644); err != nil {
		t.Fatal(err)
	}

	w := &captureWriter{}
	ix := NewIndexer(w, &fakeEngine{vec: []float32{0.5, 0.5}})

	n, err := ix.IndexFile(context.Background(), path)
	if err != nil {
		t.Fatalf("IndexFile: %v", err)
	}
	if n != 3 {
		t.Fatalf("indexed %d records, want 3", n)
	}
	// Duplicate identity lands on the same id, so the map holds 2.
	if len(w.upserts) != 2 {
		t.Fatalf("stored %d distinct ids, want 2", len(w.upserts))
	}
}

func TestIndexWiki(t *testing.T) {
	corpus := "Spawn\tImage\tAl Simmons returns from the dead.\nBatman\tDC\n\n"
	path := filepath.Join(t.TempDir(), "wiki.tsv")
	if err := os.WriteFile(path, []byte(corpus), 0o644); err != nil {
		t.Fatal(err)
	}

	w := &captureWriter{}
	ix := NewIndexer(w, &fakeEngine{vec: []float32{1}})

	n, err := ix.IndexWiki(context.Background(), path)
	if err != nil {
		t.Fatalf("IndexWiki: %v", err)
	}
	if n != 2 {
		t.Fatalf("loaded %d entries, want 2", n)
	}
	if w.wiki[0].Publisher != "Image" || w.wiki[0].Summary == "" {
		t.Fatalf("unexpected first entry %+v", w.wiki[0])
	}
	if w.wiki[1].Title != "Batman" || w.wiki[1].Summary != "" {
		t.Fatalf("unexpected second entry %+v", w.wiki[1])
	}
}
