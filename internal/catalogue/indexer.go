package catalogue

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/defibabylon/collectorsage/internal/embedding"
	"github.com/defibabylon/collectorsage/internal/logging"
)

// Writer is the mutable side of the semantic index, used when building
// or refreshing the catalogue from dump files.
type Writer interface {
	Upsert(ctx context.Context, id string, rec Record, vector []float32) error
	LoadWiki(ctx context.Context, entries []WikiEntry) error
}

// Indexer parses sale-record dump files and loads them into the index.
type Indexer struct {
	writer    Writer
	engine    embedding.Engine
	batchSize int
}

// NewIndexer builds an indexer writing through the given writer.
func NewIndexer(writer Writer, engine embedding.Engine) *Indexer {
	return &Indexer{
		writer:    writer,
		engine:    engine,
		batchSize: 50,
	}
}

// Dump lines look like:
//
//	Amazing Fantasy: 15 (1962) By Marvel Volume 1,1 - £2500.00 VG+
//
// Series, issue, year, publisher, volume and issue-within-volume, then
// free text that usually carries a price.
var (
	entryRe = regexp.MustCompile(`^(.*?):? (.*?) \((\d{4})\) By (.*?) Volume (\d+),(\d+)(.*)$`)
	gbpRe   = regexp.MustCompile(`£(\d+(?:\.\d{2})?)`)
	numRe   = regexp.MustCompile(`\d+(?:\.\d{2})?`)
)

// ParseEntry parses one dump line into a Record. Lines that do not match
// the dump grammar return ok=false and are skipped by the caller.
func ParseEntry(line string) (Record, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Record{}, false
	}

	m := entryRe.FindStringSubmatch(line)
	if m == nil {
		return Record{}, false
	}

	year, _ := strconv.Atoi(m[3])
	volume, _ := strconv.Atoi(m[5])

	rec := Record{
		Series:      strings.TrimSpace(m[1]),
		Title:       strings.TrimSpace(m[1]),
		IssueNumber: strings.TrimSpace(m[6]),
		Year:        year,
		Publisher:   strings.TrimSpace(m[4]),
		Volume:      volume,
		FullTitle:   line,
		Price:       extractPrice(m[7]),
	}
	return rec, true
}

// extractPrice prefers an explicit sterling amount, then falls back to
// the first bare number in the trailing text.
func extractPrice(s string) float64 {
	if m := gbpRe.FindStringSubmatch(s); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return v
		}
	}
	if m := numRe.FindString(s); m != "" {
		if v, err := strconv.ParseFloat(m, 64); err == nil {
			return v
		}
	}
	return 0
}

// RecordID derives a stable ASCII id from the record's identity, so
// re-indexing the same dump is idempotent.
func RecordID(rec Record) string {
	raw := fmt.Sprintf("%s_%s_%d", rec.Series, rec.IssueNumber, rec.Year)
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '.':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		}
	}
	return b.String()
}

// IndexFile parses the dump file at path and loads every well-formed
// entry into the index, embedding in batches. Returns how many records
// were indexed.
func (ix *Indexer) IndexFile(ctx context.Context, path string) (int, error) {
	timer := logging.StartTimer(logging.CategoryCatalogue, "IndexFile")
	defer timer.Stop()

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open dump file: %w", err)
	}
	defer f.Close()

	var (
		batch   []Record
		total   int
		skipped int
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		rec, ok := ParseEntry(scanner.Text())
		if !ok {
			skipped++
			continue
		}
		batch = append(batch, rec)
		if len(batch) >= ix.batchSize {
			n, err := ix.flush(ctx, batch)
			total += n
			if err != nil {
				return total, err
			}
			batch = batch[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return total, fmt.Errorf("failed to read dump file: %w", err)
	}
	if len(batch) > 0 {
		n, err := ix.flush(ctx, batch)
		total += n
		if err != nil {
			return total, err
		}
	}

	logging.Catalogue("indexed %d records from %s (%d lines skipped)", total, path, skipped)
	return total, nil
}

func (ix *Indexer) flush(ctx context.Context, batch []Record) (int, error) {
	texts := make([]string, len(batch))
	for i, rec := range batch {
		texts[i] = rec.FullTitle
	}
	vectors, err := ix.engine.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed batch: %w", err)
	}
	if len(vectors) != len(batch) {
		return 0, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(batch))
	}

	var n int
	for i, rec := range batch {
		if err := ix.writer.Upsert(ctx, RecordID(rec), rec, vectors[i]); err != nil {
			return n, fmt.Errorf("failed to upsert %q: %w", rec.FullTitle, err)
		}
		n++
	}
	return n, nil
}

// IndexWiki loads a wiki corpus file: tab-separated title, publisher and
// summary, one entry per line.
func (ix *Indexer) IndexWiki(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open wiki file: %w", err)
	}
	defer f.Close()

	var entries []WikiEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		parts := strings.SplitN(scanner.Text(), "\t", 3)
		if len(parts) < 1 || strings.TrimSpace(parts[0]) == "" {
			continue
		}
		e := WikiEntry{Title: strings.TrimSpace(parts[0])}
		if len(parts) > 1 {
			e.Publisher = strings.TrimSpace(parts[1])
		}
		if len(parts) > 2 {
			e.Summary = strings.TrimSpace(parts[2])
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to read wiki file: %w", err)
	}

	if err := ix.writer.LoadWiki(ctx, entries); err != nil {
		return 0, err
	}
	logging.Catalogue("loaded %d wiki entries from %s", len(entries), path)
	return len(entries), nil
}
