package catalogue

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/defibabylon/collectorsage/internal/logging"
)

// Candidate is a nearest-neighbor hit from the semantic index, before
// re-ranking.
type Candidate struct {
	// Similarity is the cosine similarity reported by the index (1 - distance).
	Similarity float64
	Record     Record
}

// Index is the read-only view the resolver needs. Query never mutates
// catalogue state.
type Index interface {
	Query(ctx context.Context, vector []float32, topK int) ([]Candidate, error)
	WikiLookup(ctx context.Context, title string, limit int) ([]WikiEntry, error)
}

// Store is the sqlite-backed semantic index. Vector search uses the
// sqlite-vec extension when available (build tag sqlite_vec) and falls
// back to a brute-force scan otherwise, so tests and small deployments
// need no extension.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	dims   int
	hasVec bool
}

// NewStore opens (or creates) the index database at path.
func NewStore(path string, dims int) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryCatalogue, "NewStore")
	defer timer.Stop()

	if dims <= 0 {
		return nil, fmt.Errorf("embedding dimensions required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}

	s := &Store{db: db, dims: dims}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS comics (
		id TEXT PRIMARY KEY,
		full_title TEXT NOT NULL,
		metadata TEXT NOT NULL,
		embedding BLOB NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_comics_full_title ON comics(full_title);

	CREATE TABLE IF NOT EXISTS wiki_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		publisher TEXT,
		summary TEXT
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create index schema: %w", err)
	}

	// ANN side table; populated alongside comics. May be unavailable when
	// the extension is not compiled in.
	vecTable := fmt.Sprintf(
		"CREATE VIRTUAL TABLE IF NOT EXISTS vec_comics USING vec0(embedding float[%d], comic_id TEXT)", s.dims)
	if _, err := s.db.Exec(vecTable); err != nil {
		logging.Get(logging.CategoryCatalogue).Warn("sqlite-vec unavailable, using brute-force search: %v", err)
		s.hasVec = false
	} else {
		s.hasVec = true
		logging.CatalogueDebug("sqlite-vec table ready with %d dimensions", s.dims)
	}
	return nil
}

// Upsert stores a record and its embedding under a stable id.
func (s *Store) Upsert(ctx context.Context, id string, rec Record, vector []float32) error {
	if id == "" {
		return fmt.Errorf("record id required")
	}
	if len(vector) != s.dims {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vector), s.dims)
	}

	meta, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record metadata: %w", err)
	}
	blob := encodeFloat32SliceToBlob(vector)

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin upsert: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO comics (id, full_title, metadata, embedding)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			full_title = excluded.full_title,
			metadata = excluded.metadata,
			embedding = excluded.embedding
	`, id, rec.FullTitle, string(meta), blob); err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}

	if s.hasVec {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM vec_comics WHERE comic_id = ?", id); err != nil {
			return fmt.Errorf("failed to clear vec row: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO vec_comics (embedding, comic_id) VALUES (?, ?)", blob, id); err != nil {
			return fmt.Errorf("failed to insert vec row: %w", err)
		}
	}

	return tx.Commit()
}

// Query returns the topK nearest records by cosine similarity.
func (s *Store) Query(ctx context.Context, vector []float32, topK int) ([]Candidate, error) {
	timer := logging.StartTimer(logging.CategoryCatalogue, "Store.Query")
	defer timer.Stop()

	if topK <= 0 {
		topK = 20
	}
	if len(vector) != s.dims {
		return nil, fmt.Errorf("query dimension mismatch: got %d, want %d", len(vector), s.dims)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.hasVec {
		candidates, err := s.queryVec(ctx, vector, topK)
		if err == nil {
			return candidates, nil
		}
		logging.CatalogueDebug("vec query failed, falling back to brute force: %v", err)
	}
	return s.queryBruteForce(ctx, vector, topK)
}

func (s *Store) queryVec(ctx context.Context, vector []float32, topK int) ([]Candidate, error) {
	blob := encodeFloat32SliceToBlob(vector)
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.metadata, vec_distance_cosine(v.embedding, ?) AS distance
		FROM vec_comics v
		JOIN comics c ON v.comic_id = c.id
		ORDER BY distance ASC
		LIMIT ?
	`, blob, topK)
	if err != nil {
		return nil, fmt.Errorf("vec search failed: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var meta string
		var distance float64
		if err := rows.Scan(&meta, &distance); err != nil {
			logging.Get(logging.CategoryCatalogue).Warn("failed to scan index row: %v", err)
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(meta), &rec); err != nil {
			logging.Get(logging.CategoryCatalogue).Warn("skipping malformed metadata: %v", err)
			continue
		}
		candidates = append(candidates, Candidate{Similarity: 1 - distance, Record: rec})
	}
	return candidates, rows.Err()
}

// queryBruteForce scans every stored embedding. Fine for the catalogue
// sizes the dump files produce; the vec path exists for larger indexes.
func (s *Store) queryBruteForce(ctx context.Context, vector []float32, topK int) ([]Candidate, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT metadata, embedding FROM comics")
	if err != nil {
		return nil, fmt.Errorf("index scan failed: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var meta string
		var blob []byte
		if err := rows.Scan(&meta, &blob); err != nil {
			continue
		}
		stored := decodeBlobToFloat32Slice(blob)
		sim, err := cosine(vector, stored)
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(meta), &rec); err != nil {
			continue
		}
		candidates = append(candidates, Candidate{Similarity: sim, Record: rec})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Insertion sort by similarity descending; topK is small.
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].Similarity > candidates[j-1].Similarity; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

// LoadWiki replaces the wiki enrichment corpus.
func (s *Store) LoadWiki(ctx context.Context, entries []WikiEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin wiki load: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM wiki_entries"); err != nil {
		return fmt.Errorf("failed to clear wiki entries: %w", err)
	}
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO wiki_entries (title, publisher, summary) VALUES (?, ?, ?)",
			e.Title, e.Publisher, e.Summary); err != nil {
			return fmt.Errorf("failed to insert wiki entry: %w", err)
		}
	}
	return tx.Commit()
}

// WikiLookup returns wiki entries whose title contains the query title,
// case-insensitively, capped at limit.
func (s *Store) WikiLookup(ctx context.Context, title string, limit int) ([]WikiEntry, error) {
	title = strings.TrimSpace(strings.ToLower(title))
	if title == "" || limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT title, publisher, summary
		FROM wiki_entries
		WHERE instr(lower(title), ?) > 0
		LIMIT ?
	`, title, limit)
	if err != nil {
		return nil, fmt.Errorf("wiki lookup failed: %w", err)
	}
	defer rows.Close()

	var entries []WikiEntry
	for rows.Next() {
		var e WikiEntry
		if err := rows.Scan(&e.Title, &e.Publisher, &e.Summary); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of indexed records.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM comics").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// encodeFloat32SliceToBlob encodes a float32 slice as a little-endian
// binary blob, the layout sqlite-vec expects.
func encodeFloat32SliceToBlob(vec []float32) []byte {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, vec); err != nil {
		// Should never happen with bytes.Buffer
		return nil
	}
	return buf.Bytes()
}

func decodeBlobToFloat32Slice(blob []byte) []float32 {
	if len(blob)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(blob)/4)
	_ = binary.Read(bytes.NewReader(blob), binary.LittleEndian, &vec)
	return vec
}

func cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
