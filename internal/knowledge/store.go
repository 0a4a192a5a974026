package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Document is one ingested file's metadata row.
type Document struct {
	ID         string
	FileID     string
	Name       string
	Mimetype   string
	UploadedBy string
	ChannelID  string
	CreatedAt  time.Time
}

// Chunk is a unit of indexed content produced from one document.
type Chunk struct {
	ID         string
	DocumentID string
	Index      int
	Content    string
}

// SearchHit is one chunk matched by a query, with its source document name.
type SearchHit struct {
	Chunk   Chunk
	DocName string
	Score   int
}

// SQLiteStore persists documents and chunks in SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, logger: logger}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id          TEXT PRIMARY KEY,
		file_id     TEXT,
		name        TEXT NOT NULL,
		mimetype    TEXT,
		uploaded_by TEXT,
		channel_id  TEXT,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id          TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		chunk_index INTEGER NOT NULL,
		content     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(document_id, chunk_index);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AddDocument stores a document and its chunks in one transaction.
func (s *SQLiteStore) AddDocument(ctx context.Context, doc Document, chunks []Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, file_id, name, mimetype, uploaded_by, channel_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.FileID, doc.Name, doc.Mimetype, doc.UploadedBy, doc.ChannelID, doc.CreatedAt,
	)
	if err != nil {
		return err
	}

	for _, chunk := range chunks {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO chunks (id, document_id, chunk_index, content) VALUES (?, ?, ?, ?)`,
			chunk.ID, chunk.DocumentID, chunk.Index, chunk.Content,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SearchChunks returns the topK chunks matching the most query terms.
// Candidates are narrowed with LIKE, then scored by term occurrences.
func (s *SQLiteStore) SearchChunks(ctx context.Context, terms []string, topK int) ([]SearchHit, error) {
	if len(terms) == 0 {
		return nil, nil
	}

	conds := make([]string, 0, len(terms))
	args := make([]any, 0, len(terms))
	for _, term := range terms {
		conds = append(conds, "LOWER(c.content) LIKE ?")
		args = append(args, "%"+strings.ToLower(term)+"%")
	}

	query := fmt.Sprintf(
		`SELECT c.id, c.document_id, c.chunk_index, c.content, d.name
		 FROM chunks c JOIN documents d ON d.id = c.document_id
		 WHERE %s`, strings.Join(conds, " OR "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var hit SearchHit
		if err := rows.Scan(&hit.Chunk.ID, &hit.Chunk.DocumentID, &hit.Chunk.Index, &hit.Chunk.Content, &hit.DocName); err != nil {
			return nil, err
		}
		hit.Score = scoreContent(hit.Chunk.Content, terms)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// DeleteAll wipes every chunk and document and returns the remaining count.
func (s *SQLiteStore) DeleteAll(ctx context.Context) (int, error) {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return 0, err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return 0, err
	}

	var remaining int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&remaining)
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

func scoreContent(content string, terms []string) int {
	lower := strings.ToLower(content)
	score := 0
	for _, term := range terms {
		score += strings.Count(lower, strings.ToLower(term))
	}
	return score
}
