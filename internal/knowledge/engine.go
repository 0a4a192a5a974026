// Package knowledge provides the indexing and query engine backing the bot's
// knowledge base: word-window chunking over extracted text, stored in SQLite,
// searched by term overlap.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"ragbot/internal/domain"
)

// Engine implements domain.Indexer.
type Engine struct {
	store     *SQLiteStore
	chunkSize int
	overlap   int
	logger    *slog.Logger
}

type EngineConfig struct {
	Store     *SQLiteStore
	ChunkSize int // words per chunk (default: 256)
	Overlap   int // overlapping words between chunks (default: 32)
	Logger    *slog.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 256
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.ChunkSize {
		cfg.Overlap = 32
	}
	return &Engine{
		store:     cfg.Store,
		chunkSize: cfg.ChunkSize,
		overlap:   cfg.Overlap,
		logger:    cfg.Logger,
	}
}

// IndexFile extracts text from the file bytes, chunks it, and stores the
// document with its uploader and channel. Returns the ids of the chunks.
func (e *Engine) IndexFile(ctx context.Context, data []byte, meta domain.FileMeta, userName, channelID string) ([]string, error) {
	text, err := ExtractText(meta.Name, data)
	if err != nil {
		return nil, fmt.Errorf("extract text from %s: %w", meta.Name, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("no indexable text in %s", meta.Name)
	}

	docID := uuid.NewString()
	chunks := e.chunkText(text, docID)

	doc := Document{
		ID:         docID,
		FileID:     meta.FileID,
		Name:       meta.Name,
		Mimetype:   meta.Mimetype,
		UploadedBy: userName,
		ChannelID:  channelID,
	}

	if err := e.store.AddDocument(ctx, doc, chunks); err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}

	e.logger.Info("document indexed",
		"name", meta.Name, "chunks", len(chunks), "uploaded_by", userName)

	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		ids[i] = chunk.ID
	}
	return ids, nil
}

// AnswerQuery retrieves the top-k chunks matching the query terms and
// composes an excerpt answer naming each source document.
func (e *Engine) AnswerQuery(ctx context.Context, text, channelID string, k int) (string, error) {
	if k <= 0 {
		k = 4
	}

	hits, err := e.store.SearchChunks(ctx, queryTerms(text), k)
	if err != nil {
		return "", fmt.Errorf("search: %w", err)
	}
	if len(hits) == 0 {
		return "I couldn't find anything relevant in the knowledge base.", nil
	}

	var sb strings.Builder
	sb.WriteString("Here's what I found:\n")
	for _, hit := range hits {
		sb.WriteString(fmt.Sprintf("\n*%s* (chunk %d):\n%s\n", hit.DocName, hit.Chunk.Index, excerpt(hit.Chunk.Content, 500)))
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// DeleteAll wipes the knowledge base and returns the remaining chunk count.
func (e *Engine) DeleteAll(ctx context.Context) (int, error) {
	remaining, err := e.store.DeleteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete embeddings: %w", err)
	}
	e.logger.Info("knowledge base wiped", "remaining", remaining)
	return remaining, nil
}

// chunkText splits text into overlapping windows of chunkSize words.
func (e *Engine) chunkText(text, docID string) []Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []Chunk
	step := e.chunkSize - e.overlap

	for i := 0; i < len(words); i += step {
		end := i + e.chunkSize
		if end > len(words) {
			end = len(words)
		}

		chunks = append(chunks, Chunk{
			ID:         uuid.NewString(),
			DocumentID: docID,
			Index:      len(chunks),
			Content:    strings.Join(words[i:end], " "),
		})

		if end >= len(words) {
			break
		}
	}

	return chunks
}

// queryTerms tokenizes a query into lowercase terms, dropping one- and
// two-letter words that would match everything.
func queryTerms(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?:;\"'()[]")
		if len(f) >= 3 {
			terms = append(terms, f)
		}
	}
	return terms
}

func excerpt(content string, limit int) string {
	if len(content) <= limit {
		return content
	}
	cut := strings.LastIndex(content[:limit], " ")
	if cut <= 0 {
		cut = limit
	}
	return content[:cut] + "…"
}
