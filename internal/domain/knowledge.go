package domain

import "context"

// FileMeta carries the metadata the indexer stores alongside a file's chunks.
type FileMeta struct {
	FileID   string
	Name     string
	Mimetype string
}

// Indexer is the indexing/query collaborator: it ingests file bytes into the
// knowledge base, answers natural-language queries against it, and wipes it.
type Indexer interface {
	// IndexFile ingests one file and returns the ids of the indexed chunks.
	IndexFile(ctx context.Context, data []byte, meta FileMeta, userName, channelID string) ([]string, error)

	// AnswerQuery answers a query using the top-k most relevant chunks.
	AnswerQuery(ctx context.Context, text, channelID string, k int) (string, error)

	// DeleteAll removes every indexed chunk and returns the remaining count.
	DeleteAll(ctx context.Context) (int, error)
}
