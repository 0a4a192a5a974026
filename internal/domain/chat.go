package domain

import "context"

// ChatClient is the platform-facing surface the handlers need: posting
// threaded replies and looking up file and user metadata.
type ChatClient interface {
	PostMessage(ctx context.Context, channel, threadTS, text string) error
	GetFileInfo(ctx context.Context, fileID string) (FileReference, error)
	GetUserName(ctx context.Context, userID string) (string, error)
}

// FileFetcher retrieves raw bytes from an authenticated download URL.
type FileFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FileStore persists retrieved file bytes to a durable local sink.
type FileStore interface {
	Save(fileID, name string, data []byte) (string, error)
}
