package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"ragbot/internal/bus"
	"ragbot/internal/classify"
	"ragbot/internal/domain"
)

const testSelfID = "U0BOT"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// --- fakes ---

type fakeChat struct {
	mu        sync.Mutex
	fileInfo  map[string]domain.FileReference
	userName  string
	userErr   error
	infoCalls int
}

func (f *fakeChat) PostMessage(ctx context.Context, channel, threadTS, text string) error {
	return nil
}

func (f *fakeChat) GetFileInfo(ctx context.Context, fileID string) (domain.FileReference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infoCalls++
	ref, ok := f.fileInfo[fileID]
	if !ok {
		return domain.FileReference{}, fmt.Errorf("no such file: %s", fileID)
	}
	return ref, nil
}

func (f *fakeChat) GetUserName(ctx context.Context, userID string) (string, error) {
	if f.userErr != nil {
		return "", f.userErr
	}
	if f.userName == "" {
		return "someone", nil
	}
	return f.userName, nil
}

type fakeIndexer struct {
	mu         sync.Mutex
	indexCalls int
	indexErr   error
	answer     string
	answerErr  error
	deleteErr  error
	lastQuery  string
	lastK      int
	lastUser   string
}

func (f *fakeIndexer) IndexFile(ctx context.Context, data []byte, meta domain.FileMeta, userName, channelID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexCalls++
	f.lastUser = userName
	if f.indexErr != nil {
		return nil, f.indexErr
	}
	return []string{"c1", "c2", "c3"}, nil
}

func (f *fakeIndexer) AnswerQuery(ctx context.Context, text, channelID string, k int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = text
	f.lastK = k
	if f.answerErr != nil {
		return "", f.answerErr
	}
	return f.answer, nil
}

func (f *fakeIndexer) DeleteAll(ctx context.Context) (int, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	return 0, nil
}

func (f *fakeIndexer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.indexCalls
}

type fakeIssues struct {
	mu      sync.Mutex
	calls   int
	err     error
	lastReq domain.IssueRequest
}

func (f *fakeIssues) CreateIssue(ctx context.Context, req domain.IssueRequest) (domain.IssueResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return domain.IssueResult{}, f.err
	}
	return domain.IssueResult{Number: 42, URL: "https://github.com/acme/widgets/issues/42"}, nil
}

type fakeFetcher struct {
	data []byte
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

type fakeFiles struct {
	mu    sync.Mutex
	saved map[string][]byte
}

func (f *fakeFiles) Save(fileID, name string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = make(map[string][]byte)
	}
	f.saved[fileID] = data
	return "/tmp/" + fileID + "-" + name, nil
}

// --- harness ---

type harness struct {
	d       *Dispatcher
	chat    *fakeChat
	indexer *fakeIndexer
	issues  *fakeIssues
	fetcher *fakeFetcher

	mu      sync.Mutex
	replies []domain.OutboundMessage
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		chat:    &fakeChat{fileInfo: make(map[string]domain.FileReference)},
		indexer: &fakeIndexer{answer: "the answer"},
		issues:  &fakeIssues{},
		fetcher: &fakeFetcher{data: []byte("file bytes")},
	}

	b := bus.New(16, testLogger())
	t.Cleanup(b.Close)
	b.OnOutbound(func(msg domain.OutboundMessage) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.replies = append(h.replies, msg)
	})

	h.d = New(Config{
		Classifier: classify.New(testSelfID),
		Chat:       h.chat,
		Indexer:    h.indexer,
		Issues:     h.issues,
		Fetcher:    h.fetcher,
		Files:      &fakeFiles{},
		Bus:        b,
		Logger:     testLogger(),
	})
	return h
}

func (h *harness) replyTexts() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	texts := make([]string, len(h.replies))
	for i, r := range h.replies {
		texts[i] = r.Text
	}
	return texts
}

func fileShareEvent(refs ...domain.FileReference) domain.InboundEvent {
	return domain.InboundEvent{
		Type:     "message",
		SubType:  "file_share",
		Channel:  "C1",
		ThreadTS: "111.222",
		UserID:   "U1",
		Files:    refs,
	}
}

// --- tests ---

func TestHandle_BotOriginProducesNoReply(t *testing.T) {
	h := newHarness(t)

	h.d.Handle(context.Background(), domain.InboundEvent{
		Type: "message", Channel: "C1", Text: "<@U0BOT> delete", BotOrigin: true,
	})

	if n := len(h.replyTexts()); n != 0 {
		t.Errorf("bot-origin event produced %d replies, want 0", n)
	}
}

func TestHandle_DeletePostsConfirmation(t *testing.T) {
	h := newHarness(t)

	h.d.Handle(context.Background(), domain.InboundEvent{
		Type: "message", Channel: "C1", ThreadTS: "1.2", Text: "<@U0BOT> delete",
	})

	texts := h.replyTexts()
	if len(texts) != 1 || !strings.Contains(texts[0], "Deleted all embeddings") {
		t.Errorf("replies = %v", texts)
	}
}

func TestHandle_IssueSuccess(t *testing.T) {
	h := newHarness(t)

	h.d.Handle(context.Background(), domain.InboundEvent{
		Type: "message", Channel: "C1", UserID: "U1", Text: "issue Broken search | Results are empty",
	})

	if h.issues.calls != 1 {
		t.Fatalf("issue adapter called %d times, want 1", h.issues.calls)
	}
	if h.issues.lastReq.Title != "Broken search" || h.issues.lastReq.Body != "Results are empty" {
		t.Errorf("request = %+v", h.issues.lastReq)
	}
	texts := h.replyTexts()
	if len(texts) != 1 || !strings.Contains(texts[0], "Created issue #42") {
		t.Errorf("replies = %v", texts)
	}
}

func TestHandle_IssueDefaultBodyNamesAuthorAndChannel(t *testing.T) {
	h := newHarness(t)

	h.d.Handle(context.Background(), domain.InboundEvent{
		Type: "message", Channel: "C9", UserID: "U7", Text: "issue Just a title",
	})

	body := h.issues.lastReq.Body
	if !strings.Contains(body, "U7") || !strings.Contains(body, "C9") {
		t.Errorf("default body %q does not name author and channel", body)
	}
}

func TestHandle_IssueEmptyTitlePostsUsage(t *testing.T) {
	h := newHarness(t)

	h.d.Handle(context.Background(), domain.InboundEvent{
		Type: "message", Channel: "C1", UserID: "U1", Text: "issue   ",
	})

	if h.issues.calls != 0 {
		t.Errorf("issue adapter called %d times for empty title, want 0", h.issues.calls)
	}
	texts := h.replyTexts()
	if len(texts) != 1 || !strings.Contains(texts[0], "Usage") {
		t.Errorf("replies = %v", texts)
	}
}

func TestHandle_IssueFailureDoesNotBlockNextEvent(t *testing.T) {
	h := newHarness(t)
	h.issues.err = errors.New("api down")

	h.d.Handle(context.Background(), domain.InboundEvent{
		Type: "message", Channel: "C1", UserID: "U1", Text: "issue Title",
	})
	h.d.Handle(context.Background(), domain.InboundEvent{
		Type: "message", Channel: "C1", UserID: "U1", Text: "what changed?",
	})

	texts := h.replyTexts()
	if len(texts) != 2 {
		t.Fatalf("replies = %v, want failure reply then answer", texts)
	}
	if !strings.Contains(texts[0], "Failed to create issue") || !strings.Contains(texts[0], "api down") {
		t.Errorf("failure reply = %q", texts[0])
	}
	if texts[1] != "the answer" {
		t.Errorf("second event not processed, reply = %q", texts[1])
	}
}

func TestHandle_QueryPostsAnswerVerbatim(t *testing.T) {
	h := newHarness(t)
	h.indexer.answer = "Refunds are processed within 14 days."

	h.d.Handle(context.Background(), domain.InboundEvent{
		Type: "message", Channel: "C1", UserID: "U1", Text: "what is the refund policy?",
	})

	if h.indexer.lastQuery != "what is the refund policy?" || h.indexer.lastK != defaultTopK {
		t.Errorf("query = %q k = %d", h.indexer.lastQuery, h.indexer.lastK)
	}
	texts := h.replyTexts()
	if len(texts) != 1 || texts[0] != h.indexer.answer {
		t.Errorf("replies = %v", texts)
	}
}

func TestHandle_QueryFailurePostsError(t *testing.T) {
	h := newHarness(t)
	h.indexer.answerErr = errors.New("store closed")

	h.d.Handle(context.Background(), domain.InboundEvent{
		Type: "message", Channel: "C1", UserID: "U1", Text: "anything",
	})

	texts := h.replyTexts()
	if len(texts) != 1 || !strings.Contains(texts[0], "Error answering") {
		t.Errorf("replies = %v", texts)
	}
}

func TestHandle_UploadIngestsFile(t *testing.T) {
	h := newHarness(t)
	h.chat.fileInfo["F1"] = domain.FileReference{
		ID: "F1", Name: "report.pdf", URLPrivateDownload: "https://files.example/F1",
	}
	h.chat.userName = "Jamie"

	h.d.Handle(context.Background(), fileShareEvent(domain.FileReference{ID: "F1", Name: "report.pdf"}))

	if h.indexer.calls() != 1 {
		t.Fatalf("indexer called %d times, want 1", h.indexer.calls())
	}
	if h.indexer.lastUser != "Jamie" {
		t.Errorf("indexed user = %q, want display name", h.indexer.lastUser)
	}
	texts := h.replyTexts()
	if len(texts) != 1 || !strings.Contains(texts[0], "indexed 3 chunks") {
		t.Errorf("replies = %v", texts)
	}
}

func TestHandle_UploadIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.chat.fileInfo["F1"] = domain.FileReference{
		ID: "F1", Name: "report.pdf", URLPrivateDownload: "https://files.example/F1",
	}

	ev := fileShareEvent(domain.FileReference{ID: "F1", Name: "report.pdf"})
	h.d.Handle(context.Background(), ev)
	h.d.Handle(context.Background(), ev)

	if h.indexer.calls() != 1 {
		t.Errorf("indexer called %d times for the same file id, want 1", h.indexer.calls())
	}
	if texts := h.replyTexts(); len(texts) != 1 {
		t.Errorf("second attempt must be silent, replies = %v", texts)
	}
}

func TestHandle_UploadRejectsDisallowedExtension(t *testing.T) {
	h := newHarness(t)
	h.chat.fileInfo["F1"] = domain.FileReference{
		ID: "F1", Name: "report.txt", URLPrivateDownload: "https://files.example/F1",
	}

	h.d.Handle(context.Background(), fileShareEvent(domain.FileReference{ID: "F1", Name: "report.txt"}))

	if h.indexer.calls() != 0 {
		t.Errorf("indexer invoked for disallowed extension")
	}
	texts := h.replyTexts()
	if len(texts) != 1 || !strings.Contains(texts[0], ".txt") {
		t.Errorf("rejection must name the extension, replies = %v", texts)
	}
}

func TestHandle_UploadMissingURLReleasesReservation(t *testing.T) {
	h := newHarness(t)
	h.chat.fileInfo["F1"] = domain.FileReference{ID: "F1", Name: "report.pdf"}

	ev := fileShareEvent(domain.FileReference{ID: "F1", Name: "report.pdf"})
	h.d.Handle(context.Background(), ev)

	texts := h.replyTexts()
	if len(texts) != 1 || !strings.Contains(texts[0], "download URL") {
		t.Fatalf("replies = %v", texts)
	}

	// Once a URL exists, a retry must be allowed: the failed attempt must
	// not have recorded the id.
	h.chat.fileInfo["F1"] = domain.FileReference{
		ID: "F1", Name: "report.pdf", URLPrivateDownload: "https://files.example/F1",
	}
	h.d.Handle(context.Background(), ev)
	if h.indexer.calls() != 1 {
		t.Errorf("retry after validation failure did not ingest, calls = %d", h.indexer.calls())
	}
}

func TestHandle_UploadFetchFailureIsPerFile(t *testing.T) {
	h := newHarness(t)
	h.fetcher.err = errors.New("download failed (status 403)")
	h.chat.fileInfo["F1"] = domain.FileReference{
		ID: "F1", Name: "report.pdf", URLPrivateDownload: "https://files.example/F1",
	}

	h.d.Handle(context.Background(), fileShareEvent(domain.FileReference{ID: "F1", Name: "report.pdf"}))

	texts := h.replyTexts()
	if len(texts) != 1 || !strings.Contains(texts[0], "Failed to process") {
		t.Errorf("replies = %v", texts)
	}

	// The failure must roll back the reservation so a later retry works.
	h.fetcher.err = nil
	h.d.Handle(context.Background(), fileShareEvent(domain.FileReference{ID: "F1", Name: "report.pdf"}))
	if h.indexer.calls() != 1 {
		t.Errorf("retry after fetch failure did not ingest, calls = %d", h.indexer.calls())
	}
}

func TestHandle_UploadProcessesAllFilesInEvent(t *testing.T) {
	h := newHarness(t)
	h.chat.fileInfo["F1"] = domain.FileReference{
		ID: "F1", Name: "a.pdf", URLPrivateDownload: "https://files.example/F1",
	}
	h.chat.fileInfo["F2"] = domain.FileReference{
		ID: "F2", Name: "b.docx", URLPrivateDownload: "https://files.example/F2",
	}

	h.d.Handle(context.Background(), fileShareEvent(
		domain.FileReference{ID: "F1", Name: "a.pdf"},
		domain.FileReference{ID: "F2", Name: "b.docx"},
	))

	if h.indexer.calls() != 2 {
		t.Errorf("indexer called %d times, want one per file", h.indexer.calls())
	}
	if texts := h.replyTexts(); len(texts) != 2 {
		t.Errorf("want a reply per file, got %v", texts)
	}
}
