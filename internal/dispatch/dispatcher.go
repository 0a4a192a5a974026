// Package dispatch consumes classified events and runs one handler per
// decision. Every handler converts any failure into a single reply posted to
// the originating thread; no error escapes the dispatch loop, and one event's
// failure never blocks the next.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"ragbot/internal/classify"
	"ragbot/internal/domain"
	"ragbot/internal/metrics"
)

const (
	defaultTopK        = 4
	defaultConcurrency = 3
)

// allowedExtensions is the ingestion allow-list, matched case-insensitively
// on the declared filename's trailing extension.
var allowedExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
}

// Dispatcher is the core engine: receive event → classify → handle → reply.
type Dispatcher struct {
	classifier  *classify.Classifier
	chat        domain.ChatClient
	indexer     domain.Indexer
	issues      domain.IssueFiler
	fetcher     domain.FileFetcher
	files       domain.FileStore
	tracker     *Tracker
	bus         domain.MessageBus
	logger      *slog.Logger
	topK        int
	concurrency int

	eventsTotal   *metrics.Counter
	failuresTotal *metrics.Counter
	indexedTotal  *metrics.Counter
	issuesTotal   *metrics.Counter
	queriesTotal  *metrics.Counter
}

// Config holds all dependencies and tuning parameters for the dispatcher.
type Config struct {
	Classifier  *classify.Classifier
	Chat        domain.ChatClient
	Indexer     domain.Indexer
	Issues      domain.IssueFiler
	Fetcher     domain.FileFetcher
	Files       domain.FileStore
	Bus         domain.MessageBus
	Logger      *slog.Logger
	TopK        int // retrieval width for queries (default 4)
	Concurrency int // max parallel events (default 3)
}

// New creates a dispatcher with the given configuration.
func New(cfg Config) *Dispatcher {
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Dispatcher{
		classifier:  cfg.Classifier,
		chat:        cfg.Chat,
		indexer:     cfg.Indexer,
		issues:      cfg.Issues,
		fetcher:     cfg.Fetcher,
		files:       cfg.Files,
		tracker:     NewTracker(),
		bus:         cfg.Bus,
		logger:      cfg.Logger,
		topK:        cfg.TopK,
		concurrency: cfg.Concurrency,

		eventsTotal:   metrics.Collector.Counter("ragbot_events_total", "Inbound events received"),
		failuresTotal: metrics.Collector.Counter("ragbot_handler_failures_total", "Handler failures converted into replies"),
		indexedTotal:  metrics.Collector.Counter("ragbot_files_indexed_total", "Files successfully ingested"),
		issuesTotal:   metrics.Collector.Counter("ragbot_issues_filed_total", "Tracker issues created"),
		queriesTotal:  metrics.Collector.Counter("ragbot_queries_total", "Queries answered"),
	}
}

// Run consumes inbound events and processes them with bounded concurrency.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("dispatcher started", "concurrency", d.concurrency, "top_k", d.topK)

	sem := make(chan struct{}, d.concurrency)
	inbound := d.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping")
			return
		case ev, ok := <-inbound:
			if !ok {
				d.logger.Info("inbound channel closed, dispatcher stopping")
				return
			}
			sem <- struct{}{}
			go func(ev domain.InboundEvent) {
				defer func() { <-sem }()
				d.Handle(ctx, ev)
			}(ev)
		}
	}
}

// Handle classifies one event and runs the matching handler.
func (d *Dispatcher) Handle(ctx context.Context, ev domain.InboundEvent) {
	d.eventsTotal.Inc()

	decision := d.classifier.Classify(ev)
	if decision.Kind == domain.Ignore {
		return
	}

	d.logger.Info("event dispatched",
		"decision", decision.Kind.String(),
		"channel", ev.Channel,
		"user", ev.UserID,
	)

	switch decision.Kind {
	case domain.Delete:
		d.handleDelete(ctx, ev)
	case domain.FileIssue:
		d.handleFileIssue(ctx, ev, decision)
	case domain.FileUpload:
		d.handleFileUpload(ctx, ev)
	case domain.Query:
		d.handleQuery(ctx, ev, decision.Text)
	}
}

// reply posts a single message to the event's originating thread.
func (d *Dispatcher) reply(ev domain.InboundEvent, text string) {
	d.bus.SendOutbound(domain.OutboundMessage{
		Channel:  ev.Channel,
		ThreadTS: ev.ThreadTS,
		Text:     text,
	})
}

// handleDelete wipes the knowledge base. Best-effort: a leftover count is
// not surfaced as an error.
func (d *Dispatcher) handleDelete(ctx context.Context, ev domain.InboundEvent) {
	remaining, err := d.indexer.DeleteAll(ctx)
	if err != nil {
		d.failuresTotal.Inc()
		d.logger.Error("delete embeddings failed", "err", err)
		d.reply(ev, fmt.Sprintf("❌ Failed to delete embeddings: %v", err))
		return
	}
	if remaining > 0 {
		d.logger.Warn("embeddings remain after delete", "remaining", remaining)
	}
	d.reply(ev, "✅ Deleted all embeddings.")
}

func (d *Dispatcher) handleFileIssue(ctx context.Context, ev domain.InboundEvent, decision domain.Decision) {
	if decision.Title == "" {
		d.reply(ev, "❌ Usage: `<@bot> issue Title | optional body`")
		return
	}

	body := decision.Body
	if body == "" {
		body = fmt.Sprintf("Filed from chat by <@%s> in channel %s.", ev.UserID, ev.Channel)
	}

	res, err := d.issues.CreateIssue(ctx, domain.IssueRequest{Title: decision.Title, Body: body})
	if err != nil {
		d.failuresTotal.Inc()
		d.logger.Error("create issue failed", "title", decision.Title, "err", err)
		d.reply(ev, fmt.Sprintf("❌ Failed to create issue: %v", err))
		return
	}

	d.issuesTotal.Inc()
	d.reply(ev, fmt.Sprintf("✅ Created issue #%d: %s", res.Number, res.URL))
}

// handleFileUpload ingests every file reference in the event. Each file is
// processed independently: a failure for one produces a per-file reply and
// does not abort the others.
func (d *Dispatcher) handleFileUpload(ctx context.Context, ev domain.InboundEvent) {
	for _, ref := range ev.Files {
		if ref.ID == "" {
			continue
		}
		d.ingestFile(ctx, ev, ref)
	}
}

func (d *Dispatcher) ingestFile(ctx context.Context, ev domain.InboundEvent, ref domain.FileReference) {
	// Claim the id before the download starts; a concurrent event for the
	// same file loses the claim and skips silently.
	if !d.tracker.Reserve(ref.ID) {
		d.logger.Debug("file already ingested, skipping", "file", ref.ID)
		return
	}
	indexed := false
	defer func() {
		if !indexed {
			d.tracker.Release(ref.ID)
		}
	}()

	info, err := d.chat.GetFileInfo(ctx, ref.ID)
	if err != nil {
		d.failuresTotal.Inc()
		d.reply(ev, fmt.Sprintf("❌ Failed to process `%s`: %v", ref.Name, err))
		return
	}

	name := info.Name
	if name == "" {
		name = ref.ID + ".bin"
	}

	url := info.URLPrivateDownload
	if url == "" {
		url = info.URLPrivate
	}
	if url == "" {
		d.reply(ev, fmt.Sprintf("❌ Could not find a download URL for `%s`.", name))
		return
	}

	ext := strings.ToLower(filepath.Ext(name))
	if !allowedExtensions[ext] {
		if ext == "" {
			ext = name
		}
		d.reply(ev, fmt.Sprintf("❌ Unsupported file type `%s`. Only .pdf and .docx are allowed.", ext))
		return
	}

	data, err := d.fetcher.Fetch(ctx, url)
	if err != nil {
		d.failuresTotal.Inc()
		d.logger.Error("file download failed", "file", ref.ID, "err", err)
		d.reply(ev, fmt.Sprintf("❌ Failed to process `%s`: %v", name, err))
		return
	}

	if _, err := d.files.Save(ref.ID, name, data); err != nil {
		d.failuresTotal.Inc()
		d.reply(ev, fmt.Sprintf("❌ Failed to process `%s`: %v", name, err))
		return
	}

	userName, err := d.chat.GetUserName(ctx, ev.UserID)
	if err != nil {
		d.logger.Warn("user lookup failed, using id", "user", ev.UserID, "err", err)
		userName = ev.UserID
	}

	meta := domain.FileMeta{FileID: ref.ID, Name: name, Mimetype: info.Mimetype}
	chunkIDs, err := d.indexer.IndexFile(ctx, data, meta, userName, ev.Channel)
	if err != nil {
		d.failuresTotal.Inc()
		d.logger.Error("indexing failed", "file", ref.ID, "err", err)
		d.reply(ev, fmt.Sprintf("❌ Failed to process `%s`: %v", name, err))
		return
	}

	// The reservation becomes permanent only after indexing succeeds.
	indexed = true
	d.indexedTotal.Inc()
	d.reply(ev, fmt.Sprintf("✅ Saved `%s` and indexed %d chunks.", name, len(chunkIDs)))
}

func (d *Dispatcher) handleQuery(ctx context.Context, ev domain.InboundEvent, text string) {
	answer, err := d.indexer.AnswerQuery(ctx, text, ev.Channel, d.topK)
	if err != nil {
		d.failuresTotal.Inc()
		d.logger.Error("query failed", "err", err)
		d.reply(ev, fmt.Sprintf("❌ Error answering: %v", err))
		return
	}
	d.queriesTotal.Inc()
	d.reply(ev, answer)
}
