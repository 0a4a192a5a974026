// Package channel connects the bot to its conversational surface.
package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ragbot/internal/domain"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

const slackMaxMsgLen = 4000

// Slack delivers inbound events over Socket Mode and implements
// domain.ChatClient for replies and metadata lookups.
type Slack struct {
	botToken string
	appToken string
	client   *slack.Client
	socket   *socketmode.Client
	bus      domain.MessageBus
	logger   *slog.Logger
	selfID   string
}

// SlackConfig configures the Slack channel.
type SlackConfig struct {
	BotToken string
	AppToken string
	Logger   *slog.Logger
}

// NewSlack creates a new Slack channel handler.
func NewSlack(cfg SlackConfig) *Slack {
	return &Slack{
		botToken: cfg.BotToken,
		appToken: cfg.AppToken,
		logger:   cfg.Logger,
	}
}

func (s *Slack) Name() string { return "slack" }

// Connect authenticates and resolves the bot's own identity. It must be
// called before Start so the caller can hand the identity to the classifier.
func (s *Slack) Connect() error {
	api := slack.New(
		s.botToken,
		slack.OptionAppLevelToken(s.appToken),
	)
	s.client = api

	authResp, err := api.AuthTest()
	if err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}
	s.selfID = authResp.UserID
	s.logger.Info("slack bot connected", "user", authResp.User, "user_id", authResp.UserID)
	return nil
}

// SelfID returns the bot's own user id, resolved once by Connect.
func (s *Slack) SelfID() string { return s.selfID }

// Start begins listening for events over Socket Mode. Connect must have been
// called first.
func (s *Slack) Start(ctx context.Context, bus domain.MessageBus) error {
	if s.client == nil {
		return fmt.Errorf("slack channel not connected")
	}
	s.bus = bus

	socketClient := socketmode.New(s.client)
	s.socket = socketClient

	// Register outbound handler.
	bus.OnOutbound(func(msg domain.OutboundMessage) {
		if msg.Text == "" {
			return
		}
		if err := s.PostMessage(ctx, msg.Channel, msg.ThreadTS, msg.Text); err != nil {
			s.logger.Error("slack send failed", "channel", msg.Channel, "err", err)
		}
	})

	// Event handling goroutine.
	go func() {
		for evt := range socketClient.Events {
			switch evt.Type {
			case socketmode.EventTypeEventsAPI:
				eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				socketClient.Ack(*evt.Request)
				s.handleEventsAPI(eventsAPIEvent)

			default:
				// Acknowledge unknown events to prevent Socket Mode disconnection.
				if evt.Request != nil {
					socketClient.Ack(*evt.Request)
				}
			}
		}
	}()

	// Run Socket Mode client (blocks until context is done).
	errCh := make(chan error, 1)
	go func() {
		errCh <- socketClient.RunContext(ctx)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("slack bot disconnecting")
		return nil
	case err := <-errCh:
		return fmt.Errorf("slack socket mode: %w", err)
	}
}

func (s *Slack) handleEventsAPI(event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		s.logger.Info("slack message received",
			"user", ev.User,
			"channel", ev.Channel,
			"subtype", ev.SubType,
			"files", len(ev.Files),
		)
		s.bus.Publish(newInboundEvent(ev, s.selfID))

	case *slackevents.AppMentionEvent:
		// Mentions in channels the bot is in also arrive as message events;
		// handling app_mention too would dispatch the same text twice.
	}
}

// newInboundEvent translates a Slack message event into the domain event,
// keeping the raw text intact so the classifier sees the mention token.
func newInboundEvent(ev *slackevents.MessageEvent, selfID string) domain.InboundEvent {
	threadTS := ev.ThreadTimeStamp
	if threadTS == "" {
		threadTS = ev.TimeStamp
	}

	files := make([]domain.FileReference, 0, len(ev.Files))
	for _, f := range ev.Files {
		files = append(files, domain.FileReference{
			ID:                 f.ID,
			Name:               f.Name,
			Mimetype:           f.Mimetype,
			URLPrivate:         f.URLPrivate,
			URLPrivateDownload: f.URLPrivateDownload,
		})
	}

	return domain.InboundEvent{
		Type:      ev.Type,
		SubType:   ev.SubType,
		Channel:   ev.Channel,
		ThreadTS:  threadTS,
		Text:      ev.Text,
		UserID:    ev.User,
		Files:     files,
		BotOrigin: ev.BotID != "" || ev.SubType == "bot_message" || (selfID != "" && ev.User == selfID),
		Timestamp: time.Now(),
	}
}

// PostMessage posts text to a channel, threaded when threadTS is set.
func (s *Slack) PostMessage(ctx context.Context, channel, threadTS, text string) error {
	for _, chunk := range splitSlackMessage(text, slackMaxMsgLen) {
		opts := []slack.MsgOption{slack.MsgOptionText(chunk, false)}
		if threadTS != "" {
			opts = append(opts, slack.MsgOptionTS(threadTS))
		}
		if _, _, err := s.client.PostMessageContext(ctx, channel, opts...); err != nil {
			return fmt.Errorf("slack post: %w", err)
		}
	}
	return nil
}

// GetFileInfo fetches the full file record, including its download URLs.
func (s *Slack) GetFileInfo(ctx context.Context, fileID string) (domain.FileReference, error) {
	file, _, _, err := s.client.GetFileInfoContext(ctx, fileID, 0, 0)
	if err != nil {
		return domain.FileReference{}, fmt.Errorf("slack file info: %w", err)
	}

	name := file.Name
	if name == "" {
		name = file.Title
	}
	return domain.FileReference{
		ID:                 file.ID,
		Name:               name,
		Mimetype:           file.Mimetype,
		URLPrivate:         file.URLPrivate,
		URLPrivateDownload: file.URLPrivateDownload,
	}, nil
}

// GetUserName resolves a user's display name, falling back to the real name.
func (s *Slack) GetUserName(ctx context.Context, userID string) (string, error) {
	user, err := s.client.GetUserInfoContext(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("slack user info: %w", err)
	}

	name := user.Profile.DisplayName
	if name == "" {
		name = user.RealName
	}
	if name == "" {
		name = user.Name
	}
	return name, nil
}

func splitSlackMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}
		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}
		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}
