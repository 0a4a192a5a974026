package domain

import "time"

// InboundEvent is one occurrence delivered by the chat platform: a posted
// message or a file share. Events are immutable and never persisted.
type InboundEvent struct {
	Type      string
	SubType   string
	Channel   string
	ThreadTS  string // reply anchor: the event's own ts, or its parent thread ts
	Text      string
	UserID    string
	Files     []FileReference
	BotOrigin bool // set when the event was produced by the bot itself
	Timestamp time.Time
}

// FileReference describes a file shared on the platform.
type FileReference struct {
	ID                 string
	Name               string
	Mimetype           string
	URLPrivate         string
	URLPrivateDownload string
}

// OutboundMessage is a reply posted back to the originating thread.
type OutboundMessage struct {
	Channel  string
	ThreadTS string
	Text     string
}
