// Package classify turns one inbound event into exactly one dispatch
// decision. The classifier is pure: it depends only on the event and the
// bot's own identity, never on the platform client.
package classify

import (
	"strings"

	"ragbot/internal/domain"
)

const subtypeFileShare = "file_share"

// rule inspects an event and either claims it with a decision or passes.
type rule func(ev domain.InboundEvent) (domain.Decision, bool)

// Classifier evaluates an ordered rule table; the first matching rule wins.
type Classifier struct {
	selfID  string
	mention string // the platform's mention token for the bot, e.g. "<@U123>"
	rules   []rule
}

// New creates a classifier for the given bot identity. The identity must be
// resolved once at startup and passed in; the classifier never looks it up.
func New(selfID string) *Classifier {
	c := &Classifier{
		selfID:  selfID,
		mention: "<@" + selfID + ">",
	}
	c.rules = []rule{
		c.matchBotOrigin,
		c.matchDelete,
		c.matchIssue,
		c.matchFileUpload,
		c.matchQuery,
	}
	return c
}

// Classify produces exactly one decision for the event.
func (c *Classifier) Classify(ev domain.InboundEvent) domain.Decision {
	for _, r := range c.rules {
		if d, ok := r(ev); ok {
			return d
		}
	}
	return domain.Decision{Kind: domain.Ignore}
}

// matchBotOrigin ignores the bot's own messages to prevent feedback loops.
func (c *Classifier) matchBotOrigin(ev domain.InboundEvent) (domain.Decision, bool) {
	if ev.BotOrigin {
		return domain.Decision{Kind: domain.Ignore}, true
	}
	return domain.Decision{}, false
}

func (c *Classifier) matchDelete(ev domain.InboundEvent) (domain.Decision, bool) {
	trimmed := strings.TrimSpace(ev.Text)
	if strings.Contains(ev.Text, c.mention) && strings.HasSuffix(strings.ToLower(trimmed), "delete") {
		return domain.Decision{Kind: domain.Delete}, true
	}
	return domain.Decision{}, false
}

func (c *Classifier) matchIssue(ev domain.InboundEvent) (domain.Decision, bool) {
	trimmed := strings.TrimSpace(ev.Text)
	lower := strings.ToLower(trimmed)

	var payload string
	switch {
	case strings.HasPrefix(lower, "issue"):
		payload = trimmed[len("issue"):]
	case strings.Contains(ev.Text, c.mention):
		// Strip only the first mention token, preserving the rest verbatim.
		stripped := strings.TrimSpace(strings.Replace(ev.Text, c.mention, "", 1))
		if !strings.HasPrefix(strings.ToLower(stripped), "issue") {
			return domain.Decision{}, false
		}
		payload = stripped[len("issue"):]
	default:
		return domain.Decision{}, false
	}

	title, body := splitIssuePayload(payload)
	return domain.Decision{Kind: domain.FileIssue, Title: title, Body: body}, true
}

// splitIssuePayload separates "Title | Body" on the first pipe. An empty
// title is returned as-is: the handler replies with a usage message for it.
func splitIssuePayload(payload string) (title, body string) {
	payload = strings.TrimSpace(payload)
	if before, after, found := strings.Cut(payload, "|"); found {
		return strings.TrimSpace(before), strings.TrimSpace(after)
	}
	return payload, ""
}

func (c *Classifier) matchFileUpload(ev domain.InboundEvent) (domain.Decision, bool) {
	if ev.SubType == subtypeFileShare && len(ev.Files) > 0 {
		return domain.Decision{Kind: domain.FileUpload}, true
	}
	return domain.Decision{}, false
}

func (c *Classifier) matchQuery(ev domain.InboundEvent) (domain.Decision, bool) {
	if ev.SubType != "" {
		return domain.Decision{}, false
	}
	if text := strings.TrimSpace(ev.Text); text != "" {
		return domain.Decision{Kind: domain.Query, Text: text}, true
	}
	return domain.Decision{}, false
}
