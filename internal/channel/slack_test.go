package channel

import (
	"strings"
	"testing"

	"github.com/slack-go/slack/slackevents"
)

func TestNewInboundEvent_ThreadFallsBackToOwnTimestamp(t *testing.T) {
	ev := newInboundEvent(&slackevents.MessageEvent{
		Type:      "message",
		Channel:   "C1",
		User:      "U1",
		Text:      "hello",
		TimeStamp: "111.222",
	}, "U0BOT")

	if ev.ThreadTS != "111.222" {
		t.Errorf("ThreadTS = %q, want the event's own timestamp", ev.ThreadTS)
	}
}

func TestNewInboundEvent_ThreadUsesParentTimestamp(t *testing.T) {
	ev := newInboundEvent(&slackevents.MessageEvent{
		Type:            "message",
		Channel:         "C1",
		User:            "U1",
		Text:            "in thread",
		TimeStamp:       "222.333",
		ThreadTimeStamp: "111.222",
	}, "U0BOT")

	if ev.ThreadTS != "111.222" {
		t.Errorf("ThreadTS = %q, want parent thread timestamp", ev.ThreadTS)
	}
}

func TestNewInboundEvent_BotOrigin(t *testing.T) {
	cases := []struct {
		name string
		ev   slackevents.MessageEvent
		want bool
	}{
		{"bot id set", slackevents.MessageEvent{BotID: "B1", Text: "x"}, true},
		{"bot_message subtype", slackevents.MessageEvent{SubType: "bot_message", Text: "x"}, true},
		{"own user id", slackevents.MessageEvent{User: "U0BOT", Text: "x"}, true},
		{"regular user", slackevents.MessageEvent{User: "U1", Text: "x"}, false},
	}
	for _, tc := range cases {
		ev := newInboundEvent(&tc.ev, "U0BOT")
		if ev.BotOrigin != tc.want {
			t.Errorf("%s: BotOrigin = %v, want %v", tc.name, ev.BotOrigin, tc.want)
		}
	}
}

func TestNewInboundEvent_FileShare(t *testing.T) {
	ev := newInboundEvent(&slackevents.MessageEvent{
		Type:    "message",
		SubType: "file_share",
		Channel: "C1",
		User:    "U1",
		Files: []slackevents.File{
			{ID: "F1", Name: "report.pdf", Mimetype: "application/pdf", URLPrivateDownload: "https://files/F1"},
		},
	}, "U0BOT")

	if ev.SubType != "file_share" || len(ev.Files) != 1 {
		t.Fatalf("event = %+v", ev)
	}
	f := ev.Files[0]
	if f.ID != "F1" || f.Name != "report.pdf" || f.URLPrivateDownload != "https://files/F1" {
		t.Errorf("file = %+v", f)
	}
}

func TestSplitSlackMessage(t *testing.T) {
	if got := splitSlackMessage("short", 100); len(got) != 1 || got[0] != "short" {
		t.Errorf("short message split: %v", got)
	}

	long := strings.Repeat("line of text\n", 50)
	chunks := splitSlackMessage(long, 100)
	if len(chunks) < 2 {
		t.Fatalf("long message not split: %d chunks", len(chunks))
	}
	var rejoined strings.Builder
	for _, c := range chunks {
		if len(c) > 100 {
			t.Errorf("chunk exceeds limit: %d bytes", len(c))
		}
		rejoined.WriteString(c)
	}
	if rejoined.String() != long {
		t.Error("split chunks do not rejoin to the original message")
	}
}
