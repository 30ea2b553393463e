package irisfast

import (
	"strings"

	"github.com/park285/chess-relay-bot/internal/domain"
)

const TransportName = "iris"

// UserIDFromMessage prefers the numeric KakaoTalk user id and falls back to the sender name.
func UserIDFromMessage(msg *Message) string {
	if msg == nil {
		return ""
	}
	if msg.JSON != nil && strings.TrimSpace(msg.JSON.UserID) != "" {
		return strings.TrimSpace(msg.JSON.UserID)
	}
	if msg.Sender != nil {
		return strings.TrimSpace(*msg.Sender)
	}
	return ""
}

// RoomAllowed reports whether room is in allowed. An empty list allows every room.
func RoomAllowed(allowed []string, room string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, r := range allowed {
		if r == room {
			return true
		}
	}
	return false
}

// Gate decides which Iris messages are addressed to the bot.
// KakaoTalk rooms carry ordinary chatter, so only text starting with Prefix counts.
type Gate struct {
	Prefix       string
	AllowedRooms []string
	// BotUserID is the bot account's own user id; Iris delivers its replies back.
	BotUserID string
	// Commands are the words that, right after the prefix, select a command.
	Commands []string
}

// ToEvent converts an Iris message. ok is false for messages the relay must not act on:
// unprefixed text, rooms outside the allow-list, the bot's own messages, or no sender.
//
// After the prefix, "/cmd args" and "cmd args" both select cmd when it is in Commands;
// any other text is a move: "!auth bob b@x.io", "!status", "! e2e4".
func (g Gate) ToEvent(msg *Message) (ev domain.Event, ok bool) {
	if msg == nil || g.Prefix == "" {
		return domain.Event{}, false
	}
	text := strings.TrimSpace(msg.Msg)
	if !strings.HasPrefix(text, g.Prefix) {
		return domain.Event{}, false
	}
	body := strings.TrimSpace(strings.TrimPrefix(text, g.Prefix))
	if body == "" {
		return domain.Event{}, false
	}
	if !RoomAllowed(g.AllowedRooms, msg.Room) {
		return domain.Event{}, false
	}
	user := UserIDFromMessage(msg)
	if user == "" || (g.BotUserID != "" && user == g.BotUserID) {
		return domain.Event{}, false
	}

	ev = domain.Event{Transport: TransportName, ChatID: msg.Room, UserID: user, Text: body}
	candidate := body
	if !strings.HasPrefix(candidate, "/") {
		candidate = "/" + candidate
	}
	if cmd, args := domain.ParseText(candidate); g.isCommand(cmd) {
		ev.Command, ev.Args = cmd, args
	}
	return ev, true
}

func (g Gate) isCommand(cmd string) bool {
	for _, c := range g.Commands {
		if c == cmd {
			return true
		}
	}
	return false
}
