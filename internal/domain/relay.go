package domain

import "strings"

// SessionEntry links a chat identity to a backend player.
type SessionEntry struct {
	ChatUserID string `json:"chat_user_id"`
	PlayerID   int    `json:"player_id"`
	Color      string `json:"color"`
}

// Event is one incoming chat message after transport decoding.
type Event struct {
	ID        string
	Transport string
	ChatID    string
	UserID    string
	Command   string
	Args      []string
	Text      string
}

func (e Event) IsCommand() bool { return e.Command != "" }

// ParseText splits "/cmd@bot a b" into ("cmd", ["a", "b"]).
// Plain text yields an empty command.
func ParseText(text string) (string, []string) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return "", nil
	}
	parts := strings.Fields(trimmed)
	cmd := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	if cmd == "" {
		return "", nil
	}
	return strings.ToLower(cmd), parts[1:]
}
