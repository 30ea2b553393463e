package chatpresenter

import (
	"context"
	"strings"
)

// SendFunc delivers one text message to a chat.
type SendFunc func(ctx context.Context, chatID, message string) error

// Presenter delivers replies without coupling handlers to a transport.
type Presenter struct {
	sendMessage SendFunc
}

func NewPresenter(sendMessage SendFunc) *Presenter {
	return &Presenter{sendMessage: sendMessage}
}

// Reply sends message to chatID. Blank messages are dropped.
func (p *Presenter) Reply(ctx context.Context, chatID, message string) error {
	if p == nil || p.sendMessage == nil {
		return nil
	}
	if strings.TrimSpace(message) == "" {
		return nil
	}
	return p.sendMessage(ctx, chatID, message)
}
