package tgbot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/park285/chess-relay-bot/internal/domain"
	"github.com/park285/chess-relay-bot/internal/obslog"
	"go.uber.org/zap"
)

const TransportName = "telegram"

var commandDescriptions = map[string]string{
	"start":  "Начало работы и список команд",
	"auth":   "Авторизация: /auth <username> <email>",
	"status": "Показать текущий ход",
	"board":  "Показать доску",
}

// Bot wraps the Telegram Bot API for long-polling ingress and text egress.
type Bot struct {
	api         *tgbotapi.BotAPI
	pollTimeout int
	logger      *zap.Logger
}

// New connects to the Bot API (it calls getMe). endpoint may be empty for the
// public API; otherwise it must contain two %s verbs for token and method.
func New(token, endpoint string, pollTimeout int, logger *zap.Logger) (*Bot, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if logger == nil {
		logger = obslog.L()
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{})
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	logger.Info("telegram_authorized", zap.String("username", api.Self.UserName))
	return &Bot{api: api, pollTimeout: pollTimeout, logger: logger}, nil
}

func (b *Bot) Username() string { return b.api.Self.UserName }

// RegisterCommands publishes the command menu for the given command names.
func (b *Bot) RegisterCommands(commands []string) error {
	list := make([]tgbotapi.BotCommand, 0, len(commands))
	for _, c := range commands {
		desc := commandDescriptions[c]
		if desc == "" {
			desc = c
		}
		list = append(list, tgbotapi.BotCommand{Command: c, Description: desc})
	}
	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(list...)); err != nil {
		return fmt.Errorf("setMyCommands: %w", err)
	}
	return nil
}

// SendText sends message to chatID, the decimal chat id carried by events.
func (b *Bot) SendText(_ context.Context, chatID, message string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram chat id %q: %w", chatID, err)
	}
	if _, err := b.api.Send(tgbotapi.NewMessage(id, message)); err != nil {
		return fmt.Errorf("sendMessage: %w", err)
	}
	return nil
}

// Run long-polls updates and hands every relay event to submit until ctx ends.
func (b *Bot) Run(ctx context.Context, submit func(domain.Event) error) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			ev, ok := ToEvent(upd, b.api.Self.UserName)
			if !ok {
				continue
			}
			if err := submit(ev); err != nil {
				b.logger.Warn("event_submit_failed", append(obslog.EventFields(ev), zap.Error(err))...)
				return
			}
		}
	}
}

// ToEvent converts a Telegram update. Only text messages with a sender are relayed.
// Commands addressed to another bot ("/status@OtherBot") are skipped.
func ToEvent(upd tgbotapi.Update, botUsername string) (domain.Event, bool) {
	m := upd.Message
	if m == nil || m.From == nil || m.Chat == nil || strings.TrimSpace(m.Text) == "" {
		return domain.Event{}, false
	}
	ev := domain.Event{
		ID:        strconv.Itoa(upd.UpdateID),
		Transport: TransportName,
		ChatID:    strconv.FormatInt(m.Chat.ID, 10),
		UserID:    strconv.FormatInt(m.From.ID, 10),
		Text:      m.Text,
	}
	if m.IsCommand() {
		if _, target, ok := strings.Cut(m.CommandWithAt(), "@"); ok && !strings.EqualFold(target, botUsername) {
			return domain.Event{}, false
		}
		ev.Command = strings.ToLower(m.Command())
		ev.Args = strings.Fields(m.CommandArguments())
	}
	return ev, true
}
