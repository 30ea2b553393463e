package relay

import (
	"context"
	"errors"
	"strings"

	"github.com/park285/chess-relay-bot/internal/adapter/chatpresenter"
	"github.com/park285/chess-relay-bot/internal/backend"
	"github.com/park285/chess-relay-bot/internal/domain"
	"github.com/park285/chess-relay-bot/internal/obslog"
	"github.com/park285/chess-relay-bot/internal/session"
	"go.uber.org/zap"
)

const (
	CmdStart  = "start"
	CmdAuth   = "auth"
	CmdStatus = "status"
	CmdBoard  = "board"
)

// Commands lists the chat commands transports should register.
var Commands = []string{CmdStart, CmdAuth, CmdStatus, CmdBoard}

// Backend is the chess server as seen by the handlers.
type Backend interface {
	Authenticate(ctx context.Context, username, email string) (*backend.Response, error)
	SubmitMove(ctx context.Context, playerID int, move string) (*backend.Response, error)
	QueryStatus(ctx context.Context, playerID int) (*backend.Response, error)
	QueryBoard(ctx context.Context) (*backend.Response, error)
}

// Replier sends text back to the chat an event came from.
type Replier interface {
	Reply(ctx context.Context, chatID, message string) error
}

type Dispatcher struct {
	backend   Backend
	sessions  session.Store
	formatter *chatpresenter.Formatter
	replier   Replier
	logger    *zap.Logger
}

func NewDispatcher(b Backend, sessions session.Store, formatter *chatpresenter.Formatter, replier Replier, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = obslog.L()
	}
	return &Dispatcher{backend: b, sessions: sessions, formatter: formatter, replier: replier, logger: logger}
}

type handlerFunc func(ctx context.Context, ev domain.Event, log *zap.Logger) string

// Dispatch routes one event and sends the resulting reply. Commands not listed in
// Commands are ignored; plain text is a move.
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.Event) {
	log := d.logger.With(obslog.EventFields(ev)...)

	var h handlerFunc
	switch {
	case !ev.IsCommand():
		h = d.handleMove
	case ev.Command == CmdStart:
		h = d.handleStart
	case ev.Command == CmdAuth:
		h = d.handleAuth
	case ev.Command == CmdStatus:
		h = d.handleStatus
	case ev.Command == CmdBoard:
		h = d.handleBoard
	default:
		log.Debug("command_ignored")
		return
	}

	reply := h(ctx, ev, log)
	if err := d.replier.Reply(ctx, ev.ChatID, reply); err != nil {
		log.Warn("reply_failed", zap.Error(err))
	}
}

func (d *Dispatcher) handleStart(_ context.Context, _ domain.Event, _ *zap.Logger) string {
	return d.formatter.Usage()
}

func (d *Dispatcher) handleAuth(ctx context.Context, ev domain.Event, log *zap.Logger) string {
	if len(ev.Args) < 2 {
		return d.formatter.AuthUsage()
	}
	username, email := ev.Args[0], ev.Args[1]

	resp, err := d.backend.Authenticate(ctx, username, email)
	if err != nil {
		return d.connectionError(log, err)
	}
	if !resp.OK() {
		log.Info("auth_rejected", zap.Int("status", resp.StatusCode))
		return d.formatter.AuthServerError(resp.Body)
	}

	res, err := ParseAuthResponse(resp.Body)
	if err != nil {
		log.Warn("auth_parse_failed", zap.Error(err), zap.String("body", resp.Body))
		return d.formatter.AuthMalformed(resp.Body)
	}
	entry := domain.SessionEntry{ChatUserID: ev.UserID, PlayerID: res.PlayerID, Color: res.Color}
	if err := d.sessions.Put(ctx, entry); err != nil {
		log.Error("session_put_failed", zap.Error(err))
		return d.formatter.SessionUnavailable()
	}
	log.Info("auth_ok", zap.Int("player_id", res.PlayerID), zap.String("color", res.Color))
	return d.formatter.AuthSuccess(resp.Body)
}

func (d *Dispatcher) handleMove(ctx context.Context, ev domain.Event, log *zap.Logger) string {
	entry, reply := d.requireSession(ctx, ev, log)
	if entry == nil {
		return reply
	}
	move := strings.TrimSpace(ev.Text)
	resp, err := d.backend.SubmitMove(ctx, entry.PlayerID, move)
	if err != nil {
		return d.connectionError(log, err)
	}
	return d.formatter.Relay(resp.Body)
}

func (d *Dispatcher) handleStatus(ctx context.Context, ev domain.Event, log *zap.Logger) string {
	entry, reply := d.requireSession(ctx, ev, log)
	if entry == nil {
		return reply
	}
	resp, err := d.backend.QueryStatus(ctx, entry.PlayerID)
	if err != nil {
		return d.connectionError(log, err)
	}
	return d.formatter.Relay(resp.Body)
}

func (d *Dispatcher) handleBoard(ctx context.Context, _ domain.Event, log *zap.Logger) string {
	resp, err := d.backend.QueryBoard(ctx)
	if err != nil {
		return d.connectionError(log, err)
	}
	return d.formatter.Relay(resp.Body)
}

// requireSession returns the caller's entry, or nil and the reply to send instead.
func (d *Dispatcher) requireSession(ctx context.Context, ev domain.Event, log *zap.Logger) (*domain.SessionEntry, string) {
	entry, err := d.sessions.Get(ctx, ev.UserID)
	if err != nil {
		log.Error("session_get_failed", zap.Error(err))
		return nil, d.formatter.SessionUnavailable()
	}
	if entry == nil {
		return nil, d.formatter.SessionRequired()
	}
	return entry, ""
}

func (d *Dispatcher) connectionError(log *zap.Logger, err error) string {
	var terr *backend.TransportError
	if errors.As(err, &terr) {
		log.Warn("backend_unreachable", zap.String("op", terr.Op), zap.Error(terr.Err))
	} else {
		log.Warn("backend_unreachable", zap.Error(err))
	}
	return d.formatter.ConnectionError(err)
}
