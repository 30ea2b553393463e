package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/park285/chess-relay-bot/internal/adapter/chatpresenter"
	"github.com/park285/chess-relay-bot/internal/backend"
	appcfg "github.com/park285/chess-relay-bot/internal/config"
	"github.com/park285/chess-relay-bot/internal/irisfast"
	"github.com/park285/chess-relay-bot/internal/msgcat"
	"github.com/park285/chess-relay-bot/internal/obslog"
	"github.com/park285/chess-relay-bot/internal/relay"
	"github.com/park285/chess-relay-bot/internal/session"
	"github.com/park285/chess-relay-bot/internal/tgbot"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

// sessionCloser is implemented by stores holding external resources.
type sessionCloser interface {
	Close(ctx context.Context) error
}

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		logger.Fatal("message catalog init failed", zap.Error(err))
	}

	chessBackend := backend.NewClient(cfg.BackendBaseURL,
		backend.WithTimeout(cfg.BackendTimeout),
		backend.WithLogger(logger.Named("backend")),
	)

	sessions, err := openSessions(cfg)
	if err != nil {
		logger.Fatal("session store init failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		runner    *relay.Runner
		closeChat func(context.Context) error
	)
	switch cfg.Transport {
	case appcfg.TransportTelegram:
		bot, err := tgbot.New(cfg.TelegramToken, cfg.TelegramAPIEndpoint, cfg.TelegramPollTimeout, logger.Named("telegram"))
		if err != nil {
			logger.Fatal("telegram init failed", zap.Error(err))
		}
		if err := bot.RegisterCommands(relay.Commands); err != nil {
			logger.Warn("telegram_commands_not_registered", zap.Error(err))
		}
		formatter := chatpresenter.NewFormatter(catalog)
		presenter := chatpresenter.NewPresenter(bot.SendText)
		runner = relay.NewRunner(relay.NewDispatcher(chessBackend, sessions, formatter, presenter, logger), cfg.MaxInflightEvents, logger)

		pollDone := make(chan struct{})
		go func() {
			defer close(pollDone)
			bot.Run(ctx, runner.Submit)
		}()
		closeChat = func(context.Context) error {
			<-pollDone
			return nil
		}

	default:
		client := irisfast.NewClient(cfg.IrisBaseURL,
			irisfast.WithHeaderProvider(cfg.IrisHeaders),
			irisfast.WithTimeout(cfg.BackendTimeout),
		)
		ws := irisfast.NewWebSocket(cfg.IrisWSURL, 5, time.Second)
		ws.SetHeaderProvider(cfg.IrisHeaders)
		ws.SetLogger(logger.Named("iris"))
		ws.OnStateChange(func(state irisfast.WebSocketState) {
			logger.Info("iris_ws_state", zap.String("state", string(state)))
		})

		egress := irisfast.NewEgress(cfg.EgressMode, cfg.EgressDryRun, client, ws, logger.Named("egress"))
		formatter := chatpresenter.NewFormatter(catalog, chatpresenter.WithKakaoFolding())
		presenter := chatpresenter.NewPresenter(egress.SendText)
		runner = relay.NewRunner(relay.NewDispatcher(chessBackend, sessions, formatter, presenter, logger), cfg.MaxInflightEvents, logger)

		gate := irisfast.Gate{
			Prefix:       cfg.BotPrefix,
			AllowedRooms: cfg.AllowedRooms,
			BotUserID:    cfg.BotUserID,
			Commands:     relay.Commands,
		}
		ws.OnMessage(func(msg *irisfast.Message) {
			ev, ok := gate.ToEvent(msg)
			if !ok {
				return
			}
			if err := runner.Submit(ev); err != nil {
				logger.Warn("event_submit_failed", append(obslog.EventFields(ev), zap.Error(err))...)
			}
		})

		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := ws.Connect(cctx)
		cancel()
		if err != nil {
			logger.Fatal("iris ws connect failed", zap.Error(err))
		}
		closeChat = ws.Close
	}

	logger.Info("relay_started",
		zap.String("transport", cfg.Transport),
		zap.String("backend", chessBackend.BaseURL()),
		zap.String("sessions", cfg.SessionBackend),
	)
	<-ctx.Done()
	logger.Info("relay_stopping")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := closeChat(sctx); err != nil {
		logger.Warn("chat_close_failed", zap.Error(err))
	}
	if err := runner.Shutdown(sctx); err != nil {
		logger.Warn("runner_shutdown_incomplete", zap.Error(err))
	}
	if c, ok := sessions.(sessionCloser); ok {
		if err := c.Close(sctx); err != nil {
			logger.Warn("session_close_failed", zap.Error(err))
		}
	}
}

func openSessions(cfg *appcfg.AppConfig) (session.Store, error) {
	if cfg.SessionBackend != appcfg.SessionBackendRedis {
		return session.NewMemoryStore(), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store, err := session.OpenRedisStore(ctx, cfg.RedisURL, session.WithSessionTTL(cfg.RedisSessionTTL))
	if err != nil {
		return nil, err
	}
	return store, nil
}
