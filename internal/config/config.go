package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	TransportIris     = "iris"
	TransportTelegram = "telegram"

	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

type AppConfig struct {
	Transport string

	BackendBaseURL string
	BackendTimeout time.Duration

	IrisBaseURL string
	IrisWSURL   string

	XUserID    string
	XUserEmail string
	XSessionID string

	BotPrefix    string
	BotUserID    string
	AllowedRooms []string
	EgressMode   string
	EgressDryRun bool

	TelegramToken       string
	TelegramAPIEndpoint string
	TelegramPollTimeout int

	SessionBackend  string
	RedisURL        string
	RedisSessionTTL time.Duration

	MessagesDir       string
	MaxInflightEvents int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		Transport:           TransportIris,
		BackendBaseURL:      "http://localhost:9090",
		BackendTimeout:      10 * time.Second,
		EgressMode:          "http",
		TelegramPollTimeout: 60,
		SessionBackend:      SessionBackendMemory,
		RedisSessionTTL:     time.Hour,
		MaxInflightEvents:   64,
	}

	if v := strings.ToLower(strings.TrimSpace(os.Getenv("CHAT_TRANSPORT"))); v != "" {
		cfg.Transport = v
	}
	if v := strings.TrimSpace(os.Getenv("BACKEND_BASE_URL")); v != "" {
		cfg.BackendBaseURL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(os.Getenv("BACKEND_TIMEOUT")); v != "" { // seconds
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BackendTimeout = time.Duration(n) * time.Second
		}
	}

	cfg.IrisBaseURL = strings.TrimSpace(os.Getenv("IRIS_BASE_URL"))
	cfg.IrisWSURL = strings.TrimSpace(os.Getenv("IRIS_WS_URL"))

	cfg.XUserID = strings.TrimSpace(os.Getenv("X_USER_ID"))
	cfg.XUserEmail = strings.TrimSpace(os.Getenv("X_USER_EMAIL"))
	cfg.XSessionID = strings.TrimSpace(os.Getenv("X_SESSION_ID"))

	cfg.BotPrefix = strings.TrimSpace(os.Getenv("BOT_PREFIX"))
	cfg.BotUserID = strings.TrimSpace(os.Getenv("IRIS_BOT_USER_ID"))
	if v := strings.TrimSpace(os.Getenv("ALLOWED_ROOMS")); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.AllowedRooms = append(cfg.AllowedRooms, s)
			}
		}
	}
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("EGRESS_MODE"))); v != "" {
		cfg.EgressMode = v
	}
	if v := strings.TrimSpace(os.Getenv("EGRESS_DRYRUN")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.EgressDryRun = b
		}
	}

	cfg.TelegramToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	cfg.TelegramAPIEndpoint = strings.TrimSpace(os.Getenv("TELEGRAM_API_ENDPOINT"))
	if v := strings.TrimSpace(os.Getenv("TELEGRAM_POLL_TIMEOUT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.TelegramPollTimeout = n
		}
	}

	if v := strings.ToLower(strings.TrimSpace(os.Getenv("SESSION_BACKEND"))); v != "" {
		cfg.SessionBackend = v
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	if v := strings.TrimSpace(os.Getenv("REDIS_SESSION_TTL")); v != "" { // seconds
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RedisSessionTTL = time.Duration(n) * time.Second
		}
	}

	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))
	if v := strings.TrimSpace(os.Getenv("MAX_INFLIGHT_EVENTS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxInflightEvents = n
		}
	}

	switch cfg.Transport {
	case TransportIris:
		if cfg.IrisBaseURL == "" {
			return nil, errors.New("IRIS_BASE_URL is required")
		}
		if cfg.IrisWSURL == "" {
			return nil, errors.New("IRIS_WS_URL is required")
		}
		if cfg.BotPrefix == "" {
			return nil, errors.New("BOT_PREFIX is required")
		}
	case TransportTelegram:
		if cfg.TelegramToken == "" {
			return nil, errors.New("TELEGRAM_BOT_TOKEN is required")
		}
	default:
		return nil, fmt.Errorf("unsupported CHAT_TRANSPORT: %s", cfg.Transport)
	}

	switch cfg.SessionBackend {
	case SessionBackendMemory:
	case SessionBackendRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("REDIS_URL is required for redis session backend")
		}
	default:
		return nil, fmt.Errorf("unsupported SESSION_BACKEND: %s", cfg.SessionBackend)
	}

	switch cfg.EgressMode {
	case "http", "ws", "auto":
	default:
		cfg.EgressMode = "http"
	}

	return cfg, nil
}

// IrisHeaders returns the X-User-* headers Iris expects on HTTP calls and the WS handshake.
func (c *AppConfig) IrisHeaders() map[string]string {
	h := map[string]string{}
	if c.XUserID != "" {
		h["X-User-Id"] = c.XUserID
	}
	if c.XUserEmail != "" {
		h["X-User-Email"] = c.XUserEmail
	}
	if c.XSessionID != "" {
		h["X-Session-Id"] = c.XSessionID
	}
	return h
}
