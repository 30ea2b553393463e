package chatpresenter

import (
	"strings"

	"github.com/park285/chess-relay-bot/internal/msgcat"
	"github.com/park285/chess-relay-bot/internal/obslog"
	"github.com/park285/chess-relay-bot/internal/util"
	"go.uber.org/zap"
)

// Renderer is the part of msgcat.Catalog the formatter needs.
type Renderer interface {
	Render(key string, data any) (string, error)
}

// fallbacks are used when a catalog template fails to render.
var fallbacks = map[string]string{
	msgcat.KeyStartUsage:         "/auth <username> <email>, /status, /board",
	msgcat.KeyAuthUsage:          "/auth <username> <email>",
	msgcat.KeySessionRequired:    "/auth",
	msgcat.KeySessionUnavailable: "session store unavailable",
}

// Formatter turns backend replies and local failures into chat text.
// Backend bodies pass through untouched unless a template wraps them.
type Formatter struct {
	catalog      Renderer
	foldLongHelp bool
}

type FormatterOption func(*Formatter)

// WithKakaoFolding folds the usage text behind KakaoTalk's '전체보기'.
func WithKakaoFolding() FormatterOption {
	return func(f *Formatter) { f.foldLongHelp = true }
}

func NewFormatter(catalog Renderer, opts ...FormatterOption) *Formatter {
	f := &Formatter{catalog: catalog}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Formatter) Usage() string {
	text := f.render(msgcat.KeyStartUsage, nil)
	if f.foldLongHelp {
		return util.FoldAfterFirstLine(text)
	}
	return text
}

func (f *Formatter) AuthUsage() string { return f.render(msgcat.KeyAuthUsage, nil) }

func (f *Formatter) AuthSuccess(body string) string {
	return f.renderBody(msgcat.KeyAuthSuccess, body, "✅ "+body)
}

func (f *Formatter) AuthServerError(body string) string {
	return f.renderBody(msgcat.KeyAuthServerError, body, "Server error: "+body)
}

func (f *Formatter) AuthMalformed(body string) string {
	return f.renderBody(msgcat.KeyAuthMalformed, body, body)
}

func (f *Formatter) SessionRequired() string { return f.render(msgcat.KeySessionRequired, nil) }

func (f *Formatter) SessionUnavailable() string { return f.render(msgcat.KeySessionUnavailable, nil) }

// ConnectionError wraps a transport failure; the cause text is kept as-is.
func (f *Formatter) ConnectionError(cause error) string {
	desc := "unknown error"
	if cause != nil {
		desc = cause.Error()
	}
	out, err := f.catalog.Render(msgcat.KeyConnectionError, map[string]any{"Cause": desc})
	if err != nil {
		obslog.L().Warn("msgcat_render_failed", zap.String("key", msgcat.KeyConnectionError), zap.Error(err))
		return "Connection error: " + desc
	}
	return out
}

// Relay returns a backend body unchanged.
func (f *Formatter) Relay(body string) string { return body }

func (f *Formatter) render(key string, data any) string {
	out, err := f.catalog.Render(key, data)
	if err != nil || strings.TrimSpace(out) == "" {
		obslog.L().Warn("msgcat_render_failed", zap.String("key", key), zap.Error(err))
		return fallbacks[key]
	}
	return out
}

func (f *Formatter) renderBody(key, body, fallback string) string {
	out, err := f.catalog.Render(key, map[string]any{"Body": body})
	if err != nil {
		obslog.L().Warn("msgcat_render_failed", zap.String("key", key), zap.Error(err))
		return fallback
	}
	return out
}
