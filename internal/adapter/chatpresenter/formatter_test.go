package chatpresenter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/park285/chess-relay-bot/internal/msgcat"
	"github.com/park285/chess-relay-bot/internal/util"
)

func newFormatter(t *testing.T, opts ...FormatterOption) *Formatter {
	t.Helper()
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat.New: %v", err)
	}
	return NewFormatter(cat, opts...)
}

type brokenCatalog struct{}

func (brokenCatalog) Render(string, any) (string, error) { return "", errors.New("boom") }

func TestFormatterTemplates(t *testing.T) {
	f := newFormatter(t)
	if got := f.AuthSuccess("Authenticated! ID = 7, Color = black"); got != "✅ Authenticated! ID = 7, Color = black" {
		t.Fatalf("AuthSuccess=%q", got)
	}
	if got := f.AuthServerError("user exists"); got != "Server error: user exists" {
		t.Fatalf("AuthServerError=%q", got)
	}
	if got := f.ConnectionError(errors.New("dial tcp 127.0.0.1:9090: connect: connection refused")); got != "Connection error: dial tcp 127.0.0.1:9090: connect: connection refused" {
		t.Fatalf("ConnectionError=%q", got)
	}
	if got := f.SessionRequired(); got != "Сначала авторизуйтесь через /auth" {
		t.Fatalf("SessionRequired=%q", got)
	}
	body := "  Move accepted\n"
	if got := f.Relay(body); got != body {
		t.Fatalf("Relay must be verbatim")
	}
}

func TestFormatterBodyIsNotTemplated(t *testing.T) {
	f := newFormatter(t)
	body := "{{.Body}} <b>&"
	if got := f.AuthSuccess(body); got != "✅ "+body {
		t.Fatalf("body must be inserted literally, got %q", got)
	}
}

func TestFormatterFallbacks(t *testing.T) {
	f := NewFormatter(brokenCatalog{})
	if got := f.AuthSuccess("x"); got != "✅ x" {
		t.Fatalf("fallback AuthSuccess=%q", got)
	}
	if got := f.ConnectionError(errors.New("eof")); got != "Connection error: eof" {
		t.Fatalf("fallback ConnectionError=%q", got)
	}
	if got := f.AuthUsage(); got == "" {
		t.Fatalf("fallback usage must not be empty")
	}
}

func TestUsageFolding(t *testing.T) {
	plain := newFormatter(t).Usage()
	folded := newFormatter(t, WithKakaoFolding()).Usage()
	if strings.Contains(plain, util.KakaoZeroWidthSpace) {
		t.Fatalf("plain usage must not be padded")
	}
	if !strings.Contains(folded, util.KakaoZeroWidthSpace) {
		t.Fatalf("kakao usage should be folded")
	}
}

func TestPresenterDropsBlank(t *testing.T) {
	var sent []string
	p := NewPresenter(func(_ context.Context, chatID, msg string) error {
		sent = append(sent, chatID+":"+msg)
		return nil
	})
	_ = p.Reply(context.Background(), "r1", "  ")
	_ = p.Reply(context.Background(), "r1", "hi")
	if len(sent) != 1 || sent[0] != "r1:hi" {
		t.Fatalf("unexpected sends: %v", sent)
	}
}
