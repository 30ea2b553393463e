package tgbot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/park285/chess-relay-bot/internal/domain"
	"go.uber.org/zap"
)

func commandMessage(text string, cmdLen int) *tgbotapi.Message {
	return &tgbotapi.Message{
		Text:     text,
		From:     &tgbotapi.User{ID: 1001},
		Chat:     &tgbotapi.Chat{ID: -500},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}
}

func TestToEventCommand(t *testing.T) {
	ev, ok := ToEvent(tgbotapi.Update{UpdateID: 9, Message: commandMessage("/Auth@chessrelaybot alice a@x.io", 19)}, "ChessRelayBot")
	if !ok {
		t.Fatalf("expected event")
	}
	if ev.Command != "auth" || len(ev.Args) != 2 || ev.Args[0] != "alice" || ev.Args[1] != "a@x.io" {
		t.Fatalf("unexpected command parse: %+v", ev)
	}
	if ev.UserID != "1001" || ev.ChatID != "-500" || ev.ID != "9" || ev.Transport != TransportName {
		t.Fatalf("unexpected identity: %+v", ev)
	}
}

func TestToEventMoveAndSkips(t *testing.T) {
	move := &tgbotapi.Message{Text: " e2e4 ", From: &tgbotapi.User{ID: 7}, Chat: &tgbotapi.Chat{ID: 7}}
	ev, ok := ToEvent(tgbotapi.Update{Message: move}, "ChessRelayBot")
	if !ok || ev.IsCommand() || ev.Text != " e2e4 " {
		t.Fatalf("unexpected move event: %+v ok=%v", ev, ok)
	}

	skips := []tgbotapi.Update{
		{},
		{Message: &tgbotapi.Message{Text: "e2e4", Chat: &tgbotapi.Chat{ID: 1}}},
		{Message: &tgbotapi.Message{Text: "", From: &tgbotapi.User{ID: 1}, Chat: &tgbotapi.Chat{ID: 1}}},
	}
	for i, u := range skips {
		if _, ok := ToEvent(u, "ChessRelayBot"); ok {
			t.Fatalf("case %d: expected skip", i)
		}
	}
}

func TestToEventSkipsOtherBotsCommands(t *testing.T) {
	if _, ok := ToEvent(tgbotapi.Update{Message: commandMessage("/status@SomeOtherBot", 20)}, "ChessRelayBot"); ok {
		t.Fatalf("command for another bot must be skipped")
	}
	ev, ok := ToEvent(tgbotapi.Update{Message: commandMessage("/status", 7)}, "ChessRelayBot")
	if !ok || ev.Command != "status" {
		t.Fatalf("bare command must be handled: %+v ok=%v", ev, ok)
	}
}

type apiStub struct {
	mu       sync.Mutex
	calls    map[string][]map[string]string
	served   bool
	response map[string]string
}

func (s *apiStub) handler(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	form := map[string]string{}
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}
	s.mu.Lock()
	s.calls[method] = append(s.calls[method], form)
	first := !s.served
	if method == "getUpdates" {
		s.served = true
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "getMe":
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Relay","username":"ChessRelayBot"}}`))
	case "sendMessage":
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":3,"date":0,"chat":{"id":-500,"type":"group"},"text":"ok"}}`))
	case "setMyCommands":
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	case "getUpdates":
		if first {
			_, _ = w.Write([]byte(`{"ok":true,"result":[{"update_id":11,"message":{"message_id":1,"date":0,"text":"e2e4","from":{"id":42,"is_bot":false,"first_name":"A"},"chat":{"id":42,"type":"private"}}}]}`))
			return
		}
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
	default:
		http.NotFound(w, r)
	}
}

func (s *apiStub) Calls(method string) []map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]string(nil), s.calls[method]...)
}

func newStubBot(t *testing.T) (*Bot, *apiStub) {
	t.Helper()
	stub := &apiStub{calls: map[string][]map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(stub.handler))
	t.Cleanup(srv.Close)
	b, err := New("123:abc", srv.URL+"/bot%s/%s", 0, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b, stub
}

func TestSendTextAndCommands(t *testing.T) {
	b, stub := newStubBot(t)
	if b.Username() != "ChessRelayBot" {
		t.Fatalf("username=%q", b.Username())
	}
	if err := b.SendText(context.Background(), "-500", "Connection error: refused"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	sent := stub.Calls("sendMessage")
	if len(sent) != 1 || sent[0]["chat_id"] != "-500" || sent[0]["text"] != "Connection error: refused" {
		t.Fatalf("unexpected sendMessage: %+v", sent)
	}
	if err := b.SendText(context.Background(), "room-1", "x"); err == nil {
		t.Fatalf("expected chat id parse error")
	}

	if err := b.RegisterCommands([]string{"start", "auth", "status", "board"}); err != nil {
		t.Fatalf("RegisterCommands: %v", err)
	}
	reg := stub.Calls("setMyCommands")
	if len(reg) != 1 || !strings.Contains(reg[0]["commands"], `"command":"board"`) {
		t.Fatalf("unexpected setMyCommands: %+v", reg)
	}
}

func TestRunSubmitsUpdates(t *testing.T) {
	b, _ := newStubBot(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan domain.Event, 1)
	done := make(chan struct{})
	go func() {
		b.Run(ctx, func(ev domain.Event) error {
			got <- ev
			return nil
		})
		close(done)
	}()

	select {
	case ev := <-got:
		if ev.UserID != "42" || ev.ChatID != "42" || ev.Text != "e2e4" || ev.IsCommand() {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-ctx.Done():
		t.Fatalf("no update relayed")
	}
	cancel()
	<-done
}
