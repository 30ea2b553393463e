package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/park285/chess-relay-bot/internal/adapter/chatpresenter"
	"github.com/park285/chess-relay-bot/internal/backend"
	"github.com/park285/chess-relay-bot/internal/domain"
	"github.com/park285/chess-relay-bot/internal/msgcat"
	"github.com/park285/chess-relay-bot/internal/session"
	"go.uber.org/zap"
)

type call struct {
	Op       string
	Username string
	Email    string
	PlayerID int
	Move     string
}

type fakeBackend struct {
	mu    sync.Mutex
	calls []call

	resp map[string]*backend.Response
	err  error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{resp: map[string]*backend.Response{}}
}

func (f *fakeBackend) reply(op string, c call) (*backend.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.Op = op
	f.calls = append(f.calls, c)
	if f.err != nil {
		return nil, &backend.TransportError{Op: op, Err: f.err}
	}
	if r, ok := f.resp[op]; ok {
		return r, nil
	}
	return &backend.Response{StatusCode: 200, Body: op + " ok"}, nil
}

func (f *fakeBackend) Authenticate(_ context.Context, username, email string) (*backend.Response, error) {
	return f.reply(backend.OpAuth, call{Username: username, Email: email})
}

func (f *fakeBackend) SubmitMove(_ context.Context, playerID int, move string) (*backend.Response, error) {
	return f.reply(backend.OpMove, call{PlayerID: playerID, Move: move})
}

func (f *fakeBackend) QueryStatus(_ context.Context, playerID int) (*backend.Response, error) {
	return f.reply(backend.OpStatus, call{PlayerID: playerID})
}

func (f *fakeBackend) QueryBoard(_ context.Context) (*backend.Response, error) {
	return f.reply(backend.OpBoard, call{})
}

func (f *fakeBackend) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

type fakeReplier struct {
	mu      sync.Mutex
	replies []string
	err     error
}

func (r *fakeReplier) Reply(_ context.Context, chatID, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, message)
	return r.err
}

func (r *fakeReplier) Last(t *testing.T) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.replies) == 0 {
		t.Fatalf("no reply sent")
	}
	return r.replies[len(r.replies)-1]
}

type harness struct {
	d        *Dispatcher
	backend  *fakeBackend
	replier  *fakeReplier
	sessions *session.MemoryStore
	fmt      *chatpresenter.Formatter
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat.New: %v", err)
	}
	h := &harness{
		backend:  newFakeBackend(),
		replier:  &fakeReplier{},
		sessions: session.NewMemoryStore(),
		fmt:      chatpresenter.NewFormatter(cat),
	}
	h.d = NewDispatcher(h.backend, h.sessions, h.fmt, h.replier, zap.NewNop())
	return h
}

func command(user, text string) domain.Event {
	cmd, args := domain.ParseText(text)
	return domain.Event{ID: "ev", Transport: "test", ChatID: "chat-" + user, UserID: user, Command: cmd, Args: args, Text: text}
}

func TestStartReturnsUsage(t *testing.T) {
	h := newHarness(t)
	h.d.Dispatch(context.Background(), command("u1", "/start"))
	if got := h.replier.Last(t); got != h.fmt.Usage() {
		t.Fatalf("unexpected usage reply: %q", got)
	}
	if n := len(h.backend.Calls()); n != 0 {
		t.Fatalf("start must not call backend, got %d calls", n)
	}
}

func TestAuthThenMoveScenario(t *testing.T) {
	h := newHarness(t)
	h.backend.resp[backend.OpAuth] = &backend.Response{StatusCode: 200, Body: "Authenticated! ID = 7, Color = black"}
	ctx := context.Background()

	h.d.Dispatch(ctx, command("alice", "/auth alice alice@example.com"))
	if got := h.replier.Last(t); got != "✅ Authenticated! ID = 7, Color = black" {
		t.Fatalf("auth reply=%q", got)
	}
	entry, _ := h.sessions.Get(ctx, "alice")
	if entry == nil || entry.PlayerID != 7 || entry.Color != "black" {
		t.Fatalf("unexpected session entry: %+v", entry)
	}

	h.d.Dispatch(ctx, command("alice", "e2e4"))
	calls := h.backend.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 backend calls, got %d", len(calls))
	}
	if calls[0].Username != "alice" || calls[0].Email != "alice@example.com" {
		t.Fatalf("unexpected auth call: %+v", calls[0])
	}
	if calls[1].Op != backend.OpMove || calls[1].PlayerID != 7 || calls[1].Move != "e2e4" {
		t.Fatalf("unexpected move call: %+v", calls[1])
	}
}

func TestAuthStoresParsedIdentity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i, color := range []string{"white", "Black", "white"} {
		id := 40 + i
		h.backend.resp[backend.OpAuth] = &backend.Response{StatusCode: 200, Body: fmt.Sprintf("Authenticated: ID = %d, Color = %s", id, color)}
		h.d.Dispatch(ctx, command("bob", "/auth bob bob@example.com"))
		entry, _ := h.sessions.Get(ctx, "bob")
		if entry == nil || entry.PlayerID != id || entry.Color != color {
			t.Fatalf("round %d: unexpected entry %+v", i, entry)
		}
	}
}

func TestAuthUsageWithoutBackendCall(t *testing.T) {
	h := newHarness(t)
	for _, text := range []string{"/auth bob", "/auth"} {
		h.d.Dispatch(context.Background(), command("bob", text))
		if got := h.replier.Last(t); got != h.fmt.AuthUsage() {
			t.Fatalf("%q: reply=%q", text, got)
		}
	}
	if n := len(h.backend.Calls()); n != 0 {
		t.Fatalf("expected no backend calls, got %d", n)
	}
}

func TestAuthExtraArgsIgnored(t *testing.T) {
	h := newHarness(t)
	h.backend.resp[backend.OpAuth] = &backend.Response{StatusCode: 200, Body: "ID = 3, Color = White"}
	h.d.Dispatch(context.Background(), command("c", "/auth carol carol@example.com extra"))
	calls := h.backend.Calls()
	if len(calls) != 1 || calls[0].Username != "carol" || calls[0].Email != "carol@example.com" {
		t.Fatalf("unexpected calls: %+v", calls)
	}
}

func TestAuthNon200LeavesSessionUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.sessions.Put(ctx, domain.SessionEntry{ChatUserID: "dave", PlayerID: 5, Color: "White"})
	h.backend.resp[backend.OpAuth] = &backend.Response{StatusCode: 500, Body: "ID = 9, Color = Black"}

	h.d.Dispatch(ctx, command("dave", "/auth dave dave@example.com"))
	if got := h.replier.Last(t); got != "Server error: ID = 9, Color = Black" {
		t.Fatalf("reply=%q", got)
	}
	entry, _ := h.sessions.Get(ctx, "dave")
	if entry == nil || entry.PlayerID != 5 {
		t.Fatalf("session must be unchanged, got %+v", entry)
	}

	h.d.Dispatch(ctx, command("erin", "/auth erin erin@example.com"))
	if entry, _ := h.sessions.Get(ctx, "erin"); entry != nil {
		t.Fatalf("no entry expected after rejected auth, got %+v", entry)
	}
}

func TestAuthMalformedResponse(t *testing.T) {
	h := newHarness(t)
	h.backend.resp[backend.OpAuth] = &backend.Response{StatusCode: 200, Body: "Welcome aboard"}
	h.d.Dispatch(context.Background(), command("frank", "/auth frank f@example.com"))
	if got := h.replier.Last(t); got != h.fmt.AuthMalformed("Welcome aboard") {
		t.Fatalf("reply=%q", got)
	}
	if h.sessions.Len() != 0 {
		t.Fatalf("malformed auth must not create a session")
	}
}

func TestPreconditionWithoutAuth(t *testing.T) {
	h := newHarness(t)
	for _, text := range []string{"/status", "e2e4", "/status@ChessRelayBot"} {
		h.d.Dispatch(context.Background(), command("ghost", text))
		if got := h.replier.Last(t); got != "Сначала авторизуйтесь через /auth" {
			t.Fatalf("%q: reply=%q", text, got)
		}
	}
	if n := len(h.backend.Calls()); n != 0 {
		t.Fatalf("expected zero backend calls, got %d", n)
	}
}

func TestPassthroughIsVerbatim(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.sessions.Put(ctx, domain.SessionEntry{ChatUserID: "u", PlayerID: 11, Color: "White"})
	bodies := map[string]string{
		backend.OpMove:   "  Invalid move\n",
		backend.OpStatus: "Board history:\n{\"rnbqkbnr\"}",
		backend.OpBoard:  "8 r n b q k b n r\n7 p p p p p p p p",
	}
	for op, body := range bodies {
		h.backend.resp[op] = &backend.Response{StatusCode: 200, Body: body}
	}
	h.backend.resp[backend.OpMove].StatusCode = 400

	cases := map[string]string{
		" e7e5 ":  backend.OpMove,
		"/status": backend.OpStatus,
		"/board":  backend.OpBoard,
	}
	for text, op := range cases {
		h.d.Dispatch(ctx, command("u", text))
		if got := h.replier.Last(t); got != bodies[op] {
			t.Fatalf("%s: reply=%q want %q", op, got, bodies[op])
		}
	}
	for _, c := range h.backend.Calls() {
		if c.Op == backend.OpMove && c.Move != "e7e5" {
			t.Fatalf("move must be trimmed, got %q", c.Move)
		}
		if (c.Op == backend.OpMove || c.Op == backend.OpStatus) && c.PlayerID != 11 {
			t.Fatalf("%s used player %d", c.Op, c.PlayerID)
		}
	}
}

func TestBoardNeedsNoAuth(t *testing.T) {
	h := newHarness(t)
	h.d.Dispatch(context.Background(), command("anon", "/board"))
	calls := h.backend.Calls()
	if len(calls) != 1 || calls[0].Op != backend.OpBoard {
		t.Fatalf("expected one board call, got %+v", calls)
	}
}

func TestTransportFailureIsReported(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.sessions.Put(ctx, domain.SessionEntry{ChatUserID: "u", PlayerID: 1, Color: "White"})
	h.backend.err = errors.New("dial tcp 127.0.0.1:9090: connect: connection refused")

	for _, text := range []string{"/auth u u@example.com", "e2e4", "/status", "/board"} {
		h.d.Dispatch(ctx, command("u", text))
		got := h.replier.Last(t)
		if !strings.HasPrefix(got, "Connection error: ") || !strings.Contains(got, "connection refused") {
			t.Fatalf("%q: reply=%q", text, got)
		}
	}
	if entry, _ := h.sessions.Get(ctx, "u"); entry == nil || entry.PlayerID != 1 {
		t.Fatalf("failed auth must not touch session: %+v", entry)
	}
}

func TestUnknownCommandIgnored(t *testing.T) {
	h := newHarness(t)
	h.d.Dispatch(context.Background(), command("u", "/resign now"))
	if len(h.replier.replies) != 0 || len(h.backend.Calls()) != 0 {
		t.Fatalf("unknown commands must be ignored")
	}
}

type failingStore struct{}

func (failingStore) Put(context.Context, domain.SessionEntry) error { return errors.New("redis down") }
func (failingStore) Get(context.Context, string) (*domain.SessionEntry, error) {
	return nil, errors.New("redis down")
}

func TestSessionStoreFailure(t *testing.T) {
	h := newHarness(t)
	h.d = NewDispatcher(h.backend, failingStore{}, h.fmt, h.replier, zap.NewNop())
	h.d.Dispatch(context.Background(), command("u", "/status"))
	if got := h.replier.Last(t); got != h.fmt.SessionUnavailable() {
		t.Fatalf("reply=%q", got)
	}
	if len(h.backend.Calls()) != 0 {
		t.Fatalf("no backend call expected")
	}
}

func TestReplyFailureDoesNotPanic(t *testing.T) {
	h := newHarness(t)
	h.replier.err = errors.New("iris down")
	h.d.Dispatch(context.Background(), command("u", "/start"))
}
