package backend

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/park285/chess-relay-bot/internal/obslog"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const (
	OpAuth   = "auth"
	OpMove   = "move"
	OpStatus = "status"
	OpBoard  = "board"
)

// Response is the backend reply as-is. Any HTTP status lands here.
type Response struct {
	StatusCode int
	Body       string
}

func (r *Response) OK() bool { return r != nil && r.StatusCode == fasthttp.StatusOK }

// TransportError means the request never produced a backend reply.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

type Client struct {
	baseURL string
	http    *fasthttp.Client
	logger  *zap.Logger

	defaultTimeout time.Duration
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

// WithDial replaces the dialer, e.g. with an in-memory listener.
func WithDial(dial func(addr string) (net.Conn, error)) Option {
	return func(c *Client) { c.http.Dial = dial }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		logger:         obslog.L(),
		defaultTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// Authenticate posts the credentials to /auth.
func (c *Client) Authenticate(ctx context.Context, username, email string) (*Response, error) {
	form := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(form)
	form.Set("username", username)
	form.Set("email", email)
	return c.do(ctx, OpAuth, fasthttp.MethodPost, "/auth", form)
}

// SubmitMove posts the move text for the player to /move.
func (c *Client) SubmitMove(ctx context.Context, playerID int, move string) (*Response, error) {
	form := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(form)
	form.Set("id_player", strconv.Itoa(playerID))
	form.Set("move", move)
	return c.do(ctx, OpMove, fasthttp.MethodPost, "/move", form)
}

func (c *Client) QueryStatus(ctx context.Context, playerID int) (*Response, error) {
	query := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(query)
	query.Set("id_player", strconv.Itoa(playerID))
	return c.do(ctx, OpStatus, fasthttp.MethodGet, "/status", query)
}

func (c *Client) QueryBoard(ctx context.Context) (*Response, error) {
	return c.do(ctx, OpBoard, fasthttp.MethodGet, "/board", nil)
}

// do sends one request. Form args go to the body for POST and to the query string otherwise.
func (c *Client) do(ctx context.Context, op, method, path string, args *fasthttp.Args) (*Response, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	uri := c.baseURL + path
	req.Header.SetMethod(method)
	if args != nil && args.Len() > 0 {
		if method == fasthttp.MethodPost {
			req.Header.SetContentType("application/x-www-form-urlencoded")
			req.SetBody(args.QueryString())
		} else {
			uri += "?" + string(args.QueryString())
		}
	}
	req.SetRequestURI(uri)

	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	started := time.Now()
	if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
		terr := &TransportError{Op: op, Err: fmt.Errorf("%s %s: %w", method, uri, err)}
		obslog.BackendCall(c.logger, op, 0, started, terr)
		return nil, terr
	}

	out := &Response{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	obslog.BackendCall(c.logger, op, out.StatusCode, started, nil)
	return out, nil
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}
