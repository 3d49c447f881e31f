// Package backend talks to the external content API that owns most of the
// site's production data.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrTimeout  = errors.New("backend request timed out")
	ErrNetwork  = errors.New("backend unreachable")
	ErrUpstream = errors.New("backend reported an error")
)

const maxResponseBytes = 8 << 20

type Config struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
	HealthPath  string
	// MaxResponseBytes caps a reply body; a larger reply is ErrUpstream.
	MaxResponseBytes int64
}

// Observer receives one call per Do with the final outcome.
type Observer interface {
	ObserveBackendCall(method, outcome string, elapsed time.Duration)
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithObserver(o Observer) Option {
	return func(c *Client) { c.obs = o }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

type Client struct {
	base  *url.URL
	cfg   Config
	http  *http.Client
	obs   Observer
	log   *slog.Logger
	sleep func(context.Context, time.Duration) error
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend base URL %q", raw)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = 0
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/health"
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = maxResponseBytes
	}
	c := &Client{
		base:  base,
		cfg:   cfg,
		http:  &http.Client{},
		log:   slog.Default(),
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) BaseURL() string {
	return c.base.String()
}

type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Do sends req with a per-attempt timeout. GET and HEAD are retried with
// exponential backoff on network errors, timeouts and 502/503/504; other
// methods get exactly one attempt. A response with any status is returned
// without error once attempts are used up.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	attempts := 1
	if method == http.MethodGet || method == http.MethodHead {
		attempts = c.cfg.MaxAttempts
	}

	start := time.Now()
	var (
		resp *Response
		err  error
	)
	for i := 0; i < attempts; i++ {
		if i > 0 {
			wait := c.cfg.Backoff << (i - 1)
			c.log.Warn("retrying backend request", "method", method, "path", req.Path, "attempt", i+1, "wait", wait, "error", err)
			if serr := c.sleep(ctx, wait); serr != nil {
				err = fmt.Errorf("%w: %v", ErrNetwork, serr)
				break
			}
		}
		resp, err = c.attempt(ctx, method, req)
		if !retryable(resp, err) || ctx.Err() != nil {
			break
		}
	}
	c.observe(method, resp, err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, method string, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	target := c.base.JoinPath(req.Path)
	if len(req.Query) > 0 {
		target.RawQuery = req.Query.Encode()
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build backend request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	if hreq.Header.Get("Accept") == "" {
		hreq.Header.Set("Accept", "application/json")
	}

	hresp, err := c.http.Do(hreq)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer hresp.Body.Close()
	limit := c.cfg.MaxResponseBytes
	b, err := io.ReadAll(io.LimitReader(hresp.Body, limit+1))
	if err != nil {
		return nil, classify(ctx, err)
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", ErrUpstream, limit)
	}
	return &Response{StatusCode: hresp.StatusCode, Header: hresp.Header.Clone(), Body: b}, nil
}

func classify(ctx context.Context, err error) error {
	var nerr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

func retryable(resp *Response, err error) bool {
	if err != nil {
		return errors.Is(err, ErrTimeout) || errors.Is(err, ErrNetwork)
	}
	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func (c *Client) observe(method string, resp *Response, err error, elapsed time.Duration) {
	if c.obs == nil {
		return
	}
	outcome := "ok"
	switch {
	case errors.Is(err, ErrTimeout):
		outcome = "timeout"
	case errors.Is(err, ErrUpstream):
		outcome = "upstream_error"
	case err != nil:
		outcome = "network_error"
	case resp.StatusCode >= 500:
		outcome = "server_error"
	case resp.StatusCode >= 400:
		outcome = "client_error"
	}
	c.obs.ObserveBackendCall(method, outcome, elapsed)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
