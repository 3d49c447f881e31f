package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordingObserver) ObserveBackendCall(_, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func newTestClient(t *testing.T, baseURL string, cfg Config, opts ...Option) *Client {
	t.Helper()
	cfg.BaseURL = baseURL
	c, err := NewClient(cfg, opts...)
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	c.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return c
}

func TestNewClientValidatesBaseURL(t *testing.T) {
	for _, raw := range []string{"", "   ", "not a url", "/relative/only"} {
		if _, err := NewClient(Config{BaseURL: raw}); err == nil {
			t.Fatalf("expected error for base URL %q", raw)
		}
	}
}

func TestDoForwardsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/events" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("page") != "2" {
			t.Errorf("expected query page=2, got %q", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("expected bearer header, got %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"a":1}` {
			t.Errorf("unexpected body %q", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/api/v1", Config{Timeout: time.Second, MaxAttempts: 3})
	resp, err := c.Do(t.Context(), Request{
		Method: http.MethodPost,
		Path:   "/events",
		Query:  map[string][]string{"page": {"2"}},
		Header: http.Header{"Authorization": {"Bearer tok"}},
		Body:   []byte(`{"a":1}`),
	})
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if resp.StatusCode != http.StatusCreated || string(resp.Body) != `{"success":true}` {
		t.Fatalf("unexpected response %d %q", resp.StatusCode, resp.Body)
	}
}

func TestDoRetriesIdempotentReads(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"events":[]}`))
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	c := newTestClient(t, srv.URL, Config{Timeout: time.Second, MaxAttempts: 3}, WithObserver(obs))
	resp, err := c.Do(t.Context(), Request{Method: http.MethodGet, Path: "/events"})
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after retries, got %d", resp.StatusCode)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
	if len(obs.outcomes) != 1 || obs.outcomes[0] != "ok" {
		t.Fatalf("expected one ok observation, got %v", obs.outcomes)
	}
}

func TestDoDoesNotRetryWrites(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Config{Timeout: time.Second, MaxAttempts: 3})
	resp, err := c.Do(t.Context(), Request{Method: http.MethodPost, Path: "/news"})
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected upstream status passed through, got %d", resp.StatusCode)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt for POST, got %d", calls.Load())
	}
}

func TestDoTimeout(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	obs := &recordingObserver{}
	c := newTestClient(t, srv.URL, Config{Timeout: 50 * time.Millisecond, MaxAttempts: 2}, WithObserver(obs))
	_, err := c.Do(t.Context(), Request{Method: http.MethodGet, Path: "/slow"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
	if len(obs.outcomes) != 1 || obs.outcomes[0] != "timeout" {
		t.Fatalf("expected timeout observation, got %v", obs.outcomes)
	}
}

func TestDoNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url, Config{Timeout: time.Second, MaxAttempts: 2})
	_, err := c.Do(t.Context(), Request{Method: http.MethodGet, Path: "/"})
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestDoRejectsOversizedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/big":
			_, _ = w.Write([]byte(strings.Repeat("x", 65)))
		default:
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		}
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	c := newTestClient(t, srv.URL, Config{Timeout: time.Second, MaxAttempts: 2, MaxResponseBytes: 64}, WithObserver(obs))
	if _, err := c.Do(t.Context(), Request{Method: http.MethodGet, Path: "/big"}); !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if len(obs.outcomes) != 1 || obs.outcomes[0] != "upstream_error" {
		t.Fatalf("expected upstream_error observation, got %v", obs.outcomes)
	}

	resp, err := c.Do(t.Context(), Request{Method: http.MethodGet, Path: "/exact"})
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if len(resp.Body) != 64 {
		t.Fatalf("expected full 64 byte body, got %d", len(resp.Body))
	}
}

func TestGetEnvelopeAliases(t *testing.T) {
	replies := map[string]string{
		"/data":     `{"success":true,"data":{"id":1}}`,
		"/events":   `{"success":true,"events":[1,2]}`,
		"/users":    `{"success":true,"users":[]}`,
		"/articles": `{"articles":["a"]}`,
		"/failed":   `{"success":false,"message":"token expired"}`,
		"/broken":   `<html>oops</html>`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path == "/failed" {
			w.WriteHeader(http.StatusUnauthorized)
		}
		_, _ = w.Write([]byte(replies[r.URL.Path]))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Config{Timeout: time.Second})
	ctx := t.Context()

	want := map[string]string{
		"/data":     `{"id":1}`,
		"/events":   `[1,2]`,
		"/users":    `[]`,
		"/articles": `["a"]`,
	}
	for path, data := range want {
		env, err := c.GetEnvelope(ctx, path, nil, "abc")
		if err != nil {
			t.Fatalf("GetEnvelope(%s) error: %v", path, err)
		}
		if !env.Success || string(env.Data) != data {
			t.Fatalf("GetEnvelope(%s) = %+v, want data %s", path, env, data)
		}
	}

	env, err := c.GetEnvelope(ctx, "/failed", nil, "abc")
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if env.Error != "token expired" {
		t.Fatalf("expected backend message, got %q", env.Error)
	}
	if _, err := c.GetEnvelope(ctx, "/broken", nil, "abc"); !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream for malformed body, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			_, _ = w.Write([]byte(`{"status":"ok"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Config{Timeout: time.Second})
	st, err := c.Health(t.Context())
	if err != nil {
		t.Fatalf("Health() error: %v", err)
	}
	if !st.Reachable || st.StatusCode != http.StatusOK {
		t.Fatalf("unexpected health %+v", st)
	}
}
