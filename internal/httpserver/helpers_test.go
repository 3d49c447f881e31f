package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"maritimeacademy/site-admin/internal/audit"
	"maritimeacademy/site-admin/internal/auth"
	"maritimeacademy/site-admin/internal/content"
	"maritimeacademy/site-admin/internal/docstore"
	"maritimeacademy/site-admin/internal/migrations"
	"maritimeacademy/site-admin/internal/observability"
)

const testPassword = "Anchor-Watch-2026"

type testServer struct {
	handler   http.Handler
	auth      *auth.Service
	events    *content.Events
	news      *content.News
	metrics   *observability.Metrics
	auditPath string
}

// newTestServer wires the real services over an in-memory store. mutate may
// adjust the deps before the handler is built.
func newTestServer(t *testing.T, mutate func(*Deps)) *testServer {
	t.Helper()
	store, err := docstore.NewStore(docstore.NewMemoryBackend())
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	collection := func(name string, opts ...docstore.CollectionOption) *docstore.Collection {
		c, err := store.Collection(name, opts...)
		if err != nil {
			t.Fatalf("Collection(%s) error: %v", name, err)
		}
		return c
	}

	tokens, err := auth.NewTokenIssuer("http-test-secret", "maritime-test")
	if err != nil {
		t.Fatalf("NewTokenIssuer() error: %v", err)
	}
	dir, err := auth.NewDirectory(collection("users", docstore.WithTimestamps("createdAt", "updatedAt")), auth.Hasher{Cost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("NewDirectory() error: %v", err)
	}
	sessions, err := auth.NewSessionStore(collection("sessions"), tokens, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewSessionStore() error: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := auth.NewService(dir, sessions, logger)
	if err != nil {
		t.Fatalf("NewService() error: %v", err)
	}
	events, err := content.NewEvents(collection("events", docstore.WithTimestamps("created_at", "updated_at")))
	if err != nil {
		t.Fatalf("NewEvents() error: %v", err)
	}
	news, err := content.NewNews(collection("news", docstore.WithTimestamps("created_at", "updated_at")))
	if err != nil {
		t.Fatalf("NewNews() error: %v", err)
	}

	auditPath := filepath.Join(t.TempDir(), "audit.log")
	metrics := observability.NewMetrics()
	deps := Deps{
		Auth:     svc,
		Accounts: svc,
		Events:   events,
		News:     news,
		Audit:    audit.NewLogger(auditPath),
		Store:    store,
		Metrics:  metrics,
		Logger:   logger,
		Options: Options{
			Environment:     "test",
			TokenStorageKey: "maritime_admin_token",
			MaxBodyBytes:    1 << 20,
		},
	}
	if mutate != nil {
		mutate(&deps)
	}
	return &testServer{
		handler:   Wrap(NewHandler(deps), deps),
		auth:      svc,
		events:    events,
		news:      news,
		metrics:   metrics,
		auditPath: auditPath,
	}
}

func (s *testServer) mustAccount(t *testing.T, email string, roles ...string) auth.Account {
	t.Helper()
	a, err := s.auth.CreateAccount(context.Background(), auth.NewAccount{
		Email: email, Name: "Officer", Password: testPassword, Roles: roles,
	})
	if err != nil {
		t.Fatalf("CreateAccount(%s) error: %v", email, err)
	}
	return a
}

// login creates an account with roles and returns its session cookie.
func (s *testServer) login(t *testing.T, email string, roles ...string) *http.Cookie {
	t.Helper()
	s.mustAccount(t, email, roles...)
	rec := s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": testPassword})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", email, rec.Code, rec.Body.String())
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == "auth-token" {
			return c
		}
	}
	t.Fatalf("login %s: no auth-token cookie", email)
	return nil
}

func (s *testServer) do(t *testing.T, method, target string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Admin   json.RawMessage `json:"admin"`
	Error   string          `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return env
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Fatalf("expected success envelope, got %s", rec.Body.String())
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeMigrationService struct {
	listFunc   func() ([]migrations.FileInfo, error)
	statusFunc func(ctx context.Context) ([]migrations.Status, error)
	applyFunc  func(ctx context.Context) ([]string, error)
}

func (f fakeMigrationService) List() ([]migrations.FileInfo, error) {
	if f.listFunc == nil {
		return nil, errors.New("not implemented")
	}
	return f.listFunc()
}

func (f fakeMigrationService) Status(ctx context.Context) ([]migrations.Status, error) {
	if f.statusFunc == nil {
		return nil, errors.New("not implemented")
	}
	return f.statusFunc(ctx)
}

func (f fakeMigrationService) Apply(ctx context.Context) ([]string, error) {
	if f.applyFunc == nil {
		return nil, errors.New("not implemented")
	}
	return f.applyFunc(ctx)
}
