package auth

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"maritimeacademy/site-admin/internal/docstore"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 2, 16, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	clock    *fakeClock
	users    *docstore.Collection
	sessColl *docstore.Collection
	tokens   *TokenIssuer
	dir      *Directory
	sessions *SessionStore
	svc      *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := newFakeClock()

	store, err := docstore.NewStore(docstore.NewMemoryBackend())
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	users, err := store.Collection("users", docstore.WithTimestamps("createdAt", "updatedAt"), docstore.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("Collection(users) error: %v", err)
	}
	sessColl, err := store.Collection("sessions")
	if err != nil {
		t.Fatalf("Collection(sessions) error: %v", err)
	}

	tokens, err := NewTokenIssuer("unit-test-secret", "maritime-test")
	if err != nil {
		t.Fatalf("NewTokenIssuer() error: %v", err)
	}
	tokens.nowFunc = clock.Now

	dir, err := NewDirectory(users, Hasher{Cost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("NewDirectory() error: %v", err)
	}
	dir.nowFunc = clock.Now

	sessions, err := NewSessionStore(sessColl, tokens, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewSessionStore() error: %v", err)
	}

	svc, err := NewService(dir, sessions, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewService() error: %v", err)
	}
	return &testEnv{
		clock:    clock,
		users:    users,
		sessColl: sessColl,
		tokens:   tokens,
		dir:      dir,
		sessions: sessions,
		svc:      svc,
	}
}

const strongPassword = "Anchor-Watch-2026"

func (e *testEnv) mustCreate(t *testing.T, email string, roles ...string) Account {
	t.Helper()
	a, err := e.dir.Create(t.Context(), NewAccount{Email: email, Name: "Officer", Password: strongPassword, Roles: roles})
	if err != nil {
		t.Fatalf("Create(%s) error: %v", email, err)
	}
	return a
}
