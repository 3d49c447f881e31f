package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"maritimeacademy/site-admin/internal/auth"
	"maritimeacademy/site-admin/internal/config"
	"maritimeacademy/site-admin/internal/content"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Environment: "test",
		LogLevel:    "error",
		HTTP: config.HTTPConfig{
			Addr:            "127.0.0.1:0",
			ReadTimeout:     time.Second,
			WriteTimeout:    time.Second,
			ShutdownTimeout: time.Second,
		},
		Store: config.StoreConfig{Backend: config.StoreMemory},
		Auth: config.AuthConfig{
			JWTSecret:         "app-test-secret",
			TokenIssuer:       "maritime-test",
			SessionTTL:        time.Hour,
			CookieName:        "auth-token",
			BcryptCost:        4,
			BootstrapEmail:    "harbourmaster@academy.example",
			BootstrapPassword: "Anchor-Watch-2026",
		},
		Backend:      config.BackendConfig{APIURL: "http://127.0.0.1:1", Timeout: time.Second, MaxAttempts: 1},
		AuditLogFile: filepath.Join(t.TempDir(), "audit.log"),
	}
}

func TestOpenStoreRejectsUnknownBackend(t *testing.T) {
	if _, err := OpenStore(context.Background(), config.StoreConfig{Backend: "sqlite"}, nil); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestOpenFileStorePersistsAcrossOpens(t *testing.T) {
	dir := t.TempDir()
	cfg := config.StoreConfig{Backend: config.StoreFile, DataDir: dir}
	authCfg := testConfig(t).Auth

	first, err := OpenStore(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("OpenStore() error: %v", err)
	}
	svc, err := BuildServices(first.Store, authCfg, nil)
	if err != nil {
		t.Fatalf("BuildServices() error: %v", err)
	}
	ev, err := svc.Events.Create(context.Background(), content.Event{
		Title:     "Radar Observer Course",
		StartDate: time.Date(2026, 12, 1, 9, 0, 0, 0, time.UTC),
	}, "tester")
	if err != nil {
		t.Fatalf("Events.Create() error: %v", err)
	}
	if err := first.Close(context.Background()); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, EventsCollection+".json")); err != nil {
		t.Fatalf("expected events file: %v", err)
	}

	second, err := OpenStore(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("OpenStore() error: %v", err)
	}
	svc, err = BuildServices(second.Store, authCfg, nil)
	if err != nil {
		t.Fatalf("BuildServices() error: %v", err)
	}
	got, err := svc.Events.Get(context.Background(), ev.ID)
	if err != nil {
		t.Fatalf("Events.Get() error: %v", err)
	}
	if got.Title != ev.Title {
		t.Fatalf("expected %q, got %q", ev.Title, got.Title)
	}
}

func TestBuildServicesRequiresSecret(t *testing.T) {
	storage, err := OpenStore(context.Background(), config.StoreConfig{Backend: config.StoreMemory}, nil)
	if err != nil {
		t.Fatalf("OpenStore() error: %v", err)
	}
	cfg := testConfig(t).Auth
	cfg.JWTSecret = ""
	if _, err := BuildServices(storage.Store, cfg, nil); err == nil {
		t.Fatalf("expected error without a signing secret")
	}
}

func TestNewBootstrapsAdminAndShutsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a, err := New(ctx, testConfig(t))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	admins, err := a.services.Auth.ListAccounts(ctx, auth.RoleSuperAdmin)
	if err != nil {
		t.Fatalf("ListAccounts() error: %v", err)
	}
	if len(admins) != 1 || admins[0].Email != "harbourmaster@academy.example" {
		t.Fatalf("expected bootstrap admin, got %+v", admins)
	}

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run() did not return after cancel")
	}
}
