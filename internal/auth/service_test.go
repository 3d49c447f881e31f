package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestServiceLoginSuccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	a := env.mustCreate(t, "captain@academy.test", "super_admin")
	env.clock.Advance(time.Minute)

	res, err := env.svc.Login(ctx, "Captain@Academy.test", strongPassword)
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if res.Token == "" || res.SessionID == "" {
		t.Fatalf("expected token and session id, got %+v", res)
	}
	if res.Account.ID != a.ID {
		t.Fatalf("expected account %s, got %s", a.ID, res.Account.ID)
	}
	if res.Account.LastLogin == nil || !res.Account.LastLogin.Equal(env.clock.Now()) {
		t.Fatalf("expected lastLogin set to now, got %v", res.Account.LastLogin)
	}
	if want := env.clock.Now().Add(env.svc.SessionTTL()); !res.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, res.ExpiresAt)
	}

	got, err := env.svc.Verify(ctx, res.Token)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if got.Email != "captain@academy.test" {
		t.Fatalf("unexpected verified account %+v", got)
	}
}

func TestServiceLoginFailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	env.mustCreate(t, "captain@academy.test", "super_admin")

	_, unknown := env.svc.Login(ctx, "nobody@academy.test", strongPassword)
	_, wrong := env.svc.Login(ctx, "captain@academy.test", "Wrong-Password-123")
	_, empty := env.svc.Login(ctx, "", "")
	for name, err := range map[string]error{"unknown": unknown, "wrong": wrong, "empty": empty} {
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s: expected ErrInvalidCredentials, got %v", name, err)
		}
	}
	if unknown.Error() != wrong.Error() {
		t.Fatalf("expected identical messages, got %q and %q", unknown, wrong)
	}

	sessions, err := env.svc.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() error: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions after failed logins, got %d", len(sessions))
	}
}

func TestServiceLoginRejectsInactiveAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	a := env.mustCreate(t, "old@academy.test", "news")
	if err := env.svc.DeactivateAccount(ctx, a.ID); err != nil {
		t.Fatalf("DeactivateAccount() error: %v", err)
	}
	if _, err := env.svc.Login(ctx, "old@academy.test", strongPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestServiceLoginLogsRejectionReason(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	var buf bytes.Buffer
	env.svc.log = slog.New(slog.NewJSONHandler(&buf, nil))

	a := env.mustCreate(t, "old@academy.test", "news")
	if err := env.svc.DeactivateAccount(ctx, a.ID); err != nil {
		t.Fatalf("DeactivateAccount() error: %v", err)
	}
	env.mustCreate(t, "bosun@academy.test", "events")

	attempts := []struct {
		email, password, reason string
	}{
		{"OLD@academy.test", strongPassword, "inactive"},
		{"ghost@academy.test", strongPassword, "unknown_email"},
		{"bosun@academy.test", "Wrong-Heading-2026", "bad_password"},
	}
	for _, at := range attempts {
		buf.Reset()
		if _, err := env.svc.Login(ctx, at.email, at.password); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s: expected ErrInvalidCredentials, got %v", at.email, err)
		}
		var line struct {
			Msg       string `json:"msg"`
			Reason    string `json:"reason"`
			AccountID string `json:"account_id"`
		}
		if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
			t.Fatalf("%s: decode log %q: %v", at.email, buf.String(), err)
		}
		if line.Msg != "login rejected" || line.Reason != at.reason {
			t.Fatalf("%s: expected reason %q, got %+v", at.email, at.reason, line)
		}
		if at.reason == "inactive" && line.AccountID != a.ID {
			t.Fatalf("expected inactive account id %q, got %q", a.ID, line.AccountID)
		}
	}
}

func TestServiceVerifyAfterExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	env.mustCreate(t, "captain@academy.test", "super_admin")
	res, err := env.svc.Login(ctx, "captain@academy.test", strongPassword)
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	env.clock.Advance(25 * time.Hour)

	_, err = env.svc.Verify(ctx, res.Token)
	if !errors.Is(err, ErrUnauthorized) || !errors.Is(err, ErrExpired) {
		t.Fatalf("expected unauthorized expiry, got %v", err)
	}
}

func TestServiceLogout(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	env.mustCreate(t, "captain@academy.test", "super_admin")
	res, err := env.svc.Login(ctx, "captain@academy.test", strongPassword)
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}

	removed, err := env.svc.Logout(ctx, res.Token)
	if err != nil || !removed {
		t.Fatalf("Logout() = %v, %v; want true, nil", removed, err)
	}
	removed, err = env.svc.Logout(ctx, res.Token)
	if err != nil || removed {
		t.Fatalf("second Logout() = %v, %v; want false, nil", removed, err)
	}
	if _, err := env.svc.Verify(ctx, res.Token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after logout, got %v", err)
	}
	if _, err := env.svc.Verify(ctx, "garbage"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for garbage token, got %v", err)
	}
}

func TestServiceChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	env.mustCreate(t, "captain@academy.test", "super_admin")
	current, err := env.svc.Login(ctx, "captain@academy.test", strongPassword)
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	other, err := env.svc.Login(ctx, "captain@academy.test", strongPassword)
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}

	const next = "Harbour-Lights-77"
	if err := env.svc.ChangePassword(ctx, current.Token, "Wrong-Password-1", next); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := env.svc.ChangePassword(ctx, current.Token, strongPassword, "weak"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if err := env.svc.ChangePassword(ctx, current.Token, strongPassword, next); err != nil {
		t.Fatalf("ChangePassword() error: %v", err)
	}

	if _, err := env.svc.Verify(ctx, current.Token); err != nil {
		t.Fatalf("current session Verify() error: %v", err)
	}
	if _, err := env.svc.Verify(ctx, other.Token); err == nil {
		t.Fatalf("expected other session revoked")
	}
	if _, err := env.svc.Login(ctx, "captain@academy.test", strongPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password rejected, got %v", err)
	}
	if _, err := env.svc.Login(ctx, "captain@academy.test", next); err != nil {
		t.Fatalf("Login() with new password error: %v", err)
	}
}

func TestServiceDeactivateRevokesSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	a := env.mustCreate(t, "news@academy.test", "news")
	res, err := env.svc.Login(ctx, "news@academy.test", strongPassword)
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if err := env.svc.DeactivateAccount(ctx, a.ID); err != nil {
		t.Fatalf("DeactivateAccount() error: %v", err)
	}
	if _, err := env.svc.Verify(ctx, res.Token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := env.svc.DeactivateAccount(ctx, "missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestServiceCreateAccountPolicy(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	_, err := env.svc.CreateAccount(ctx, NewAccount{Email: "w@x.com", Password: "short", Roles: []string{"news"}})
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}

	accounts, err := env.svc.ListAccounts(ctx, "")
	if err != nil {
		t.Fatalf("ListAccounts() error: %v", err)
	}
	if len(accounts) != 0 {
		t.Fatalf("expected no accounts, got %d", len(accounts))
	}
}

func TestServiceRevokeSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	env.mustCreate(t, "captain@academy.test", "super_admin")
	res, err := env.svc.Login(ctx, "captain@academy.test", strongPassword)
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	views, err := env.svc.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() error: %v", err)
	}
	if len(views) != 1 || views[0].ID != res.SessionID {
		t.Fatalf("unexpected sessions %+v", views)
	}
	if err := env.svc.RevokeSession(ctx, res.SessionID); err != nil {
		t.Fatalf("RevokeSession() error: %v", err)
	}
	if _, err := env.svc.Verify(ctx, res.Token); err == nil {
		t.Fatalf("expected revoked session to fail")
	}
}

func TestServiceEnsureBootstrapAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	created, err := env.svc.EnsureBootstrapAdmin(ctx, "root@academy.test", "", strongPassword)
	if err != nil {
		t.Fatalf("EnsureBootstrapAdmin() error: %v", err)
	}
	if !created {
		t.Fatalf("expected bootstrap admin to be created")
	}
	created, err = env.svc.EnsureBootstrapAdmin(ctx, "root2@academy.test", "", strongPassword)
	if err != nil {
		t.Fatalf("EnsureBootstrapAdmin() error: %v", err)
	}
	if created {
		t.Fatalf("expected no second bootstrap admin")
	}

	admins, err := env.svc.ListAccounts(ctx, RoleSuperAdmin)
	if err != nil {
		t.Fatalf("ListAccounts() error: %v", err)
	}
	if len(admins) != 1 || admins[0].Name != "Administrator" || admins[0].CreatedBy != "bootstrap" {
		t.Fatalf("unexpected admins %+v", admins)
	}
}
