package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"maritimeacademy/site-admin/internal/docstore"
)

// Service ties the account directory, password hashing and the session
// store together. HTTP handlers talk to it and nothing below it.
type Service struct {
	accounts *Directory
	sessions *SessionStore
	log      *slog.Logger

	// compared against when the email is unknown so both failure paths
	// spend one bcrypt comparison
	dummyHash string
}

func NewService(accounts *Directory, sessions *SessionStore, logger *slog.Logger) (*Service, error) {
	if accounts == nil {
		return nil, fmt.Errorf("account directory is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	dummy, err := accounts.hasher.Hash("not-a-real-password")
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &Service{
		accounts:  accounts,
		sessions:  sessions,
		log:       logger,
		dummyHash: dummy,
	}, nil
}

func (s *Service) SessionTTL() time.Duration {
	return s.sessions.TTL()
}

// Login checks email and password and opens a session. Every credential
// failure is ErrInvalidCredentials; the reason is only logged.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	if n, err := s.sessions.PruneExpired(ctx); err != nil {
		s.log.Warn("prune expired sessions failed", "error", err)
	} else if n > 0 {
		s.log.Debug("pruned expired sessions", "count", n)
	}

	rec, err := s.accounts.recordByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			s.accounts.hasher.Verify(password, s.dummyHash)
			if id, ok := s.accounts.inactiveByEmail(ctx, email); ok {
				s.log.Info("login rejected", "reason", "inactive", "account_id", id)
			} else {
				s.log.Info("login rejected", "reason", "unknown_email")
			}
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if !s.accounts.hasher.Verify(password, rec.Password) {
		s.log.Info("login rejected", "reason", "bad_password", "account_id", rec.ID)
		return LoginResult{}, ErrInvalidCredentials
	}

	sess, err := s.sessions.Create(ctx, rec.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("create session: %w", err)
	}

	account := rec.account()
	if err := s.accounts.TouchLastLogin(ctx, rec.ID); err != nil {
		s.log.Warn("update last login failed", "account_id", rec.ID, "error", err)
	} else if fresh, err := s.accounts.FindByID(ctx, rec.ID); err == nil {
		account = fresh
	}

	return LoginResult{
		Token:     sess.Token,
		SessionID: sess.ID,
		ExpiresAt: sess.ExpiresAt,
		Account:   account,
	}, nil
}

// Authenticate resolves token to its account and session.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	sess, err := s.sessions.Lookup(ctx, token)
	if err != nil {
		if errors.Is(err, docstore.ErrIO) {
			return Principal{}, err
		}
		return Principal{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	account, err := s.accounts.FindByID(ctx, sess.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			s.log.Error("session references missing account", "session_id", sess.ID, "account_id", sess.AccountID)
		}
		return Principal{}, err
	}
	if !account.IsActive {
		return Principal{}, fmt.Errorf("%w: account is inactive", ErrUnauthorized)
	}
	return Principal{Account: account, Session: sess}, nil
}

// Verify returns the account behind a valid session token.
func (s *Service) Verify(ctx context.Context, token string) (Account, error) {
	p, err := s.Authenticate(ctx, token)
	if err != nil {
		return Account{}, err
	}
	return p.Account, nil
}

// Logout revokes token. Unknown and already revoked tokens are not errors.
func (s *Service) Logout(ctx context.Context, token string) (bool, error) {
	return s.sessions.Revoke(ctx, token)
}

// ChangePassword replaces the caller's password and ends their other sessions.
func (s *Service) ChangePassword(ctx context.Context, token, currentPassword, newPassword string) error {
	if err := ValidatePasswordPolicy(newPassword); err != nil {
		return err
	}
	p, err := s.Authenticate(ctx, token)
	if err != nil {
		return err
	}
	rec, err := s.accounts.recordByID(ctx, p.Account.ID)
	if err != nil {
		return err
	}
	if !s.accounts.hasher.Verify(currentPassword, rec.Password) {
		return ErrInvalidCredentials
	}
	if _, err := s.accounts.Update(ctx, rec.ID, AccountUpdate{Password: &newPassword}); err != nil {
		return fmt.Errorf("store updated password: %w", err)
	}
	if _, err := s.sessions.RevokeAccount(ctx, rec.ID, token); err != nil {
		return fmt.Errorf("revoke other sessions: %w", err)
	}
	return nil
}

func (s *Service) ListSessions(ctx context.Context) ([]SessionView, error) {
	sessions, err := s.sessions.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]SessionView, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.View())
	}
	return out, nil
}

func (s *Service) RevokeSession(ctx context.Context, sessionID string) error {
	return s.sessions.RevokeByID(ctx, strings.TrimSpace(sessionID))
}

func (s *Service) PruneSessions(ctx context.Context) (int, error) {
	return s.sessions.PruneExpired(ctx)
}

func (s *Service) GetAccount(ctx context.Context, id string) (Account, error) {
	return s.accounts.FindByID(ctx, id)
}

// ListAccounts lists active accounts, optionally only those holding role.
func (s *Service) ListAccounts(ctx context.Context, role Role) ([]Account, error) {
	if role == "" {
		return s.accounts.ListAll(ctx)
	}
	return s.accounts.ListByRole(ctx, role)
}

func (s *Service) CreateAccount(ctx context.Context, in NewAccount) (Account, error) {
	if err := ValidatePasswordPolicy(in.Password); err != nil {
		return Account{}, err
	}
	return s.accounts.Create(ctx, in)
}

// UpdateAccount applies in and ends the account's sessions when the
// password changes or the account is deactivated.
func (s *Service) UpdateAccount(ctx context.Context, id string, in AccountUpdate) (Account, error) {
	if in.Password != nil {
		if err := ValidatePasswordPolicy(*in.Password); err != nil {
			return Account{}, err
		}
	}
	updated, err := s.accounts.Update(ctx, id, in)
	if err != nil {
		return Account{}, err
	}
	if in.Password != nil || !updated.IsActive {
		if _, err := s.sessions.RevokeAccount(ctx, id, ""); err != nil {
			return Account{}, fmt.Errorf("revoke sessions: %w", err)
		}
	}
	return updated, nil
}

func (s *Service) DeactivateAccount(ctx context.Context, id string) error {
	if err := s.accounts.Deactivate(ctx, id); err != nil {
		return err
	}
	n, err := s.sessions.RevokeAccount(ctx, id, "")
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	s.log.Info("account deactivated", "account_id", id, "revoked_sessions", n)
	return nil
}

// EnsureBootstrapAdmin creates a super admin when no active one exists.
// It reports whether an account was created.
func (s *Service) EnsureBootstrapAdmin(ctx context.Context, email, name, password string) (bool, error) {
	admins, err := s.accounts.ListByRole(ctx, RoleSuperAdmin)
	if err != nil {
		return false, err
	}
	if len(admins) > 0 {
		return false, nil
	}
	if name == "" {
		name = "Administrator"
	}
	_, err = s.CreateAccount(ctx, NewAccount{
		Email:     email,
		Name:      name,
		Password:  password,
		Roles:     []string{string(RoleSuperAdmin)},
		CreatedBy: "bootstrap",
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
