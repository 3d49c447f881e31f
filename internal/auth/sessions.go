package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"maritimeacademy/site-admin/internal/docstore"
	"maritimeacademy/site-admin/internal/ids"
)

// SessionStore keeps issued tokens so they can be revoked before they
// expire. A token is only accepted while its session record exists and has
// not passed expiresAt.
type SessionStore struct {
	coll   *docstore.Collection
	tokens *TokenIssuer
	ttl    time.Duration
}

func NewSessionStore(coll *docstore.Collection, tokens *TokenIssuer, ttl time.Duration) (*SessionStore, error) {
	if coll == nil {
		return nil, fmt.Errorf("session collection is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token issuer is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session TTL must be > 0")
	}
	return &SessionStore{coll: coll, tokens: tokens, ttl: ttl}, nil
}

func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

func (s *SessionStore) Create(ctx context.Context, accountID string) (Session, error) {
	token, expiresAt, err := s.tokens.Issue(accountID, s.ttl)
	if err != nil {
		return Session{}, err
	}
	sess := Session{
		ID:        ids.New(),
		AccountID: accountID,
		Token:     token,
		ExpiresAt: expiresAt,
		CreatedAt: s.tokens.now(),
	}
	doc, err := docstore.Encode(sess)
	if err != nil {
		return Session{}, err
	}
	if _, err := s.coll.Create(ctx, doc); err != nil {
		return Session{}, fmt.Errorf("store session: %w", err)
	}
	return sess, nil
}

// Validate returns the account id behind token. Token-level failures are
// ErrInvalidToken or ErrExpired; a well-signed token without a live session
// is ErrSessionNotFound or ErrExpired.
func (s *SessionStore) Validate(ctx context.Context, token string) (string, error) {
	sess, err := s.Lookup(ctx, token)
	if err != nil {
		return "", err
	}
	return sess.AccountID, nil
}

func (s *SessionStore) Lookup(ctx context.Context, token string) (Session, error) {
	accountID, err := s.tokens.Verify(token)
	if err != nil {
		return Session{}, err
	}
	doc, err := s.coll.FindOne(ctx, docstore.FieldEquals("token", token))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	var sess Session
	if err := doc.Decode(&sess); err != nil {
		return Session{}, err
	}
	if sess.AccountID != accountID {
		return Session{}, ErrInvalidToken
	}
	if !sess.ExpiresAt.After(s.tokens.now()) {
		return Session{}, ErrExpired
	}
	return sess, nil
}

// Revoke deletes the session for token. Revoking an unknown or already
// revoked token reports false without error.
func (s *SessionStore) Revoke(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	n, err := s.coll.DeleteWhere(ctx, docstore.FieldEquals("token", token))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SessionStore) RevokeByID(ctx context.Context, id string) error {
	if err := s.coll.Delete(ctx, id); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	return nil
}

// RevokeAccount removes every session of accountID except the one holding
// keepToken (which may be empty).
func (s *SessionStore) RevokeAccount(ctx context.Context, accountID, keepToken string) (int, error) {
	return s.coll.DeleteWhere(ctx, func(d docstore.Document) bool {
		return d.String("accountId") == accountID && (keepToken == "" || d.String("token") != keepToken)
	})
}

// PruneExpired removes sessions with expiresAt <= now. Records whose expiry
// cannot be read are removed too.
func (s *SessionStore) PruneExpired(ctx context.Context) (int, error) {
	now := s.tokens.now()
	return s.coll.DeleteWhere(ctx, func(d docstore.Document) bool {
		exp, ok := expiresAt(d)
		return !ok || !exp.After(now)
	})
}

// List returns unexpired sessions.
func (s *SessionStore) List(ctx context.Context) ([]Session, error) {
	now := s.tokens.now()
	docs, err := s.coll.FindWhere(ctx, func(d docstore.Document) bool {
		exp, ok := expiresAt(d)
		return ok && exp.After(now)
	})
	if err != nil {
		return nil, err
	}
	out := make([]Session, 0, len(docs))
	for _, d := range docs {
		var sess Session
		if err := d.Decode(&sess); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

func expiresAt(d docstore.Document) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339Nano, d.String("expiresAt"))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
