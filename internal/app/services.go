package app

import (
	"fmt"
	"log/slog"

	"maritimeacademy/site-admin/internal/auth"
	"maritimeacademy/site-admin/internal/config"
	"maritimeacademy/site-admin/internal/content"
	"maritimeacademy/site-admin/internal/docstore"
)

// Collection names. Account and session records use camelCase fields,
// content records snake_case.
const (
	UsersCollection    = "users"
	SessionsCollection = "sessions"
	EventsCollection   = "events"
	NewsCollection     = "news"
)

// Collections lists every collection the site stores, for tools that copy
// or inspect all data.
var Collections = []string{UsersCollection, SessionsCollection, EventsCollection, NewsCollection}

type Services struct {
	Auth   *auth.Service
	Events *content.Events
	News   *content.News
}

func BuildServices(store *docstore.Store, cfg config.AuthConfig, logger *slog.Logger) (*Services, error) {
	users, err := store.Collection(UsersCollection, docstore.WithTimestamps("createdAt", "updatedAt"))
	if err != nil {
		return nil, err
	}
	sessColl, err := store.Collection(SessionsCollection)
	if err != nil {
		return nil, err
	}
	eventsColl, err := store.Collection(EventsCollection, docstore.WithTimestamps("created_at", "updated_at"))
	if err != nil {
		return nil, err
	}
	newsColl, err := store.Collection(NewsCollection, docstore.WithTimestamps("created_at", "updated_at"))
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenIssuer)
	if err != nil {
		return nil, fmt.Errorf("create token issuer: %w", err)
	}
	dir, err := auth.NewDirectory(users, auth.Hasher{Cost: cfg.BcryptCost})
	if err != nil {
		return nil, err
	}
	sessions, err := auth.NewSessionStore(sessColl, tokens, cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	authSvc, err := auth.NewService(dir, sessions, logger)
	if err != nil {
		return nil, fmt.Errorf("create auth service: %w", err)
	}
	events, err := content.NewEvents(eventsColl)
	if err != nil {
		return nil, err
	}
	news, err := content.NewNews(newsColl)
	if err != nil {
		return nil, err
	}
	return &Services{Auth: authSvc, Events: events, News: news}, nil
}
