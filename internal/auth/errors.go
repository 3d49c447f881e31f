package auth

import (
	"errors"
	"fmt"

	"maritimeacademy/site-admin/internal/docstore"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpired            = errors.New("session expired")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrWeakPassword       = errors.New("weak password")
	ErrInvalidInput       = errors.New("invalid account input")
	ErrMissingSecret      = errors.New("token signing secret is not configured")

	ErrAccountNotFound = fmt.Errorf("%w: account", docstore.ErrNotFound)
	ErrSessionNotFound = fmt.Errorf("%w: session", docstore.ErrNotFound)
	ErrEmailInUse      = fmt.Errorf("%w: email already in use", docstore.ErrConflict)
)
