package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"maritimeacademy/site-admin/internal/audit"
	"maritimeacademy/site-admin/internal/auth"
	"maritimeacademy/site-admin/internal/docstore"
)

func registerAuthHandlers(mux *http.ServeMux, deps Deps) {
	limiter := newLoginLimiter(deps.Options.LoginPerMinute, deps.Options.LoginBurst)
	log := deps.logger()

	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
			return
		case http.MethodPost:
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if deps.Auth == nil {
			writeError(w, http.StatusServiceUnavailable, "auth service unavailable")
			return
		}
		if !limiter.Allow(clientIP(r, deps.Options.TrustProxy)) {
			deps.Metrics.ObserveLogin("rate_limited")
			auditReq(deps, r, "", "auth.login", "", audit.OutcomeDenied, "rate limited")
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "too many login attempts")
			return
		}

		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decodeJSON(r, &req); err != nil {
			deps.Metrics.ObserveLogin("bad_request")
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		email, err := parseEmail(req.Email)
		if err != nil {
			deps.Metrics.ObserveLogin("bad_request")
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.Password == "" {
			deps.Metrics.ObserveLogin("bad_request")
			writeError(w, http.StatusBadRequest, "password is required")
			return
		}

		res, err := deps.Auth.Login(r.Context(), email, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				deps.Metrics.ObserveLogin("invalid_credentials")
				auditReq(deps, r, email, "auth.login", "", audit.OutcomeFailure, "invalid credentials")
			} else {
				deps.Metrics.ObserveLogin("error")
				auditReq(deps, r, email, "auth.login", "", audit.OutcomeFailure, err.Error())
			}
			writeServiceError(w, log, err, "login failed")
			return
		}
		deps.Metrics.ObserveLogin("success")
		auditReq(deps, r, res.Account.ID, "auth.login", res.SessionID, audit.OutcomeSuccess, "")

		setSessionCookie(w, deps.Options, res.Token, deps.Auth.SessionTTL())
		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"admin":     res.Account,
			"sessionId": res.SessionID,
			"expiresAt": res.ExpiresAt.UTC().Format(time.RFC3339),
		})
	})

	mux.HandleFunc("/api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		// Logout always succeeds for the client; the cookie is cleared
		// whether or not the token was still live.
		clearSessionCookie(w, deps.Options)
		token := sessionToken(r, deps.Options)
		if token == "" || deps.Auth == nil {
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
			return
		}
		var actor string
		if p, err := deps.Auth.Authenticate(r.Context(), token); err == nil {
			actor = p.Account.ID
		}
		revoked, err := deps.Auth.Logout(r.Context(), token)
		if err != nil {
			log.Warn("logout failed", "error", err, "request_id", requestIDFromContext(r.Context()))
		}
		if revoked {
			auditReq(deps, r, actor, "auth.logout", "", audit.OutcomeSuccess, "")
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})

	mux.HandleFunc("/api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		p, ok := requireSession(w, r, deps, "")
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"admin":     p.Account,
			"expiresAt": p.Session.ExpiresAt.UTC().Format(time.RFC3339),
		})
	})

	mux.HandleFunc("/api/auth/change-password", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		p, ok := requireSession(w, r, deps, "")
		if !ok {
			return
		}

		var req struct {
			CurrentPassword string `json:"currentPassword"`
			NewPassword     string `json:"newPassword"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.CurrentPassword == "" || req.NewPassword == "" {
			writeError(w, http.StatusBadRequest, "currentPassword and newPassword are required")
			return
		}

		err := deps.Auth.ChangePassword(r.Context(), sessionToken(r, deps.Options), req.CurrentPassword, req.NewPassword)
		if err != nil {
			auditReq(deps, r, p.Account.ID, "auth.change_password", p.Account.ID, audit.OutcomeFailure, err.Error())
			writeServiceError(w, log, err, "change password failed")
			return
		}
		auditReq(deps, r, p.Account.ID, "auth.change_password", p.Account.ID, audit.OutcomeSuccess, "")
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
}

// requireSession authenticates the request and checks role when it is
// set. On failure it has already written the response.
func requireSession(w http.ResponseWriter, r *http.Request, deps Deps, role auth.Role) (auth.Principal, bool) {
	if deps.Auth == nil {
		writeError(w, http.StatusServiceUnavailable, "auth service unavailable")
		return auth.Principal{}, false
	}
	token := sessionToken(r, deps.Options)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return auth.Principal{}, false
	}

	p, err := deps.Auth.Authenticate(r.Context(), token)
	if err != nil {
		if errors.Is(err, docstore.ErrIO) {
			writeServiceError(w, deps.logger(), err, "authentication failed")
			return auth.Principal{}, false
		}
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return auth.Principal{}, false
	}

	if role != "" && !p.Account.HasRole(role) {
		auditReq(deps, r, p.Account.ID, "authz.check", r.URL.Path, audit.OutcomeDenied, "missing role "+string(role))
		writeError(w, http.StatusForbidden, "forbidden")
		return auth.Principal{}, false
	}
	return p, true
}

// sessionToken prefers the session cookie and falls back to a bearer
// token.
func sessionToken(r *http.Request, opts Options) string {
	if c, err := r.Cookie(opts.cookieName()); err == nil && strings.TrimSpace(c.Value) != "" {
		return strings.TrimSpace(c.Value)
	}
	token, err := extractBearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return ""
	}
	return token
}

func extractBearerToken(authHeader string) (string, error) {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

func setSessionCookie(w http.ResponseWriter, opts Options, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     opts.cookieName(),
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   opts.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, opts Options) {
	http.SetCookie(w, &http.Cookie{
		Name:     opts.cookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func parseEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", fmt.Errorf("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("email is malformed")
	}
	return email, nil
}

func auditReq(deps Deps, r *http.Request, actor, action, target, outcome, detail string) {
	if deps.Audit == nil {
		return
	}
	err := deps.Audit.Log(audit.Entry{
		RequestID: requestIDFromContext(r.Context()),
		Actor:     actor,
		Action:    action,
		Target:    target,
		Outcome:   outcome,
		IP:        clientIP(r, deps.Options.TrustProxy),
		Detail:    strings.TrimSpace(detail),
	})
	if err != nil {
		deps.logger().Warn("audit write failed", "action", action, "error", err)
	}
}
