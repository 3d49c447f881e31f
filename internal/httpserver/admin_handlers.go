package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"maritimeacademy/site-admin/internal/audit"
	"maritimeacademy/site-admin/internal/auth"
	"maritimeacademy/site-admin/internal/migrations"
)

func registerAccountHandlers(mux *http.ServeMux, deps Deps) {
	log := deps.logger()

	mux.HandleFunc("/api/admin/users", func(w http.ResponseWriter, r *http.Request) {
		p, ok := requireSession(w, r, deps, auth.RoleUserManager)
		if !ok {
			return
		}
		if deps.Accounts == nil {
			writeError(w, http.StatusServiceUnavailable, "account service unavailable")
			return
		}

		switch r.Method {
		case http.MethodGet:
			var role auth.Role
			if raw := strings.TrimSpace(r.URL.Query().Get("role")); raw != "" {
				parsed, err := auth.ParseRole(raw)
				if err != nil {
					writeError(w, http.StatusBadRequest, err.Error())
					return
				}
				role = parsed
			}
			items, err := deps.Accounts.ListAccounts(r.Context(), role)
			if err != nil {
				writeServiceError(w, log, err, "list users failed")
				return
			}
			writeData(w, http.StatusOK, items)
		case http.MethodPost:
			var req auth.NewAccount
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			req.CreatedBy = p.Account.ID
			if err := guardGrant(r.Context(), deps, p, "", req.Roles); err != nil {
				denyOrFail(w, r, deps, log, p, "user.create", req.Email, err)
				return
			}
			created, err := deps.Accounts.CreateAccount(r.Context(), req)
			if err != nil {
				auditReq(deps, r, p.Account.ID, "user.create", req.Email, audit.OutcomeFailure, err.Error())
				writeServiceError(w, log, err, "create user failed")
				return
			}
			auditReq(deps, r, p.Account.ID, "user.create", created.ID, audit.OutcomeSuccess, "")
			writeData(w, http.StatusCreated, created)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})

	mux.HandleFunc("/api/admin/users/", func(w http.ResponseWriter, r *http.Request) {
		p, ok := requireSession(w, r, deps, auth.RoleUserManager)
		if !ok {
			return
		}
		if deps.Accounts == nil {
			writeError(w, http.StatusServiceUnavailable, "account service unavailable")
			return
		}
		id, ok := pathID(r.URL.Path, "/api/admin/users/")
		if !ok {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}

		switch r.Method {
		case http.MethodGet:
			acct, err := deps.Accounts.GetAccount(r.Context(), id)
			if err != nil {
				writeServiceError(w, log, err, "get user failed")
				return
			}
			writeData(w, http.StatusOK, acct)
		case http.MethodPut, http.MethodPatch:
			var req auth.AccountUpdate
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			if id == p.Account.ID && req.IsActive != nil && !*req.IsActive {
				writeError(w, http.StatusBadRequest, "cannot deactivate your own account")
				return
			}
			if err := guardGrant(r.Context(), deps, p, id, req.Roles); err != nil {
				denyOrFail(w, r, deps, log, p, "user.update", id, err)
				return
			}
			updated, err := deps.Accounts.UpdateAccount(r.Context(), id, req)
			if err != nil {
				auditReq(deps, r, p.Account.ID, "user.update", id, audit.OutcomeFailure, err.Error())
				writeServiceError(w, log, err, "update user failed")
				return
			}
			auditReq(deps, r, p.Account.ID, "user.update", id, audit.OutcomeSuccess, "")
			writeData(w, http.StatusOK, updated)
		case http.MethodDelete:
			if id == p.Account.ID {
				writeError(w, http.StatusBadRequest, "cannot deactivate your own account")
				return
			}
			if err := guardGrant(r.Context(), deps, p, id, nil); err != nil {
				denyOrFail(w, r, deps, log, p, "user.deactivate", id, err)
				return
			}
			if err := deps.Accounts.DeactivateAccount(r.Context(), id); err != nil {
				auditReq(deps, r, p.Account.ID, "user.deactivate", id, audit.OutcomeFailure, err.Error())
				writeServiceError(w, log, err, "deactivate user failed")
				return
			}
			auditReq(deps, r, p.Account.ID, "user.deactivate", id, audit.OutcomeSuccess, "")
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})
}

// guardGrant keeps account management from escalating privileges. A caller
// may only hand out roles it could grant, and may only modify an account
// whose current roles it could grant. Changing one's own roles takes
// super_admin. targetID is empty on create; requested is nil when the
// request leaves roles alone.
func guardGrant(ctx context.Context, deps Deps, p auth.Principal, targetID string, requested []string) error {
	if requested != nil {
		roles, err := auth.NormalizeRoles(requested)
		if err != nil {
			return err
		}
		if err := auth.CanGrant(p.Account.Roles, roles); err != nil {
			return err
		}
	}
	if targetID == "" {
		return nil
	}
	if targetID == p.Account.ID && requested != nil && !slices.Contains(p.Account.Roles, auth.RoleSuperAdmin) {
		return fmt.Errorf("%w: cannot change your own roles", auth.ErrForbidden)
	}
	target, err := deps.Accounts.GetAccount(ctx, targetID)
	if err != nil {
		return err
	}
	if err := auth.CanGrant(p.Account.Roles, target.Roles); err != nil {
		return fmt.Errorf("%w: account holds roles you cannot grant", auth.ErrForbidden)
	}
	return nil
}

func denyOrFail(w http.ResponseWriter, r *http.Request, deps Deps, log *slog.Logger, p auth.Principal, action, target string, err error) {
	outcome := audit.OutcomeFailure
	if errors.Is(err, auth.ErrForbidden) {
		outcome = audit.OutcomeDenied
	}
	auditReq(deps, r, p.Account.ID, action, target, outcome, err.Error())
	writeServiceError(w, log, err, action+" failed")
}

func registerSessionAdminHandlers(mux *http.ServeMux, deps Deps) {
	log := deps.logger()

	mux.HandleFunc("/api/admin/sessions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if _, ok := requireSession(w, r, deps, auth.RoleSuperAdmin); !ok {
			return
		}
		items, err := deps.Auth.ListSessions(r.Context())
		if err != nil {
			writeServiceError(w, log, err, "list sessions failed")
			return
		}
		writeData(w, http.StatusOK, items)
	})

	mux.HandleFunc("/api/admin/sessions/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		p, ok := requireSession(w, r, deps, auth.RoleSuperAdmin)
		if !ok {
			return
		}
		sessionID, ok := pathID(r.URL.Path, "/api/admin/sessions/")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid session id")
			return
		}
		if err := deps.Auth.RevokeSession(r.Context(), sessionID); err != nil {
			auditReq(deps, r, p.Account.ID, "session.revoke", sessionID, audit.OutcomeFailure, err.Error())
			writeServiceError(w, log, err, "revoke session failed")
			return
		}
		auditReq(deps, r, p.Account.ID, "session.revoke", sessionID, audit.OutcomeSuccess, "")
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
}

func registerMigrationHandlers(mux *http.ServeMux, deps Deps) {
	log := deps.logger()

	mux.HandleFunc("/api/admin/migrations", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if _, ok := requireSession(w, r, deps, auth.RoleSuperAdmin); !ok {
			return
		}
		if deps.Migrations == nil {
			writeError(w, http.StatusServiceUnavailable, "migrations are only available on the postgres store")
			return
		}
		status, err := deps.Migrations.Status(r.Context())
		if err != nil {
			writeServiceError(w, log, err, "migration status failed")
			return
		}
		writeData(w, http.StatusOK, status)
	})

	mux.HandleFunc("/api/admin/migrations/apply", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		p, ok := requireSession(w, r, deps, auth.RoleSuperAdmin)
		if !ok {
			return
		}
		if deps.Migrations == nil {
			writeError(w, http.StatusServiceUnavailable, "migrations are only available on the postgres store")
			return
		}
		applied, err := deps.Migrations.Apply(r.Context())
		if err != nil {
			auditReq(deps, r, p.Account.ID, "migration.apply", "", audit.OutcomeFailure, err.Error())
			if errors.Is(err, migrations.ErrChecksumMismatch) {
				writeError(w, http.StatusConflict, err.Error())
				return
			}
			writeServiceError(w, log, err, "apply migrations failed")
			return
		}
		if applied == nil {
			applied = []string{}
		}
		auditReq(deps, r, p.Account.ID, "migration.apply", strings.Join(applied, ","), audit.OutcomeSuccess, "")
		writeData(w, http.StatusOK, map[string]any{"applied": applied})
	})
}
