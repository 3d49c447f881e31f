package httpserver

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"maritimeacademy/site-admin/internal/audit"
	"maritimeacademy/site-admin/internal/auth"
	"maritimeacademy/site-admin/internal/content"
	"maritimeacademy/site-admin/internal/docstore"
)

const maxListLimit = 500

func registerEventHandlers(mux *http.ServeMux, deps Deps) {
	log := deps.logger()

	mux.HandleFunc("/api/admin/events", func(w http.ResponseWriter, r *http.Request) {
		p, ok := requireSession(w, r, deps, auth.RoleEventsManager)
		if !ok {
			return
		}
		if deps.Events == nil {
			writeError(w, http.StatusServiceUnavailable, "event service unavailable")
			return
		}

		switch r.Method {
		case http.MethodGet:
			f, err := eventFilter(r.URL.Query())
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			items, err := deps.Events.List(r.Context(), f)
			if err != nil {
				writeServiceError(w, log, err, "list events failed")
				return
			}
			writeData(w, http.StatusOK, items)
		case http.MethodPost:
			var req content.Event
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			created, err := deps.Events.Create(r.Context(), req, p.Account.ID)
			if err != nil {
				auditReq(deps, r, p.Account.ID, "event.create", "", audit.OutcomeFailure, err.Error())
				writeServiceError(w, log, err, "create event failed")
				return
			}
			auditReq(deps, r, p.Account.ID, "event.create", created.ID, audit.OutcomeSuccess, "")
			writeData(w, http.StatusCreated, created)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})

	mux.HandleFunc("/api/admin/events/", func(w http.ResponseWriter, r *http.Request) {
		p, ok := requireSession(w, r, deps, auth.RoleEventsManager)
		if !ok {
			return
		}
		if deps.Events == nil {
			writeError(w, http.StatusServiceUnavailable, "event service unavailable")
			return
		}
		id, ok := pathID(r.URL.Path, "/api/admin/events/")
		if !ok {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}

		switch r.Method {
		case http.MethodGet:
			ev, err := deps.Events.Get(r.Context(), id)
			if err != nil {
				writeServiceError(w, log, err, "get event failed")
				return
			}
			writeData(w, http.StatusOK, ev)
		case http.MethodPut, http.MethodPatch:
			var patch docstore.Document
			if err := decodeJSON(r, &patch); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			updated, err := deps.Events.Update(r.Context(), id, patch)
			if err != nil {
				auditReq(deps, r, p.Account.ID, "event.update", id, audit.OutcomeFailure, err.Error())
				writeServiceError(w, log, err, "update event failed")
				return
			}
			auditReq(deps, r, p.Account.ID, "event.update", id, audit.OutcomeSuccess, "")
			writeData(w, http.StatusOK, updated)
		case http.MethodDelete:
			if err := deps.Events.Delete(r.Context(), id); err != nil {
				auditReq(deps, r, p.Account.ID, "event.delete", id, audit.OutcomeFailure, err.Error())
				writeServiceError(w, log, err, "delete event failed")
				return
			}
			auditReq(deps, r, p.Account.ID, "event.delete", id, audit.OutcomeSuccess, "")
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})

	mux.HandleFunc("/api/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if deps.Events == nil {
			writeError(w, http.StatusServiceUnavailable, "event service unavailable")
			return
		}
		f, err := eventFilter(r.URL.Query())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		items, err := deps.Events.List(r.Context(), f)
		if err != nil {
			writeServiceError(w, log, err, "list events failed")
			return
		}
		writeData(w, http.StatusOK, items)
	})

	mux.HandleFunc("/api/events/", func(w http.ResponseWriter, r *http.Request) {
		if deps.Events == nil {
			writeError(w, http.StatusServiceUnavailable, "event service unavailable")
			return
		}
		rest := strings.TrimPrefix(r.URL.Path, "/api/events/")
		if id, ok := strings.CutSuffix(rest, "/register"); ok {
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, "method not allowed")
				return
			}
			if id == "" || strings.Contains(id, "/") {
				writeError(w, http.StatusNotFound, "event not found")
				return
			}
			ev, err := deps.Events.Register(r.Context(), id)
			if err != nil {
				writeServiceError(w, log, err, "event registration failed")
				return
			}
			auditReq(deps, r, "", "event.register", id, audit.OutcomeSuccess, "")
			writeData(w, http.StatusOK, ev)
			return
		}

		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		id, ok := pathID(r.URL.Path, "/api/events/")
		if !ok {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		ev, err := deps.Events.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, log, err, "get event failed")
			return
		}
		writeData(w, http.StatusOK, ev)
	})
}

func registerNewsHandlers(mux *http.ServeMux, deps Deps) {
	log := deps.logger()

	mux.HandleFunc("/api/admin/news", func(w http.ResponseWriter, r *http.Request) {
		p, ok := requireSession(w, r, deps, auth.RoleNewsManager)
		if !ok {
			return
		}
		if deps.News == nil {
			writeError(w, http.StatusServiceUnavailable, "news service unavailable")
			return
		}

		switch r.Method {
		case http.MethodGet:
			f, err := newsFilter(r.URL.Query())
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			items, err := deps.News.List(r.Context(), f)
			if err != nil {
				writeServiceError(w, log, err, "list news failed")
				return
			}
			writeData(w, http.StatusOK, items)
		case http.MethodPost:
			var req content.Article
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			created, err := deps.News.Create(r.Context(), req, p.Account.ID)
			if err != nil {
				auditReq(deps, r, p.Account.ID, "news.create", "", audit.OutcomeFailure, err.Error())
				writeServiceError(w, log, err, "create article failed")
				return
			}
			auditReq(deps, r, p.Account.ID, "news.create", created.ID, audit.OutcomeSuccess, "")
			writeData(w, http.StatusCreated, created)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})

	mux.HandleFunc("/api/admin/news/", func(w http.ResponseWriter, r *http.Request) {
		p, ok := requireSession(w, r, deps, auth.RoleNewsManager)
		if !ok {
			return
		}
		if deps.News == nil {
			writeError(w, http.StatusServiceUnavailable, "news service unavailable")
			return
		}
		id, ok := pathID(r.URL.Path, "/api/admin/news/")
		if !ok {
			writeError(w, http.StatusNotFound, "article not found")
			return
		}

		switch r.Method {
		case http.MethodGet:
			a, err := deps.News.Get(r.Context(), id)
			if err != nil {
				writeServiceError(w, log, err, "get article failed")
				return
			}
			writeData(w, http.StatusOK, a)
		case http.MethodPut, http.MethodPatch:
			var patch docstore.Document
			if err := decodeJSON(r, &patch); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			updated, err := deps.News.Update(r.Context(), id, patch)
			if err != nil {
				auditReq(deps, r, p.Account.ID, "news.update", id, audit.OutcomeFailure, err.Error())
				writeServiceError(w, log, err, "update article failed")
				return
			}
			auditReq(deps, r, p.Account.ID, "news.update", id, audit.OutcomeSuccess, "")
			writeData(w, http.StatusOK, updated)
		case http.MethodDelete:
			if err := deps.News.Delete(r.Context(), id); err != nil {
				auditReq(deps, r, p.Account.ID, "news.delete", id, audit.OutcomeFailure, err.Error())
				writeServiceError(w, log, err, "delete article failed")
				return
			}
			auditReq(deps, r, p.Account.ID, "news.delete", id, audit.OutcomeSuccess, "")
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})

	mux.HandleFunc("/api/news", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if deps.News == nil {
			writeError(w, http.StatusServiceUnavailable, "news service unavailable")
			return
		}
		f, err := newsFilter(r.URL.Query())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		// Drafts and archived articles are never public.
		f.Status = content.ArticlePublished
		items, err := deps.News.List(r.Context(), f)
		if err != nil {
			writeServiceError(w, log, err, "list news failed")
			return
		}
		writeData(w, http.StatusOK, items)
	})

	mux.HandleFunc("/api/news/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if deps.News == nil {
			writeError(w, http.StatusServiceUnavailable, "news service unavailable")
			return
		}
		key, ok := pathID(r.URL.Path, "/api/news/")
		if !ok {
			writeError(w, http.StatusNotFound, "article not found")
			return
		}
		a, err := deps.News.GetPublished(r.Context(), key)
		if err != nil {
			writeServiceError(w, log, err, "get article failed")
			return
		}
		writeData(w, http.StatusOK, a)
	})
}

func eventFilter(q url.Values) (content.EventFilter, error) {
	var f content.EventFilter
	f.Status = content.EventStatus(strings.TrimSpace(q.Get("status")))
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, fmt.Errorf("from must be an RFC 3339 time")
		}
		f.From = from
	}
	n, err := parseLimit(q.Get("limit"))
	if err != nil {
		return f, err
	}
	f.Limit = n
	return f, nil
}

func newsFilter(q url.Values) (content.NewsFilter, error) {
	var f content.NewsFilter
	f.Status = content.ArticleStatus(strings.TrimSpace(q.Get("status")))
	f.Tag = strings.TrimSpace(q.Get("tag"))
	n, err := parseLimit(q.Get("limit"))
	if err != nil {
		return f, err
	}
	f.Limit = n
	return f, nil
}

func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > maxListLimit {
		return 0, fmt.Errorf("limit must be between 0 and %d", maxListLimit)
	}
	return n, nil
}
