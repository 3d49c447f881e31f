package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"maritimeacademy/site-admin/internal/backend"
)

// Request headers passed through to the backend.
var forwardedRequestHeaders = []string{"Authorization", "Content-Type", "Accept", "Accept-Language"}

// Response headers passed back to the client.
var forwardedResponseHeaders = []string{"Content-Type", "Cache-Control", "ETag", "Last-Modified", "Location"}

func registerBackendHandlers(mux *http.ServeMux, deps Deps) {
	log := deps.logger()

	mux.HandleFunc("/api/backend/", func(w http.ResponseWriter, r *http.Request) {
		if deps.Backend == nil {
			writeError(w, http.StatusServiceUnavailable, "backend client unavailable")
			return
		}
		target := "/" + strings.TrimPrefix(r.URL.Path, "/api/backend/")

		var body []byte
		if r.Body != nil {
			b, err := io.ReadAll(r.Body)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			body = b
		}

		header := make(http.Header)
		for _, k := range forwardedRequestHeaders {
			if v := r.Header.Get(k); v != "" {
				header.Set(k, v)
			}
		}
		if reqID := requestIDFromContext(r.Context()); reqID != "" {
			header.Set("X-Request-Id", reqID)
		}

		resp, err := deps.Backend.Do(r.Context(), backend.Request{
			Method: r.Method,
			Path:   target,
			Query:  r.URL.Query(),
			Header: header,
			Body:   body,
		})
		if err != nil {
			log.Warn("backend proxy failed", "method", r.Method, "path", target, "error", err,
				"request_id", requestIDFromContext(r.Context()))
			writeServiceError(w, log, err, "backend request failed")
			return
		}

		for _, k := range forwardedResponseHeaders {
			if v := resp.Header.Get(k); v != "" {
				w.Header().Set(k, v)
			}
		}
		w.WriteHeader(resp.StatusCode)
		if r.Method != http.MethodHead {
			_, _ = w.Write(resp.Body)
		}
	})

	// /api/remote/* is the read-only variant: the reply is normalised to
	// {success, data} whatever key the backend put the payload under.
	mux.HandleFunc("/api/remote/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if deps.Backend == nil {
			writeError(w, http.StatusServiceUnavailable, "backend client unavailable")
			return
		}
		target := "/" + strings.TrimPrefix(r.URL.Path, "/api/remote/")
		token, _ := extractBearerToken(r.Header.Get("Authorization"))

		env, err := deps.Backend.GetEnvelope(r.Context(), target, r.URL.Query(), token)
		if err != nil {
			if errors.Is(err, backend.ErrUpstream) && env.Error != "" {
				writeError(w, http.StatusBadGateway, env.Error)
				return
			}
			log.Warn("backend fetch failed", "path", target, "error", err,
				"request_id", requestIDFromContext(r.Context()))
			writeServiceError(w, log, err, "backend request failed")
			return
		}
		data := env.Data
		if len(data) == 0 {
			data = json.RawMessage("null")
		}
		writeData(w, http.StatusOK, data)
	})

	mux.HandleFunc("/api/health/backend", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if deps.Backend == nil {
			writeError(w, http.StatusServiceUnavailable, "backend client unavailable")
			return
		}
		st, err := deps.Backend.Health(r.Context())
		if err != nil {
			msg := st.Error
			if msg == "" {
				msg = err.Error()
			}
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"success": false,
				"error":   msg,
				"data":    st,
			})
			return
		}
		writeData(w, http.StatusOK, st)
	})
}
