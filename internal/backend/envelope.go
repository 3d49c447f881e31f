package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Keys the backend has used for the payload and the error text, in the
// order they are tried.
var (
	dataKeys  = []string{"data", "events", "users", "news", "items", "admin", "articles"}
	errorKeys = []string{"error", "message"}
)

// Envelope is the normalised {success, data, error} reply.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// DecodeEnvelope reads a backend reply. When "success" is absent it is
// inferred from the HTTP status.
func DecodeEnvelope(status int, body []byte) (Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return Envelope{}, fmt.Errorf("%w: malformed response (status %d)", ErrUpstream, status)
	}

	env := Envelope{Success: status < http.StatusBadRequest}
	if raw, ok := fields["success"]; ok {
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return Envelope{}, fmt.Errorf("%w: success is not a boolean", ErrUpstream)
		}
		env.Success = b
	}
	for _, k := range dataKeys {
		if raw, ok := fields[k]; ok && string(raw) != "null" {
			env.Data = raw
			break
		}
	}
	for _, k := range errorKeys {
		raw, ok := fields[k]
		if !ok || string(raw) == "null" {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			env.Error = s
		} else {
			env.Error = string(raw)
		}
		if env.Error != "" {
			break
		}
	}
	return env, nil
}

// GetEnvelope GETs path with the bearer token and decodes the reply.
// success:false becomes ErrUpstream carrying the backend's message.
func (c *Client) GetEnvelope(ctx context.Context, path string, query url.Values, token string) (Envelope, error) {
	req := Request{Method: http.MethodGet, Path: path, Query: query, Header: http.Header{}}
	if token = strings.TrimSpace(token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return Envelope{}, err
	}
	env, err := DecodeEnvelope(resp.StatusCode, resp.Body)
	if err != nil {
		return Envelope{}, err
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return env, fmt.Errorf("%w: %s", ErrUpstream, msg)
	}
	return env, nil
}

type HealthStatus struct {
	Reachable  bool   `json:"reachable"`
	StatusCode int    `json:"statusCode,omitempty"`
	LatencyMS  int64  `json:"latencyMs"`
	Error      string `json:"error,omitempty"`
}

// Health probes the backend's health path.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	start := time.Now()
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, Path: c.cfg.HealthPath})
	st := HealthStatus{LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		st.Error = err.Error()
		return st, err
	}
	st.StatusCode = resp.StatusCode
	st.Reachable = resp.StatusCode < http.StatusInternalServerError
	if !st.Reachable {
		return st, fmt.Errorf("%w: health status %d", ErrUpstream, resp.StatusCode)
	}
	return st, nil
}
