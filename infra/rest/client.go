// Package rest implements persistence.Repository against a PostgREST style
// query endpoint, the hosted database the booking subsystem writes to.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kilianp07/fleetdispatch/core/logger"
)

// Config describes the endpoint.
type Config struct {
	BaseURL string
	// APIKey is sent as the apikey header, and as bearer token when no
	// client credentials are configured.
	APIKey  string
	Auth    *AuthConf
	Timeout time.Duration
}

// Client issues table requests.
type Client struct {
	base   *url.URL
	apiKey string
	cred   *ClientCred
	http   *http.Client
	log    logger.Logger
}

// StatusError is returned for non 2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config, log logger.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := &Client{
		base:   u,
		apiKey: cfg.APIKey,
		http:   &http.Client{Timeout: cfg.Timeout},
		log:    logger.OrNop(log),
	}
	if cfg.Auth != nil && cfg.Auth.ClientID != "" {
		c.cred = NewClientCred(*cfg.Auth)
	}
	return c, nil
}

// do sends a request to table with query q and decodes the JSON response
// into out when non nil.
func (c *Client) do(ctx context.Context, method, table string, q url.Values, body any, prefer string, out any) error {
	u := *c.base
	u.Path = u.Path + "/" + table
	u.RawQuery = q.Encode()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", table, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	switch {
	case c.cred != nil:
		if err := c.cred.SetAuthHeader(req); err != nil {
			return err
		}
	case c.apiKey != "":
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, table, err)
	}
	defer resp.Body.Close()
	c.log.Debugw("rest request", map[string]any{
		"method": method, "table": table, "status": resp.StatusCode, "duration_ms": time.Since(start).Milliseconds(),
	})
	if resp.StatusCode == http.StatusUnauthorized && c.cred != nil {
		c.cred.Invalidate()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: method, Path: table, Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", table, err)
	}
	return nil
}

// in formats a PostgREST in.() filter.
func in(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return "in.(" + strings.Join(quoted, ",") + ")"
}
