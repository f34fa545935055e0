// Package backend contains thin HTTP clients for the external Spatial Lens
// API. The backend owns tile generation, shapefile ingestion, SLD parsing
// and auth; this package only speaks its documented REST endpoints.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TokenSource supplies the bearer token, or "" when signed out.
// *state.Store satisfies this.
type TokenSource interface {
	Token() string
}

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	Code   int
	Reason string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d %s", e.Code, e.Reason)
}

// Client is the base HTTP client for the backend API.
type Client struct {
	base   string
	http   *http.Client
	tokens TokenSource
	log    zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTokenSource injects an Authorization: Bearer header on every request
// while the source returns a non-empty token.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the client logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 15 * time.Second},
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured API base, without a trailing slash.
func (c *Client) BaseURL() string {
	return c.base
}

// TileURLTemplate returns the vector tile template for a layer slug,
// consumed by the map engine's tiling subsystem ({z}/{x}/{y} untouched).
func (c *Client) TileURLTemplate(slug, extension string) string {
	return c.base + "/api/layers/tiles/" + slug + "/{z}/{x}/{y}" + extension
}

// BoundaryURL returns the administrative boundary overlay URL, cache-busted
// per call so each session load bypasses stale CDN copies.
func (c *Client) BoundaryURL() string {
	return fmt.Sprintf("%s/batas-admin/BatasAdmin.geojson?cb=%d", c.base, time.Now().UnixMilli())
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if t := c.tokens.Token(); t != "" {
			req.Header.Set("Authorization", "Bearer "+t)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Reason: http.StatusText(resp.StatusCode)}
	}
	return resp, nil
}

// getJSON performs a GET and decodes a JSON response body into out.
// A non-JSON 2xx response leaves out untouched.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// getRaw performs a GET and returns the raw response body.
func (c *Client) getRaw(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// sendJSON performs a request with a JSON body and optionally decodes a JSON
// response into out (which may be nil).
func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, method, path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
