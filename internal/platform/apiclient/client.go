// Package apiclient is the transport to the upstream consultation REST API.
//
// Admin requests carry the bearer token of the Credentials found in the
// request context. A 401 on an admin request invalidates those credentials
// before ErrUnauthorized is returned, which is how the apps learn that a
// session has ended.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/consult/consult/internal/platform/apperr"
)

// Credentials supplies the bearer token for admin requests and is told when
// the upstream rejects it.
type Credentials interface {
	AccessToken() string
	Invalidate(reason string)
}

type credentialsKey struct{}

// WithCredentials returns a context whose admin requests authenticate with c.
func WithCredentials(ctx context.Context, c Credentials) context.Context {
	return context.WithValue(ctx, credentialsKey{}, c)
}

// CredentialsFrom returns the credentials stored in ctx.
func CredentialsFrom(ctx context.Context) (Credentials, bool) {
	c, ok := ctx.Value(credentialsKey{}).(Credentials)
	return c, ok && c != nil
}

// Request describes one upstream call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	// Admin attaches the bearer token and applies the 401 logout rule.
	Admin bool
}

// Client performs JSON requests against the upstream API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// New creates a Client for baseURL with the given per-request timeout.
func New(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	return NewWithHTTPClient(baseURL, &http.Client{Timeout: timeout}, logger)
}

// NewWithHTTPClient creates a Client that sends requests through hc.
func NewWithHTTPClient(baseURL string, hc *http.Client, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		logger:  logger.With().Str("component", "apiclient").Logger(),
	}
}

// BaseURL returns the upstream base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Do sends req and decodes a JSON success body into out (when out is non-nil
// and the body is non-empty). Failures are classified into the apperr
// taxonomy.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	u := c.baseURL + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		buf, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("encode %s %s body: %w", req.Method, req.Path, err)
		}
		body = bytes.NewReader(buf)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", req.Method, req.Path, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	var creds Credentials
	if req.Admin {
		if cr, ok := CredentialsFrom(ctx); ok {
			creds = cr
			if token := cr.AccessToken(); token != "" {
				httpReq.Header.Set("Authorization", "Bearer "+token)
			}
		}
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Warn().Err(err).Str("method", req.Method).Str("path", req.Path).Msg("upstream request failed")
		return &apperr.TransportFailure{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &apperr.TransportFailure{Status: resp.StatusCode, Err: err}
	}

	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("upstream request")

	if resp.StatusCode >= 400 {
		return c.classify(req, resp.StatusCode, raw, creds)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &apperr.TransportFailure{Status: resp.StatusCode, Err: fmt.Errorf("decode %s %s response: %w", req.Method, req.Path, err)}
	}
	return nil
}

func (c *Client) classify(req Request, status int, raw []byte, creds Credentials) error {
	msg := ErrorMessage(raw)

	if status == http.StatusUnauthorized && req.Admin {
		if creds != nil {
			creds.Invalidate("unauthorized")
		}
		c.logger.Info().Str("path", req.Path).Msg("upstream rejected credentials, session cleared")
		if msg != "" {
			return fmt.Errorf("%w: %s", apperr.ErrUnauthorized, msg)
		}
		return apperr.ErrUnauthorized
	}
	if status == http.StatusNotFound && msg == "" {
		return apperr.ErrNotFound
	}
	if status == http.StatusNotFound {
		return fmt.Errorf("%w: %w", apperr.ErrNotFound, &apperr.RequestRejected{Status: status, Message: msg})
	}
	if msg == "" && status >= 500 {
		return &apperr.TransportFailure{Status: status}
	}
	return &apperr.RequestRejected{Status: status, Message: msg}
}

// ErrorMessage extracts the human-readable message of an error body:
// "message" (a string or a list of strings), then "detail", then "error".
func ErrorMessage(raw []byte) string {
	var body struct {
		Message json.RawMessage `json:"message"`
		Detail  string          `json:"detail"`
		Error   string          `json:"error"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &body) != nil {
		return ""
	}
	if len(body.Message) > 0 {
		var s string
		if json.Unmarshal(body.Message, &s) == nil && s != "" {
			return s
		}
		var list []string
		if json.Unmarshal(body.Message, &list) == nil && len(list) > 0 {
			return strings.Join(list, ", ")
		}
	}
	if body.Detail != "" {
		return body.Detail
	}
	return body.Error
}

// IsTransport reports whether err is a transport-level failure.
func IsTransport(err error) bool {
	var tf *apperr.TransportFailure
	return errors.As(err, &tf)
}
