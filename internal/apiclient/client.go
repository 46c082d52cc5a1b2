// Package apiclient is the authenticated HTTP client for the CivicWatch API.
//
// Requests carry the stored access token as a bearer header. A 401 triggers one
// shared token refresh and a single retry of the original request.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	apperrors "github.com/civicwatch/civicwatch/internal/errors"
	"github.com/civicwatch/civicwatch/internal/observability/metrics"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "civicwatch-cli"
	maxResponseBytes = 1 << 20
)

// Options groups dependencies for Client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string

	// Credentials supplies and stores tokens. Nil sends requests unauthenticated.
	Credentials Credentials
	// Refresh is the shared refresh group. Nil disables retry-on-401.
	Refresh *RefreshGroup
	// BaseTransport defaults to http.DefaultTransport.
	BaseTransport http.RoundTripper

	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// Client sends JSON requests to the API.
type Client struct {
	baseURL string
	http    *http.Client
	events  *eventHub
}

// New builds a Client with an auth transport over the base transport.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, apperrors.ValidationField("base_url", "API base URL is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	rt := opts.BaseTransport
	if rt == nil {
		rt = http.DefaultTransport
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	events := &eventHub{}
	transport := &Transport{
		Base:        rt,
		Credentials: opts.Credentials,
		Refresh:     opts.Refresh,
		UserAgent:   ua,
		Logger:      logger,
		Metrics:     opts.Metrics,
		events:      events,
	}

	return &Client{
		baseURL: base,
		http:    &http.Client{Transport: transport, Timeout: timeout, Jar: jar},
		events:  events,
	}, nil
}

// Observe registers o for session events emitted by the transport.
func (c *Client) Observe(o Observer) func() { return c.events.add(o) }

// Response is a fully read 2xx response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return apperrors.Wrap(io.ErrUnexpectedEOF, apperrors.ErrCodeUpstream, "decode response: empty body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeUpstream, "decode response")
	}
	return nil
}

// Get sends a GET request to path.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Post sends body as JSON to path.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, body)
}

// Put sends body as JSON to path.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPut, path, body)
}

// Do sends a request and reads the whole response.
// Responses outside 2xx are returned as *StatusError.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	req, err := newJSONRequest(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(method, path, err)
	}

	data, err := readBody(resp)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeTransport, "%s %s: read response", method, path)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: data}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func newJSONRequest(ctx context.Context, method, url string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode request body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func transportError(method, path string, err error) error {
	code := apperrors.ErrCodeTransport
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = apperrors.ErrCodeTimeout
	case errors.Is(err, context.Canceled):
		code = apperrors.ErrCodeCanceled
	}
	return apperrors.Wrapf(err, code, "%s %s", method, path)
}

func readBody(resp *http.Response) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if closeErr := resp.Body.Close(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("close response body: %w", closeErr))
	}
	return data, err
}

func drainAndClose(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	_, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	if closeErr := resp.Body.Close(); closeErr != nil {
		return errors.Join(err, fmt.Errorf("close response body: %w", closeErr))
	}
	return err
}

// StatusError reports a response outside 2xx.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// Unwrap exposes an AppError matching the status so apperrors.IsXxx helpers apply.
func (e *StatusError) Unwrap() error {
	msg := fmt.Sprintf("api status %d", e.StatusCode)
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return apperrors.Unauthenticated(msg)
	case http.StatusForbidden:
		return apperrors.Forbidden(msg)
	case http.StatusNotFound:
		return apperrors.NotFound(msg)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return apperrors.Validation(msg)
	default:
		return &apperrors.AppError{Code: apperrors.ErrCodeUpstream, Message: msg}
	}
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
