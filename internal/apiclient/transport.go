package apiclient

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	domainauth "github.com/civicwatch/civicwatch/internal/domain/auth"
	"github.com/civicwatch/civicwatch/internal/observability/metrics"
)

// HeaderRequestID carries a per-request correlation id.
const HeaderRequestID = "X-Request-ID"

// Credentials reads and updates the stored token pair.
type Credentials interface {
	AccessToken() (string, bool)
	RefreshToken() (string, bool)
	Replace(ctx context.Context, pair domainauth.TokenPair) error
	Clear(ctx context.Context) error
}

type retryKey struct{}

// withRetry marks ctx as carrying an already retried request.
func withRetry(ctx context.Context) context.Context {
	return context.WithValue(ctx, retryKey{}, true)
}

func isRetry(ctx context.Context) bool {
	v, _ := ctx.Value(retryKey{}).(bool)
	return v
}

// Transport attaches the bearer token and recovers from one 401 per request.
type Transport struct {
	Base        http.RoundTripper
	Credentials Credentials
	Refresh     *RefreshGroup
	UserAgent   string
	Logger      *slog.Logger
	Metrics     *metrics.Recorder

	events *eventHub
}

// RoundTrip implements http.RoundTripper. The caller's request is never mutated.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	t.decorate(out, t.accessToken())

	resp, err := t.base().RoundTrip(out)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if isRetry(req.Context()) || t.Refresh == nil || t.Credentials == nil {
		return resp, nil
	}

	refreshToken, ok := t.Credentials.RefreshToken()
	if !ok || refreshToken == "" {
		return resp, nil
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		t.logger().Debug("401 on request without replayable body, not retrying",
			"method", req.Method, "path", req.URL.Path, "request_id", out.Header.Get(HeaderRequestID))
		return resp, nil
	}

	return t.recover(req, resp, refreshToken)
}

func (t *Transport) recover(req *http.Request, orig *http.Response, refreshToken string) (*http.Response, error) {
	ctx := req.Context()
	log := t.logger().With("method", req.Method, "path", req.URL.Path)
	t.events.emit(EventSessionExpired)

	pair, err := t.Refresh.Refresh(ctx, refreshToken)
	if err != nil {
		t.Metrics.Refresh(metrics.SourceInterceptor, metrics.ResultError, err)
		if ctx.Err() != nil {
			// The caller gave up; the shared refresh may still succeed.
			log.Debug("stopped waiting for token refresh", "error", err)
			return orig, nil
		}
		log.Warn("token refresh failed, clearing credentials", "error", err)
		if clearErr := t.Credentials.Clear(context.WithoutCancel(ctx)); clearErr != nil {
			log.Error("clear credentials after failed refresh", "error", clearErr)
		}
		t.events.emit(EventSessionTerminated)
		return orig, nil
	}
	t.Metrics.Refresh(metrics.SourceInterceptor, metrics.ResultSuccess, nil)

	if !t.Refresh.persists() {
		if storeErr := t.Credentials.Replace(context.WithoutCancel(ctx), pair); storeErr != nil {
			log.Error("persist refreshed credentials", "error", storeErr)
		}
	}
	t.events.emit(EventSessionRefreshed)

	retry := req.Clone(withRetry(ctx))
	if req.GetBody != nil {
		body, bodyErr := req.GetBody()
		if bodyErr != nil {
			log.Warn("rebuild request body for retry", "error", bodyErr)
			t.Metrics.Retry(metrics.ResultSkipped)
			return orig, nil
		}
		retry.Body = body
	}
	t.decorate(retry, pair.AccessToken)

	if drainErr := drainAndClose(orig); drainErr != nil {
		log.Debug("drain 401 response", "error", drainErr)
	}

	resp, err := t.base().RoundTrip(retry)
	if err != nil {
		t.Metrics.Retry(metrics.ResultError)
		return nil, err
	}
	result := metrics.ResultSuccess
	if resp.StatusCode == http.StatusUnauthorized {
		result = metrics.ResultError
	}
	t.Metrics.Retry(result)
	log.Debug("request retried after refresh", "status", resp.StatusCode, "request_id", retry.Header.Get(HeaderRequestID))
	return resp, nil
}

func (t *Transport) decorate(r *http.Request, token string) {
	if token != "" {
		(&oauth2.Token{AccessToken: token}).SetAuthHeader(r)
	}
	r.Header.Set(HeaderRequestID, uuid.NewString())
	if t.UserAgent != "" {
		r.Header.Set("User-Agent", t.UserAgent)
	}
}

func (t *Transport) accessToken() string {
	if t.Credentials == nil {
		return ""
	}
	tok, ok := t.Credentials.AccessToken()
	if !ok {
		return ""
	}
	return tok
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}
