package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/sync/singleflight"

	domainauth "github.com/civicwatch/civicwatch/internal/domain/auth"
	apperrors "github.com/civicwatch/civicwatch/internal/errors"
	"github.com/civicwatch/civicwatch/internal/ports"
)

// Default JMESPath expressions accept both the enveloped and the legacy flat refresh response.
const (
	DefaultAccessTokenExpr  = "data.accessToken || accessToken"
	DefaultRefreshTokenExpr = "data.refreshToken || refreshToken"
	DefaultRefreshPath      = "/api/v1/auth/refresh"
)

// ValidateExpr reports whether expr is a valid JMESPath expression.
func ValidateExpr(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return apperrors.Validation("expression is empty")
	}
	if _, err := jmespath.Compile(expr); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeValidation, "invalid JMESPath expression %q", expr)
	}
	return nil
}

// RefresherOptions groups dependencies for Refresher.
type RefresherOptions struct {
	BaseURL string
	Path    string
	// HTTPClient must not carry the auth transport. Defaults to a plain client with a 15s timeout.
	HTTPClient       *http.Client
	UserAgent        string
	AccessTokenExpr  string
	RefreshTokenExpr string
}

// Refresher exchanges a refresh token with an unauthenticated POST.
type Refresher struct {
	url         string
	client      *http.Client
	userAgent   string
	accessExpr  string
	refreshExpr string
}

// NewRefresher validates the options and builds a Refresher.
func NewRefresher(opts RefresherOptions) (*Refresher, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, apperrors.ValidationField("base_url", "API base URL is required")
	}
	path := opts.Path
	if path == "" {
		path = DefaultRefreshPath
	}
	accessExpr := firstNonEmpty(opts.AccessTokenExpr, DefaultAccessTokenExpr)
	refreshExpr := firstNonEmpty(opts.RefreshTokenExpr, DefaultRefreshTokenExpr)
	for _, expr := range []string{accessExpr, refreshExpr} {
		if err := ValidateExpr(expr); err != nil {
			return nil, err
		}
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	return &Refresher{
		url:         base + path,
		client:      client,
		userAgent:   opts.UserAgent,
		accessExpr:  accessExpr,
		refreshExpr: refreshExpr,
	}, nil
}

// Refresh posts {refreshToken} and extracts the new pair. Only HTTP 200 is success.
func (r *Refresher) Refresh(ctx context.Context, refreshToken string) (domainauth.TokenPair, error) {
	payload, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return domainauth.TokenPair{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode refresh request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return domainauth.TokenPair{}, apperrors.Wrap(err, apperrors.ErrCodeValidation, "build refresh request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return domainauth.TokenPair{}, transportError(http.MethodPost, req.URL.Path, err)
	}
	body, err := readBody(resp)
	if err != nil {
		return domainauth.TokenPair{}, apperrors.Wrap(err, apperrors.ErrCodeTransport, "read refresh response")
	}
	if resp.StatusCode != http.StatusOK {
		return domainauth.TokenPair{}, &StatusError{
			Method: http.MethodPost, Path: req.URL.Path, StatusCode: resp.StatusCode, Body: body,
		}
	}

	return r.extract(body)
}

func (r *Refresher) extract(body []byte) (domainauth.TokenPair, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return domainauth.TokenPair{}, apperrors.Wrap(err, apperrors.ErrCodeUpstream, "decode refresh response")
	}

	access, err := searchString(r.accessExpr, doc)
	if err != nil {
		return domainauth.TokenPair{}, err
	}
	if access == "" {
		return domainauth.TokenPair{}, &apperrors.AppError{
			Code:    apperrors.ErrCodeUpstream,
			Message: "refresh response carried no access token",
		}
	}
	refresh, err := searchString(r.refreshExpr, doc)
	if err != nil {
		return domainauth.TokenPair{}, err
	}
	return domainauth.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func searchString(expr string, doc any) (string, error) {
	v, err := jmespath.Search(expr, doc)
	if err != nil {
		return "", apperrors.Wrapf(err, apperrors.ErrCodeUpstream, "evaluate %q", expr)
	}
	s, _ := v.(string)
	return s, nil
}

func firstNonEmpty(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

// PairStore persists a refreshed token pair.
type PairStore interface {
	Replace(ctx context.Context, pair domainauth.TokenPair) error
}

// RefreshGroup deduplicates concurrent refreshes of the same refresh token.
// The shared call is detached from any single caller's cancellation; each caller
// still stops waiting when its own context ends.
type RefreshGroup struct {
	refresher ports.TokenRefresher
	timeout   time.Duration
	store     PairStore
	logger    *slog.Logger
	group     singleflight.Group
}

// GroupOption configures a RefreshGroup.
type GroupOption func(*RefreshGroup)

// WithPairStore persists every successful refresh inside the shared call,
// so the result survives even when all waiters have given up.
func WithPairStore(store PairStore) GroupOption {
	return func(g *RefreshGroup) { g.store = store }
}

// WithGroupLogger sets the logger used for persistence failures.
func WithGroupLogger(logger *slog.Logger) GroupOption {
	return func(g *RefreshGroup) { g.logger = logger }
}

// NewRefreshGroup wraps refresher. timeout bounds the detached call; zero uses 15s.
func NewRefreshGroup(refresher ports.TokenRefresher, timeout time.Duration, opts ...GroupOption) *RefreshGroup {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	g := &RefreshGroup{refresher: refresher, timeout: timeout}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

// Refresh runs or joins the refresh for refreshToken.
func (g *RefreshGroup) Refresh(ctx context.Context, refreshToken string) (domainauth.TokenPair, error) {
	if refreshToken == "" {
		return domainauth.TokenPair{}, apperrors.Unauthenticated("no refresh token held")
	}

	ch := g.group.DoChan(refreshToken, func() (any, error) {
		detached := context.WithoutCancel(ctx)
		callCtx, cancel := context.WithTimeout(detached, g.timeout)
		defer cancel()
		pair, err := g.refresher.Refresh(callCtx, refreshToken)
		if err != nil {
			return pair, err
		}
		if g.store != nil {
			if storeErr := g.store.Replace(detached, pair); storeErr != nil {
				g.logger.Error("persist refreshed credentials", "error", storeErr)
			}
		}
		return pair, nil
	})

	select {
	case <-ctx.Done():
		return domainauth.TokenPair{}, fmt.Errorf("wait for token refresh: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return domainauth.TokenPair{}, res.Err
		}
		pair, _ := res.Val.(domainauth.TokenPair)
		return pair, nil
	}
}

// persists reports whether the group stores refreshed pairs itself.
func (g *RefreshGroup) persists() bool {
	return g.store != nil
}
