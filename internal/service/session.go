package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/civicwatch/civicwatch/internal/apiclient"
	"github.com/civicwatch/civicwatch/internal/clock"
	domainauth "github.com/civicwatch/civicwatch/internal/domain/auth"
	apperrors "github.com/civicwatch/civicwatch/internal/errors"
	"github.com/civicwatch/civicwatch/internal/observability/metrics"
	"github.com/civicwatch/civicwatch/internal/ports"
	"github.com/civicwatch/civicwatch/internal/tokenstate"
)

// Default endpoint paths and limits.
const (
	DefaultLoginPath           = "/api/v1/auth/login"
	DefaultProfilePath         = "/api/v1/auth/profile"
	DefaultLivenessPath        = "/api/v1/auth/is-authed"
	DefaultRefreshMinInterval  = 5 * time.Second
	DefaultLivenessMaxAttempts = 3
)

var (
	// ErrUnauthenticated is returned by Authorize when no session is held.
	ErrUnauthenticated = apperrors.Unauthenticated("sign in required")
	// ErrForbidden is returned by Authorize when officer access is required.
	ErrForbidden = apperrors.Forbidden("officer access required")
)

// APIClient is the subset of *apiclient.Client used by the services.
type APIClient interface {
	Get(ctx context.Context, path string) (*apiclient.Response, error)
	Post(ctx context.Context, path string, body any) (*apiclient.Response, error)
	Put(ctx context.Context, path string, body any) (*apiclient.Response, error)
}

// eventSource is implemented by clients that report interceptor session events.
type eventSource interface {
	Observe(apiclient.Observer) func()
}

// AuthPaths are the auth endpoint paths relative to the API base URL.
type AuthPaths struct {
	Login    string
	Profile  string
	Liveness string
}

// SessionServiceOptions groups dependencies for SessionService.
type SessionServiceOptions struct {
	Client  APIClient            // Required
	Vault   *tokenstate.Vault    // Required
	Tokens  ports.TokenRefresher // Required: normally the shared *apiclient.RefreshGroup
	Paths   AuthPaths            // Optional: defaults to the v1 auth paths
	Clock   clock.Clock          // Optional: defaults to clock.Real
	Logger  *slog.Logger         // Optional
	Metrics *metrics.Recorder    // Optional

	RefreshMinInterval  time.Duration
	LivenessMaxAttempts int
}

// SessionService owns the signed-in state: the token pair, the officer flag and the refresh gate.
type SessionService struct {
	client   APIClient
	vault    *tokenstate.Vault
	tokens   ports.TokenRefresher
	paths    AuthPaths
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Recorder
	interval time.Duration
	attempts int

	mu               sync.Mutex
	isOfficer        bool
	expired          bool
	lastRefreshCheck time.Time
	subs             map[int]func(domainauth.Snapshot)
	nextSub          int

	unobserve func()
}

// NewSessionService constructs a SessionService.
func NewSessionService(opts SessionServiceOptions) (*SessionService, error) {
	if opts.Client == nil {
		return nil, errors.New("API client is required")
	}
	if opts.Vault == nil {
		return nil, errors.New("token vault is required")
	}
	if opts.Tokens == nil {
		return nil, errors.New("token refresher is required")
	}

	s := &SessionService{
		client:   opts.Client,
		vault:    opts.Vault,
		tokens:   opts.Tokens,
		paths:    withDefaultPaths(opts.Paths),
		clock:    opts.Clock,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		interval: opts.RefreshMinInterval,
		attempts: opts.LivenessMaxAttempts,
		subs:     make(map[int]func(domainauth.Snapshot)),
	}
	if s.clock == nil {
		s.clock = clock.Real{}
	}
	// The gate starts closed; the first unforced refresh waits one interval.
	s.lastRefreshCheck = s.clock.Now()
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.interval <= 0 {
		s.interval = DefaultRefreshMinInterval
	}
	if s.attempts <= 0 {
		s.attempts = DefaultLivenessMaxAttempts
	}

	s.vault.Access().Subscribe(s.onAccessToken)
	if src, ok := opts.Client.(eventSource); ok {
		s.unobserve = src.Observe(apiclient.ObserverFunc(s.onTransportEvent))
	}
	return s, nil
}

// MustNewSessionService constructs a SessionService and panics on error.
func MustNewSessionService(opts SessionServiceOptions) *SessionService {
	svc, err := NewSessionService(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
	}
	return svc
}

func withDefaultPaths(p AuthPaths) AuthPaths {
	if p.Login == "" {
		p.Login = DefaultLoginPath
	}
	if p.Profile == "" {
		p.Profile = DefaultProfilePath
	}
	if p.Liveness == "" {
		p.Liveness = DefaultLivenessPath
	}
	return p
}

// Close stops listening for transport events.
func (s *SessionService) Close() {
	if s.unobserve != nil {
		s.unobserve()
	}
}

// Session returns the access token when signed in.
func (s *SessionService) Session() (string, bool) {
	return s.vault.AccessToken()
}

// IsOfficer reports the officer flag. It is false whenever no session is held.
func (s *SessionService) IsOfficer() bool {
	return s.Snapshot().IsOfficer
}

// State returns the session validity state.
func (s *SessionService) State() domainauth.State {
	return s.Snapshot().State
}

// Snapshot returns the observable session state.
func (s *SessionService) Snapshot() domainauth.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *SessionService) snapshotLocked() domainauth.Snapshot {
	access := s.vault.Access().Value()
	tok, ok := access.Token, access.Present
	snap := domainauth.Snapshot{Session: tok, HasSession: ok, Loading: access.Loading}
	switch {
	case !ok:
		snap.State = domainauth.StateUnauthenticated
	case s.expired:
		snap.State = domainauth.StateExpired
	default:
		snap.State = domainauth.StateAuthenticated
	}
	snap.IsOfficer = ok && s.isOfficer
	return snap
}

// Subscribe registers fn for session changes. The returned func unregisters it.
func (s *SessionService) Subscribe(fn func(domainauth.Snapshot)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// update applies fn under the lock and notifies subscribers if the snapshot changed.
func (s *SessionService) update(fn func()) {
	s.mu.Lock()
	before := s.snapshotLocked()
	if fn != nil {
		fn()
	}
	after := s.snapshotLocked()
	subs := make([]func(domainauth.Snapshot), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	if before == after {
		return
	}
	for _, sub := range subs {
		sub(after)
	}
}

func (s *SessionService) onAccessToken(v tokenstate.Value) {
	s.update(func() {
		// A new access token ends the expired state.
		if v.Present {
			s.expired = false
		}
	})
}

func (s *SessionService) onTransportEvent(e apiclient.Event) {
	switch e {
	case apiclient.EventSessionExpired:
		s.update(func() { s.expired = true })
	case apiclient.EventSessionRefreshed:
		s.update(func() { s.expired = false })
	case apiclient.EventSessionTerminated:
		s.update(func() {
			s.expired = false
			s.isOfficer = false
		})
	}
}

type loginRequest struct {
	Identifier string          `json:"identifier"`
	Password   string          `json:"password"`
	Role       domainauth.Role `json:"role"`
}

type tokenEnvelope struct {
	Data domainauth.TokenPair `json:"data"`
}

type profileEnvelope struct {
	Data domainauth.Profile `json:"data"`
}

// Login exchanges credentials for a token pair, then loads the officer flag.
// A failed profile lookup is returned; the tokens stay stored and the flag unchanged.
func (s *SessionService) Login(ctx context.Context, identifier, password string, role domainauth.Role) error {
	parsed, err := domainauth.ParseRole(string(role))
	if err != nil {
		return apperrors.ValidationField("role", err.Error())
	}

	resp, err := s.client.Post(ctx, s.paths.Login, loginRequest{Identifier: identifier, Password: password, Role: parsed})
	if err != nil {
		s.metrics.Login(metrics.ResultError, err)
		return fmt.Errorf("login: %w", err)
	}
	var env tokenEnvelope
	if err := resp.Decode(&env); err != nil {
		s.metrics.Login(metrics.ResultError, err)
		return fmt.Errorf("login: %w", err)
	}
	if env.Data.AccessToken == "" {
		err := &apperrors.AppError{Code: apperrors.ErrCodeUpstream, Message: "login response carried no access token"}
		s.metrics.Login(metrics.ResultError, err)
		return fmt.Errorf("login: %w", err)
	}

	if err := s.vault.Replace(ctx, env.Data); err != nil {
		// The session is held in memory; the holder already reported the failure.
		s.logger.WarnContext(ctx, "login tokens not persisted", "error", err)
	}
	s.metrics.Login(metrics.ResultSuccess, nil)
	s.logger.InfoContext(ctx, "signed in", "role", parsed)

	if err := s.LoadProfile(ctx); err != nil {
		s.logger.WarnContext(ctx, "profile lookup failed", "error", err)
		return fmt.Errorf("login: %w", err)
	}
	return nil
}

// LoadProfile fetches the officer flag for the held session.
// The flag is kept in memory only, so a new process calls this before officer-only work.
func (s *SessionService) LoadProfile(ctx context.Context) error {
	if _, ok := s.vault.AccessToken(); !ok {
		return ErrUnauthenticated
	}
	resp, err := s.client.Get(ctx, s.paths.Profile)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	var env profileEnvelope
	if err := resp.Decode(&env); err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	s.update(func() { s.isOfficer = env.Data.IsOfficer })
	return nil
}

// Logout clears both tokens and the officer flag. It never contacts the server.
// Memory is always cleared; a storage failure is returned for reporting.
func (s *SessionService) Logout(ctx context.Context) error {
	err := s.vault.Clear(ctx)
	s.update(func() {
		s.isOfficer = false
		s.expired = false
	})
	s.metrics.Logout()
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// CheckAuthed verifies the session with the liveness endpoint.
//
// Any error logs out without refreshing. A 2xx other than 204 logs out, then forces a
// refresh with the refresh token held before logout and re-checks on success. Re-checks
// are bounded; exhausting them leaves the session signed out.
func (s *SessionService) CheckAuthed(ctx context.Context) domainauth.State {
	for attempt := 1; attempt <= s.attempts; attempt++ {
		resp, err := s.client.Get(ctx, s.paths.Liveness)
		if err != nil {
			s.logger.InfoContext(ctx, "liveness check failed, signing out", "error", err)
			s.logoutQuietly(ctx)
			return s.finishCheck()
		}
		if resp.StatusCode == http.StatusNoContent {
			return s.finishCheck()
		}

		s.logger.InfoContext(ctx, "session not confirmed, refreshing", "status", resp.StatusCode, "attempt", attempt)
		captured, _ := s.vault.RefreshToken()
		s.logoutQuietly(ctx)
		if !s.refreshWith(ctx, captured, true) {
			return s.finishCheck()
		}
	}

	s.logger.WarnContext(ctx, "liveness re-checks exhausted, signing out", "attempts", s.attempts)
	s.logoutQuietly(ctx)
	return s.finishCheck()
}

func (s *SessionService) finishCheck() domainauth.State {
	state := s.State()
	s.metrics.Liveness(string(state))
	return state
}

func (s *SessionService) logoutQuietly(ctx context.Context) {
	if err := s.Logout(ctx); err != nil {
		s.logger.WarnContext(ctx, "logout storage failure", "error", err)
	}
}

// RefreshToken refreshes the token pair at most once per refresh interval unless forced.
// It returns false without a network call when throttled.
func (s *SessionService) RefreshToken(ctx context.Context, ignoreTimeCheck bool) bool {
	token, _ := s.vault.RefreshToken()
	return s.refreshWith(ctx, token, ignoreTimeCheck)
}

func (s *SessionService) refreshWith(ctx context.Context, refreshToken string, force bool) bool {
	if !s.passGate(force) {
		s.metrics.Refresh(metrics.SourceController, metrics.ResultSuppressed, nil)
		return false
	}

	if refreshToken == "" {
		s.metrics.Refresh(metrics.SourceController, metrics.ResultSkipped, nil)
		s.clearRefreshToken(ctx)
		return false
	}

	pair, err := s.tokens.Refresh(ctx, refreshToken)
	if err != nil {
		s.metrics.Refresh(metrics.SourceController, metrics.ResultError, err)
		if ctx.Err() != nil {
			// Abandoned wait; the shared refresh may still land.
			s.logger.DebugContext(ctx, "stopped waiting for token refresh", "error", err)
			return false
		}
		s.logger.InfoContext(ctx, "token refresh failed", "error", err)
		s.clearRefreshToken(context.WithoutCancel(ctx))
		return false
	}

	if pair.RefreshToken == "" {
		// Access-only responses keep the refresh token that was exchanged.
		pair.RefreshToken = refreshToken
	}
	if err := s.vault.Replace(context.WithoutCancel(ctx), pair); err != nil {
		s.logger.WarnContext(ctx, "refreshed tokens not persisted", "error", err)
	}
	s.update(func() { s.expired = false })
	s.metrics.Refresh(metrics.SourceController, metrics.ResultSuccess, nil)
	return true
}

// passGate checks and advances the refresh gate under one lock.
func (s *SessionService) passGate(force bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	if !force && !now.After(s.lastRefreshCheck.Add(s.interval)) {
		return false
	}
	s.lastRefreshCheck = now
	return true
}

func (s *SessionService) clearRefreshToken(ctx context.Context) {
	if err := s.vault.ClearRefreshToken(ctx); err != nil {
		s.logger.WarnContext(ctx, "clear refresh token", "error", err)
	}
}

// Start loads stored tokens, then verifies the session once.
func (s *SessionService) Start(ctx context.Context) domainauth.State {
	if err := s.vault.Load(ctx); err != nil {
		s.logger.WarnContext(ctx, "stored credentials unavailable", "error", err)
	}
	return s.CheckAuthed(ctx)
}

// Watch runs Start, then re-verifies the session every interval until ctx ends.
// Ticks are skipped while no token of either kind is held.
func (s *SessionService) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return apperrors.ValidationField("interval", "watch interval must be positive")
	}

	state := s.Start(ctx)
	s.logger.InfoContext(ctx, "watching session", "interval", interval, "state", state)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "session watch stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			_, hasAccess := s.vault.AccessToken()
			_, hasRefresh := s.vault.RefreshToken()
			if !hasAccess && !hasRefresh {
				continue
			}
			s.CheckAuthed(ctx)
		}
	}
}

// Authorize gates access to signed-in or officer-only features.
func (s *SessionService) Authorize(officerOnly bool) error {
	snap := s.Snapshot()
	if !snap.HasSession {
		return ErrUnauthenticated
	}
	if officerOnly && !snap.IsOfficer {
		return ErrForbidden
	}
	return nil
}
