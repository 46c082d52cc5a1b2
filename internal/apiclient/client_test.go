package apiclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicwatch/civicwatch/internal/adapters/memory"
	domainauth "github.com/civicwatch/civicwatch/internal/domain/auth"
	apperrors "github.com/civicwatch/civicwatch/internal/errors"
	"github.com/civicwatch/civicwatch/internal/tokenstate"
)

type fixture struct {
	store  *memory.Store
	vault  *tokenstate.Vault
	client *Client
	events []Event
	mu     sync.Mutex
}

func newFixture(t *testing.T, srv *httptest.Server, seed map[string]string) *fixture {
	t.Helper()

	store := memory.NewStoreWith(seed)
	vault := tokenstate.NewVault(store)
	require.NoError(t, vault.Load(context.Background()))

	refresher, err := NewRefresher(RefresherOptions{BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)

	client, err := New(Options{
		BaseURL:       srv.URL,
		UserAgent:     "civicwatch-test",
		Credentials:   vault,
		Refresh:       NewRefreshGroup(refresher, time.Second, WithPairStore(vault)),
		BaseTransport: srv.Client().Transport,
	})
	require.NoError(t, err)

	f := &fixture{store: store, vault: vault, client: client}
	client.Observe(ObserverFunc(func(e Event) {
		f.mu.Lock()
		f.events = append(f.events, e)
		f.mu.Unlock()
	}))
	return f
}

func (f *fixture) seen() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestTransport_AttachesBearerToken(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	f := newFixture(t, srv, map[string]string{domainauth.KeyAccessToken: "abc"})
	_, err := f.client.Get(context.Background(), "/api/v1/auth/is-authed")
	require.NoError(t, err)

	assert.Equal(t, "Bearer abc", got.Get("Authorization"))
	assert.NotEmpty(t, got.Get(HeaderRequestID))
	assert.Equal(t, "civicwatch-test", got.Get("User-Agent"))
}

func TestTransport_NoTokenLeavesHeaderAbsent(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newFixture(t, srv, nil)
	_, err := f.client.Get(context.Background(), "/alerts/1")
	require.NoError(t, err)

	_, present := got["Authorization"]
	assert.False(t, present)
}

func TestTransport_DoesNotMutateCallerRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newFixture(t, srv, map[string]string{domainauth.KeyAccessToken: "abc"})
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/x", nil)
	require.NoError(t, err)

	resp, err := f.client.http.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "missing"})
	}))
	defer srv.Close()

	f := newFixture(t, srv, nil)
	_, err := f.client.Get(context.Background(), "/alerts/404")
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, "/alerts/404", se.Path)
	assert.Contains(t, string(se.Body), "missing")
	assert.True(t, apperrors.IsNotFound(err))
	assert.Equal(t, http.StatusNotFound, StatusCode(err))
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	f := newFixture(t, srv, nil)
	srv.Close()

	_, err := f.client.Get(context.Background(), "/alerts/1")
	require.Error(t, err)
	assert.True(t, apperrors.IsTransport(err))
	assert.Zero(t, StatusCode(err))
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Options{})
	assert.True(t, apperrors.IsValidation(err))
}

func TestResponse_Decode(t *testing.T) {
	var v struct{ A int }
	require.NoError(t, (&Response{Body: []byte(`{"A":1}`)}).Decode(&v))
	assert.Equal(t, 1, v.A)

	assert.True(t, apperrors.IsUpstream((&Response{}).Decode(&v)))
	assert.True(t, apperrors.IsUpstream((&Response{Body: []byte("<html>")}).Decode(&v)))
}

func TestTransport_RetryWithRefreshedToken(t *testing.T) {
	var refreshBodies []string
	var resourceAuth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case DefaultRefreshPath:
			b, _ := io.ReadAll(r.Body)
			refreshBodies = append(refreshBodies, string(b))
			assert.Empty(t, r.Header.Get("Authorization"), "refresh must be unauthenticated")
			writeJSON(w, http.StatusOK, map[string]string{"accessToken": "T2"})
		case "/alerts/7":
			resourceAuth = append(resourceAuth, r.Header.Get("Authorization"))
			if r.Header.Get("Authorization") != "Bearer T2" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"id": "7"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	f := newFixture(t, srv, map[string]string{
		domainauth.KeyAccessToken:  "T1",
		domainauth.KeyRefreshToken: "R1",
	})

	resp, err := f.client.Get(context.Background(), "/alerts/7")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, []string{"Bearer T1", "Bearer T2"}, resourceAuth)
	assert.JSONEq(t, `{"refreshToken":"R1"}`, refreshBodies[0])
	assert.Equal(t, "T2", f.store.Snapshot()[domainauth.KeyAccessToken])
	assert.Equal(t, "R1", f.store.Snapshot()[domainauth.KeyRefreshToken])
	assert.Equal(t, []Event{EventSessionExpired, EventSessionRefreshed}, f.seen())
}

func TestTransport_RetryReplaysBody(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == DefaultRefreshPath {
			writeJSON(w, http.StatusOK, map[string]any{"data": map[string]string{"accessToken": "T2", "refreshToken": "R2"}})
			return
		}
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if r.Header.Get("Authorization") != "Bearer T2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	f := newFixture(t, srv, map[string]string{
		domainauth.KeyAccessToken:  "T1",
		domainauth.KeyRefreshToken: "R1",
	})

	_, err := f.client.Post(context.Background(), "/alerts", map[string]string{"title": "Flood"})
	require.NoError(t, err)

	require.Len(t, bodies, 2)
	assert.Equal(t, bodies[0], bodies[1])
	assert.JSONEq(t, `{"title":"Flood"}`, bodies[1])
	assert.Equal(t, "R2", f.store.Snapshot()[domainauth.KeyRefreshToken])
}

func TestTransport_SecondUnauthorizedNotRetried(t *testing.T) {
	var refreshes, resource atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == DefaultRefreshPath {
			refreshes.Add(1)
			writeJSON(w, http.StatusOK, map[string]string{"accessToken": "T2"})
			return
		}
		resource.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	f := newFixture(t, srv, map[string]string{
		domainauth.KeyAccessToken:  "T1",
		domainauth.KeyRefreshToken: "R1",
	})

	_, err := f.client.Get(context.Background(), "/alerts/1")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
	assert.Equal(t, int32(1), refreshes.Load())
	assert.Equal(t, int32(2), resource.Load())
}

func TestTransport_RefreshFailureClearsBothTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == DefaultRefreshPath {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "expired"})
	}))
	defer srv.Close()

	f := newFixture(t, srv, map[string]string{
		domainauth.KeyAccessToken:  "T1",
		domainauth.KeyRefreshToken: "R1",
	})

	_, err := f.client.Get(context.Background(), "/incidents/1")
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Contains(t, string(se.Body), "expired", "original 401 is returned")

	assert.Empty(t, f.store.Snapshot())
	_, ok := f.vault.AccessToken()
	assert.False(t, ok)
	assert.Equal(t, []Event{EventSessionExpired, EventSessionTerminated}, f.seen())
}

func TestTransport_NoRefreshTokenReturnsUnauthorized(t *testing.T) {
	var refreshes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == DefaultRefreshPath {
			refreshes.Add(1)
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	f := newFixture(t, srv, map[string]string{domainauth.KeyAccessToken: "T1"})

	_, err := f.client.Get(context.Background(), "/alerts/1")
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
	assert.Zero(t, refreshes.Load())
	assert.Empty(t, f.seen())
	assert.Equal(t, "T1", f.store.Snapshot()[domainauth.KeyAccessToken], "tokens untouched")
}

func TestTransport_ConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	const n = 8
	var refreshes, unauthorized atomic.Int32
	allUnauthorized := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == DefaultRefreshPath {
			refreshes.Add(1)
			select {
			case <-allUnauthorized:
			case <-time.After(2 * time.Second):
			}
			// Let late waiters join the in-flight call.
			time.Sleep(100 * time.Millisecond)
			writeJSON(w, http.StatusOK, map[string]string{"accessToken": "T2"})
			return
		}
		if r.Header.Get("Authorization") == "Bearer T2" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if unauthorized.Add(1) == n {
			close(allUnauthorized)
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	f := newFixture(t, srv, map[string]string{
		domainauth.KeyAccessToken:  "T1",
		domainauth.KeyRefreshToken: "R1",
	})

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.client.Get(context.Background(), "/alerts/1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), refreshes.Load())
	assert.Equal(t, "T2", f.store.Snapshot()[domainauth.KeyAccessToken])
}

func TestTransport_CallerDeadlineKeepsSessionAndStoresLateRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == DefaultRefreshPath {
			time.Sleep(300 * time.Millisecond)
			writeJSON(w, http.StatusOK, map[string]string{"accessToken": "T2", "refreshToken": "R2"})
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	f := newFixture(t, srv, map[string]string{
		domainauth.KeyAccessToken:  "T1",
		domainauth.KeyRefreshToken: "R1",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := f.client.Get(ctx, "/alerts/1")
	require.Error(t, err)

	snap := f.store.Snapshot()
	assert.Equal(t, "T1", snap[domainauth.KeyAccessToken], "abandoned wait must not clear storage")
	assert.Equal(t, "R1", snap[domainauth.KeyRefreshToken])
	tok, ok := f.vault.AccessToken()
	assert.True(t, ok)
	assert.Equal(t, "T1", tok)
	assert.NotContains(t, f.seen(), EventSessionTerminated)

	require.Eventually(t, func() bool {
		snap := f.store.Snapshot()
		return snap[domainauth.KeyAccessToken] == "T2" && snap[domainauth.KeyRefreshToken] == "R2"
	}, 2*time.Second, 20*time.Millisecond)
	tok, _ = f.vault.AccessToken()
	assert.Equal(t, "T2", tok)
}
