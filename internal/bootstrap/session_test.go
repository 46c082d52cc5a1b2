package bootstrap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/civicwatch/civicwatch/config"
	"github.com/civicwatch/civicwatch/internal/adapters/memory"
	domainauth "github.com/civicwatch/civicwatch/internal/domain/auth"
	"github.com/civicwatch/civicwatch/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAppConfig(baseURL string) config.AppConfig {
	var cfg config.AppConfig
	cfg.API.BaseURL = baseURL
	cfg.Storage.Mode = config.StorageModeMemory
	cfg.Sanitize()
	return cfg
}

func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"accessToken":"a1","refreshToken":"r1"}}`))
	})
	mux.HandleFunc("GET /api/v1/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer a1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"is_officer":true}}`))
	})
	mux.HandleFunc("POST /alerts", func(w http.ResponseWriter, r *http.Request) {
		var draft model.AlertDraft
		if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		draft.ID = "al-1"
		_ = json.NewEncoder(w).Encode(draft)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewApp_WiresSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	srv := newTestAPI(t)
	store := memory.NewStore()

	app, err := NewApp(ctx, AppDeps{
		Config:    testAppConfig(srv.URL),
		Logger:    quietLogger(),
		Store:     store,
		Transport: srv.Client().Transport,
	})
	require.NoError(t, err)
	defer app.Close()

	require.NoError(t, app.Session.Login(ctx, "officer@example.org", "pw", domainauth.RoleOfficer))

	token, ok := app.Session.Session()
	assert.True(t, ok)
	assert.Equal(t, "a1", token)
	assert.True(t, app.Session.IsOfficer())
	assert.Equal(t, map[string]string{"accessToken": "a1", "refreshToken": "r1"}, store.Snapshot())

	saved, err := app.Alerts.Save(ctx, model.AlertDraft{Title: "Road closed", Message: "Main St"})
	require.NoError(t, err)
	assert.Equal(t, "al-1", saved.ID)

	families, err := app.Registry.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "civicwatch_logins_total")
}

func TestNewApp_LoadsPersistedTokens(t *testing.T) {
	srv := newTestAPI(t)
	store := memory.NewStoreWith(map[string]string{"accessToken": "a0", "refreshToken": "r0"})

	app, err := NewApp(context.Background(), AppDeps{
		Config: testAppConfig(srv.URL),
		Logger: quietLogger(),
		Store:  store,
	})
	require.NoError(t, err)
	defer app.Close()

	token, ok := app.Session.Session()
	assert.True(t, ok)
	assert.Equal(t, "a0", token)
	assert.Equal(t, config.StorageMode(""), app.StorageMode())
}

func TestNewApp_OpensConfiguredStore(t *testing.T) {
	app, err := NewApp(context.Background(), AppDeps{
		Config: testAppConfig("http://127.0.0.1:1"),
		Logger: quietLogger(),
	})
	require.NoError(t, err)
	defer app.Close()

	assert.Equal(t, config.StorageModeMemory, app.StorageMode())
	_, ok := app.Session.Session()
	assert.False(t, ok)
}

func TestNewMetricsHandler_ServesRegistry(t *testing.T) {
	srv := newTestAPI(t)
	app, err := NewApp(context.Background(), AppDeps{
		Config: testAppConfig(srv.URL),
		Logger: quietLogger(),
		Store:  memory.NewStore(),
	})
	require.NoError(t, err)
	defer app.Close()
	app.Metrics.Logout()

	rec := httptest.NewRecorder()
	NewMetricsHandler(app.Registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "civicwatch_logouts_total 1"))
}
