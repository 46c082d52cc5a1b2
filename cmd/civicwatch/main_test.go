package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicwatch/civicwatch/config"
	"github.com/civicwatch/civicwatch/internal/adapters/memory"
	"github.com/civicwatch/civicwatch/internal/bootstrap"
)

type cliHarness struct {
	store  *memory.Store
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	ctx    *commandContext
}

func newCLIHarness(t *testing.T, handler http.Handler) *cliHarness {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	var cfg config.AppConfig
	cfg.API.BaseURL = srv.URL
	cfg.Storage.Mode = config.StorageModeMemory
	cfg.Sanitize()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &cliHarness{store: memory.NewStore(), stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	h.ctx = &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
		Stdin:  strings.NewReader(""),
		Stdout: h.stdout,
		Stderr: h.stderr,
		openApp: func(ctx context.Context) (*bootstrap.App, error) {
			return bootstrap.NewApp(ctx, bootstrap.AppDeps{
				Config:    cfg,
				Logger:    logger,
				Store:     h.store,
				Transport: srv.Client().Transport,
			})
		},
	}
	return h
}

func (h *cliHarness) run(args ...string) int {
	h.stdout.Reset()
	h.stderr.Reset()
	return run(h.ctx, args)
}

func civicAPI(isOfficer bool) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"accessToken":"T1","refreshToken":"R1"}}`))
	})
	mux.HandleFunc("GET /api/v1/auth/profile", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]bool{"is_officer": isOfficer}})
	})
	mux.HandleFunc("GET /api/v1/auth/is-authed", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer T1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /incidents/{id}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": r.PathValue("id"), "title": "Pothole", "status": "New"})
	})
	mux.HandleFunc("GET /alerts/{id}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": r.PathValue("id"), "title": "Flood", "message": "Stay home"})
	})
	return mux
}

func TestRun_UsageErrors(t *testing.T) {
	h := newCLIHarness(t, civicAPI(false))

	assert.Equal(t, 2, h.run())
	assert.Contains(t, h.stderr.String(), "Usage: civicwatch")

	assert.Equal(t, 2, h.run("dance"))
	assert.Contains(t, h.stderr.String(), `unknown command "dance"`)

	assert.Equal(t, 2, h.run("login"))
	assert.Contains(t, h.stderr.String(), "-identifier")

	assert.Equal(t, 2, h.run("login", "-identifier", "a@x.com", "-role", "admin"))
	assert.Equal(t, 2, h.run("alert-get"))
	assert.Equal(t, 2, h.run("refresh", "-bogus"))
	assert.Equal(t, 2, h.run("watch", "-interval", "0s"))
}

func TestRun_LoginStatusLogout(t *testing.T) {
	h := newCLIHarness(t, civicAPI(false))

	require.Equal(t, 0, h.run("login", "-identifier", "alex@x.com", "-password", "secret"))
	var view statusView
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &view))
	assert.True(t, view.Authenticated)
	assert.True(t, view.HasRefresh)
	assert.False(t, view.IsOfficer)
	assert.Equal(t, map[string]string{"accessToken": "T1", "refreshToken": "R1"}, h.store.Snapshot())

	require.Equal(t, 0, h.run("check"))
	require.Equal(t, 0, h.run("status"))
	assert.Contains(t, h.stdout.String(), `"authenticated": true`)

	require.Equal(t, 0, h.run("logout"))
	assert.Equal(t, "signed out\n", h.stdout.String())
	assert.Empty(t, h.store.Snapshot())

	assert.Equal(t, 1, h.run("check"))
}

func TestRun_LoginReadsPasswordFromStdin(t *testing.T) {
	h := newCLIHarness(t, civicAPI(false))
	h.ctx.Stdin = strings.NewReader("secret\n")

	assert.Equal(t, 0, h.run("login", "-identifier", "alex@x.com"))
}

func TestRun_OfficerCommandsRequireRole(t *testing.T) {
	citizen := newCLIHarness(t, civicAPI(false))
	require.Equal(t, 0, citizen.run("login", "-identifier", "alex@x.com", "-password", "pw"))
	assert.Equal(t, 1, citizen.run("incident-get", "-id", "i-1"))
	assert.Equal(t, 1, citizen.run("alert-save", "-title", "Road closed"))
	assert.Equal(t, 0, citizen.run("alert-get", "-id", "a-1"))
	assert.Contains(t, citizen.stdout.String(), `"title": "Flood"`)

	officer := newCLIHarness(t, civicAPI(true))
	require.Equal(t, 0, officer.run("login", "-identifier", "sam@x.com", "-password", "pw", "-role", "officer"))
	require.Equal(t, 0, officer.run("incident-get", "-id", "i-1"))
	assert.Contains(t, officer.stdout.String(), `"id": "i-1"`)
	assert.Contains(t, officer.stdout.String(), `"notes": []`)
}

func TestRun_SignedOutCommandsFail(t *testing.T) {
	h := newCLIHarness(t, civicAPI(false))

	assert.Equal(t, 1, h.run("alert-get", "-id", "a-1"))
	assert.Equal(t, 1, h.run("refresh"))
}

func TestRun_EphemeralUsesMemoryStore(t *testing.T) {
	h := newCLIHarness(t, civicAPI(false))
	h.ctx.Config.Storage.Mode = config.StorageModeFile
	h.ctx.openApp = nil

	// status stays local, so only the store selection matters here.
	require.Equal(t, 0, h.run("--ephemeral", "status"))
	assert.Equal(t, config.StorageModeMemory, h.ctx.Config.Storage.Mode)
	assert.Contains(t, h.stdout.String(), `"authenticated": false`)
}
