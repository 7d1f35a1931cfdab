package api

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"possync/internal/config"
	"possync/internal/credentials"
	"possync/internal/database"
	"possync/internal/events"
	"possync/internal/repository"
	"possync/internal/service"
	possync "possync/internal/sync"
	"possync/internal/worker"
)

type mapSecretStore map[string]string

func (s mapSecretStore) Save(account, secret string) error { s[account] = secret; return nil }
func (s mapSecretStore) Load(account string) string        { return s[account] }
func (s mapSecretStore) Clear(account string) error        { delete(s, account); return nil }

func newTestServer(t *testing.T, cfg config.IPCConfig) (*HTTPServer, *credentials.Manager) {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	bus := events.NewEventBus()
	states := repository.NewMemoryStateRepository(time.Hour)
	creds := credentials.NewManager(mapSecretStore{}, &logger)
	bookings := service.NewBookingService(db, bus, &logger)

	syncCfg := config.SyncConfig{RoomID: "5"}
	engine := possync.NewEngine(db, creds, states, bus, syncCfg, &logger)
	syncWorker := worker.NewSyncWorker(engine, syncCfg, worker.RetryPolicy{}, &logger)

	return NewHTTPServer(cfg, db, bookings, engine, syncWorker, creds, states, &logger), creds
}

func TestHandleBookings_Created(t *testing.T) {
	srv, _ := newTestServer(t, config.IPCConfig{})

	body := `{"customer_name":"Test","starts_at":"2026-09-01T15:00:00Z","ends_at":"2026-09-01T17:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleBookings(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "booking_id")
	assert.Contains(t, w.Body.String(), `"queue_size":1`)
}

func TestHandleBookings_InvalidBody(t *testing.T) {
	srv, _ := newTestServer(t, config.IPCConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(`{bad json`))
	w := httptest.NewRecorder()
	srv.handleBookings(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleBookings_MethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, config.IPCConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings", http.NoBody)
	w := httptest.NewRecorder()
	srv.handleBookings(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandleRoomStatus(t *testing.T) {
	srv, _ := newTestServer(t, config.IPCConfig{})

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/rooms/9/status", strings.NewReader(`{"status":"closed"}`))
	w := httptest.NewRecorder()
	srv.handleRoomStatus(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "outbox_id")
}

func TestHandleSyncStatus(t *testing.T) {
	srv, _ := newTestServer(t, config.IPCConfig{})

	body := `{"customer_name":"Test","starts_at":"2026-09-01T15:00:00Z","ends_at":"2026-09-01T17:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(body))
	srv.handleBookings(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/sync/status", http.NoBody)
	w := httptest.NewRecorder()
	srv.handleSyncStatus(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"queue_size":1`)
	assert.Contains(t, w.Body.String(), `"syncing":false`)
	assert.Contains(t, w.Body.String(), "device_id")
}

func TestHandleSyncRun(t *testing.T) {
	srv, _ := newTestServer(t, config.IPCConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/run", http.NoBody)
	w := httptest.NewRecorder()
	srv.handleSyncRun(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestHandleSession(t *testing.T) {
	srv, creds := newTestServer(t, config.IPCConfig{})

	body := `{
		"access_token": "tok-1",
		"expires_at": "2030-01-01T00:00:00Z",
		"refresh_token": "refresh-1",
		"cookies": ["sid=abc; Path=/; HttpOnly"],
		"user": {"id": "u1", "name": "Operator"}
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/session", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleSession(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "tok-1", creds.AccessToken())
	assert.Equal(t, "sid=abc", creds.SessionCookieHeader())
	assert.Equal(t, "refresh-1", creds.LoadRefreshToken())
	require.NotNil(t, creds.AuthenticatedUser())
	assert.Equal(t, "Operator", creds.AuthenticatedUser().Name)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/session", http.NoBody)
	w = httptest.NewRecorder()
	srv.handleSession(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, creds.AccessToken())
	assert.Empty(t, creds.LoadRefreshToken())
}

func TestHandleSession_MissingToken(t *testing.T) {
	srv, _ := newTestServer(t, config.IPCConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	srv.handleSession(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleHealthz(t *testing.T) {
	srv, _ := newTestServer(t, config.IPCConfig{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	w := httptest.NewRecorder()
	srv.handleHealthz(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_APIKey(t *testing.T) {
	cfg := config.IPCConfig{
		Auth: config.IPCAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			APIKeys:      []config.IPCClientKey{{Key: "secret-key", Name: "shell"}},
		},
	}
	auth := NewHTTPAuth(cfg)
	handler := auth.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("MissingKey", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("WrongKey", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		req.Header.Set("x-api-key", "wrong")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("ValidKey", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		req.Header.Set("x-api-key", "secret-key")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestAuth_RateLimit(t *testing.T) {
	cfg := config.IPCConfig{
		RateLimit: config.IPCRateLimitConfig{RPS: 1, Burst: 2},
	}
	auth := NewHTTPAuth(cfg)
	handler := auth.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		req.RemoteAddr = "127.0.0.1:5000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Equal(t, http.StatusTooManyRequests, codes[2])
	assert.Equal(t, http.StatusTooManyRequests, codes[3])
}
