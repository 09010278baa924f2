package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limaxs-dev/chat-server/internal/store"
)

type fixedCount int

func (c fixedCount) Count() int { return int(c) }

func newTestHandler(t *testing.T, opts Options) (*Handler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	db, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return NewHandler(db, store.NewRedisStoreWithClient(client, store.DefaultPresenceTTL), opts), mr
}

func routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", h.Health)
	r.Get("/presence/{userId}", h.Presence)
	r.Get("/api/front/config/webrtc", h.WebRTCConfig)
	return r
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthy(t *testing.T) {
	h, _ := newTestHandler(t, Options{NodeID: "node-1", Connections: fixedCount(3)})

	rec := get(t, routes(h), "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "node-1", resp.Node)
	assert.Equal(t, 3, resp.Connections)
	assert.Equal(t, "pass", resp.Checks["database"].Status)
	assert.Equal(t, "pass", resp.Checks["redis"].Status)
}

func TestHealthDegradedWhenRedisDown(t *testing.T) {
	h, mr := newTestHandler(t, Options{})
	mr.Close()

	rec := get(t, routes(h), "/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "fail", resp.Checks["redis"].Status)
	assert.Equal(t, "pass", resp.Checks["database"].Status)
}

func TestHealthWithoutStores(t *testing.T) {
	h := NewHandler(nil, nil, Options{})

	rec := get(t, routes(h), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPresence(t *testing.T) {
	h, _ := newTestHandler(t, Options{})
	handler := routes(h)
	online, offline := uuid.New(), uuid.New()
	require.NoError(t, h.redis.SetOnline(context.Background(), online))

	rec := get(t, handler, "/presence/"+online.String())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"userId":"`+online.String()+`","status":"online"}`, rec.Body.String())

	rec = get(t, handler, "/presence/"+offline.String())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"userId":"`+offline.String()+`","status":"offline"}`, rec.Body.String())

	rec = get(t, handler, "/presence/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebRTCConfig(t *testing.T) {
	h := NewHandler(nil, nil, Options{ICEServers: []webrtc.ICEServer{
		{URLs: []string{"stun:stun1.l.google.com:19302"}},
		{URLs: []string{"turn:turn.example.com:3478"}, Username: "u", Credential: "p"},
	}})

	rec := get(t, routes(h), "/api/front/config/webrtc")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		ICEServers []struct {
			URLs       []string `json:"urls"`
			Username   string   `json:"username"`
			Credential string   `json:"credential"`
		} `json:"iceServers"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.ICEServers, 2)
	assert.Equal(t, []string{"stun:stun1.l.google.com:19302"}, resp.ICEServers[0].URLs)
	assert.Equal(t, "u", resp.ICEServers[1].Username)
	assert.Equal(t, "p", resp.ICEServers[1].Credential)
}

func TestWebRTCConfigEmpty(t *testing.T) {
	h := NewHandler(nil, nil, Options{})

	rec := get(t, routes(h), "/api/front/config/webrtc")
	assert.JSONEq(t, `{"iceServers":[]}`, rec.Body.String())
}
