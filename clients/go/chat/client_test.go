package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limaxs-dev/chat-server/internal/events"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// fakeServer echoes every inbound envelope back as-is after a PRESENCE frame.
func fakeServer(t *testing.T, userID uuid.UUID) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		if r.URL.Query().Get("token") != "good" {
			_ = ws.WriteMessage(websocket.TextMessage, events.ErrorBytes(events.CodeAuthentication, "Invalid token"))
			return
		}
		presence, _ := events.Encode(events.PresenceData{UserID: userID, UserName: "Alice", Status: "online"})
		_ = ws.WriteMessage(websocket.TextMessage, presence)

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			_ = ws.WriteMessage(websocket.TextMessage, data)
		}
	})
	mux.HandleFunc("/presence/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"invalid token"}`))
			return
		}
		json.NewEncoder(w).Encode(PresenceResponse{UserID: userID.String(), Status: "online"})
	})
	mux.HandleFunc("/api/front/config/webrtc", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"iceServers":[{"urls":["stun:stun1.l.google.com:19302"]}]}`))
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"healthy","version":"0.1.0","node":"n1","connections":2,"checks":{"redis":{"status":"pass"}}}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDialReceivesPresence(t *testing.T) {
	user := uuid.New()
	srv := fakeServer(t, user)
	c := NewClient(srv.URL, "good")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	s, err := c.Dial(ctx)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, user, s.Presence.UserID)
	assert.Equal(t, "online", s.Presence.Status)
}

func TestDialRejected(t *testing.T) {
	srv := fakeServer(t, uuid.New())
	c := NewClient(srv.URL, "bad")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := c.Dial(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRejected))
	assert.Contains(t, err.Error(), events.CodeAuthentication)
}

func TestSessionSendHelpers(t *testing.T) {
	srv := fakeServer(t, uuid.New())
	c := NewClient(srv.URL, "good")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	s, err := c.Dial(ctx)
	require.NoError(t, err)
	defer s.Close()

	room, peer := uuid.New(), uuid.New()

	require.NoError(t, s.SendMessage(room, "hi"))
	frame, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, events.SendMsg, frame.Event)
	assert.NotEqual(t, uuid.Nil, frame.TraceID)
	var msg events.SendMessageData
	require.NoError(t, frame.DecodeData(&msg))
	assert.Equal(t, room, msg.RoomID)
	assert.Equal(t, "hi", msg.ContentText)

	require.NoError(t, s.SetTyping(room, true))
	frame, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, events.Typing, frame.Event)

	require.NoError(t, s.SendDescription(peer, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}))
	frame, err = s.Next(ctx)
	require.NoError(t, err)
	var sdp events.SignalSDPData
	require.NoError(t, frame.DecodeData(&sdp))
	assert.Equal(t, "offer", sdp.Type)
	assert.Equal(t, peer, sdp.TargetID)

	mid := "0"
	require.NoError(t, s.Candidate(peer, webrtc.ICECandidateInit{Candidate: "candidate:1", SDPMid: &mid}))
	frame, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, events.SignalICE, frame.Event)
	var ice events.SignalICEData
	require.NoError(t, frame.DecodeData(&ice))
	assert.Equal(t, "candidate:1", ice.Candidate)
	assert.JSONEq(t, `"0"`, string(ice.SDPMid))
	assert.Empty(t, ice.SDPMLineIndex)
}

func TestRESTEndpoints(t *testing.T) {
	user := uuid.New()
	srv := fakeServer(t, user)
	ctx := context.Background()

	c := NewClient(srv.URL, "good")

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 2, health.Connections)

	presence, err := c.Presence(ctx, user.String())
	require.NoError(t, err)
	assert.Equal(t, "online", presence.Status)

	cfg, err := c.WebRTCConfig(ctx)
	require.NoError(t, err)
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, []string{"stun:stun1.l.google.com:19302"}, cfg.ICEServers[0].URLs)

	_, err = NewClient(srv.URL, "bad").Presence(ctx, user.String())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestSocketURL(t *testing.T) {
	c := &Client{BaseURL: "https://chat.example.com/base", Token: "a b"}
	got, err := c.socketURL()
	require.NoError(t, err)
	assert.Equal(t, "wss://chat.example.com/base/ws?token=a+b", got)
}

func TestTokenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := &Client{ConfigDir: dir, Token: "tok"}
	require.NoError(t, c.SaveToken())

	loaded := &Client{ConfigDir: dir}
	require.NoError(t, loaded.LoadToken())
	assert.Equal(t, "tok", loaded.Token)
}
