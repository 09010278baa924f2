package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("NODE_ID", "node-a")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "node-a", cfg.NodeID)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 60*time.Second, cfg.PresenceTTL)
	assert.Equal(t, 300*time.Second, cfg.CallBusyTTL)
	assert.Equal(t, 5*time.Second, cfg.PublishTimeout)
	assert.Equal(t, 256, cfg.WebSocket.SendQueueSize)
	assert.Equal(t, int64(65536), cfg.WebSocket.ReadLimitBytes)
	assert.Equal(t, 25*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, []string{
		"stun:stun1.l.google.com:19302",
		"stun:stun2.l.google.com:19302",
	}, cfg.ICEServers)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("PORT", "9000")
	t.Setenv("CALL_BUSY_TTL", "2m")
	t.Setenv("WS_SEND_QUEUE_SIZE", "8")
	t.Setenv("RATE_LIMIT_WHITELIST", " 10.0.0.0/8 , 127.0.0.1,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr())
	assert.Equal(t, 2*time.Minute, cfg.CallBusyTTL)
	assert.Equal(t, 8, cfg.WebSocket.SendQueueSize)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.RateLimitWhitelist)
}

func TestLoadProductionRequiresStores(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "REDIS_URL")
}

func TestValidateRejectsBadWhitelist(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("RATE_LIMIT_WHITELIST", "not-an-ip")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-an-ip")
}

func TestValidateRejectsPingSlowerThanPong(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("WS_PING_INTERVAL", "90s")

	_, err := Load()
	require.Error(t, err)
}

func TestWebRTCICEServers(t *testing.T) {
	cfg := &Config{
		ICEServers:     []string{"stun:stun1.l.google.com:19302", "turn:turn.example.com:3478"},
		TURNUsername:   "alice",
		TURNCredential: "secret",
	}

	servers := cfg.WebRTCICEServers()
	require.Len(t, servers, 2)
	assert.Equal(t, []string{"stun:stun1.l.google.com:19302"}, servers[0].URLs)
	assert.Empty(t, servers[0].Username)
	assert.Nil(t, servers[0].Credential)
	assert.Equal(t, "alice", servers[1].Username)
	assert.Equal(t, "secret", servers[1].Credential)
}
