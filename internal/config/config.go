package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pion/webrtc/v4"
)

// Config holds all configuration for the application.
type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	Env      string `env:"ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	NodeID   string `env:"NODE_ID"`

	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"./data/chat.db"`
	RedisURL    string `env:"REDIS_URL"`

	// Token verification
	JWTPublicKeyPath string `env:"JWT_PUBLIC_KEY_PATH" envDefault:"keys/public-key.pem"`
	JWTPublicKey     string `env:"JWT_PUBLIC_KEY"` // inline PEM, wins over the path

	PresenceTTL    time.Duration `env:"PRESENCE_TTL" envDefault:"60s"`
	CallBusyTTL    time.Duration `env:"CALL_BUSY_TTL" envDefault:"300s"`
	PublishTimeout time.Duration `env:"PUBLISH_TIMEOUT" envDefault:"5s"`

	WebSocket WebSocket

	// WebRTC
	ICEServers     []string `env:"ICE_SERVERS" envSeparator:"," envDefault:"stun:stun1.l.google.com:19302,stun:stun2.l.google.com:19302"`
	TURNUsername   string   `env:"TURN_USERNAME"`
	TURNCredential string   `env:"TURN_CREDENTIAL"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	// Rate limiting
	RateLimitWhitelist []string `env:"RATE_LIMIT_WHITELIST" envSeparator:","` // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     `env:"AUTO_BLOCK_ENABLED" envDefault:"false"` // Enable auto-blocking after repeated violations
}

// WebSocket tunes per-connection transport behaviour.
type WebSocket struct {
	SendQueueSize  int           `env:"WS_SEND_QUEUE_SIZE" envDefault:"256"`
	ReadLimitBytes int64         `env:"WS_READ_LIMIT_BYTES" envDefault:"65536"`
	WriteTimeout   time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"10s"`
	PongWait       time.Duration `env:"WS_PONG_WAIT" envDefault:"60s"`
	PingInterval   time.Duration `env:"WS_PING_INTERVAL" envDefault:"25s"`
	FrameRate      float64       `env:"WS_FRAME_RATE" envDefault:"20"`
	FrameBurst     int           `env:"WS_FRAME_BURST" envDefault:"40"`
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
func Load() (*Config, error) {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	if c.NodeID == "" {
		if host, err := os.Hostname(); err == nil {
			c.NodeID = host
		} else {
			c.NodeID = "chat-node"
		}
	}
	c.ICEServers = trimAll(c.ICEServers)
	c.AllowedOrigins = trimAll(c.AllowedOrigins)
	c.RateLimitWhitelist = trimAll(c.RateLimitWhitelist)
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	var errs []error

	// In production, require database, redis and a verification key
	if c.Env == "production" {
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required in production"))
		}
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required in production"))
		}
		if c.JWTPublicKey == "" && c.JWTPublicKeyPath == "" {
			errs = append(errs, errors.New("JWT_PUBLIC_KEY or JWT_PUBLIC_KEY_PATH is required in production"))
		}
	}

	ws := c.WebSocket
	if ws.SendQueueSize <= 0 {
		errs = append(errs, errors.New("WS_SEND_QUEUE_SIZE must be positive"))
	}
	if ws.ReadLimitBytes <= 0 {
		errs = append(errs, errors.New("WS_READ_LIMIT_BYTES must be positive"))
	}
	if ws.PingInterval <= 0 || ws.PongWait <= ws.PingInterval {
		errs = append(errs, errors.New("WS_PING_INTERVAL must be positive and shorter than WS_PONG_WAIT"))
	}
	if ws.FrameRate <= 0 || ws.FrameBurst <= 0 {
		errs = append(errs, errors.New("WS_FRAME_RATE and WS_FRAME_BURST must be positive"))
	}
	if c.PresenceTTL <= 0 || c.CallBusyTTL <= 0 {
		errs = append(errs, errors.New("PRESENCE_TTL and CALL_BUSY_TTL must be positive"))
	}

	for _, entry := range c.RateLimitWhitelist {
		if net.ParseIP(entry) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(entry); err != nil {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_WHITELIST: invalid entry %q", entry))
		}
	}

	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// WebRTCICEServers builds the ICE server list handed to clients. TURN credentials
// are attached only to turn: and turns: URLs.
func (c *Config) WebRTCICEServers() []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, url := range c.ICEServers {
		server := webrtc.ICEServer{URLs: []string{url}}
		if strings.HasPrefix(url, "turn:") || strings.HasPrefix(url, "turns:") {
			server.Username = c.TURNUsername
			if c.TURNCredential != "" {
				server.Credential = c.TURNCredential
			}
		}
		servers = append(servers, server)
	}
	return servers
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, entry := range in {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
