package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/limaxs-dev/chat-server/internal/metrics"
)

// Scope selects what a limit counts requests against.
type Scope int

const (
	// ScopeIP counts per client address.
	ScopeIP Scope = iota
	// ScopeUser counts per token subject, falling back to the client address
	// when the request carries no valid token.
	ScopeUser
	// ScopeUserAndIP requires both the subject and the address buckets to have room.
	ScopeUserAndIP
)

// RateLimit is a fixed-window limit for requests whose "METHOD /path" starts with Route.
type RateLimit struct {
	Route    string
	Requests int
	Window   time.Duration
	Scope    Scope
}

// DefaultLimits covers the socket upgrade and the authenticated lookups.
var DefaultLimits = []RateLimit{
	{Route: "GET /ws", Requests: 30, Window: time.Minute, Scope: ScopeUserAndIP},
	{Route: "GET /presence/", Requests: 120, Window: time.Minute, Scope: ScopeUser},
	{Route: "GET /api/front/config/webrtc", Requests: 60, Window: time.Minute, Scope: ScopeUser},
}

const (
	violationThreshold = 10
	autoBlockDuration  = 24 * time.Hour
)

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool     // block an IP after repeated violations
	// Verifier resolves token subjects for user-scoped limits. Without one
	// every request is counted by address.
	Verifier TokenVerifier
	Limits   []RateLimit // nil means DefaultLimits
}

// RateLimiter enforces per-user and per-IP request budgets in Redis, so the
// budget is shared by every node.
type RateLimiter struct {
	client    *redis.Client
	verifier  TokenVerifier
	limits    []RateLimit
	whitelist []netip.Prefix
	autoBlock bool
	logger    zerolog.Logger
}

// NewRateLimiter creates a rate limiter.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	limits := cfg.Limits
	if limits == nil {
		limits = DefaultLimits
	}
	rl := &RateLimiter{
		client:    client,
		verifier:  cfg.Verifier,
		limits:    limits,
		autoBlock: cfg.AutoBlockEnabled,
		logger:    logger.With().Str("component", "ratelimit").Logger(),
	}
	for _, entry := range cfg.Whitelist {
		prefix, err := parsePrefix(entry)
		if err != nil {
			rl.logger.Warn().Str("entry", entry).Err(err).Msg("ignoring whitelist entry")
			continue
		}
		rl.whitelist = append(rl.whitelist, prefix)
	}
	return rl
}

func parsePrefix(entry string) (netip.Prefix, error) {
	if strings.Contains(entry, "/") {
		return netip.ParsePrefix(entry)
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func (rl *RateLimiter) isWhitelisted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range rl.whitelist {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// RealIP returns the client address, preferring proxy headers.
func RealIP(r *http.Request) string {
	for _, header := range []string{"X-Forwarded-For", "X-Real-IP"} {
		if v := r.Header.Get(header); v != "" {
			first, _, _ := strings.Cut(v, ",")
			return strings.TrimSpace(first)
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// subject returns the verified user id behind the request's token, or "".
// The socket carries its token in the query string, REST calls in the header.
func (rl *RateLimiter) subject(r *http.Request) string {
	if rl.verifier == nil {
		return ""
	}
	token, ok := bearerToken(r)
	if !ok {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return ""
	}
	identity, err := rl.verifier.Verify(token)
	if err != nil {
		return ""
	}
	return identity.UserID.String()
}

// keys lists the buckets a request is counted in.
func (rl *RateLimiter) keys(limit RateLimit, r *http.Request, ip string) []string {
	base := "ratelimit:" + limit.Route
	ipKey := base + ":ip:" + ip
	if limit.Scope == ScopeIP {
		return []string{ipKey}
	}
	sub := rl.subject(r)
	switch {
	case sub == "":
		return []string{ipKey}
	case limit.Scope == ScopeUser:
		return []string{base + ":user:" + sub}
	default:
		return []string{base + ":user:" + sub, ipKey}
	}
}

func (rl *RateLimiter) match(r *http.Request) (RateLimit, bool) {
	route := r.Method + " " + r.URL.Path
	for _, limit := range rl.limits {
		if strings.HasPrefix(route, limit.Route) {
			return limit, true
		}
	}
	return RateLimit{}, false
}

// hit counts one request in the bucket's current window.
func (rl *RateLimiter) hit(ctx context.Context, key string, window time.Duration, resetAt time.Time) (int64, error) {
	windowKey := key + ":" + strconv.FormatInt(resetAt.Unix(), 10)
	var incr *redis.IntCmd
	_, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, windowKey)
		pipe.Expire(ctx, windowKey, window+time.Second)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Middleware rejects requests over budget with 429. Redis failures let the
// request through.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)
		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}
		if rl.IsBlocked(r.Context(), ip) {
			metrics.BlockedRequests.WithLabelValues("ip_blocked").Inc()
			rl.logger.Warn().Str("ip", ip).Str("path", r.URL.Path).Msg("blocked IP attempted request")
			jsonError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		limit, ok := rl.match(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		resetAt := time.Now().Truncate(limit.Window).Add(limit.Window)
		remaining := limit.Requests
		for _, key := range rl.keys(limit, r, ip) {
			count, err := rl.hit(r.Context(), key, limit.Window, resetAt)
			if err != nil {
				rl.logger.Warn().Err(err).Str("key", key).Msg("rate limit check failed")
				continue
			}
			remaining = min(remaining, limit.Requests-int(count))
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if remaining < 0 {
			metrics.RateLimitHits.WithLabelValues(limit.Route).Inc()
			rl.recordViolation(r.Context(), ip)
			rl.logger.Warn().Str("ip", ip).Str("route", limit.Route).Msg("rate limit exceeded")
			w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(resetAt).Seconds())+1))
			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func blockKey(ip string) string {
	return "ratelimit:blocked:" + ip
}

// IsBlocked reports whether ip is currently banned.
func (rl *RateLimiter) IsBlocked(ctx context.Context, ip string) bool {
	n, err := rl.client.Exists(ctx, blockKey(ip)).Result()
	return err == nil && n > 0
}

// Block bans ip for d.
func (rl *RateLimiter) Block(ctx context.Context, ip string, d time.Duration, reason string) error {
	return rl.client.Set(ctx, blockKey(ip), reason, d).Err()
}

// Unblock lifts a ban.
func (rl *RateLimiter) Unblock(ctx context.Context, ip string) error {
	return rl.client.Del(ctx, blockKey(ip)).Err()
}

func (rl *RateLimiter) recordViolation(ctx context.Context, ip string) {
	if !rl.autoBlock {
		return
	}
	key := "ratelimit:violations:" + ip
	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		return
	}
	rl.client.Expire(ctx, key, time.Hour)
	if count < violationThreshold {
		return
	}
	reason := fmt.Sprintf("%d rate limit violations", count)
	if err := rl.Block(ctx, ip, autoBlockDuration, reason); err != nil {
		rl.logger.Error().Err(err).Str("ip", ip).Msg("failed to block IP")
		return
	}
	rl.logger.Warn().Str("ip", ip).Int64("violations", count).Msg("IP auto-blocked")
}
