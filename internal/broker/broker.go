package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/limaxs-dev/chat-server/internal/metrics"
)

// DefaultPublishTimeout bounds a single publish when none is configured.
const DefaultPublishTimeout = 5 * time.Second

// RedisBroker publishes envelopes to Redis channels.
type RedisBroker struct {
	client  *redis.Client
	logger  zerolog.Logger
	timeout time.Duration
	onError func(channel string, err error)

	wg sync.WaitGroup
}

// NewRedisBroker creates a broker on an existing client.
func NewRedisBroker(client *redis.Client, logger zerolog.Logger, timeout time.Duration) *RedisBroker {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	b := &RedisBroker{
		client:  client,
		logger:  logger.With().Str("component", "broker").Logger(),
		timeout: timeout,
	}
	b.onError = b.logFailure
	return b
}

// OnError replaces the hook invoked when an asynchronous publish fails.
func (b *RedisBroker) OnError(fn func(channel string, err error)) {
	if fn == nil {
		fn = b.logFailure
	}
	b.onError = fn
}

func (b *RedisBroker) logFailure(channel string, err error) {
	b.logger.Error().Err(err).Str("channel", channel).Msg("publish failed")
}

// Publish sends payload to channel and waits for Redis to accept it.
func (b *RedisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	start := time.Now()
	err := b.client.Publish(ctx, channel, payload).Err()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())

	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.BrokerPublishes.WithLabelValues(familyLabel(Family(channel)), result).Inc()

	if err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// PublishAsync publishes in the background. The publish outlives ctx
// cancellation and reports failures to the OnError hook only.
func (b *RedisBroker) PublishAsync(ctx context.Context, channel string, payload []byte) {
	ctx = context.WithoutCancel(ctx)
	onError := b.onError

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.Publish(ctx, channel, payload); err != nil {
			onError(channel, err)
		}
	}()
}

// Wait blocks until in-flight asynchronous publishes finish or ctx is done.
func (b *RedisBroker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
