package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/arcwelder/bpmengine/internal/platform/logger"
)

// redisBus wraps a localBus, adding a Redis pub/sub transport so Event
// publications fan out to every worker process, not just the one that
// produced them (spec.md section 5's multi-worker dispatch). It is
// grounded on the teacher's realtime/bus Redis forwarder, adapted from
// a single SSEMessage type to the engine's typed Event.
type redisBus struct {
	local   Bus
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

// RedisConfig names the connection knobs NewRedisBus needs.
type RedisConfig struct {
	Addr    string
	Channel string
}

// NewRedisBus dials addr and starts forwarding locally-published Events
// to cfg.Channel, as well as relaying remote publications on that
// channel back into the local dispatcher (so a handler only ever has to
// Subscribe to one Bus regardless of which process produced the event).
func NewRedisBus(ctx context.Context, cfg RedisConfig, log *logger.Logger) (Bus, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("signal: missing redis address")
	}
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = "bpm_signals"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("signal: redis ping: %w", err)
	}

	b := &redisBus{
		local:   New(),
		log:     log.With("component", "signal.redisBus"),
		rdb:     rdb,
		channel: channel,
	}
	if err := b.startForwarder(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return b, nil
}

func (b *redisBus) Subscribe(sub Subscriber) { b.local.Subscribe(sub) }

func (b *redisBus) Publish(ctx context.Context, evt Event) error {
	raw, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("signal: marshal event: %w", err)
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *redisBus) startForwarder(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("signal: redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var evt Event
				if err := json.Unmarshal([]byte(m.Payload), &evt); err != nil {
					b.log.Warn("bad redis signal payload", "error", err)
					continue
				}
				_ = b.local.Publish(ctx, evt)
			}
		}
	}()
	return nil
}

func (b *redisBus) Close() error {
	_ = b.local.Close()
	return b.rdb.Close()
}
