package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/chapterflow/internal/core/domain"
	"github.com/kirillkom/chapterflow/internal/infrastructure/resilience"
)

func NewRedisClient(ctx context.Context, addr, password string, db int) (redis.UniversalClient, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{addr},
		Password:     password,
		DB:           db,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

type relayEnvelope struct {
	SessionID string          `json:"session_id"`
	Frame     json.RawMessage `json:"frame"`
}

// RedisPublisher is the worker-side Sink: frames are relayed to whichever API
// process holds the session.
type RedisPublisher struct {
	client   redis.UniversalClient
	channel  string
	executor *resilience.Executor
	timeout  time.Duration
}

func NewRedisPublisher(client redis.UniversalClient, channel string, executor *resilience.Executor) *RedisPublisher {
	return &RedisPublisher{
		client:   client,
		channel:  channel,
		executor: executor,
		timeout:  2 * time.Second,
	}
}

func (p *RedisPublisher) Deliver(sessionID string, frame []byte) error {
	payload, err := json.Marshal(relayEnvelope{SessionID: sessionID, Frame: frame})
	if err != nil {
		return fmt.Errorf("marshal relay envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	call := func(callCtx context.Context) error {
		if err := p.client.Publish(callCtx, p.channel, payload).Err(); err != nil {
			return domain.WrapError(domain.ErrTemporary, "redis publish", err)
		}
		return nil
	}
	if p.executor != nil {
		return p.executor.Execute(ctx, "redis.publish", call, resilience.TemporaryClassifier)
	}
	return call(ctx)
}

// RedisRelay is the API-side subscriber feeding relayed frames into a local Sink.
type RedisRelay struct {
	client  redis.UniversalClient
	channel string
	sink    Sink
}

func NewRedisRelay(client redis.UniversalClient, channel string, sink Sink) *RedisRelay {
	return &RedisRelay{client: client, channel: channel, sink: sink}
}

func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer func() {
		_ = sub.Close()
	}()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", r.channel, err)
	}
	slog.Info("progress_relay_subscribed", "channel", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.relay(msg.Payload)
		}
	}
}

func (r *RedisRelay) relay(payload string) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil || env.SessionID == "" {
		slog.Warn("progress_relay_malformed", "error", err)
		return
	}
	err := r.sink.Deliver(env.SessionID, env.Frame)
	switch {
	case err == nil:
	case errors.Is(err, ErrNoSession):
		// Held by another API instance, or already gone.
	default:
		slog.Warn("progress_relay_deliver_failed", "session_id", env.SessionID, "error", err)
	}
}
