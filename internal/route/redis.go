package route

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStream разносит навигацию между репликами. Publish идет через канал Redis,
// Listen отдает локальным подписчикам все сообщения, включая свои.
type RedisStream struct {
	rdb     *redis.Client
	channel string
	logger  *zap.Logger
	subs    subscribers

	retryDelay     time.Duration
	reconnectDelay time.Duration
}

func NewRedisStream(rdb *redis.Client, channel string, logger *zap.Logger) *RedisStream {
	return &RedisStream{
		rdb:            rdb,
		channel:        channel,
		logger:         logger.Named("route-stream").With(zap.String("chan", channel)),
		retryDelay:     5 * time.Second,
		reconnectDelay: 1 * time.Second,
	}
}

func (r *RedisStream) Publish(ctx context.Context, p Params) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode route params: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish route params: %w", err)
	}
	return nil
}

func (r *RedisStream) Subscribe(fn Handler) func() {
	return r.subs.add(fn)
}

// Subscribers число локальных подписчиков.
func (r *RedisStream) Subscribers() int {
	return r.subs.count()
}

// Listen держит подписку до отмены ctx и переподключается после ошибок.
// onReconnect вызывается после каждой успешной подписки.
func (r *RedisStream) Listen(ctx context.Context, onReconnect func()) {
	for {
		pubsub := r.rdb.Subscribe(ctx, r.channel)

		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			r.logger.Error("failed to subscribe", zap.Error(err))
			if !sleep(ctx, r.retryDelay) {
				return
			}
			continue
		}

		if onReconnect != nil {
			onReconnect()
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				_ = pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop
				}
				p, err := decodeParams(msg.Payload)
				if err != nil {
					r.logger.Error("invalid navigation payload", zap.String("payload", msg.Payload), zap.Error(err))
					continue
				}
				r.subs.dispatch(p)
			}
		}

		_ = pubsub.Close()
		if !sleep(ctx, r.reconnectDelay) {
			return
		}
	}
}

func decodeParams(payload string) (Params, error) {
	var p Params
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return Params{}, err
	}
	return p, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
