package route

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const testChannel = "perfdash:test:navigation"

func newTestRedisStream(t *testing.T) (*RedisStream, *miniredis.Miniredis, *redis.Client, *observer.ObservedLogs) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
	t.Cleanup(func() { _ = rdb.Close() })

	core, logs := observer.New(zap.DebugLevel)
	s := NewRedisStream(rdb, testChannel, zap.New(core))
	s.retryDelay = 10 * time.Millisecond
	s.reconnectDelay = 10 * time.Millisecond
	return s, mr, rdb, logs
}

// listen запускает Listen и ждет первой подписки.
func listen(t *testing.T, s *RedisStream) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	subscribed := make(chan struct{}, 1)
	go func() {
		defer close(done)
		s.Listen(ctx, func() {
			select {
			case subscribed <- struct{}{}:
			default:
			}
		})
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-subscribed:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not subscribe")
	}
}

func collect(s *RedisStream) (<-chan Params, func()) {
	ch := make(chan Params, 16)
	return ch, s.Subscribe(func(p Params) { ch <- p })
}

func receive(t *testing.T, ch <-chan Params) Params {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("no navigation delivered")
		return Params{}
	}
}

func TestRedisStream_PublishDeliversToSubscribers(t *testing.T) {
	s, _, _, _ := newTestRedisStream(t)
	got, unsubscribe := collect(s)
	defer unsubscribe()
	listen(t, s)

	from := time.Date(2018, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2018, time.January, 31, 0, 0, 0, 0, time.UTC)
	want := Params{Label: "home", From: &from, To: &to}
	if err := s.Publish(context.Background(), want); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if p := receive(t, got); !p.Equal(want) {
		t.Fatalf("delivered %+v, want %+v", p, want)
	}

	unsubscribe()
	if s.Subscribers() != 0 {
		t.Fatalf("subscribers = %d after unsubscribe", s.Subscribers())
	}
}

func TestRedisStream_SkipsInvalidPayload(t *testing.T) {
	s, _, rdb, logs := newTestRedisStream(t)
	got, unsubscribe := collect(s)
	defer unsubscribe()
	listen(t, s)

	if err := rdb.Publish(context.Background(), testChannel, "label=home").Err(); err != nil {
		t.Fatalf("raw publish: %v", err)
	}
	if err := s.Publish(context.Background(), Params{Label: "checkout"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if p := receive(t, got); p.Label != "checkout" {
		t.Fatalf("delivered %+v, want only the valid navigation", p)
	}
	if n := logs.FilterMessage("invalid navigation payload").Len(); n != 1 {
		t.Errorf("invalid payload logged %d times, want 1", n)
	}
}

func TestRedisStream_ResubscribesAfterRestart(t *testing.T) {
	s, mr, _, _ := newTestRedisStream(t)
	got, unsubscribe := collect(s)
	defer unsubscribe()
	listen(t, s)

	mr.Close()
	if err := mr.Restart(); err != nil {
		t.Fatalf("restart redis: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_ = s.Publish(context.Background(), Params{Label: "home"})
		select {
		case p := <-got:
			if p.Label != "home" {
				t.Fatalf("delivered %+v", p)
			}
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
	t.Fatal("no navigation delivered after redis restart")
}
