package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"

	"github.com/xela07ax/perfdash/internal/connectors"
	"github.com/xela07ax/perfdash/internal/domain"
)

type flakySource struct {
	calls    atomic.Int32
	failures int32
	err      error
}

func (f *flakySource) FetchRecords(ctx context.Context, q domain.RecordQuery) ([]domain.Record, error) {
	n := f.calls.Add(1)
	if n <= f.failures {
		return nil, f.err
	}
	return []domain.Record{rec(at(2018, 1, 1, 0), 1)}, nil
}

func TestReliabilityDefaultsDoNotRetry(t *testing.T) {
	src := &flakySource{failures: 1, err: errors.New("boom")}
	w := NewReliabilityWrapper(src, ReliabilitySettings{}, nil)

	if _, err := w.FetchRecords(context.Background(), domain.RecordQuery{Label: "home"}); err == nil {
		t.Fatal("expected the single attempt to fail")
	}
	if n := src.calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestReliabilityRetriesThrottle(t *testing.T) {
	src := &flakySource{failures: 2, err: &connectors.ThrottleError{RetryAfter: time.Millisecond}}
	w := NewReliabilityWrapper(src, ReliabilitySettings{Attempts: 3}, nil)

	records, err := w.FetchRecords(context.Background(), domain.RecordQuery{Label: "home"})
	if err != nil {
		t.Fatalf("FetchRecords: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("records = %d, want 1", len(records))
	}
	if n := src.calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestReliabilityBreakerOpens(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	src := &flakySource{failures: 100, err: errors.New("down")}
	w := NewReliabilityWrapper(src, ReliabilitySettings{
		Name:          "records",
		CBMaxFailures: 2,
		CBTimeout:     time.Minute,
	}, m)

	for i := 0; i < 3; i++ {
		_, _ = w.FetchRecords(context.Background(), domain.RecordQuery{})
	}
	if w.State() != gobreaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", w.State())
	}

	_, err := w.FetchRecords(context.Background(), domain.RecordQuery{})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("err = %v, want ErrOpenState", err)
	}
	if n := src.calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
	if got := testutil.ToFloat64(m.ErrorTotal.WithLabelValues("circuit_open")); got != 1 {
		t.Errorf("circuit_open errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("records")); got != float64(gobreaker.StateOpen) {
		t.Errorf("breaker gauge = %v", got)
	}
}

func TestReliabilityRateLimitHonoursContext(t *testing.T) {
	src := &flakySource{}
	w := NewReliabilityWrapper(src, ReliabilitySettings{RateLimit: 0.001, RateBurst: 1}, nil)

	if _, err := w.FetchRecords(context.Background(), domain.RecordQuery{}); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := w.FetchRecords(ctx, domain.RecordQuery{}); err == nil {
		t.Fatal("expected the limiter to reject the second call")
	}
	if n := src.calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

// hangingSource висит до отмены вызова, пока не выставлен open.
type hangingSource struct {
	entered chan struct{}
	open    atomic.Bool
}

func (h *hangingSource) FetchRecords(ctx context.Context, q domain.RecordQuery) ([]domain.Record, error) {
	if h.open.Load() {
		return []domain.Record{rec(at(2018, 1, 1, 0), 1)}, nil
	}
	h.entered <- struct{}{}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestReliabilityCancelledCallsKeepBreakerClosed(t *testing.T) {
	src := &hangingSource{entered: make(chan struct{})}
	w := NewReliabilityWrapper(src, ReliabilitySettings{CBMaxFailures: 1, CBTimeout: time.Minute}, nil)

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			_, err := w.FetchRecords(ctx, domain.RecordQuery{})
			done <- err
		}()
		<-src.entered
		cancel()
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Fatalf("call %d: err = %v, want context.Canceled", i, err)
		}
	}

	if w.State() != gobreaker.StateClosed {
		t.Fatalf("breaker state = %v after cancelled calls, want closed", w.State())
	}
	src.open.Store(true)
	if _, err := w.FetchRecords(context.Background(), domain.RecordQuery{}); err != nil {
		t.Fatalf("FetchRecords: %v", err)
	}
}
