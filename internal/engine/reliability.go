package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/xela07ax/perfdash/internal/connectors"
	"github.com/xela07ax/perfdash/internal/domain"
)

// RecordSource источник записей.
type RecordSource interface {
	FetchRecords(ctx context.Context, q domain.RecordQuery) ([]domain.Record, error)
}

// ReliabilitySettings настройки обертки. Attempts=1 отключает ретраи,
// нулевой CallTimeout ограничивает вызов только контекстом.
type ReliabilitySettings struct {
	Name          string
	Attempts      uint
	CallTimeout   time.Duration
	RateLimit     float64
	RateBurst     int
	CBMaxRequests uint32
	CBInterval    time.Duration
	CBTimeout     time.Duration
	CBMaxFailures uint32
}

type ReliabilityWrapper struct {
	next     RecordSource
	cb       *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	attempts uint
	timeout  time.Duration
	metrics  *Metrics
}

func NewReliabilityWrapper(next RecordSource, s ReliabilitySettings, metrics *Metrics) *ReliabilityWrapper {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if s.Name == "" {
		s.Name = "records"
	}
	if s.Attempts == 0 {
		s.Attempts = 1
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.CBMaxRequests,
		Interval:    s.CBInterval,
		Timeout:     s.CBTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return s.CBMaxFailures > 0 && counts.ConsecutiveFailures > s.CBMaxFailures
		},
		// Отмененная загрузка (ее вытеснила новая навигация) не сбой эндпоинта.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, _, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})

	limit := rate.Inf
	if s.RateLimit > 0 {
		limit = rate.Limit(s.RateLimit)
	}
	burst := s.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &ReliabilityWrapper{
		next:     next,
		cb:       cb,
		limiter:  rate.NewLimiter(limit, burst),
		attempts: s.Attempts,
		timeout:  s.CallTimeout,
		metrics:  metrics,
	}
}

// State состояние предохранителя для /health.
func (w *ReliabilityWrapper) State() gobreaker.State {
	return w.cb.State()
}

func (w *ReliabilityWrapper) FetchRecords(ctx context.Context, q domain.RecordQuery) ([]domain.Record, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		w.metrics.ErrorTotal.WithLabelValues("rate_limit").Inc()
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}

	var records []domain.Record

	_, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.attempts),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				var tErr *connectors.ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			callCtx := ctx
			if w.timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, w.timeout)
				defer cancel()
			}

			var callErr error
			records, callErr = w.next.FetchRecords(callCtx, q)
			return callErr
		})

		if ctxErr := ctx.Err(); retryErr != nil && ctxErr != nil && !errors.Is(retryErr, ctxErr) {
			retryErr = fmt.Errorf("%w: %w", ctxErr, retryErr)
		}
		return nil, retryErr
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			w.metrics.ErrorTotal.WithLabelValues("circuit_open").Inc()
		}
		return nil, err
	}
	return records, nil
}
