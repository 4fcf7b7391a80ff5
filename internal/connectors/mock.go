package connectors

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/xela07ax/perfdash/internal/dataset"
	"github.com/xela07ax/perfdash/internal/domain"
)

// StaticSource отдает фиксированный набор записей, упорядоченный по времени.
// Метку и окно запроса учитывает как настоящий эндпоинт.
// Записи под пустой меткой отвечают на любую метку без своих записей.
type StaticSource struct {
	mu      sync.Mutex
	records map[string][]domain.Record
	err     error
	delay   time.Duration
	calls   []domain.RecordQuery
}

func NewStaticSource(records map[string][]domain.Record) *StaticSource {
	if records == nil {
		records = make(map[string][]domain.Record)
	}
	return &StaticSource{records: records}
}

// FailWith следующие загрузки вернут err. nil снимает ошибку.
func (s *StaticSource) FailWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// SetDelay медленный эндпоинт.
func (s *StaticSource) SetDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

// Calls полученные запросы.
func (s *StaticSource) Calls() []domain.RecordQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.RecordQuery, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *StaticSource) FetchRecords(ctx context.Context, q domain.RecordQuery) ([]domain.Record, error) {
	s.mu.Lock()
	s.calls = append(s.calls, q)
	delay, err := s.delay, s.err
	records, ok := s.records[q.Label]
	if !ok {
		records = s.records[""]
	}
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	var window domain.Boundary
	if q.From != nil {
		window.From = q.From
	}
	if q.To != nil {
		// Конец запроса уже расширен на день.
		to := q.To.Add(-domain.Day)
		window.To = &to
	}
	out := dataset.Filter(records, window)
	cp := make([]domain.Record, len(out))
	copy(cp, out)
	return cp, nil
}

// DemoRecords генерирует замеры до now для --demo.
func DemoRecords(now time.Time, days int) []domain.Record {
	rng := rand.New(rand.NewPCG(uint64(days), 42))
	start := now.UTC().Add(-time.Duration(days) * domain.Day)
	out := make([]domain.Record, 0, days*4)
	for t := start; !t.After(now); t = t.Add(6 * time.Hour) {
		ttfb := 180 + rng.Float64()*120
		render := ttfb + 600 + rng.Float64()*400
		speed := render + 200 + rng.Float64()*600
		dom := 900 + float64(rng.IntN(150))
		loaded := speed + 1500 + rng.Float64()*1500
		out = append(out, domain.Record{
			Timestamp: t,
			Summary:   "https://www.webpagetest.org/result/demo/",
			FirstView: domain.FirstView{
				TTFB:            &ttfb,
				Render:          &render,
				SpeedIndex:      &speed,
				DOMElements:     &dom,
				FullyLoadedTime: &loaded,
				WaterfallView:   "https://www.webpagetest.org/waterfall.png?test=demo",
				ConnectionView:  "https://www.webpagetest.org/connection.png?test=demo",
			},
		})
	}
	return out
}
