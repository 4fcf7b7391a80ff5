package engine

import (
	"container/list"
	"context"
	"sync"

	"github.com/xela07ax/perfdash/internal/route"
)

// DefaultMaxCharts предел графиков в реестре, если он не задан.
const DefaultMaxCharts = 256

// chartKey: local-график определяется меткой, routed-график всем маршрутом.
type chartKey struct {
	variant Variant
	route   string
}

func keyFor(variant Variant, p route.Params) chartKey {
	if variant == VariantRouted {
		return chartKey{variant: variant, route: p.Encode().Encode()}
	}
	return chartKey{variant: variant, route: p.Label}
}

type chartEntry struct {
	key chartKey
	c   *Controller
}

// Registry держит контроллеры графиков и создает их при первом обращении.
// Сверх maxCharts закрывается самый давно использованный.
type Registry struct {
	ctx       context.Context
	source    RecordSource
	stream    route.Stream
	opts      ControllerOptions
	maxCharts int

	mu     sync.Mutex
	charts map[chartKey]*list.Element
	lru    *list.List
	closed bool
}

// NewRegistry: ctx родитель всех загрузок. Label, Variant и Route из opts игнорируются.
func NewRegistry(ctx context.Context, source RecordSource, stream route.Stream, opts ControllerOptions, maxCharts int) *Registry {
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if maxCharts <= 0 {
		maxCharts = DefaultMaxCharts
	}
	return &Registry{
		ctx:       ctx,
		source:    source,
		stream:    stream,
		opts:      opts,
		maxCharts: maxCharts,
		charts:    make(map[chartKey]*list.Element),
		lru:       list.New(),
	}
}

// Get возвращает контроллер графика, при необходимости создает.
// Routed-график закреплен за p целиком, local-график только за меткой.
func (r *Registry) Get(variant Variant, p route.Params) (*Controller, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}

	key := keyFor(variant, p)
	if el, ok := r.charts[key]; ok {
		r.lru.MoveToFront(el)
		c := el.Value.(*chartEntry).c
		r.mu.Unlock()
		return c, nil
	}

	opts := r.opts
	opts.Label = p.Label
	opts.Variant = variant
	opts.Route = nil
	if variant == VariantRouted {
		pinned := p
		opts.Route = &pinned
	}
	c := NewController(r.ctx, r.source, r.stream, opts)
	r.charts[key] = r.lru.PushFront(&chartEntry{key: key, c: c})

	var evicted []*Controller
	for r.lru.Len() > r.maxCharts {
		e := r.lru.Remove(r.lru.Back()).(*chartEntry)
		delete(r.charts, e.key)
		evicted = append(evicted, e.c)
	}
	r.opts.Metrics.Charts.Set(float64(r.lru.Len()))
	r.mu.Unlock()

	for _, old := range evicted {
		old.Close()
		r.opts.Metrics.ChartsEvicted.Inc()
	}
	return c, nil
}

// Len число живых графиков.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lru.Len()
}

// Close закрывает все графики.
func (r *Registry) Close() {
	r.mu.Lock()
	var charts []*Controller
	for el := r.lru.Front(); el != nil; el = el.Next() {
		charts = append(charts, el.Value.(*chartEntry).c)
	}
	r.charts = make(map[chartKey]*list.Element)
	r.lru.Init()
	r.closed = true
	r.opts.Metrics.Charts.Set(0)
	r.mu.Unlock()

	for _, c := range charts {
		c.Close()
	}
}
