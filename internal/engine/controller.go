package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/perfdash/internal/dataset"
	"github.com/xela07ax/perfdash/internal/domain"
	"github.com/xela07ax/perfdash/internal/route"
)

// Variant определяет реакцию графика на правку дат.
type Variant string

const (
	// VariantRouted перезагружает записи на каждую правку через навигацию.
	VariantRouted Variant = "routed"
	// VariantLocal загружает один раз и перефильтровывает загруженное.
	VariantLocal Variant = "local"
)

// ParseVariant разбирает имя варианта. Пустое имя значит routed.
func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case VariantRouted, "":
		return VariantRouted, nil
	case VariantLocal:
		return VariantLocal, nil
	default:
		return "", errors.New("unknown chart variant " + s)
	}
}

type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrEditIgnored правка пришла во время загрузки и отброшена.
var ErrEditIgnored = errors.New("edit ignored: records are loading")

// ErrClosed контроллер уже закрыт.
var ErrClosed = errors.New("chart controller closed")

// ErrRouteMismatch навигация на параметры, за которыми график не закреплен.
var ErrRouteMismatch = errors.New("chart is pinned to another route")

// Snapshot согласованная копия состояния графика. Dataset пересобирается
// целиком и не мутирует, слайсы можно отдавать наружу.
type Snapshot struct {
	Label     string          `json:"label"`
	Variant   Variant         `json:"variant"`
	State     State           `json:"state"`
	Params    route.Params    `json:"params"`
	Boundary  domain.Boundary `json:"boundary"`
	Dataset   domain.Dataset  `json:"dataset"`
	Links     []domain.Link   `json:"links"`
	Fetched   int             `json:"fetched"`
	FetchedAt time.Time       `json:"fetched_at"`
	LastError string          `json:"last_error,omitempty"`
}

type ControllerOptions struct {
	Label   string
	Variant Variant
	Window  time.Duration
	Now     func() time.Time
	Logger  *zap.Logger
	Metrics *Metrics

	// Route закрепляет routed-график за одними параметрами. Навигацию
	// такой график публикует, но входит только в свой маршрут.
	Route *route.Params
}

// Controller ведет один экземпляр графика.
// Переходы: Idle -> Loading -> Ready, при ошибке Loading -> Idle.
type Controller struct {
	source  RecordSource
	stream  route.Stream
	label   string
	variant Variant
	pinned  *route.Params
	window  time.Duration
	now     func() time.Time
	logger  *zap.Logger
	metrics *Metrics

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu         sync.Mutex
	state      State
	entered    bool
	closed     bool
	params     route.Params
	boundary   domain.Boundary
	records    []domain.Record
	ds         domain.Dataset
	links      []domain.Link
	fetchedAt  time.Time
	lastErr    error
	token      uint64
	cancelLoad context.CancelFunc
	changed    chan struct{}

	redrawID    int
	redraw      map[int]func(Snapshot)
	unsubscribe func()
}

// NewController инициализирует контроллер. Routed-график подписывается на stream
// и заново входит при навигации по своей метке.
func NewController(ctx context.Context, source RecordSource, stream route.Stream, opts ControllerOptions) *Controller {
	if opts.Variant == "" {
		opts.Variant = VariantRouted
	}
	if opts.Window <= 0 {
		opts.Window = domain.DefaultWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	var pinned *route.Params
	if opts.Route != nil {
		p := *opts.Route
		pinned = &p
		opts.Label = p.Label
		opts.Variant = VariantRouted
	}

	base, cancel := context.WithCancel(ctx)
	c := &Controller{
		source:     source,
		stream:     stream,
		label:      opts.Label,
		variant:    opts.Variant,
		pinned:     pinned,
		window:     opts.Window,
		now:        opts.Now,
		logger:     opts.Logger.Named("chart").With(zap.String("label", opts.Label), zap.String("variant", string(opts.Variant))),
		metrics:    opts.Metrics,
		baseCtx:    base,
		cancelBase: cancel,
		ds:         dataset.Build(nil),
		links:      []domain.Link{},
		changed:    make(chan struct{}),
		redraw:     make(map[int]func(Snapshot)),
	}

	if pinned != nil {
		// Границы известны до первой загрузки: правка опирается на них.
		c.params = *pinned
		c.boundary = c.resolve(*pinned)
	}

	if stream != nil && c.variant == VariantRouted {
		c.unsubscribe = stream.Subscribe(func(p route.Params) {
			if c.follows(p) {
				c.Enter(p)
			}
		})
	}
	return c
}

func (c *Controller) follows(p route.Params) bool {
	if c.pinned != nil {
		return p.Equal(*c.pinned)
	}
	return p.Label == c.label
}

// resolve границы для p. Перевернутый диапазон заменяется окном от from.
func (c *Controller) resolve(p route.Params) domain.Boundary {
	b := domain.DefaultBoundary(c.now(), p.From, p.To, c.window)
	if err := b.Validate(); err != nil {
		c.logger.Warn("inverted boundary in route params, keeping from", zap.Error(err))
		b = domain.DefaultBoundary(c.now(), p.From, nil, c.window)
	}
	return b
}

func (c *Controller) Label() string    { return c.label }
func (c *Controller) Variant() Variant { return c.variant }

// OnRedraw вызывает fn после каждой пересборки набора данных.
func (c *Controller) OnRedraw(fn func(Snapshot)) (remove func()) {
	c.mu.Lock()
	id := c.redrawID
	c.redrawID++
	c.redraw[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.redraw, id)
		c.mu.Unlock()
	}
}

// Enter вычисляет границы для p и запускает загрузку.
// Незавершенная загрузка отменяется, ее результат отбрасывается.
func (c *Controller) Enter(p route.Params) {
	p.Label = c.label
	if !c.follows(p) {
		c.logger.Debug("ignoring navigation to another route")
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.cancelLoad != nil {
		c.cancelLoad()
		c.metrics.ErrorTotal.WithLabelValues("superseded").Inc()
	}

	b := c.resolve(p)

	c.token++
	token := c.token
	c.entered = true
	c.params = p
	c.boundary = b
	c.state = StateLoading
	q := c.queryLocked()

	ctx, cancel := context.WithCancel(c.baseCtx)
	c.cancelLoad = cancel
	c.notifyLocked()
	c.mu.Unlock()

	go c.load(ctx, cancel, token, q)
}

func (c *Controller) queryLocked() domain.RecordQuery {
	q := domain.RecordQuery{Label: c.label}
	if c.variant != VariantRouted {
		return q
	}
	q.From = c.boundary.From
	if end, ok := c.boundary.End(); ok {
		q.To = &end
	}
	return q
}

func (c *Controller) load(ctx context.Context, cancel context.CancelFunc, token uint64, q domain.RecordQuery) {
	defer cancel()

	variant := string(c.variant)
	c.metrics.FetchTotal.WithLabelValues(variant).Inc()
	start := time.Now()
	records, err := c.source.FetchRecords(ctx, q)
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.FetchDuration.WithLabelValues(variant, status).Observe(time.Since(start).Seconds())

	c.mu.Lock()
	if c.closed || token != c.token {
		c.mu.Unlock()
		c.logger.Debug("discarding superseded load", zap.Uint64("token", token))
		return
	}
	c.cancelLoad = nil

	if err != nil {
		c.state = StateIdle
		c.lastErr = err
		c.notifyLocked()
		c.mu.Unlock()

		c.metrics.ErrorTotal.WithLabelValues("fetch").Inc()
		c.logger.Error("failed to fetch records", zap.Uint64("token", token), zap.Error(err))
		return
	}

	c.records = records
	c.lastErr = nil
	c.fetchedAt = c.now()
	c.state = StateReady
	c.rebuildLocked()
	snap := c.snapshotLocked()
	listeners := c.listenersLocked()
	c.notifyLocked()
	c.mu.Unlock()

	c.logger.Info("chart loaded",
		zap.Int("fetched", len(records)),
		zap.Int("shown", snap.Dataset.Len()))
	for _, fn := range listeners {
		fn(snap)
	}
}

// EditFrom меняет нижнюю границу.
func (c *Controller) EditFrom(ctx context.Context, t *time.Time) (route.Params, error) {
	return c.edit(ctx, t, true)
}

// EditTo меняет верхнюю границу.
func (c *Controller) EditTo(ctx context.Context, t *time.Time) (route.Params, error) {
	return c.edit(ctx, t, false)
}

// edit применяет правку даты. Во время загрузки возвращает ErrEditIgnored.
// Routed сдвигает парную границу на окно и публикует навигацию.
// Local перефильтровывает загруженные записи на месте.
// Возвращает параметры, на которые теперь указывает график.
func (c *Controller) edit(ctx context.Context, t *time.Time, isFrom bool) (route.Params, error) {
	if t != nil {
		t = domain.TimePtr(*t)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return route.Params{}, ErrClosed
	}
	current := c.params
	if c.state == StateLoading {
		c.mu.Unlock()
		c.metrics.EditsIgnored.WithLabelValues(string(c.variant)).Inc()
		c.logger.Debug("edit ignored while loading")
		return current, ErrEditIgnored
	}

	old := c.boundary.To
	if isFrom {
		old = c.boundary.From
	}
	if sameTime(old, t) {
		c.mu.Unlock()
		return current, nil
	}

	if c.variant == VariantRouted {
		next := route.Params{Label: c.label}
		switch {
		case t != nil && isFrom:
			to := t.Add(c.window)
			next.From, next.To = t, &to
		case t != nil:
			from := t.Add(-c.window)
			next.From, next.To = &from, t
		case isFrom:
			next.To = c.boundary.To
		default:
			next.From = c.boundary.From
		}
		c.mu.Unlock()

		if err := c.navigate(ctx, next); err != nil {
			return current, err
		}
		return next, nil
	}

	nb := c.boundary
	if isFrom {
		nb.From = t
	} else {
		nb.To = t
	}
	if err := nb.Validate(); err != nil {
		c.mu.Unlock()
		return current, err
	}
	c.boundary = nb
	c.rebuildLocked()
	snap := c.snapshotLocked()
	listeners := c.listenersLocked()
	c.notifyLocked()
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
	return current, nil
}

// Navigate переводит график на p и ждет, пока он там не успокоится.
// Повторная навигация на текущие параметры ничего не делает,
// если последняя загрузка не упала.
func (c *Controller) Navigate(ctx context.Context, p route.Params) (Snapshot, error) {
	p.Label = c.label
	if !c.follows(p) {
		return c.Snapshot(), ErrRouteMismatch
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	current := c.entered && c.params.Equal(p) && c.state != StateIdle
	c.mu.Unlock()

	if !current {
		if err := c.navigate(ctx, p); err != nil {
			return c.Snapshot(), err
		}
	}
	return c.WaitSettled(ctx, p)
}

func (c *Controller) navigate(ctx context.Context, p route.Params) error {
	if c.stream == nil || c.variant != VariantRouted {
		c.Enter(p)
		return nil
	}
	return c.stream.Publish(ctx, p)
}

// WaitSettled ждет, пока график покажет p и выйдет из Loading.
// По истечении ctx отдает текущий снимок вместе с ошибкой контекста.
func (c *Controller) WaitSettled(ctx context.Context, p route.Params) (Snapshot, error) {
	p.Label = c.label
	if !c.follows(p) {
		return c.Snapshot(), ErrRouteMismatch
	}
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return Snapshot{}, ErrClosed
		}
		if c.entered && c.params.Equal(p) && c.state != StateLoading {
			snap := c.snapshotLocked()
			c.mu.Unlock()
			return snap, nil
		}
		changed := c.changed
		c.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		}
	}
}

// Snapshot текущее состояние графика.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Close отписывается от навигации и отменяет текущую загрузку.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.notifyLocked()
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	c.cancelBase()
}

func (c *Controller) rebuildLocked() {
	shown := dataset.Filter(c.records, c.boundary)
	c.ds = dataset.Build(shown)
	c.links = dataset.Links(shown)
	c.metrics.RecordsShown.WithLabelValues(string(c.variant)).Observe(float64(len(shown)))
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		Label:     c.label,
		Variant:   c.variant,
		State:     c.state,
		Params:    c.params,
		Boundary:  c.boundary,
		Dataset:   c.ds,
		Links:     c.links,
		Fetched:   len(c.records),
		FetchedAt: c.fetchedAt,
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

func (c *Controller) listenersLocked() []func(Snapshot) {
	out := make([]func(Snapshot), 0, len(c.redraw))
	for _, fn := range c.redraw {
		out = append(out, fn)
	}
	return out
}

// notifyLocked будит всех, кто ждет в WaitSettled.
func (c *Controller) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
