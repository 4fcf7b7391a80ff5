package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/perfdash/internal/dataset"
	"github.com/xela07ax/perfdash/internal/domain"
	"github.com/xela07ax/perfdash/internal/engine"
	"github.com/xela07ax/perfdash/internal/render"
	"github.com/xela07ax/perfdash/internal/route"
)

// ChartRegistry отдает контроллер графика: routed по всему маршруту, local по метке.
type ChartRegistry interface {
	Get(variant engine.Variant, p route.Params) (*engine.Controller, error)
}

// ChartSettings оформление страниц и картинок.
type ChartSettings struct {
	Title         string
	DefaultLabel  string
	Width         int
	Height        int
	SettleTimeout time.Duration
}

type ChartHandler struct {
	charts   ChartRegistry
	renderer *render.Renderer
	settings ChartSettings
	logger   *zap.Logger
}

func NewChartHandler(charts ChartRegistry, renderer *render.Renderer, settings ChartSettings, logger *zap.Logger) *ChartHandler {
	if settings.SettleTimeout <= 0 {
		settings.SettleTimeout = 10 * time.Second
	}
	return &ChartHandler{
		charts:   charts,
		renderer: renderer,
		settings: settings,
		logger:   logger.Named("chart-handler"),
	}
}

// LocalPage страница с локальной фильтрацией.
// GET /?label=...
func (h *ChartHandler) LocalPage(w http.ResponseWriter, r *http.Request) {
	label := h.label(r.URL.Query().Get("label"))
	snap, ok := h.settle(w, r, engine.VariantLocal, route.Params{Label: label})
	if !ok {
		return
	}
	h.page(w, r, snap, h.settings.Title)
}

// RoutedPage страница, где границы живут в query-параметрах.
// GET /chart?label=...&from=...&to=...
func (h *ChartHandler) RoutedPage(w http.ResponseWriter, r *http.Request) {
	p := route.ParseParams(r.URL.Query())
	p.Label = h.label(p.Label)
	snap, ok := h.settle(w, r, engine.VariantRouted, p)
	if !ok {
		return
	}
	h.page(w, r, snap, p.Label)
}

// LocalEdit меняет одну границу и перефильтровывает уже загруженные записи.
// POST /edit  (label, field=from|to, value=MM-DD-YYYY)
func (h *ChartHandler) LocalEdit(w http.ResponseWriter, r *http.Request) {
	c, edit, ok := h.parseEdit(w, r, engine.VariantLocal)
	if !ok {
		return
	}

	if _, err := edit(r.Context()); err != nil && !errors.Is(err, engine.ErrEditIgnored) {
		h.editFailed(w, r, err)
		return
	}
	http.Redirect(w, r, "/?"+url.Values{"label": {c.Label()}}.Encode(), http.StatusSeeOther)
}

// RoutedEdit сдвигает окно и перенаправляет на новые параметры маршрута.
// POST /chart/edit
func (h *ChartHandler) RoutedEdit(w http.ResponseWriter, r *http.Request) {
	_, edit, ok := h.parseEdit(w, r, engine.VariantRouted)
	if !ok {
		return
	}

	// При отброшенной правке остаемся на текущих параметрах.
	next, err := edit(r.Context())
	if err != nil && !errors.Is(err, engine.ErrEditIgnored) {
		h.editFailed(w, r, err)
		return
	}
	http.Redirect(w, r, "/chart?"+next.Encode().Encode(), http.StatusSeeOther)
}

// Image рисует текущий набор данных.
// GET /chart.png, /chart.svg
func (h *ChartHandler) Image(format render.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		variant, p, ok := h.target(w, r)
		if !ok {
			return
		}
		snap, ok := h.settle(w, r, variant, p)
		if !ok {
			return
		}

		title := h.settings.Title
		if variant == engine.VariantRouted {
			title = snap.Label
		}

		w.Header().Set("Content-Type", format.ContentType())
		w.Header().Set("Cache-Control", "no-store")
		err := h.renderer.Render(w, snap.Dataset, render.Options{
			Title:  title,
			Format: format,
			Width:  h.settings.Width,
			Height: h.settings.Height,
		})
		switch {
		case errors.Is(err, render.ErrEmptyDataset):
			w.Header().Del("Content-Type")
			http.Error(w, "No records in the selected range", http.StatusNotFound)
		case err != nil:
			h.logger.Error("failed to render chart", zap.Error(err), zap.String("trace_id", engine.TraceID(r.Context())))
		}
	}
}

// Snapshot JSON-состояние графика: метки, серии, ссылки, статус загрузки.
// GET /api/v1/charts?label=...&variant=...&from=...&to=...
func (h *ChartHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	variant, p, ok := h.target(w, r)
	if !ok {
		return
	}
	snap, ok := h.settle(w, r, variant, p)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// target читает variant и параметры графика из query.
func (h *ChartHandler) target(w http.ResponseWriter, r *http.Request) (engine.Variant, route.Params, bool) {
	q := r.URL.Query()
	variant, err := engine.ParseVariant(q.Get("variant"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", route.Params{}, false
	}

	p := route.ParseParams(q)
	p.Label = h.label(p.Label)
	if variant == engine.VariantLocal {
		// Локальный график не зависит от маршрута.
		p = route.Params{Label: p.Label}
	}
	return variant, p, true
}

// settle переводит график на p и ждет окончания загрузки не дольше SettleTimeout.
// По таймауту страница покажет состояние loading, но только для самого p.
func (h *ChartHandler) settle(w http.ResponseWriter, r *http.Request, variant engine.Variant, p route.Params) (engine.Snapshot, bool) {
	c, err := h.charts.Get(variant, p)
	if err != nil {
		http.Error(w, "Service is shutting down", http.StatusServiceUnavailable)
		return engine.Snapshot{}, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.settings.SettleTimeout)
	defer cancel()

	snap, err := c.Navigate(ctx, p)
	switch {
	case err == nil:
		return snap, true
	case errors.Is(err, context.DeadlineExceeded):
		notLoaded := snap.State == engine.StateIdle && snap.LastError == ""
		if notLoaded || !snap.Params.Equal(p) {
			snap = pending(variant, p)
		}
		return snap, true
	case errors.Is(err, engine.ErrClosed):
		http.Error(w, "Service is shutting down", http.StatusServiceUnavailable)
	case errors.Is(err, context.Canceled):
		// Клиент ушел, отвечать некому.
	default:
		h.logger.Error("failed to navigate chart", zap.Error(err), zap.String("trace_id", engine.TraceID(r.Context())))
		http.Error(w, "Failed to load chart", http.StatusInternalServerError)
	}
	return engine.Snapshot{}, false
}

type editFunc func(ctx context.Context) (route.Params, error)

func (h *ChartHandler) parseEdit(w http.ResponseWriter, r *http.Request, variant engine.Variant) (*engine.Controller, editFunc, bool) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return nil, nil, false
	}

	value, err := domain.ParseDay(r.PostForm.Get("value"))
	if err != nil {
		http.Error(w, "Invalid date, expected MM-DD-YYYY", http.StatusBadRequest)
		return nil, nil, false
	}

	p := route.Params{Label: h.label(r.PostForm.Get("label"))}
	if variant == engine.VariantRouted {
		// Форма routed-графика несет текущий маршрут в скрытых полях.
		p = route.ParseParams(r.PostForm)
		p.Label = h.label(p.Label)
	}
	c, err := h.charts.Get(variant, p)
	if err != nil {
		http.Error(w, "Service is shutting down", http.StatusServiceUnavailable)
		return nil, nil, false
	}

	switch r.PostForm.Get("field") {
	case "from":
		return c, func(ctx context.Context) (route.Params, error) { return c.EditFrom(ctx, value) }, true
	case "to":
		return c, func(ctx context.Context) (route.Params, error) { return c.EditTo(ctx, value) }, true
	default:
		http.Error(w, "field must be from or to", http.StatusBadRequest)
		return nil, nil, false
	}
}

func (h *ChartHandler) editFailed(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrInvertedBoundary) {
		http.Error(w, "From must not be after To", http.StatusBadRequest)
		return
	}
	h.logger.Error("failed to apply edit", zap.Error(err), zap.String("trace_id", engine.TraceID(r.Context())))
	http.Error(w, "Failed to apply edit", http.StatusInternalServerError)
}

// pending снимок графика, который еще не дошел до p.
func pending(variant engine.Variant, p route.Params) engine.Snapshot {
	return engine.Snapshot{
		Label:    p.Label,
		Variant:  variant,
		State:    engine.StateLoading,
		Params:   p,
		Boundary: p.Boundary(),
		Dataset:  dataset.Build(nil),
		Links:    []domain.Link{},
	}
}

func (h *ChartHandler) label(s string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return h.settings.DefaultLabel
}
