package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xela07ax/perfdash/internal/console/handler"
	"github.com/xela07ax/perfdash/internal/engine"
	"github.com/xela07ax/perfdash/internal/render"
)

type DashboardServer struct {
	router   *chi.Mux
	logger   *zap.Logger
	gatherer prometheus.Gatherer

	chartHandler  *handler.ChartHandler  // страницы, картинки и правки дат
	healthHandler *handler.HealthHandler // /health
}

// NewDashboardServer собирает роутер дашборда со всеми обработчиками.
func NewDashboardServer(
	logger *zap.Logger,
	gatherer prometheus.Gatherer,
	chartH *handler.ChartHandler,
	healthH *handler.HealthHandler,
) *DashboardServer {
	s := &DashboardServer{
		router:        chi.NewRouter(),
		logger:        logger.Named("dashboard-api"),
		gatherer:      gatherer,
		chartHandler:  chartH,
		healthHandler: healthH,
	}

	s.routes()
	return s
}

func (s *DashboardServer) routes() {
	r := s.router

	// --- 1. Инфраструктурные Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(engine.TracingMiddleware)
	r.Use(engine.RequestLogger(s.logger))
	r.Use(middleware.Recoverer)

	// --- 2. Служебные роуты ---
	r.Get("/health", s.healthHandler.Health)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	// --- 3. Локальный вариант: фильтрация на месте ---
	r.Get("/", s.chartHandler.LocalPage)
	r.Post("/edit", s.chartHandler.LocalEdit)

	// --- 4. Маршрутизируемый вариант: границы в query ---
	r.Get("/chart", s.chartHandler.RoutedPage)
	r.Post("/chart/edit", s.chartHandler.RoutedEdit)

	// Картинки для обоих вариантов (?variant=local|routed)
	r.Get("/chart.png", s.chartHandler.Image(render.FormatPNG))
	r.Get("/chart.svg", s.chartHandler.Image(render.FormatSVG))

	r.Get("/api/v1/charts", s.chartHandler.Snapshot)
}

// ServeHTTP позволяет использовать DashboardServer как http.Handler
func (s *DashboardServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
