package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xela07ax/perfdash/internal/connectors"
	"github.com/xela07ax/perfdash/internal/console/handler"
	"github.com/xela07ax/perfdash/internal/console/server"
	"github.com/xela07ax/perfdash/internal/domain"
	"github.com/xela07ax/perfdash/internal/engine"
	"github.com/xela07ax/perfdash/internal/infra"
	"github.com/xela07ax/perfdash/internal/render"
	"github.com/xela07ax/perfdash/internal/route"
)

const demoDays = 90

func buildServeCmd(configPath *string) *cobra.Command {
	var demo bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard HTTP server",
		Long: `Start the dashboard. Charts are fetched from the records endpoint on demand.

Routes:
  /                   local chart, date edits re-filter fetched records
  /chart              routed chart, date edits navigate and re-fetch
  /chart.png|svg      chart image
  /api/v1/charts      chart state as JSON
  /health, /metrics

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  perfdash serve --config configs/config.yaml
  perfdash serve --demo`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath, demo)
		},
	}

	cmd.Flags().BoolVar(&demo, "demo", false, "Serve generated records instead of calling the records endpoint")
	return cmd
}

func runServe(ctx context.Context, configPath string, demo bool) error {
	// 1. Конфиг и логгер
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// Контекст фоновых горутин: загрузок графиков и подписки Redis
	appCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 2. Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := engine.NewMetrics(reg)

	// 3. Источник записей, обернутый в Reliability (limiter, breaker, retry)
	source := newRecordSource(cfg.Records, demo, logger)
	reliable := engine.NewReliabilityWrapper(source, reliabilitySettings(cfg.Records), metrics)

	// 4. Поток навигации: локальный или через Redis между репликами
	stream, closeStream, err := newRouteStream(appCtx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeStream()

	// 5. Графики
	charts := engine.NewRegistry(appCtx, reliable, stream, engine.ControllerOptions{
		Window:  cfg.Chart.Window(),
		Logger:  logger,
		Metrics: metrics,
	}, cfg.Chart.MaxCharts)
	defer charts.Close()

	// 6. HTTP Server
	chartH := handler.NewChartHandler(charts, render.NewRenderer(render.Palette(cfg.Chart.Palette)), handler.ChartSettings{
		Title:         cfg.Chart.Title,
		DefaultLabel:  cfg.Chart.DefaultLabel,
		Width:         cfg.Chart.Width,
		Height:        cfg.Chart.Height,
		SettleTimeout: cfg.Server.SettleTimeout,
	}, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.NewDashboardServer(logger, reg, chartH, handler.NewHealthHandler(reliable)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("dashboard started", zap.String("addr", srv.Addr), zap.Bool("demo", demo))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}

	// 7. Graceful Shutdown
	logger.Info("dashboard stopping")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("dashboard exited properly")
	return nil
}

func newRecordSource(cfg infra.RecordsConfig, demo bool, logger *zap.Logger) engine.RecordSource {
	if demo {
		// Пустая метка отвечает на любую.
		logger.Info("serving demo records", zap.Int("days", demoDays))
		return connectors.NewStaticSource(map[string][]domain.Record{
			"": connectors.DemoRecords(time.Now(), demoDays),
		})
	}
	client := connectors.NewRecordsClient(cfg.BaseURL, cfg.Path, cfg.Timeout)
	logger.Info("records endpoint", zap.String("url", client.Endpoint()))
	return client
}

func reliabilitySettings(cfg infra.RecordsConfig) engine.ReliabilitySettings {
	return engine.ReliabilitySettings{
		Name:          "records",
		Attempts:      cfg.RetryAttempts,
		CallTimeout:   cfg.Timeout,
		RateLimit:     cfg.RateLimit,
		RateBurst:     cfg.RateBurst,
		CBMaxRequests: cfg.CBMaxRequests,
		CBInterval:    cfg.CBInterval,
		CBTimeout:     cfg.CBTimeout,
		CBMaxFailures: cfg.CBMaxFailures,
	}
}

// newRouteStream без Redis отдает MemoryStream. С Redis ждет первой подписки,
// иначе навигация, опубликованная до нее, потеряется.
func newRouteStream(ctx context.Context, cfg infra.RedisConfig, logger *zap.Logger) (route.Stream, func(), error) {
	if !cfg.Enabled() {
		return route.NewMemoryStream(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis unreachable at %s: %w", cfg.Addr, err)
	}

	stream := route.NewRedisStream(rdb, infra.NavigationChannel(cfg.Env), logger)
	listenCtx, stopListen := context.WithCancel(ctx)

	ready := make(chan struct{})
	var once sync.Once
	go stream.Listen(listenCtx, func() {
		once.Do(func() { close(ready) })
		logger.Info("navigation stream subscribed")
	})

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		logger.Warn("navigation stream is not subscribed yet, continuing")
	case <-ctx.Done():
	}

	return stream, func() {
		stopListen()
		_ = rdb.Close()
	}, nil
}
