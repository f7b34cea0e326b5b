package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/diagnostico-bot/internal/analysis"
	"github.com/wolfman30/diagnostico-bot/internal/api/router"
	"github.com/wolfman30/diagnostico-bot/internal/app/bootstrap"
	"github.com/wolfman30/diagnostico-bot/internal/channels/whatsapp"
	appconfig "github.com/wolfman30/diagnostico-bot/internal/config"
	"github.com/wolfman30/diagnostico-bot/internal/conversation"
	"github.com/wolfman30/diagnostico-bot/internal/housekeeping"
	httpmiddleware "github.com/wolfman30/diagnostico-bot/internal/http/middleware"
	"github.com/wolfman30/diagnostico-bot/internal/messaging"
	"github.com/wolfman30/diagnostico-bot/internal/observability/metrics"
	"github.com/wolfman30/diagnostico-bot/internal/payments"
	"github.com/wolfman30/diagnostico-bot/internal/session"
	"github.com/wolfman30/diagnostico-bot/pkg/logging"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting diagnostico bot",
		"env", cfg.Env,
		"port", cfg.Port,
	)
	for _, warning := range cfg.Warnings() {
		logger.Warn("config: " + warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	fmt.Println("Server exited gracefully")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	metricsHandler, botMetrics := setupMetrics()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}
	store := bootstrap.BuildSessionStore(cfg, redisClient, logger)
	locks := session.NewLocker()

	app, err := buildApp(ctx, cfg, store, locks, botMetrics, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.closeAnalyzer(); err != nil {
			logger.Warn("analyzer close failed", "error", err)
		}
	}()

	limiter := httpmiddleware.NewRateLimiter(cfg.WebhookRateLimit, cfg.WebhookRateBurst)
	handler := router.New(&router.Config{
		Logger:             logger,
		WhatsAppWebhook:    app.whatsAppWebhook,
		BoldWebhook:        payments.NewBoldWebhookHandler(cfg.BoldWebhookSecret, app.coordinator, bootstrap.BuildProcessedTracker(redisClient), botMetrics, logger),
		Confirmation:       payments.NewConfirmationHandler(app.coordinator, logger),
		MetricsHandler:     metricsHandler,
		StaticDir:          cfg.StaticDir,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		WebhookLimiter:     limiter,
		Ready:              readiness(redisClient),
	})
	logRoutes(handler, logger)

	jobsCtx, cancelJobs := context.WithCancel(context.Background())
	scheduler := scheduleHousekeeping(cfg, store, locks, limiter, botMetrics, logger)
	scheduler.Start(jobsCtx)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		cancelJobs()
		scheduler.Wait()
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)

	// Inbound WhatsApp events are processed after the 200, so drain them.
	app.whatsAppWebhook.Wait()
	cancelJobs()
	scheduler.Wait()

	if err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

type application struct {
	coordinator     *payments.Coordinator
	whatsAppWebhook *whatsapp.WebhookHandler
	closeAnalyzer   func() error
}

func buildApp(ctx context.Context, cfg *appconfig.Config, store session.Store, locks *session.Locker, m *metrics.BotMetrics, logger *logging.Logger) (*application, error) {
	wa, err := whatsapp.New(whatsapp.Config{
		Token:         cfg.WhatsAppAPIToken,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		APIVersion:    cfg.WhatsAppAPIVersion,
		BaseURL:       cfg.WhatsAppGraphBaseURL,
		MediaDir:      cfg.MediaDir,
		MaxRetries:    2,
		Logger:        logger,
		Metrics:       m,
	})
	if err != nil {
		return nil, fmt.Errorf("whatsapp client: %w", err)
	}

	analyzer, closeAnalyzer, err := bootstrap.BuildAnalyzer(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	links, err := bootstrap.BuildLinkCreator(cfg, logger)
	if err != nil {
		_ = closeAnalyzer()
		return nil, err
	}

	pipeline, err := analysis.NewPipeline(analysis.PipelineDeps{
		Store:      store,
		Messenger:  wa,
		Downloader: wa,
		Analyzer:   analyzer,
		Window:     cfg.DeliveryWindow,
		Metrics:    m,
		Logger:     logger,
	})
	if err != nil {
		_ = closeAnalyzer()
		return nil, err
	}
	coordinator, err := payments.NewCoordinator(payments.CoordinatorDeps{
		Store:     store,
		Locks:     locks,
		Messenger: wa,
		Links:     links,
		Analysis:  pipeline,
		Price:     bootstrap.BuildPrice(cfg),
		Metrics:   m,
		Logger:    logger,
	})
	if err != nil {
		_ = closeAnalyzer()
		return nil, err
	}
	engine, err := conversation.NewEngine(conversation.Deps{
		Store:     store,
		Locks:     locks,
		Messenger: wa,
		Payments:  coordinator,
		Stored:    pipeline,
		Profile:   messaging.DefaultProfile(),
		Logger:    logger,
	})
	if err != nil {
		_ = closeAnalyzer()
		return nil, err
	}

	return &application{
		coordinator:     coordinator,
		whatsAppWebhook: whatsapp.NewWebhookHandler(cfg.WhatsAppVerifyToken, cfg.WhatsAppAppSecret, engine, logger, m),
		closeAnalyzer:   closeAnalyzer,
	}, nil
}

func setupMetrics() (http.Handler, *metrics.BotMetrics) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	botMetrics := metrics.NewBotMetrics(registry)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), botMetrics
}

func scheduleHousekeeping(cfg *appconfig.Config, store session.Store, locks *session.Locker, limiter *httpmiddleware.RateLimiter, m *metrics.BotMetrics, logger *logging.Logger) *housekeeping.Scheduler {
	scheduler := housekeeping.NewScheduler(logger)

	media := housekeeping.NewMediaSweeper(cfg.MediaDir, cfg.MediaMaxAge, m, logger)
	scheduler.Every("media-sweep", cfg.MediaSweepInterval, func(ctx context.Context) error {
		_, err := media.Sweep(ctx)
		return err
	})

	sweeper := session.NewSweeper(store, locks, cfg.SessionTTL, logger)
	scheduler.Every("session-sweep", cfg.SessionSweepInterval, func(ctx context.Context) error {
		n, err := sweeper.Sweep(ctx)
		m.AddSwept("session", n)
		return err
	})

	scheduler.Every("rate-limit-evict", 5*time.Minute, func(context.Context) error {
		limiter.Evict()
		return nil
	})
	return scheduler
}

func readiness(client *redis.Client) func(context.Context) error {
	if client == nil {
		return nil
	}
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

func logRoutes(handler http.Handler, logger *logging.Logger) {
	routes, ok := handler.(chi.Routes)
	if !ok {
		return
	}
	_ = chi.Walk(routes, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		logger.Debug("route registered", "method", method, "route", route)
		return nil
	})
}
