// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bissquit/incident-escalator/internal/config"
	"github.com/bissquit/incident-escalator/internal/escalation"
	escalationpostgres "github.com/bissquit/incident-escalator/internal/escalation/postgres"
	"github.com/bissquit/incident-escalator/internal/incidents"
	incidentspostgres "github.com/bissquit/incident-escalator/internal/incidents/postgres"
	"github.com/bissquit/incident-escalator/internal/notifications"
	"github.com/bissquit/incident-escalator/internal/notifications/email"
	notificationspostgres "github.com/bissquit/incident-escalator/internal/notifications/postgres"
	"github.com/bissquit/incident-escalator/internal/notifications/push"
	"github.com/bissquit/incident-escalator/internal/notifications/slack"
	"github.com/bissquit/incident-escalator/internal/notifications/twilio"
	"github.com/bissquit/incident-escalator/internal/notifications/webhook"
	"github.com/bissquit/incident-escalator/internal/oncall"
	oncallpostgres "github.com/bissquit/incident-escalator/internal/oncall/postgres"
	"github.com/bissquit/incident-escalator/internal/pkg/ctxlog"
	"github.com/bissquit/incident-escalator/internal/pkg/httputil"
	"github.com/bissquit/incident-escalator/internal/pkg/metrics"
	"github.com/bissquit/incident-escalator/internal/pkg/postgres"
	"github.com/bissquit/incident-escalator/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxRequestBody = 1 << 20

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	redis         *redis.Client
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc

	worker  *notifications.Worker
	trigger *escalation.Trigger
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		metricsCancel: backgroundCancel,
	}

	if cfg.Redis.Enabled {
		app.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	go app.collectDBMetrics(backgroundCtx)

	router, err := app.setupRouter(backgroundCtx)
	if err != nil {
		app.closeStores()
		backgroundCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	// Trigger and worker both write to the stores, so they stop before the stores close.
	if a.trigger != nil {
		a.trigger.Stop()
	}

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	// Handlers are drained, so no new tasks can arrive.
	a.worker.Stop()
	a.metricsCancel()
	a.closeStores()

	return errors.Join(errs...)
}

func (a *App) closeStores() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis client", "error", err)
		}
	}
	a.db.Close()
}

func (a *App) collectDBMetrics(ctx context.Context) {
	metrics.ObserveDBPool(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.ObserveDBPool(a.db)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) logTaskErrors(ctx context.Context) {
	for {
		select {
		case taskErr, ok := <-a.worker.Errors():
			if !ok {
				return
			}
			a.logger.Error("notification task failed",
				"task", taskErr.Task,
				"incident_id", taskErr.IncidentID,
				"error", taskErr.Err,
			)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Trigger returns the escalation trigger. Tests drive ticks through it.
// Returns nil when escalation is disabled.
func (a *App) Trigger() *escalation.Trigger {
	return a.trigger
}

func (a *App) setupRouter(ctx context.Context) (*chi.Mux, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(httputil.MaxBodyMiddleware(maxRequestBody))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>Incident Escalator API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        SwaggerUIBundle({
            url: "/api/openapi.yaml",
            dom_id: '#swagger-ui',
            presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
            layout: "BaseLayout"
        });
    </script>
</body>
</html>`))
	})

	ncfg := a.config.Notifications

	registry, err := buildRegistry(ncfg)
	if err != nil {
		return nil, err
	}
	for _, p := range registry.Providers() {
		slog.Info("notification provider configured", "channel", p.Channel, "enabled", p.Enabled)
	}

	renderer, err := notifications.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("create notification renderer: %w", err)
	}

	notificationsRepo := notificationspostgres.NewRepository(a.db)
	oncallRepo := oncallpostgres.NewRepository(a.db)
	escalationRepo := escalationpostgres.NewRepository(a.db)
	incidentsRepo := incidentspostgres.NewRepository(a.db)

	dispatchConfig := notifications.DispatcherConfig{
		AdapterTimeout: ncfg.AdapterTimeout,
		Breaker: notifications.BreakerConfig{
			MaxRequests:      ncfg.Breaker.MaxRequests,
			Interval:         ncfg.Breaker.Interval,
			Timeout:          ncfg.Breaker.Timeout,
			FailureThreshold: ncfg.Breaker.FailureThreshold,
		},
	}
	dispatcher := notifications.NewDispatcher(oncallRepo, registry, renderer, notificationsRepo, dispatchConfig)
	broadcaster := notifications.NewBroadcaster(notificationsRepo, registry, renderer, notificationsRepo, dispatchConfig)

	a.worker = notifications.NewWorker(notifications.WorkerConfig{
		NumWorkers:  ncfg.Worker.NumWorkers,
		QueueSize:   ncfg.Worker.QueueSize,
		TaskTimeout: ncfg.Worker.TaskTimeout,
	})
	a.worker.Start(ctx)
	go a.logTaskErrors(ctx)

	executor := escalation.NewExecutor(
		escalationRepo,
		notificationsRepo,
		escalationRepo,
		oncall.NewResolver(oncallRepo),
		dispatcher,
		escalation.ExecutorConfig{
			BaseURL:   ncfg.BaseURL,
			MaxFanout: a.config.Escalation.MaxFanout,
		},
	)

	incidentsService := incidents.NewService(incidents.Deps{
		Repo:        incidentsRepo,
		Services:    notificationsRepo,
		Policies:    escalationRepo,
		Broadcaster: broadcaster,
		Dispatcher:  dispatcher,
		Executor:    executor,
		Tasks:       a.worker,
		Audit:       notificationsRepo,
	}, incidents.Config{BaseURL: ncfg.BaseURL})

	if a.config.Escalation.Enabled {
		var lease escalation.Lease
		if a.redis != nil {
			lease = escalation.NewRedisLease(a.redis, a.config.Redis.LeaseKey)
		}
		a.trigger = escalation.NewTrigger(escalationRepo, executor, incidentsService, lease, escalation.TriggerConfig{
			Interval:       a.config.Escalation.Interval,
			BatchSize:      a.config.Escalation.BatchSize,
			MaxConcurrency: a.config.Escalation.MaxConcurrency,
			LeaseTTL:       a.config.Escalation.LeaseTTL,
			AutoUnsnooze:   a.config.Escalation.AutoUnsnooze,
		})
		a.trigger.Start(ctx)
	} else {
		slog.Warn("escalation trigger is disabled: due steps will not run")
	}

	incidentsHandler := incidents.NewHandler(incidentsService)
	notificationsHandler := notifications.NewHandler(notifications.NewService(notificationsRepo, notificationsRepo, registry))
	oncallHandler := oncall.NewHandler(oncall.NewService(oncallRepo))

	r.Route("/api/v1", func(r chi.Router) {
		incidentsHandler.RegisterRoutes(r)
		notificationsHandler.RegisterRoutes(r)
		oncallHandler.RegisterRoutes(r)
	})

	return r, nil
}

// buildRegistry creates every channel adapter. Disabled adapters stay
// registered so deliveries to them are recorded as skipped.
func buildRegistry(cfg config.NotificationsConfig) (*notifications.Registry, error) {
	emailAdapter, err := email.NewAdapter(email.Config{
		Enabled:      cfg.Email.Enabled,
		SMTPHost:     cfg.Email.SMTPHost,
		SMTPPort:     cfg.Email.SMTPPort,
		SMTPUser:     cfg.Email.SMTPUser,
		SMTPPassword: cfg.Email.SMTPPassword,
		FromAddress:  cfg.Email.FromAddress,
		DialTimeout:  cfg.AdapterTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create email adapter: %w", err)
	}

	twilioClient, err := twilio.NewClient(twilio.Config{
		Enabled:      cfg.Twilio.Enabled,
		AccountSID:   cfg.Twilio.AccountSID,
		AuthToken:    cfg.Twilio.AuthToken,
		FromNumber:   cfg.Twilio.FromNumber,
		WhatsAppFrom: cfg.Twilio.WhatsAppFromNumber,
		BaseURL:      cfg.Twilio.BaseURL,
		Timeout:      cfg.AdapterTimeout,
		RateLimit:    cfg.Twilio.RateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("create twilio client: %w", err)
	}

	pushAdapter, err := push.NewAdapter(push.Config{
		Enabled: cfg.Push.Enabled,
		AppID:   cfg.Push.AppID,
		APIKey:  cfg.Push.RESTAPIKey,
		BaseURL: cfg.Push.BaseURL,
		Timeout: cfg.AdapterTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create push adapter: %w", err)
	}

	retry := notifications.RetryConfig{
		MaxAttempts:       cfg.Retry.MaxAttempts,
		InitialBackoff:    cfg.Retry.InitialBackoff,
		MaxBackoff:        cfg.Retry.MaxBackoff,
		BackoffMultiplier: cfg.Retry.BackoffMultiplier,
	}

	return notifications.NewRegistry(
		emailAdapter,
		twilioClient.SMS(),
		twilioClient.WhatsApp(),
		pushAdapter,
		slack.NewWebhookAdapter(slack.WebhookConfig{Timeout: cfg.AdapterTimeout}),
		slack.NewAPIAdapter(slack.APIConfig{
			Token:   cfg.Slack.BotToken,
			APIURL:  cfg.Slack.APIURL,
			Timeout: cfg.AdapterTimeout,
		}),
		webhook.NewAdapter(webhook.Config{
			Timeout:   cfg.Webhook.Timeout,
			UserAgent: cfg.Webhook.UserAgent,
			Retry:     retry,
		}),
	), nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
			httputil.Text(w, http.StatusServiceUnavailable, "Redis unavailable")
			return
		}
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, version.Get())
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
