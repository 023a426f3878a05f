// Package server provides the core application server and dependency injection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/screenshot-orchestrator/internal/api"
	"github.com/JakeFAU/screenshot-orchestrator/internal/auth"
	"github.com/JakeFAU/screenshot-orchestrator/internal/capture"
	"github.com/JakeFAU/screenshot-orchestrator/internal/clock/system"
	"github.com/JakeFAU/screenshot-orchestrator/internal/config"
	"github.com/JakeFAU/screenshot-orchestrator/internal/driver/browser"
	"github.com/JakeFAU/screenshot-orchestrator/internal/id/uuid"
	"github.com/JakeFAU/screenshot-orchestrator/internal/logging"
	"github.com/JakeFAU/screenshot-orchestrator/internal/metrics"
	"github.com/JakeFAU/screenshot-orchestrator/internal/naming"
	"github.com/JakeFAU/screenshot-orchestrator/internal/orchestrator"
	"github.com/JakeFAU/screenshot-orchestrator/internal/phash"
	"github.com/JakeFAU/screenshot-orchestrator/internal/planner"
	"github.com/JakeFAU/screenshot-orchestrator/internal/policy/ratelimit"
	"github.com/JakeFAU/screenshot-orchestrator/internal/progress"
	progresssinks "github.com/JakeFAU/screenshot-orchestrator/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/screenshot-orchestrator/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/screenshot-orchestrator/internal/publisher/pubsub"
	"github.com/JakeFAU/screenshot-orchestrator/internal/quality"
	"github.com/JakeFAU/screenshot-orchestrator/internal/registry"
	artifactstorage "github.com/JakeFAU/screenshot-orchestrator/internal/storage"
	gcsstorage "github.com/JakeFAU/screenshot-orchestrator/internal/storage/gcs"
	localstorage "github.com/JakeFAU/screenshot-orchestrator/internal/storage/local"
	"github.com/JakeFAU/screenshot-orchestrator/internal/validate"
	"github.com/JakeFAU/screenshot-orchestrator/internal/worker"
)

// memoryPublisherLimit bounds notifications retained when no topic is set.
const memoryPublisherLimit = 1000

// App contains the application's dependencies.
type App struct {
	cfg             *config.Config
	logger          *zap.Logger
	registerer      prometheus.Registerer
	apiServer       *api.Server
	orchestrator    *orchestrator.Orchestrator
	authStore       *auth.FileStore
	artifacts       *localstorage.Store
	progressHub     *progress.Hub
	registry        *registry.Registry
	driver          *browser.Driver
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	storage         *storage.Client
}

// Option customizes Build.
type Option func(*App)

// WithLogger replaces the logger built from the logging config.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithRegisterer registers progress collectors somewhere other than the
// default Prometheus registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) { a.registerer = reg }
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	// Only non-sensitive fields are logged.
	type SanitizedConfig struct {
		ServerPort     int    `json:"server_port"`
		ScreenshotsDir string `json:"screenshots_dir"`
		MaxConcurrent  int    `json:"max_concurrent_captures"`
		AuthEnabled    bool   `json:"auth_enabled"`
	}
	safeCfg := SanitizedConfig{
		ServerPort:     cfg.Server.Port,
		ScreenshotsDir: cfg.Storage.ScreenshotsDir,
		MaxConcurrent:  cfg.Capture.MaxConcurrentCaptures,
		AuthEnabled:    cfg.Auth.Enabled,
	}
	logger.Info("creating application", zap.Any("config", safeCfg))
	return &App{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Orchestrator returns the capture engine.
func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orchestrator }

// AuthStore returns the saved storage-state store.
func (a *App) AuthStore() *auth.FileStore { return a.authStore }

// Handler returns the HTTP handler for the API.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

// Run serves the API and blocks until the context is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	// In-flight captures hold their HTTP requests open; release them first.
	if n := a.orchestrator.CancelAll(); n > 0 {
		a.logger.Info("cancelled in-flight requests", zap.Int("requests", n))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	closeErr := a.Close(shutdownCtx)
	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return closeErr
	}
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.registry != nil {
		if err := a.registry.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close registry: %w", err))
		}
	}
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close progress hub: %w", err))
		}
	}
	a.closeInfrastructure()
	a.logger.Info("shutdown complete")
	logging.Sync(a.logger)
	return errors.Join(errs...)
}

func (a *App) closeInfrastructure() {
	if a.driver != nil {
		a.driver.Close()
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
}

// Build creates the application's dependencies. Browsers are launched lazily
// on the first capture, so Build itself needs no Chrome.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	probe := &App{}
	for _, opt := range opts {
		opt(probe)
	}
	logger := probe.logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Config{
			Development: cfg.Logging.Development,
			File:        cfg.Logging.File,
			MaxSizeMB:   cfg.Logging.MaxSizeMB,
			MaxBackups:  cfg.Logging.MaxBackups,
			MaxAgeDays:  cfg.Logging.MaxAgeDays,
			Compress:    cfg.Logging.Compress,
		})
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(logger)
	}

	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}
	app.registerer = probe.registerer
	if app.registerer == nil {
		app.registerer = prometheus.DefaultRegisterer
	}
	metrics.Init()

	app.logger.Info("building application dependencies")
	clock := system.New()

	if err := setupStorage(ctx, app); err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	if err := setupProgress(ctx, app, publisher); err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	app.registry = registry.New(registry.Config{
		Capacity:      cfg.Registry.Capacity,
		TTL:           time.Duration(cfg.Registry.TTLSeconds) * time.Second,
		SweepInterval: time.Duration(cfg.Registry.SweepIntervalSeconds) * time.Second,
		Clock:         clock,
		Logger:        app.logger,
	})
	app.registry.Start()

	app.authStore, err = auth.NewFileStore(cfg.Storage.AuthStateFile, app.logger.Named("auth"))
	if err != nil {
		_ = app.Close(ctx)
		return nil, fmt.Errorf("auth store init failed: %w", err)
	}

	runner, err := setupWorker(app, clock)
	if err != nil {
		_ = app.Close(ctx)
		return nil, err
	}

	app.orchestrator, err = orchestrator.New(orchestrator.Deps{
		Validator: validate.New(cfg.Capture.AllowPrivateHosts),
		Planner:   planner.New(cfg.Capture.SameOriginWidth, cfg.Capture.CrossOriginWidth),
		Auth:      auth.NewMaterializer(app.authStore, clock, app.logger.Named("auth")),
		Registry:  app.registry,
		Runner:    runner,
		Events:    app.progressHub,
		IDs:       uuid.New(),
		Clock:     clock,
		Timeouts:  cfg.TimeoutPolicy(),
	}, app.logger)
	if err != nil {
		_ = app.Close(ctx)
		return nil, fmt.Errorf("orchestrator init failed: %w", err)
	}

	app.apiServer = api.NewServer(api.Deps{
		Capturer:  app.orchestrator,
		Auth:      app.authStore,
		Artifacts: app.artifacts,
		Events:    app.progressHub,
	}, *cfg, app.logger)

	return app, nil
}

func setupStorage(ctx context.Context, app *App) error {
	var mirror artifactstorage.Mirror
	if bucket := app.cfg.Storage.GCSBucket; bucket != "" {
		var err error
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		gcsMirror, err := gcsstorage.New(app.storage, gcsstorage.Config{
			Bucket: bucket,
			Prefix: app.cfg.Storage.GCSPrefix,
		})
		if err != nil {
			return fmt.Errorf("gcs mirror init failed: %w", err)
		}
		mirror = gcsMirror
		app.logger.Info("mirroring artifacts to GCS",
			zap.String("bucket", bucket),
			zap.String("prefix", app.cfg.Storage.GCSPrefix),
		)
	}
	store, err := localstorage.New(localstorage.Config{
		BaseDir: app.cfg.Storage.ScreenshotsDir,
		Mirror:  mirror,
		Logger:  app.logger.Named("artifacts"),
	})
	if err != nil {
		return fmt.Errorf("artifact store init failed: %w", err)
	}
	app.artifacts = store
	app.logger.Debug("local artifact store", zap.String("path", store.Root()))
	return nil
}

func setupPublisher(ctx context.Context, app *App) (progresssinks.Publisher, error) {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Info("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(memoryPublisherLimit), nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubPublisher = gcppublisher.New(app.pubsubClient.Publisher(app.cfg.PubSub.TopicName))
	app.logger.Info(
		"Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return app.pubsubPublisher, nil
}

func setupProgress(ctx context.Context, app *App, publisher progresssinks.Publisher) error {
	promSink, err := progresssinks.NewPrometheusSink(app.registerer)
	if err != nil {
		return fmt.Errorf("progress metrics init failed: %w", err)
	}
	sinkList := []progress.Sink{
		promSink,
		progresssinks.NewPublisherSink(publisher, app.cfg.PubSub.TopicName, app.logger.Named("progress_publisher")),
	}
	if app.cfg.Events.LogEnabled {
		sinkList = append(sinkList, progresssinks.NewLogSink(app.logger.Named("progress_log")))
		app.logger.Debug("added progress log sink")
	}
	hubCfg := progress.Config{
		SubscriberBuffer: app.cfg.Events.SubscriberBuffer,
		BufferSize:       app.cfg.Events.SinkBuffer,
		MaxBatchEvents:   app.cfg.Events.BatchMaxEvents,
		MaxBatchWait:     time.Duration(app.cfg.Events.BatchMaxWaitMs) * time.Millisecond,
		BaseContext:      context.WithoutCancel(ctx),
		Logger:           app.logger.Named("progress_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Info("progress hub initialized",
		zap.Int("subscriber_buffer", hubCfg.SubscriberBuffer),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return nil
}

func setupWorker(app *App, clock capture.Clock) (*worker.Worker, error) {
	cfg := app.cfg
	app.driver = browser.New(browser.Config{
		ExecPath:  cfg.Browser.ExecPath,
		Headless:  cfg.Browser.Headless,
		RemoteURL: cfg.Browser.RemoteURL,
		AltFlags:  cfg.Browser.AltFlags,
		Logger:    app.logger,
	})
	app.logger.Info("browser driver configured",
		zap.Bool("headless", cfg.Browser.Headless),
		zap.Bool("remote", cfg.Browser.RemoteURL != ""),
		zap.Int("alt_flags", len(cfg.Browser.AltFlags)),
	)

	hasher, err := phash.New(phash.Algorithm(cfg.Capture.DuplicateHashAlgorithm), cfg.Capture.DuplicateHashThreshold)
	if err != nil {
		return nil, fmt.Errorf("hasher init failed: %w", err)
	}

	limiter := ratelimit.New(ratelimit.Config{
		RPS:   cfg.Capture.RateLimitRPS,
		Burst: cfg.Capture.RateLimitBurst,
	})
	app.logger.Info("politeness limiter configured",
		zap.Float64("rps", cfg.Capture.RateLimitRPS),
		zap.Int("burst", cfg.Capture.RateLimitBurst),
	)

	workerCfg := worker.Config{
		UserAgent:         cfg.Browser.UserAgent,
		StealthUserAgents: cfg.Browser.StealthUserAgents,
		LazyLoad: worker.LazyLoad{
			MaxChecks:    cfg.Capture.LazyLoadMaxChecks,
			Interval:     cfg.LazyLoadInterval(),
			StableChecks: cfg.Capture.LazyLoadStableChecks,
		},
	}
	app.logger.Info("worker config",
		zap.Int("max_concurrent_captures", cfg.Capture.MaxConcurrentCaptures),
		zap.Int("lazy_load_max_checks", workerCfg.LazyLoad.MaxChecks),
		zap.Duration("lazy_load_interval", workerCfg.LazyLoad.Interval),
	)

	minScore := cfg.Capture.QualityMinScore
	w, err := worker.New(worker.Deps{
		Driver: app.driver,
		Store:  app.artifacts,
		Quality: quality.New(app.artifacts, quality.Config{
			MinScore:       &minScore,
			BlankThreshold: cfg.Capture.QualityBlankThreshold,
			Logger:         app.logger,
		}),
		Hasher:  hasher,
		Namer:   naming.New(clock),
		Clock:   clock,
		Limiter: limiter,
		Slots:   semaphore.NewWeighted(int64(max(cfg.Capture.MaxConcurrentCaptures, 1))),
	}, workerCfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("worker init failed: %w", err)
	}
	return w, nil
}
