// Package server provides the render service's dependency wiring and lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/bluemap-render/internal/account"
	accountMemory "github.com/JakeFAU/bluemap-render/internal/account/memory"
	accountPostgres "github.com/JakeFAU/bluemap-render/internal/account/postgres"
	"github.com/JakeFAU/bluemap-render/internal/api"
	"github.com/JakeFAU/bluemap-render/internal/clock/system"
	"github.com/JakeFAU/bluemap-render/internal/config"
	"github.com/JakeFAU/bluemap-render/internal/dispatcher"
	"github.com/JakeFAU/bluemap-render/internal/hash/sha256"
	"github.com/JakeFAU/bluemap-render/internal/id/uuid"
	"github.com/JakeFAU/bluemap-render/internal/jobs"
	"github.com/JakeFAU/bluemap-render/internal/logging"
	"github.com/JakeFAU/bluemap-render/internal/policy/ratelimit"
	"github.com/JakeFAU/bluemap-render/internal/preset"
	memorypublisher "github.com/JakeFAU/bluemap-render/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/bluemap-render/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/bluemap-render/internal/queue/memory"
	"github.com/JakeFAU/bluemap-render/internal/render"
	"github.com/JakeFAU/bluemap-render/internal/renderer/headless"
	gcsstorage "github.com/JakeFAU/bluemap-render/internal/storage/gcs"
	localstorage "github.com/JakeFAU/bluemap-render/internal/storage/local"
	memoryStorage "github.com/JakeFAU/bluemap-render/internal/storage/memory"
	"github.com/JakeFAU/bluemap-render/internal/telemetry"
	"github.com/JakeFAU/bluemap-render/internal/worker"
)

// Version is reported on traces.
var Version = "dev"

const limiterIdle = 10 * time.Minute

// App contains the application's dependencies.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	apiServer *api.Server
	dispatch  *dispatcher.Dispatcher
	runner    *jobs.Runner
	queue     *queueMemory.Queue
	limiter   *ratelimit.Limiter
	closers   []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) *App {
	logger.Info("creating application",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("users_dir", cfg.Storage.UsersDir),
		zap.String("presets_dir", cfg.Render.PresetsDir),
	)
	return &App{cfg: cfg, logger: logger}
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Jobs.Workers))
		a.dispatch.Run(ctx)
	}()
	go a.pruneLimiter(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.queue.Close()
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers still busy at shutdown")
	}
	a.runner.Close()
	return a.Close(shutdownCtx)
}

// Close releases external clients in reverse order of construction.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("close failed", zap.String("component", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func (a *App) pruneLimiter(ctx context.Context) {
	if a.limiter == nil {
		return
	}
	ticker := time.NewTicker(limiterIdle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.limiter.Prune(limiterIdle); n > 0 {
				a.logger.Debug("pruned idle rate limiters", zap.Int("count", n))
			}
		}
	}
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger creates the application's dependencies around an existing logger.
func BuildWithLogger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := NewApp(cfg, logger)

	tp, err := telemetry.InitTracerProvider(ctx, "bluerender", Version)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.onClose("tracer", tp.Shutdown)

	files, err := localstorage.New(localstorage.Config{BaseDir: cfg.Storage.UsersDir})
	if err != nil {
		app.abort(ctx)
		return nil, fmt.Errorf("users dir init failed: %w", err)
	}
	app.logger.Debug("local storage backend", zap.String("path", files.BaseDir()))

	accounts, err := setupAccounts(ctx, app)
	if err != nil {
		app.abort(ctx)
		return nil, err
	}
	mirror, err := setupMirror(ctx, app)
	if err != nil {
		app.abort(ctx)
		return nil, err
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		app.abort(ctx)
		return nil, err
	}
	renderer, err := setupRenderer(app)
	if err != nil {
		app.abort(ctx)
		return nil, err
	}

	catalog := preset.NewCatalog(cfg.Render.PresetsDir)
	jobStore := memoryStorage.NewJobStore()
	clock := system.New()
	idGen := uuid.New()

	app.queue = queueMemory.NewQueue(cfg.Jobs.QueueDepth)
	app.dispatch = setupDispatcher(app, jobStore, files, mirror, publisher, renderer, catalog)
	runner := jobs.NewRunner(app.dispatch, jobStore, idGen, clock, logger.Named("jobs"))
	app.runner = runner

	var throttle api.Throttle
	if cfg.RateLimit.RPS > 0 {
		app.limiter = ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.RateLimit.RPS,
			DefaultBurst: cfg.RateLimit.Burst,
		})
		throttle = app.limiter
		app.logger.Info("rate limiter enabled",
			zap.Float64("rps", cfg.RateLimit.RPS),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
	}

	app.apiServer = api.NewServer(api.Deps{
		Accounts:   accounts,
		Runner:     runner,
		Files:      files,
		Presets:    catalog,
		Throttle:   throttle,
		RequestIDs: idGen,
		Config:     *cfg,
		Logger:     logger.Named("api"),
	})
	app.apiServer.SetReadiness(func(context.Context) error {
		if _, err := os.Stat(files.BaseDir()); err != nil {
			return fmt.Errorf("users dir: %w", err)
		}
		if _, err := catalog.List(); err != nil {
			return err
		}
		return nil
	})
	return app, nil
}

func (a *App) abort(ctx context.Context) {
	if err := a.Close(ctx); err != nil {
		a.logger.Warn("cleanup after failed build", zap.Error(err))
	}
}

func setupAccounts(ctx context.Context, app *App) (account.Store, error) {
	if app.cfg.DB.DSN == "" {
		seeds := make([]account.Account, 0, len(app.cfg.Accounts))
		for _, s := range app.cfg.Accounts {
			seeds = append(seeds, account.Account{
				ID:       s.ID,
				Username: s.Username,
				Token:    s.Token,
				Verified: s.Verified,
				Services: s.Services,
				Limit:    s.Limit,
				Access:   s.Access,
			})
		}
		app.logger.Warn("no DSN specified for database, using in-memory accounts", zap.Int("accounts", len(seeds)))
		return accountMemory.NewStore(seeds...), nil
	}
	store, err := accountPostgres.NewStore(ctx, accountPostgres.Config{
		DSN:      app.cfg.DB.DSN,
		MaxConns: app.cfg.DB.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("account store init failed: %w", err)
	}
	app.onClose("accounts", func(context.Context) error {
		store.Close()
		return nil
	})
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("account schema init failed: %w", err)
	}
	app.logger.Info("postgres account store initialized")
	return store, nil
}

func setupMirror(ctx context.Context, app *App) (render.BlobStore, error) {
	if app.cfg.Storage.GCSBucket == "" {
		app.logger.Info("no GCS bucket configured, artifacts are not mirrored")
		return nil, nil
	}
	mirror, closeFn, err := gcsstorage.Dial(ctx, gcsstorage.Config{Bucket: app.cfg.Storage.GCSBucket})
	if err != nil {
		return nil, fmt.Errorf("gcs mirror init failed: %w", err)
	}
	app.onClose("gcs", func(context.Context) error { return closeFn() })
	app.logger.Info("GCS mirror enabled",
		zap.String("bucket", app.cfg.Storage.GCSBucket),
		zap.String("prefix", app.cfg.Storage.MirrorPrefix),
	)
	return mirror, nil
}

func setupPublisher(ctx context.Context, app *App) (render.Publisher, error) {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	pub, closeFn, err := gcppublisher.Dial(ctx, app.cfg.PubSub.ProjectID, app.cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	app.onClose("pubsub", func(context.Context) error { return closeFn() })
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return pub, nil
}

func setupRenderer(app *App) (render.Renderer, error) {
	if !app.cfg.Headless.Enabled {
		app.logger.Warn("headless rendering disabled, renders will fail")
		return headless.NewNoop(), nil
	}
	r, err := headless.NewChromedp(headless.Config{
		MaxParallel:       app.cfg.Headless.MaxParallel,
		NavigationTimeout: app.cfg.NavTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("headless renderer init failed: %w", err)
	}
	app.onClose("headless", func(context.Context) error {
		r.Close()
		return nil
	})
	app.logger.Info("using headless renderer",
		zap.Int("max_parallel", app.cfg.Headless.MaxParallel),
		zap.Duration("nav_timeout", app.cfg.NavTimeout()),
	)
	return r, nil
}

func setupDispatcher(
	app *App,
	jobStore render.JobStore,
	files *localstorage.BlobStore,
	mirror render.BlobStore,
	publisher render.Publisher,
	renderer render.Renderer,
	presets render.PresetCatalog,
) *dispatcher.Dispatcher {
	hasher := sha256.New()
	clock := system.New()
	workerCfg := worker.Config{
		UsersDir:     files.BaseDir(),
		MirrorPrefix: app.cfg.Storage.MirrorPrefix,
		Topic:        app.cfg.PubSub.TopicName,
	}
	app.logger.Info("worker config",
		zap.String("users_dir", workerCfg.UsersDir),
		zap.String("mirror_prefix", workerCfg.MirrorPrefix),
		zap.String("topic", workerCfg.Topic),
	)

	workers := make([]*worker.Worker, 0, app.cfg.Jobs.Workers)
	for i := 0; i < app.cfg.Jobs.Workers; i++ {
		workers = append(workers, worker.New(
			app.queue,
			jobStore,
			files,
			mirror,
			publisher,
			renderer,
			presets,
			hasher,
			clock,
			workerCfg,
			app.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	return dispatcher.New(app.queue, workers)
}
