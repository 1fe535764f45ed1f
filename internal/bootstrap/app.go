package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/employee-records-api/internal/handler"
	"github.com/noah-isme/employee-records-api/internal/models"
	"github.com/noah-isme/employee-records-api/internal/repository"
	"github.com/noah-isme/employee-records-api/internal/seed"
	"github.com/noah-isme/employee-records-api/internal/service"
	"github.com/noah-isme/employee-records-api/pkg/cache"
	"github.com/noah-isme/employee-records-api/pkg/config"
	"github.com/noah-isme/employee-records-api/pkg/database"
	"github.com/noah-isme/employee-records-api/pkg/jobs"
	"github.com/noah-isme/employee-records-api/pkg/storage"
)

const (
	documentCleanupQueue = "document-cleanup"
	cacheNamespace       = "employee-records"
	auditCapacity        = 1000
)

// recordStore is the method set shared by the memory and PostgreSQL stores.
type recordStore interface {
	Create(ctx context.Context, employee *models.Employee) error
	Update(ctx context.Context, employee *models.Employee) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*models.Employee, error)
	Search(ctx context.Context, filter models.EmployeeFilter) ([]models.Employee, int, error)
	ListIdentifiers(ctx context.Context) ([]string, error)
	LoginExists(ctx context.Context, login string) (bool, error)
	Count(ctx context.Context) (int, error)
}

// App holds the wired service graph and its HTTP router.
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	router *gin.Engine

	Employees *service.EmployeeService
	Auth      *service.AuthService
	Metrics   *service.MetricsService
	Audit     *repository.AuditMemoryRepository

	queue   *jobs.Queue
	closers []func() error
}

// New wires configuration into repositories, services and routes.
// The cleanup queue is started against ctx.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	metrics := service.NewMetricsService()
	app.Metrics = metrics
	checks := map[string]handler.ReadinessCheck{}

	store, err := app.openStore(ctx, metrics, checks)
	if err != nil {
		return nil, err
	}

	cacheSvc, err := app.openCache(metrics, checks)
	if err != nil {
		return nil, err
	}

	blobs, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("init document storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL)

	// The queue handler is bound after the document service exists.
	var documents *service.DocumentService
	app.queue = jobs.NewQueue(documentCleanupQueue, func(ctx context.Context, job jobs.Job) error {
		return documents.HandleJob(ctx, job)
	}, jobs.QueueConfig{
		Workers:    cfg.Documents.CleanupWorkers,
		MaxRetries: cfg.Documents.CleanupRetries,
		Logger:     logger,
	})
	documents = service.NewDocumentService(blobs, signer, app.queue, metrics, logger, service.DocumentServiceConfig{
		MinFileSize:  cfg.Documents.MinFileSizeBytes,
		MaxFileSize:  cfg.Documents.MaxFileSizeBytes,
		AllowedMIMEs: cfg.Documents.AllowedMIMEs,
		APIPrefix:    cfg.APIPrefix,
	})
	app.queue.Start(ctx)
	app.closers = append(app.closers, func() error {
		app.queue.Stop()
		return nil
	})

	credentials, err := loadCredentials(cfg, logger)
	if err != nil {
		return nil, err
	}

	audit := repository.NewAuditMemoryRepository(auditCapacity)
	app.Audit = audit
	validate := service.NewValidator()

	ids := service.NewIdentifierGenerator(rand.NewSource(time.Now().UnixNano()), cfg.Auth.LoginHandleMaxAttempts)
	ids.OnCollision(metrics.RecordLoginCollision)

	app.Employees = service.NewEmployeeService(store, ids, documents, cacheSvc, audit, metrics, validate, logger, service.EmployeeServiceConfig{
		DefaultLimit:  cfg.Search.DefaultLimit,
		MaxLimit:      cfg.Search.MaxLimit,
		ExportMaxRows: cfg.Search.ExportMaxRows,
		CacheTTL:      cfg.Search.CacheTTL,
	})
	app.Auth = service.NewAuthService(credentials, audit, metrics, validate, logger, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	if cfg.Seed.Enabled {
		if err := app.seed(ctx, store); err != nil {
			return nil, err
		}
		if err := cacheSvc.InvalidateSearch(ctx); err != nil {
			logger.Warn("failed to reset search cache after seeding", zap.Error(err))
		}
	}
	app.Employees.RefreshRecordCount(ctx)

	app.router = app.routes(handlerSet{
		auth:      handler.NewAuthHandler(app.Auth),
		employees: handler.NewEmployeeHandler(app.Employees),
		audit:     handler.NewAuditHandler(audit),
		metrics:   handler.NewMetricsHandler(metrics, checks),
	}, audit)

	ok = true
	return app, nil
}

// Router exposes the configured gin engine.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Port),
		Handler:           a.router,
		ReadTimeout:       a.cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      a.cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", a.cfg.Env))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		a.logger.Info("server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Close releases background workers and connections in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("failed to release resource", zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *App) openStore(ctx context.Context, metrics *service.MetricsService, checks map[string]handler.ReadinessCheck) (recordStore, error) {
	switch a.cfg.Store.Driver {
	case config.StorePostgres:
		db, err := database.NewPostgres(ctx, a.cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		checks["store"] = pingDB(db)
		a.logger.Info("using postgres record store", zap.String("host", a.cfg.Database.Host), zap.String("database", a.cfg.Database.Name))
		return repository.NewEmployeePostgresRepository(db, metrics.ObserveDBQuery), nil
	default:
		store := repository.NewEmployeeMemoryRepository()
		checks["store"] = func(ctx context.Context) error {
			_, err := store.Count(ctx)
			return err
		}
		a.logger.Info("using in-memory record store")
		return store, nil
	}
}

func (a *App) openCache(metrics *service.MetricsService, checks map[string]handler.ReadinessCheck) (*service.CacheService, error) {
	if !a.cfg.Search.CacheEnabled {
		return service.NewCacheService(nil, metrics, a.cfg.Search.CacheTTL, a.logger, false), nil
	}
	client, err := cache.NewRedis(a.cfg.Redis)
	if err != nil {
		return nil, err
	}
	repo := repository.NewCacheRepository(client, cacheNamespace, a.logger)
	a.closers = append(a.closers, repo.Close)
	checks["cache"] = repo.Ping
	return service.NewCacheService(repo, metrics, a.cfg.Search.CacheTTL, a.logger, true), nil
}

func (a *App) seed(ctx context.Context, store recordStore) error {
	var (
		records []models.Employee
		err     error
	)
	if a.cfg.Seed.File != "" {
		records, err = seed.LoadFile(a.cfg.Seed.File)
	} else {
		records, err = seed.Default()
	}
	if err != nil {
		return fmt.Errorf("load seed records: %w", err)
	}
	inserted, err := seed.Apply(ctx, store, records, a.logger)
	if err != nil {
		return fmt.Errorf("apply seed records: %w", err)
	}
	a.logger.Info("seed applied", zap.Int("inserted", inserted), zap.Int("records", len(records)))
	return nil
}

func pingDB(db *sqlx.DB) handler.ReadinessCheck {
	return func(ctx context.Context) error {
		return db.PingContext(ctx)
	}
}
