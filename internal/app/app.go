package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/sitescout-backend/internal/data/db"
	apphttp "github.com/yungbote/sitescout-backend/internal/http"
	"github.com/yungbote/sitescout-backend/internal/observability"
	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
	"github.com/yungbote/sitescout-backend/internal/utils"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Clients  Clients
	Repos    Repos
	Services Services
	Server   *apphttp.Server

	cancel       context.CancelFunc
	otelShutdown func(context.Context) error
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)
	observability.Init(log)

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	theDB := pg.DB()
	if err := db.AutoMigrateAll(theDB); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	if err := db.EnsureCrawlIndexes(theDB); err != nil {
		log.Sync()
		return nil, fmt.Errorf("ensure crawl indexes: %w", err)
	}
	if err := db.EnsureVectorIndex(theDB, 100); err != nil {
		log.Sync()
		return nil, fmt.Errorf("ensure vector index: %w", err)
	}
	if err := db.EnsureSearchFunction(theDB); err != nil {
		log.Sync()
		return nil, fmt.Errorf("ensure search function: %w", err)
	}

	clientset, err := wireClients(log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}

	reposet := wireRepos(theDB, log)

	serviceset, err := wireServices(theDB, log, cfg, reposet, clientset)
	if err != nil {
		log.Sync()
		return nil, err
	}

	handlerset := wireHandlers(theDB, log, serviceset)
	middleware := wireMiddleware(log, cfg)
	server := wireServer(log, cfg, handlerset, middleware)

	return &App{
		Log:      log,
		DB:       theDB,
		Cfg:      cfg,
		Clients:  clientset,
		Repos:    reposet,
		Services: serviceset,
		Server:   server,
	}, nil
}

// Start launches the background loops: the crawl-run claim worker, tracing,
// and the optional metrics surfaces.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.otelShutdown = observability.InitOTel(ctx, a.Log, observability.OtelConfig{
		ServiceName: "sitescout-backend",
		Environment: utils.GetEnv("APP_ENV", "development", nil),
		Version:     utils.GetEnv("APP_VERSION", "", nil),
	})

	go a.Services.CrawlRun.RunWorker(ctx)

	if metrics := observability.Current(); metrics != nil {
		metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
		metrics.StartPostgresCollector(ctx, a.Log, a.DB)
		metrics.StartBatchCollector(ctx, a.Log, a.DB)
		if addr := os.Getenv("REDIS_ADDR"); addr != "" {
			metrics.StartRedisCollector(ctx, a.Log, addr)
		}
	}
}

// Run serves HTTP until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Server.Run(ctx)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Services.Embedding != nil {
		a.Services.Embedding.Stop()
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.otelShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelShutdown(shutdownCtx)
		cancel()
		a.otelShutdown = nil
	}
	a.Clients.Close()
	if a.Log != nil {
		a.Log.Sync()
	}
}
