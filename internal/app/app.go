package app

import (
	"context"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/mediabridge/asset-gateway/internal/data/db"
	gatewayhttp "github.com/mediabridge/asset-gateway/internal/http"
	"github.com/mediabridge/asset-gateway/internal/observability"
	"github.com/mediabridge/asset-gateway/internal/pkg/logger"
	"github.com/mediabridge/asset-gateway/internal/platform/gcs"
	"github.com/mediabridge/asset-gateway/internal/platform/redisx"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Server   *gatewayhttp.Server
	Cfg      Config
	Repos    Repos
	Services Services

	bus          redisx.InvalidationBus
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
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

	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "asset-gateway",
		Environment: os.Getenv("DEPLOY_ENV"),
	})

	database, err := db.New(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := database.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("database automigrate: %w", err)
	}
	theDB := database.DB()

	contentStore, err := gcs.NewContentStore(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init content store: %w", err)
	}

	reposet := wireRepos(theDB, log)

	if err := seedNamedQueries(context.Background(), log, reposet.NamedQueries, cfg.NamedQuerySeedFile); err != nil {
		log.Warn("Named query seeding failed", "error", err)
	}

	serviceset := wireServices(log, cfg, reposet, contentStore)
	handlerset := wireHandlers(log, cfg, serviceset)

	server := gatewayhttp.NewServer(gatewayhttp.RouterConfig{
		Log:               log,
		AssetHandler:      handlerset.Asset,
		NamedQueryHandler: handlerset.NamedQuery,
		HealthHandler:     handlerset.Health,
		AllowedOrigins:    cfg.AllowedOrigins,
	})

	var bus redisx.InvalidationBus
	if os.Getenv("REDIS_ADDR") != "" {
		bus, err = redisx.NewInvalidationBus(log)
		if err != nil {
			log.Warn("Invalidation bus init failed (continuing without)", "error", err)
			bus = nil
		}
	}

	return &App{
		Log:          log,
		DB:           theDB,
		Server:       server,
		Cfg:          cfg,
		Repos:        reposet,
		Services:     serviceset,
		bus:          bus,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the background invalidation subscriber.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.bus != nil {
		err := a.bus.StartSubscriber(ctx, func(m redisx.AssetModified) {
			a.Services.Orchestrator.Evict(m.ID(), m.Version)
		})
		if err != nil {
			a.Log.Warn("Invalidation subscriber failed to start", "error", err)
		}
	}
}

func (a *App) Run(addr string) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Server.Run(addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.bus != nil {
		_ = a.bus.Close()
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
