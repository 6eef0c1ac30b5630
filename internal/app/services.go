package app

import (
	"github.com/mediabridge/asset-gateway/internal/pkg/logger"
	"github.com/mediabridge/asset-gateway/internal/platform/gcs"
	"github.com/mediabridge/asset-gateway/internal/services"
)

type Services struct {
	AccessGate   services.AccessGate
	Orchestrator services.AssetOrchestrator
	NamedQueries services.NamedQueryEngine
	Projections  services.ProjectionCache
	Dispatcher   services.ReverseProxyDispatcher
}

func wireServices(log *logger.Logger, cfg Config, repos Repos, store gcs.ContentStore) Services {
	gate := services.NewAccessGate(log, repos.Sessions, cfg.JWTSecretKey, cfg.CookieBase, cfg.CookieTTL)
	orch := services.NewAssetOrchestrator(log, repos.Assets, store)
	engine := services.NewNamedQueryEngine(log, repos.NamedQueries, repos.Assets)
	cache := services.NewProjectionCache(log, repos.Projections, store)
	dispatcher := services.NewReverseProxyDispatcher(log, gate, orch, services.ProxyConfig{
		DownstreamAddr:           cfg.DownstreamAddr,
		ForwardTimeout:           cfg.ForwardTimeout,
		PublicInfoOnUnauthorized: cfg.PublicInfoOnUnauthorized,
	})

	return Services{
		AccessGate:   gate,
		Orchestrator: orch,
		NamedQueries: engine,
		Projections:  cache,
		Dispatcher:   dispatcher,
	}
}
