package app

import (
	httpH "github.com/mediabridge/asset-gateway/internal/http/handlers"
	"github.com/mediabridge/asset-gateway/internal/pkg/logger"
)

type Handlers struct {
	Asset      *httpH.AssetHandler
	NamedQuery *httpH.NamedQueryHandler
	Health     *httpH.HealthHandler
}

func wireHandlers(log *logger.Logger, cfg Config, svcs Services) Handlers {
	return Handlers{
		Asset:      httpH.NewAssetHandler(log, svcs.Dispatcher),
		NamedQuery: httpH.NewNamedQueryHandler(log, svcs.NamedQueries, svcs.Projections, cfg.PublicBaseURL),
		Health:     httpH.NewHealthHandler(),
	}
}
