package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/mediabridge/asset-gateway/internal/http/handlers"
	httpMW "github.com/mediabridge/asset-gateway/internal/http/middleware"
	"github.com/mediabridge/asset-gateway/internal/pkg/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	AssetHandler      *httpH.AssetHandler
	NamedQueryHandler *httpH.NamedQueryHandler
	HealthHandler     *httpH.HealthHandler

	AllowedOrigins []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("asset-gateway"))
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.AllowedOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	// Asset proxy routes
	if cfg.AssetHandler != nil {
		r.GET("/iiif-img/:customer/:space/:image/*assetRequest", cfg.AssetHandler.Proxy)
		r.HEAD("/iiif-img/:customer/:space/:image/*assetRequest", cfg.AssetHandler.Proxy)
		r.GET("/iiif-av/:customer/:space/:image/*assetRequest", cfg.AssetHandler.Proxy)
		r.HEAD("/iiif-av/:customer/:space/:image/*assetRequest", cfg.AssetHandler.Proxy)
	}

	// Named-query projection route
	if cfg.NamedQueryHandler != nil {
		r.GET("/iiif-resource/:customer/:queryName/*args", cfg.NamedQueryHandler.Resolve)
	}

	return r
}
