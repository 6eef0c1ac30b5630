package app

import (
	"strings"
	"time"

	"github.com/mediabridge/asset-gateway/internal/pkg/envutil"
	"github.com/mediabridge/asset-gateway/internal/pkg/logger"
)

type Config struct {
	JWTSecretKey  string
	CookieBase    string
	CookieTTL     time.Duration
	PublicBaseURL string

	DownstreamAddr           string
	ForwardTimeout           time.Duration
	PublicInfoOnUnauthorized bool

	AllowedOrigins []string

	NamedQuerySeedFile string
}

func LoadConfig(log *logger.Logger) Config {
	origins := envutil.GetEnv("ALLOWED_ORIGINS", "", log)
	var allowed []string
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed = append(allowed, o)
		}
	}

	return Config{
		JWTSecretKey:  envutil.GetEnv("JWT_SECRET_KEY", "defaultsecret", log),
		CookieBase:    envutil.GetEnv("AUTH_COOKIE_BASE", "gateway-auth", log),
		CookieTTL:     envutil.GetEnvAsDuration("AUTH_COOKIE_TTL", 8*time.Hour, log),
		PublicBaseURL: envutil.GetEnv("PUBLIC_BASE_URL", "http://localhost:8080", log),

		DownstreamAddr:           envutil.GetEnv("DOWNSTREAM_RENDERER_ADDR", "http://localhost:8182", log),
		ForwardTimeout:           envutil.GetEnvAsDuration("FORWARD_TIMEOUT", 100*time.Second, log),
		PublicInfoOnUnauthorized: envutil.GetEnvAsBool("PUBLIC_INFO_ON_UNAUTHORIZED", true, log),

		AllowedOrigins: allowed,

		NamedQuerySeedFile: envutil.GetEnv("NAMED_QUERY_SEED_FILE", "", log),
	}
}
