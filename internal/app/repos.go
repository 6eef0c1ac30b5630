package app

import (
	"gorm.io/gorm"

	assetrepo "github.com/mediabridge/asset-gateway/internal/data/repos/assets"
	sessionrepo "github.com/mediabridge/asset-gateway/internal/data/repos/auth"
	projectionrepo "github.com/mediabridge/asset-gateway/internal/data/repos/projections"
	queryrepo "github.com/mediabridge/asset-gateway/internal/data/repos/queries"
	"github.com/mediabridge/asset-gateway/internal/pkg/logger"
)

type Repos struct {
	Assets       assetrepo.AssetRepo
	Sessions     sessionrepo.SessionRepo
	NamedQueries queryrepo.NamedQueryRepo
	Projections  projectionrepo.ProjectionRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Assets:       assetrepo.NewAssetRepo(db, log),
		Sessions:     sessionrepo.NewSessionRepo(db, log),
		NamedQueries: queryrepo.NewNamedQueryRepo(db, log),
		Projections:  projectionrepo.NewProjectionRepo(db, log),
	}
}
