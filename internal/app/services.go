package app

import (
	"gorm.io/gorm"

	redisclient "github.com/astrofuse/astrofuse-backend/internal/clients/redis"
	"github.com/astrofuse/astrofuse-backend/internal/logger"
	"github.com/astrofuse/astrofuse-backend/internal/services"
)

type Services struct {
	CrossMatch  services.CrossMatchService
	FusionQuery services.FusionQueryService
	Catalog     services.CatalogService
	StatsCache  redisclient.StatsCache
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos) Services {
	log.Info("Wiring services...")

	// The stats cache is optional; without REDIS_ADDR every stats read hits
	// the store directly.
	var cache redisclient.StatsCache
	if c, err := redisclient.NewStatsCache(log, cfg.StatsCacheTTL); err != nil {
		log.Warn("Stats cache disabled", "error", err)
	} else {
		cache = c
	}

	return Services{
		CrossMatch:  services.NewCrossMatchService(db, log, cfg.Engine, reposet.StarRecord, reposet.FusionGroup, reposet.CrossMatchRun, cache),
		FusionQuery: services.NewFusionQueryService(log, cfg.Engine, reposet.StarRecord, reposet.FusionGroup, reposet.CrossMatchRun, cache),
		Catalog:     services.NewCatalogService(log, reposet.StarRecord, cache),
		StatsCache:  cache,
	}
}
